package vulkan

import (
	"sort"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/spices/engine/core"
)

// DescriptorBindingFlags mirrors VkDescriptorBindingFlagBits (descriptor indexing).
type DescriptorBindingFlags uint32

const (
	DescriptorBindingUpdateAfterBind          DescriptorBindingFlags = 0x1
	DescriptorBindingUpdateUnusedWhilePending DescriptorBindingFlags = 0x2
	DescriptorBindingPartiallyBound           DescriptorBindingFlags = 0x4
	DescriptorBindingVariableDescriptorCount  DescriptorBindingFlags = 0x8
)

// VK_DESCRIPTOR_TYPE_ACCELERATION_STRUCTURE_KHR
const DescriptorTypeAccelerationStructure vk.DescriptorType = 1000150000

/**
 * @brief Layout creation parameters, including the per binding flags chained
 * into the native create info.
 */
type DescriptorSetLayoutInfo struct {
	/** @brief Debug name. */
	Name string
	/** @brief The bindings, ordered by binding index. */
	Bindings []vk.DescriptorSetLayoutBinding
	/** @brief Flags of each binding, parallel to Bindings. */
	BindingFlags []DescriptorBindingFlags
	/** @brief Create the layout with the update-after-bind pool flag. */
	UpdateAfterBindPool bool
}

/**
 * @brief One binding of a descriptor set and the resources written into it.
 */
type DescriptorBinding struct {
	Binding uint32
	Type    vk.DescriptorType
	Stages  vk.ShaderStageFlags
	/** @brief Descriptor count; the capacity for a bindless binding. */
	Count uint32
	Flags DescriptorBindingFlags
	/** @brief Buffers written by the next update. */
	Buffers []vk.DescriptorBufferInfo
	/** @brief Images written by the next update. */
	Images []vk.DescriptorImageInfo
	/** @brief The binding takes an acceleration structure. */
	Acceleration bool
}

/**
 * @brief A descriptor set owned by a {pass, subpass} pair at one set index.
 * The native layout and set are created lazily by BuildDescriptorSet.
 */
type DescriptorSet struct {
	Owner OwnerKey
	Set   uint32

	Layout vk.DescriptorSetLayout
	Handle vk.DescriptorSet

	bindings map[uint32]*DescriptorBinding
}

var ErrBindingConflict = errors.New("descriptor binding already declared with another type")

func NewDescriptorSet(owner OwnerKey, set uint32) *DescriptorSet {
	return &DescriptorSet{
		Owner:    owner,
		Set:      set,
		bindings: make(map[uint32]*DescriptorBinding),
	}
}

func (s *DescriptorSet) addBinding(binding uint32, typ vk.DescriptorType, stages vk.ShaderStageFlags, count uint32, flags DescriptorBindingFlags) *DescriptorBinding {
	if b, ok := s.bindings[binding]; ok {
		if b.Type != typ {
			core.LogWarn("%s set %d: %s", s.Owner, s.Set, errors.Wrapf(ErrBindingConflict, "binding %d", binding))
		}
		b.Stages |= stages
		return b
	}
	b := &DescriptorBinding{
		Binding: binding,
		Type:    typ,
		Stages:  stages,
		Count:   count,
		Flags:   flags,
	}
	s.bindings[binding] = b
	return b
}

// AddBinding declares a binding. Input attachments are only partially bound,
// everything else may also be updated after bind.
func (s *DescriptorSet) AddBinding(binding uint32, typ vk.DescriptorType, stages vk.ShaderStageFlags, count uint32) *DescriptorBinding {
	flags := DescriptorBindingPartiallyBound | DescriptorBindingUpdateAfterBind
	if typ == vk.DescriptorTypeInputAttachment {
		flags = DescriptorBindingPartiallyBound
	}
	return s.addBinding(binding, typ, stages, count, flags)
}

func (s *DescriptorSet) AddBufferBinding(binding uint32, typ vk.DescriptorType, stages vk.ShaderStageFlags, buffer *Buffer) *DescriptorBinding {
	b := s.AddBinding(binding, typ, stages, 1)
	b.Buffers = []vk.DescriptorBufferInfo{{
		Buffer: buffer.Handle,
		Offset: 0,
		Range:  vk.DeviceSize(buffer.Size),
	}}
	return b
}

func (s *DescriptorSet) AddImageBinding(binding uint32, typ vk.DescriptorType, stages vk.ShaderStageFlags, images []vk.DescriptorImageInfo) *DescriptorBinding {
	b := s.AddBinding(binding, typ, stages, uint32(max(len(images), 1)))
	b.Images = images
	return b
}

// AddBindlessBinding declares a variable sized, partially bound texture array.
func (s *DescriptorSet) AddBindlessBinding(binding uint32, stages vk.ShaderStageFlags, capacity uint32) *DescriptorBinding {
	return s.addBinding(binding, vk.DescriptorTypeCombinedImageSampler, stages, capacity,
		DescriptorBindingPartiallyBound|DescriptorBindingVariableDescriptorCount|DescriptorBindingUpdateAfterBind)
}

func (s *DescriptorSet) AddAccelerationBinding(binding uint32, stages vk.ShaderStageFlags) *DescriptorBinding {
	b := s.AddBinding(binding, DescriptorTypeAccelerationStructure, stages, 1)
	b.Acceleration = true
	return b
}

// Bindings returns the declared bindings ordered by binding index.
func (s *DescriptorSet) Bindings() []*DescriptorBinding {
	out := make([]*DescriptorBinding, 0, len(s.bindings))
	for _, b := range s.bindings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Binding < out[j].Binding })
	return out
}

func (s *DescriptorSet) IsBindless() bool {
	for _, b := range s.bindings {
		if b.Flags&DescriptorBindingVariableDescriptorCount != 0 {
			return true
		}
	}
	return false
}

func (s *DescriptorSet) IsBuilt() bool {
	return s.Handle != nil
}

func (s *DescriptorSet) variableCount() uint32 {
	for _, b := range s.bindings {
		if b.Flags&DescriptorBindingVariableDescriptorCount != 0 {
			return b.Count
		}
	}
	return 0
}

func (s *DescriptorSet) layoutInfo() *DescriptorSetLayoutInfo {
	info := &DescriptorSetLayoutInfo{
		Name: s.Owner.String(),
	}
	for _, b := range s.Bindings() {
		info.Bindings = append(info.Bindings, vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  b.Type,
			DescriptorCount: b.Count,
			StageFlags:      b.Stages,
		})
		info.BindingFlags = append(info.BindingFlags, b.Flags)
		if b.Flags&DescriptorBindingUpdateAfterBind != 0 {
			info.UpdateAfterBindPool = true
		}
	}
	return info
}

/**
 * BuildDescriptorSet creates the layout, allocates the set and writes every
 * binding. A bindless set that already exists is only updated.
 */
func (s *DescriptorSet) BuildDescriptorSet(dev Device, accel AccelerationStructure) error {
	if s.IsBuilt() && s.IsBindless() {
		return s.UpdateDescriptorSet(dev, accel)
	}
	s.Destroy(dev)

	layout, err := dev.CreateDescriptorSetLayout(s.layoutInfo())
	if err != nil {
		return errors.Wrapf(err, "descriptor set layout %s set %d", s.Owner, s.Set)
	}
	s.Layout = layout

	set, err := dev.AllocateDescriptorSet(layout, s.variableCount())
	if err != nil {
		return errors.Wrapf(err, "descriptor set %s set %d", s.Owner, s.Set)
	}
	s.Handle = set

	return s.UpdateDescriptorSet(dev, accel)
}

// UpdateDescriptorSet writes every binding that has resources attached.
func (s *DescriptorSet) UpdateDescriptorSet(dev Device, accel AccelerationStructure) error {
	if !s.IsBuilt() {
		return errors.Newf("descriptor set %s set %d updated before it was built", s.Owner, s.Set)
	}
	var writes []vk.WriteDescriptorSet
	for _, b := range s.Bindings() {
		switch {
		case b.Acceleration:
			if accel == NullAccelerationStructure {
				continue
			}
			rt, ok := SupportsRayTracing(dev)
			if !ok {
				core.LogWarn("%s set %d binding %d: device has no ray tracing support", s.Owner, s.Set, b.Binding)
				continue
			}
			rt.WriteAccelerationStructure(s.Handle, b.Binding, accel)
		case len(b.Buffers) > 0:
			writes = append(writes, vk.WriteDescriptorSet{
				SType:           vk.StructureTypeWriteDescriptorSet,
				DstSet:          s.Handle,
				DstBinding:      b.Binding,
				DstArrayElement: 0,
				DescriptorType:  b.Type,
				DescriptorCount: uint32(len(b.Buffers)),
				PBufferInfo:     b.Buffers,
			})
		case len(b.Images) > 0:
			writes = append(writes, vk.WriteDescriptorSet{
				SType:           vk.StructureTypeWriteDescriptorSet,
				DstSet:          s.Handle,
				DstBinding:      b.Binding,
				DstArrayElement: 0,
				DescriptorType:  b.Type,
				DescriptorCount: uint32(len(b.Images)),
				PImageInfo:      b.Images,
			})
		}
	}
	if len(writes) > 0 {
		dev.UpdateDescriptorSets(writes)
	}
	return nil
}

// Destroy releases the native set and layout; the declared bindings are kept.
func (s *DescriptorSet) Destroy(dev Device) {
	if s.Handle != nil {
		dev.FreeDescriptorSet(s.Handle)
		s.Handle = nil
	}
	if s.Layout != nil {
		dev.DestroyDescriptorSetLayout(s.Layout)
		s.Layout = nil
	}
}
