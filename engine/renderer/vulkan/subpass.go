package vulkan

import (
	"sort"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/spices/engine/core"
)

/**
 * @brief Clear value of one attachment. Depth attachments use Depth and
 * Stencil, every other attachment uses Color.
 */
type ClearValue struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
	IsDepth bool
}

func ColorClear(r, g, b, a float32) ClearValue {
	return ClearValue{Color: [4]float32{r, g, b, a}}
}

func DepthClear(depth float32, stencil uint32) ClearValue {
	return ClearValue{Depth: depth, Stencil: stencil, IsDepth: true}
}

func (c ClearValue) native() vk.ClearValue {
	var v vk.ClearValue
	if c.IsDepth {
		v.SetDepthStencil(c.Depth, c.Stencil)
	} else {
		v.SetColor(c.Color[:])
	}
	return v
}

type AttachmentReference struct {
	Attachment uint32
	Layout     vk.ImageLayout
}

func (r AttachmentReference) native() vk.AttachmentReference {
	return vk.AttachmentReference{
		Attachment: r.Attachment,
		Layout:     r.Layout,
	}
}

/**
 * @brief A subpass dependency. SrcSubpass or DstSubpass may be vk.SubpassExternal.
 */
type Dependency struct {
	SrcSubpass uint32
	DstSubpass uint32
	SrcStage   vk.PipelineStageFlags
	DstStage   vk.PipelineStageFlags
	SrcAccess  vk.AccessFlags
	DstAccess  vk.AccessFlags
	Flags      vk.DependencyFlags
}

func (d Dependency) IsExternalSrc() bool { return d.SrcSubpass == vk.SubpassExternal }
func (d Dependency) IsExternalDst() bool { return d.DstSubpass == vk.SubpassExternal }
func (d Dependency) IsSelf() bool        { return d.SrcSubpass == d.DstSubpass }

func (d Dependency) native() vk.SubpassDependency {
	return vk.SubpassDependency{
		SrcSubpass:      d.SrcSubpass,
		DstSubpass:      d.DstSubpass,
		SrcStageMask:    d.SrcStage,
		DstStageMask:    d.DstStage,
		SrcAccessMask:   d.SrcAccess,
		DstAccessMask:   d.DstAccess,
		DependencyFlags: d.Flags,
	}
}

type PushConstantRange struct {
	Stages vk.ShaderStageFlags
	Offset uint32
	Size   uint32
}

// BufferKey addresses a buffer bound at (set, binding).
type BufferKey struct {
	Set     uint32
	Binding uint32
}

/**
 * @brief One subpass of a pass draft: attachment references, blend states,
 * push constant range, bound buffers and dependencies.
 */
type SubPass struct {
	Name  string
	Index uint32

	colors       []AttachmentReference
	blends       []vk.PipelineColorBlendAttachmentState
	depth        *AttachmentReference
	inputs       []AttachmentReference
	pushConstant *PushConstantRange
	buffers      map[BufferKey]*Buffer
	self         []Dependency
	dependencies []Dependency
	closed       bool
}

func newSubPass(name string, index uint32) *SubPass {
	return &SubPass{
		Name:    name,
		Index:   index,
		buffers: make(map[BufferKey]*Buffer),
	}
}

func (s *SubPass) AddColorAttachmentReference(ref AttachmentReference, blend vk.PipelineColorBlendAttachmentState) {
	s.colors = append(s.colors, ref)
	s.blends = append(s.blends, blend)
}

func (s *SubPass) SetDepthAttachmentReference(ref AttachmentReference) {
	if s.depth != nil && s.depth.Attachment != ref.Attachment {
		core.LogWarn("subpass %s: replacing depth attachment %d with %d", s.Name, s.depth.Attachment, ref.Attachment)
	}
	s.depth = &ref
}

func (s *SubPass) AddInputAttachmentReference(ref AttachmentReference) {
	s.inputs = append(s.inputs, ref)
}

// SetPushConstant declares a push constant block of size bytes, visible to all stages.
func (s *SubPass) SetPushConstant(size uint32) {
	s.pushConstant = &PushConstantRange{
		Stages: vk.ShaderStageFlags(vk.ShaderStageAll),
		Offset: 0,
		Size:   size,
	}
}

func (s *SubPass) PushConstant() (PushConstantRange, bool) {
	if s.pushConstant == nil {
		return PushConstantRange{}, false
	}
	return *s.pushConstant, true
}

func (s *SubPass) SetBuffer(set, binding uint32, buffer *Buffer) {
	s.buffers[BufferKey{Set: set, Binding: binding}] = buffer
}

func (s *SubPass) Buffer(set, binding uint32) (*Buffer, bool) {
	b, ok := s.buffers[BufferKey{Set: set, Binding: binding}]
	return b, ok
}

// BufferKeys lists the bound buffers ordered by set then binding.
func (s *SubPass) BufferKeys() []BufferKey {
	keys := make([]BufferKey, 0, len(s.buffers))
	for k := range s.buffers {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Set != keys[j].Set {
			return keys[i].Set < keys[j].Set
		}
		return keys[i].Binding < keys[j].Binding
	})
	return keys
}

// AddSelfDependency adds a by-region barrier from this subpass onto itself.
func (s *SubPass) AddSelfDependency(srcAccess, dstAccess vk.AccessFlags, srcStage, dstStage vk.PipelineStageFlags) {
	s.self = append(s.self, Dependency{
		SrcSubpass: s.Index,
		DstSubpass: s.Index,
		SrcStage:   srcStage,
		DstStage:   dstStage,
		SrcAccess:  srcAccess,
		DstAccess:  dstAccess,
		Flags:      vk.DependencyFlags(vk.DependencyByRegionBit),
	})
}

func (s *SubPass) ColorReferences() []AttachmentReference {
	return s.colors
}

func (s *SubPass) InputReferences() []AttachmentReference {
	return s.inputs
}

func (s *SubPass) DepthReference() (AttachmentReference, bool) {
	if s.depth == nil {
		return AttachmentReference{}, false
	}
	return *s.depth, true
}

// ColorBlends returns one blend state per color attachment, in reference order.
func (s *SubPass) ColorBlends() []vk.PipelineColorBlendAttachmentState {
	return s.blends
}

// Dependencies returns the implicit dependency followed by the self dependencies.
func (s *SubPass) Dependencies() []Dependency {
	return s.dependencies
}

func (s *SubPass) IsClosed() bool {
	return s.closed
}

// close builds the dependency list: external -> 0 for the first subpass,
// i-1 -> i for every later one, then the self dependencies.
func (s *SubPass) close() {
	stages := vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit) |
		vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit) |
		vk.PipelineStageFlags(vk.PipelineStageLateFragmentTestsBit)

	s.dependencies = s.dependencies[:0]
	if s.Index == 0 {
		s.dependencies = append(s.dependencies, Dependency{
			SrcSubpass: vk.SubpassExternal,
			DstSubpass: 0,
			SrcStage:   stages,
			DstStage:   stages,
			SrcAccess:  0,
			DstAccess:  vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit),
			Flags:      0,
		})
	} else {
		s.dependencies = append(s.dependencies, Dependency{
			SrcSubpass: s.Index - 1,
			DstSubpass: s.Index,
			SrcStage:   vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
			DstStage:   vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
			SrcAccess:  vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
			DstAccess:  vk.AccessFlags(vk.AccessInputAttachmentReadBit),
			Flags:      vk.DependencyFlags(vk.DependencyByRegionBit),
		})
	}
	s.dependencies = append(s.dependencies, s.self...)
	s.closed = true
}

func (s *SubPass) description() vk.SubpassDescription {
	colors := make([]vk.AttachmentReference, len(s.colors))
	for i, r := range s.colors {
		colors[i] = r.native()
	}
	inputs := make([]vk.AttachmentReference, len(s.inputs))
	for i, r := range s.inputs {
		inputs[i] = r.native()
	}

	desc := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colors)),
		PColorAttachments:    colors,
		InputAttachmentCount: uint32(len(inputs)),
		PInputAttachments:    inputs,
	}
	if s.depth != nil {
		depth := s.depth.native()
		desc.PDepthStencilAttachment = &depth
	}
	return desc
}
