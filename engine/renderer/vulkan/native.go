package vulkan

import (
	"encoding/binary"
	"runtime"
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/spices/engine/core"
)

// descriptor indexing structures chained into the native create infos
const (
	structureTypeDescriptorSetLayoutBindingFlagsCreateInfo        = 1000161000
	structureTypeDescriptorSetVariableDescriptorCountAllocateInfo = 1000161003
	descriptorSetLayoutCreateUpdateAfterBindPool                  = 0x2
	descriptorPoolCreateUpdateAfterBind                           = 0x2
	descriptorPoolCreateFreeDescriptorSet                         = 0x1
)

type descriptorSetLayoutBindingFlagsCreateInfo struct {
	SType         uint32
	PNext         unsafe.Pointer
	BindingCount  uint32
	PBindingFlags *uint32
}

type descriptorSetVariableDescriptorCountAllocateInfo struct {
	SType              uint32
	PNext              unsafe.Pointer
	DescriptorSetCount uint32
	PDescriptorCounts  *uint32
}

/**
 * @brief The handles created by the (external) device bring-up.
 */
type NativeDeviceInfo struct {
	Device           vk.Device
	PhysicalDevice   vk.PhysicalDevice
	Queue            vk.Queue
	QueueFamilyIndex uint32
	/** @brief Capacity of the shared descriptor pool. */
	MaxDescriptorSets uint32
	/** @brief Descriptors per type in the shared pool; also bounds the bindless array. */
	MaxDescriptorsPerType uint32
}

/**
 * @brief Device implementation over goki/vulkan. Pools and the queue are
 * guarded by the lock pool so command recording can run on pool threads.
 */
type NativeDevice struct {
	Handle           vk.Device
	PhysicalDevice   vk.PhysicalDevice
	Queue            vk.Queue
	QueueFamilyIndex uint32

	locks          *VulkanLockPool
	commandPool    vk.CommandPool
	descriptorPool vk.DescriptorPool
	uploadFence    *Fence

	mu           sync.Mutex
	secondaryOf  map[vk.CommandBuffer]vk.CommandPool
	memoryLoaded bool
	memory       vk.PhysicalDeviceMemoryProperties
}

func NewNativeDevice(info NativeDeviceInfo) (*NativeDevice, error) {
	dev := &NativeDevice{
		Handle:           info.Device,
		PhysicalDevice:   info.PhysicalDevice,
		Queue:            info.Queue,
		QueueFamilyIndex: info.QueueFamilyIndex,
		locks:            NewVulkanLockPool(),
		secondaryOf:      make(map[vk.CommandBuffer]vk.CommandPool),
	}
	dev.locks.SetQueueFamily(info.QueueFamilyIndex)

	pool, err := dev.createCommandPool()
	if err != nil {
		return nil, err
	}
	dev.commandPool = pool

	maxSets := max(info.MaxDescriptorSets, 1024)
	perType := max(info.MaxDescriptorsPerType, BindlessTextureMaxCount)
	types := []vk.DescriptorType{
		vk.DescriptorTypeUniformBuffer,
		vk.DescriptorTypeStorageBuffer,
		vk.DescriptorTypeCombinedImageSampler,
		vk.DescriptorTypeStorageImage,
		vk.DescriptorTypeInputAttachment,
	}
	sizes := make([]vk.DescriptorPoolSize, len(types))
	for i, t := range types {
		sizes[i] = vk.DescriptorPoolSize{Type: t, DescriptorCount: perType}
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(descriptorPoolCreateFreeDescriptorSet | descriptorPoolCreateUpdateAfterBind),
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	var descriptorPool vk.DescriptorPool
	if err := vulkanError(vk.CreateDescriptorPool(dev.Handle, &poolInfo, nil, &descriptorPool), "vkCreateDescriptorPool"); err != nil {
		vk.DestroyCommandPool(dev.Handle, dev.commandPool, nil)
		return nil, err
	}
	dev.descriptorPool = descriptorPool

	fence, err := NewFence(dev, false)
	if err != nil {
		dev.Destroy()
		return nil, err
	}
	dev.uploadFence = fence

	core.LogInfo("native device ready (queue family %d)", info.QueueFamilyIndex)
	return dev, nil
}

func (d *NativeDevice) createCommandPool() (vk.CommandPool, error) {
	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: d.QueueFamilyIndex,
	}
	var pool vk.CommandPool
	if err := vulkanError(vk.CreateCommandPool(d.Handle, &poolInfo, nil, &pool), "vkCreateCommandPool"); err != nil {
		return nil, err
	}
	return pool, nil
}

func (d *NativeDevice) Destroy() {
	vk.DeviceWaitIdle(d.Handle)
	if d.uploadFence != nil {
		d.uploadFence.Destroy(d)
	}
	d.mu.Lock()
	for cb, pool := range d.secondaryOf {
		vk.FreeCommandBuffers(d.Handle, pool, 1, []vk.CommandBuffer{cb})
		vk.DestroyCommandPool(d.Handle, pool, nil)
	}
	d.secondaryOf = make(map[vk.CommandBuffer]vk.CommandPool)
	d.mu.Unlock()
	if d.descriptorPool != nil {
		vk.DestroyDescriptorPool(d.Handle, d.descriptorPool, nil)
		d.descriptorPool = nil
	}
	if d.commandPool != nil {
		vk.DestroyCommandPool(d.Handle, d.commandPool, nil)
		d.commandPool = nil
	}
}

// FindMemoryIndex returns the first memory type allowed by typeFilter with all propertyFlags, or -1.
func (d *NativeDevice) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) int32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.memoryLoaded {
		vk.GetPhysicalDeviceMemoryProperties(d.PhysicalDevice, &d.memory)
		d.memory.Deref()
		d.memoryLoaded = true
	}

	for i := uint32(0); i < d.memory.MemoryTypeCount; i++ {
		// Check each memory type to see if its bit is set to 1.
		d.memory.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && (d.memory.MemoryTypes[i].PropertyFlags&propertyFlags) == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}

func (d *NativeDevice) CreateRenderPass(info *vk.RenderPassCreateInfo) (vk.RenderPass, error) {
	var rp vk.RenderPass
	err := d.locks.SafeCall(RenderpassManagement, func() error {
		return vulkanError(vk.CreateRenderPass(d.Handle, info, nil, &rp), "vkCreateRenderPass")
	})
	return rp, err
}

func (d *NativeDevice) DestroyRenderPass(renderPass vk.RenderPass) {
	vk.DestroyRenderPass(d.Handle, renderPass, nil)
}

func (d *NativeDevice) CreateFramebuffer(info *vk.FramebufferCreateInfo) (vk.Framebuffer, error) {
	var fb vk.Framebuffer
	err := vulkanError(vk.CreateFramebuffer(d.Handle, info, nil, &fb), "vkCreateFramebuffer")
	return fb, err
}

func (d *NativeDevice) DestroyFramebuffer(framebuffer vk.Framebuffer) {
	vk.DestroyFramebuffer(d.Handle, framebuffer, nil)
}

func (d *NativeDevice) CreateDescriptorSetLayout(info *DescriptorSetLayoutInfo) (vk.DescriptorSetLayout, error) {
	var pinner runtime.Pinner
	defer pinner.Unpin()

	flags := make([]uint32, len(info.BindingFlags))
	for i, f := range info.BindingFlags {
		flags[i] = uint32(f)
	}
	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(info.Bindings)),
		PBindings:    info.Bindings,
	}
	if len(flags) > 0 {
		chain := &descriptorSetLayoutBindingFlagsCreateInfo{
			SType:         structureTypeDescriptorSetLayoutBindingFlagsCreateInfo,
			BindingCount:  uint32(len(flags)),
			PBindingFlags: &flags[0],
		}
		pinner.Pin(chain)
		pinner.Pin(&flags[0])
		createInfo.PNext = unsafe.Pointer(chain)
	}
	if info.UpdateAfterBindPool {
		createInfo.Flags = vk.DescriptorSetLayoutCreateFlags(descriptorSetLayoutCreateUpdateAfterBindPool)
	}

	var layout vk.DescriptorSetLayout
	err := d.locks.SafeCall(DescriptorManagement, func() error {
		return vulkanError(vk.CreateDescriptorSetLayout(d.Handle, &createInfo, nil, &layout), "vkCreateDescriptorSetLayout")
	})
	if err != nil {
		return nil, errors.Wrapf(err, "layout %s", info.Name)
	}
	return layout, nil
}

func (d *NativeDevice) DestroyDescriptorSetLayout(layout vk.DescriptorSetLayout) {
	vk.DestroyDescriptorSetLayout(d.Handle, layout, nil)
}

func (d *NativeDevice) AllocateDescriptorSet(layout vk.DescriptorSetLayout, variableCount uint32) (vk.DescriptorSet, error) {
	var pinner runtime.Pinner
	defer pinner.Unpin()

	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     d.descriptorPool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout},
	}
	if variableCount > 0 {
		counts := []uint32{variableCount}
		chain := &descriptorSetVariableDescriptorCountAllocateInfo{
			SType:              structureTypeDescriptorSetVariableDescriptorCountAllocateInfo,
			DescriptorSetCount: 1,
			PDescriptorCounts:  &counts[0],
		}
		pinner.Pin(chain)
		pinner.Pin(&counts[0])
		allocInfo.PNext = unsafe.Pointer(chain)
	}

	var set vk.DescriptorSet
	err := d.locks.SafeCall(DescriptorManagement, func() error {
		return vulkanError(vk.AllocateDescriptorSets(d.Handle, &allocInfo, &set), "vkAllocateDescriptorSets")
	})
	return set, err
}

func (d *NativeDevice) FreeDescriptorSet(set vk.DescriptorSet) {
	_ = d.locks.SafeCall(DescriptorManagement, func() error {
		return vulkanError(vk.FreeDescriptorSets(d.Handle, d.descriptorPool, 1, &set), "vkFreeDescriptorSets")
	})
}

func (d *NativeDevice) UpdateDescriptorSets(writes []vk.WriteDescriptorSet) {
	_ = d.locks.SafeCall(DescriptorManagement, func() error {
		vk.UpdateDescriptorSets(d.Handle, uint32(len(writes)), writes, 0, nil)
		return nil
	})
}

func (d *NativeDevice) CreateShaderModule(code []byte) (vk.ShaderModule, error) {
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	info := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code)),
		PCode:    words,
	}
	var module vk.ShaderModule
	err := d.locks.SafeCall(ShaderManagement, func() error {
		return vulkanError(vk.CreateShaderModule(d.Handle, &info, nil, &module), "vkCreateShaderModule")
	})
	return module, err
}

func (d *NativeDevice) DestroyShaderModule(module vk.ShaderModule) {
	vk.DestroyShaderModule(d.Handle, module, nil)
}

func (d *NativeDevice) CreatePipelineLayout(info *vk.PipelineLayoutCreateInfo) (vk.PipelineLayout, error) {
	var layout vk.PipelineLayout
	err := d.locks.SafeCall(PipelineManagement, func() error {
		return vulkanError(vk.CreatePipelineLayout(d.Handle, info, nil, &layout), "vkCreatePipelineLayout")
	})
	return layout, err
}

func (d *NativeDevice) DestroyPipelineLayout(layout vk.PipelineLayout) {
	vk.DestroyPipelineLayout(d.Handle, layout, nil)
}

func (d *NativeDevice) CreateGraphicsPipeline(info *vk.GraphicsPipelineCreateInfo) (vk.Pipeline, error) {
	pipelines := make([]vk.Pipeline, 1)
	err := d.locks.SafeCall(PipelineManagement, func() error {
		return vulkanError(vk.CreateGraphicsPipelines(d.Handle, vk.NullPipelineCache, 1,
			[]vk.GraphicsPipelineCreateInfo{*info}, nil, pipelines), "vkCreateGraphicsPipelines")
	})
	return pipelines[0], err
}

func (d *NativeDevice) CreateComputePipeline(info *vk.ComputePipelineCreateInfo) (vk.Pipeline, error) {
	pipelines := make([]vk.Pipeline, 1)
	err := d.locks.SafeCall(PipelineManagement, func() error {
		return vulkanError(vk.CreateComputePipelines(d.Handle, vk.NullPipelineCache, 1,
			[]vk.ComputePipelineCreateInfo{*info}, nil, pipelines), "vkCreateComputePipelines")
	})
	return pipelines[0], err
}

func (d *NativeDevice) DestroyPipeline(pipeline vk.Pipeline) {
	vk.DestroyPipeline(d.Handle, pipeline, nil)
}

func (d *NativeDevice) CreateBuffer(info *BufferInfo) (*Buffer, error) {
	if info.DeviceAddress {
		core.LogWarn("buffer %s: device addresses are not available on the native device", info.Name)
	}
	usage := info.Usage
	if !info.HostVisible {
		usage |= vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)
	}
	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(info.Size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}
	out := &Buffer{
		Size:        info.Size,
		Usage:       usage,
		Name:        info.Name,
		hostVisible: info.HostVisible,
	}

	err := d.locks.SafeCall(BufferManagement, func() error {
		return vulkanError(vk.CreateBuffer(d.Handle, &bufferInfo, nil, &out.Handle), "vkCreateBuffer")
	})
	if err == nil {
		err = d.locks.SafeCall(MemoryManagement, func() error {
			var memReq vk.MemoryRequirements
			vk.GetBufferMemoryRequirements(d.Handle, out.Handle, &memReq)
			memReq.Deref()

			props := vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
			if info.HostVisible {
				props = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) | vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit)
			}
			index := d.FindMemoryIndex(memReq.MemoryTypeBits, props)
			if index < 0 {
				return errors.Newf("buffer %s: no memory type for properties %d", info.Name, props)
			}
			allocInfo := vk.MemoryAllocateInfo{
				SType:           vk.StructureTypeMemoryAllocateInfo,
				AllocationSize:  memReq.Size,
				MemoryTypeIndex: uint32(index),
			}
			if err := vulkanError(vk.AllocateMemory(d.Handle, &allocInfo, nil, &out.Memory), "vkAllocateMemory"); err != nil {
				return err
			}
			if err := vulkanError(vk.BindBufferMemory(d.Handle, out.Handle, out.Memory, 0), "vkBindBufferMemory"); err != nil {
				return err
			}
			if info.HostVisible {
				var data unsafe.Pointer
				if err := vulkanError(vk.MapMemory(d.Handle, out.Memory, 0, vk.DeviceSize(info.Size), 0, &data), "vkMapMemory"); err != nil {
					return err
				}
				out.mapped = unsafe.Slice((*byte)(data), int(info.Size))
			}
			return nil
		})
	}
	if err != nil {
		d.DestroyBuffer(out)
		return nil, errors.Wrapf(err, "buffer %s", info.Name)
	}
	return out, nil
}

func (d *NativeDevice) FlushBuffer(buffer *Buffer) error {
	if buffer.mapped == nil {
		return errors.Wrapf(ErrBufferNotMapped, "buffer %s", buffer.Name)
	}
	return vulkanError(vk.FlushMappedMemoryRanges(d.Handle, 1, []vk.MappedMemoryRange{{
		SType:  vk.StructureTypeMappedMemoryRange,
		Memory: buffer.Memory,
		Offset: 0,
		Size:   vk.DeviceSize(vk.WholeSize),
	}}), "vkFlushMappedMemoryRanges")
}

func (d *NativeDevice) DestroyBuffer(buffer *Buffer) {
	_ = d.locks.SafeCall(BufferManagement, func() error {
		if buffer.Handle != nil {
			vk.DestroyBuffer(d.Handle, buffer.Handle, nil)
			buffer.Handle = nil
		}
		return nil
	})
	_ = d.locks.SafeCall(MemoryManagement, func() error {
		if buffer.mapped != nil {
			vk.UnmapMemory(d.Handle, buffer.Memory)
			buffer.mapped = nil
		}
		if buffer.Memory != nil {
			vk.FreeMemory(d.Handle, buffer.Memory, nil)
			buffer.Memory = nil
		}
		return nil
	})
}

/**
 * AllocateCommandBuffers takes primaries from the shared pool. Every secondary
 * gets a pool of its own: buffers of one pool must not record concurrently.
 */
func (d *NativeDevice) AllocateCommandBuffers(level vk.CommandBufferLevel, count uint32) ([]*CommandBuffer, error) {
	out := make([]*CommandBuffer, 0, count)
	for i := uint32(0); i < count; i++ {
		pool := d.commandPool
		if level == vk.CommandBufferLevelSecondary {
			p, err := d.createCommandPool()
			if err != nil {
				return nil, err
			}
			pool = p
		}
		handles := make([]vk.CommandBuffer, 1)
		allocInfo := vk.CommandBufferAllocateInfo{
			SType:              vk.StructureTypeCommandBufferAllocateInfo,
			CommandPool:        pool,
			Level:              level,
			CommandBufferCount: 1,
		}
		err := d.locks.SafeCall(CommandPoolManagement, func() error {
			return vulkanError(vk.AllocateCommandBuffers(d.Handle, &allocInfo, handles), "vkAllocateCommandBuffers")
		})
		if err != nil {
			if pool != d.commandPool {
				vk.DestroyCommandPool(d.Handle, pool, nil)
			}
			return nil, err
		}
		if pool != d.commandPool {
			d.mu.Lock()
			d.secondaryOf[handles[0]] = pool
			d.mu.Unlock()
		}
		out = append(out, &CommandBuffer{Handle: handles[0], Level: level})
	}
	return out, nil
}

func (d *NativeDevice) FreeCommandBuffers(buffers []*CommandBuffer) {
	for _, cb := range buffers {
		if cb.Handle == nil {
			continue
		}
		d.mu.Lock()
		pool, own := d.secondaryOf[cb.Handle]
		delete(d.secondaryOf, cb.Handle)
		d.mu.Unlock()

		_ = d.locks.SafeCall(CommandPoolManagement, func() error {
			if own {
				vk.FreeCommandBuffers(d.Handle, pool, 1, []vk.CommandBuffer{cb.Handle})
				vk.DestroyCommandPool(d.Handle, pool, nil)
			} else {
				vk.FreeCommandBuffers(d.Handle, d.commandPool, 1, []vk.CommandBuffer{cb.Handle})
			}
			return nil
		})
	}
}

func (d *NativeDevice) BeginCommandBuffer(cmd *CommandBuffer, flags vk.CommandBufferUsageFlags, inheritance *CommandBufferInheritance) error {
	info := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: flags,
	}
	if cmd.Level == vk.CommandBufferLevelSecondary {
		inherit := vk.CommandBufferInheritanceInfo{
			SType: vk.StructureTypeCommandBufferInheritanceInfo,
		}
		if inheritance != nil {
			inherit.RenderPass = inheritance.RenderPass
			inherit.Subpass = inheritance.Subpass
			inherit.Framebuffer = inheritance.Framebuffer
		}
		info.PInheritanceInfo = []vk.CommandBufferInheritanceInfo{inherit}
	}
	return d.recordCall(cmd, func() error {
		return vulkanError(vk.BeginCommandBuffer(cmd.Handle, &info), "vkBeginCommandBuffer")
	})
}

func (d *NativeDevice) EndCommandBuffer(cmd *CommandBuffer) error {
	return d.recordCall(cmd, func() error {
		return vulkanError(vk.EndCommandBuffer(cmd.Handle), "vkEndCommandBuffer")
	})
}

// recordCall serializes begin and end of primaries, which share the device
// command pool. Secondaries own their pool and run unlocked.
func (d *NativeDevice) recordCall(cmd *CommandBuffer, fn func() error) error {
	if cmd.Level == vk.CommandBufferLevelSecondary {
		return fn()
	}
	return d.locks.SafeCall(CommandBufferManagement, fn)
}

func (d *NativeDevice) SubmitOneTime(record func(cmd *CommandBuffer)) error {
	buffers, err := NewCommandBuffers(d, true, 1, "one-time")
	if err != nil {
		return err
	}
	cmd := buffers[0]
	defer cmd.Free(d)

	if err := cmd.Begin(d, true, false, false, nil); err != nil {
		return err
	}
	record(cmd)
	if err := cmd.End(d); err != nil {
		return err
	}

	return d.locks.SafeQueueCall(d.QueueFamilyIndex, func() error {
		if err := d.uploadFence.Reset(d); err != nil {
			return err
		}
		submitInfo := []vk.SubmitInfo{{
			SType:              vk.StructureTypeSubmitInfo,
			CommandBufferCount: 1,
			PCommandBuffers:    []vk.CommandBuffer{cmd.Handle},
		}}
		if err := vulkanError(vk.QueueSubmit(d.Queue, 1, submitInfo, d.uploadFence.Handle), "vkQueueSubmit"); err != nil {
			return err
		}
		cmd.UpdateSubmitted()
		d.uploadFence.IsSignaled = false
		return d.uploadFence.Wait(d, vk.MaxUint64)
	})
}

func (d *NativeDevice) CmdBeginRenderPass(cmd *CommandBuffer, info *vk.RenderPassBeginInfo, contents vk.SubpassContents) {
	vk.CmdBeginRenderPass(cmd.Handle, info, contents)
}

func (d *NativeDevice) CmdNextSubpass(cmd *CommandBuffer, contents vk.SubpassContents) {
	vk.CmdNextSubpass(cmd.Handle, contents)
}

func (d *NativeDevice) CmdEndRenderPass(cmd *CommandBuffer) {
	vk.CmdEndRenderPass(cmd.Handle)
}

func (d *NativeDevice) CmdBindPipeline(cmd *CommandBuffer, bindPoint vk.PipelineBindPoint, pipeline vk.Pipeline) {
	vk.CmdBindPipeline(cmd.Handle, bindPoint, pipeline)
}

func (d *NativeDevice) CmdBindDescriptorSets(cmd *CommandBuffer, bindPoint vk.PipelineBindPoint, layout vk.PipelineLayout, firstSet uint32, sets []vk.DescriptorSet) {
	vk.CmdBindDescriptorSets(cmd.Handle, bindPoint, layout, firstSet, uint32(len(sets)), sets, 0, nil)
}

func (d *NativeDevice) CmdPushConstants(cmd *CommandBuffer, layout vk.PipelineLayout, stages vk.ShaderStageFlags, offset uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	vk.CmdPushConstants(cmd.Handle, layout, stages, offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (d *NativeDevice) CmdSetViewport(cmd *CommandBuffer, viewport vk.Viewport) {
	vk.CmdSetViewport(cmd.Handle, 0, 1, []vk.Viewport{viewport})
}

func (d *NativeDevice) CmdSetScissor(cmd *CommandBuffer, scissor vk.Rect2D) {
	vk.CmdSetScissor(cmd.Handle, 0, 1, []vk.Rect2D{scissor})
}

func (d *NativeDevice) CmdBindVertexBuffers(cmd *CommandBuffer, buffers []vk.Buffer, offsets []vk.DeviceSize) {
	vk.CmdBindVertexBuffers(cmd.Handle, 0, uint32(len(buffers)), buffers, offsets)
}

func (d *NativeDevice) CmdBindIndexBuffer(cmd *CommandBuffer, buffer vk.Buffer, offset vk.DeviceSize, indexType vk.IndexType) {
	vk.CmdBindIndexBuffer(cmd.Handle, buffer, offset, indexType)
}

func (d *NativeDevice) CmdDraw(cmd *CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	vk.CmdDraw(cmd.Handle, vertexCount, instanceCount, firstVertex, firstInstance)
}

func (d *NativeDevice) CmdDrawIndexed(cmd *CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	vk.CmdDrawIndexed(cmd.Handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (d *NativeDevice) CmdDispatch(cmd *CommandBuffer, x, y, z uint32) {
	vk.CmdDispatch(cmd.Handle, x, y, z)
}

func (d *NativeDevice) CmdPipelineBarrier(cmd *CommandBuffer, srcStage, dstStage vk.PipelineStageFlags, srcAccess, dstAccess vk.AccessFlags) {
	barrier := []vk.MemoryBarrier{{
		SType:         vk.StructureTypeMemoryBarrier,
		SrcAccessMask: srcAccess,
		DstAccessMask: dstAccess,
	}}
	vk.CmdPipelineBarrier(cmd.Handle, srcStage, dstStage, 0, 1, barrier, 0, nil, 0, nil)
}

func (d *NativeDevice) CmdCopyBuffer(cmd *CommandBuffer, src, dst *Buffer, size uint64) {
	vk.CmdCopyBuffer(cmd.Handle, src.Handle, dst.Handle, 1, []vk.BufferCopy{{
		SrcOffset: 0,
		DstOffset: 0,
		Size:      vk.DeviceSize(size),
	}})
}

func (d *NativeDevice) CmdExecuteCommands(cmd *CommandBuffer, secondaries []*CommandBuffer) {
	handles := make([]vk.CommandBuffer, 0, len(secondaries))
	for _, s := range secondaries {
		handles = append(handles, s.Handle)
	}
	if len(handles) == 0 {
		return
	}
	vk.CmdExecuteCommands(cmd.Handle, uint32(len(handles)), handles)
}
