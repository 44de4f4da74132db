package vulkan

import (
	vk "github.com/goki/vulkan"
)

/**
 * @brief The native API surface consumed by the orchestration core.
 * NativeDevice forwards to the driver, HeadlessDevice records the calls.
 */
type Device interface {
	// Render passes and framebuffers.
	CreateRenderPass(info *vk.RenderPassCreateInfo) (vk.RenderPass, error)
	DestroyRenderPass(renderPass vk.RenderPass)
	CreateFramebuffer(info *vk.FramebufferCreateInfo) (vk.Framebuffer, error)
	DestroyFramebuffer(framebuffer vk.Framebuffer)

	// Descriptors.
	CreateDescriptorSetLayout(info *DescriptorSetLayoutInfo) (vk.DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(layout vk.DescriptorSetLayout)
	AllocateDescriptorSet(layout vk.DescriptorSetLayout, variableCount uint32) (vk.DescriptorSet, error)
	FreeDescriptorSet(set vk.DescriptorSet)
	UpdateDescriptorSets(writes []vk.WriteDescriptorSet)

	// Pipelines.
	CreateShaderModule(code []byte) (vk.ShaderModule, error)
	DestroyShaderModule(module vk.ShaderModule)
	CreatePipelineLayout(info *vk.PipelineLayoutCreateInfo) (vk.PipelineLayout, error)
	DestroyPipelineLayout(layout vk.PipelineLayout)
	CreateGraphicsPipeline(info *vk.GraphicsPipelineCreateInfo) (vk.Pipeline, error)
	CreateComputePipeline(info *vk.ComputePipelineCreateInfo) (vk.Pipeline, error)
	DestroyPipeline(pipeline vk.Pipeline)

	// Buffers.
	CreateBuffer(info *BufferInfo) (*Buffer, error)
	FlushBuffer(buffer *Buffer) error
	DestroyBuffer(buffer *Buffer)

	// Command buffers.
	AllocateCommandBuffers(level vk.CommandBufferLevel, count uint32) ([]*CommandBuffer, error)
	FreeCommandBuffers(buffers []*CommandBuffer)
	BeginCommandBuffer(cmd *CommandBuffer, flags vk.CommandBufferUsageFlags, inheritance *CommandBufferInheritance) error
	EndCommandBuffer(cmd *CommandBuffer) error
	SubmitOneTime(record func(cmd *CommandBuffer)) error

	// Recording.
	CmdBeginRenderPass(cmd *CommandBuffer, info *vk.RenderPassBeginInfo, contents vk.SubpassContents)
	CmdNextSubpass(cmd *CommandBuffer, contents vk.SubpassContents)
	CmdEndRenderPass(cmd *CommandBuffer)
	CmdBindPipeline(cmd *CommandBuffer, bindPoint vk.PipelineBindPoint, pipeline vk.Pipeline)
	CmdBindDescriptorSets(cmd *CommandBuffer, bindPoint vk.PipelineBindPoint, layout vk.PipelineLayout, firstSet uint32, sets []vk.DescriptorSet)
	CmdPushConstants(cmd *CommandBuffer, layout vk.PipelineLayout, stages vk.ShaderStageFlags, offset uint32, data []byte)
	CmdSetViewport(cmd *CommandBuffer, viewport vk.Viewport)
	CmdSetScissor(cmd *CommandBuffer, scissor vk.Rect2D)
	CmdBindVertexBuffers(cmd *CommandBuffer, buffers []vk.Buffer, offsets []vk.DeviceSize)
	CmdBindIndexBuffer(cmd *CommandBuffer, buffer vk.Buffer, offset vk.DeviceSize, indexType vk.IndexType)
	CmdDraw(cmd *CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32)
	CmdDrawIndexed(cmd *CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	CmdDispatch(cmd *CommandBuffer, x, y, z uint32)
	CmdPipelineBarrier(cmd *CommandBuffer, srcStage, dstStage vk.PipelineStageFlags, srcAccess, dstAccess vk.AccessFlags)
	CmdCopyBuffer(cmd *CommandBuffer, src, dst *Buffer, size uint64)
	CmdExecuteCommands(cmd *CommandBuffer, secondaries []*CommandBuffer)
}

/**
 * @brief Optional capability: VK_NV_device_generated_commands plus buffer device addresses.
 */
type GeneratedCommandsDevice interface {
	Device
	GeneratedCommandsProperties() GeneratedCommandsProperties
	BufferDeviceAddress(buffer *Buffer) uint64
	CreateIndirectCommandsLayout(info *IndirectCommandsLayoutInfo) (IndirectCommandsLayout, error)
	DestroyIndirectCommandsLayout(layout IndirectCommandsLayout)
	GeneratedCommandsMemoryRequirements(info *GeneratedCommandsInfo) uint64
	// CreateIndirectPipeline compiles a graphics pipeline whose shader groups
	// are the given source pipelines, selectable by the shader-group token.
	CreateIndirectPipeline(info *vk.GraphicsPipelineCreateInfo, sources []vk.Pipeline) (vk.Pipeline, error)
	CmdPreprocessGeneratedCommands(cmd *CommandBuffer, info *GeneratedCommandsInfo)
	CmdExecuteGeneratedCommands(cmd *CommandBuffer, preprocessed bool, info *GeneratedCommandsInfo)
}

/**
 * @brief Optional capability: VK_KHR_ray_tracing_pipeline and acceleration structures.
 */
type RayTracingDevice interface {
	Device
	RayTracingProperties() RayTracingProperties
	BufferDeviceAddress(buffer *Buffer) uint64
	CreateRayTracingPipeline(info *RayTracingPipelineInfo) (vk.Pipeline, error)
	// ShaderGroupHandles returns groupCount handles packed at the handle size.
	ShaderGroupHandles(pipeline vk.Pipeline, groupCount uint32) ([]byte, error)
	// BuildAccelerationStructure builds a top level structure over the instances.
	BuildAccelerationStructure(instances []AccelerationInstance) (AccelerationStructure, error)
	DestroyAccelerationStructure(accel AccelerationStructure)
	WriteAccelerationStructure(set vk.DescriptorSet, binding uint32, accel AccelerationStructure)
	CmdTraceRays(cmd *CommandBuffer, table *ShaderBindingTable, width, height, depth uint32)
}

/**
 * @brief Optional capability: VK_EXT_debug_utils command buffer labels.
 */
type DebugLabelDevice interface {
	Device
	CmdBeginLabel(cmd *CommandBuffer, name string, color [4]float32)
	CmdEndLabel(cmd *CommandBuffer)
}

/** @brief Alignment limits reported by the device-generated-commands extension. */
type GeneratedCommandsProperties struct {
	/** @brief Required alignment of every token stream offset within the input buffer. */
	MinIndirectCommandsBufferOffsetAlignment uint32
	/** @brief Required alignment of the sequences index buffer. */
	MinSequencesIndexBufferOffsetAlignment uint32
	/** @brief Largest accepted sequence count. */
	MaxIndirectSequenceCount uint32
	/** @brief Largest stride of a single token stream. */
	MaxIndirectCommandsStreamStride uint32
}

// IndirectCommandsLayout is an opaque VkIndirectCommandsLayoutNV handle.
type IndirectCommandsLayout uint64

// AccelerationStructure is an opaque VkAccelerationStructureKHR handle.
type AccelerationStructure uint64

const NullIndirectCommandsLayout IndirectCommandsLayout = 0
const NullAccelerationStructure AccelerationStructure = 0

/** @brief Shader group handle limits of the ray tracing extension. */
type RayTracingProperties struct {
	ShaderGroupHandleSize      uint32
	ShaderGroupHandleAlignment uint32
	ShaderGroupBaseAlignment   uint32
}

/** @brief One mesh instance of a top level acceleration structure. */
type AccelerationInstance struct {
	/** @brief Row major 3x4 object to world transform. */
	Transform [12]float32
	/** @brief Exposed to hit shaders as gl_InstanceCustomIndexEXT. */
	CustomIndex  uint32
	VertexBuffer *Buffer
	VertexStride uint32
	VertexCount  uint32
	IndexBuffer  *Buffer
	IndexCount   uint32
}

/** @brief The shader groups of a ray tracing pipeline. */
type RayTracingPipelineInfo struct {
	Layout       vk.PipelineLayout
	Stages       []vk.PipelineShaderStageCreateInfo
	MaxRecursion uint32
}

/** @brief Device address ranges of the ray generation, miss, hit and callable records. */
type ShaderBindingTable struct {
	RayGen, Miss, Hit, Callable StridedRegion
}

type StridedRegion struct {
	Address uint64
	Stride  uint64
	Size    uint64
}

// SupportsGeneratedCommands reports whether dev implements the DGC capability.
func SupportsGeneratedCommands(dev Device) (GeneratedCommandsDevice, bool) {
	g, ok := dev.(GeneratedCommandsDevice)
	return g, ok
}

// SupportsRayTracing reports whether dev implements the ray tracing capability.
func SupportsRayTracing(dev Device) (RayTracingDevice, bool) {
	r, ok := dev.(RayTracingDevice)
	return r, ok
}
