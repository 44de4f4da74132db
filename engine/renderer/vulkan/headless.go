package vulkan

import (
	"sort"
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/spices/engine/core"
)

const headlessHandleBase = 0x10000

// fakeHandle builds a non-zero opaque handle of any pointer sized handle type.
// The values stay far below the Go heap and above the first page.
func fakeHandle[H any](id uint64) H {
	var h H
	*(*unsafe.Pointer)(unsafe.Pointer(&h)) = unsafe.Add(unsafe.Pointer(nil), headlessHandleBase+id<<4)
	return h
}

// HandleID returns the id a HeadlessDevice gave to handle, or 0 for a null handle.
func HandleID[H any](handle H) uint64 {
	p := uintptr(*(*unsafe.Pointer)(unsafe.Pointer(&handle)))
	if p < headlessHandleBase {
		return 0
	}
	return uint64(p-headlessHandleBase) >> 4
}

/**
 * @brief One command recorded by the headless device.
 */
type RecordedCommand struct {
	/** @brief Name of the native call without the vkCmd prefix. */
	Op string
	/** @brief Scalar arguments (handle ids, counts, offsets). */
	Values []uint64
	/** @brief Push constant bytes. */
	Data []byte
	/** @brief Buffers executed by ExecuteCommands. */
	Secondaries []*CommandBuffer
	/** @brief Debug label text. */
	Label string
}

/**
 * @brief A Device that creates fake handles and records every call.
 * It implements all optional capabilities and backs every buffer with host
 * memory so packed data can be inspected.
 */
type HeadlessDevice struct {
	/** @brief Reported by GeneratedCommandsProperties. */
	DGCProperties GeneratedCommandsProperties
	/** @brief Reported by RayTracingProperties. */
	RTProperties  RayTracingProperties

	mu        sync.Mutex
	nextID    uint64
	live      map[string]int
	failures  map[string]error
	commands  map[*CommandBuffer][]RecordedCommand
	memory    map[*Buffer][]byte
	addresses map[*Buffer]uint64

	RenderPassInfos      []vk.RenderPassCreateInfo
	FramebufferInfos     []vk.FramebufferCreateInfo
	SetLayoutInfos       []DescriptorSetLayoutInfo
	VariableCounts       []uint32
	DescriptorWrites     []vk.WriteDescriptorSet
	PipelineLayoutInfos  []vk.PipelineLayoutCreateInfo
	GraphicsPipelines    []vk.GraphicsPipelineCreateInfo
	ComputePipelines     []vk.ComputePipelineCreateInfo
	RayTracingPipelines  []RayTracingPipelineInfo
	IndirectLayoutInfos  []IndirectCommandsLayoutInfo
	IndirectPipelineSrcs [][]vk.Pipeline
	AccelerationWrites   map[vk.DescriptorSet]AccelerationStructure
	AccelerationBuilds   [][]AccelerationInstance
	OneTimeSubmits       int
}

func NewHeadlessDevice() *HeadlessDevice {
	return &HeadlessDevice{
		DGCProperties: GeneratedCommandsProperties{
			MinIndirectCommandsBufferOffsetAlignment: 4,
			MinSequencesIndexBufferOffsetAlignment:   32,
			MaxIndirectSequenceCount:                 1 << 20,
			MaxIndirectCommandsStreamStride:          2048,
		},
		RTProperties: RayTracingProperties{
			ShaderGroupHandleSize:      32,
			ShaderGroupHandleAlignment: 32,
			ShaderGroupBaseAlignment:   64,
		},
		live:               make(map[string]int),
		failures:           make(map[string]error),
		commands:           make(map[*CommandBuffer][]RecordedCommand),
		memory:             make(map[*Buffer][]byte),
		addresses:          make(map[*Buffer]uint64),
		AccelerationWrites: make(map[vk.DescriptorSet]AccelerationStructure),
	}
}

// FailNext makes the next call of op (for example "CreateRenderPass") return err.
func (d *HeadlessDevice) FailNext(op string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[op] = err
}

// create allocates an id for kind unless a failure was injected for op.
func (d *HeadlessDevice) create(op, kind string) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err, ok := d.failures[op]; ok {
		delete(d.failures, op)
		return 0, errors.Wrapf(err, "headless %s", op)
	}
	d.nextID++
	d.live[kind]++
	return d.nextID, nil
}

func (d *HeadlessDevice) destroy(kind string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.live[kind]--
}

// Live returns the number of objects of kind that were created and not destroyed.
func (d *HeadlessDevice) Live(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live[kind]
}

// LiveKinds lists the kinds with live objects, sorted.
func (d *HeadlessDevice) LiveKinds() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for k, n := range d.live {
		if n != 0 {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// FakeImageView returns a fresh image view handle for attachments.
func (d *HeadlessDevice) FakeImageView() vk.ImageView {
	id, _ := d.create("", "image view")
	return fakeHandle[vk.ImageView](id)
}

func (d *HeadlessDevice) FakeImageViews(n int) []vk.ImageView {
	out := make([]vk.ImageView, n)
	for i := range out {
		out[i] = d.FakeImageView()
	}
	return out
}

func (d *HeadlessDevice) record(cmd *CommandBuffer, c RecordedCommand) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commands[cmd] = append(d.commands[cmd], c)
}

// Commands returns a copy of what was recorded into cmd since it last began.
func (d *HeadlessDevice) Commands(cmd *CommandBuffer) []RecordedCommand {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]RecordedCommand, len(d.commands[cmd]))
	copy(out, d.commands[cmd])
	return out
}

// Ops returns the op names recorded into cmd.
func (d *HeadlessDevice) Ops(cmd *CommandBuffer) []string {
	cmds := d.Commands(cmd)
	out := make([]string, len(cmds))
	for i, c := range cmds {
		out[i] = c.Op
	}
	return out
}

// BufferContents returns the backing memory of any buffer, device local ones included.
func (d *HeadlessDevice) BufferContents(b *Buffer) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.memory[b]
}

func (d *HeadlessDevice) CreateRenderPass(info *vk.RenderPassCreateInfo) (vk.RenderPass, error) {
	id, err := d.create("CreateRenderPass", "render pass")
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.RenderPassInfos = append(d.RenderPassInfos, *info)
	d.mu.Unlock()
	return fakeHandle[vk.RenderPass](id), nil
}

func (d *HeadlessDevice) DestroyRenderPass(vk.RenderPass) { d.destroy("render pass") }

func (d *HeadlessDevice) CreateFramebuffer(info *vk.FramebufferCreateInfo) (vk.Framebuffer, error) {
	id, err := d.create("CreateFramebuffer", "framebuffer")
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.FramebufferInfos = append(d.FramebufferInfos, *info)
	d.mu.Unlock()
	return fakeHandle[vk.Framebuffer](id), nil
}

func (d *HeadlessDevice) DestroyFramebuffer(vk.Framebuffer) { d.destroy("framebuffer") }

func (d *HeadlessDevice) CreateDescriptorSetLayout(info *DescriptorSetLayoutInfo) (vk.DescriptorSetLayout, error) {
	id, err := d.create("CreateDescriptorSetLayout", "descriptor set layout")
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.SetLayoutInfos = append(d.SetLayoutInfos, *info)
	d.mu.Unlock()
	return fakeHandle[vk.DescriptorSetLayout](id), nil
}

func (d *HeadlessDevice) DestroyDescriptorSetLayout(vk.DescriptorSetLayout) {
	d.destroy("descriptor set layout")
}

func (d *HeadlessDevice) AllocateDescriptorSet(layout vk.DescriptorSetLayout, variableCount uint32) (vk.DescriptorSet, error) {
	id, err := d.create("AllocateDescriptorSet", "descriptor set")
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.VariableCounts = append(d.VariableCounts, variableCount)
	d.mu.Unlock()
	return fakeHandle[vk.DescriptorSet](id), nil
}

func (d *HeadlessDevice) FreeDescriptorSet(vk.DescriptorSet) { d.destroy("descriptor set") }

func (d *HeadlessDevice) UpdateDescriptorSets(writes []vk.WriteDescriptorSet) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.DescriptorWrites = append(d.DescriptorWrites, writes...)
}

func (d *HeadlessDevice) CreateShaderModule(code []byte) (vk.ShaderModule, error) {
	id, err := d.create("CreateShaderModule", "shader module")
	if err != nil {
		return vk.NullShaderModule, err
	}
	return fakeHandle[vk.ShaderModule](id), nil
}

func (d *HeadlessDevice) DestroyShaderModule(vk.ShaderModule) { d.destroy("shader module") }

func (d *HeadlessDevice) CreatePipelineLayout(info *vk.PipelineLayoutCreateInfo) (vk.PipelineLayout, error) {
	id, err := d.create("CreatePipelineLayout", "pipeline layout")
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.PipelineLayoutInfos = append(d.PipelineLayoutInfos, *info)
	d.mu.Unlock()
	return fakeHandle[vk.PipelineLayout](id), nil
}

func (d *HeadlessDevice) DestroyPipelineLayout(vk.PipelineLayout) { d.destroy("pipeline layout") }

func (d *HeadlessDevice) CreateGraphicsPipeline(info *vk.GraphicsPipelineCreateInfo) (vk.Pipeline, error) {
	id, err := d.create("CreateGraphicsPipeline", "pipeline")
	if err != nil {
		return vk.NullPipeline, err
	}
	d.mu.Lock()
	d.GraphicsPipelines = append(d.GraphicsPipelines, *info)
	d.mu.Unlock()
	return fakeHandle[vk.Pipeline](id), nil
}

func (d *HeadlessDevice) CreateComputePipeline(info *vk.ComputePipelineCreateInfo) (vk.Pipeline, error) {
	id, err := d.create("CreateComputePipeline", "pipeline")
	if err != nil {
		return vk.NullPipeline, err
	}
	d.mu.Lock()
	d.ComputePipelines = append(d.ComputePipelines, *info)
	d.mu.Unlock()
	return fakeHandle[vk.Pipeline](id), nil
}

func (d *HeadlessDevice) DestroyPipeline(vk.Pipeline) { d.destroy("pipeline") }

func (d *HeadlessDevice) CreateBuffer(info *BufferInfo) (*Buffer, error) {
	id, err := d.create("CreateBuffer", "buffer")
	if err != nil {
		return nil, err
	}
	b := &Buffer{
		Handle:      fakeHandle[vk.Buffer](id),
		Memory:      fakeHandle[vk.DeviceMemory](id),
		Size:        info.Size,
		Usage:       info.Usage,
		Name:        info.Name,
		hostVisible: info.HostVisible,
	}
	backing := make([]byte, info.Size)
	if info.HostVisible {
		b.mapped = backing
	}
	d.mu.Lock()
	d.memory[b] = backing
	d.addresses[b] = 0x1_0000_0000 + id<<16
	d.mu.Unlock()
	return b, nil
}

func (d *HeadlessDevice) FlushBuffer(buffer *Buffer) error {
	if buffer.mapped == nil {
		return errors.Wrapf(ErrBufferNotMapped, "buffer %s", buffer.Name)
	}
	return nil
}

func (d *HeadlessDevice) DestroyBuffer(buffer *Buffer) {
	d.mu.Lock()
	delete(d.memory, buffer)
	delete(d.addresses, buffer)
	d.mu.Unlock()
	buffer.mapped = nil
	buffer.Handle = nil
	d.destroy("buffer")
}

func (d *HeadlessDevice) AllocateCommandBuffers(level vk.CommandBufferLevel, count uint32) ([]*CommandBuffer, error) {
	out := make([]*CommandBuffer, 0, count)
	for i := uint32(0); i < count; i++ {
		id, err := d.create("AllocateCommandBuffers", "command buffer")
		if err != nil {
			return nil, err
		}
		out = append(out, &CommandBuffer{Handle: fakeHandle[vk.CommandBuffer](id), Level: level})
	}
	return out, nil
}

func (d *HeadlessDevice) FreeCommandBuffers(buffers []*CommandBuffer) {
	for _, cb := range buffers {
		d.mu.Lock()
		delete(d.commands, cb)
		d.mu.Unlock()
		d.destroy("command buffer")
	}
}

// BeginCommandBuffer drops what cmd recorded before, like an implicit reset.
func (d *HeadlessDevice) BeginCommandBuffer(cmd *CommandBuffer, flags vk.CommandBufferUsageFlags, inheritance *CommandBufferInheritance) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err, ok := d.failures["BeginCommandBuffer"]; ok {
		delete(d.failures, "BeginCommandBuffer")
		return err
	}
	begin := RecordedCommand{Op: "Begin", Values: []uint64{uint64(flags)}}
	if inheritance != nil {
		begin.Values = append(begin.Values, HandleID(inheritance.RenderPass), uint64(inheritance.Subpass), HandleID(inheritance.Framebuffer))
	}
	d.commands[cmd] = []RecordedCommand{begin}
	return nil
}

func (d *HeadlessDevice) EndCommandBuffer(cmd *CommandBuffer) error {
	d.record(cmd, RecordedCommand{Op: "End"})
	return nil
}

func (d *HeadlessDevice) SubmitOneTime(record func(cmd *CommandBuffer)) error {
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
	cmd.UpdateSubmitted()
	d.mu.Lock()
	d.OneTimeSubmits++
	d.mu.Unlock()
	return nil
}

func (d *HeadlessDevice) CmdBeginRenderPass(cmd *CommandBuffer, info *vk.RenderPassBeginInfo, contents vk.SubpassContents) {
	d.record(cmd, RecordedCommand{
		Op:     "BeginRenderPass",
		Values: []uint64{HandleID(info.RenderPass), HandleID(info.Framebuffer), uint64(info.ClearValueCount), uint64(contents)},
	})
}

func (d *HeadlessDevice) CmdNextSubpass(cmd *CommandBuffer, contents vk.SubpassContents) {
	d.record(cmd, RecordedCommand{Op: "NextSubpass", Values: []uint64{uint64(contents)}})
}

func (d *HeadlessDevice) CmdEndRenderPass(cmd *CommandBuffer) {
	d.record(cmd, RecordedCommand{Op: "EndRenderPass"})
}

func (d *HeadlessDevice) CmdBindPipeline(cmd *CommandBuffer, bindPoint vk.PipelineBindPoint, pipeline vk.Pipeline) {
	d.record(cmd, RecordedCommand{Op: "BindPipeline", Values: []uint64{uint64(bindPoint), HandleID(pipeline)}})
}

func (d *HeadlessDevice) CmdBindDescriptorSets(cmd *CommandBuffer, bindPoint vk.PipelineBindPoint, layout vk.PipelineLayout, firstSet uint32, sets []vk.DescriptorSet) {
	values := []uint64{uint64(bindPoint), HandleID(layout), uint64(firstSet)}
	for _, s := range sets {
		values = append(values, HandleID(s))
	}
	d.record(cmd, RecordedCommand{Op: "BindDescriptorSets", Values: values})
}

func (d *HeadlessDevice) CmdPushConstants(cmd *CommandBuffer, layout vk.PipelineLayout, stages vk.ShaderStageFlags, offset uint32, data []byte) {
	d.record(cmd, RecordedCommand{
		Op:     "PushConstants",
		Values: []uint64{HandleID(layout), uint64(stages), uint64(offset)},
		Data:   append([]byte(nil), data...),
	})
}

func (d *HeadlessDevice) CmdSetViewport(cmd *CommandBuffer, viewport vk.Viewport) {
	d.record(cmd, RecordedCommand{Op: "SetViewport", Values: []uint64{uint64(viewport.Width), uint64(viewport.Height)}})
}

func (d *HeadlessDevice) CmdSetScissor(cmd *CommandBuffer, scissor vk.Rect2D) {
	d.record(cmd, RecordedCommand{Op: "SetScissor", Values: []uint64{uint64(scissor.Extent.Width), uint64(scissor.Extent.Height)}})
}

func (d *HeadlessDevice) CmdBindVertexBuffers(cmd *CommandBuffer, buffers []vk.Buffer, offsets []vk.DeviceSize) {
	values := make([]uint64, 0, len(buffers))
	for _, b := range buffers {
		values = append(values, HandleID(b))
	}
	d.record(cmd, RecordedCommand{Op: "BindVertexBuffers", Values: values})
}

func (d *HeadlessDevice) CmdBindIndexBuffer(cmd *CommandBuffer, buffer vk.Buffer, offset vk.DeviceSize, indexType vk.IndexType) {
	d.record(cmd, RecordedCommand{Op: "BindIndexBuffer", Values: []uint64{HandleID(buffer), uint64(offset), uint64(indexType)}})
}

func (d *HeadlessDevice) CmdDraw(cmd *CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	d.record(cmd, RecordedCommand{Op: "Draw", Values: []uint64{uint64(vertexCount), uint64(instanceCount), uint64(firstVertex), uint64(firstInstance)}})
}

func (d *HeadlessDevice) CmdDrawIndexed(cmd *CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	d.record(cmd, RecordedCommand{
		Op:     "DrawIndexed",
		Values: []uint64{uint64(indexCount), uint64(instanceCount), uint64(firstIndex), uint64(uint32(vertexOffset)), uint64(firstInstance)},
	})
}

func (d *HeadlessDevice) CmdDispatch(cmd *CommandBuffer, x, y, z uint32) {
	d.record(cmd, RecordedCommand{Op: "Dispatch", Values: []uint64{uint64(x), uint64(y), uint64(z)}})
}

func (d *HeadlessDevice) CmdPipelineBarrier(cmd *CommandBuffer, srcStage, dstStage vk.PipelineStageFlags, srcAccess, dstAccess vk.AccessFlags) {
	d.record(cmd, RecordedCommand{
		Op:     "PipelineBarrier",
		Values: []uint64{uint64(srcStage), uint64(dstStage), uint64(srcAccess), uint64(dstAccess)},
	})
}

// CmdCopyBuffer copies immediately so tests can read the destination.
func (d *HeadlessDevice) CmdCopyBuffer(cmd *CommandBuffer, src, dst *Buffer, size uint64) {
	d.mu.Lock()
	copy(d.memory[dst][:size], d.memory[src][:size])
	d.mu.Unlock()
	d.record(cmd, RecordedCommand{Op: "CopyBuffer", Values: []uint64{HandleID(src.Handle), HandleID(dst.Handle), size}})
}

func (d *HeadlessDevice) CmdExecuteCommands(cmd *CommandBuffer, secondaries []*CommandBuffer) {
	d.record(cmd, RecordedCommand{Op: "ExecuteCommands", Secondaries: append([]*CommandBuffer(nil), secondaries...)})
}

func (d *HeadlessDevice) GeneratedCommandsProperties() GeneratedCommandsProperties {
	return d.DGCProperties
}

func (d *HeadlessDevice) BufferDeviceAddress(buffer *Buffer) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addresses[buffer]
}

func (d *HeadlessDevice) CreateIndirectCommandsLayout(info *IndirectCommandsLayoutInfo) (IndirectCommandsLayout, error) {
	id, err := d.create("CreateIndirectCommandsLayout", "indirect commands layout")
	if err != nil {
		return NullIndirectCommandsLayout, err
	}
	d.mu.Lock()
	d.IndirectLayoutInfos = append(d.IndirectLayoutInfos, *info)
	d.mu.Unlock()
	return IndirectCommandsLayout(id), nil
}

func (d *HeadlessDevice) DestroyIndirectCommandsLayout(IndirectCommandsLayout) {
	d.destroy("indirect commands layout")
}

// GeneratedCommandsMemoryRequirements reserves 64 bytes of scratch per sequence.
func (d *HeadlessDevice) GeneratedCommandsMemoryRequirements(info *GeneratedCommandsInfo) uint64 {
	return uint64(info.SequencesCount) * 64
}

func (d *HeadlessDevice) CreateIndirectPipeline(info *vk.GraphicsPipelineCreateInfo, sources []vk.Pipeline) (vk.Pipeline, error) {
	id, err := d.create("CreateIndirectPipeline", "pipeline")
	if err != nil {
		return vk.NullPipeline, err
	}
	d.mu.Lock()
	d.GraphicsPipelines = append(d.GraphicsPipelines, *info)
	d.IndirectPipelineSrcs = append(d.IndirectPipelineSrcs, append([]vk.Pipeline(nil), sources...))
	d.mu.Unlock()
	return fakeHandle[vk.Pipeline](id), nil
}

func (d *HeadlessDevice) CmdPreprocessGeneratedCommands(cmd *CommandBuffer, info *GeneratedCommandsInfo) {
	d.record(cmd, RecordedCommand{Op: "PreprocessGeneratedCommands", Values: []uint64{uint64(info.SequencesCount), uint64(info.Layout)}})
}

func (d *HeadlessDevice) CmdExecuteGeneratedCommands(cmd *CommandBuffer, preprocessed bool, info *GeneratedCommandsInfo) {
	pre := uint64(0)
	if preprocessed {
		pre = 1
	}
	d.record(cmd, RecordedCommand{Op: "ExecuteGeneratedCommands", Values: []uint64{uint64(info.SequencesCount), pre, HandleID(info.Pipeline)}})
}

func (d *HeadlessDevice) CreateRayTracingPipeline(info *RayTracingPipelineInfo) (vk.Pipeline, error) {
	id, err := d.create("CreateRayTracingPipeline", "pipeline")
	if err != nil {
		return vk.NullPipeline, err
	}
	d.mu.Lock()
	d.RayTracingPipelines = append(d.RayTracingPipelines, *info)
	d.mu.Unlock()
	return fakeHandle[vk.Pipeline](id), nil
}

func (d *HeadlessDevice) WriteAccelerationStructure(set vk.DescriptorSet, binding uint32, accel AccelerationStructure) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.AccelerationWrites[set] = accel
}

func (d *HeadlessDevice) RayTracingProperties() RayTracingProperties {
	return d.RTProperties
}

// ShaderGroupHandles fills every handle with its group index.
func (d *HeadlessDevice) ShaderGroupHandles(pipeline vk.Pipeline, groupCount uint32) ([]byte, error) {
	size := d.RTProperties.ShaderGroupHandleSize
	out := make([]byte, groupCount*size)
	for g := uint32(0); g < groupCount; g++ {
		for i := uint32(0); i < size; i++ {
			out[g*size+i] = byte(g + 1)
		}
	}
	return out, nil
}

func (d *HeadlessDevice) BuildAccelerationStructure(instances []AccelerationInstance) (AccelerationStructure, error) {
	id, err := d.create("BuildAccelerationStructure", "acceleration structure")
	if err != nil {
		return NullAccelerationStructure, err
	}
	d.mu.Lock()
	d.AccelerationBuilds = append(d.AccelerationBuilds, append([]AccelerationInstance(nil), instances...))
	d.mu.Unlock()
	return AccelerationStructure(id), nil
}

func (d *HeadlessDevice) DestroyAccelerationStructure(AccelerationStructure) {
	d.destroy("acceleration structure")
}

func (d *HeadlessDevice) CmdTraceRays(cmd *CommandBuffer, table *ShaderBindingTable, width, height, depth uint32) {
	d.record(cmd, RecordedCommand{Op: "TraceRays", Values: []uint64{table.RayGen.Address, uint64(width), uint64(height), uint64(depth)}})
}

func (d *HeadlessDevice) CmdBeginLabel(cmd *CommandBuffer, name string, color [4]float32) {
	d.record(cmd, RecordedCommand{Op: "BeginLabel", Label: name})
}

func (d *HeadlessDevice) CmdEndLabel(cmd *CommandBuffer) {
	d.record(cmd, RecordedCommand{Op: "EndLabel"})
}

// LogSummary prints the live object counts, used by the describe command.
func (d *HeadlessDevice) LogSummary() {
	for _, kind := range d.LiveKinds() {
		core.LogDebug("headless device: %d live %s", d.Live(kind), kind)
	}
}
