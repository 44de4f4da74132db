package renderer

import (
	"context"
	"encoding/binary"
	"maps"
	"slices"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/spices/engine/core"
	"github.com/spaghettifunk/spices/engine/renderer/components"
	"github.com/spaghettifunk/spices/engine/renderer/vulkan"
)

// ErrSecondaryContents is returned when a command is recorded inline into a
// subpass that was begun for secondary command buffers.
var ErrSecondaryContents = errors.New("subpass records secondary command buffers only")

var (
	passLabelColor    = [4]float32{0.2, 0.6, 1.0, 1.0}
	subpassLabelColor = [4]float32{0.6, 0.8, 1.0, 1.0}
)

/**
 * @brief Records one frame of a renderer into the frame's primary command
 * buffer. The *Async variants record into a secondary handed to the callback
 * of SubmitCmdsParallel, QueueCmdsParallel or IterWorldCompSubmitCmdParallel.
 */
type RenderBehaveBuilder struct {
	r         *Renderer
	frame     uint32
	cmd       *vulkan.CommandBuffer
	subpass   *vulkan.SubPass
	bindPoint vk.PipelineBindPoint
	contents  vk.SubpassContents
	labels    vulkan.DebugLabelDevice
	inPass    bool
	queued    []*core.Future[*vulkan.CommandBuffer]
}

func (r *Renderer) NewRenderBehaveBuilder(frame *FrameInfo) *RenderBehaveBuilder {
	b := &RenderBehaveBuilder{
		r:         r,
		frame:     frame.FrameIndex,
		cmd:       r.backend.Context.Primaries[frame.FrameIndex],
		bindPoint: r.bindPoint,
		contents:  vk.SubpassContentsInline,
	}
	if r.backend.Config.Renderer.DebugLabels {
		if l, ok := r.backend.Device.(vulkan.DebugLabelDevice); ok {
			b.labels = l
		}
	}
	if r.pass != nil && len(r.pass.Draft.SubPasses()) > 0 {
		b.subpass = r.pass.Draft.SubPasses()[0]
	}
	return b
}

func (b *RenderBehaveBuilder) Cmd() *vulkan.CommandBuffer {
	return b.cmd
}

func (b *RenderBehaveBuilder) SubPass() *vulkan.SubPass {
	return b.subpass
}

func (b *RenderBehaveBuilder) beginLabel(name string, color [4]float32) {
	if b.labels != nil {
		b.labels.CmdBeginLabel(b.cmd, name, color)
	}
}

func (b *RenderBehaveBuilder) endLabel() {
	if b.labels != nil {
		b.labels.CmdEndLabel(b.cmd)
	}
}

// inline guards the commands that may not be recorded into the primary buffer.
func (b *RenderBehaveBuilder) inline(op string) error {
	if b.inPass && b.contents == vk.SubpassContentsSecondaryCommandBuffers {
		return errors.Wrapf(ErrSecondaryContents, "%s.%s: %s", b.r.name, b.subpass.Name, op)
	}
	return nil
}

func (b *RenderBehaveBuilder) beginRenderPass(contents vk.SubpassContents) error {
	if b.r.pass == nil {
		return errors.Wrapf(ErrNoRenderPass, "%s", b.r.name)
	}
	b.contents = contents
	b.subpass = b.r.pass.Draft.SubPasses()[0]
	b.beginLabel(b.r.pass.Name, passLabelColor)
	b.r.pass.Begin(b.r.backend.Device, b.cmd, b.frame, contents)
	b.inPass = true
	b.beginLabel(b.subpass.Name, subpassLabelColor)
	return nil
}

// BeginRenderPass begins the pass with its first subpass recorded inline.
func (b *RenderBehaveBuilder) BeginRenderPass() error {
	return b.beginRenderPass(vk.SubpassContentsInline)
}

// BeginRenderPassAsync begins the pass with its first subpass recorded by secondaries.
func (b *RenderBehaveBuilder) BeginRenderPassAsync() error {
	return b.beginRenderPass(vk.SubpassContentsSecondaryCommandBuffers)
}

func (b *RenderBehaveBuilder) nextSubPass(name string, contents vk.SubpassContents) error {
	if !b.inPass {
		return errors.Newf("%s: next subpass %s outside the render pass", b.r.name, name)
	}
	subpasses := b.r.pass.Draft.SubPasses()
	next := int(b.subpass.Index) + 1
	if next >= len(subpasses) || subpasses[next].Name != name {
		return errors.Wrapf(ErrSubpassNotFound, "%s: %s does not follow %s", b.r.name, name, b.subpass.Name)
	}
	b.endLabel()
	b.r.backend.Device.CmdNextSubpass(b.cmd, contents)
	b.subpass = subpasses[next]
	b.contents = contents
	b.beginLabel(name, subpassLabelColor)
	return nil
}

// BeginNextSubPass moves to the named subpass, which must be the next one.
func (b *RenderBehaveBuilder) BeginNextSubPass(name string) error {
	return b.nextSubPass(name, vk.SubpassContentsInline)
}

func (b *RenderBehaveBuilder) BeginNextSubPassAsync(name string) error {
	return b.nextSubPass(name, vk.SubpassContentsSecondaryCommandBuffers)
}

func (b *RenderBehaveBuilder) EndRenderPass() error {
	if !b.inPass {
		return errors.Newf("%s: end of a render pass that was not begun", b.r.name)
	}
	b.endLabel()
	b.r.pass.End(b.r.backend.Device, b.cmd)
	b.endLabel()
	b.inPass = false
	b.contents = vk.SubpassContentsInline
	return nil
}

func (b *RenderBehaveBuilder) setViewPort(cmd *vulkan.CommandBuffer) {
	extent := b.r.backend.Context.Extent
	if b.r.pass != nil {
		extent = b.r.pass.Extent
	}
	dev := b.r.backend.Device
	// flipped: y points up in clip space
	dev.CmdSetViewport(cmd, vk.Viewport{
		X:        0,
		Y:        float32(extent.Height),
		Width:    float32(extent.Width),
		Height:   -float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	})
	dev.CmdSetScissor(cmd, vk.Rect2D{Offset: vk.Offset2D{X: 0, Y: 0}, Extent: extent})
}

func (b *RenderBehaveBuilder) SetViewPort() error {
	if err := b.inline("set viewport"); err != nil {
		return err
	}
	b.setViewPort(b.cmd)
	return nil
}

func (b *RenderBehaveBuilder) SetViewPortAsync(cmd *vulkan.CommandBuffer) {
	b.setViewPort(cmd)
}

func (b *RenderBehaveBuilder) bindPipeline(cmd *vulkan.CommandBuffer, material string) error {
	p, err := b.r.backend.Materials.Get(b.r.MaterialKey(b.subpass.Name, material, VariantDefault))
	if err != nil {
		core.LogError("%s: bind pipeline: %s", b.r.name, err)
		return err
	}
	p.Bind(b.r.backend.Device, cmd)
	return nil
}

// BindPipeline binds the pipeline of material, the subpass default when material is empty.
func (b *RenderBehaveBuilder) BindPipeline(material string) error {
	if err := b.inline("bind pipeline"); err != nil {
		return err
	}
	return b.bindPipeline(b.cmd, b.material(material))
}

func (b *RenderBehaveBuilder) BindPipelineAsync(cmd *vulkan.CommandBuffer, material string) error {
	return b.bindPipeline(cmd, b.material(material))
}

func (b *RenderBehaveBuilder) material(name string) string {
	if name == "" {
		return DefaultMaterialName(b.r.name, b.subpass.Name)
	}
	return name
}

func (b *RenderBehaveBuilder) bindDescriptorSet(cmd *vulkan.CommandBuffer, sets map[uint32]*vulkan.DescriptorSet) error {
	layout, err := b.r.SubpassLayout(b.subpass)
	if err != nil {
		return err
	}
	for _, idx := range slices.Sorted(maps.Keys(sets)) {
		ds := sets[idx]
		if !ds.IsBuilt() {
			return errors.Newf("%s.%s: set %d is not built", b.r.name, b.subpass.Name, idx)
		}
		b.r.backend.Device.CmdBindDescriptorSets(cmd, b.bindPoint, layout, idx, []vk.DescriptorSet{ds.Handle})
	}
	return nil
}

/**
 * BindDescriptorSet binds every set at its own index against the subpass
 * pipeline layout. Without sets, the pipeline sets of the subpass are bound.
 */
func (b *RenderBehaveBuilder) BindDescriptorSet(sets map[uint32]*vulkan.DescriptorSet) error {
	if err := b.inline("bind descriptor sets"); err != nil {
		return err
	}
	return b.bindDescriptorSet(b.cmd, b.sets(sets))
}

func (b *RenderBehaveBuilder) BindDescriptorSetAsync(cmd *vulkan.CommandBuffer, sets map[uint32]*vulkan.DescriptorSet) error {
	return b.bindDescriptorSet(cmd, b.sets(sets))
}

func (b *RenderBehaveBuilder) sets(sets map[uint32]*vulkan.DescriptorSet) map[uint32]*vulkan.DescriptorSet {
	if sets == nil {
		return b.r.PipelineSets(b.subpass.Name, nil)
	}
	return sets
}

func (b *RenderBehaveBuilder) pushConstant(cmd *vulkan.CommandBuffer, data []byte) error {
	pc, ok := b.subpass.PushConstant()
	if !ok {
		return errors.Newf("%s.%s: no push constant block", b.r.name, b.subpass.Name)
	}
	if uint32(len(data)) > pc.Size {
		return errors.Newf("%s.%s: %d push constant bytes exceed the %d byte block", b.r.name, b.subpass.Name, len(data), pc.Size)
	}
	layout, err := b.r.SubpassLayout(b.subpass)
	if err != nil {
		return err
	}
	b.r.backend.Device.CmdPushConstants(cmd, layout, vk.ShaderStageFlags(vk.ShaderStageAll), 0, data)
	return nil
}

func (b *RenderBehaveBuilder) UpdatePushConstant(data []byte) error {
	if err := b.inline("push constants"); err != nil {
		return err
	}
	return b.pushConstant(b.cmd, data)
}

func (b *RenderBehaveBuilder) UpdatePushConstantAsync(cmd *vulkan.CommandBuffer, data []byte) error {
	return b.pushConstant(cmd, data)
}

func (b *RenderBehaveBuilder) writeBuffer(set, binding uint32, data []byte) error {
	buf, ok := b.subpass.Buffer(set, binding)
	if !ok || buf == nil {
		return errors.Newf("%s.%s: no buffer at set %d binding %d", b.r.name, b.subpass.Name, set, binding)
	}
	if err := buf.Write(0, data); err != nil {
		return err
	}
	return b.r.backend.Device.FlushBuffer(buf)
}

// UpdateUniformBuffer writes data at the start of the uniform buffer at (set, binding).
func (b *RenderBehaveBuilder) UpdateUniformBuffer(set, binding uint32, data []byte) error {
	return b.writeBuffer(set, binding, data)
}

func (b *RenderBehaveBuilder) UpdateStorageBuffer(set, binding uint32, data []byte) error {
	return b.writeBuffer(set, binding, data)
}

// Encode packs a fixed size value the way shaders read it.
func Encode[T any](value T) ([]byte, error) {
	return binary.Append(nil, binary.LittleEndian, value)
}

// SizeOf is the packed size of T, for declaring buffers.
func SizeOf[T any]() uint64 {
	var zero T
	return uint64(binary.Size(zero))
}

// UpdateBuffer encodes value into the buffer at (set, binding) of the current subpass.
func UpdateBuffer[T any](b *RenderBehaveBuilder, set, binding uint32, value T) error {
	data, err := Encode(value)
	if err != nil {
		return errors.Wrapf(err, "%s: encode buffer %d/%d", b.r.name, set, binding)
	}
	return b.writeBuffer(set, binding, data)
}

func (b *RenderBehaveBuilder) DrawIndexed(g *vulkan.Geometry, instances uint32) error {
	if err := b.inline("draw"); err != nil {
		return err
	}
	b.DrawIndexedAsync(b.cmd, g, instances)
	return nil
}

func (b *RenderBehaveBuilder) DrawIndexedAsync(cmd *vulkan.CommandBuffer, g *vulkan.Geometry, instances uint32) {
	dev := b.r.backend.Device
	g.Bind(dev, cmd)
	g.Draw(dev, cmd, instances, 0)
}

func (b *RenderBehaveBuilder) PipelineMemoryBarrier(srcAccess, dstAccess vk.AccessFlags, srcStage, dstStage vk.PipelineStageFlags) {
	b.r.backend.Device.CmdPipelineBarrier(b.cmd, srcStage, dstStage, srcAccess, dstAccess)
}

func (b *RenderBehaveBuilder) inheritance() *vulkan.CommandBufferInheritance {
	var fb vk.Framebuffer
	if int(b.frame) < len(b.r.pass.Framebuffers) {
		fb = b.r.pass.Framebuffers[b.frame].Handle
	}
	return &vulkan.CommandBufferInheritance{
		RenderPass:  b.r.pass.Handle,
		Subpass:     b.subpass.Index,
		Framebuffer: fb,
	}
}

func (b *RenderBehaveBuilder) requireSecondary(op string) error {
	if !b.inPass || b.contents != vk.SubpassContentsSecondaryCommandBuffers {
		return errors.Newf("%s: %s needs a subpass begun for secondary command buffers", b.r.name, op)
	}
	return nil
}

// SubmitCmdsParallel records fn into one secondary on the pool and executes it.
func (b *RenderBehaveBuilder) SubmitCmdsParallel(fn func(cmd *vulkan.CommandBuffer) error) error {
	if err := b.requireSecondary("parallel submit"); err != nil {
		return err
	}
	cb, err := b.r.backend.CmdPool.Record(b.frame, b.inheritance(), fn)
	if err != nil {
		return errors.Wrapf(err, "%s.%s: parallel recording", b.r.name, b.subpass.Name)
	}
	b.r.backend.Device.CmdExecuteCommands(b.cmd, []*vulkan.CommandBuffer{cb})
	return nil
}

// Async is SubmitCmdsParallel.
func (b *RenderBehaveBuilder) Async(fn func(cmd *vulkan.CommandBuffer) error) error {
	return b.SubmitCmdsParallel(fn)
}

// QueueCmdsParallel starts recording fn without waiting; ExecuteQueued collects it.
func (b *RenderBehaveBuilder) QueueCmdsParallel(fn func(cmd *vulkan.CommandBuffer) error) error {
	if err := b.requireSecondary("parallel queue"); err != nil {
		return err
	}
	b.queued = append(b.queued, b.r.backend.CmdPool.RecordAsync(b.frame, b.inheritance(), fn))
	return nil
}

// ExecuteQueued waits for every queued recording and executes them in queue order.
func (b *RenderBehaveBuilder) ExecuteQueued() error {
	if len(b.queued) == 0 {
		return nil
	}
	queued := b.queued
	b.queued = nil
	cbs, err := core.WaitAll(context.Background(), queued...)
	if err != nil {
		return errors.Wrapf(err, "%s.%s: queued recording", b.r.name, b.subpass.Name)
	}
	b.r.backend.Device.CmdExecuteCommands(b.cmd, cbs)
	return nil
}

func (b *RenderBehaveBuilder) runDGC(cmd *vulkan.CommandBuffer) error {
	data := b.r.dgc[b.subpass.Name]
	if data == nil || data.SequencesCount == 0 {
		return nil
	}
	gdev, ok := vulkan.SupportsGeneratedCommands(b.r.backend.Device)
	if !ok {
		return errors.Wrapf(ErrDGCUnsupported, "%s", b.r.name)
	}
	p, err := b.r.backend.Materials.Get(b.r.MaterialKey(b.subpass.Name, "", VariantDGC))
	if err != nil {
		return err
	}
	p.Bind(gdev, cmd)
	data.PreprocessDGC(gdev, cmd)
	data.ExecuteDGC(gdev, cmd)
	return nil
}

// RunDGC draws the generated commands of the current subpass. Without data it does nothing.
func (b *RenderBehaveBuilder) RunDGC() error {
	if err := b.inline("generated commands"); err != nil {
		return err
	}
	return b.runDGC(b.cmd)
}

func (b *RenderBehaveBuilder) RunDGCAsync(cmd *vulkan.CommandBuffer) error {
	return b.runDGC(cmd)
}

/**
 * IterWorldCompSubmitCmdParallel records fn for every entity holding a C,
 * striping entity i onto pool thread i mod n. Each thread records into one
 * secondary; the secondaries execute in ascending thread id.
 */
func IterWorldCompSubmitCmdParallel[C any](b *RenderBehaveBuilder, world World, fn func(cmd *vulkan.CommandBuffer, e Entity, transform *components.TransformComponent, comp *C) error) error {
	if err := b.requireSecondary("parallel iteration"); err != nil {
		return err
	}
	type item struct {
		e Entity
		t *components.TransformComponent
		c *C
	}
	var items []item
	IterWorldComp(world, func(e Entity, t *components.TransformComponent, c *C) bool {
		items = append(items, item{e, t, c})
		return true
	})

	fan, err := b.r.backend.CmdPool.BeginFanout(b.frame, b.inheritance())
	if err != nil {
		return err
	}
	for i, it := range items {
		fan.Submit(i, func(cmd *vulkan.CommandBuffer) error {
			return fn(cmd, it.e, it.t, it.c)
		})
	}
	cbs, err := fan.End()
	if err != nil {
		return errors.Wrapf(err, "%s.%s: parallel iteration", b.r.name, b.subpass.Name)
	}
	b.r.backend.Device.CmdExecuteCommands(b.cmd, cbs)
	return nil
}

/**
 * @brief Records a ray tracing renderer: no render pass, the bind point is
 * ray tracing and the pipeline layout is the one of the single subpass.
 */
type RayTracingRenderBehaveBuilder struct {
	*RenderBehaveBuilder
}

func (r *Renderer) NewRayTracingRenderBehaveBuilder(frame *FrameInfo) *RayTracingRenderBehaveBuilder {
	b := r.NewRenderBehaveBuilder(frame)
	b.bindPoint = vulkan.PipelineBindPointRayTracing
	return &RayTracingRenderBehaveBuilder{b}
}

func (b *RayTracingRenderBehaveBuilder) Recording(label string) {
	b.beginLabel(label, passLabelColor)
}

func (b *RayTracingRenderBehaveBuilder) EndRecording() {
	b.endLabel()
}

// TraceRays dispatches one ray per pixel of the renderer's extent.
func (b *RayTracingRenderBehaveBuilder) TraceRays(table *vulkan.ShaderBindingTable) error {
	rt, ok := vulkan.SupportsRayTracing(b.r.backend.Device)
	if !ok {
		return errors.Wrapf(ErrRayTracingUnsupported, "%s", b.r.name)
	}
	extent := b.r.backend.Context.Extent
	rt.CmdTraceRays(b.cmd, table, extent.Width, extent.Height, 1)
	return nil
}

/**
 * @brief Records a compute renderer outside any render pass.
 */
type ComputeRenderBehaveBuilder struct {
	*RenderBehaveBuilder
}

func (r *Renderer) NewComputeRenderBehaveBuilder(frame *FrameInfo) *ComputeRenderBehaveBuilder {
	b := r.NewRenderBehaveBuilder(frame)
	b.bindPoint = vk.PipelineBindPointCompute
	return &ComputeRenderBehaveBuilder{b}
}

func (b *ComputeRenderBehaveBuilder) Recording(label string) {
	b.beginLabel(label, passLabelColor)
}

func (b *ComputeRenderBehaveBuilder) EndRecording() {
	b.endLabel()
}

func (b *ComputeRenderBehaveBuilder) Dispatch(x, y, z uint32) {
	b.r.backend.Device.CmdDispatch(b.cmd, x, y, z)
}
