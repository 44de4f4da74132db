package renderer

import (
	"fmt"
	"maps"
	"slices"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/spices/engine/core"
	"github.com/spaghettifunk/spices/engine/renderer/vulkan"
)

const (
	colorUsage = vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit) |
		vk.ImageUsageFlags(vk.ImageUsageSampledBit) |
		vk.ImageUsageFlags(vk.ImageUsageInputAttachmentBit)
	depthUsage = vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit) |
		vk.ImageUsageFlags(vk.ImageUsageSampledBit) |
		vk.ImageUsageFlags(vk.ImageUsageInputAttachmentBit)
	storageUsage = vk.ImageUsageFlags(vk.ImageUsageStorageBit) |
		vk.ImageUsageFlags(vk.ImageUsageSampledBit)
)

/**
 * @brief Fluent builder of a renderer's pass. The first failing call is kept
 * and returned by Build; later calls are ignored.
 */
type RendererPassBuilder struct {
	r     *Renderer
	draft *vulkan.PassDraft
	err   error
}

func (r *Renderer) NewRendererPassBuilder(passName string) *RendererPassBuilder {
	r.passName = passName
	return &RendererPassBuilder{r: r, draft: vulkan.NewPassDraft(passName)}
}

func (b *RendererPassBuilder) fail(err error) *RendererPassBuilder {
	if b.err == nil && err != nil {
		core.LogError("%s: %s", b.r.name, err)
		b.err = err
	}
	return b
}

func (b *RendererPassBuilder) AddSubPass(name string) *RendererPassBuilder {
	if b.err != nil {
		return b
	}
	if b.draft.AddSubPass(name) == nil {
		return b.fail(errors.Newf("pass %s: cannot open subpass %s", b.draft.Name, name))
	}
	return b
}

func (b *RendererPassBuilder) AddSwapChainAttachment(configure func(*vulkan.AttachmentConfig)) *RendererPassBuilder {
	if b.err != nil {
		return b
	}
	_, err := b.draft.AddSwapChainAttachment(b.r.backend.Context.SwapchainFormat, configure)
	return b.fail(err)
}

func (b *RendererPassBuilder) layers(name string, typ TextureType) uint32 {
	switch typ {
	case Texture2DCube:
		return 6
	case Texture2DArray:
		return b.r.backend.Resources.Layers(name)
	default:
		return 1
	}
}

// resolve points the attachment at idx to its pool resource, created with the configured format.
func (b *RendererPassBuilder) resolve(idx uint32, typ TextureType, isDepth bool, usage vk.ImageUsageFlags) error {
	a := b.draft.Attachments()[idx]
	if a.View != nil {
		return nil
	}
	extent := b.r.backend.Context.Extent
	info, err := b.r.backend.Resources.AccessResource(ResourceCreateInfo{
		Name:    a.Name,
		Type:    typ,
		Format:  a.Description.Format,
		Width:   extent.Width,
		Height:  extent.Height,
		Layers:  a.Layers,
		IsDepth: isDepth,
		Usage:   usage,
	})
	if err != nil {
		return errors.Wrapf(err, "attachment %s", a.Name)
	}
	a.View = info.ImageView
	return nil
}

// AddColorAttachment adds a color target. The format defaults to the swapchain format.
func (b *RendererPassBuilder) AddColorAttachment(name string, typ TextureType, configure func(*vulkan.AttachmentConfig)) *RendererPassBuilder {
	if b.err != nil {
		return b
	}
	idx, err := b.draft.AddColorAttachment(name, b.r.backend.Context.SwapchainFormat, b.layers(name, typ), nil, configure)
	if err != nil {
		return b.fail(err)
	}
	return b.fail(b.resolve(idx, typ, false, colorUsage))
}

func (b *RendererPassBuilder) AddDepthAttachment(name string, typ TextureType, configure func(*vulkan.AttachmentConfig)) *RendererPassBuilder {
	if b.err != nil {
		return b
	}
	idx, err := b.draft.AddDepthAttachment(name, b.r.backend.Context.DepthFormat, b.layers(name, typ), nil, configure)
	if err != nil {
		return b.fail(err)
	}
	return b.fail(b.resolve(idx, typ, true, depthUsage))
}

// AddInputAttachment reads an attachment an earlier subpass wrote.
func (b *RendererPassBuilder) AddInputAttachment(name string, typ TextureType, configure func(*vulkan.AttachmentConfig)) *RendererPassBuilder {
	if b.err != nil {
		return b
	}
	idx, err := b.draft.AddInputAttachment(name, b.r.backend.Context.SwapchainFormat, nil, configure)
	if err != nil {
		return b.fail(err)
	}
	return b.fail(b.resolve(idx, typ, false, colorUsage))
}

func (b *RendererPassBuilder) AddSelfDependency(srcAccess, dstAccess vk.AccessFlags, srcStage, dstStage vk.PipelineStageFlags) *RendererPassBuilder {
	if b.err != nil {
		return b
	}
	return b.fail(b.draft.AddSelfDependency(srcAccess, dstAccess, srcStage, dstStage))
}

func (b *RendererPassBuilder) EndSubPass() *RendererPassBuilder {
	if b.err != nil {
		return b
	}
	return b.fail(b.draft.EndSubPass())
}

/**
 * Build creates the pass, or replaces it when the renderer already has one.
 * On replacement the subpass buffers move over to the new draft.
 */
func (b *RendererPassBuilder) Build() error {
	if b.err != nil {
		return b.err
	}
	r := b.r
	ctx := r.backend.Context
	if r.pass == nil {
		pass, err := b.draft.Build(r.backend.Device, ctx.FramesInFlight, ctx.Extent, ctx.SwapchainViews)
		if err != nil {
			return err
		}
		r.pass = pass
		return nil
	}

	old := r.pass.Draft
	pass, err := r.pass.Rebuild(r.backend.Device, b.draft, ctx.FramesInFlight, ctx.Extent, ctx.SwapchainViews)
	if err != nil {
		return err
	}
	for _, oldSp := range old.SubPasses() {
		sp, ok := b.draft.SubPass(oldSp.Name)
		for _, k := range oldSp.BufferKeys() {
			buf, _ := oldSp.Buffer(k.Set, k.Binding)
			if buf == nil {
				continue
			}
			if ok {
				sp.SetBuffer(k.Set, k.Binding, buf)
			} else {
				r.backend.Device.DestroyBuffer(buf)
			}
		}
	}
	r.pass = pass
	return nil
}

/**
 * @brief Declares the descriptor sets of one subpass of a renderer. Buffers
 * created here belong to the subpass and are reused while their size holds.
 */
type DescriptorSetBuilder struct {
	r       *Renderer
	subpass *vulkan.SubPass
	owner   vulkan.OwnerKey
	err     error
}

func (r *Renderer) NewDescriptorSetBuilder(subpass string) *DescriptorSetBuilder {
	b := &DescriptorSetBuilder{r: r, owner: r.OwnerKey(subpass)}
	sp, err := r.SubPass(subpass)
	if err != nil {
		b.fail(err)
		return b
	}
	b.subpass = sp
	return b
}

func (b *DescriptorSetBuilder) fail(err error) *DescriptorSetBuilder {
	if b.err == nil && err != nil {
		core.LogError("%s: descriptor sets of %s: %s", b.r.name, b.owner, err)
		b.err = err
	}
	return b
}

func (b *DescriptorSetBuilder) set(set uint32) *vulkan.DescriptorSet {
	return b.r.backend.Registry.Register(b.owner, set)
}

// AddPushConstant declares a push constant block of size bytes for every stage.
func (b *DescriptorSetBuilder) AddPushConstant(size uint32) *DescriptorSetBuilder {
	if b.err != nil {
		return b
	}
	b.subpass.SetPushConstant(size)
	return b
}

func (b *DescriptorSetBuilder) buffer(set, binding uint32, size uint64, create func(vulkan.Device, uint64, string) (*vulkan.Buffer, error)) (*vulkan.Buffer, error) {
	if old, ok := b.subpass.Buffer(set, binding); ok && old != nil {
		if old.Size == size {
			return old, nil
		}
		b.r.backend.Device.DestroyBuffer(old)
		b.subpass.SetBuffer(set, binding, nil)
	}
	buf, err := create(b.r.backend.Device, size, fmt.Sprintf("%s.set%d.binding%d", b.owner, set, binding))
	if err != nil {
		return nil, err
	}
	b.subpass.SetBuffer(set, binding, buf)
	return buf, nil
}

func (b *DescriptorSetBuilder) AddUniformBuffer(set, binding uint32, size uint64, stages vk.ShaderStageFlags) *DescriptorSetBuilder {
	if b.err != nil {
		return b
	}
	buf, err := b.buffer(set, binding, size, vulkan.NewUniformBuffer)
	if err != nil {
		return b.fail(err)
	}
	b.set(set).AddBufferBinding(binding, vk.DescriptorTypeUniformBuffer, stages, buf)
	return b
}

func (b *DescriptorSetBuilder) AddStorageBuffer(set, binding uint32, size uint64, stages vk.ShaderStageFlags) *DescriptorSetBuilder {
	if b.err != nil {
		return b
	}
	buf, err := b.buffer(set, binding, size, vulkan.NewStorageBuffer)
	if err != nil {
		return b.fail(err)
	}
	b.set(set).AddBufferBinding(binding, vk.DescriptorTypeStorageBuffer, stages, buf)
	return b
}

func (b *DescriptorSetBuilder) access(names []string, info func(name string) ResourceCreateInfo) ([]vk.DescriptorImageInfo, error) {
	images := make([]vk.DescriptorImageInfo, 0, len(names))
	for _, name := range names {
		img, err := b.r.backend.Resources.AccessResource(info(name))
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, nil
}

// AddStorageTexture binds render resources as storage images in the general layout.
func (b *DescriptorSetBuilder) AddStorageTexture(set, binding uint32, stages vk.ShaderStageFlags, names []string, format vk.Format) *DescriptorSetBuilder {
	if b.err != nil {
		return b
	}
	extent := b.r.backend.Context.Extent
	images, err := b.access(names, func(name string) ResourceCreateInfo {
		return ResourceCreateInfo{
			Name:   name,
			Format: format,
			Width:  extent.Width,
			Height: extent.Height,
			Usage:  storageUsage,
			Layout: vk.ImageLayoutGeneral,
		}
	})
	if err != nil {
		return b.fail(err)
	}
	b.set(set).AddImageBinding(binding, vk.DescriptorTypeStorageImage, stages, images)
	return b
}

// AddTexture binds textures loaded by name.
func (b *DescriptorSetBuilder) AddTexture(set, binding uint32, stages vk.ShaderStageFlags, names []string) *DescriptorSetBuilder {
	if b.err != nil {
		return b
	}
	images := make([]vk.DescriptorImageInfo, 0, len(names))
	for _, name := range names {
		img, err := b.r.backend.Resources.LoadTexture(name)
		if err != nil {
			return b.fail(err)
		}
		images = append(images, img)
	}
	b.set(set).AddImageBinding(binding, vk.DescriptorTypeCombinedImageSampler, stages, images)
	return b
}

// AddAttachmentTexture samples attachments of other passes.
func (b *DescriptorSetBuilder) AddAttachmentTexture(set, binding uint32, stages vk.ShaderStageFlags, names []string) *DescriptorSetBuilder {
	if b.err != nil {
		return b
	}
	images, err := b.access(names, func(name string) ResourceCreateInfo {
		return ResourceCreateInfo{Name: name, Layout: vk.ImageLayoutShaderReadOnlyOptimal}
	})
	if err != nil {
		return b.fail(err)
	}
	b.set(set).AddImageBinding(binding, vk.DescriptorTypeCombinedImageSampler, stages, images)
	return b
}

// AddInput reads attachments of the same pass through input attachment descriptors.
func (b *DescriptorSetBuilder) AddInput(set, binding uint32, stages vk.ShaderStageFlags, names []string) *DescriptorSetBuilder {
	if b.err != nil {
		return b
	}
	images, err := b.access(names, func(name string) ResourceCreateInfo {
		return ResourceCreateInfo{Name: name, Layout: vk.ImageLayoutShaderReadOnlyOptimal}
	})
	if err != nil {
		return b.fail(err)
	}
	b.set(set).AddImageBinding(binding, vk.DescriptorTypeInputAttachment, stages, images)
	return b
}

// AddBindlessTexture declares the variable sized texture array and seeds it with names.
func (b *DescriptorSetBuilder) AddBindlessTexture(set, binding uint32, stages vk.ShaderStageFlags, names []string) *DescriptorSetBuilder {
	if b.err != nil {
		return b
	}
	capacity := b.r.backend.Config.Renderer.BindlessTextureCapacity
	if capacity == 0 || capacity > vulkan.BindlessTextureMaxCount {
		capacity = vulkan.BindlessTextureMaxCount
	}
	images := make([]vk.DescriptorImageInfo, 0, len(names))
	for _, name := range names {
		img, err := b.r.backend.Resources.LoadTexture(name)
		if err != nil {
			return b.fail(err)
		}
		images = append(images, img)
	}
	b.set(set).AddBindlessBinding(binding, stages, capacity).Images = images
	return b
}

func (b *DescriptorSetBuilder) AddAccelerationStructure(set, binding uint32, stages vk.ShaderStageFlags) *DescriptorSetBuilder {
	if b.err != nil {
		return b
	}
	b.set(set).AddAccelerationBinding(binding, stages)
	return b
}

// Build creates or rewrites every set of the subpass. accel feeds acceleration structure bindings.
func (b *DescriptorSetBuilder) Build(accel vulkan.AccelerationStructure) error {
	if b.err != nil {
		return b.err
	}
	sets := b.r.backend.Registry.GetByName(b.owner)
	for _, i := range slices.Sorted(maps.Keys(sets)) {
		if err := sets[i].BuildDescriptorSet(b.r.backend.Device, accel); err != nil {
			return err
		}
	}
	return nil
}

/**
 * @brief Declares the token layout of a subpass drawn through generated
 * commands. Push constant tokens use the subpass pipeline layout.
 */
type DGCLayoutBuilder struct {
	r       *Renderer
	subpass string
	data    *vulkan.IndirectDrawData
	push    bool
}

func (r *Renderer) NewDGCLayoutBuilder(subpass string) *DGCLayoutBuilder {
	return &DGCLayoutBuilder{
		r:       r,
		subpass: subpass,
		data:    vulkan.NewIndirectDrawData(r.name + "." + subpass),
	}
}

func (b *DGCLayoutBuilder) AddShaderGroupInput() *DGCLayoutBuilder {
	b.data.AddToken(vulkan.IndirectCommandsLayoutToken{Type: vulkan.TokenShaderGroup})
	return b
}

func (b *DGCLayoutBuilder) AddVertexBufferInput(binding uint32) *DGCLayoutBuilder {
	b.data.AddToken(vulkan.IndirectCommandsLayoutToken{
		Type:                vulkan.TokenVertexBuffer,
		VertexBindingUnit:   binding,
		VertexDynamicStride: true,
	})
	return b
}

func (b *DGCLayoutBuilder) AddIndexBufferInput() *DGCLayoutBuilder {
	b.data.AddToken(vulkan.IndirectCommandsLayoutToken{Type: vulkan.TokenIndexBuffer})
	return b
}

// AddPushConstantInput adds a token covering the subpass push constant block.
func (b *DGCLayoutBuilder) AddPushConstantInput() *DGCLayoutBuilder {
	b.data.AddToken(vulkan.IndirectCommandsLayoutToken{Type: vulkan.TokenPushConstant})
	b.push = true
	return b
}

func (b *DGCLayoutBuilder) AddDrawIndexedInput() *DGCLayoutBuilder {
	b.data.AddToken(vulkan.IndirectCommandsLayoutToken{Type: vulkan.TokenDrawIndexed})
	return b
}

func (b *DGCLayoutBuilder) AddDrawMeshTaskInput() *DGCLayoutBuilder {
	b.data.AddToken(vulkan.IndirectCommandsLayoutToken{Type: vulkan.TokenDrawMeshTasks})
	return b
}

// Build creates the native layout and replaces the subpass' previous data.
func (b *DGCLayoutBuilder) Build() error {
	r := b.r
	gdev, ok := vulkan.SupportsGeneratedCommands(r.backend.Device)
	if !ok {
		return errors.Wrapf(ErrDGCUnsupported, "%s.%s", r.name, b.subpass)
	}
	if b.push {
		sp, err := r.SubPass(b.subpass)
		if err != nil {
			return err
		}
		pc, ok := sp.PushConstant()
		if !ok {
			return errors.Newf("%s.%s: push constant token without a push constant block", r.name, b.subpass)
		}
		layout, err := r.SubpassLayout(sp)
		if err != nil {
			return err
		}
		for i := range b.data.Tokens {
			t := &b.data.Tokens[i]
			if t.Type != vulkan.TokenPushConstant {
				continue
			}
			t.PushConstantLayout = layout
			t.PushConstantStages = pc.Stages
			t.PushConstantOffset = pc.Offset
			t.PushConstantSize = pc.Size
		}
	}
	if err := b.data.BuildLayout(gdev, r.bindPoint); err != nil {
		return err
	}
	if old := r.dgc[b.subpass]; old != nil {
		old.Destroy(gdev)
	}
	if p, err := r.backend.Materials.Get(r.MaterialKey(b.subpass, "", VariantDGC)); err == nil {
		b.data.SetPipeline(p.Handle)
	}
	r.dgc[b.subpass] = b.data
	return nil
}
