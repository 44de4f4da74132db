package views

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/spices/engine/core"
	"github.com/spaghettifunk/spices/engine/renderer"
	"github.com/spaghettifunk/spices/engine/renderer/components"
	"github.com/spaghettifunk/spices/engine/renderer/vulkan"
)

const (
	BasePassRendererName = "BasePassRenderer"
	MeshSubpass          = "Mesh"
	SkyBoxSubpass        = "SkyBox"
)

// MeshVertexStride is the size of a mesh vertex: position, normal and uv.
const MeshVertexStride = 32

var meshVertexAttributes = []vk.VertexInputAttributeDescription{
	{Location: 0, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: 0},
	{Location: 1, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: 12},
	{Location: 2, Binding: 0, Format: vk.FormatR32g32Sfloat, Offset: 24},
}

// deviceAddresser is implemented by devices with buffer device addresses.
type deviceAddresser interface {
	BufferDeviceAddress(buffer *vulkan.Buffer) uint64
}

/**
 * @brief Fills the geometry buffer. The Mesh subpass draws every mesh of the
 * world through generated commands when the backend enables them, otherwise
 * through one secondary per record thread. The SkyBox subpass follows inline.
 */
type BasePassRenderer struct {
	*renderer.Renderer
}

func NewBasePassRenderer(b *renderer.Backend) *BasePassRenderer {
	return &BasePassRenderer{Renderer: renderer.NewRenderer(b, BasePassRendererName, vk.PipelineBindPointGraphics, true)}
}

// gbuffer clears the attachment on load; format overrides the swapchain format when set.
func gbuffer(format vk.Format) func(*vulkan.AttachmentConfig) {
	return func(cfg *vulkan.AttachmentConfig) {
		cfg.Description.InitialLayout = vk.ImageLayoutUndefined
		cfg.Description.LoadOp = vk.AttachmentLoadOpClear
		if format != vk.FormatUndefined {
			cfg.Description.Format = format
		}
	}
}

func (p *BasePassRenderer) CreateRendererPass() error {
	return p.NewRendererPassBuilder("BasePass").
		AddSubPass(MeshSubpass).
		AddColorAttachment("Albedo", renderer.Texture2D, gbuffer(vk.FormatUndefined)).
		AddColorAttachment("Normal", renderer.Texture2D, gbuffer(vk.FormatUndefined)).
		AddColorAttachment("Roughness", renderer.Texture2D, gbuffer(vk.FormatUndefined)).
		AddColorAttachment("Metallic", renderer.Texture2D, gbuffer(vk.FormatUndefined)).
		AddColorAttachment("Position", renderer.Texture2D, gbuffer(vk.FormatR32g32b32a32Sfloat)).
		AddColorAttachment("ID", renderer.Texture2D, gbuffer(vk.FormatR32Sfloat)).
		AddDepthAttachment("Depth", renderer.Texture2D, gbuffer(vk.FormatUndefined)).
		AddSelfDependency(
			vulkan.AccessCommandPreprocessWrite,
			vk.AccessFlags(vk.AccessIndirectCommandReadBit),
			vulkan.PipelineStageCommandPreprocess,
			vk.PipelineStageFlags(vk.PipelineStageDrawIndirectBit),
		).
		EndSubPass().
		AddSubPass(SkyBoxSubpass).
		AddColorAttachment("Albedo", renderer.Texture2D, nil).
		AddColorAttachment("Position", renderer.Texture2D, nil).
		AddColorAttachment("ID", renderer.Texture2D, nil).
		AddDepthAttachment("Depth", renderer.Texture2D, nil).
		EndSubPass().
		Build()
}

// CreateDescriptorSet declares the push constant both subpasses receive: the
// device address of the drawn pack's descriptor buffer.
func (p *BasePassRenderer) CreateDescriptorSet() error {
	for _, subpass := range []string{MeshSubpass, SkyBoxSubpass} {
		if err := p.NewDescriptorSetBuilder(subpass).
			AddPushConstant(8).
			Build(vulkan.NullAccelerationStructure); err != nil {
			return err
		}
	}
	return nil
}

func (p *BasePassRenderer) CreateDeviceGeneratedCommandsLayout() error {
	return p.NewDGCLayoutBuilder(MeshSubpass).
		AddShaderGroupInput().
		AddVertexBufferInput(0).
		AddIndexBufferInput().
		AddPushConstantInput().
		AddDrawIndexedInput().
		Build()
}

// CreatePipeline compiles the base pass materials without face culling and with the mesh vertex layout.
func (p *BasePassRenderer) CreatePipeline(material *renderer.Material, sp *vulkan.SubPass, layout vk.PipelineLayout, stages []vulkan.ShaderStage) (*vulkan.Pipeline, error) {
	config := p.GraphicsPipelineConfig(sp, material.Name, layout, stages)
	config.CullMode = vk.CullModeNone
	config.Stride = MeshVertexStride
	config.Attributes = meshVertexAttributes
	return vulkan.NewGraphicsPipeline(p.Device(), config)
}

/**
 * OnMeshAddedWorld rebuilds the generated commands of the Mesh subpass, or
 * without them compiles the materials the new meshes use.
 */
func (p *BasePassRenderer) OnMeshAddedWorld(world renderer.World) error {
	if p.DGCData(MeshSubpass) != nil {
		if err := p.FillIndirectRenderData(MeshSubpass, world); err != nil {
			return err
		}
	} else if err := p.registerPackMaterials(MeshSubpass, collectMeshes[components.MeshComponent](world, func(c *components.MeshComponent) *components.Mesh { return c.Mesh })); err != nil {
		return err
	}
	return p.registerPackMaterials(SkyBoxSubpass, collectMeshes[components.SkyBoxComponent](world, func(c *components.SkyBoxComponent) *components.Mesh { return c.Mesh }))
}

func collectMeshes[C any](world renderer.World, mesh func(*C) *components.Mesh) []*components.Mesh {
	var out []*components.Mesh
	renderer.IterWorldComp(world, func(_ renderer.Entity, _ *components.TransformComponent, c *C) bool {
		if m := mesh(c); m != nil {
			out = append(out, m)
		}
		return true
	})
	return out
}

// registerPackMaterials compiles every pack material of meshes not yet cached for subpass.
func (p *BasePassRenderer) registerPackMaterials(subpass string, meshes []*components.Mesh) error {
	materials := p.Backend().Materials
	for _, m := range meshes {
		for _, pack := range m.Packs {
			if pack == nil || pack.Material == "" {
				continue
			}
			if materials.Has(p.MaterialKey(subpass, pack.Material, renderer.VariantDefault)) {
				continue
			}
			if err := p.RegistryMaterial(pack.Material, subpass); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *BasePassRenderer) Render(ts *core.TimeStep, frame *renderer.FrameInfo) error {
	rb := p.NewRenderBehaveBuilder(frame)
	if err := rb.BeginRenderPassAsync(); err != nil {
		return err
	}
	err := p.renderMeshes(rb, frame.World)
	if err == nil {
		err = p.renderSkyBox(rb, frame.World)
	}
	return errors.CombineErrors(err, rb.EndRenderPass())
}

func (p *BasePassRenderer) renderMeshes(rb *renderer.RenderBehaveBuilder, world renderer.World) error {
	if p.DGCData(MeshSubpass) != nil {
		return rb.SubmitCmdsParallel(func(cmd *vulkan.CommandBuffer) error {
			rb.SetViewPortAsync(cmd)
			if err := rb.BindDescriptorSetAsync(cmd, nil); err != nil {
				return err
			}
			return rb.RunDGCAsync(cmd)
		})
	}
	return renderer.IterWorldCompSubmitCmdParallel(rb, world, func(cmd *vulkan.CommandBuffer, _ renderer.Entity, _ *components.TransformComponent, mesh *components.MeshComponent) error {
		if mesh.Mesh == nil {
			return nil
		}
		rb.SetViewPortAsync(cmd)
		if err := rb.BindDescriptorSetAsync(cmd, nil); err != nil {
			return err
		}
		for _, pack := range mesh.Mesh.Packs {
			if pack == nil || pack.Geometry == nil {
				continue
			}
			if err := rb.BindPipelineAsync(cmd, pack.Material); err != nil {
				return err
			}
			if err := rb.UpdatePushConstantAsync(cmd, p.descAddress(pack)); err != nil {
				return err
			}
			rb.DrawIndexedAsync(cmd, pack.Geometry, 1)
		}
		return nil
	})
}

// descAddress is the push constant of a pack, zero when the device has no buffer addresses.
func (p *BasePassRenderer) descAddress(pack *components.MeshPack) []byte {
	var address uint64
	if a, ok := p.Device().(deviceAddresser); ok && pack.Desc != nil {
		address = a.BufferDeviceAddress(pack.Desc)
	}
	return binary.LittleEndian.AppendUint64(nil, address)
}
