package views

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/spices/engine/core"
	"github.com/spaghettifunk/spices/engine/renderer"
	"github.com/spaghettifunk/spices/engine/renderer/components"
	"github.com/spaghettifunk/spices/engine/renderer/vulkan"
)

const (
	RayTracingRendererName = "RayTracingRenderer"
	RayTracingSubpass      = "RayTracing"
	// RayTracingTarget is the storage image the ray generation shader writes.
	RayTracingTarget = "Ray"
	// SkyTexture is sampled by the miss shader.
	SkyTexture = "skybox"
	// MaxMeshDescs bounds the instances of the acceleration structure.
	MaxMeshDescs = 1 << 14
)

var (
	raygenStages = vk.ShaderStageFlags(vulkan.ShaderStageRaygen)
	missStages   = vk.ShaderStageFlags(vulkan.ShaderStageMiss)
	hitStages    = vk.ShaderStageFlags(vulkan.ShaderStageClosestHit)
)

/**
 * @brief The vertex and index buffer addresses of one instance, indexed by
 * its custom index in the closest hit shader.
 */
type MeshDesc struct {
	VertexAddress uint64
	IndexAddress  uint64
}

/**
 * @brief Traces the world into the Ray storage image. The acceleration
 * structure and the shader binding table are rebuilt whenever meshes are
 * added to the world; until then nothing is traced.
 */
type RayTracingRenderer struct {
	*renderer.Renderer

	rt          vulkan.RayTracingDevice
	accel       vulkan.AccelerationStructure
	sbt         *vulkan.ShaderBindingTableBuffer
	sbtPipeline vk.Pipeline

	descs       []MeshDesc
	directional []components.DirectionalLight
	points      []components.PointLight
}

// NewRayTracingRenderer fails with ErrRayTracingUnsupported on devices without the capability.
func NewRayTracingRenderer(b *renderer.Backend) (*RayTracingRenderer, error) {
	rt, ok := vulkan.SupportsRayTracing(b.Device)
	if !ok {
		return nil, errors.Wrapf(renderer.ErrRayTracingUnsupported, "%s", RayTracingRendererName)
	}
	return &RayTracingRenderer{
		Renderer:    renderer.NewRenderer(b, RayTracingRendererName, vulkan.PipelineBindPointRayTracing, true),
		rt:          rt,
		directional: make([]components.DirectionalLight, components.DirectionalLightBufferMaxNum),
		points:      make([]components.PointLight, components.PointLightBufferMaxNum),
	}, nil
}

func (p *RayTracingRenderer) CreateRendererPass() error {
	return p.NewRendererPassBuilder(RayTracingSubpass).
		AddSubPass(RayTracingSubpass).
		EndSubPass().
		Build()
}

// CreateDescriptorSet declares sets 2 and 3; 0 and 1 belong to the pre-renderer.
func (p *RayTracingRenderer) CreateDescriptorSet() error {
	return p.NewDescriptorSetBuilder(RayTracingSubpass).
		AddAccelerationStructure(2, 0, raygenStages|hitStages).
		AddStorageTexture(2, 1, raygenStages, []string{RayTracingTarget}, vk.FormatR32g32b32a32Sfloat).
		AddStorageBuffer(2, 2, renderer.SizeOf[[MaxMeshDescs]MeshDesc](), hitStages).
		AddStorageBuffer(2, 3, renderer.SizeOf[[components.DirectionalLightBufferMaxNum]components.DirectionalLight](), hitStages).
		AddStorageBuffer(2, 4, renderer.SizeOf[[components.PointLightBufferMaxNum]components.PointLight](), hitStages).
		AddTexture(3, 0, missStages, []string{SkyTexture}).
		Build(p.accel)
}

/**
 * OnMeshAddedWorld rebuilds the acceleration structure over every mesh pack
 * of the world, rewrites the sets against it and refreshes the shader
 * binding table.
 */
func (p *RayTracingRenderer) OnMeshAddedWorld(world renderer.World) error {
	var instances []vulkan.AccelerationInstance
	var descs []MeshDesc
	renderer.IterWorldComp(world, func(e renderer.Entity, t *components.TransformComponent, mesh *components.MeshComponent) bool {
		if mesh.Mesh == nil {
			return true
		}
		for _, pack := range mesh.Mesh.Packs {
			if pack == nil || pack.Geometry == nil {
				continue
			}
			if len(instances) == MaxMeshDescs {
				core.LogWarn("%s: more than %d mesh packs, entity %d dropped", p.Name(), MaxMeshDescs, e)
				return false
			}
			g := pack.Geometry
			instances = append(instances, vulkan.AccelerationInstance{
				Transform:    t.RowMajor3x4(),
				CustomIndex:  uint32(len(instances)),
				VertexBuffer: g.VertexBuffer,
				VertexStride: g.VertexElementSize,
				VertexCount:  g.VertexCount,
				IndexBuffer:  g.IndexBuffer,
				IndexCount:   g.IndexCount,
			})
			descs = append(descs, MeshDesc{
				VertexAddress: p.rt.BufferDeviceAddress(g.VertexBuffer),
				IndexAddress:  p.rt.BufferDeviceAddress(g.IndexBuffer),
			})
		}
		return true
	})

	p.destroyAccel()
	if len(instances) == 0 {
		return nil
	}
	accel, err := p.rt.BuildAccelerationStructure(instances)
	if err != nil {
		return errors.Wrapf(err, "%s: acceleration structure", p.Name())
	}
	p.accel = accel
	p.descs = descs
	if err := p.CreateDescriptorSet(); err != nil {
		return err
	}
	core.LogDebug("%s: acceleration structure over %d instances", p.Name(), len(instances))
	return p.refreshShaderBindingTable()
}

// refreshShaderBindingTable rebuilds the table when the default pipeline changed since it was built.
func (p *RayTracingRenderer) refreshShaderBindingTable() error {
	pipeline, err := p.Backend().Materials.Get(p.MaterialKey(RayTracingSubpass, renderer.DefaultMaterialName(p.Name(), RayTracingSubpass), renderer.VariantDefault))
	if err != nil {
		return err
	}
	if p.sbt != nil && p.sbtPipeline == pipeline.Handle {
		return nil
	}
	sbt, err := vulkan.NewShaderBindingTable(p.rt, pipeline, 1, 1)
	if err != nil {
		return err
	}
	if p.sbt != nil {
		p.sbt.Destroy(p.Device())
	}
	p.sbt = sbt
	p.sbtPipeline = pipeline.Handle
	return nil
}

func (p *RayTracingRenderer) Render(ts *core.TimeStep, frame *renderer.FrameInfo) error {
	if p.accel == vulkan.NullAccelerationStructure {
		return nil
	}
	if err := p.refreshShaderBindingTable(); err != nil {
		return err
	}

	rb := p.NewRayTracingRenderBehaveBuilder(frame)
	rb.Recording(RayTracingSubpass)
	defer rb.EndRecording()

	if err := rb.BindDescriptorSet(nil); err != nil {
		return err
	}
	if err := rb.BindPipeline(""); err != nil {
		return err
	}
	descs, err := renderer.Encode(p.descs)
	if err != nil {
		return err
	}
	if err := rb.UpdateStorageBuffer(2, 2, descs); err != nil {
		return err
	}
	n := p.GetDirectionalLight(frame.World, p.directional)
	if err := renderer.UpdateBuffer(rb.RenderBehaveBuilder, 2, 3, p.directional[:n+1]); err != nil {
		return err
	}
	n = p.GetPointLight(frame.World, p.points)
	if err := renderer.UpdateBuffer(rb.RenderBehaveBuilder, 2, 4, p.points[:n+1]); err != nil {
		return err
	}
	return rb.TraceRays(&p.sbt.Table)
}

func (p *RayTracingRenderer) destroyAccel() {
	if p.accel != vulkan.NullAccelerationStructure {
		p.rt.DestroyAccelerationStructure(p.accel)
		p.accel = vulkan.NullAccelerationStructure
	}
	p.descs = nil
}

func (p *RayTracingRenderer) Destroy() {
	if p.sbt != nil {
		p.sbt.Destroy(p.Device())
		p.sbt = nil
	}
	p.destroyAccel()
	p.Renderer.Destroy()
}
