package views

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/spices/engine/core"
	"github.com/spaghettifunk/spices/engine/renderer"
	"github.com/spaghettifunk/spices/engine/renderer/vulkan"
)

const (
	ParticleRendererName = "ParticleRenderer"
	ParticleSubpass      = "Particle"
	ParticleTarget       = "Particle"
)

// ParticleGroups is the workgroup count of one simulation dispatch.
var ParticleGroups = [3]uint32{16, 1, 1}

/**
 * @brief Simulates particles in a compute shader writing the Particle storage image.
 */
type ParticleRenderer struct {
	*renderer.Renderer
}

func NewParticleRenderer(b *renderer.Backend) *ParticleRenderer {
	return &ParticleRenderer{Renderer: renderer.NewRenderer(b, ParticleRendererName, vk.PipelineBindPointCompute, true)}
}

func (p *ParticleRenderer) CreateRendererPass() error {
	return p.NewRendererPassBuilder(ParticleSubpass).
		AddSubPass(ParticleSubpass).
		EndSubPass().
		Build()
}

func (p *ParticleRenderer) CreateDescriptorSet() error {
	return p.NewDescriptorSetBuilder(ParticleSubpass).
		AddStorageTexture(2, 0, vk.ShaderStageFlags(vk.ShaderStageComputeBit), []string{ParticleTarget}, vk.FormatR32g32b32a32Sfloat).
		Build(vulkan.NullAccelerationStructure)
}

func (p *ParticleRenderer) Render(ts *core.TimeStep, frame *renderer.FrameInfo) error {
	rb := p.NewComputeRenderBehaveBuilder(frame)
	rb.Recording(ParticleSubpass)
	defer rb.EndRecording()

	if err := rb.BindDescriptorSet(nil); err != nil {
		return err
	}
	if err := rb.BindPipeline(""); err != nil {
		return err
	}
	rb.Dispatch(ParticleGroups[0], ParticleGroups[1], ParticleGroups[2])
	return nil
}
