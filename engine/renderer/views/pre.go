package views

import (
	"github.com/go-gl/mathgl/mgl32"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/spices/engine/core"
	"github.com/spaghettifunk/spices/engine/renderer"
	"github.com/spaghettifunk/spices/engine/renderer/vulkan"
)

var allStages = vk.ShaderStageFlags(vk.ShaderStageAll)

// DefaultTexture seeds the bindless texture table.
const DefaultTexture = "default.jpg"

/**
 * @brief The per frame view data every shader reads at set 0 binding 0 (std140).
 */
type ViewUBO struct {
	Projection mgl32.Mat4
	/** @brief Projection with the y axis flipped back, for screen space passes. */
	NProjection mgl32.Mat4
	View        mgl32.Mat4
	InView      mgl32.Mat4
	/** @brief Width, height and their reciprocals. */
	SceneTextureSize mgl32.Vec4
	StableFrames     uint32
	FOV              float32
	_                [2]float32
}

/**
 * @brief The per frame input data at set 0 binding 1 (std140).
 */
type InputUBO struct {
	/** @brief Cursor position in the viewport and its reciprocals. */
	MousePos  mgl32.Vec4
	GameTime  float32
	FrameTime float32
	_         [2]float32
}

/**
 * @brief Owns the sets every other pipeline layout starts with: the view and
 * input uniforms at set 0 and the bindless texture table at set 1. It records
 * an empty pass whose only work is refreshing those uniforms.
 */
type PreRenderer struct {
	*renderer.Renderer

	/** @brief Cursor position inside the viewport, in pixels. */
	Mouse mgl32.Vec2
}

func NewPreRenderer(b *renderer.Backend) *PreRenderer {
	return &PreRenderer{Renderer: renderer.NewRenderer(b, renderer.PreRendererName, vk.PipelineBindPointGraphics, false)}
}

func (p *PreRenderer) CreateRendererPass() error {
	return p.NewRendererPassBuilder(renderer.PreRendererName).
		AddSubPass(renderer.PreRendererName).
		EndSubPass().
		Build()
}

func (p *PreRenderer) CreateDescriptorSet() error {
	return p.NewDescriptorSetBuilder(renderer.PreRendererName).
		AddUniformBuffer(0, 0, renderer.SizeOf[ViewUBO](), allStages).
		AddUniformBuffer(0, 1, renderer.SizeOf[InputUBO](), allStages).
		AddBindlessTexture(vulkan.BindlessTextureSet, vulkan.BindlessTextureBinding, allStages, []string{DefaultTexture}).
		Build(vulkan.NullAccelerationStructure)
}

func (p *PreRenderer) Render(ts *core.TimeStep, frame *renderer.FrameInfo) error {
	rb := p.NewRenderBehaveBuilder(frame)
	if err := rb.BeginRenderPass(); err != nil {
		return err
	}

	camera := p.GetActiveCameraMatrix(frame.World)
	extent := p.Backend().Context.Extent
	w, h := float32(extent.Width), float32(extent.Height)
	nprojection := camera.Projection
	nprojection.Set(1, 1, -nprojection.At(1, 1))
	view := ViewUBO{
		Projection:       camera.Projection,
		NProjection:      nprojection,
		View:             camera.InvView.Inv(),
		InView:           camera.InvView,
		SceneTextureSize: mgl32.Vec4{w, h, 1 / w, 1 / h},
		StableFrames:     camera.StableFrames,
		FOV:              camera.FOV,
	}
	if err := renderer.UpdateBuffer(rb, 0, 0, view); err != nil {
		return err
	}

	frameTime, gameTime := ts.Seconds()
	input := InputUBO{
		MousePos:  mgl32.Vec4{p.Mouse.X(), p.Mouse.Y(), reciprocal(p.Mouse.X()), reciprocal(p.Mouse.Y())},
		GameTime:  gameTime,
		FrameTime: frameTime,
	}
	if err := renderer.UpdateBuffer(rb, 0, 1, input); err != nil {
		return err
	}
	return rb.EndRenderPass()
}

// Destroy also drops the bindless set, which every other unload keeps.
func (p *PreRenderer) Destroy() {
	p.Renderer.Destroy()
	p.Backend().Registry.UnloadForce(vulkan.OwnerKeyOf(renderer.PreRendererName))
}

func reciprocal(v float32) float32 {
	if v == 0 {
		return 0
	}
	return 1 / v
}
