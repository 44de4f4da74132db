package views

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/spices/engine/core"
	"github.com/spaghettifunk/spices/engine/renderer"
	"github.com/spaghettifunk/spices/engine/renderer/vulkan"
)

const SlateRendererName = "SlateRenderer"

/**
 * @brief Draws the editor UI straight into the swapchain image. The UI itself
 * is an external collaborator plugged in through Draw.
 */
type SlateRenderer struct {
	*renderer.Renderer

	/** @brief Records the UI draw data; nil leaves the cleared image. */
	Draw func(cmd *vulkan.CommandBuffer) error
}

func NewSlateRenderer(b *renderer.Backend) *SlateRenderer {
	return &SlateRenderer{Renderer: renderer.NewRenderer(b, SlateRendererName, vk.PipelineBindPointGraphics, false)}
}

func (s *SlateRenderer) CreateRendererPass() error {
	return s.NewRendererPassBuilder("Slate").
		AddSubPass("Slate").
		AddSwapChainAttachment(func(cfg *vulkan.AttachmentConfig) {
			cfg.Description.InitialLayout = vk.ImageLayoutUndefined
			cfg.Description.LoadOp = vk.AttachmentLoadOpClear
			cfg.EnableBlend = true
		}).
		EndSubPass().
		Build()
}

// CreateDescriptorSet declares nothing; the UI binds its own font atlas.
func (s *SlateRenderer) CreateDescriptorSet() error {
	return nil
}

func (s *SlateRenderer) Render(ts *core.TimeStep, frame *renderer.FrameInfo) error {
	rb := s.NewRenderBehaveBuilder(frame)
	if err := rb.BeginRenderPass(); err != nil {
		return err
	}
	var drawErr error
	if s.Draw != nil {
		drawErr = s.Draw(rb.Cmd())
	}
	return errors.CombineErrors(drawErr, rb.EndRenderPass())
}

// OnWindowResizeOver rebuilds the framebuffers against the new swapchain images.
func (s *SlateRenderer) OnWindowResizeOver() error {
	return renderer.Recreate(s)
}

// OnSlateResize does nothing: the slate follows the window, not the viewport.
func (s *SlateRenderer) OnSlateResize() error {
	return nil
}
