package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/spices/engine/core"
)

/**
 * @brief The per frame state shared by every renderer: the device, the
 * swapchain description and one primary command buffer per frame in flight.
 */
type Context struct {
	Device Device

	FramesInFlight uint32
	Extent         vk.Extent2D

	SwapchainFormat vk.Format
	DepthFormat     vk.Format
	// One view per frame in flight, owned by whoever presents.
	SwapchainViews []vk.ImageView

	CurrentFrame uint32

	// One primary per frame in flight.
	Primaries []*CommandBuffer

	// Current generation of framebuffer size. If it does not match
	// FramebufferSizeLastGeneration, passes should be rebuilt.
	FramebufferSizeGeneration uint64
	// The generation of the framebuffer when passes were last built.
	FramebufferSizeLastGeneration uint64
}

func NewContext(dev Device, frames uint32, extent vk.Extent2D, swapchainFormat, depthFormat vk.Format, swapchainViews []vk.ImageView) (*Context, error) {
	if frames == 0 || frames > MaxFramesInFlight {
		return nil, errors.Wrapf(ErrFramesInFlight, "got %d", frames)
	}
	if len(swapchainViews) != int(frames) {
		return nil, errors.Wrapf(ErrSwapchainViews, "%d views for %d frames", len(swapchainViews), frames)
	}
	primaries, err := NewCommandBuffers(dev, true, frames, "frame")
	if err != nil {
		return nil, err
	}
	core.LogDebug("context created: %d frames in flight, extent %dx%d", frames, extent.Width, extent.Height)
	return &Context{
		Device:          dev,
		FramesInFlight:  frames,
		Extent:          extent,
		SwapchainFormat: swapchainFormat,
		DepthFormat:     depthFormat,
		SwapchainViews:  swapchainViews,
		Primaries:       primaries,
	}, nil
}

// Primary returns the primary command buffer of the current frame.
func (c *Context) Primary() *CommandBuffer {
	return c.Primaries[c.CurrentFrame]
}

// Resize records a new extent and bumps the size generation.
func (c *Context) Resize(extent vk.Extent2D, swapchainViews []vk.ImageView) {
	c.Extent = extent
	if swapchainViews != nil {
		c.SwapchainViews = swapchainViews
	}
	c.FramebufferSizeGeneration++
}

func (c *Context) NeedsRebuild() bool {
	return c.FramebufferSizeGeneration != c.FramebufferSizeLastGeneration
}

func (c *Context) MarkRebuilt() {
	c.FramebufferSizeLastGeneration = c.FramebufferSizeGeneration
}

func (c *Context) AdvanceFrame() {
	c.CurrentFrame = (c.CurrentFrame + 1) % c.FramesInFlight
}

func (c *Context) Destroy() {
	for _, cb := range c.Primaries {
		cb.Free(c.Device)
	}
	c.Primaries = nil
}
