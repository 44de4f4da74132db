package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/spices/engine/core"
)

type Framebuffer struct {
	Handle          vk.Framebuffer
	AttachmentCount uint32
	Attachments     []vk.ImageView
	RenderPass      vk.RenderPass
	Width, Height   uint32
	Layers          uint32
}

func FramebufferCreate(dev Device, renderPass vk.RenderPass, width, height, layers uint32, attachments []vk.ImageView) (*Framebuffer, error) {
	outFramebuffer := &Framebuffer{
		Attachments:     make([]vk.ImageView, len(attachments)),
		AttachmentCount: uint32(len(attachments)),
		RenderPass:      renderPass,
		Width:           width,
		Height:          height,
		Layers:          max(layers, 1),
	}
	// Take a copy of the attachments
	copy(outFramebuffer.Attachments, attachments)

	framebufferCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderPass,
		AttachmentCount: outFramebuffer.AttachmentCount,
		PAttachments:    outFramebuffer.Attachments,
		Width:           width,
		Height:          height,
		Layers:          outFramebuffer.Layers,
	}

	handle, err := dev.CreateFramebuffer(&framebufferCreateInfo)
	if err != nil {
		core.LogError("failed to create framebuffer: %s", err)
		return nil, errors.Wrap(err, "failed to create framebuffer")
	}
	outFramebuffer.Handle = handle
	return outFramebuffer, nil
}

func (vfb *Framebuffer) Destroy(dev Device) {
	if vfb.Handle != nil {
		dev.DestroyFramebuffer(vfb.Handle)
	}
	vfb.Attachments = nil
	vfb.Handle = nil
	vfb.AttachmentCount = 0
	vfb.RenderPass = nil
}
