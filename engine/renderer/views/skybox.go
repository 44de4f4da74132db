package views

import (
	"github.com/spaghettifunk/spices/engine/renderer"
	"github.com/spaghettifunk/spices/engine/renderer/components"
)

// renderSkyBox records the SkyBox subpass inline. A pack without material
// uses the subpass default.
func (p *BasePassRenderer) renderSkyBox(rb *renderer.RenderBehaveBuilder, world renderer.World) error {
	if err := rb.BeginNextSubPass(SkyBoxSubpass); err != nil {
		return err
	}
	if err := rb.SetViewPort(); err != nil {
		return err
	}
	if err := rb.BindDescriptorSet(nil); err != nil {
		return err
	}

	var err error
	renderer.IterWorldComp(world, func(_ renderer.Entity, _ *components.TransformComponent, sky *components.SkyBoxComponent) bool {
		if sky.Mesh == nil {
			return true
		}
		for _, pack := range sky.Mesh.Packs {
			if pack == nil || pack.Geometry == nil {
				continue
			}
			if err = rb.BindPipeline(pack.Material); err != nil {
				return false
			}
			if err = rb.UpdatePushConstant(p.descAddress(pack)); err != nil {
				return false
			}
			if err = rb.DrawIndexed(pack.Geometry, 1); err != nil {
				return false
			}
		}
		return true
	})
	return err
}
