package renderer

import (
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/spices/engine/core"
	"github.com/spaghettifunk/spices/engine/renderer/components"
	"github.com/spaghettifunk/spices/engine/renderer/vulkan"
)

/**
 * FillIndirectRenderData packs one sequence per mesh pack of the world into
 * the generated commands data of subpass. Shader group 0 is the subpass
 * default material; every other material gets a group in the order the world
 * first uses it. The indirect pipeline is recompiled when the groups change.
 */
func (r *Renderer) FillIndirectRenderData(subpass string, world World) error {
	data := r.dgc[subpass]
	if data == nil {
		return nil
	}
	gdev, ok := vulkan.SupportsGeneratedCommands(r.backend.Device)
	if !ok {
		return errors.Wrapf(ErrDGCUnsupported, "%s", r.name)
	}

	groups := []string{DefaultMaterialName(r.name, subpass)}
	var sequences []vulkan.IndirectSequence
	IterWorldComp(world, func(e Entity, _ *components.TransformComponent, mesh *components.MeshComponent) bool {
		if mesh.Mesh == nil {
			return true
		}
		for _, pack := range mesh.Mesh.Packs {
			if pack == nil || pack.Geometry == nil {
				core.LogWarn("%s: entity %d has an empty mesh pack", r.name, e)
				continue
			}
			group := 0
			if pack.Material != "" {
				group = slices.Index(groups, pack.Material)
				if group < 0 {
					groups = append(groups, pack.Material)
					group = len(groups) - 1
				}
			}
			g := pack.Geometry
			sequences = append(sequences, vulkan.IndirectSequence{
				ShaderGroup:   uint32(group),
				VertexBuffer:  g.VertexBuffer,
				VertexStride:  g.VertexElementSize,
				IndexBuffer:   g.IndexBuffer,
				PushConstant:  pack.Desc,
				IndexCount:    g.IndexCount,
				InstanceCount: 1,
				TaskCount:     pack.TaskCount,
			})
		}
		return true
	})

	for _, m := range groups[1:] {
		if r.backend.Materials.Has(r.MaterialKey(subpass, m, VariantDefault)) {
			continue
		}
		if err := r.RegistryMaterial(m, subpass); err != nil {
			return err
		}
	}
	if !slices.Equal(groups, r.dgcMaterials[subpass]) {
		if err := r.RegistryDGCPipeline(subpass, groups); err != nil {
			return err
		}
	}

	pipeline, err := r.backend.Materials.Get(r.MaterialKey(subpass, "", VariantDGC))
	if err != nil {
		return err
	}
	if err := data.Fill(gdev, pipeline.Handle, r.bindPoint, sequences); err != nil {
		return err
	}
	core.LogDebug("%s.%s: %d indirect sequences over %d shader groups", r.name, subpass, len(sequences), len(groups))
	return nil
}
