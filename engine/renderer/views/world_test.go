package views

import (
	"encoding/binary"
	"slices"
	"testing"

	"github.com/spaghettifunk/spices/engine/core"
	"github.com/spaghettifunk/spices/engine/renderer"
	"github.com/spaghettifunk/spices/engine/renderer/components"
)

func TestBasePassGeneratedCommands(t *testing.T) {
	b, dev := newTestBackend(t, nil)
	base := NewBasePassRenderer(b)
	push(t, b, NewPreRenderer(b), base)

	world, _ := meshWorld(t, dev, "", "Rock")
	sky := newMesh(t, dev, 9, "")
	renderer.AddComponent(world, world.CreateEntity(), &components.SkyBoxComponent{Mesh: sky})
	primary := drawFrame(t, b, nil, world)

	wantGroups := []string{"BasePassRenderer.Mesh.Default", "Rock"}
	if got := base.DGCMaterials(MeshSubpass); !slices.Equal(got, wantGroups) {
		t.Fatalf("shader groups = %v, want %v", got, wantGroups)
	}
	if got := base.DGCData(MeshSubpass).SequencesCount; got != 2 {
		t.Fatalf("%d sequences, want 2", got)
	}

	want := append([]string{"Begin"}, preOps...)
	want = append(want,
		"BeginLabel", "BeginRenderPass", "BeginLabel",
		"ExecuteCommands",
		"EndLabel", "NextSubpass", "BeginLabel",
		"SetViewport", "SetScissor", "BindDescriptorSets", "BindDescriptorSets",
		"BindPipeline", "PushConstants", "BindVertexBuffers", "BindIndexBuffer", "DrawIndexed",
		"EndLabel", "EndRenderPass", "EndLabel", "End",
	)
	if ops := dev.Ops(primary); !slices.Equal(ops, want) {
		t.Fatalf("primary ops:\n got %v\nwant %v", ops, want)
	}

	exec := findOp(t, dev.Commands(primary), "ExecuteCommands")
	if len(exec.Secondaries) != 1 {
		t.Fatalf("%d secondaries executed, want 1", len(exec.Secondaries))
	}
	wantSecondary := []string{
		"Begin", "SetViewport", "SetScissor", "BindDescriptorSets", "BindDescriptorSets",
		"BindPipeline", "PreprocessGeneratedCommands", "PipelineBarrier", "ExecuteGeneratedCommands", "End",
	}
	if ops := dev.Ops(exec.Secondaries[0]); !slices.Equal(ops, wantSecondary) {
		t.Fatalf("secondary ops:\n got %v\nwant %v", ops, wantSecondary)
	}

	// the sky box pushes the address of its pack descriptor
	pc := findOp(t, dev.Commands(primary), "PushConstants")
	wantAddress := binary.LittleEndian.AppendUint64(nil, dev.BufferDeviceAddress(sky.Packs[0].Desc))
	if !slices.Equal(pc.Data, wantAddress) {
		t.Fatalf("sky box push constant = %v, want %v", pc.Data, wantAddress)
	}
}

func TestBasePassWithoutGeneratedCommands(t *testing.T) {
	b, dev := newTestBackend(t, func(cfg *core.Config) { cfg.Renderer.EnableDGC = false })
	base := NewBasePassRenderer(b)
	push(t, b, NewPreRenderer(b), base)
	if base.DGCData(MeshSubpass) != nil {
		t.Fatalf("generated commands layout created although disabled")
	}

	world, meshes := meshWorld(t, dev, "Rock", "Rock", "Grass")
	primary := drawFrame(t, b, nil, world)

	for _, material := range []string{"Rock", "Grass"} {
		if !b.Materials.Has(base.MaterialKey(MeshSubpass, material, renderer.VariantDefault)) {
			t.Errorf("material %s was not compiled on mesh added", material)
		}
	}

	addresses := make(map[uint64]bool)
	for _, m := range meshes {
		addresses[dev.BufferDeviceAddress(m.Packs[0].Desc)] = true
	}
	exec := findOp(t, dev.Commands(primary), "ExecuteCommands")
	if len(exec.Secondaries) != b.CmdPool.GetThreadsCount() {
		t.Fatalf("%d secondaries, want one per record thread", len(exec.Secondaries))
	}
	draws := 0
	for _, sec := range exec.Secondaries {
		for _, c := range dev.Commands(sec) {
			switch c.Op {
			case "DrawIndexed":
				draws++
			case "PushConstants":
				if len(c.Data) != 8 || !addresses[binary.LittleEndian.Uint64(c.Data)] {
					t.Errorf("push constant %v is not a pack descriptor address", c.Data)
				}
			}
		}
	}
	if draws != len(meshes) {
		t.Fatalf("%d draws recorded, want %d", draws, len(meshes))
	}
}

func TestBasePassAttachments(t *testing.T) {
	b, _ := newTestBackend(t, nil)
	base := NewBasePassRenderer(b)
	push(t, b, NewPreRenderer(b), base)

	subpasses := base.RenderPass().Draft.SubPasses()
	if len(subpasses) != 2 || subpasses[0].Name != MeshSubpass || subpasses[1].Name != SkyBoxSubpass {
		t.Fatalf("subpasses = %v", subpasses)
	}
	if _, ok := subpasses[0].PushConstant(); !ok {
		t.Fatalf("mesh subpass has no push constant")
	}
	if _, err := b.Materials.Get(base.MaterialKey(SkyBoxSubpass, renderer.DefaultMaterialName(BasePassRendererName, SkyBoxSubpass), renderer.VariantDefault)); err != nil {
		t.Fatalf("sky box default material: %v", err)
	}
	if data := base.DGCData(MeshSubpass); data == nil || data.SequencesCount != 0 {
		t.Fatalf("mesh subpass should hold empty generated commands before any mesh")
	}
}
