package renderer

import (
	"encoding/binary"
	"slices"
	"testing"

	"github.com/spaghettifunk/spices/engine/core"
	"github.com/spaghettifunk/spices/engine/renderer/components"
	"github.com/spaghettifunk/spices/engine/renderer/vulkan"
)

func (p *dgcPass) OnMeshAddedWorld(world World) error {
	p.calls = append(p.calls, "mesh added")
	for _, sp := range p.subpasses {
		if err := p.FillIndirectRenderData(sp, world); err != nil {
			return err
		}
	}
	return nil
}

// newMeshWorld creates one entity per material, each with a single triangle pack.
func newMeshWorld(t *testing.T, dev vulkan.Device, materials ...string) *MemoryWorld {
	t.Helper()
	world := NewMemoryWorld()
	for i, material := range materials {
		g, err := vulkan.NewGeometry(dev, uint32(i), 12, make([]byte, 36), []uint32{0, 1, 2})
		if err != nil {
			t.Fatalf("NewGeometry: %v", err)
		}
		desc, err := vulkan.NewStorageBuffer(dev, 64, "desc")
		if err != nil {
			t.Fatalf("NewStorageBuffer: %v", err)
		}
		t.Cleanup(func() {
			g.Destroy(dev)
			dev.DestroyBuffer(desc)
		})
		mesh := &components.Mesh{Packs: []*components.MeshPack{{Name: "pack", Material: material, Geometry: g, Desc: desc}}}
		AddComponent(world, world.CreateEntity(), &components.MeshComponent{Mesh: mesh})
	}
	return world
}

func shaderGroups(data *vulkan.IndirectDrawData) []uint32 {
	raw := data.Staging.Bytes()
	groups := make([]uint32, data.SequencesCount)
	for s := range groups {
		at := data.Offsets[0] + uint64(s)*uint64(data.Strides[0])
		groups[s] = binary.LittleEndian.Uint32(raw[at:])
	}
	return groups
}

func TestFillIndirectRenderData(t *testing.T) {
	b, dev := newTestBackend(t, nil)
	scene := &dgcPass{newTestPass(b, "Scene", "Main")}
	scene.render = func(p *testPass, frame *FrameInfo) error {
		rb := p.NewRenderBehaveBuilder(frame)
		if err := rb.BeginRenderPass(); err != nil {
			return err
		}
		if err := rb.RunDGC(); err != nil {
			return err
		}
		return rb.EndRenderPass()
	}
	if err := b.Manager.Push(scene); err != nil {
		t.Fatalf("Push: %v", err)
	}

	world := newMeshWorld(t, dev, "", "Rock", "Grass", "Rock")
	// entities without geometry draw nothing
	AddComponent(world, world.CreateEntity(), &components.MeshComponent{})
	AddComponent(world, world.CreateEntity(), &components.MeshComponent{Mesh: &components.Mesh{Packs: []*components.MeshPack{{Name: "empty"}}}})

	primary := b.Context.Primary()
	if err := b.DrawFrame(core.NewTimeStep(), world); err != nil {
		t.Fatalf("DrawFrame: %v", err)
	}
	if world.Marks()&MarkMeshAdded != 0 {
		t.Fatalf("mesh added mark survived the frame")
	}

	wantGroups := []string{"Scene.Main.Default", "Rock", "Grass"}
	if got := scene.DGCMaterials("Main"); !slices.Equal(got, wantGroups) {
		t.Fatalf("shader groups = %v, want %v", got, wantGroups)
	}
	data := scene.DGCData("Main")
	if data.SequencesCount != 4 {
		t.Fatalf("%d sequences, want 4", data.SequencesCount)
	}
	if got := shaderGroups(data); !slices.Equal(got, []uint32{0, 1, 2, 1}) {
		t.Fatalf("sequence shader groups = %v", got)
	}
	if len(dev.IndirectPipelineSrcs) != 1 || len(dev.IndirectPipelineSrcs[0]) != 3 {
		t.Fatalf("indirect pipelines = %v, want one over 3 groups", dev.IndirectPipelineSrcs)
	}

	want := []string{
		"Begin", "BeginLabel", "BeginRenderPass", "BeginLabel",
		"BindPipeline", "PreprocessGeneratedCommands", "PipelineBarrier", "ExecuteGeneratedCommands",
		"EndLabel", "EndRenderPass", "EndLabel", "End",
	}
	if ops := dev.Ops(primary); !slices.Equal(ops, want) {
		t.Fatalf("primary ops:\n got %v\nwant %v", ops, want)
	}
	pipeline, err := b.Materials.Get(scene.MaterialKey("Main", "", VariantDGC))
	if err != nil {
		t.Fatalf("indirect pipeline: %v", err)
	}
	first := pipeline.Handle
	exec := dev.Commands(primary)[7]
	if exec.Values[0] != 4 || exec.Values[2] != vulkan.HandleID(first) {
		t.Fatalf("ExecuteGeneratedCommands %v, want 4 sequences on pipeline %d", exec.Values, vulkan.HandleID(first))
	}

	// same groups: the indirect pipeline is kept
	if err := scene.FillIndirectRenderData("Main", world); err != nil {
		t.Fatalf("FillIndirectRenderData: %v", err)
	}
	if len(dev.IndirectPipelineSrcs) != 1 {
		t.Fatalf("indirect pipeline recompiled for unchanged groups")
	}

	// a changed group shader recompiles the group and the indirect pipeline
	if n := b.Materials.MarkShaderDirty("Rock"); n != 1 {
		t.Fatalf("MarkShaderDirty(Rock) marked %d materials, want 1", n)
	}
	if err := b.DrawFrame(core.NewTimeStep(), world); err != nil {
		t.Fatalf("DrawFrame: %v", err)
	}
	if len(dev.IndirectPipelineSrcs) != 2 {
		t.Fatalf("%d indirect pipelines compiled, want 2", len(dev.IndirectPipelineSrcs))
	}
	if data.Info.Pipeline == first {
		t.Fatalf("generated commands still point at the old pipeline")
	}
}

func TestFillIndirectRenderDataWithoutDGC(t *testing.T) {
	b, dev := newTestBackend(t, func(cfg *core.Config) { cfg.Renderer.EnableDGC = false })
	scene := &dgcPass{newTestPass(b, "Scene", "Main")}
	if err := b.Manager.Push(scene); err != nil {
		t.Fatalf("Push: %v", err)
	}
	world := newMeshWorld(t, dev, "Rock")
	if err := scene.FillIndirectRenderData("Main", world); err != nil {
		t.Fatalf("FillIndirectRenderData: %v", err)
	}
	if len(dev.IndirectPipelineSrcs) != 0 || scene.DGCMaterials("Main") != nil {
		t.Fatalf("generated commands were set up although disabled")
	}
}
