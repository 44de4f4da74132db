package views

import (
	"slices"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/spices/engine/core"
	"github.com/spaghettifunk/spices/engine/renderer"
	"github.com/spaghettifunk/spices/engine/renderer/components"
	"github.com/spaghettifunk/spices/engine/renderer/vulkan"
)

func newRayTracing(t *testing.T, b *renderer.Backend) *RayTracingRenderer {
	t.Helper()
	rt, err := NewRayTracingRenderer(b)
	if err != nil {
		t.Fatalf("NewRayTracingRenderer: %v", err)
	}
	push(t, b, NewPreRenderer(b), rt)
	return rt
}

func TestRayTracingWaitsForMeshes(t *testing.T) {
	b, dev := newTestBackend(t, nil)
	newRayTracing(t, b)

	primary := drawFrame(t, b, nil, renderer.NewMemoryWorld())
	if n := countOp(dev.Ops(primary), "TraceRays"); n != 0 {
		t.Fatalf("%d rays traced without an acceleration structure", n)
	}
	if len(dev.AccelerationBuilds) != 0 {
		t.Fatalf("acceleration structure built over an empty world")
	}
}

func TestRayTracingTracesTheWorld(t *testing.T) {
	b, dev := newTestBackend(t, nil)
	rt := newRayTracing(t, b)

	world, meshes := meshWorld(t, dev, "", "Rock")
	light := world.CreateEntity()
	world.Transform(light).Position = mgl32.Vec3{1, 2, 3}
	renderer.AddComponent(world, light, &components.PointLightComponent{Color: mgl32.Vec3{1, 1, 1}, Intensity: 2})
	primary := drawFrame(t, b, nil, world)

	if len(dev.AccelerationBuilds) != 1 {
		t.Fatalf("%d acceleration builds, want 1", len(dev.AccelerationBuilds))
	}
	instances := dev.AccelerationBuilds[0]
	if len(instances) != len(meshes) {
		t.Fatalf("%d instances, want %d", len(instances), len(meshes))
	}
	for i, inst := range instances {
		if inst.CustomIndex != uint32(i) || inst.VertexStride != MeshVertexStride {
			t.Errorf("instance %d = %+v", i, inst)
		}
	}

	want := append([]string{"Begin"}, preOps...)
	want = append(want,
		"BeginLabel",
		"BindDescriptorSets", "BindDescriptorSets", "BindDescriptorSets", "BindDescriptorSets",
		"BindPipeline", "TraceRays",
		"EndLabel", "End",
	)
	if ops := dev.Ops(primary); !slices.Equal(ops, want) {
		t.Fatalf("primary ops:\n got %v\nwant %v", ops, want)
	}
	cmds := dev.Commands(primary)
	if got := findOp(t, cmds, "BindPipeline").Values[0]; got != uint64(vulkan.PipelineBindPointRayTracing) {
		t.Fatalf("pipeline bound at %d, want the ray tracing bind point", got)
	}
	trace := findOp(t, cmds, "TraceRays")
	if trace.Values[0] == 0 || !slices.Equal(trace.Values[1:], []uint64{64, 64, 1}) {
		t.Fatalf("TraceRays %v, want a raygen address over 64x64x1", trace.Values)
	}

	sets := b.Registry.GetByName(rt.OwnerKey(RayTracingSubpass))
	if accel := dev.AccelerationWrites[sets[2].Handle]; accel == vulkan.NullAccelerationStructure {
		t.Fatalf("set 2 was not written with the acceleration structure")
	}

	descs, err := rt.SubpassBuffer(RayTracingSubpass, 2, 2)
	if err != nil {
		t.Fatalf("mesh desc buffer: %v", err)
	}
	wantDescs, _ := renderer.Encode([]MeshDesc{
		{dev.BufferDeviceAddress(meshes[0].Packs[0].Geometry.VertexBuffer), dev.BufferDeviceAddress(meshes[0].Packs[0].Geometry.IndexBuffer)},
		{dev.BufferDeviceAddress(meshes[1].Packs[0].Geometry.VertexBuffer), dev.BufferDeviceAddress(meshes[1].Packs[0].Geometry.IndexBuffer)},
	})
	if got := descs.Bytes()[:len(wantDescs)]; !slices.Equal(got, wantDescs) {
		t.Fatalf("mesh descs = %v, want %v", got, wantDescs)
	}

	points, err := rt.SubpassBuffer(RayTracingSubpass, 2, 4)
	if err != nil {
		t.Fatalf("point light buffer: %v", err)
	}
	raw := points.Bytes()
	if got := float32At(raw, 28); got != 2 {
		t.Errorf("point light intensity = %v, want 2", got)
	}
	if got := float32At(raw, 48+28); got != components.LightSentinelIntensity {
		t.Errorf("sentinel intensity = %v, want %v", got, components.LightSentinelIntensity)
	}
}

func TestRayTracingShaderReload(t *testing.T) {
	b, dev := newTestBackend(t, nil)
	newRayTracing(t, b)
	world, _ := meshWorld(t, dev, "")
	drawFrame(t, b, nil, world)

	pipelines := len(dev.RayTracingPipelines)
	buffers := dev.Live("buffer")
	if n := b.Materials.MarkShaderDirty(RayTracingRendererName + "." + RayTracingSubpass); n != 1 {
		t.Fatalf("MarkShaderDirty marked %d materials, want 1", n)
	}
	primary := drawFrame(t, b, nil, world)

	if got := len(dev.RayTracingPipelines); got != pipelines+1 {
		t.Fatalf("%d ray tracing pipelines, want %d", got, pipelines+1)
	}
	if got := dev.Live("buffer"); got != buffers {
		t.Fatalf("%d live buffers after the binding table rebuild, want %d", got, buffers)
	}
	if n := countOp(dev.Ops(primary), "TraceRays"); n != 1 {
		t.Fatalf("%d TraceRays after reload, want 1", n)
	}
}

func TestRayTracingDestroy(t *testing.T) {
	b, dev := openTestBackend(t, nil)
	newRayTracing(t, b)
	world, _ := meshWorld(t, dev, "", "")
	drawFrame(t, b, nil, world)
	if dev.Live("acceleration structure") != 1 {
		t.Fatalf("%d live acceleration structures, want 1", dev.Live("acceleration structure"))
	}
	b.Destroy()
	for _, kind := range []string{"acceleration structure", "pipeline"} {
		if n := dev.Live(kind); n != 0 {
			t.Errorf("%d %s left after destroy", n, kind)
		}
	}
}

// rasterOnly hides the optional capabilities of the device it wraps.
type rasterOnly struct {
	vulkan.Device
}

func TestRayTracingUnsupported(t *testing.T) {
	dev := vulkan.NewHeadlessDevice()
	cfg := core.DefaultConfig()
	b, err := renderer.NewBackend(cfg, rasterOnly{dev}, dev.FakeImageViews(int(cfg.Renderer.FramesInFlight)), renderer.NewMemoryResourcePool(dev.FakeImageView), renderer.FallbackShaderSource{})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	t.Cleanup(b.Destroy)

	if _, err := NewRayTracingRenderer(b); !errors.Is(err, renderer.ErrRayTracingUnsupported) {
		t.Fatalf("err = %v, want ErrRayTracingUnsupported", err)
	}
	if err := PushDefault(b); err != nil {
		t.Fatalf("PushDefault: %v", err)
	}
	want := []string{renderer.PreRendererName, BasePassRendererName, ParticleRendererName, SlateRendererName}
	if got := b.Manager.Names(); !slices.Equal(got, want) {
		t.Fatalf("renderers = %v, want %v", got, want)
	}
	if b.DGCEnabled() {
		t.Fatalf("generated commands enabled on a device without them")
	}
}
