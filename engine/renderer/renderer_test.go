package renderer

import (
	"slices"
	"testing"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/spices/engine/core"
	"github.com/spaghettifunk/spices/engine/renderer/vulkan"
)

var allStages = vk.ShaderStageFlags(vk.ShaderStageAll)

func newTestBackend(t *testing.T, configure func(cfg *core.Config)) (*Backend, *vulkan.HeadlessDevice) {
	t.Helper()
	b, dev := openTestBackend(t, configure)
	t.Cleanup(b.Destroy)
	return b, dev
}

// openTestBackend leaves the teardown to the test.
func openTestBackend(t *testing.T, configure func(cfg *core.Config)) (*Backend, *vulkan.HeadlessDevice) {
	t.Helper()
	cfg := core.DefaultConfig()
	cfg.Renderer.Width = 64
	cfg.Renderer.Height = 64
	cfg.ThreadPool.Threads = 2
	if configure != nil {
		configure(cfg)
	}
	dev := vulkan.NewHeadlessDevice()
	views := dev.FakeImageViews(int(cfg.Renderer.FramesInFlight))
	b, err := NewBackend(cfg, dev, views, NewMemoryResourcePool(dev.FakeImageView), FallbackShaderSource{})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	return b, dev
}

/**
 * @brief A graphics renderer with one color attachment per subpass, a push
 * constant block and one uniform buffer per declared set.
 */
type testPass struct {
	*Renderer
	subpasses []string
	sets      []uint32
	calls     []string
	render    func(p *testPass, frame *FrameInfo) error
}

func newTestPass(b *Backend, name string, subpasses ...string) *testPass {
	return &testPass{
		Renderer:  NewRenderer(b, name, vk.PipelineBindPointGraphics, true),
		subpasses: subpasses,
		sets:      []uint32{0},
	}
}

func (p *testPass) CreateRendererPass() error {
	p.calls = append(p.calls, "pass")
	builder := p.NewRendererPassBuilder(p.Name())
	for _, sp := range p.subpasses {
		builder.AddSubPass(sp).
			AddColorAttachment(p.Name()+"."+sp+".Color", Texture2D, nil).
			EndSubPass()
	}
	return builder.Build()
}

func (p *testPass) CreateDescriptorSet() error {
	p.calls = append(p.calls, "sets")
	for _, sp := range p.subpasses {
		builder := p.NewDescriptorSetBuilder(sp).AddPushConstant(16)
		for _, set := range p.sets {
			builder.AddUniformBuffer(set, 0, 64, allStages)
		}
		if err := builder.Build(vulkan.NullAccelerationStructure); err != nil {
			return err
		}
	}
	return nil
}

func (p *testPass) Render(ts *core.TimeStep, frame *FrameInfo) error {
	p.calls = append(p.calls, "render")
	if p.render == nil {
		return nil
	}
	return p.render(p, frame)
}

// dgcPass draws its subpasses through generated commands.
type dgcPass struct {
	*testPass
}

func (p *dgcPass) CreateDeviceGeneratedCommandsLayout() error {
	p.calls = append(p.calls, "dgc")
	for _, sp := range p.subpasses {
		err := p.NewDGCLayoutBuilder(sp).
			AddShaderGroupInput().
			AddVertexBufferInput(0).
			AddIndexBufferInput().
			AddPushConstantInput().
			AddDrawIndexedInput().
			Build()
		if err != nil {
			return err
		}
	}
	return nil
}

// prePass owns the sets every other renderer's layouts start with.
type prePass struct {
	*Renderer
}

func newPrePass(b *Backend) *prePass {
	return &prePass{NewRenderer(b, PreRendererName, vk.PipelineBindPointGraphics, false)}
}

func (p *prePass) CreateRendererPass() error {
	return p.NewRendererPassBuilder(PreRendererName).AddSubPass(PreRendererName).EndSubPass().Build()
}

func (p *prePass) CreateDescriptorSet() error {
	return p.NewDescriptorSetBuilder(PreRendererName).
		AddUniformBuffer(0, 0, 128, allStages).
		AddUniformBuffer(1, 0, 16, allStages).
		Build(vulkan.NullAccelerationStructure)
}

func (p *prePass) Render(*core.TimeStep, *FrameInfo) error {
	return nil
}

func TestPushInitializesInOrder(t *testing.T) {
	tests := []struct {
		name      string
		enableDGC bool
		want      []string
	}{
		{"generated commands enabled", true, []string{"pass", "sets", "dgc"}},
		{"generated commands disabled", false, []string{"pass", "sets"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newTestBackend(t, func(cfg *core.Config) { cfg.Renderer.EnableDGC = tt.enableDGC })
			p := &dgcPass{newTestPass(b, "Scene", "Main")}
			if err := b.Manager.Push(p); err != nil {
				t.Fatalf("Push: %v", err)
			}
			if !slices.Equal(p.calls, tt.want) {
				t.Fatalf("calls = %v, want %v", p.calls, tt.want)
			}
			if !b.Materials.Has(p.MaterialKey("Main", DefaultMaterialName("Scene", "Main"), VariantDefault)) {
				t.Fatalf("default material of Main was not registered")
			}
			if got := p.DGCData("Main") != nil; got != tt.enableDGC {
				t.Fatalf("generated commands data present = %t, want %t", got, tt.enableDGC)
			}
		})
	}
}

func TestManagerLookup(t *testing.T) {
	b, _ := newTestBackend(t, nil)
	if err := b.Manager.Push(newTestPass(b, "Scene", "Main")); err != nil {
		t.Fatalf("Push: %v", err)
	}

	err := b.Manager.Push(newTestPass(b, "Scene", "Main"))
	if !errors.Is(err, ErrRendererExists) {
		t.Fatalf("second Push error = %v, want %v", err, ErrRendererExists)
	}
	if p := b.Manager.GetRenderer("Missing"); p != nil {
		t.Fatalf("GetRenderer(Missing) = %v, want nil", p)
	}
	if p := b.Manager.GetRenderer("Scene"); p == nil || p.Base().Name() != "Scene" {
		t.Fatalf("GetRenderer(Scene) = %v", p)
	}
	if names := b.Manager.Names(); !slices.Equal(names, []string{"Scene"}) {
		t.Fatalf("Names() = %v", names)
	}
	if !b.Manager.Pop("Scene") || b.Manager.Pop("Scene") {
		t.Fatalf("Pop should succeed once")
	}
}

func TestPipelineLayoutSets(t *testing.T) {
	b, dev := newTestBackend(t, nil)
	if err := b.Manager.Push(newPrePass(b)); err != nil {
		t.Fatalf("Push(PreRenderer): %v", err)
	}

	scene := newTestPass(b, "Scene", "Main")
	scene.sets = []uint32{2}
	if err := b.Manager.Push(scene); err != nil {
		t.Fatalf("Push(Scene): %v", err)
	}
	sets := scene.PipelineSets("Main", nil)
	for _, i := range []uint32{0, 1, 2} {
		if _, ok := sets[i]; !ok {
			t.Fatalf("pipeline sets miss set %d: %v", i, sets)
		}
	}
	info := dev.PipelineLayoutInfos[len(dev.PipelineLayoutInfos)-1]
	if info.SetLayoutCount != 3 {
		t.Fatalf("layout has %d sets, want 3", info.SetLayoutCount)
	}
	if info.PushConstantRangeCount != 1 || info.PPushConstantRanges[0].Size != 16 {
		t.Fatalf("layout push constant ranges = %+v", info.PPushConstantRanges)
	}

	gap := newTestPass(b, "Gap", "Main")
	gap.sets = []uint32{3}
	err := b.Manager.Push(gap)
	if !errors.Is(err, ErrSetIndexGap) {
		t.Fatalf("Push(Gap) error = %v, want %v", err, ErrSetIndexGap)
	}
	if b.Manager.GetRenderer("Gap") != nil {
		t.Fatalf("a renderer failing initialization must not be registered")
	}
}

func TestMaterialOwnSetsGetOwnLayout(t *testing.T) {
	b, dev := newTestBackend(t, nil)
	scene := newTestPass(b, "Scene", "Main")
	if err := b.Manager.Push(scene); err != nil {
		t.Fatalf("Push: %v", err)
	}

	ds := vulkan.NewDescriptorSet(vulkan.OwnerKeyOf("Rock"), 1)
	ds.AddBinding(0, vk.DescriptorTypeCombinedImageSampler, allStages, 1)
	if err := ds.BuildDescriptorSet(dev, vulkan.NullAccelerationStructure); err != nil {
		t.Fatalf("BuildDescriptorSet: %v", err)
	}
	t.Cleanup(func() { ds.Destroy(dev) })
	pool := b.Resources.(*MemoryResourcePool)
	pool.RegisterMaterial(&Material{Name: "Rock", Sets: map[uint32]*vulkan.DescriptorSet{1: ds}})

	layouts := dev.Live("pipeline layout")
	if err := scene.RegistryMaterial("Rock", "Main"); err != nil {
		t.Fatalf("RegistryMaterial: %v", err)
	}
	if got := dev.Live("pipeline layout"); got != layouts+1 {
		t.Fatalf("live pipeline layouts = %d, want %d", got, layouts+1)
	}
	if info := dev.PipelineLayoutInfos[len(dev.PipelineLayoutInfos)-1]; info.SetLayoutCount != 2 {
		t.Fatalf("material layout has %d sets, want 2", info.SetLayoutCount)
	}

	b.Materials.Remove(scene.MaterialKey("Main", "Rock", VariantDefault))
	if got := dev.Live("pipeline layout"); got != layouts {
		t.Fatalf("removing the material left %d layouts, want %d", got, layouts)
	}
}

func TestShaderChangeRebuildsMaterial(t *testing.T) {
	b, dev := newTestBackend(t, nil)
	scene := newTestPass(b, "Scene", "Main")
	if err := b.Manager.Push(scene); err != nil {
		t.Fatalf("Push: %v", err)
	}

	if n := b.Materials.MarkShaderDirty("Scene.Main"); n != 1 {
		t.Fatalf("MarkShaderDirty marked %d materials, want 1", n)
	}
	created := len(dev.GraphicsPipelines)
	live := dev.Live("pipeline")
	if err := b.DrawFrame(core.NewTimeStep(), NewMemoryWorld()); err != nil {
		t.Fatalf("DrawFrame: %v", err)
	}
	if got := len(dev.GraphicsPipelines); got != created+1 {
		t.Fatalf("%d pipelines created, want %d", got, created+1)
	}
	if got := dev.Live("pipeline"); got != live {
		t.Fatalf("live pipelines = %d, want %d", got, live)
	}
	if dirty := b.Materials.TakeDirty(); len(dirty) != 0 {
		t.Fatalf("dirty keys left after the frame: %v", dirty)
	}
}

func TestSlateResizeRecreatesRenderers(t *testing.T) {
	b, dev := newTestBackend(t, nil)
	scene := newTestPass(b, "Scene", "Main")
	if err := b.Manager.Push(scene); err != nil {
		t.Fatalf("Push: %v", err)
	}
	buf, err := scene.SubpassBuffer("Main", 0, 0)
	if err != nil {
		t.Fatalf("SubpassBuffer: %v", err)
	}
	var resized []vk.Extent2D
	b.Manager.SlateResized.Subscribe(func(e vk.Extent2D) { resized = append(resized, e) })

	if err := b.Manager.OnSlateResize(vk.Extent2D{}); err != nil {
		t.Fatalf("OnSlateResize(0x0): %v", err)
	}
	if len(resized) != 0 || len(scene.calls) != 2 {
		t.Fatalf("a zero extent must be ignored, calls %v", scene.calls)
	}

	extent := vk.Extent2D{Width: 32, Height: 16}
	if err := b.Manager.OnSlateResize(extent); err != nil {
		t.Fatalf("OnSlateResize: %v", err)
	}
	if want := []string{"pass", "sets", "pass", "sets"}; !slices.Equal(scene.calls, want) {
		t.Fatalf("calls = %v, want %v", scene.calls, want)
	}
	if got := scene.RenderPass().Extent; got != extent {
		t.Fatalf("pass extent = %v, want %v", got, extent)
	}
	if after, _ := scene.SubpassBuffer("Main", 0, 0); after != buf {
		t.Fatalf("the uniform buffer was recreated although its size did not change")
	}
	if got, want := dev.Live("framebuffer"), int(b.Context.FramesInFlight); got != want {
		t.Fatalf("live framebuffers = %d, want %d", got, want)
	}
	if len(resized) != 1 || resized[0] != extent {
		t.Fatalf("SlateResized broadcast %v", resized)
	}
	if b.Context.NeedsRebuild() {
		t.Fatalf("context still needs a rebuild")
	}
}

func TestDestroyReleasesDeviceObjects(t *testing.T) {
	b, dev := openTestBackend(t, nil)
	if err := b.Manager.Push(newPrePass(b)); err != nil {
		t.Fatalf("Push(PreRenderer): %v", err)
	}
	scene := &dgcPass{newTestPass(b, "Scene", "Main", "Overlay")}
	scene.sets = []uint32{2}
	if err := b.Manager.Push(scene); err != nil {
		t.Fatalf("Push(Scene): %v", err)
	}
	if err := b.DrawFrame(core.NewTimeStep(), NewMemoryWorld()); err != nil {
		t.Fatalf("DrawFrame: %v", err)
	}
	b.Destroy()

	for _, kind := range []string{
		"pipeline", "pipeline layout", "render pass", "framebuffer",
		"descriptor set", "descriptor set layout", "shader module",
		"buffer", "command buffer", "indirect commands layout",
	} {
		if n := dev.Live(kind); n != 0 {
			t.Errorf("%d %s objects alive after Destroy", n, kind)
		}
	}
}
