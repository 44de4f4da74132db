package vulkan

import (
	"testing"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

var testExtent = vk.Extent2D{Width: 1280, Height: 720}

func TestAttachmentDedup(t *testing.T) {
	dev := NewHeadlessDevice()
	d := NewPassDraft("gbuffer")
	view := dev.FakeImageView()

	d.AddSubPass("first")
	first, err := d.AddColorAttachment("Albedo", vk.FormatR8g8b8a8Unorm, 1, view, nil)
	if err != nil {
		t.Fatalf("AddColorAttachment: %v", err)
	}
	if err := d.EndSubPass(); err != nil {
		t.Fatalf("EndSubPass: %v", err)
	}

	d.AddSubPass("second")
	again, err := d.AddInputAttachment("Albedo", vk.FormatR8g8b8a8Unorm, view, nil)
	if err != nil {
		t.Fatalf("AddInputAttachment: %v", err)
	}
	if first != again {
		t.Fatalf("same name got index %d then %d", first, again)
	}
	if n := len(d.Attachments()); n != 1 {
		t.Fatalf("got %d attachments, want 1", n)
	}
	sp, _ := d.SubPass("second")
	if refs := sp.InputReferences(); len(refs) != 1 || refs[0].Layout != vk.ImageLayoutColorAttachmentOptimal {
		t.Fatalf("input references = %+v", refs)
	}
}

func TestDependencyChain(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5} {
		dev := NewHeadlessDevice()
		d := NewPassDraft("chain")
		for i := 0; i < n; i++ {
			d.AddSubPass(string(rune('a' + i)))
			if _, err := d.AddColorAttachment("Color", vk.FormatR8g8b8a8Unorm, 1, dev.FakeImageView(), nil); err != nil {
				t.Fatalf("AddColorAttachment: %v", err)
			}
			if err := d.EndSubPass(); err != nil {
				t.Fatalf("EndSubPass: %v", err)
			}
		}

		deps := d.Dependencies()
		if len(deps) != n+1 {
			t.Fatalf("%d subpasses: got %d dependencies, want %d", n, len(deps), n+1)
		}
		if !deps[0].IsExternalSrc() || deps[0].DstSubpass != 0 {
			t.Errorf("%d subpasses: first dependency %+v is not external -> 0", n, deps[0])
		}
		for i := 1; i < n; i++ {
			if deps[i].SrcSubpass != uint32(i-1) || deps[i].DstSubpass != uint32(i) {
				t.Errorf("%d subpasses: dependency %d is %d -> %d", n, i, deps[i].SrcSubpass, deps[i].DstSubpass)
			}
		}
		last := deps[n]
		if last.SrcSubpass != uint32(n-1) || !last.IsExternalDst() {
			t.Errorf("%d subpasses: trailing dependency %+v is not %d -> external", n, last, n-1)
		}
	}
}

func TestBuildSwapchainDepthSelfDependency(t *testing.T) {
	dev := NewHeadlessDevice()
	d := NewPassDraft("BasePass")
	depthView := dev.FakeImageView()

	d.AddSubPass("Mesh")
	if _, err := d.AddSwapChainAttachment(vk.FormatB8g8r8a8Unorm, func(c *AttachmentConfig) {
		c.Description.LoadOp = vk.AttachmentLoadOpClear
	}); err != nil {
		t.Fatalf("AddSwapChainAttachment: %v", err)
	}
	if _, err := d.AddDepthAttachment("Depth", vk.FormatD32Sfloat, 1, depthView, nil); err != nil {
		t.Fatalf("AddDepthAttachment: %v", err)
	}
	if err := d.AddSelfDependency(
		vk.AccessFlags(vk.AccessColorAttachmentWriteBit), vk.AccessFlags(vk.AccessColorAttachmentReadBit),
		vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit), vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
	); err != nil {
		t.Fatalf("AddSelfDependency: %v", err)
	}
	if err := d.EndSubPass(); err != nil {
		t.Fatalf("EndSubPass: %v", err)
	}

	if n := len(d.Attachments()); n != 2 {
		t.Fatalf("got %d attachments, want 2", n)
	}
	if n := len(d.ImageViews()); n != 1 {
		t.Fatalf("got %d caller views, want 1", n)
	}
	deps := d.Dependencies()
	if len(deps) != 3 {
		t.Fatalf("got %d dependencies, want 3", len(deps))
	}
	if !deps[1].IsSelf() {
		t.Fatalf("dependency 1 = %+v, want the self dependency", deps[1])
	}

	swapchain := dev.FakeImageViews(3)
	rp, err := d.Build(dev, 3, testExtent, swapchain)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if d.State() != PASS_STATE_BUILT {
		t.Fatalf("draft state = %s after build", d.State())
	}
	if len(rp.Framebuffers) != 3 {
		t.Fatalf("got %d framebuffers, want 3", len(rp.Framebuffers))
	}
	for i, fb := range rp.Framebuffers {
		if fb.Attachments[0] != swapchain[i] {
			t.Errorf("framebuffer %d: slot 0 is not swapchain view %d", i, i)
		}
		if fb.Attachments[1] != depthView {
			t.Errorf("framebuffer %d: slot 1 is not the depth view", i)
		}
	}
	info := dev.RenderPassInfos[0]
	if info.AttachmentCount != 2 || info.DependencyCount != 3 || info.SubpassCount != 1 {
		t.Fatalf("render pass create info: %d attachments, %d dependencies, %d subpasses",
			info.AttachmentCount, info.DependencyCount, info.SubpassCount)
	}
	if info.PAttachments[0].LoadOp != vk.AttachmentLoadOpClear {
		t.Errorf("configure callback did not change the swapchain load op")
	}
	if cv := rp.ClearValues(); len(cv) != 2 || cv[0].IsDepth || !cv[1].IsDepth {
		t.Errorf("clear values = %+v", cv)
	}

	rp.Destroy(dev, nil)
	if live := dev.Live("framebuffer") + dev.Live("render pass"); live != 0 {
		t.Fatalf("%d objects alive after Destroy", live)
	}
}

func TestBuildValidation(t *testing.T) {
	dev := NewHeadlessDevice()

	t.Run("missing view", func(t *testing.T) {
		d := NewPassDraft("broken")
		d.AddSubPass("only")
		if _, err := d.AddColorAttachment("Color", vk.FormatR8g8b8a8Unorm, 1, nil, nil); err != nil {
			t.Fatalf("AddColorAttachment: %v", err)
		}
		if err := d.EndSubPass(); err != nil {
			t.Fatalf("EndSubPass: %v", err)
		}
		if _, err := d.Build(dev, 2, testExtent, nil); !errors.Is(err, ErrAttachmentViewMismatch) {
			t.Fatalf("Build = %v, want ErrAttachmentViewMismatch", err)
		}
	})

	t.Run("open subpass", func(t *testing.T) {
		d := NewPassDraft("open")
		d.AddSubPass("only")
		if _, err := d.Build(dev, 2, testExtent, nil); !errors.Is(err, ErrSubpassOpen) {
			t.Fatalf("Build = %v, want ErrSubpassOpen", err)
		}
	})

	t.Run("no subpasses", func(t *testing.T) {
		if _, err := NewPassDraft("empty").Build(dev, 2, testExtent, nil); !errors.Is(err, ErrNoSubpasses) {
			t.Fatalf("Build = %v, want ErrNoSubpasses", err)
		}
	})

	t.Run("attachment outside subpass", func(t *testing.T) {
		d := NewPassDraft("closed")
		if _, err := d.AddDepthAttachment("Depth", vk.FormatD32Sfloat, 1, nil, nil); !errors.Is(err, ErrNoOpenSubpass) {
			t.Fatalf("AddDepthAttachment = %v, want ErrNoOpenSubpass", err)
		}
	})

	t.Run("duplicate subpass", func(t *testing.T) {
		d := NewPassDraft("dup")
		d.AddSubPass("x")
		_ = d.EndSubPass()
		if sp := d.AddSubPass("x"); sp != nil {
			t.Fatalf("duplicate subpass was added")
		}
	})

	t.Run("too few swapchain views", func(t *testing.T) {
		d := NewPassDraft("present")
		d.AddSubPass("only")
		if _, err := d.AddSwapChainAttachment(vk.FormatB8g8r8a8Unorm, nil); err != nil {
			t.Fatalf("AddSwapChainAttachment: %v", err)
		}
		_ = d.EndSubPass()
		if _, err := d.Build(dev, 3, testExtent, dev.FakeImageViews(2)); !errors.Is(err, ErrSwapchainViews) {
			t.Fatalf("Build = %v, want ErrSwapchainViews", err)
		}
	})
}

func TestRebuildKeepsTopology(t *testing.T) {
	dev := NewHeadlessDevice()
	draft := func(layers uint32) *PassDraft {
		d := NewPassDraft("shadow")
		d.AddSubPass("depth")
		if _, err := d.AddDepthAttachment("ShadowMap", vk.FormatD32Sfloat, layers, dev.FakeImageView(), nil); err != nil {
			t.Fatalf("AddDepthAttachment: %v", err)
		}
		_ = d.EndSubPass()
		return d
	}

	rp, err := draft(4).Build(dev, 2, testExtent, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if rp.Framebuffers[0].Layers != 4 {
		t.Fatalf("framebuffer layers = %d, want 4", rp.Framebuffers[0].Layers)
	}

	bigger := vk.Extent2D{Width: 1920, Height: 1080}
	next, err := rp.Rebuild(dev, draft(4), 2, bigger, nil)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if next.Framebuffers[0].Width != 1920 {
		t.Fatalf("rebuilt width = %d", next.Framebuffers[0].Width)
	}
	if _, err := next.Rebuild(dev, draft(6), 2, bigger, nil); !errors.Is(err, ErrTopologyChanged) {
		t.Fatalf("Rebuild with new layer count = %v, want ErrTopologyChanged", err)
	}
	if dev.Live("render pass") != 1 {
		t.Fatalf("%d render passes alive, want 1", dev.Live("render pass"))
	}
}

func TestRenderPassBeginEnd(t *testing.T) {
	dev := NewHeadlessDevice()
	d := NewPassDraft("ui")
	d.AddSubPass("slate")
	_, _ = d.AddSwapChainAttachment(vk.FormatB8g8r8a8Unorm, nil)
	_ = d.EndSubPass()
	rp, err := d.Build(dev, 2, testExtent, dev.FakeImageViews(2))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	cmds, err := NewCommandBuffers(dev, true, 1, "primary")
	if err != nil {
		t.Fatalf("NewCommandBuffers: %v", err)
	}
	cmd := cmds[0]
	if err := cmd.Begin(dev, true, false, false, nil); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	rp.Begin(dev, cmd, 1, vk.SubpassContentsInline)
	if cmd.State != COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		t.Fatalf("state = %s inside the pass", cmd.State)
	}
	rp.End(dev, cmd)
	if err := cmd.End(dev); err != nil {
		t.Fatalf("End: %v", err)
	}

	got := dev.Commands(cmd)
	if len(got) != 4 || got[1].Op != "BeginRenderPass" || got[2].Op != "EndRenderPass" {
		t.Fatalf("recorded %v", dev.Ops(cmd))
	}
	if got[1].Values[1] != HandleID(rp.Framebuffers[1].Handle) {
		t.Fatalf("frame 1 did not use framebuffer 1")
	}
}

func TestPassDraftStates(t *testing.T) {
	early := NewPassDraft("Early")
	early.AddAttachment("Depth", vk.AttachmentDescription{Format: vk.FormatD32Sfloat}, ClearValue{}, 1, nil)
	if early.State() != PASS_STATE_EMPTY {
		t.Fatalf("attachment before any subpass moved the draft to %s", early.State())
	}

	dev := NewHeadlessDevice()
	d := NewPassDraft("Slate")
	steps := []struct {
		name string
		do   func() error
		want PassDraftState
	}{
		{"new", func() error { return nil }, PASS_STATE_EMPTY},
		{"add subpass", func() error { d.AddSubPass("UI"); return nil }, PASS_STATE_SUBPASS_OPEN},
		{"add attachment", func() error {
			_, err := d.AddSwapChainAttachment(vk.FormatB8g8r8a8Unorm, nil)
			return err
		}, PASS_STATE_SUBPASS_OPEN},
		{"end subpass", d.EndSubPass, PASS_STATE_SUBPASS_CLOSED},
		{"failed build", func() error {
			dev.FailNext("CreateRenderPass", errors.New("device lost"))
			if _, err := d.Build(dev, 1, testExtent, dev.FakeImageViews(1)); err == nil {
				return errors.New("build succeeded")
			}
			return nil
		}, PASS_STATE_SUBPASS_CLOSED},
		{"build", func() error {
			_, err := d.Build(dev, 1, testExtent, dev.FakeImageViews(1))
			return err
		}, PASS_STATE_BUILT},
	}
	for _, step := range steps {
		if err := step.do(); err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
		if got := d.State(); got != step.want {
			t.Fatalf("%s: state %s, want %s", step.name, got, step.want)
		}
	}
}
