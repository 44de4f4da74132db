package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
)

func TestRegistryIdentity(t *testing.T) {
	r := NewDescriptorSetRegistry(NewHeadlessDevice())
	key := OwnerKey{Pass: "BasePass", Subpass: "Mesh"}

	a := r.Register(key, 0)
	b := r.Register(key, 0)
	if a != b {
		t.Fatalf("Register returned two sets for the same key")
	}
	if c := r.Register(key, 2); c == a {
		t.Fatalf("set 2 aliases set 0")
	}
	if other := r.Register(OwnerKeyOf("PreRenderer"), 0); other == a {
		t.Fatalf("two owners share a set")
	}
	if n := len(r.GetByName(key)); n != 2 {
		t.Fatalf("GetByName: %d sets, want 2", n)
	}
	if n := len(r.Owners()); n != 2 {
		t.Fatalf("Owners: %d, want 2", n)
	}
}

func TestRegistryUnloadKeepsBindless(t *testing.T) {
	dev := NewHeadlessDevice()
	r := NewDescriptorSetRegistry(dev)
	key := OwnerKeyOf("PreRenderer")

	view := r.Register(key, 0)
	ubo, err := NewUniformBuffer(dev, 256, "view")
	if err != nil {
		t.Fatalf("NewUniformBuffer: %v", err)
	}
	view.AddBufferBinding(0, vk.DescriptorTypeUniformBuffer, vk.ShaderStageFlags(vk.ShaderStageAllGraphics), ubo)
	if err := view.BuildDescriptorSet(dev, NullAccelerationStructure); err != nil {
		t.Fatalf("BuildDescriptorSet: %v", err)
	}

	bindless := r.Register(key, BindlessTextureSet)
	if again := r.Register(key, BindlessTextureSet); again != bindless {
		t.Fatalf("second Register of the bindless set returned a new object")
	}
	bindless.AddBindlessBinding(BindlessTextureBinding, vk.ShaderStageFlags(vk.ShaderStageFragmentBit), 1024)
	if err := bindless.BuildDescriptorSet(dev, NullAccelerationStructure); err != nil {
		t.Fatalf("BuildDescriptorSet: %v", err)
	}
	if !bindless.IsBindless() {
		t.Fatalf("bindless set not flagged")
	}
	if got := dev.VariableCounts[len(dev.VariableCounts)-1]; got != 1024 {
		t.Fatalf("variable count = %d, want 1024", got)
	}

	r.Unload(key)
	sets := r.GetByName(key)
	if _, ok := sets[0]; ok {
		t.Fatalf("set 0 survived Unload")
	}
	if sets[BindlessTextureSet] != bindless || !bindless.IsBuilt() {
		t.Fatalf("bindless set did not survive Unload")
	}
	if view.IsBuilt() {
		t.Fatalf("unloaded set still holds a native handle")
	}
	if got := r.Register(key, BindlessTextureSet); got != bindless {
		t.Fatalf("Register after Unload returned a new bindless set")
	}
	fresh := r.Register(key, 0)
	if fresh == view {
		t.Fatalf("Register after Unload returned the unloaded set 0")
	}
	if fresh.IsBuilt() {
		t.Fatalf("set 0 registered after Unload is already built")
	}

	// rebuilding a built bindless set only updates it
	allocs := len(dev.VariableCounts)
	if err := bindless.BuildDescriptorSet(dev, NullAccelerationStructure); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if len(dev.VariableCounts) != allocs {
		t.Fatalf("rebuild of a bindless set reallocated it")
	}

	r.UnloadForce(key)
	if len(r.GetByName(key)) != 0 {
		t.Fatalf("UnloadForce left sets behind")
	}
	if dev.Live("descriptor set") != 0 {
		t.Fatalf("%d descriptor sets alive", dev.Live("descriptor set"))
	}
}

func TestRenderPassDestroyUnloadsOwners(t *testing.T) {
	dev := NewHeadlessDevice()
	r := NewDescriptorSetRegistry(dev)
	d := NewPassDraft("Slate")
	d.AddSubPass("UI")
	_, _ = d.AddSwapChainAttachment(vk.FormatB8g8r8a8Unorm, nil)
	_ = d.EndSubPass()
	rp, err := d.Build(dev, 1, testExtent, dev.FakeImageViews(1))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	r.Register(OwnerKey{Pass: "Slate", Subpass: "UI"}, 0)
	r.Register(OwnerKeyOf("PreRenderer"), 0)

	rp.Destroy(dev, r)
	owners := r.Owners()
	if len(owners) != 1 || owners[0] != OwnerKeyOf("PreRenderer") {
		t.Fatalf("owners after destroy = %v", owners)
	}
}
