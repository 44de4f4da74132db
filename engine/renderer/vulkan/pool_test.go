package vulkan

import (
	"sync"
	"testing"
)

func TestLockPoolGroupsAreIndependent(t *testing.T) {
	pool := NewVulkanLockPool()
	// a command buffer begin must not wait on an allocation holding the memory lock
	err := pool.SafeCall(MemoryManagement, func() error {
		return pool.SafeCall(CommandBufferManagement, func() error {
			return pool.SafeCall(BufferManagement, func() error { return nil })
		})
	})
	if err != nil {
		t.Fatalf("SafeCall: %v", err)
	}
}

func TestLockPoolSerializesAGroup(t *testing.T) {
	pool := NewVulkanLockPool()
	var (
		wg      sync.WaitGroup
		inside  int
		maxSeen int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pool.SafeCall(CommandBufferManagement, func() error {
				inside++
				maxSeen = max(maxSeen, inside)
				inside--
				return nil
			})
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("%d calls inside the same group at once", maxSeen)
	}
}

func TestDeviceCapabilities(t *testing.T) {
	tests := []struct {
		name       string
		dev        Device
		dgc, rt    bool
		debugLabel bool
	}{
		{"native", &NativeDevice{}, false, false, false},
		{"headless", NewHeadlessDevice(), true, true, true},
	}
	for _, tt := range tests {
		_, dgc := SupportsGeneratedCommands(tt.dev)
		_, rt := SupportsRayTracing(tt.dev)
		_, label := tt.dev.(DebugLabelDevice)
		if dgc != tt.dgc || rt != tt.rt || label != tt.debugLabel {
			t.Errorf("%s: generated commands %t, ray tracing %t, labels %t", tt.name, dgc, rt, label)
		}
	}
}
