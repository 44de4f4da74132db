package core

import "testing"

func TestIDAllocatorReusesReleasedSlots(t *testing.T) {
	a := NewIDAllocator(4)
	ids := []uint32{a.Acquire("a"), a.Acquire("b"), a.Acquire("c")}
	for i, id := range ids {
		if id != uint32(i) {
			t.Fatalf("id %d = %d, want sequential ids", i, id)
		}
	}
	if err := a.Release(1); err != nil {
		t.Fatal(err)
	}
	if got := a.Acquire("d"); got != 1 {
		t.Fatalf("Acquire after release = %d, want the freed slot 1", got)
	}
	if a.InUse() != 3 {
		t.Fatalf("InUse() = %d, want 3", a.InUse())
	}
	if err := a.Release(10); err == nil {
		t.Fatal("releasing an out of range id succeeded")
	}
}
