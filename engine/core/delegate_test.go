package core

import "testing"

type resizeEvent struct {
	width, height uint32
}

func TestDelegateBroadcastOrder(t *testing.T) {
	var d Delegate[resizeEvent]
	var order []int
	d.Subscribe(func(e resizeEvent) { order = append(order, 1) })
	h := d.Subscribe(func(e resizeEvent) { order = append(order, 2) })
	d.Subscribe(func(e resizeEvent) { order = append(order, 3) })

	d.Broadcast(resizeEvent{800, 600})
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("broadcast order = %v", order)
	}

	if !d.Unsubscribe(h) {
		t.Fatal("Unsubscribe of a live handle returned false")
	}
	if d.Unsubscribe(h) {
		t.Fatal("Unsubscribe of a removed handle returned true")
	}

	order = nil
	d.Broadcast(resizeEvent{1, 1})
	if len(order) != 2 || order[0] != 1 || order[1] != 3 {
		t.Fatalf("broadcast after unsubscribe = %v", order)
	}
}

func TestDelegatePayload(t *testing.T) {
	var d Delegate[resizeEvent]
	var got resizeEvent
	d.Subscribe(func(e resizeEvent) { got = e })
	d.Broadcast(resizeEvent{1920, 1080})
	if got != (resizeEvent{1920, 1080}) {
		t.Fatalf("payload = %+v", got)
	}
}

func TestDelegateNilAndClear(t *testing.T) {
	var d Delegate[int]
	if h := d.Subscribe(nil); h != 0 {
		t.Fatalf("nil callback got handle %d", h)
	}
	d.Subscribe(func(int) {})
	d.Subscribe(func(int) {})
	if d.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", d.Len())
	}
	d.Clear()
	if d.Len() != 0 {
		t.Fatalf("Len() after Clear = %d", d.Len())
	}
}

func TestDelegateSubscribeDuringBroadcast(t *testing.T) {
	var d Delegate[int]
	calls := 0
	d.Subscribe(func(int) {
		calls++
		d.Subscribe(func(int) { calls++ })
	})
	d.Broadcast(0)
	if calls != 1 {
		t.Fatalf("subscription added during broadcast ran in the same broadcast (calls = %d)", calls)
	}
}
