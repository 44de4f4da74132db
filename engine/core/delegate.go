package core

import "sync"

// DelegateHandle identifies one subscription of a Delegate.
type DelegateHandle uint64

type registeredCallback[A any] struct {
	handle   DelegateHandle
	callback func(A)
}

/**
 * @brief A typed multicast event. Listeners subscribe a callback and receive
 * every broadcast payload in subscription order.
 */
type Delegate[A any] struct {
	mu        sync.Mutex
	next      DelegateHandle
	callbacks []registeredCallback[A]
}

/**
 * Subscribe registers a callback and returns the handle needed to unsubscribe it.
 * A nil callback is ignored and yields the zero handle.
 */
func (d *Delegate[A]) Subscribe(callback func(A)) DelegateHandle {
	if callback == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.next++
	d.callbacks = append(d.callbacks, registeredCallback[A]{
		handle:   d.next,
		callback: callback,
	})
	return d.next
}

/**
 * Unsubscribe removes the callback registered under the handle.
 * @returns true if a subscription was removed.
 */
func (d *Delegate[A]) Unsubscribe(handle DelegateHandle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, c := range d.callbacks {
		if c.handle == handle {
			d.callbacks = append(d.callbacks[:i], d.callbacks[i+1:]...)
			return true
		}
	}
	return false
}

/**
 * Broadcast invokes every subscribed callback with the payload.
 * Callbacks may subscribe or unsubscribe while being invoked; such changes
 * apply from the next broadcast on.
 */
func (d *Delegate[A]) Broadcast(args A) {
	d.mu.Lock()
	snapshot := make([]registeredCallback[A], len(d.callbacks))
	copy(snapshot, d.callbacks)
	d.mu.Unlock()

	for _, c := range snapshot {
		c.callback(args)
	}
}

// Len returns the number of live subscriptions.
func (d *Delegate[A]) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.callbacks)
}

// Clear drops every subscription.
func (d *Delegate[A]) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.callbacks = nil
}
