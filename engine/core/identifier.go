package core

import (
	"sync"

	"github.com/cockroachdb/errors"
)

// IDAllocator hands out the lowest free slot id and reuses released ones.
type IDAllocator struct {
	mu     sync.Mutex
	owners []interface{}
}

func NewIDAllocator(capacity int) *IDAllocator {
	return &IDAllocator{
		owners: make([]interface{}, 0, capacity),
	}
}

func (a *IDAllocator) Acquire(owner interface{}) uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range a.owners {
		// Existing free spot. Take it.
		if a.owners[i] == nil {
			a.owners[i] = owner
			return uint32(i)
		}
	}

	// No free slot, grow by one.
	a.owners = append(a.owners, owner)
	return uint32(len(a.owners) - 1)
}

func (a *IDAllocator) Release(id uint32) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if int(id) >= len(a.owners) {
		return errors.Newf("identifier release: id '%d' out of range (max=%d). Nothing was done", id, len(a.owners))
	}
	// Just zero out the entry, making it available for use.
	a.owners[id] = nil
	return nil
}

// InUse returns how many slots currently have an owner.
func (a *IDAllocator) InUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0
	for _, o := range a.owners {
		if o != nil {
			n++
		}
	}
	return n
}
