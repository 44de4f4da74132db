package vulkan

import (
	"fmt"
	"sort"
	"sync"

	"github.com/spaghettifunk/spices/engine/core"
)

/**
 * @brief Identifies the owner of descriptor sets: a render pass and one of its
 * subpasses. Pass wide sets (and the pre-renderer) use the same name twice.
 */
type OwnerKey struct {
	Pass    string
	Subpass string
}

func OwnerKeyOf(name string) OwnerKey {
	return OwnerKey{Pass: name, Subpass: name}
}

func (k OwnerKey) String() string {
	if k.Pass == k.Subpass {
		return k.Pass
	}
	return fmt.Sprintf("%s.%s", k.Pass, k.Subpass)
}

/**
 * @brief Keyed cache of descriptor sets shared by renderers and materials.
 * At most one set exists per (owner, set index).
 */
type DescriptorSetRegistry struct {
	mu   sync.Mutex
	sets map[OwnerKey]map[uint32]*DescriptorSet
	dev  Device
}

func NewDescriptorSetRegistry(dev Device) *DescriptorSetRegistry {
	return &DescriptorSetRegistry{
		sets: make(map[OwnerKey]map[uint32]*DescriptorSet),
		dev:  dev,
	}
}

// Register returns the set at (key, set), creating an unbuilt one on a miss.
func (r *DescriptorSetRegistry) Register(key OwnerKey, set uint32) *DescriptorSet {
	r.mu.Lock()
	defer r.mu.Unlock()

	owned, ok := r.sets[key]
	if !ok {
		owned = make(map[uint32]*DescriptorSet)
		r.sets[key] = owned
	}
	if ds, ok := owned[set]; ok {
		return ds
	}
	ds := NewDescriptorSet(key, set)
	owned[set] = ds
	return ds
}

// Unload drops every set of key except the bindless texture set.
func (r *DescriptorSetRegistry) Unload(key OwnerKey) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owned, ok := r.sets[key]
	if !ok {
		return
	}
	for set, ds := range owned {
		if set == BindlessTextureSet {
			continue
		}
		r.release(ds)
		delete(owned, set)
	}
	if len(owned) == 0 {
		delete(r.sets, key)
	}
}

// UnloadForce drops every set of key, the bindless set included.
func (r *DescriptorSetRegistry) UnloadForce(key OwnerKey) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ds := range r.sets[key] {
		r.release(ds)
	}
	delete(r.sets, key)
}

func (r *DescriptorSetRegistry) UnloadAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, owned := range r.sets {
		for _, ds := range owned {
			r.release(ds)
		}
	}
	r.sets = make(map[OwnerKey]map[uint32]*DescriptorSet)
	core.LogDebug("descriptor set registry cleared")
}

// GetByName returns a copy of the set index map of key.
func (r *DescriptorSetRegistry) GetByName(key OwnerKey) map[uint32]*DescriptorSet {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[uint32]*DescriptorSet, len(r.sets[key]))
	for set, ds := range r.sets[key] {
		out[set] = ds
	}
	return out
}

// Owners lists the registered owners, sorted for stable output.
func (r *DescriptorSetRegistry) Owners() []OwnerKey {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]OwnerKey, 0, len(r.sets))
	for k := range r.sets {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func (r *DescriptorSetRegistry) release(ds *DescriptorSet) {
	if r.dev != nil {
		ds.Destroy(r.dev)
	}
}
