package renderer

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/spices/engine/core"
	"github.com/spaghettifunk/spices/engine/renderer/vulkan"
)

type MaterialVariant int

const (
	VariantDefault MaterialVariant = iota
	// VariantDGC is the indirect pipeline whose shader groups are the subpass materials.
	VariantDGC
)

func (v MaterialVariant) String() string {
	switch v {
	case VariantDGC:
		return "DGC"
	default:
		return "Default"
	}
}

/**
 * @brief Identifies a cached pipeline: the renderer instance, the subpass, the
 * material and the variant. Two renderers never share entries.
 */
type MaterialKey struct {
	Renderer uuid.UUID
	Subpass  string
	Material string
	Variant  MaterialVariant
}

func (k MaterialKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.Renderer, k.Subpass, k.Material, k.Variant)
}

// DefaultMaterialName is the material every subpass loads when the renderer
// asks for defaults: "{renderer}.{subpass}.Default".
func DefaultMaterialName(renderer, subpass string) string {
	return fmt.Sprintf("%s.%s.Default", renderer, subpass)
}

var ErrMaterialNotRegistered = errors.New("material not registered")

type materialEntry struct {
	pipeline *vulkan.Pipeline
	// set when the entry created its own pipeline layout
	layout  vk.PipelineLayout
	shaders []string
}

/**
 * @brief Pipelines by material key. An entry owns its pipeline and, for
 * materials with their own descriptor sets, its pipeline layout.
 */
type MaterialCache struct {
	mu      sync.Mutex
	dev     vulkan.Device
	entries map[MaterialKey]*materialEntry
	dirty   map[MaterialKey]struct{}
}

func NewMaterialCache(dev vulkan.Device) *MaterialCache {
	return &MaterialCache{
		dev:     dev,
		entries: make(map[MaterialKey]*materialEntry),
		dirty:   make(map[MaterialKey]struct{}),
	}
}

// Put stores pipeline under key, releasing what the key held before.
func (c *MaterialCache) Put(key MaterialKey, pipeline *vulkan.Pipeline, ownedLayout vk.PipelineLayout, shaders []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.entries[key]; ok {
		c.release(old)
	}
	c.entries[key] = &materialEntry{pipeline: pipeline, layout: ownedLayout, shaders: shaders}
	delete(c.dirty, key)
}

func (c *MaterialCache) Get(key MaterialKey) (*vulkan.Pipeline, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, errors.Wrapf(ErrMaterialNotRegistered, "%s", key)
	}
	return e.pipeline, nil
}

func (c *MaterialCache) Has(key MaterialKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

func (c *MaterialCache) Remove(key MaterialKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.release(e)
		delete(c.entries, key)
	}
	delete(c.dirty, key)
}

// RemoveRenderer drops every entry of one renderer.
func (c *MaterialCache) RemoveRenderer(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		if key.Renderer == id {
			c.release(e)
			delete(c.entries, key)
			delete(c.dirty, key)
		}
	}
}

// Keys returns the cached keys in a stable order.
func (c *MaterialCache) Keys() []MaterialKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]MaterialKey, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys
}

// MarkShaderDirty flags every entry built from shader and returns how many were flagged.
func (c *MaterialCache) MarkShaderDirty(shader string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for key, e := range c.entries {
		if slices.Contains(e.shaders, shader) {
			c.dirty[key] = struct{}{}
			n++
		}
	}
	if n > 0 {
		core.LogDebug("material cache: shader %s marked %d materials dirty", shader, n)
	}
	return n
}

// TakeDirty returns and clears the dirty keys.
func (c *MaterialCache) TakeDirty() []MaterialKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]MaterialKey, 0, len(c.dirty))
	for k := range c.dirty {
		keys = append(keys, k)
	}
	clear(c.dirty)
	sortKeys(keys)
	return keys
}

func (c *MaterialCache) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		c.release(e)
	}
	clear(c.entries)
	clear(c.dirty)
}

func (c *MaterialCache) release(e *materialEntry) {
	if e.pipeline != nil {
		e.pipeline.Destroy(c.dev)
	}
	if e.layout != nil {
		c.dev.DestroyPipelineLayout(e.layout)
		e.layout = nil
	}
}

func sortKeys(keys []MaterialKey) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
}
