package renderer

import (
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/spices/engine/core"
)

var ErrRendererExists = errors.New("renderer already registered")

/**
 * @brief Owns the renderers of the backend, in the order they run every frame.
 */
type RendererManager struct {
	mu      sync.Mutex
	backend *Backend
	passes  []Pass
	byName  map[string]Pass

	/** @brief Broadcast after the window (swapchain) was resized and the renderers rebuilt. */
	WindowResized core.Delegate[vk.Extent2D]
	/** @brief Broadcast after the viewport (slate) was resized and the renderers rebuilt. */
	SlateResized core.Delegate[vk.Extent2D]
}

func NewRendererManager(backend *Backend) *RendererManager {
	return &RendererManager{
		backend: backend,
		byName:  make(map[string]Pass),
	}
}

// Push initializes p and appends it to the frame order.
func (m *RendererManager) Push(p Pass) error {
	name := p.Base().Name()
	m.mu.Lock()
	if _, ok := m.byName[name]; ok {
		m.mu.Unlock()
		core.LogWarn("RendererManager::Push: Already has a renderer called: %s", name)
		return errors.Wrapf(ErrRendererExists, "%s", name)
	}
	m.mu.Unlock()

	if err := OnSystemInitialize(p); err != nil {
		p.Destroy()
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.passes = append(m.passes, p)
	m.byName[name] = p
	return nil
}

// Pop destroys and removes the named renderer.
func (m *RendererManager) Pop(name string) bool {
	m.mu.Lock()
	p, ok := m.byName[name]
	if ok {
		delete(m.byName, name)
		m.passes = slices.DeleteFunc(m.passes, func(q Pass) bool { return q == p })
	}
	m.mu.Unlock()
	if !ok {
		core.LogWarn("RendererManager::Pop: Not such a renderer called: %s", name)
		return false
	}
	p.Destroy()
	return true
}

// GetRenderer returns the named renderer or nil.
func (m *RendererManager) GetRenderer(name string) Pass {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byName[name]
	if !ok {
		core.LogError("RendererManager::GetRenderer: Not such a renderer called: %s", name)
		return nil
	}
	return p
}

// Names lists the renderers in frame order.
func (m *RendererManager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.passes))
	for i, p := range m.passes {
		names[i] = p.Base().Name()
	}
	return names
}

func (m *RendererManager) snapshot() []Pass {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.passes)
}

/**
 * Run renders one frame. World marks are handled first, then materials whose
 * shaders changed are rebuilt, then every renderer records in order. A
 * failing renderer does not stop the others; the errors are combined.
 */
func (m *RendererManager) Run(ts *core.TimeStep, frame *FrameInfo) error {
	passes := m.snapshot()
	var result error

	if frame.World != nil && frame.World.Marks()&MarkMeshAdded != 0 {
		result = errors.CombineErrors(result, m.OnMeshAddedWorld(frame.World))
		frame.World.ClearMarks(MarkMeshAdded)
	}

	for _, key := range m.backend.Materials.TakeDirty() {
		for _, p := range passes {
			if r := p.Base(); r.ID() == key.Renderer {
				if err := r.RebuildMaterial(key); err != nil {
					core.LogError("%s: rebuild material %s: %s", r.Name(), key, err)
					result = errors.CombineErrors(result, err)
				}
			}
		}
	}

	for _, p := range passes {
		if err := p.Render(ts, frame); err != nil {
			core.LogError("%s: render: %s", p.Base().Name(), err)
			result = errors.CombineErrors(result, err)
		}
	}
	return result
}

// OnMeshAddedWorld forwards a world change to the renderers listening for it.
func (m *RendererManager) OnMeshAddedWorld(world World) error {
	var result error
	for _, p := range m.snapshot() {
		if l, ok := p.(MeshAddedListener); ok {
			result = errors.CombineErrors(result, l.OnMeshAddedWorld(world))
		}
	}
	return result
}

/**
 * OnWindowResizeOver adopts the new swapchain and lets the renderers bound to
 * it rebuild. The others follow the slate.
 */
func (m *RendererManager) OnWindowResizeOver(extent vk.Extent2D, views []vk.ImageView) error {
	if extent.Width == 0 || extent.Height == 0 {
		core.LogDebug("RendererManager: window minimized, skipping resize")
		return nil
	}
	ctx := m.backend.Context
	ctx.Resize(extent, views)
	var result error
	for _, p := range m.snapshot() {
		if l, ok := p.(WindowResizeListener); ok {
			result = errors.CombineErrors(result, l.OnWindowResizeOver())
		}
	}
	ctx.MarkRebuilt()
	m.WindowResized.Broadcast(extent)
	return result
}

// OnSlateResize drops the size dependent resources and rebuilds every renderer against extent.
func (m *RendererManager) OnSlateResize(extent vk.Extent2D) error {
	if extent.Width == 0 || extent.Height == 0 {
		return nil
	}
	ctx := m.backend.Context
	ctx.Resize(extent, nil)
	m.backend.Resources.OnResize(extent.Width, extent.Height)
	var result error
	for _, p := range m.snapshot() {
		result = errors.CombineErrors(result, OnSlateResize(p))
	}
	ctx.MarkRebuilt()
	m.SlateResized.Broadcast(extent)
	return result
}

// Destroy releases the renderers in reverse push order.
func (m *RendererManager) Destroy() {
	passes := m.snapshot()
	for i := len(passes) - 1; i >= 0; i-- {
		passes[i].Destroy()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passes = nil
	clear(m.byName)
}
