package renderer

import (
	"reflect"
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/spices/engine/core"
	"github.com/spaghettifunk/spices/engine/renderer/components"
)

type Entity uint32

// WorldMark flags world changes the renderers react to between frames.
type WorldMark uint32

const (
	MarkMeshAdded WorldMark = 1 << iota
	MarkFrameBufferResized
)

/**
 * @brief The scene the renderers read. Only iteration by component kind is
 * required; every entity owns a transform.
 */
type World interface {
	// Each calls fn for every entity holding a component of kind, in ascending
	// entity order, until fn returns false.
	Each(kind reflect.Type, fn func(e Entity, transform *components.TransformComponent, comp any) bool)
	Marks() WorldMark
	ClearMarks(marks WorldMark)
}

// IterWorldComp iterates the entities holding a component of type C.
func IterWorldComp[C any](w World, fn func(e Entity, transform *components.TransformComponent, comp *C) bool) {
	if w == nil {
		return
	}
	w.Each(reflect.TypeFor[C](), func(e Entity, t *components.TransformComponent, comp any) bool {
		c, ok := comp.(*C)
		if !ok {
			return true
		}
		return fn(e, t, c)
	})
}

/**
 * @brief An in-memory World, used by the CLI and the tests.
 */
type MemoryWorld struct {
	mu         sync.Mutex
	next       Entity
	transforms map[Entity]*components.TransformComponent
	comps      map[reflect.Type]map[Entity]any
	marks      WorldMark
}

func NewMemoryWorld() *MemoryWorld {
	return &MemoryWorld{
		transforms: make(map[Entity]*components.TransformComponent),
		comps:      make(map[reflect.Type]map[Entity]any),
	}
}

func (w *MemoryWorld) CreateEntity() Entity {
	w.mu.Lock()
	defer w.mu.Unlock()
	e := w.next
	w.next++
	w.transforms[e] = components.NewTransformComponent()
	return e
}

func (w *MemoryWorld) Transform(e Entity) *components.TransformComponent {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.transforms[e]
}

// AddComponent attaches comp (a pointer) to e. Adding a mesh sets MarkMeshAdded.
func AddComponent[C any](w *MemoryWorld, e Entity, comp *C) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.transforms[e]; !ok {
		core.LogWarn("world: entity %d does not exist", e)
		return
	}
	kind := reflect.TypeFor[C]()
	byEntity, ok := w.comps[kind]
	if !ok {
		byEntity = make(map[Entity]any)
		w.comps[kind] = byEntity
	}
	byEntity[e] = comp
	if kind == reflect.TypeFor[components.MeshComponent]() {
		w.marks |= MarkMeshAdded
	}
}

func (w *MemoryWorld) Each(kind reflect.Type, fn func(e Entity, transform *components.TransformComponent, comp any) bool) {
	w.mu.Lock()
	byEntity := w.comps[kind]
	entities := make([]Entity, 0, len(byEntity))
	for e := range byEntity {
		entities = append(entities, e)
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i] < entities[j] })
	type item struct {
		e Entity
		t *components.TransformComponent
		c any
	}
	items := make([]item, len(entities))
	for i, e := range entities {
		items[i] = item{e, w.transforms[e], byEntity[e]}
	}
	w.mu.Unlock()

	for _, it := range items {
		if !fn(it.e, it.t, it.c) {
			return
		}
	}
}

func (w *MemoryWorld) Marks() WorldMark {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.marks
}

func (w *MemoryWorld) Mark(marks WorldMark) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.marks |= marks
}

func (w *MemoryWorld) ClearMarks(marks WorldMark) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.marks &^= marks
}

/**
 * @brief What the pre-renderer publishes about the active camera.
 */
type CameraMatrix struct {
	InvView      mgl32.Mat4
	Projection   mgl32.Mat4
	StableFrames uint32
	FOV          float32
}

/**
 * GetActiveCameraMatrix returns the model matrix of the first active camera as
 * inverse view, with its projection. Without an active camera it warns and
 * returns identity matrices.
 */
func (r *Renderer) GetActiveCameraMatrix(world World) CameraMatrix {
	out := CameraMatrix{InvView: mgl32.Ident4(), Projection: mgl32.Ident4()}
	found := false
	IterWorldComp(world, func(_ Entity, t *components.TransformComponent, c *components.CameraComponent) bool {
		if !c.Active || c.Camera == nil {
			return true
		}
		camera := c.Camera
		// the transform drives the camera; only a real move resets the stable frames
		if t != nil && t.Position != camera.Position {
			camera.SetPosition(t.Position)
		}
		if t != nil && t.Rotation != camera.EulerRotation {
			camera.SetEulerRotation(t.Rotation)
		}
		out.InvView = camera.Transform()
		out.Projection = camera.Projection()
		out.StableFrames = camera.StableFrames
		out.FOV = camera.FOV
		found = true
		return false
	})
	if !found {
		core.LogWarn("%s: not find a active camera in world", r.name)
	}
	return out
}

// GetDirectionalLight fills lights with the first directional light of the
// world followed by the sentinel.
func (r *Renderer) GetDirectionalLight(world World, lights []components.DirectionalLight) int {
	n := 0
	if len(lights) < 2 {
		core.LogError("%s: directional light array needs room for a light and the sentinel", r.name)
		return 0
	}
	IterWorldComp(world, func(_ Entity, t *components.TransformComponent, c *components.DirectionalLightComponent) bool {
		lights[n] = c.Light(t)
		n++
		return false
	})
	lights[n] = components.DirectionalLight{Intensity: components.LightSentinelIntensity}
	return n
}

// GetPointLight fills lights with every point light that fits, followed by the sentinel.
func (r *Renderer) GetPointLight(world World, lights []components.PointLight) int {
	n := 0
	if len(lights) == 0 {
		core.LogError("%s: point light array has no room for the sentinel", r.name)
		return 0
	}
	IterWorldComp(world, func(_ Entity, t *components.TransformComponent, c *components.PointLightComponent) bool {
		if n == len(lights)-1 {
			core.LogWarn("%s: more than %d point lights, the rest are ignored", r.name, n)
			return false
		}
		lights[n] = c.Light(t)
		n++
		return true
	})
	lights[n] = components.PointLight{Intensity: components.LightSentinelIntensity}
	return n
}

/**
 * GetDirectionalLightMatrix returns, for every directional light (up to the
 * slice length), an orthographic light-space matrix centered on the camera.
 */
func (r *Renderer) GetDirectionalLightMatrix(world World, matrices []mgl32.Mat4) int {
	var cameraPos mgl32.Vec3
	aspect := float32(1)
	IterWorldComp(world, func(_ Entity, t *components.TransformComponent, c *components.CameraComponent) bool {
		if !c.Active || c.Camera == nil {
			return true
		}
		if t != nil {
			cameraPos = t.Position
		}
		aspect = c.Camera.AspectRatio
		return false
	})

	n := 0
	IterWorldComp(world, func(_ Entity, t *components.TransformComponent, _ *components.DirectionalLightComponent) bool {
		if n == len(matrices) {
			return false
		}
		light := components.TransformComponent{Position: cameraPos, Rotation: t.Rotation, Scale: mgl32.Vec3{1, 1, 1}}
		view := light.ModelMatrix().Inv()
		projection := mgl32.Ortho(-aspect*30, aspect*30, -30, 30, -100000, 100000)
		matrices[n] = projection.Mul4(view)
		n++
		return true
	})
	return n
}
