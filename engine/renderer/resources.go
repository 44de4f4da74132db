package renderer

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/spices/engine/assets"
	"github.com/spaghettifunk/spices/engine/core"
	"github.com/spaghettifunk/spices/engine/renderer/vulkan"
)

type TextureType int

const (
	Texture2D TextureType = iota
	Texture2DArray
	Texture2DCube
)

/**
 * @brief Describes a render resource (attachment or storage image) requested
 * by name from the resource pool.
 */
type ResourceCreateInfo struct {
	Name   string
	Type   TextureType
	Format vk.Format
	Width  uint32
	Height uint32
	/** @brief Array layers of a Texture2DArray. */
	Layers  uint32
	IsDepth bool
	/** @brief Extra usage, for example storage for compute and ray tracing targets. */
	Usage vk.ImageUsageFlags
	/** @brief The layout descriptors see the image in. */
	Layout vk.ImageLayout
}

/**
 * @brief A material: the shader of every stage and the descriptor sets it owns.
 */
type Material struct {
	Name string
	/** @brief Shader name per stage. Empty means the renderer's default stages. */
	Shaders map[vk.ShaderStageFlagBits]string
	/** @brief Sets owned by the material, merged over the renderer sets. */
	Sets map[uint32]*vulkan.DescriptorSet
}

// ShaderBaseName is the material name without its ".Default" suffix.
func (m *Material) ShaderBaseName() string {
	return strings.TrimSuffix(m.Name, ".Default")
}

var (
	ErrResourceNotFound = errors.New("resource not found")
)

/**
 * @brief The collaborator that owns textures, render targets and materials.
 */
type ResourcePool interface {
	// AccessResource returns the view of the named render resource, creating it on first use.
	AccessResource(info ResourceCreateInfo) (vk.DescriptorImageInfo, error)
	// Layers returns the array layer count of a named resource.
	Layers(name string) uint32
	LoadTexture(name string) (vk.DescriptorImageInfo, error)
	LoadMaterial(name string) (*Material, error)
	// OnResize drops every size dependent resource.
	OnResize(width, height uint32)
}

type memoryResource struct {
	info ResourceCreateInfo
	view vk.ImageView
}

/**
 * @brief A ResourcePool that keeps views created by a factory, used with the
 * headless device. Unknown materials resolve to an empty default material.
 */
type MemoryResourcePool struct {
	mu        sync.Mutex
	newView   func() vk.ImageView
	resources map[string]*memoryResource
	textures  map[string]vk.ImageView
	materials map[string]*Material
}

func NewMemoryResourcePool(newView func() vk.ImageView) *MemoryResourcePool {
	return &MemoryResourcePool{
		newView:   newView,
		resources: make(map[string]*memoryResource),
		textures:  make(map[string]vk.ImageView),
		materials: make(map[string]*Material),
	}
}

func (p *MemoryResourcePool) AccessResource(info ResourceCreateInfo) (vk.DescriptorImageInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if info.Name == "" {
		return vk.DescriptorImageInfo{}, errors.Wrap(ErrResourceNotFound, "empty resource name")
	}
	res, ok := p.resources[info.Name]
	if !ok {
		if info.Type == Texture2DArray && info.Layers == 0 {
			info.Layers = 1
		}
		res = &memoryResource{info: info, view: p.newView()}
		p.resources[info.Name] = res
		core.LogDebug("resource pool: created %s (%dx%d)", info.Name, info.Width, info.Height)
	}
	layout := info.Layout
	if layout == vk.ImageLayoutUndefined {
		layout = vk.ImageLayoutShaderReadOnlyOptimal
	}
	return vk.DescriptorImageInfo{ImageView: res.view, ImageLayout: layout}, nil
}

func (p *MemoryResourcePool) Layers(name string) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	res, ok := p.resources[name]
	if !ok {
		return 1
	}
	switch res.info.Type {
	case Texture2DCube:
		return 6
	case Texture2DArray:
		return res.info.Layers
	default:
		return 1
	}
}

func (p *MemoryResourcePool) LoadTexture(name string) (vk.DescriptorImageInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	view, ok := p.textures[name]
	if !ok {
		view = p.newView()
		p.textures[name] = view
	}
	return vk.DescriptorImageInfo{ImageView: view, ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal}, nil
}

func (p *MemoryResourcePool) RegisterMaterial(m *Material) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.materials[m.Name] = m
}

// LoadMaterialDir registers every *.material file found in dir.
func (p *MemoryResourcePool) LoadMaterialDir(dir string) (int, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.material"))
	if err != nil {
		return 0, errors.Wrapf(err, "materials in %s", dir)
	}
	for _, path := range paths {
		cfg, err := assets.LoadMaterialConfig(path)
		if err != nil {
			return 0, err
		}
		m, err := MaterialFromConfig(cfg)
		if err != nil {
			return 0, err
		}
		p.RegisterMaterial(m)
	}
	return len(paths), nil
}

// MaterialFromConfig resolves the stage names of a material file.
func MaterialFromConfig(cfg *assets.MaterialConfig) (*Material, error) {
	m := &Material{Name: cfg.Name, Shaders: make(map[vk.ShaderStageFlagBits]string, len(cfg.Stages))}
	for typ, shader := range cfg.Stages {
		stage, ok := vulkan.ShaderStageFromType(typ)
		if !ok {
			return nil, errors.Newf("material %s: unknown stage %q", cfg.Name, typ)
		}
		m.Shaders[stage] = shader
	}
	return m, nil
}

func (p *MemoryResourcePool) LoadMaterial(name string) (*Material, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m, ok := p.materials[name]; ok {
		return m, nil
	}
	m := &Material{Name: name, Shaders: map[vk.ShaderStageFlagBits]string{}}
	p.materials[name] = m
	return m, nil
}

// OnResize forgets the render targets; the next access recreates them.
func (p *MemoryResourcePool) OnResize(width, height uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, res := range p.resources {
		if res.info.Width != width || res.info.Height != height {
			delete(p.resources, name)
		}
	}
}
