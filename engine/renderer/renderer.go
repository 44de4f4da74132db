package renderer

import (
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/spices/engine/core"
	"github.com/spaghettifunk/spices/engine/renderer/vulkan"
)

// PreRendererName owns the sets every pipeline layout starts with.
const PreRendererName = "PreRenderer"

var (
	ErrNoRenderPass          = errors.New("renderer has no render pass")
	ErrSubpassNotFound       = errors.New("subpass not found")
	ErrSetIndexGap           = errors.New("descriptor set indices are not contiguous")
	ErrDGCUnsupported        = errors.New("device does not support generated commands")
	ErrRayTracingUnsupported = errors.New("device does not support ray tracing")
)

/**
 * @brief What a frame hands to every renderer.
 */
type FrameInfo struct {
	FrameIndex uint32
	ImageIndex uint32
	World      World
}

/**
 * @brief A renderer as the manager sees it. Concrete renderers embed *Renderer
 * and implement the three creation hooks plus Render.
 */
type Pass interface {
	Base() *Renderer
	CreateRendererPass() error
	CreateDescriptorSet() error
	Render(ts *core.TimeStep, frame *FrameInfo) error
	Destroy()
}

// DGCLayoutCreator is implemented by renderers that draw through generated commands.
type DGCLayoutCreator interface {
	CreateDeviceGeneratedCommandsLayout() error
}

type WindowResizeListener interface {
	OnWindowResizeOver() error
}

type SlateResizeListener interface {
	OnSlateResize() error
}

type MeshAddedListener interface {
	OnMeshAddedWorld(world World) error
}

// PipelineCreator replaces the default pipeline of a material.
type PipelineCreator interface {
	CreatePipeline(material *Material, subpass *vulkan.SubPass, layout vk.PipelineLayout, stages []vulkan.ShaderStage) (*vulkan.Pipeline, error)
}

// StageProvider replaces the default stages of a subpass.
type StageProvider interface {
	DefaultStages(subpass *vulkan.SubPass) []vk.ShaderStageFlagBits
}

/**
 * @brief The state shared by every renderer: its pass, the pipeline layout of
 * each subpass, the generated commands data of each subpass and the identity
 * its materials are cached under.
 */
type Renderer struct {
	backend     *Backend
	name        string
	id          uuid.UUID
	loadDefault bool
	bindPoint   vk.PipelineBindPoint

	passName string
	pass     *vulkan.RenderPass

	// one shared layout per subpass, owned by the renderer; secondaries look them up concurrently
	layoutsMu    sync.Mutex
	layouts      map[string]vk.PipelineLayout
	dgc          map[string]*vulkan.IndirectDrawData
	dgcMaterials map[string][]string

	self Pass
}

func NewRenderer(backend *Backend, name string, bindPoint vk.PipelineBindPoint, loadDefault bool) *Renderer {
	return &Renderer{
		backend:      backend,
		name:         name,
		id:           uuid.New(),
		loadDefault:  loadDefault,
		bindPoint:    bindPoint,
		passName:     name,
		layouts:      make(map[string]vk.PipelineLayout),
		dgc:          make(map[string]*vulkan.IndirectDrawData),
		dgcMaterials: make(map[string][]string),
	}
}

func (r *Renderer) Base() *Renderer {
	return r
}

func (r *Renderer) Name() string {
	return r.name
}

func (r *Renderer) ID() uuid.UUID {
	return r.id
}

func (r *Renderer) Backend() *Backend {
	return r.backend
}

func (r *Renderer) Device() vulkan.Device {
	return r.backend.Device
}

func (r *Renderer) BindPoint() vk.PipelineBindPoint {
	return r.bindPoint
}

func (r *Renderer) RenderPass() *vulkan.RenderPass {
	return r.pass
}

// DGCData returns the generated commands data of subpass, nil when it has none.
func (r *Renderer) DGCData(subpass string) *vulkan.IndirectDrawData {
	return r.dgc[subpass]
}

/**
 * OnSystemInitialize runs the creation hooks of p in order: render pass,
 * descriptor sets, default materials and, when the backend enables them,
 * the generated commands layouts.
 */
func OnSystemInitialize(p Pass) error {
	r := p.Base()
	r.self = p
	if err := p.CreateRendererPass(); err != nil {
		return errors.Wrapf(err, "%s: create render pass", r.name)
	}
	if err := p.CreateDescriptorSet(); err != nil {
		return errors.Wrapf(err, "%s: create descriptor sets", r.name)
	}
	if r.loadDefault {
		if err := r.CreateDefaultMaterial(); err != nil {
			return errors.Wrapf(err, "%s: create default materials", r.name)
		}
	}
	if c, ok := p.(DGCLayoutCreator); ok && r.backend.DGCEnabled() {
		if err := c.CreateDeviceGeneratedCommandsLayout(); err != nil {
			return errors.Wrapf(err, "%s: create generated commands layout", r.name)
		}
	}
	core.LogDebug("%s: initialized", r.name)
	return nil
}

// Recreate rebuilds the pass and rewrites the descriptor sets against the new attachments.
func Recreate(p Pass) error {
	r := p.Base()
	if err := p.CreateRendererPass(); err != nil {
		return errors.Wrapf(err, "%s: recreate render pass", r.name)
	}
	if err := p.CreateDescriptorSet(); err != nil {
		return errors.Wrapf(err, "%s: recreate descriptor sets", r.name)
	}
	return nil
}

// OnSlateResize lets p handle the resize itself, otherwise recreates it.
func OnSlateResize(p Pass) error {
	if l, ok := p.(SlateResizeListener); ok {
		return l.OnSlateResize()
	}
	return Recreate(p)
}

// OwnerKey is the descriptor set owner of one subpass of this renderer.
func (r *Renderer) OwnerKey(subpass string) vulkan.OwnerKey {
	return vulkan.OwnerKey{Pass: r.passName, Subpass: subpass}
}

// MaterialKey is the cache key of a material of this renderer.
func (r *Renderer) MaterialKey(subpass, material string, variant MaterialVariant) MaterialKey {
	return MaterialKey{Renderer: r.id, Subpass: subpass, Material: material, Variant: variant}
}

func (r *Renderer) SubPass(name string) (*vulkan.SubPass, error) {
	if r.pass == nil || r.pass.Draft == nil {
		return nil, errors.Wrapf(ErrNoRenderPass, "%s", r.name)
	}
	sp, ok := r.pass.Draft.SubPass(name)
	if !ok {
		return nil, errors.Wrapf(ErrSubpassNotFound, "%s: %s", r.name, name)
	}
	return sp, nil
}

// SubpassBuffer returns the buffer a descriptor set builder bound at (set, binding).
func (r *Renderer) SubpassBuffer(subpass string, set, binding uint32) (*vulkan.Buffer, error) {
	sp, err := r.SubPass(subpass)
	if err != nil {
		return nil, err
	}
	buf, ok := sp.Buffer(set, binding)
	if !ok {
		return nil, errors.Newf("%s.%s: no buffer at set %d binding %d", r.name, subpass, set, binding)
	}
	return buf, nil
}

/**
 * PipelineSets returns the sets a pipeline of subpass sees: the pre-renderer
 * sets, then the subpass sets, then the material sets, later ones winning on
 * the same index.
 */
func (r *Renderer) PipelineSets(subpass string, material *Material) map[uint32]*vulkan.DescriptorSet {
	registry := r.backend.Registry
	sets := registry.GetByName(vulkan.OwnerKeyOf(PreRendererName))
	if r.passName != PreRendererName {
		maps.Copy(sets, registry.GetByName(r.OwnerKey(subpass)))
	}
	if material != nil {
		maps.Copy(sets, material.Sets)
	}
	return sets
}

func (r *Renderer) newPipelineLayout(sp *vulkan.SubPass, sets map[uint32]*vulkan.DescriptorSet) (vk.PipelineLayout, error) {
	for i := uint32(0); i < uint32(len(sets)); i++ {
		ds, ok := sets[i]
		if !ok {
			return nil, errors.Wrapf(ErrSetIndexGap, "%s.%s: set %d missing of %d", r.name, sp.Name, i, len(sets))
		}
		if !ds.IsBuilt() {
			return nil, errors.Newf("%s.%s: set %d is not built", r.name, sp.Name, i)
		}
	}
	var push *vulkan.PushConstantRange
	if pc, ok := sp.PushConstant(); ok {
		push = &pc
	}
	return vulkan.NewPipelineLayout(r.backend.Device, vulkan.SortedSetLayouts(sets), push)
}

// SubpassLayout returns the shared pipeline layout of sp, creating it on first use.
func (r *Renderer) SubpassLayout(sp *vulkan.SubPass) (vk.PipelineLayout, error) {
	r.layoutsMu.Lock()
	defer r.layoutsMu.Unlock()
	if layout, ok := r.layouts[sp.Name]; ok {
		return layout, nil
	}
	layout, err := r.newPipelineLayout(sp, r.PipelineSets(sp.Name, nil))
	if err != nil {
		return nil, err
	}
	r.layouts[sp.Name] = layout
	return layout, nil
}

/**
 * CreatePipelineLayout returns the layout a material of sp is compiled
 * against. Materials without sets of their own share the subpass layout;
 * owned reports whether the caller owns the returned layout.
 */
func (r *Renderer) CreatePipelineLayout(sp *vulkan.SubPass, material *Material) (layout vk.PipelineLayout, owned bool, err error) {
	if material == nil || len(material.Sets) == 0 {
		layout, err = r.SubpassLayout(sp)
		return layout, false, err
	}
	layout, err = r.newPipelineLayout(sp, r.PipelineSets(sp.Name, material))
	return layout, err == nil, err
}

func (r *Renderer) defaultStages(sp *vulkan.SubPass) []vk.ShaderStageFlagBits {
	if p, ok := r.self.(StageProvider); ok {
		return p.DefaultStages(sp)
	}
	switch r.bindPoint {
	case vk.PipelineBindPointCompute:
		return []vk.ShaderStageFlagBits{vk.ShaderStageComputeBit}
	case vulkan.PipelineBindPointRayTracing:
		return []vk.ShaderStageFlagBits{vulkan.ShaderStageRaygen, vulkan.ShaderStageMiss, vulkan.ShaderStageClosestHit}
	default:
		return []vk.ShaderStageFlagBits{vk.ShaderStageVertexBit, vk.ShaderStageFragmentBit}
	}
}

// stageOrder is the order stages are handed to pipelines; ray tracing groups depend on it.
var stageOrder = []vk.ShaderStageFlagBits{
	vulkan.ShaderStageTask, vulkan.ShaderStageMesh,
	vk.ShaderStageVertexBit, vk.ShaderStageGeometryBit, vk.ShaderStageFragmentBit,
	vk.ShaderStageComputeBit,
	vulkan.ShaderStageRaygen, vulkan.ShaderStageMiss, vulkan.ShaderStageClosestHit,
}

// loadStages creates the shader modules of material, returning the modules and the shader names used.
func (r *Renderer) loadStages(material *Material, sp *vulkan.SubPass) ([]vulkan.ShaderStage, []string, error) {
	shaders := make(map[vk.ShaderStageFlagBits]string)
	if len(material.Shaders) > 0 {
		maps.Copy(shaders, material.Shaders)
	} else {
		for _, stage := range r.defaultStages(sp) {
			shaders[stage] = material.ShaderBaseName()
		}
	}

	var stages []vulkan.ShaderStage
	var names []string
	destroy := func() {
		for i := range stages {
			stages[i].Destroy(r.backend.Device)
		}
	}
	for _, stage := range stageOrder {
		name, ok := shaders[stage]
		if !ok {
			continue
		}
		code, err := r.backend.Shaders.Load(name, stage)
		if err != nil {
			destroy()
			return nil, nil, errors.Wrapf(err, "material %s: %s stage", material.Name, vulkan.ShaderStageType(stage))
		}
		s, err := vulkan.NewShaderStage(r.backend.Device, stage, code)
		if err != nil {
			destroy()
			return nil, nil, errors.Wrapf(err, "material %s: %s stage", material.Name, vulkan.ShaderStageType(stage))
		}
		stages = append(stages, s)
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	if len(stages) == 0 {
		return nil, nil, errors.Newf("material %s has no shader stages", material.Name)
	}
	return stages, names, nil
}

// GraphicsPipelineConfig is the default fixed function state of a graphics subpass.
func (r *Renderer) GraphicsPipelineConfig(sp *vulkan.SubPass, name string, layout vk.PipelineLayout, stages []vulkan.ShaderStage) *vulkan.GraphicsPipelineConfig {
	_, depth := sp.DepthReference()
	return &vulkan.GraphicsPipelineConfig{
		Name:       name,
		RenderPass: r.pass.Handle,
		Subpass:    sp.Index,
		Layout:     layout,
		Stages:     stages,
		Blends:     sp.ColorBlends(),
		Extent:     r.pass.Extent,
		CullMode:   vk.CullModeBackBit,
		DepthTest:  depth,
		DepthWrite: depth,
	}
}

func (r *Renderer) createPipeline(material *Material, sp *vulkan.SubPass, layout vk.PipelineLayout, stages []vulkan.ShaderStage) (*vulkan.Pipeline, error) {
	if c, ok := r.self.(PipelineCreator); ok {
		return c.CreatePipeline(material, sp, layout, stages)
	}
	dev := r.backend.Device
	switch r.bindPoint {
	case vk.PipelineBindPointCompute:
		if len(stages) != 1 || stages[0].Stage != vk.ShaderStageComputeBit {
			return nil, errors.Newf("compute material %s needs exactly one compute stage", material.Name)
		}
		return vulkan.NewComputePipeline(dev, material.Name, layout, stages[0])
	case vulkan.PipelineBindPointRayTracing:
		rt, ok := vulkan.SupportsRayTracing(dev)
		if !ok {
			return nil, errors.Wrapf(ErrRayTracingUnsupported, "material %s", material.Name)
		}
		return vulkan.NewRayTracingPipeline(rt, material.Name, layout, stages, 1)
	default:
		return vulkan.NewGraphicsPipeline(dev, r.GraphicsPipelineConfig(sp, material.Name, layout, stages))
	}
}

/**
 * RegistryMaterial compiles materialName for subpass and caches the pipeline
 * under this renderer. Registering a material twice replaces the old pipeline.
 */
func (r *Renderer) RegistryMaterial(materialName, subpass string) error {
	sp, err := r.SubPass(subpass)
	if err != nil {
		return err
	}
	material, err := r.backend.Resources.LoadMaterial(materialName)
	if err != nil {
		return errors.Wrapf(err, "%s: load material %s", r.name, materialName)
	}
	layout, owned, err := r.CreatePipelineLayout(sp, material)
	if err != nil {
		return err
	}
	releaseLayout := func() {
		if owned {
			r.backend.Device.DestroyPipelineLayout(layout)
		}
	}

	stages, shaders, err := r.loadStages(material, sp)
	if err != nil {
		releaseLayout()
		return err
	}
	defer func() {
		for i := range stages {
			stages[i].Destroy(r.backend.Device)
		}
	}()

	pipeline, err := r.createPipeline(material, sp, layout, stages)
	if err != nil {
		releaseLayout()
		return errors.Wrapf(err, "%s: material %s", r.name, materialName)
	}
	var ownedLayout vk.PipelineLayout
	if owned {
		ownedLayout = layout
	}
	r.backend.Materials.Put(r.MaterialKey(subpass, materialName, VariantDefault), pipeline, ownedLayout, shaders)
	core.LogDebug("%s: material %s registered for subpass %s", r.name, materialName, subpass)
	return nil
}

// CreateDefaultMaterial registers "{renderer}.{subpass}.Default" for every subpass.
func (r *Renderer) CreateDefaultMaterial() error {
	if r.pass == nil {
		return errors.Wrapf(ErrNoRenderPass, "%s", r.name)
	}
	for _, sp := range r.pass.Draft.SubPasses() {
		if err := r.RegistryMaterial(DefaultMaterialName(r.name, sp.Name), sp.Name); err != nil {
			return err
		}
	}
	return nil
}

/**
 * RegistryDGCPipeline compiles the indirect pipeline of subpass whose shader
 * groups are the default pipelines of materials, in order. The generated
 * commands data of the subpass is pointed at the new pipeline.
 */
func (r *Renderer) RegistryDGCPipeline(subpass string, materials []string) error {
	gdev, ok := vulkan.SupportsGeneratedCommands(r.backend.Device)
	if !ok {
		return errors.Wrapf(ErrDGCUnsupported, "%s", r.name)
	}
	sp, err := r.SubPass(subpass)
	if err != nil {
		return err
	}
	layout, err := r.SubpassLayout(sp)
	if err != nil {
		return err
	}
	sources := make([]*vulkan.Pipeline, 0, len(materials))
	for _, m := range materials {
		p, err := r.backend.Materials.Get(r.MaterialKey(subpass, m, VariantDefault))
		if err != nil {
			return errors.Wrapf(err, "%s: indirect pipeline of %s", r.name, subpass)
		}
		sources = append(sources, p)
	}
	config := r.GraphicsPipelineConfig(sp, r.name+"."+subpass+".DGC", layout, nil)
	pipeline, err := vulkan.NewIndirectPipeline(gdev, config, sources)
	if err != nil {
		return err
	}
	r.backend.Materials.Put(r.MaterialKey(subpass, "", VariantDGC), pipeline, nil, nil)
	r.dgcMaterials[subpass] = slices.Clone(materials)
	if data := r.dgc[subpass]; data != nil {
		data.SetPipeline(pipeline.Handle)
	}
	return nil
}

// DGCMaterials returns the shader group order of the indirect pipeline of subpass.
func (r *Renderer) DGCMaterials(subpass string) []string {
	return r.dgcMaterials[subpass]
}

/**
 * RebuildMaterial recompiles the pipeline behind key after one of its shaders
 * changed. An indirect pipeline using the material is recompiled after it.
 */
func (r *Renderer) RebuildMaterial(key MaterialKey) error {
	if key.Renderer != r.id {
		return errors.Newf("%s: material key %s belongs to another renderer", r.name, key)
	}
	if key.Variant == VariantDGC {
		return r.RegistryDGCPipeline(key.Subpass, r.dgcMaterials[key.Subpass])
	}
	if err := r.RegistryMaterial(key.Material, key.Subpass); err != nil {
		return err
	}
	if slices.Contains(r.dgcMaterials[key.Subpass], key.Material) {
		return r.RegistryDGCPipeline(key.Subpass, r.dgcMaterials[key.Subpass])
	}
	return nil
}

func (r *Renderer) destroySubpassBuffers(draft *vulkan.PassDraft) {
	if draft == nil {
		return
	}
	for _, sp := range draft.SubPasses() {
		for _, k := range sp.BufferKeys() {
			if buf, ok := sp.Buffer(k.Set, k.Binding); ok && buf != nil {
				r.backend.Device.DestroyBuffer(buf)
			}
		}
	}
}

// Destroy releases everything the renderer created, its descriptor sets included.
func (r *Renderer) Destroy() {
	dev := r.backend.Device
	r.backend.Materials.RemoveRenderer(r.id)
	if gdev, ok := vulkan.SupportsGeneratedCommands(dev); ok {
		for _, subpass := range sortedKeys(r.dgc) {
			r.dgc[subpass].Destroy(gdev)
		}
	}
	clear(r.dgc)
	r.layoutsMu.Lock()
	for _, subpass := range sortedKeys(r.layouts) {
		dev.DestroyPipelineLayout(r.layouts[subpass])
	}
	clear(r.layouts)
	r.layoutsMu.Unlock()
	if r.pass != nil {
		r.destroySubpassBuffers(r.pass.Draft)
		r.pass.Destroy(dev, r.backend.Registry)
		r.pass = nil
	}
	core.LogDebug("%s: destroyed", r.name)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
