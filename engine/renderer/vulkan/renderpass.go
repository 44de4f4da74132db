package vulkan

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/spices/engine/core"
)

type PassDraftState int

const (
	PASS_STATE_EMPTY PassDraftState = iota
	PASS_STATE_SUBPASS_OPEN
	PASS_STATE_SUBPASS_CLOSED
	PASS_STATE_FINALIZING
	PASS_STATE_BUILT
)

func (s PassDraftState) String() string {
	return [...]string{"empty", "subpass open", "subpass closed", "finalizing", "built"}[s]
}

var (
	ErrNoSubpasses            = errors.New("render pass has no subpasses")
	ErrSubpassOpen            = errors.New("render pass has an open subpass")
	ErrNoOpenSubpass          = errors.New("no subpass is open")
	ErrAttachmentViewMismatch = errors.New("image view count does not match the attachment count")
	ErrSwapchainViews         = errors.New("not enough swapchain image views for the frames in flight")
	ErrTopologyChanged        = errors.New("render pass topology changed between builds")
	ErrFramesInFlight         = errors.New("frames in flight out of range")
)

/**
 * @brief A named attachment of a pass draft.
 */
type Attachment struct {
	Name        string
	Index       uint32
	Description vk.AttachmentDescription
	Clear       ClearValue
	Layers      uint32
	/** @brief Nil for the swapchain image, whose view changes every frame. */
	View vk.ImageView
}

/**
 * @brief What the configure callbacks of the Add*Attachment calls may change.
 */
type AttachmentConfig struct {
	Description vk.AttachmentDescription
	Clear       ClearValue
	/** @brief Color attachments only: alpha blending instead of overwrite. */
	EnableBlend bool
}

/**
 * @brief The draft of a render pass: attachments and subpasses accumulated by
 * the builder calls, validated and turned into native objects by Build.
 */
type PassDraft struct {
	Name string

	state           PassDraftState
	attachments     []*Attachment
	attachmentIndex map[string]uint32
	subpasses       []*SubPass
	subpassIndex    map[string]*SubPass
	open            *SubPass
	swapchain       bool
	maxLayers       uint32
}

func NewPassDraft(name string) *PassDraft {
	return &PassDraft{
		Name:            name,
		state:           PASS_STATE_EMPTY,
		attachmentIndex: make(map[string]uint32),
		subpassIndex:    make(map[string]*SubPass),
		maxLayers:       1,
	}
}

func (d *PassDraft) State() PassDraftState {
	return d.state
}

// AddSubPass opens a new subpass. A duplicate name logs a warning and returns nil.
func (d *PassDraft) AddSubPass(name string) *SubPass {
	if _, ok := d.subpassIndex[name]; ok {
		core.LogWarn("RendererPass: %s: SubPass: %s already added.", d.Name, name)
		return nil
	}
	if d.open != nil {
		core.LogError("RendererPass: %s: SubPass %s opened while %s is still open", d.Name, name, d.open.Name)
		return nil
	}
	sp := newSubPass(name, uint32(len(d.subpasses)))
	d.subpasses = append(d.subpasses, sp)
	d.subpassIndex[name] = sp
	d.open = sp
	d.state = PASS_STATE_SUBPASS_OPEN
	return sp
}

// OpenSubPass returns the subpass accepting references, or nil.
func (d *PassDraft) OpenSubPass() *SubPass {
	return d.open
}

/**
 * AddAttachment registers an attachment and returns its index. A name that
 * is already registered returns the existing index and changes nothing.
 */
func (d *PassDraft) AddAttachment(name string, desc vk.AttachmentDescription, clear ClearValue, layers uint32, view vk.ImageView) uint32 {
	if idx, ok := d.attachmentIndex[name]; ok {
		return idx
	}
	if name == SwapChainImageName {
		d.swapchain = true
		view = nil
	}
	if layers == 0 {
		layers = 1
	}
	d.maxLayers = max(d.maxLayers, layers)

	idx := uint32(len(d.attachments))
	d.attachments = append(d.attachments, &Attachment{
		Name:        name,
		Index:       idx,
		Description: desc,
		Clear:       clear,
		Layers:      layers,
		View:        view,
	})
	d.attachmentIndex[name] = idx
	return idx
}

func defaultColorBlend(enable bool) vk.PipelineColorBlendAttachmentState {
	blend := vk.PipelineColorBlendAttachmentState{
		BlendEnable:         vk.False,
		SrcColorBlendFactor: vk.BlendFactorOne,
		DstColorBlendFactor: vk.BlendFactorZero,
		ColorBlendOp:        vk.BlendOpAdd,
		SrcAlphaBlendFactor: vk.BlendFactorOne,
		DstAlphaBlendFactor: vk.BlendFactorZero,
		AlphaBlendOp:        vk.BlendOpAdd,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
			vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
	}
	if enable {
		blend.BlendEnable = vk.True
		blend.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
		blend.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
	}
	return blend
}

func baseDescription(format vk.Format, layout vk.ImageLayout) vk.AttachmentDescription {
	return vk.AttachmentDescription{
		Format:         format,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpLoad,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  layout,
		FinalLayout:    layout,
	}
}

func (d *PassDraft) requireOpen(what string) (*SubPass, error) {
	if d.open == nil {
		core.LogError("RendererPass: %s: %s added without an open subpass", d.Name, what)
		return nil, errors.Wrapf(ErrNoOpenSubpass, "%s: %s", d.Name, what)
	}
	return d.open, nil
}

// AddSwapChainAttachment references the per frame swapchain image as a color attachment.
func (d *PassDraft) AddSwapChainAttachment(format vk.Format, configure func(*AttachmentConfig)) (uint32, error) {
	sp, err := d.requireOpen(SwapChainImageName)
	if err != nil {
		return 0, err
	}
	cfg := AttachmentConfig{
		Description: baseDescription(format, vk.ImageLayoutPresentSrc),
		Clear:       ColorClear(0, 0, 0, 1),
	}
	if configure != nil {
		configure(&cfg)
	}
	idx := d.AddAttachment(SwapChainImageName, cfg.Description, cfg.Clear, 1, nil)
	sp.AddColorAttachmentReference(AttachmentReference{Attachment: idx, Layout: vk.ImageLayoutColorAttachmentOptimal}, defaultColorBlend(cfg.EnableBlend))
	return idx, nil
}

func (d *PassDraft) AddColorAttachment(name string, format vk.Format, layers uint32, view vk.ImageView, configure func(*AttachmentConfig)) (uint32, error) {
	sp, err := d.requireOpen(name)
	if err != nil {
		return 0, err
	}
	cfg := AttachmentConfig{
		Description: baseDescription(format, vk.ImageLayoutColorAttachmentOptimal),
		Clear:       ColorClear(0, 0, 0, 1),
	}
	if configure != nil {
		configure(&cfg)
	}
	idx := d.AddAttachment(name, cfg.Description, cfg.Clear, layers, view)
	sp.AddColorAttachmentReference(AttachmentReference{Attachment: idx, Layout: vk.ImageLayoutColorAttachmentOptimal}, defaultColorBlend(cfg.EnableBlend))
	return idx, nil
}

func (d *PassDraft) AddDepthAttachment(name string, format vk.Format, layers uint32, view vk.ImageView, configure func(*AttachmentConfig)) (uint32, error) {
	sp, err := d.requireOpen(name)
	if err != nil {
		return 0, err
	}
	cfg := AttachmentConfig{
		Description: baseDescription(format, vk.ImageLayoutDepthStencilAttachmentOptimal),
		Clear:       DepthClear(1, 0),
	}
	if configure != nil {
		configure(&cfg)
	}
	cfg.Clear.IsDepth = true
	idx := d.AddAttachment(name, cfg.Description, cfg.Clear, layers, view)
	sp.SetDepthAttachmentReference(AttachmentReference{Attachment: idx, Layout: vk.ImageLayoutDepthStencilAttachmentOptimal})
	return idx, nil
}

// AddInputAttachment references an attachment written by an earlier subpass.
// The reference uses the final layout chosen by configure.
func (d *PassDraft) AddInputAttachment(name string, format vk.Format, view vk.ImageView, configure func(*AttachmentConfig)) (uint32, error) {
	sp, err := d.requireOpen(name)
	if err != nil {
		return 0, err
	}
	cfg := AttachmentConfig{
		Description: baseDescription(format, vk.ImageLayoutColorAttachmentOptimal),
		Clear:       ColorClear(0, 0, 0, 1),
	}
	if configure != nil {
		configure(&cfg)
	}
	idx := d.AddAttachment(name, cfg.Description, cfg.Clear, 1, view)
	// an attachment written earlier keeps its own final layout
	layout := d.attachments[idx].Description.FinalLayout
	sp.AddInputAttachmentReference(AttachmentReference{Attachment: idx, Layout: layout})
	return idx, nil
}

func (d *PassDraft) AddSelfDependency(srcAccess, dstAccess vk.AccessFlags, srcStage, dstStage vk.PipelineStageFlags) error {
	sp, err := d.requireOpen("self dependency")
	if err != nil {
		return err
	}
	sp.AddSelfDependency(srcAccess, dstAccess, srcStage, dstStage)
	return nil
}

// EndSubPass closes the open subpass and builds its dependencies.
func (d *PassDraft) EndSubPass() error {
	sp, err := d.requireOpen("end of subpass")
	if err != nil {
		return err
	}
	sp.close()
	d.open = nil
	d.state = PASS_STATE_SUBPASS_CLOSED
	return nil
}

func (d *PassDraft) Attachments() []*Attachment {
	return d.attachments
}

func (d *PassDraft) Attachment(name string) (*Attachment, bool) {
	idx, ok := d.attachmentIndex[name]
	if !ok {
		return nil, false
	}
	return d.attachments[idx], true
}

func (d *PassDraft) SubPasses() []*SubPass {
	return d.subpasses
}

func (d *PassDraft) SubPass(name string) (*SubPass, bool) {
	sp, ok := d.subpassIndex[name]
	return sp, ok
}

func (d *PassDraft) UsesSwapChain() bool {
	return d.swapchain
}

func (d *PassDraft) MaxLayers() uint32 {
	return d.maxLayers
}

// ClearValues returns one clear value per attachment, in attachment order.
func (d *PassDraft) ClearValues() []ClearValue {
	out := make([]ClearValue, len(d.attachments))
	for i, a := range d.attachments {
		out[i] = a.Clear
	}
	return out
}

// ImageViews returns the views bound by the caller, swapchain excluded.
func (d *PassDraft) ImageViews() []vk.ImageView {
	var out []vk.ImageView
	for _, a := range d.attachments {
		if a.View != nil {
			out = append(out, a.View)
		}
	}
	return out
}

/**
 * Dependencies returns the final dependency list: every closed subpass's
 * dependencies in subpass order followed by the trailing N-1 -> external one.
 */
func (d *PassDraft) Dependencies() []Dependency {
	var out []Dependency
	for _, sp := range d.subpasses {
		out = append(out, sp.Dependencies()...)
	}
	if len(d.subpasses) == 0 {
		return out
	}
	return append(out, Dependency{
		SrcSubpass: uint32(len(d.subpasses) - 1),
		DstSubpass: vk.SubpassExternal,
		SrcStage:   vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstStage:   vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
		SrcAccess:  vk.AccessFlags(vk.AccessColorAttachmentReadBit) | vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
		DstAccess:  vk.AccessFlags(vk.AccessMemoryReadBit),
		Flags:      vk.DependencyFlags(vk.DependencyByRegionBit),
	})
}

/**
 * Topology describes everything a resize must not change: attachment names
 * and formats, subpass references and the dependency list.
 */
func (d *PassDraft) Topology() string {
	var sb strings.Builder
	for _, a := range d.attachments {
		fmt.Fprintf(&sb, "a:%s/%d/%d;", a.Name, a.Description.Format, a.Layers)
	}
	for _, sp := range d.subpasses {
		fmt.Fprintf(&sb, "s:%s/%v/%v/%v;", sp.Name, sp.colors, sp.inputs, sp.depth != nil)
		if ref, ok := sp.DepthReference(); ok {
			fmt.Fprintf(&sb, "d:%v;", ref)
		}
	}
	for _, dep := range d.Dependencies() {
		fmt.Fprintf(&sb, "x:%v;", dep)
	}
	return sb.String()
}

func (d *PassDraft) validate() error {
	if d.open != nil {
		return errors.Wrapf(ErrSubpassOpen, "%s: %s", d.Name, d.open.Name)
	}
	if len(d.subpasses) == 0 {
		return errors.Wrapf(ErrNoSubpasses, "%s", d.Name)
	}
	expected := len(d.attachments)
	if d.swapchain {
		expected--
	}
	if views := len(d.ImageViews()); views != expected {
		core.LogError("%s: RendererPass Create Failed: Not enough imageview for attachment.", d.Name)
		return errors.Wrapf(ErrAttachmentViewMismatch, "%s: %d views for %d attachments", d.Name, views, len(d.attachments))
	}
	return nil
}

/**
 * @brief The native render pass built from a draft, with one framebuffer per
 * frame in flight.
 */
type RenderPass struct {
	Name         string
	Handle       vk.RenderPass
	Framebuffers []*Framebuffer
	Extent       vk.Extent2D
	Draft        *PassDraft

	dependencies []Dependency
	clearValues  []ClearValue
}

/**
 * Build validates the draft and creates the render pass and its framebuffers.
 * With a swapchain attachment, frame i uses swapchainViews[i] in its slot.
 */
func (d *PassDraft) Build(dev Device, frames uint32, extent vk.Extent2D, swapchainViews []vk.ImageView) (*RenderPass, error) {
	if frames == 0 || frames > MaxFramesInFlight {
		return nil, errors.Wrapf(ErrFramesInFlight, "%s: %d", d.Name, frames)
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	if d.swapchain && uint32(len(swapchainViews)) < frames {
		return nil, errors.Wrapf(ErrSwapchainViews, "%s: %d views for %d frames", d.Name, len(swapchainViews), frames)
	}
	d.state = PASS_STATE_FINALIZING

	descriptions := make([]vk.AttachmentDescription, len(d.attachments))
	for i, a := range d.attachments {
		descriptions[i] = a.Description
	}
	subpasses := make([]vk.SubpassDescription, len(d.subpasses))
	for i, sp := range d.subpasses {
		subpasses[i] = sp.description()
	}
	deps := d.Dependencies()
	nativeDeps := make([]vk.SubpassDependency, len(deps))
	for i, dep := range deps {
		nativeDeps[i] = dep.native()
	}

	info := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(descriptions)),
		PAttachments:    descriptions,
		SubpassCount:    uint32(len(subpasses)),
		PSubpasses:      subpasses,
		DependencyCount: uint32(len(nativeDeps)),
		PDependencies:   nativeDeps,
	}

	handle, err := dev.CreateRenderPass(&info)
	if err != nil {
		d.state = PASS_STATE_SUBPASS_CLOSED
		return nil, errors.Wrapf(err, "render pass %s", d.Name)
	}

	rp := &RenderPass{
		Name:         d.Name,
		Handle:       handle,
		Extent:       extent,
		Draft:        d,
		dependencies: deps,
		clearValues:  d.ClearValues(),
	}
	for frame := uint32(0); frame < frames; frame++ {
		views := make([]vk.ImageView, len(d.attachments))
		for i, a := range d.attachments {
			if a.Name == SwapChainImageName {
				views[i] = swapchainViews[frame]
			} else {
				views[i] = a.View
			}
		}
		fb, err := FramebufferCreate(dev, handle, extent.Width, extent.Height, d.maxLayers, views)
		if err != nil {
			rp.Destroy(dev, nil)
			d.state = PASS_STATE_SUBPASS_CLOSED
			return nil, errors.Wrapf(err, "framebuffer %d of %s", frame, d.Name)
		}
		rp.Framebuffers = append(rp.Framebuffers, fb)
	}

	d.state = PASS_STATE_BUILT
	core.LogDebug("render pass %s built: %d attachments, %d subpasses, %d dependencies, %d framebuffers",
		d.Name, len(descriptions), len(subpasses), len(deps), len(rp.Framebuffers))
	return rp, nil
}

// Rebuild replaces the pass after a resize. The new draft must keep the topology.
func (rp *RenderPass) Rebuild(dev Device, draft *PassDraft, frames uint32, extent vk.Extent2D, swapchainViews []vk.ImageView) (*RenderPass, error) {
	if rp.Draft != nil && rp.Draft.Topology() != draft.Topology() {
		core.LogError("render pass %s: topology changed on rebuild", rp.Name)
		return nil, errors.Wrapf(ErrTopologyChanged, "%s", rp.Name)
	}
	next, err := draft.Build(dev, frames, extent, swapchainViews)
	if err != nil {
		return nil, err
	}
	rp.Destroy(dev, nil)
	return next, nil
}

func (rp *RenderPass) Dependencies() []Dependency {
	return rp.dependencies
}

func (rp *RenderPass) ClearValues() []ClearValue {
	return rp.clearValues
}

func (rp *RenderPass) SubpassCount() int {
	if rp.Draft == nil {
		return 0
	}
	return len(rp.Draft.subpasses)
}

// BeginInfo fills the begin info of frame with the whole extent as render area.
func (rp *RenderPass) BeginInfo(frame uint32) vk.RenderPassBeginInfo {
	clear := make([]vk.ClearValue, len(rp.clearValues))
	for i, c := range rp.clearValues {
		clear[i] = c.native()
	}
	var fb vk.Framebuffer
	if int(frame) < len(rp.Framebuffers) {
		fb = rp.Framebuffers[frame].Handle
	}
	return vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp.Handle,
		Framebuffer: fb,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: rp.Extent,
		},
		ClearValueCount: uint32(len(clear)),
		PClearValues:    clear,
	}
}

// Begin starts the pass of frame on cmd. contents selects inline or secondary recording.
func (rp *RenderPass) Begin(dev Device, cmd *CommandBuffer, frame uint32, contents vk.SubpassContents) {
	info := rp.BeginInfo(frame)
	dev.CmdBeginRenderPass(cmd, &info, contents)
	cmd.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (rp *RenderPass) End(dev Device, cmd *CommandBuffer) {
	dev.CmdEndRenderPass(cmd)
	cmd.State = COMMAND_BUFFER_STATE_RECORDING
}

/**
 * Destroy releases the framebuffers and the render pass. With a registry,
 * every {pass, subpass} owner is unloaded too (bindless sets survive).
 */
func (rp *RenderPass) Destroy(dev Device, registry *DescriptorSetRegistry) {
	for _, fb := range rp.Framebuffers {
		fb.Destroy(dev)
	}
	rp.Framebuffers = nil
	if rp.Handle != nil {
		dev.DestroyRenderPass(rp.Handle)
		rp.Handle = nil
	}
	if registry != nil && rp.Draft != nil {
		for _, sp := range rp.Draft.subpasses {
			registry.Unload(OwnerKey{Pass: rp.Name, Subpass: sp.Name})
		}
	}
}
