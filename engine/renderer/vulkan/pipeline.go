package vulkan

import (
	"sort"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/spices/engine/core"
)

/**
 * @brief Holds a pipeline handle, the layout it was compiled against and the
 * bind point it is used with.
 */
type Pipeline struct {
	/** @brief The internal pipeline handle. */
	Handle vk.Pipeline
	/** @brief The pipeline layout, owned by the renderer that built it. */
	Layout vk.PipelineLayout
	/** @brief Graphics, compute or ray tracing. */
	BindPoint vk.PipelineBindPoint
	/** @brief Debug name. */
	Name string
}

/**
 * @brief Represents a single shader stage.
 */
type ShaderStage struct {
	Stage  vk.ShaderStageFlagBits
	Module vk.ShaderModule
	Entry  string
}

func NewShaderStage(dev Device, stage vk.ShaderStageFlagBits, code []byte) (ShaderStage, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return ShaderStage{}, errors.Newf("shader code of %d bytes is not SPIR-V", len(code))
	}
	module, err := dev.CreateShaderModule(code)
	if err != nil {
		return ShaderStage{}, errors.Wrap(err, "vkCreateShaderModule failed")
	}
	return ShaderStage{Stage: stage, Module: module, Entry: "main"}, nil
}

func (s ShaderStage) createInfo() vk.PipelineShaderStageCreateInfo {
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  s.Stage,
		Module: s.Module,
		PName:  VulkanSafeString(s.Entry),
	}
}

func (s *ShaderStage) Destroy(dev Device) {
	if s.Module != vk.NullShaderModule {
		dev.DestroyShaderModule(s.Module)
		s.Module = vk.NullShaderModule
	}
}

// SortedSetLayouts returns the layouts of sets ordered by set index.
func SortedSetLayouts(sets map[uint32]*DescriptorSet) []vk.DescriptorSetLayout {
	indices := make([]uint32, 0, len(sets))
	for set := range sets {
		indices = append(indices, set)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	layouts := make([]vk.DescriptorSetLayout, 0, len(indices))
	for _, set := range indices {
		if l := sets[set].Layout; l != nil {
			layouts = append(layouts, l)
		}
	}
	return layouts
}

/**
 * NewPipelineLayout creates a layout over the given set layouts. The push
 * constant range is included only when the subpass declared one.
 */
func NewPipelineLayout(dev Device, setLayouts []vk.DescriptorSetLayout, push *PushConstantRange) (vk.PipelineLayout, error) {
	info := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(setLayouts)),
		PSetLayouts:    setLayouts,
	}
	if push != nil && push.Size > 0 {
		info.PushConstantRangeCount = 1
		info.PPushConstantRanges = []vk.PushConstantRange{{
			StageFlags: push.Stages,
			Offset:     push.Offset,
			Size:       push.Size,
		}}
	}
	layout, err := dev.CreatePipelineLayout(&info)
	if err != nil {
		return nil, errors.Wrap(err, "vkCreatePipelineLayout failed")
	}
	return layout, nil
}

type GraphicsPipelineConfig struct {
	/** @brief Debug name. */
	Name string
	/** @brief The render pass and subpass the pipeline is used in. */
	RenderPass vk.RenderPass
	Subpass    uint32
	/** @brief The pipeline layout. */
	Layout vk.PipelineLayout
	/** @brief The shader stages. */
	Stages []ShaderStage
	/** @brief The stride of the vertex data; 0 disables vertex input. */
	Stride uint32
	/** @brief An array of attributes. */
	Attributes []vk.VertexInputAttributeDescription
	/** @brief One blend state per color attachment of the subpass. */
	Blends []vk.PipelineColorBlendAttachmentState
	/** @brief The initial viewport and scissor. */
	Extent vk.Extent2D
	/** @brief The face cull mode. */
	CullMode vk.CullModeFlagBits
	/** @brief Indicates if this pipeline should use wireframe mode. */
	IsWireframe bool
	DepthTest   bool
	DepthWrite  bool
}

// graphicsCreateInfo is shared by plain and indirect capable pipelines.
func graphicsCreateInfo(config *GraphicsPipelineConfig) vk.GraphicsPipelineCreateInfo {
	// Viewport state
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		PViewports: []vk.Viewport{{
			Width:    float32(config.Extent.Width),
			Height:   float32(config.Extent.Height),
			MinDepth: 0.0,
			MaxDepth: 1.0,
		}},
		ScissorCount: 1,
		PScissors:    []vk.Rect2D{{Extent: config.Extent}},
	}

	// Rasterizer
	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             ConditionalOperator(config.IsWireframe, vk.PolygonModeLine, vk.PolygonModeFill),
		LineWidth:               1.0,
		CullMode:                vk.CullModeFlags(config.CullMode),
		FrontFace:               vk.FrontFaceCounterClockwise,
		DepthBiasEnable:         vk.False,
	}

	// Multisampling.
	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:   vk.False,
		RasterizationSamples:  vk.SampleCount1Bit,
		MinSampleShading:      1.0,
		AlphaToCoverageEnable: vk.False,
		AlphaToOneEnable:      vk.False,
	}

	// Depth and stencil testing.
	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   vkBool(config.DepthTest),
		DepthWriteEnable:  vkBool(config.DepthWrite),
		DepthCompareOp:    vk.CompareOpLessOrEqual,
		StencilTestEnable: vk.False,
	}

	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(config.Blends)),
		PAttachments:    config.Blends,
	}

	// Dynamic state
	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicStateCreateInfo := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	// Vertex input
	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}
	if config.Stride > 0 {
		vertexInputInfo.VertexBindingDescriptionCount = 1
		vertexInputInfo.PVertexBindingDescriptions = []vk.VertexInputBindingDescription{{
			Binding:   0,
			Stride:    config.Stride,
			InputRate: vk.VertexInputRateVertex, // Move to next data entry for each vertex.
		}}
		vertexInputInfo.VertexAttributeDescriptionCount = uint32(len(config.Attributes))
		vertexInputInfo.PVertexAttributeDescriptions = config.Attributes
	}

	// Input assembly
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}

	stages := make([]vk.PipelineShaderStageCreateInfo, len(config.Stages))
	for i, s := range config.Stages {
		stages[i] = s.createInfo()
	}

	return vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerCreateInfo,
		PMultisampleState:   &multisamplingCreateInfo,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlendStateCreateInfo,
		PDynamicState:       &dynamicStateCreateInfo,
		Layout:              config.Layout,
		RenderPass:          config.RenderPass,
		Subpass:             config.Subpass,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}
}

func NewGraphicsPipeline(dev Device, config *GraphicsPipelineConfig) (*Pipeline, error) {
	if config.Layout == nil {
		return nil, errors.Newf("pipeline %s: no pipeline layout", config.Name)
	}
	info := graphicsCreateInfo(config)
	handle, err := dev.CreateGraphicsPipeline(&info)
	if err != nil {
		return nil, errors.Wrapf(err, "vkCreateGraphicsPipelines failed for %s", config.Name)
	}
	core.LogDebug("Graphics pipeline %s created!", config.Name)
	return &Pipeline{
		Handle:    handle,
		Layout:    config.Layout,
		BindPoint: vk.PipelineBindPointGraphics,
		Name:      config.Name,
	}, nil
}

/**
 * NewIndirectPipeline compiles an indirect capable variant of config whose
 * shader groups are the source pipelines, selected by the shader group token.
 */
func NewIndirectPipeline(dev GeneratedCommandsDevice, config *GraphicsPipelineConfig, sources []*Pipeline) (*Pipeline, error) {
	if len(sources) == 0 {
		return nil, errors.Newf("indirect pipeline %s: no source pipelines", config.Name)
	}
	handles := make([]vk.Pipeline, len(sources))
	for i, s := range sources {
		handles[i] = s.Handle
	}
	info := graphicsCreateInfo(config)
	handle, err := dev.CreateIndirectPipeline(&info, handles)
	if err != nil {
		return nil, errors.Wrapf(err, "indirect pipeline %s", config.Name)
	}
	core.LogDebug("Indirect pipeline %s created with %d shader groups", config.Name, len(sources))
	return &Pipeline{
		Handle:    handle,
		Layout:    config.Layout,
		BindPoint: vk.PipelineBindPointGraphics,
		Name:      config.Name,
	}, nil
}

func NewComputePipeline(dev Device, name string, layout vk.PipelineLayout, stage ShaderStage) (*Pipeline, error) {
	info := vk.ComputePipelineCreateInfo{
		SType:              vk.StructureTypeComputePipelineCreateInfo,
		Stage:              stage.createInfo(),
		Layout:             layout,
		BasePipelineHandle: vk.NullPipeline,
		BasePipelineIndex:  -1,
	}
	handle, err := dev.CreateComputePipeline(&info)
	if err != nil {
		return nil, errors.Wrapf(err, "vkCreateComputePipelines failed for %s", name)
	}
	return &Pipeline{
		Handle:    handle,
		Layout:    layout,
		BindPoint: vk.PipelineBindPointCompute,
		Name:      name,
	}, nil
}

func NewRayTracingPipeline(dev RayTracingDevice, name string, layout vk.PipelineLayout, stages []ShaderStage, maxRecursion uint32) (*Pipeline, error) {
	info := RayTracingPipelineInfo{
		Layout:       layout,
		MaxRecursion: max(maxRecursion, 1),
	}
	for _, s := range stages {
		info.Stages = append(info.Stages, s.createInfo())
	}
	handle, err := dev.CreateRayTracingPipeline(&info)
	if err != nil {
		return nil, errors.Wrapf(err, "ray tracing pipeline %s", name)
	}
	return &Pipeline{
		Handle:    handle,
		Layout:    layout,
		BindPoint: PipelineBindPointRayTracing,
		Name:      name,
	}, nil
}

// VK_PIPELINE_BIND_POINT_RAY_TRACING_KHR
const PipelineBindPointRayTracing vk.PipelineBindPoint = 1000165000

// Destroy releases the pipeline; the layout belongs to the renderer.
func (pipeline *Pipeline) Destroy(dev Device) {
	if pipeline.Handle != vk.NullPipeline {
		dev.DestroyPipeline(pipeline.Handle)
		pipeline.Handle = vk.NullPipeline
	}
}

func (pipeline *Pipeline) Bind(dev Device, cmd *CommandBuffer) {
	dev.CmdBindPipeline(cmd, pipeline.BindPoint, pipeline.Handle)
}
