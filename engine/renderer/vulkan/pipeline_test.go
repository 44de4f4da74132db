package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
)

func TestPipelineLayoutPushRange(t *testing.T) {
	dev := NewHeadlessDevice()
	sets := map[uint32]*DescriptorSet{}
	for _, idx := range []uint32{2, 0, 1} {
		ds := NewDescriptorSet(OwnerKeyOf("PreRenderer"), idx)
		ds.AddBinding(0, vk.DescriptorTypeUniformBuffer, vk.ShaderStageFlags(vk.ShaderStageVertexBit), 1)
		if err := ds.BuildDescriptorSet(dev, NullAccelerationStructure); err != nil {
			t.Fatalf("BuildDescriptorSet: %v", err)
		}
		sets[idx] = ds
	}
	layouts := SortedSetLayouts(sets)
	for i, l := range layouts {
		if l != sets[uint32(i)].Layout {
			t.Fatalf("layout %d is not the layout of set %d", i, i)
		}
	}

	if _, err := NewPipelineLayout(dev, layouts, nil); err != nil {
		t.Fatalf("NewPipelineLayout: %v", err)
	}
	if _, err := NewPipelineLayout(dev, layouts, &PushConstantRange{
		Stages: vk.ShaderStageFlags(vk.ShaderStageAllGraphics),
		Size:   64,
	}); err != nil {
		t.Fatalf("NewPipelineLayout: %v", err)
	}

	plain, pushed := dev.PipelineLayoutInfos[0], dev.PipelineLayoutInfos[1]
	if plain.PushConstantRangeCount != 0 {
		t.Fatalf("layout without push constants declares %d ranges", plain.PushConstantRangeCount)
	}
	if pushed.PushConstantRangeCount != 1 || pushed.PPushConstantRanges[0].Size != 64 {
		t.Fatalf("push range = %+v", pushed.PPushConstantRanges)
	}
	if pushed.SetLayoutCount != 3 {
		t.Fatalf("set layout count = %d", pushed.SetLayoutCount)
	}
}

func TestShaderStageRejectsBadCode(t *testing.T) {
	dev := NewHeadlessDevice()
	if _, err := NewShaderStage(dev, vk.ShaderStageVertexBit, []byte{1, 2, 3}); err == nil {
		t.Fatalf("3 byte shader accepted")
	}
	stage, err := NewShaderStage(dev, vk.ShaderStageVertexBit, make([]byte, 16))
	if err != nil {
		t.Fatalf("NewShaderStage: %v", err)
	}
	stage.Destroy(dev)
	if dev.Live("shader module") != 0 {
		t.Fatalf("shader module leaked")
	}
}

func TestIndirectPipelineSources(t *testing.T) {
	dev := NewHeadlessDevice()
	layout, err := NewPipelineLayout(dev, nil, nil)
	if err != nil {
		t.Fatalf("NewPipelineLayout: %v", err)
	}
	config := &GraphicsPipelineConfig{Name: "mesh", Layout: layout, Extent: testExtent, DepthTest: true}
	a, err := NewGraphicsPipeline(dev, config)
	if err != nil {
		t.Fatalf("NewGraphicsPipeline: %v", err)
	}
	b, err := NewGraphicsPipeline(dev, config)
	if err != nil {
		t.Fatalf("NewGraphicsPipeline: %v", err)
	}
	if _, err := NewIndirectPipeline(dev, config, nil); err == nil {
		t.Fatalf("indirect pipeline without sources accepted")
	}
	indirect, err := NewIndirectPipeline(dev, config, []*Pipeline{a, b})
	if err != nil {
		t.Fatalf("NewIndirectPipeline: %v", err)
	}
	if srcs := dev.IndirectPipelineSrcs[0]; len(srcs) != 2 || srcs[0] != a.Handle || srcs[1] != b.Handle {
		t.Fatalf("indirect sources = %v", srcs)
	}
	if dev.GraphicsPipelines[0].PDepthStencilState.DepthTestEnable != vk.True {
		t.Fatalf("depth test not enabled")
	}
	for _, p := range []*Pipeline{a, b, indirect} {
		p.Destroy(dev)
	}
	if dev.Live("pipeline") != 0 {
		t.Fatalf("%d pipelines alive", dev.Live("pipeline"))
	}
}

func TestShaderBindingTableRegions(t *testing.T) {
	dev := NewHeadlessDevice()
	layout, err := NewPipelineLayout(dev, nil, nil)
	if err != nil {
		t.Fatalf("NewPipelineLayout: %v", err)
	}
	var stages []ShaderStage
	for _, s := range []vk.ShaderStageFlagBits{ShaderStageRaygen, ShaderStageMiss, ShaderStageMiss, ShaderStageClosestHit} {
		stage, err := NewShaderStage(dev, s, make([]byte, 16))
		if err != nil {
			t.Fatalf("NewShaderStage: %v", err)
		}
		stages = append(stages, stage)
	}
	pipeline, err := NewRayTracingPipeline(dev, "rt", layout, stages, 0)
	if err != nil {
		t.Fatalf("NewRayTracingPipeline: %v", err)
	}
	if dev.RayTracingPipelines[0].MaxRecursion != 1 {
		t.Fatalf("max recursion = %d, want 1", dev.RayTracingPipelines[0].MaxRecursion)
	}

	sbt, err := NewShaderBindingTable(dev, pipeline, 2, 1)
	if err != nil {
		t.Fatalf("NewShaderBindingTable: %v", err)
	}
	table := sbt.Table
	// handle size 32, base alignment 64
	if table.RayGen.Size != 64 || table.RayGen.Stride != 64 {
		t.Fatalf("raygen region = %+v", table.RayGen)
	}
	if table.Miss.Address != table.RayGen.Address+64 || table.Miss.Stride != 32 || table.Miss.Size != 64 {
		t.Fatalf("miss region = %+v", table.Miss)
	}
	if table.Hit.Address != table.Miss.Address+64 || table.Hit.Size != 64 {
		t.Fatalf("hit region = %+v", table.Hit)
	}
	if table.Callable != (StridedRegion{}) {
		t.Fatalf("callable region = %+v", table.Callable)
	}

	data := dev.BufferContents(sbt.Buffer)
	for offset, group := range map[int]byte{0: 1, 64: 2, 96: 3, 128: 4} {
		if data[offset] != group {
			t.Fatalf("record at %d holds group %d, want %d", offset, data[offset], group)
		}
	}

	sbt.Destroy(dev)
	if dev.Live("buffer") != 0 {
		t.Fatalf("shader binding table buffer leaked")
	}
}

func TestShaderBindingTableRejectsOddAlignment(t *testing.T) {
	dev := NewHeadlessDevice()
	dev.RTProperties.ShaderGroupBaseAlignment = 48
	layout, err := NewPipelineLayout(dev, nil, nil)
	if err != nil {
		t.Fatalf("NewPipelineLayout: %v", err)
	}
	stage, err := NewShaderStage(dev, ShaderStageRaygen, make([]byte, 16))
	if err != nil {
		t.Fatalf("NewShaderStage: %v", err)
	}
	pipeline, err := NewRayTracingPipeline(dev, "rt", layout, []ShaderStage{stage}, 1)
	if err != nil {
		t.Fatalf("NewRayTracingPipeline: %v", err)
	}
	if _, err := NewShaderBindingTable(dev, pipeline, 0, 0); err == nil {
		t.Fatalf("a base alignment of 48 was accepted")
	}
	if dev.Live("buffer") != 0 {
		t.Fatalf("buffer created for a rejected table")
	}
}
