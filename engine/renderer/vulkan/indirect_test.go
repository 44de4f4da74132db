package vulkan

import (
	"encoding/binary"
	"testing"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

func TestComputeStreamLayoutAlignment(t *testing.T) {
	strides := []uint32{4, 16, 16, 8, 20, 12}
	for _, alignment := range []uint32{0, 1, 4, 16, 32, 256} {
		for _, count := range []uint32{0, 1, 3, 7, 100} {
			offsets, total := ComputeStreamLayout(strides, count, alignment)
			if offsets[0] != 0 {
				t.Fatalf("align %d count %d: first offset %d", alignment, count, offsets[0])
			}
			for i := range strides {
				if alignment > 1 && offsets[i]%uint64(alignment) != 0 {
					t.Errorf("align %d count %d: offset %d = %d is unaligned", alignment, count, i, offsets[i])
				}
				end := offsets[i] + uint64(strides[i])*uint64(count)
				next := total
				if i+1 < len(strides) {
					next = offsets[i+1]
				}
				if next < end {
					t.Errorf("align %d count %d: region %d ends at %d past %d", alignment, count, i, end, next)
				}
			}
			if alignment > 1 && total%uint64(alignment) != 0 {
				t.Errorf("align %d count %d: total %d is unaligned", alignment, count, total)
			}
		}
	}
}

func TestComputeStreamLayoutValues(t *testing.T) {
	offsets, total := ComputeStreamLayout([]uint32{4, 20}, 3, 32)
	if offsets[0] != 0 || offsets[1] != 32 || total != 96 {
		t.Fatalf("offsets %v total %d, want [0 32] 96", offsets, total)
	}
}

func TestTokenStride(t *testing.T) {
	tests := []struct {
		token IndirectTokenType
		want  uint32
		ok    bool
	}{
		{TokenShaderGroup, 4, true},
		{TokenVertexBuffer, 16, true},
		{TokenIndexBuffer, 16, true},
		{TokenPushConstant, 8, true},
		{TokenDrawIndexed, 20, true},
		{TokenDrawMeshTasks, 12, true},
		{TokenDraw, 0, false},
		{TokenStateFlags, 0, false},
	}
	for _, tt := range tests {
		got, err := TokenStride(tt.token)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("TokenStride(%s) = %d, %v", tt.token, got, err)
		}
	}
}

func newDrawData(t *testing.T, dev *HeadlessDevice) *IndirectDrawData {
	t.Helper()
	d := NewIndirectDrawData("BasePass.Mesh")
	d.AddToken(IndirectCommandsLayoutToken{Type: TokenShaderGroup})
	d.AddToken(IndirectCommandsLayoutToken{Type: TokenDraw})
	d.AddToken(IndirectCommandsLayoutToken{Type: TokenDrawIndexed})
	if err := d.BuildLayout(dev, vk.PipelineBindPointGraphics); err != nil {
		t.Fatalf("BuildLayout: %v", err)
	}
	return d
}

func TestIndirectFillPositions(t *testing.T) {
	dev := NewHeadlessDevice()
	dev.DGCProperties.MinIndirectCommandsBufferOffsetAlignment = 32
	d := newDrawData(t, dev)
	if len(d.Tokens) != 2 {
		t.Fatalf("unsupported token was kept: %d tokens", len(d.Tokens))
	}
	if d.Tokens[1].Stream != 1 {
		t.Fatalf("draw indexed token on stream %d", d.Tokens[1].Stream)
	}

	seqs := []IndirectSequence{
		{ShaderGroup: 0, IndexCount: 36, InstanceCount: 1},
		{ShaderGroup: 1, IndexCount: 72, InstanceCount: 2, FirstIndex: 6},
		{ShaderGroup: 2, IndexCount: 12, InstanceCount: 1, VertexOffset: -4},
	}
	if err := d.Fill(dev, vk.NullPipeline, vk.PipelineBindPointGraphics, seqs); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if d.Size != 96 || d.Offsets[1] != 32 {
		t.Fatalf("size %d offsets %v", d.Size, d.Offsets)
	}

	data := dev.BufferContents(d.Input)
	le := binary.LittleEndian
	for s, seq := range seqs {
		if got := le.Uint32(data[s*4:]); got != seq.ShaderGroup {
			t.Errorf("sequence %d: shader group %d, want %d", s, got, seq.ShaderGroup)
		}
		at := s*20 + 32
		if got := le.Uint32(data[at:]); got != seq.IndexCount {
			t.Errorf("sequence %d: index count %d, want %d", s, got, seq.IndexCount)
		}
		if got := le.Uint32(data[at+4:]); got != seq.InstanceCount {
			t.Errorf("sequence %d: instance count %d, want %d", s, got, seq.InstanceCount)
		}
		if got := int32(le.Uint32(data[at+12:])); got != seq.VertexOffset {
			t.Errorf("sequence %d: vertex offset %d, want %d", s, got, seq.VertexOffset)
		}
	}
	if len(d.Info.Streams) != 2 || d.Info.Streams[1].Offset != 32 {
		t.Fatalf("streams = %+v", d.Info.Streams)
	}
	if d.Info.PreprocessSize != 3*64 || d.Preprocess == nil {
		t.Fatalf("preprocess size %d", d.Info.PreprocessSize)
	}
	if dev.OneTimeSubmits != 1 {
		t.Fatalf("upload used %d one time submits", dev.OneTimeSubmits)
	}

	cmds, _ := NewCommandBuffers(dev, true, 1, "frame")
	cmd := cmds[0]
	_ = cmd.Begin(dev, true, false, false, nil)
	d.PreprocessDGC(dev, cmd)
	d.ExecuteDGC(dev, cmd)
	ops := dev.Ops(cmd)
	want := []string{"Begin", "PreprocessGeneratedCommands", "PipelineBarrier", "ExecuteGeneratedCommands"}
	if len(ops) != len(want) {
		t.Fatalf("recorded %v, want %v", ops, want)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Fatalf("recorded %v, want %v", ops, want)
		}
	}
	barrier := dev.Commands(cmd)[2]
	if barrier.Values[0] != uint64(PipelineStageCommandPreprocess) || barrier.Values[3] != uint64(vk.AccessIndirectCommandReadBit) {
		t.Fatalf("barrier = %v", barrier.Values)
	}

	d.Destroy(dev)
	if dev.Live("buffer") != 0 || dev.Live("indirect commands layout") != 0 {
		t.Fatalf("buffers %d layouts %d alive after Destroy", dev.Live("buffer"), dev.Live("indirect commands layout"))
	}
}

func TestIndirectZeroSequences(t *testing.T) {
	dev := NewHeadlessDevice()
	d := newDrawData(t, dev)
	if err := d.Fill(dev, vk.NullPipeline, vk.PipelineBindPointGraphics, nil); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if d.Input != nil || d.Preprocess != nil {
		t.Fatalf("zero sequences allocated buffers")
	}

	cmds, _ := NewCommandBuffers(dev, true, 1, "frame")
	cmd := cmds[0]
	_ = cmd.Begin(dev, true, false, false, nil)
	d.PreprocessDGC(dev, cmd)
	d.ExecuteDGC(dev, cmd)
	if ops := dev.Ops(cmd); len(ops) != 1 {
		t.Fatalf("zero sequences recorded %v", ops)
	}
}

func TestIndirectFillRequeriesAlignment(t *testing.T) {
	dev := NewHeadlessDevice()
	d := newDrawData(t, dev)
	seqs := make([]IndirectSequence, 3)

	dev.DGCProperties.MinIndirectCommandsBufferOffsetAlignment = 4
	if err := d.Fill(dev, vk.NullPipeline, vk.PipelineBindPointGraphics, seqs); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if d.Offsets[1] != 12 {
		t.Fatalf("offset with alignment 4 = %d, want 12", d.Offsets[1])
	}

	dev.DGCProperties.MinIndirectCommandsBufferOffsetAlignment = 64
	if err := d.Fill(dev, vk.NullPipeline, vk.PipelineBindPointGraphics, seqs); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if d.Offsets[1] != 64 {
		t.Fatalf("offset with alignment 64 = %d, want 64", d.Offsets[1])
	}
}

func TestIndirectFillFailureLeavesNothing(t *testing.T) {
	tests := []struct {
		name string
		op   string
	}{
		{"staging buffer", "CreateBuffer"},
		{"upload", "AllocateCommandBuffers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := NewHeadlessDevice()
			d := newDrawData(t, dev)
			if err := d.Fill(dev, vk.NullPipeline, vk.PipelineBindPointGraphics, make([]IndirectSequence, 2)); err != nil {
				t.Fatalf("Fill: %v", err)
			}
			cmds, _ := NewCommandBuffers(dev, true, 1, "frame")
			buffers := dev.Live("buffer")

			dev.FailNext(tt.op, errors.New("out of memory"))
			if err := d.Fill(dev, vk.NullPipeline, vk.PipelineBindPointGraphics, make([]IndirectSequence, 3)); err == nil {
				t.Fatalf("Fill succeeded with %s failing", tt.op)
			}
			if d.SequencesCount != 0 || d.Info.SequencesCount != 0 || d.Info.Streams != nil || d.Info.Preprocess != nil {
				t.Fatalf("failed fill kept %d sequences, info %+v", d.SequencesCount, d.Info)
			}
			if d.Staging != nil || d.Input != nil || d.Preprocess != nil {
				t.Fatalf("failed fill kept buffers")
			}
			if got := dev.Live("buffer"); got != buffers-3 {
				t.Fatalf("%d live buffers, want %d", got, buffers-3)
			}

			cmd := cmds[0]
			_ = cmd.Begin(dev, true, false, false, nil)
			d.PreprocessDGC(dev, cmd)
			d.ExecuteDGC(dev, cmd)
			if ops := dev.Ops(cmd); len(ops) != 1 {
				t.Fatalf("failed fill recorded %v", ops)
			}
		})
	}
}
