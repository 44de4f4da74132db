package vulkan

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/spices/engine/core"
	"github.com/spaghettifunk/spices/engine/math"
)

// IndirectTokenType mirrors VkIndirectCommandsTokenTypeNV.
type IndirectTokenType uint32

const (
	TokenShaderGroup   IndirectTokenType = 0
	TokenStateFlags    IndirectTokenType = 1
	TokenIndexBuffer   IndirectTokenType = 2
	TokenVertexBuffer  IndirectTokenType = 3
	TokenPushConstant  IndirectTokenType = 4
	TokenDrawIndexed   IndirectTokenType = 5
	TokenDraw          IndirectTokenType = 6
	TokenDrawTasks     IndirectTokenType = 7
	TokenDrawMeshTasks IndirectTokenType = 1000328000
)

// VK_INDEX_TYPE_UINT32 as written into index buffer records.
const indexTypeUint32 uint32 = 1

func (t IndirectTokenType) String() string {
	switch t {
	case TokenShaderGroup:
		return "shader group"
	case TokenStateFlags:
		return "state flags"
	case TokenIndexBuffer:
		return "index buffer"
	case TokenVertexBuffer:
		return "vertex buffer"
	case TokenPushConstant:
		return "push constant"
	case TokenDrawIndexed:
		return "draw indexed"
	case TokenDraw:
		return "draw"
	case TokenDrawTasks:
		return "draw tasks"
	case TokenDrawMeshTasks:
		return "draw mesh tasks"
	default:
		return "unknown"
	}
}

var ErrUnsupportedToken = errors.New("unsupported indirect commands token")

/**
 * TokenStride returns the size of the native record written for one sequence:
 *  shader group    VkBindShaderGroupIndirectCommandNV   4
 *  vertex buffer   VkBindVertexBufferIndirectCommandNV 16
 *  index buffer    VkBindIndexBufferIndirectCommandNV  16
 *  push constant   a VkDeviceAddress                    8
 *  draw indexed    VkDrawIndexedIndirectCommand        20
 *  mesh tasks      VkDrawMeshTasksIndirectCommandEXT   12
 */
func TokenStride(t IndirectTokenType) (uint32, error) {
	switch t {
	case TokenShaderGroup:
		return 4, nil
	case TokenVertexBuffer, TokenIndexBuffer:
		return 16, nil
	case TokenPushConstant:
		return 8, nil
	case TokenDrawIndexed:
		return 20, nil
	case TokenDrawMeshTasks:
		return 12, nil
	default:
		return 0, errors.Wrapf(ErrUnsupportedToken, "%s (%d)", t, uint32(t))
	}
}

/**
 * ComputeStreamLayout places count records of each stride one after the other.
 * offsets[0] is 0 and every next offset is the previous region end rounded up
 * to alignment. total is the aligned end of the last region.
 */
func ComputeStreamLayout(strides []uint32, count uint32, alignment uint32) (offsets []uint64, total uint64) {
	offsets = make([]uint64, len(strides))
	var cursor uint64
	for i, stride := range strides {
		offsets[i] = cursor
		cursor = math.Align(cursor+uint64(stride)*uint64(count), uint64(alignment))
	}
	return offsets, cursor
}

/**
 * @brief One token of an indirect commands layout.
 */
type IndirectCommandsLayoutToken struct {
	Type   IndirectTokenType
	Stream uint32
	Offset uint32
	/** @brief Vertex binding for vertex buffer tokens. */
	VertexBindingUnit uint32
	/** @brief The stride is taken from the token record. */
	VertexDynamicStride bool
	/** @brief Push constant tokens: layout, stages and byte range. */
	PushConstantLayout vk.PipelineLayout
	PushConstantStages vk.ShaderStageFlags
	PushConstantOffset uint32
	PushConstantSize   uint32
}

type IndirectCommandsLayoutInfo struct {
	Name          string
	BindPoint     vk.PipelineBindPoint
	Tokens        []IndirectCommandsLayoutToken
	StreamStrides []uint32
}

// IndirectStream points a token at its region of the input buffer.
type IndirectStream struct {
	Buffer *Buffer
	Offset uint64
}

/**
 * @brief Everything the preprocess and execute calls consume.
 */
type GeneratedCommandsInfo struct {
	BindPoint      vk.PipelineBindPoint
	Pipeline       vk.Pipeline
	Layout         IndirectCommandsLayout
	Streams        []IndirectStream
	SequencesCount uint32
	Preprocess     *Buffer
	PreprocessSize uint64
}

/**
 * @brief Per-object payloads of one draw sequence. Only the fields matching
 * the declared tokens are written.
 */
type IndirectSequence struct {
	ShaderGroup uint32

	VertexBuffer *Buffer
	VertexStride uint32
	IndexBuffer  *Buffer

	PushConstant *Buffer

	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	VertexOffset  int32
	FirstInstance uint32

	TaskCount [3]uint32
}

/**
 * @brief The packed indirect draw data of one subpass: the token layout, the
 * stream offsets and the device buffers built by Fill.
 */
type IndirectDrawData struct {
	Name   string
	Tokens []IndirectCommandsLayoutToken
	Layout IndirectCommandsLayout

	Strides        []uint32
	Offsets        []uint64
	Size           uint64
	SequencesCount uint32

	Staging    *Buffer
	Input      *Buffer
	Preprocess *Buffer
	Info       GeneratedCommandsInfo
}

func NewIndirectDrawData(name string) *IndirectDrawData {
	return &IndirectDrawData{Name: name}
}

// AddToken appends a token; unsupported kinds are logged and skipped.
func (d *IndirectDrawData) AddToken(token IndirectCommandsLayoutToken) {
	if _, err := TokenStride(token.Type); err != nil {
		core.LogError("indirect data %s: %s", d.Name, err)
		return
	}
	token.Stream = uint32(len(d.Tokens))
	token.Offset = 0
	d.Tokens = append(d.Tokens, token)
}

// BuildLayout creates the native indirect commands layout, one stream per token.
func (d *IndirectDrawData) BuildLayout(dev GeneratedCommandsDevice, bindPoint vk.PipelineBindPoint) error {
	if d.Layout != NullIndirectCommandsLayout {
		dev.DestroyIndirectCommandsLayout(d.Layout)
		d.Layout = NullIndirectCommandsLayout
	}
	strides := make([]uint32, len(d.Tokens))
	for i, t := range d.Tokens {
		strides[i], _ = TokenStride(t.Type)
	}
	layout, err := dev.CreateIndirectCommandsLayout(&IndirectCommandsLayoutInfo{
		Name:          d.Name,
		BindPoint:     bindPoint,
		Tokens:        d.Tokens,
		StreamStrides: strides,
	})
	if err != nil {
		return errors.Wrapf(err, "indirect commands layout %s", d.Name)
	}
	d.Layout = layout
	d.Strides = strides
	return nil
}

func (d *IndirectDrawData) writeToken(dst []byte, dev GeneratedCommandsDevice, token IndirectCommandsLayoutToken, seq *IndirectSequence) {
	le := binary.LittleEndian
	switch token.Type {
	case TokenShaderGroup:
		le.PutUint32(dst[0:], seq.ShaderGroup)
	case TokenVertexBuffer:
		if seq.VertexBuffer != nil {
			le.PutUint64(dst[0:], dev.BufferDeviceAddress(seq.VertexBuffer))
			le.PutUint32(dst[8:], uint32(seq.VertexBuffer.Size))
		}
		le.PutUint32(dst[12:], seq.VertexStride)
	case TokenIndexBuffer:
		if seq.IndexBuffer != nil {
			le.PutUint64(dst[0:], dev.BufferDeviceAddress(seq.IndexBuffer))
			le.PutUint32(dst[8:], uint32(seq.IndexBuffer.Size))
		}
		le.PutUint32(dst[12:], indexTypeUint32)
	case TokenPushConstant:
		if seq.PushConstant != nil {
			le.PutUint64(dst[0:], dev.BufferDeviceAddress(seq.PushConstant))
		}
	case TokenDrawIndexed:
		le.PutUint32(dst[0:], seq.IndexCount)
		le.PutUint32(dst[4:], seq.InstanceCount)
		le.PutUint32(dst[8:], seq.FirstIndex)
		le.PutUint32(dst[12:], uint32(seq.VertexOffset))
		le.PutUint32(dst[16:], seq.FirstInstance)
	case TokenDrawMeshTasks:
		le.PutUint32(dst[0:], seq.TaskCount[0])
		le.PutUint32(dst[4:], seq.TaskCount[1])
		le.PutUint32(dst[8:], seq.TaskCount[2])
	}
}

/**
 * Fill packs sequences into a staging buffer (record of sequence s for token i
 * at s*stride_i + offset_i), copies it into a device local input buffer,
 * rebuilds the streams and resizes the preprocess buffer. Alignments are
 * queried from dev on every call. A failed fill leaves d empty: no buffers and
 * zero sequences, so the preprocess and execute calls record nothing.
 */
func (d *IndirectDrawData) Fill(dev GeneratedCommandsDevice, pipeline vk.Pipeline, bindPoint vk.PipelineBindPoint, sequences []IndirectSequence) (err error) {
	props := dev.GeneratedCommandsProperties()
	if limit := props.MaxIndirectSequenceCount; limit > 0 && uint32(len(sequences)) > limit {
		return errors.Newf("indirect data %s: %d sequences exceed the device limit %d", d.Name, len(sequences), limit)
	}
	if len(d.Strides) != len(d.Tokens) {
		d.Strides = make([]uint32, len(d.Tokens))
		for i, t := range d.Tokens {
			d.Strides[i], _ = TokenStride(t.Type)
		}
	}

	d.release(dev)
	defer func() {
		if err != nil {
			d.release(dev)
			d.SequencesCount = 0
			d.Info.SequencesCount = 0
			d.Info.Streams = nil
			d.Info.Preprocess = nil
			d.Info.PreprocessSize = 0
		}
	}()
	d.SequencesCount = uint32(len(sequences))
	d.Offsets, d.Size = ComputeStreamLayout(d.Strides, d.SequencesCount, props.MinIndirectCommandsBufferOffsetAlignment)
	d.Info = GeneratedCommandsInfo{
		BindPoint:      bindPoint,
		Pipeline:       pipeline,
		Layout:         d.Layout,
		SequencesCount: d.SequencesCount,
	}
	if d.SequencesCount == 0 {
		return nil
	}

	staging, err := dev.CreateBuffer(&BufferInfo{
		Size:        d.Size,
		Usage:       vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		HostVisible: true,
		Name:        d.Name + ".staging",
	})
	if err != nil {
		return errors.Wrapf(err, "indirect data %s: staging buffer", d.Name)
	}
	d.Staging = staging

	data := staging.Bytes()
	for s := range sequences {
		for i, token := range d.Tokens {
			at := uint64(s)*uint64(d.Strides[i]) + d.Offsets[i]
			d.writeToken(data[at:at+uint64(d.Strides[i])], dev, token, &sequences[s])
		}
	}
	if err := dev.FlushBuffer(staging); err != nil {
		return errors.Wrapf(err, "indirect data %s: flush", d.Name)
	}

	input, err := dev.CreateBuffer(&BufferInfo{
		Size:          d.Size,
		Usage:         vk.BufferUsageFlags(vk.BufferUsageIndirectBufferBit) | vk.BufferUsageFlags(vk.BufferUsageTransferDstBit),
		DeviceAddress: true,
		Name:          d.Name + ".input",
	})
	if err != nil {
		return errors.Wrapf(err, "indirect data %s: input buffer", d.Name)
	}
	d.Input = input
	if err := dev.SubmitOneTime(func(cmd *CommandBuffer) {
		dev.CmdCopyBuffer(cmd, staging, input, d.Size)
	}); err != nil {
		return errors.Wrapf(err, "indirect data %s: upload", d.Name)
	}

	d.Info.Streams = make([]IndirectStream, len(d.Tokens))
	for i := range d.Tokens {
		d.Info.Streams[i] = IndirectStream{Buffer: input, Offset: d.Offsets[i]}
	}

	size := dev.GeneratedCommandsMemoryRequirements(&d.Info)
	if size > 0 {
		pre, err := dev.CreateBuffer(&BufferInfo{
			Size:          size,
			Usage:         vk.BufferUsageFlags(vk.BufferUsageIndirectBufferBit),
			DeviceAddress: true,
			Name:          d.Name + ".preprocess",
		})
		if err != nil {
			return errors.Wrapf(err, "indirect data %s: preprocess buffer", d.Name)
		}
		d.Preprocess = pre
	}
	d.Info.Preprocess = d.Preprocess
	d.Info.PreprocessSize = size
	return nil
}

// SetPipeline swaps the indirect pipeline after the default materials were rebuilt.
func (d *IndirectDrawData) SetPipeline(pipeline vk.Pipeline) {
	d.Info.Pipeline = pipeline
}

// PreprocessDGC records the preprocess call followed by the barrier the execute call waits on.
func (d *IndirectDrawData) PreprocessDGC(dev GeneratedCommandsDevice, cmd *CommandBuffer) {
	if d.SequencesCount == 0 {
		return
	}
	dev.CmdPreprocessGeneratedCommands(cmd, &d.Info)
	dev.CmdPipelineBarrier(cmd,
		PipelineStageCommandPreprocess, vk.PipelineStageFlags(vk.PipelineStageDrawIndirectBit),
		AccessCommandPreprocessWrite, vk.AccessFlags(vk.AccessIndirectCommandReadBit))
}

func (d *IndirectDrawData) ExecuteDGC(dev GeneratedCommandsDevice, cmd *CommandBuffer) {
	if d.SequencesCount == 0 {
		return
	}
	dev.CmdExecuteGeneratedCommands(cmd, true, &d.Info)
}

// VK_PIPELINE_STAGE_COMMAND_PREPROCESS_BIT_NV and VK_ACCESS_COMMAND_PREPROCESS_WRITE_BIT_NV
const (
	PipelineStageCommandPreprocess vk.PipelineStageFlags = 0x00020000
	AccessCommandPreprocessWrite   vk.AccessFlags        = 0x00040000
)

func (d *IndirectDrawData) release(dev Device) {
	for _, b := range []*Buffer{d.Staging, d.Input, d.Preprocess} {
		if b != nil {
			dev.DestroyBuffer(b)
		}
	}
	d.Staging, d.Input, d.Preprocess = nil, nil, nil
}

func (d *IndirectDrawData) Destroy(dev GeneratedCommandsDevice) {
	d.release(dev)
	if d.Layout != NullIndirectCommandsLayout {
		dev.DestroyIndirectCommandsLayout(d.Layout)
		d.Layout = NullIndirectCommandsLayout
	}
	d.SequencesCount = 0
}
