package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/spices/engine/math"
)

// VK_BUFFER_USAGE_SHADER_BINDING_TABLE_BIT_KHR
const BufferUsageShaderBindingTable vk.BufferUsageFlagBits = 0x400

/**
 * @brief A shader binding table and the buffer holding its records.
 * Groups are laid out as one ray generation group, the miss groups, then the
 * hit groups, in pipeline stage order.
 */
type ShaderBindingTableBuffer struct {
	Table  ShaderBindingTable
	Buffer *Buffer
}

// NewShaderBindingTable copies the group handles of pipeline into a fresh
// buffer and computes the strided regions of each group kind.
func NewShaderBindingTable(dev RayTracingDevice, pipeline *Pipeline, missCount, hitCount uint32) (*ShaderBindingTableBuffer, error) {
	props := dev.RayTracingProperties()
	if props.ShaderGroupHandleSize == 0 {
		return nil, errors.New("device reports a zero shader group handle size")
	}
	if !math.IsPowerOfTwo(props.ShaderGroupHandleAlignment) || !math.IsPowerOfTwo(props.ShaderGroupBaseAlignment) {
		return nil, errors.Newf("shader group alignments %d and %d are not powers of two",
			props.ShaderGroupHandleAlignment, props.ShaderGroupBaseAlignment)
	}
	handleSize := uint64(props.ShaderGroupHandleSize)
	stride := math.Align(handleSize, uint64(props.ShaderGroupHandleAlignment))
	base := uint64(props.ShaderGroupBaseAlignment)

	rgenSize := math.Align(stride, base)
	missSize := math.Align(uint64(missCount)*stride, base)
	hitSize := math.Align(uint64(hitCount)*stride, base)

	groupCount := 1 + missCount + hitCount
	handles, err := dev.ShaderGroupHandles(pipeline.Handle, groupCount)
	if err != nil {
		return nil, errors.Wrapf(err, "shader group handles of %s", pipeline.Name)
	}
	if uint64(len(handles)) < uint64(groupCount)*handleSize {
		return nil, errors.Newf("pipeline %s returned %d handle bytes for %d groups", pipeline.Name, len(handles), groupCount)
	}

	buf, err := dev.CreateBuffer(&BufferInfo{
		Size:          rgenSize + missSize + hitSize,
		Usage:         vk.BufferUsageFlags(BufferUsageShaderBindingTable),
		HostVisible:   true,
		DeviceAddress: true,
		Name:          pipeline.Name + ".SBT",
	})
	if err != nil {
		return nil, errors.Wrapf(err, "shader binding table of %s", pipeline.Name)
	}

	group := func(i uint32) []byte {
		return handles[uint64(i)*handleSize : uint64(i+1)*handleSize]
	}
	write := func(offset uint64, g uint32) error {
		return buf.Write(offset, group(g))
	}
	if err := write(0, 0); err != nil {
		dev.DestroyBuffer(buf)
		return nil, err
	}
	for i := uint32(0); i < missCount; i++ {
		if err := write(rgenSize+uint64(i)*stride, 1+i); err != nil {
			dev.DestroyBuffer(buf)
			return nil, err
		}
	}
	for i := uint32(0); i < hitCount; i++ {
		if err := write(rgenSize+missSize+uint64(i)*stride, 1+missCount+i); err != nil {
			dev.DestroyBuffer(buf)
			return nil, err
		}
	}

	address := dev.BufferDeviceAddress(buf)
	sbt := &ShaderBindingTableBuffer{Buffer: buf}
	// the ray generation region has a single record, its stride equals its size
	sbt.Table.RayGen = StridedRegion{Address: address, Stride: rgenSize, Size: rgenSize}
	if missCount > 0 {
		sbt.Table.Miss = StridedRegion{Address: address + rgenSize, Stride: stride, Size: missSize}
	}
	if hitCount > 0 {
		sbt.Table.Hit = StridedRegion{Address: address + rgenSize + missSize, Stride: stride, Size: hitSize}
	}
	return sbt, nil
}

func (s *ShaderBindingTableBuffer) Destroy(dev Device) {
	if s.Buffer != nil {
		dev.DestroyBuffer(s.Buffer)
		s.Buffer = nil
	}
	s.Table = ShaderBindingTable{}
}
