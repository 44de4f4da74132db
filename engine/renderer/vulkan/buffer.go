package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

var (
	ErrBufferNotMapped = errors.New("buffer is not host visible")
	ErrBufferOverflow  = errors.New("write exceeds buffer size")
)

/**
 * @brief Creation parameters of a buffer.
 */
type BufferInfo struct {
	/** @brief Size in bytes. */
	Size uint64
	/** @brief Native usage flags. */
	Usage vk.BufferUsageFlags
	/** @brief Host visible buffers stay persistently mapped. */
	HostVisible bool
	/** @brief Request a device address (required by the generated commands tokens). */
	DeviceAddress bool
	/** @brief Debug name. */
	Name string
}

/**
 * @brief A buffer with its backing memory. Host visible buffers expose
 * their mapped range through Write and Bytes.
 */
type Buffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Size   uint64
	Usage  vk.BufferUsageFlags
	Name   string

	hostVisible bool
	mapped      []byte
}

func (b *Buffer) IsHostVisible() bool {
	return b.hostVisible
}

// Write copies data into the mapped range at offset.
func (b *Buffer) Write(offset uint64, data []byte) error {
	if !b.hostVisible || b.mapped == nil {
		return errors.Wrapf(ErrBufferNotMapped, "buffer %s", b.Name)
	}
	if offset+uint64(len(data)) > b.Size {
		return errors.Wrapf(ErrBufferOverflow, "buffer %s: %d bytes at offset %d, size %d", b.Name, len(data), offset, b.Size)
	}
	copy(b.mapped[offset:], data)
	return nil
}

// Bytes exposes the mapped range; nil for device local buffers.
func (b *Buffer) Bytes() []byte {
	return b.mapped
}

// NewUniformBuffer creates a host visible buffer sized for one uniform block.
func NewUniformBuffer(dev Device, size uint64, name string) (*Buffer, error) {
	return dev.CreateBuffer(&BufferInfo{
		Size:        size,
		Usage:       vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit),
		HostVisible: true,
		Name:        name,
	})
}

// NewStorageBuffer creates a host visible storage buffer.
func NewStorageBuffer(dev Device, size uint64, name string) (*Buffer, error) {
	return dev.CreateBuffer(&BufferInfo{
		Size:        size,
		Usage:       vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit),
		HostVisible: true,
		Name:        name,
	})
}
