package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/spices/engine/core"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

func (s VulkanCommandBufferState) String() string {
	switch s {
	case COMMAND_BUFFER_STATE_READY:
		return "ready"
	case COMMAND_BUFFER_STATE_RECORDING:
		return "recording"
	case COMMAND_BUFFER_STATE_IN_RENDER_PASS:
		return "in render pass"
	case COMMAND_BUFFER_STATE_RECORDING_ENDED:
		return "recording ended"
	case COMMAND_BUFFER_STATE_SUBMITTED:
		return "submitted"
	default:
		return "not allocated"
	}
}

/**
 * @brief A primary or secondary command buffer and its recording state.
 */
type CommandBuffer struct {
	/** @brief The internal command buffer handle. */
	Handle vk.CommandBuffer
	/** @brief Primary or secondary. */
	Level vk.CommandBufferLevel
	/** @brief Command buffer state. */
	State VulkanCommandBufferState
	/** @brief Debug name, used by labels and logs. */
	Name string
}

/**
 * @brief What a secondary command buffer continues from: the render pass,
 * the subpass index and the framebuffer of the primary buffer.
 */
type CommandBufferInheritance struct {
	RenderPass  vk.RenderPass
	Subpass     uint32
	Framebuffer vk.Framebuffer
}

var (
	ErrCommandBufferState = errors.New("command buffer is in the wrong state")
)

// NewCommandBuffers allocates count command buffers of the given level from the device's pool.
func NewCommandBuffers(dev Device, primary bool, count uint32, name string) ([]*CommandBuffer, error) {
	level := vk.CommandBufferLevelSecondary
	if primary {
		level = vk.CommandBufferLevelPrimary
	}
	buffers, err := dev.AllocateCommandBuffers(level, count)
	if err != nil {
		core.LogError("failed to allocate %d command buffers for %s: %s", count, name, err)
		return nil, err
	}
	for _, cb := range buffers {
		cb.Level = level
		cb.State = COMMAND_BUFFER_STATE_READY
		cb.Name = name
	}
	return buffers, nil
}

func (v *CommandBuffer) IsPrimary() bool {
	return v.Level == vk.CommandBufferLevelPrimary
}

// Free returns the command buffer to the device's pool.
func (v *CommandBuffer) Free(dev Device) {
	dev.FreeCommandBuffers([]*CommandBuffer{v})
	v.Handle = nil
	v.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

/**
 * Begin starts recording. Secondary buffers recorded inside a render pass
 * must pass the inheritance of the primary buffer and set isRenderpassContinue.
 */
func (v *CommandBuffer) Begin(
	dev Device,
	isSingleUse,
	isRenderpassContinue,
	isSimultaneousUse bool,
	inheritance *CommandBufferInheritance) error {

	if v.State == COMMAND_BUFFER_STATE_NOT_ALLOCATED {
		return errors.Wrapf(ErrCommandBufferState, "%s: begin on a freed command buffer", v.Name)
	}

	var flags vk.CommandBufferUsageFlags
	if isSingleUse {
		flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if isRenderpassContinue {
		flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageRenderPassContinueBit)
	}
	if isSimultaneousUse {
		flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageSimultaneousUseBit)
	}

	if err := dev.BeginCommandBuffer(v, flags, inheritance); err != nil {
		core.LogError("failed to begin command buffer %s: %s", v.Name, err)
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING
	if isRenderpassContinue {
		v.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
	}
	return nil
}

func (v *CommandBuffer) End(dev Device) error {
	if v.State != COMMAND_BUFFER_STATE_RECORDING && v.State != COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		return errors.Wrapf(ErrCommandBufferState, "%s: end while %s", v.Name, v.State)
	}
	if err := dev.EndCommandBuffer(v); err != nil {
		core.LogError("failed to end command buffer %s: %s", v.Name, err)
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (v *CommandBuffer) UpdateSubmitted() {
	v.State = COMMAND_BUFFER_STATE_SUBMITTED
}

func (v *CommandBuffer) Reset() {
	v.State = COMMAND_BUFFER_STATE_READY
}
