package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/spices/engine/core"
)

// Fence guards the one-time submissions of a NativeDevice.
type Fence struct {
	Handle     vk.Fence
	IsSignaled bool
}

func NewFence(dev *NativeDevice, createSignaled bool) (*Fence, error) {
	fence := &Fence{
		// Make sure to signal the fence if required.
		IsSignaled: createSignaled,
	}

	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if fence.IsSignaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var pFence vk.Fence
	if err := vulkanError(vk.CreateFence(dev.Handle, &fenceCreateInfo, nil, &pFence), "vkCreateFence"); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	fence.Handle = pFence
	return fence, nil
}

func (vf *Fence) Destroy(dev *NativeDevice) {
	if vf.Handle != nil {
		vk.DestroyFence(dev.Handle, vf.Handle, nil)
		vf.Handle = nil
	}
	vf.IsSignaled = false
}

func (vf *Fence) Wait(dev *NativeDevice, timeoutNs uint64) error {
	if vf.IsSignaled {
		// If already signaled, do not wait.
		return nil
	}
	result := vk.WaitForFences(dev.Handle, 1, []vk.Fence{vf.Handle}, vk.True, timeoutNs)
	switch result {
	case vk.Success:
		vf.IsSignaled = true
		return nil
	case vk.Timeout:
		core.LogWarn("fence wait - Timed out")
		return errors.New("fence wait timed out")
	default:
		err := vulkanError(result, "vkWaitForFences")
		core.LogError(err.Error())
		return err
	}
}

func (vf *Fence) Reset(dev *NativeDevice) error {
	if vf.IsSignaled {
		if err := vulkanError(vk.ResetFences(dev.Handle, 1, []vk.Fence{vf.Handle}), "vkResetFences"); err != nil {
			core.LogError(err.Error())
			return err
		}
		vf.IsSignaled = false
	}
	return nil
}
