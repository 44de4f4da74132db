package vulkan

/**
 * @brief Set index reserved for the bindless texture table. Registry unloads
 * keep it and rebuilding only updates it.
 */
const BindlessTextureSet uint32 = 1

/** @brief Binding of the texture array inside the bindless set. */
const BindlessTextureBinding uint32 = 0

/**
 * @brief Default capacity of the bindless texture array.
 * Overridden by renderer.bindless_texture_capacity.
 */
const BindlessTextureMaxCount uint32 = 65536

/** @brief The attachment name that stands for the per frame swapchain image. */
const SwapChainImageName = "SwapChainImage"

/** @brief Upper bound of frames in flight. */
const MaxFramesInFlight = 3
