package renderer

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/spices/engine/assets"
	"github.com/spaghettifunk/spices/engine/core"
	"github.com/spaghettifunk/spices/engine/renderer/vulkan"
)

const (
	DefaultSwapchainFormat = vk.FormatB8g8r8a8Unorm
	DefaultDepthFormat     = vk.FormatD32Sfloat
)

/**
 * @brief Everything the renderers share: the device and its frame context,
 * the descriptor set registry, the material cache, the command recording
 * pool and the collaborators that provide resources and shaders.
 */
type Backend struct {
	Config    *core.Config
	Device    vulkan.Device
	Context   *vulkan.Context
	Registry  *vulkan.DescriptorSetRegistry
	Materials *MaterialCache
	CmdPool   *vulkan.CmdThreadPool
	Manager   *RendererManager
	Resources ResourcePool
	Shaders   ShaderSource
	Metrics   *core.FrameMetrics

	watcher *assets.ShaderWatcher
}

/**
 * NewBackend creates the frame context and starts the recording pool as the
 * configuration says. views holds one swapchain image view per frame in flight.
 */
func NewBackend(cfg *core.Config, dev vulkan.Device, views []vk.ImageView, resources ResourcePool, shaders ShaderSource) (*Backend, error) {
	if cfg == nil {
		cfg = core.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	extent := vk.Extent2D{Width: cfg.Renderer.Width, Height: cfg.Renderer.Height}
	ctx, err := vulkan.NewContext(dev, cfg.Renderer.FramesInFlight, extent, DefaultSwapchainFormat, DefaultDepthFormat, views)
	if err != nil {
		return nil, errors.Wrap(err, "render context")
	}

	b := &Backend{
		Config:    cfg,
		Device:    dev,
		Context:   ctx,
		Registry:  vulkan.NewDescriptorSetRegistry(dev),
		Materials: NewMaterialCache(dev),
		Resources: resources,
		Shaders:   shaders,
		Metrics:   core.NewFrameMetrics(),
	}
	b.Manager = NewRendererManager(b)

	mode, err := core.ParsePoolMode(cfg.ThreadPool.Mode)
	if err != nil {
		ctx.Destroy()
		return nil, err
	}
	b.CmdPool = vulkan.NewCmdThreadPool(dev, "RenderThreadPool")
	b.CmdPool.SetMode(mode)
	if mode == core.PoolModeCached {
		if err := b.CmdPool.SetThreadIdleTimeout(cfg.PoolIdleTimeout()); err != nil {
			ctx.Destroy()
			return nil, err
		}
	}
	if err := b.CmdPool.Start(cfg.PoolThreads()); err != nil {
		ctx.Destroy()
		return nil, errors.Wrap(err, "render thread pool")
	}

	if cfg.Shaders.HotReload {
		w, err := assets.NewShaderWatcher(cfg.Shaders.Directory, func(name, stage string) {
			if n := b.Materials.MarkShaderDirty(name); n > 0 {
				core.LogInfo("shader %s.%s changed, %d materials will be rebuilt", name, stage, n)
			}
		})
		if err == nil {
			err = w.Start()
		}
		if err != nil {
			core.LogWarn("shader hot reload disabled: %s", err)
		} else {
			b.watcher = w
		}
	}

	core.LogInfo("render backend ready: %d frames in flight, %d record threads (%s), generated commands %t",
		ctx.FramesInFlight, b.CmdPool.GetThreadsCount(), mode, b.DGCEnabled())
	return b, nil
}

// DGCEnabled reports whether renderers should take the generated commands path.
func (b *Backend) DGCEnabled() bool {
	if !b.Config.Renderer.EnableDGC {
		return false
	}
	_, ok := vulkan.SupportsGeneratedCommands(b.Device)
	return ok
}

/**
 * DrawFrame records the current frame: the frame's secondaries are recycled,
 * the primary command buffer is opened, every renderer runs and the frame
 * index advances. Presenting and submitting belong to the caller.
 */
func (b *Backend) DrawFrame(ts *core.TimeStep, world World) error {
	ctx := b.Context
	frame := ctx.CurrentFrame
	b.CmdPool.BeginFrame(frame)

	primary := ctx.Primary()
	if err := primary.Begin(b.Device, true, false, false, nil); err != nil {
		return errors.Wrapf(err, "frame %d", frame)
	}
	info := &FrameInfo{FrameIndex: frame, ImageIndex: frame, World: world}
	runErr := b.Metrics.Measure(func() error {
		return b.Manager.Run(ts, info)
	})
	endErr := primary.End(b.Device)
	ctx.AdvanceFrame()
	return errors.CombineErrors(runErr, endErr)
}

// Destroy tears the backend down; renderers go first, the device objects they share last.
func (b *Backend) Destroy() {
	if b.watcher != nil {
		if err := b.watcher.Close(); err != nil {
			core.LogWarn("shader watcher: %s", err)
		}
		b.watcher = nil
	}
	b.CmdPool.Wait()
	b.Manager.Destroy()
	b.Materials.Destroy()
	b.CmdPool.Destroy()
	b.Registry.UnloadAll()
	b.Context.Destroy()
	core.LogInfo("render backend destroyed")
}
