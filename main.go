/*
spices builds the engine renderers against the headless device and reports
what they declare, without a GPU or a window.

	spices describe [-config spices.toml] [-frames 1]
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/spices/engine/core"
	"github.com/spaghettifunk/spices/engine/renderer"
	"github.com/spaghettifunk/spices/engine/renderer/views"
	"github.com/spaghettifunk/spices/engine/renderer/vulkan"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: spices describe [-config file] [-frames n]")
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 || os.Args[1] != "describe" {
		usage()
	}
	fs := flag.NewFlagSet("describe", flag.ExitOnError)
	configPath := fs.String("config", "spices.toml", "TOML configuration file")
	frames := fs.Int("frames", 1, "frames recorded on an empty world before describing")
	if err := fs.Parse(os.Args[2:]); err != nil {
		usage()
	}

	if err := describe(*configPath, *frames); err != nil {
		core.LogFatal("describe: %+v", err)
	}
}

func describe(configPath string, frames int) error {
	cfg, err := core.LoadConfig(configPath)
	if err != nil {
		return err
	}
	core.SetLogLevel(cfg.LogLevel)

	dev := vulkan.NewHeadlessDevice()
	swapchain := dev.FakeImageViews(int(cfg.Renderer.FramesInFlight))
	b, err := renderer.NewBackend(cfg, dev, swapchain, renderer.NewMemoryResourcePool(dev.FakeImageView), renderer.FallbackShaderSource{Source: renderer.DirShaderSource{Dir: cfg.Shaders.Directory}})
	if err != nil {
		return err
	}
	defer b.Destroy()

	// signal channel to stop recording early
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	b.Manager.SlateResized.Subscribe(func(extent vk.Extent2D) {
		core.LogDebug("viewport %dx%d", extent.Width, extent.Height)
	})
	if err := views.PushDefault(b); err != nil {
		return err
	}

	world := renderer.NewMemoryWorld()
	ts := core.NewTimeStep()
record:
	for i := 0; i < frames; i++ {
		select {
		case <-sigCh:
			core.LogWarn("interrupted after %d frames", i)
			break record
		default:
		}
		ts.Advance(time.Second / 60)
		if err := b.DrawFrame(ts, world); err != nil {
			return err
		}
	}
	if frames > 0 {
		core.LogInfo("recorded %d frames, %.3f ms average", frames, b.Metrics.FrameTime())
	}
	dev.LogSummary()
	return b.Manager.Describe(os.Stdout)
}
