package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
)

func TestParseConfig(t *testing.T) {
	data := []byte(`
log_level = "debug"

[renderer]
frames_in_flight = 3
enable_dgc = false
bindless_texture_capacity = 1024

[thread_pool]
mode = "cached"
threads = 6
idle_timeout_seconds = 30

[shaders]
directory = "shaders"
hot_reload = true
`)
	cfg := DefaultConfig()
	if err := ParseConfig(data, cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.Renderer.FramesInFlight != 3 || cfg.Renderer.EnableDGC || cfg.Renderer.BindlessTextureCapacity != 1024 {
		t.Errorf("renderer section = %+v", cfg.Renderer)
	}
	// untouched keys keep their defaults
	if cfg.Renderer.Width != 1280 || cfg.Renderer.Height != 720 {
		t.Errorf("extent defaults lost: %dx%d", cfg.Renderer.Width, cfg.Renderer.Height)
	}
	if cfg.PoolThreads() != 6 || cfg.PoolIdleTimeout() != 30*time.Second {
		t.Errorf("pool = %d threads, %s", cfg.PoolThreads(), cfg.PoolIdleTimeout())
	}
	if mode, _ := ParsePoolMode(cfg.ThreadPool.Mode); mode != PoolModeCached {
		t.Errorf("mode = %s", mode)
	}
	if !cfg.Shaders.HotReload || cfg.Shaders.Directory != "shaders" {
		t.Errorf("shaders = %+v", cfg.Shaders)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"zero frames", "[renderer]\nframes_in_flight = 0\n"},
		{"negative threads", "[thread_pool]\nthreads = -1\n"},
		{"negative timeout", "[thread_pool]\nidle_timeout_seconds = -5\n"},
		{"bad mode", "[thread_pool]\nmode = \"elastic\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ParseConfig([]byte(tt.data), DefaultConfig())
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("ParseConfig = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Renderer.FramesInFlight != DefaultConfig().Renderer.FramesInFlight {
		t.Fatal("missing file did not yield the defaults")
	}
}

func TestLoadConfigRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ThreadPool.Threads = 3
	data, err := cfg.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "spices.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.ThreadPool.Threads != 3 {
		t.Fatalf("threads = %d after reload", loaded.ThreadPool.Threads)
	}
}

func TestPoolThreadsDefaultsToCPUCount(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.PoolThreads() != ThreadCeiling() {
		t.Fatalf("PoolThreads() = %d, want %d", cfg.PoolThreads(), ThreadCeiling())
	}
}
