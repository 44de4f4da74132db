package core

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
)

/**
 * @brief Configuration of the render backend, read from a TOML file.
 */
type Config struct {
	/** @brief One of debug, info, warn, error. */
	LogLevel   string           `toml:"log_level"`
	Renderer   RendererConfig   `toml:"renderer"`
	ThreadPool ThreadPoolConfig `toml:"thread_pool"`
	Shaders    ShaderConfig     `toml:"shaders"`
}

type RendererConfig struct {
	/** @brief Number of overlapping frames, each with its own framebuffers and buffers. */
	FramesInFlight uint32 `toml:"frames_in_flight"`
	/** @brief Initial swapchain extent. */
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
	/** @brief Enables the device-generated-commands draw path when the device supports it. */
	EnableDGC bool `toml:"enable_dgc"`
	/** @brief Emits debug labels around passes and subpasses. */
	DebugLabels bool `toml:"debug_labels"`
	/** @brief Capacity of the variable-count bindless texture binding. */
	BindlessTextureCapacity uint32 `toml:"bindless_texture_capacity"`
}

type ThreadPoolConfig struct {
	/** @brief "fixed" or "cached". */
	Mode string `toml:"mode"`
	/** @brief Threads spawned at start. 0 means one per CPU. */
	Threads int `toml:"threads"`
	/** @brief Seconds a cached thread may idle before it is evicted. */
	IdleTimeoutSeconds int `toml:"idle_timeout_seconds"`
}

type ShaderConfig struct {
	/** @brief Directory holding compiled .spv files. */
	Directory string `toml:"directory"`
	/** @brief Rebuild materials when a shader file changes. */
	HotReload bool `toml:"hot_reload"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Renderer: RendererConfig{
			FramesInFlight:          2,
			Width:                   1280,
			Height:                  720,
			EnableDGC:               true,
			DebugLabels:             true,
			BindlessTextureCapacity: 65536,
		},
		ThreadPool: ThreadPoolConfig{
			Mode:               "fixed",
			Threads:            0,
			IdleTimeoutSeconds: int(DefaultThreadIdleTimeout / time.Second),
		},
		Shaders: ShaderConfig{
			Directory: "assets/shaders",
			HotReload: false,
		},
	}
}

/**
 * LoadConfig reads the TOML file at path on top of the defaults.
 * A missing file is not an error; the defaults are returned.
 */
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			LogInfo("config %s not found, using defaults", path)
			return cfg, nil
		}
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	if err := ParseConfig(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}
	return cfg, nil
}

// ParseConfig decodes TOML data into cfg and validates the result.
func ParseConfig(data []byte, cfg *Config) error {
	if err := toml.Unmarshal(data, cfg); err != nil {
		return err
	}
	return cfg.Validate()
}

func (c *Config) Validate() error {
	if c.Renderer.FramesInFlight == 0 {
		return errors.Wrap(ErrInvalidConfig, "renderer.frames_in_flight must be at least 1")
	}
	if c.ThreadPool.Threads < 0 {
		return errors.Wrap(ErrInvalidConfig, "thread_pool.threads must not be negative")
	}
	if c.ThreadPool.IdleTimeoutSeconds < 0 {
		return errors.Wrap(ErrInvalidConfig, "thread_pool.idle_timeout_seconds must not be negative")
	}
	if _, err := ParsePoolMode(c.ThreadPool.Mode); err != nil {
		return err
	}
	return nil
}

// PoolThreads resolves the configured thread count, 0 meaning one per CPU.
func (c *Config) PoolThreads() int {
	if c.ThreadPool.Threads == 0 {
		return ThreadCeiling()
	}
	return c.ThreadPool.Threads
}

func (c *Config) PoolIdleTimeout() time.Duration {
	return time.Duration(c.ThreadPool.IdleTimeoutSeconds) * time.Second
}

// Marshal renders the configuration back to TOML.
func (c *Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}
