// Package config loads PlayClaw configuration from a YAML file with
// environment variable overrides. Load order: built-in defaults, then the
// config file (if present), then PLAYCLAW_* env vars.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// CaptureConfig controls the capture loop and clip extraction.
type CaptureConfig struct {
	// FPS is the fixed capture rate of the rolling buffer.
	FPS int `yaml:"fps" env:"PLAYCLAW_CAPTURE_FPS"`
	// WindowSeconds is how much footage the rolling buffer retains.
	WindowSeconds int `yaml:"window_seconds" env:"PLAYCLAW_CAPTURE_WINDOW_SECONDS"`
	// SourceURL is the emulator screenshot endpoint. Empty selects the
	// built-in synthetic source (demo mode).
	SourceURL string `yaml:"source_url" env:"PLAYCLAW_CAPTURE_SOURCE_URL"`

	// TargetWidth bounds clip frame width; wider frames are scaled down,
	// narrower frames are left alone.
	TargetWidth int `yaml:"target_width" env:"PLAYCLAW_CLIP_TARGET_WIDTH"`
	// MaxClipFrames bounds frames per clip; windows with more frames are
	// stride-downsampled.
	MaxClipFrames int `yaml:"max_clip_frames" env:"PLAYCLAW_CLIP_MAX_FRAMES"`
	// MinFrameMS is the floor for per-frame display time in a clip.
	MinFrameMS int `yaml:"min_frame_ms" env:"PLAYCLAW_CLIP_MIN_FRAME_MS"`
	// ClipDurationMS is the target wall-clock playback length of a clip.
	ClipDurationMS int `yaml:"clip_duration_ms" env:"PLAYCLAW_CLIP_DURATION_MS"`
	// InitialLookbackSeconds is the window for the first extraction of a
	// session.
	InitialLookbackSeconds int `yaml:"initial_lookback_seconds" env:"PLAYCLAW_CLIP_INITIAL_LOOKBACK"`
	// GapCeilingSeconds caps clip length after a stall between extractions.
	GapCeilingSeconds int `yaml:"gap_ceiling_seconds" env:"PLAYCLAW_CLIP_GAP_CEILING"`
}

// ControlConfig controls the decision cycle.
type ControlConfig struct {
	// IntervalSeconds is the pause between decision cycles.
	IntervalSeconds int `yaml:"interval_seconds" env:"PLAYCLAW_CONTROL_INTERVAL"`
	// RequestTimeoutSeconds bounds the wait for a clip from the capture loop.
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds" env:"PLAYCLAW_CONTROL_REQUEST_TIMEOUT"`
	Provider              string `yaml:"provider" env:"PLAYCLAW_PROVIDER"` // anthropic | openai
	Model                 string `yaml:"model" env:"PLAYCLAW_MODEL"`
	APIKey                string `yaml:"api_key" env:"PLAYCLAW_API_KEY"`
	APIBase               string `yaml:"api_base" env:"PLAYCLAW_API_BASE"`
}

// GatewayConfig controls the dashboard HTTP/WebSocket server.
type GatewayConfig struct {
	Host string `yaml:"host" env:"PLAYCLAW_GATEWAY_HOST"`
	Port int    `yaml:"port" env:"PLAYCLAW_GATEWAY_PORT"`
}

// ArchiveConfig controls the sqlite message archive.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled" env:"PLAYCLAW_ARCHIVE_ENABLED"`
	Path    string `yaml:"path" env:"PLAYCLAW_ARCHIVE_PATH"`
}

// NotifyConfig controls the Discord notifier.
type NotifyConfig struct {
	DiscordToken   string `yaml:"discord_token" env:"PLAYCLAW_DISCORD_TOKEN"`
	DiscordChannel string `yaml:"discord_channel" env:"PLAYCLAW_DISCORD_CHANNEL"`
}

// Config is the root configuration.
type Config struct {
	Capture CaptureConfig `yaml:"capture"`
	Control ControlConfig `yaml:"control"`
	Gateway GatewayConfig `yaml:"gateway"`
	Archive ArchiveConfig `yaml:"archive"`
	Notify  NotifyConfig  `yaml:"notify"`

	// HealthCron is a cron expression for periodic health snapshots on
	// the bus. Empty disables them.
	HealthCron string `yaml:"health_cron" env:"PLAYCLAW_HEALTH_CRON"`
	LogLevel   string `yaml:"log_level" env:"PLAYCLAW_LOG_LEVEL"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Capture: CaptureConfig{
			FPS:                    10,
			WindowSeconds:          20,
			TargetWidth:            480,
			MaxClipFrames:          50,
			MinFrameMS:             20,
			ClipDurationMS:         3000,
			InitialLookbackSeconds: 5,
			GapCeilingSeconds:      10,
		},
		Control: ControlConfig{
			IntervalSeconds:       5,
			RequestTimeoutSeconds: 30,
			Provider:              "anthropic",
		},
		Gateway: GatewayConfig{
			Host: "127.0.0.1",
			Port: 8777,
		},
		Archive: ArchiveConfig{
			Enabled: true,
			Path:    "playclaw.db",
		},
		HealthCron: "* * * * *",
		LogLevel:   "info",
	}
}

// Load reads the config file at path (a missing file is not an error,
// defaults apply), then applies env overrides, then validates.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// run on defaults
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the runtime cannot honor.
func (c *Config) Validate() error {
	if c.Capture.FPS <= 0 {
		return fmt.Errorf("capture.fps must be positive, got %d", c.Capture.FPS)
	}
	if c.Capture.WindowSeconds <= 0 {
		return fmt.Errorf("capture.window_seconds must be positive, got %d", c.Capture.WindowSeconds)
	}
	if c.Capture.MaxClipFrames <= 0 {
		return fmt.Errorf("capture.max_clip_frames must be positive, got %d", c.Capture.MaxClipFrames)
	}
	if c.Capture.TargetWidth <= 0 {
		return fmt.Errorf("capture.target_width must be positive, got %d", c.Capture.TargetWidth)
	}
	if c.Capture.GapCeilingSeconds < c.Capture.InitialLookbackSeconds {
		return fmt.Errorf("capture.gap_ceiling_seconds (%d) must be >= initial_lookback_seconds (%d)",
			c.Capture.GapCeilingSeconds, c.Capture.InitialLookbackSeconds)
	}
	if c.Control.IntervalSeconds <= 0 {
		return fmt.Errorf("control.interval_seconds must be positive, got %d", c.Control.IntervalSeconds)
	}
	if c.Control.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("control.request_timeout_seconds must be positive, got %d", c.Control.RequestTimeoutSeconds)
	}
	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway.port out of range: %d", c.Gateway.Port)
	}
	switch c.Control.Provider {
	case "anthropic", "openai", "":
	default:
		return fmt.Errorf("control.provider must be anthropic or openai, got %q", c.Control.Provider)
	}
	return nil
}

// RequestTimeout returns the clip request timeout as a duration.
func (c *ControlConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// Interval returns the decision cycle interval as a duration.
func (c *ControlConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Addr returns the host:port listen address for the gateway.
func (c *GatewayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
