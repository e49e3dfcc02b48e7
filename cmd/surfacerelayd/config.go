package main

import (
	"os"
	"time"

	flag "github.com/spf13/pflag"
	errors "golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

// Config for the daemon. Values come from the YAML file named by --config,
// then from command-line flags that were set explicitly.
type Config struct {
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Format uint32 `yaml:"format"`

	// Buffers in the camera queue.
	Buffers int `yaml:"buffers"`

	// Synthetic camera frame rate.
	FPS int `yaml:"fps"`

	// How long the synthetic encoder holds each buffer.
	EncodeLatency time.Duration `yaml:"encode_latency"`

	FenceTimeout time.Duration `yaml:"fence_timeout"`

	// HTTP address serving /imu and /metrics.
	Listen string `yaml:"listen"`

	// LOGLEVEL-style directives, e.g. "info,relay=debug".
	LogLevel string `yaml:"log_level"`
}

func defaultConfig() Config {
	return Config{
		Width:         1920,
		Height:        1080,
		Format:        0x3231564e, // NV12
		Buffers:       6,
		FPS:           30,
		EncodeLatency: 20 * time.Millisecond,
		FenceTimeout:  3 * time.Second,
		Listen:        ":8000",
	}
}

// loadConfig reads path over the defaults. An empty path is not an error.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// applyFlags copies explicitly set flags into cfg.
func applyFlags(fs *flag.FlagSet, cfg *Config) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "width":
			cfg.Width, _ = fs.GetInt("width")
		case "height":
			cfg.Height, _ = fs.GetInt("height")
		case "format":
			cfg.Format, _ = fs.GetUint32("format")
		case "buffers":
			cfg.Buffers, _ = fs.GetInt("buffers")
		case "fps":
			cfg.FPS, _ = fs.GetInt("fps")
		case "encode-latency":
			cfg.EncodeLatency, _ = fs.GetDuration("encode-latency")
		case "fence-timeout":
			cfg.FenceTimeout, _ = fs.GetDuration("fence-timeout")
		case "listen":
			cfg.Listen, _ = fs.GetString("listen")
		case "log-level":
			cfg.LogLevel, _ = fs.GetString("log-level")
		}
	})
}

func (c Config) validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return errors.Errorf("invalid geometry %dx%d", c.Width, c.Height)
	}
	if c.Buffers < 1 {
		return errors.Errorf("need at least one buffer, have %d", c.Buffers)
	}
	if c.FPS < 1 || c.FPS > 240 {
		return errors.Errorf("fps %d out of range [1, 240]", c.FPS)
	}
	if c.EncodeLatency < 0 {
		return errors.Errorf("negative encode latency %v", c.EncodeLatency)
	}
	return nil
}
