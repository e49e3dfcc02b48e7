package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
	assert.NoError(t, cfg.validate())
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	doc := `
width: 1280
height: 720
buffers: 4
encode_latency: 5ms
fence_timeout: 250ms
log_level: info,relay=debug
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 1280, cfg.Width)
	assert.Equal(t, 720, cfg.Height)
	assert.Equal(t, 4, cfg.Buffers)
	assert.Equal(t, 5*time.Millisecond, cfg.EncodeLatency)
	assert.Equal(t, 250*time.Millisecond, cfg.FenceTimeout)
	assert.Equal(t, "info,relay=debug", cfg.LogLevel)

	// Unset keys keep their defaults.
	assert.Equal(t, 30, cfg.FPS)
	assert.Equal(t, ":8000", cfg.Listen)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("width: [1, 2"), 0o644))
	_, err = loadConfig(path)
	assert.Error(t, err)
}

func TestFlagsOverrideFile(t *testing.T) {
	fs := newFlagSet()
	require.NoError(t, fs.Parse([]string{"-x", "640", "--fps=60", "--encode-latency=1ms", "--format=0x32315659"}))

	cfg := defaultConfig()
	cfg.Height = 480
	cfg.Listen = "127.0.0.1:9000"
	applyFlags(fs, &cfg)

	assert.Equal(t, 640, cfg.Width)
	assert.Equal(t, 60, cfg.FPS)
	assert.Equal(t, time.Millisecond, cfg.EncodeLatency)
	assert.Equal(t, uint32(0x32315659), cfg.Format)

	// Flags left at their defaults do not clobber file values.
	assert.Equal(t, 480, cfg.Height)
	assert.Equal(t, "127.0.0.1:9000", cfg.Listen)
	assert.Equal(t, 3*time.Second, cfg.FenceTimeout)
}

func TestValidate(t *testing.T) {
	mutate := map[string]func(*Config){
		"geometry": func(c *Config) { c.Width = 0 },
		"buffers":  func(c *Config) { c.Buffers = 0 },
		"fps":      func(c *Config) { c.FPS = 1000 },
		"latency":  func(c *Config) { c.EncodeLatency = -time.Second },
	}
	for name, fn := range mutate {
		cfg := defaultConfig()
		fn(&cfg)
		assert.Error(t, cfg.validate(), name)
	}
}
