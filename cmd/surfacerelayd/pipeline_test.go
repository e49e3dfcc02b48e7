package main

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/surfacerelay/internal/sideband"
)

func TestImuBlock(t *testing.T) {
	block := imuBlock(3, time.Unix(100, 0))
	assert.Len(t, block, sideband.ImuSize)
	assert.NotEqual(t, make([]byte, sideband.ImuSize), block)
}

func TestPipelineRelaysFrames(t *testing.T) {
	cfg := defaultConfig()
	cfg.Width, cfg.Height = 64, 48
	cfg.Buffers = 3
	cfg.FPS = 200
	cfg.EncodeLatency = time.Millisecond
	cfg.FenceTimeout = 100 * time.Millisecond

	p, err := newPipeline(cfg, prometheus.NewRegistry())
	require.NoError(t, err)

	records := p.broadcaster.Subscribe(64)
	p.start(context.Background())

	var last uint32
	for i := 0; i < 10; i++ {
		select {
		case r, ok := <-records:
			require.True(t, ok)
			assert.Len(t, r.Data, sideband.ImuSize)
			if i > 0 {
				assert.Greater(t, r.Index, last)
			}
			last = r.Index
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for relayed frames")
		}
	}

	assert.Eventually(t, func() bool {
		return p.encoder.frames.Load() >= 5
	}, 5*time.Second, 10*time.Millisecond)

	p.stop()
	assert.False(t, p.relay.Running())
	assert.Equal(t, 0, p.relay.InFlight())
	assert.LessOrEqual(t, p.source.Len(), cfg.Buffers)

	// stop closes the broadcaster, which ends the subscription.
	for range records {
	}
}

func TestPipelineBadGeometry(t *testing.T) {
	cfg := defaultConfig()
	cfg.Width = -1
	_, err := newPipeline(cfg, prometheus.NewRegistry())
	assert.Error(t, err)
}
