package main

import (
	"context"
	"encoding/binary"
	"math"
	"sync/atomic"
	"time"

	"github.com/lanikai/surfacerelay/internal/sideband"
	"github.com/lanikai/surfacerelay/internal/surface"
)

const (
	imuSamplesPerFrame = 32
	imuSampleSize      = sideband.ImuSize / imuSamplesPerFrame // 6 float32 axes
)

// Buffers the synthetic camera can stamp sideband data onto.
type metadataWriter interface {
	SetMetadata(key uint32, value []byte)
}

// camera feeds a producer at a fixed rate, stamping synthetic IMU samples on
// every frame.
type camera struct {
	producer     surface.Producer
	interval     time.Duration
	fenceTimeout time.Duration

	frames  atomic.Uint64
	dropped atomic.Uint64
}

func (c *camera) run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.capture(now)
		}
	}
}

func (c *camera) capture(now time.Time) {
	buf, f, err := c.producer.RequestBuffer()
	if err != nil {
		c.dropped.Add(1)
		log.Debug("camera: no buffer, frame dropped: %v", err)
		return
	}
	// Wait for the previous consumer before overwriting the buffer.
	if err := f.Resolve(c.fenceTimeout); err != nil {
		log.Warn("camera: release fence: %v", err)
	}

	if w, ok := buf.(metadataWriter); ok {
		w.SetMetadata(sideband.ImuKey, imuBlock(c.frames.Load(), now))
	}

	cfg := surface.FlushConfig{Damage: surface.FullFrame(buf), Timestamp: now.UnixNano()}
	if err := c.producer.FlushBuffer(buf, nil, cfg); err != nil {
		log.Error("camera: flush: %v", err)
		if err := c.producer.CancelBuffer(buf); err != nil {
			log.Error("camera: cancel: %v", err)
		}
		return
	}
	c.frames.Add(1)
}

// imuBlock synthesizes gyro and accelerometer samples, little-endian float32.
func imuBlock(frame uint64, now time.Time) []byte {
	block := make([]byte, sideband.ImuSize)
	base := float64(now.UnixNano()) / 1e9
	for i := 0; i < imuSamplesPerFrame; i++ {
		t := base + float64(i)/1000
		axes := [6]float64{
			0.1 * math.Sin(t), 0.1 * math.Cos(t), 0.01 * float64(frame%7),
			0.2 * math.Sin(2*t), 0.2 * math.Cos(2*t), 9.81,
		}
		for j, v := range axes {
			off := i*imuSampleSize + j*4
			binary.LittleEndian.PutUint32(block[off:], math.Float32bits(float32(v)))
		}
	}
	return block
}
