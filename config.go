package surfacerelay

import (
	"time"

	"github.com/lanikai/surfacerelay/internal/sideband"
	"github.com/lanikai/surfacerelay/internal/surface"
)

const defaultFenceTimeout = 3 * time.Second

// Config holds the collaborators and tunables of a BufferRelay. The zero value
// is usable except for CreateConsumer, which Init requires.
type Config struct {
	// Creates the consumer end of the source queue.
	CreateConsumer surface.ConsumerFactory

	// Upper bound on waiting for an acquire fence. Defaults to 3s.
	FenceTimeout time.Duration

	// Sideband block to extract from each buffer. Defaults to the IMU block.
	Sideband *sideband.Extractor

	// Optional Prometheus collectors.
	Metrics *Metrics
}

func (c Config) fenceTimeout() time.Duration {
	if c.FenceTimeout <= 0 {
		return defaultFenceTimeout
	}
	return c.FenceTimeout
}

func (c Config) extractor() sideband.Extractor {
	if c.Sideband == nil {
		return sideband.Imu
	}
	return *c.Sideband
}
