// Package sideband pulls fixed-size metadata blocks, such as per-frame IMU
// samples, out of graphics buffers.
package sideband

import (
	"github.com/lanikai/surfacerelay/internal/logging"
	"github.com/lanikai/surfacerelay/internal/surface"
)

var log = logging.DefaultLogger.WithTag("sideband")

const (
	// Metadata key under which camera producers store IMU samples.
	ImuKey uint32 = 4101

	// Exact size of an IMU block.
	ImuSize = 768
)

// Extractor reads the block stored under Key and accepts it only if it is
// exactly Size bytes long.
type Extractor struct {
	Key  uint32
	Size int
}

// Imu is the extractor for camera IMU blocks.
var Imu = Extractor{Key: ImuKey, Size: ImuSize}

// Extract returns the block, or false if it is absent, unreadable or has the
// wrong length. None of these are errors to the caller.
func (e Extractor) Extract(buf surface.Buffer) ([]byte, bool) {
	if buf == nil {
		return nil, false
	}

	data, err := buf.Metadata(e.Key)
	if err != nil {
		log.Debug("buffer %#x: no metadata under key %d: %v", buf.ID(), e.Key, err)
		return nil, false
	}

	if len(data) != e.Size {
		log.Warn("buffer %#x: metadata key %d is %d bytes, want %d", buf.ID(), e.Key, len(data), e.Size)
		return nil, false
	}

	return data, true
}

// Extract applies the IMU extractor.
func Extract(buf surface.Buffer) ([]byte, bool) {
	return Imu.Extract(buf)
}
