package imustream

import (
	"encoding/binary"
	"math"

	errors "golang.org/x/xerrors"
)

// Records travel as one binary websocket message each:
//
//	+--------+--------+--------+--------+
//	|  'I'   |  'M'   |  'U'   |  '1'   |
//	+--------+--------+--------+--------+
//	|           frame index             |
//	+--------+--------+--------+--------+
//	|     length      |  data ...       |
//	+--------+--------+-----------------+
//
// All integers are big-endian.
const (
	magic      = "IMU1"
	headerSize = len(magic) + 4 + 2
)

var networkOrder = binary.BigEndian

// Encode serializes r. Data longer than 65535 bytes is rejected.
func Encode(r Record) ([]byte, error) {
	if len(r.Data) > math.MaxUint16 {
		return nil, errors.Errorf("%d data bytes: %w", len(r.Data), ErrBadRecord)
	}
	buf := make([]byte, headerSize+len(r.Data))
	copy(buf, magic)
	networkOrder.PutUint32(buf[4:], r.Index)
	networkOrder.PutUint16(buf[8:], uint16(len(r.Data)))
	copy(buf[headerSize:], r.Data)
	return buf, nil
}

// Decode parses a message produced by Encode.
func Decode(p []byte) (Record, error) {
	if len(p) < headerSize {
		return Record{}, errors.Errorf("short message (%d bytes): %w", len(p), ErrBadRecord)
	}
	if string(p[:4]) != magic {
		return Record{}, errors.Errorf("bad magic %q: %w", p[:4], ErrBadRecord)
	}
	n := int(networkOrder.Uint16(p[8:]))
	if len(p) != headerSize+n {
		return Record{}, errors.Errorf("length %d, have %d data bytes: %w", n, len(p)-headerSize, ErrBadRecord)
	}
	return Record{
		Index: networkOrder.Uint32(p[4:]),
		Data:  append([]byte(nil), p[headerSize:]...),
	}, nil
}
