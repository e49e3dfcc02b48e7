package loopback

import (
	"sync"
	"sync/atomic"

	errors "golang.org/x/xerrors"
)

// ErrNoMetadata is returned by Buffer.Metadata for keys that were never set.
var ErrNoMetadata = errors.New("loopback: metadata key not set")

// Buffer identities mimic page-aligned mapping addresses.
const (
	idBase   = 0x7f0000000000
	idStride = 0x1000
)

var lastID uint64 = idBase

// Buffer is a heap-backed surface.Buffer. Pixel memory is allocated on first
// use of Bytes.
type Buffer struct {
	id     uint64
	width  int
	height int

	mu   sync.RWMutex
	data []byte
	meta map[uint32][]byte
}

// NewBuffer allocates a buffer with a fresh identity.
func NewBuffer(width, height int) *Buffer {
	return &Buffer{
		id:     atomic.AddUint64(&lastID, idStride),
		width:  width,
		height: height,
	}
}

func (b *Buffer) ID() uint64  { return b.id }
func (b *Buffer) Width() int  { return b.width }
func (b *Buffer) Height() int { return b.height }

// Bytes returns the pixel memory, sized for 12 bits per pixel.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data == nil {
		b.data = make([]byte, b.width*b.height*3/2)
	}
	return b.data
}

// SetMetadata stores a copy of value under key. A nil value removes the key.
func (b *Buffer) SetMetadata(key uint32, value []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if value == nil {
		delete(b.meta, key)
		return
	}
	if b.meta == nil {
		b.meta = make(map[uint32][]byte)
	}
	b.meta[key] = append([]byte(nil), value...)
}

// Metadata returns a copy of the value stored under key.
func (b *Buffer) Metadata(key uint32) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.meta[key]
	if !ok {
		return nil, errors.Errorf("key %d: %w", key, ErrNoMetadata)
	}
	return append([]byte(nil), v...), nil
}
