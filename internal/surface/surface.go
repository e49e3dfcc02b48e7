// Package surface describes the two ends of a producer/consumer buffer queue
// as capabilities. Implementations own allocation, IPC and fence semantics;
// callers only move buffers between owners through the operations below.
//
// Fence ownership: a *fence.Fence passed to ReleaseBuffer, AttachAndFlushBuffer
// or FlushBuffer is forwarded to the callee, which calls Take if it keeps the
// descriptor. RequestAndDetachBuffer only borrows its fence. Callers close
// whatever is left once the call returns.
package surface

import (
	"fmt"

	"github.com/lanikai/surfacerelay/internal/fence"
)

// Buffer is an opaque handle to a graphics buffer that may be shared between
// queues without copying.
type Buffer interface {
	// ID is the buffer's memory identity, stable for the buffer's lifetime and
	// unique among live buffers.
	ID() uint64

	Width() int
	Height() int

	// Metadata returns the value stored under key, or an error if the key is
	// absent or unreadable.
	Metadata(key uint32) ([]byte, error)
}

// PixelFormat is an implementation-defined pixel format code.
type PixelFormat int32

// Usage is a bit set of memory usage requirements for queue-allocated buffers.
type Usage uint64

const (
	UsageCPURead Usage = 1 << iota
	UsageCPUWrite
	UsageMemDMA
)

func (u Usage) String() string {
	return fmt.Sprintf("%#x", uint64(u))
}

// Rect is a region of a buffer in pixels.
type Rect struct {
	X, Y, W, H int
}

// FlushConfig accompanies a buffer submitted for consumption.
type FlushConfig struct {
	Damage    Rect
	Timestamp int64
}

// Acquired is one buffer handed to a consumer.
type Acquired struct {
	Buffer    Buffer
	Fence     *fence.Fence
	Timestamp int64
	Damage    Rect
}

// ConsumerListener is notified when a buffer is ready to be acquired. It may
// be called from any goroutine.
type ConsumerListener interface {
	OnBufferAvailable()
}

// ConsumerListenerFunc adapts a plain function to ConsumerListener.
type ConsumerListenerFunc func()

func (fn ConsumerListenerFunc) OnBufferAvailable() { fn() }

// ReleaseFunc is notified when the consumer side of a queue releases a buffer
// that was attached by a producer. The fence signals when the consumer is done
// reading; ownership of it passes to the callee.
type ReleaseFunc func(buf Buffer, f *fence.Fence)

// ConsumerSurface is the consuming end of a buffer queue.
type ConsumerSurface interface {
	SetDefaultSize(width, height int) error
	SetDefaultFormat(format PixelFormat) error
	SetDefaultUsage(usage Usage) error

	RegisterConsumerListener(l ConsumerListener) error
	UnregisterConsumerListener() error

	// Producer returns the producing end of the same queue.
	Producer() (Producer, error)

	AcquireBuffer() (Acquired, error)
	ReleaseBuffer(buf Buffer, f *fence.Fence) error
}

// ConsumerFactory creates a new, unconfigured consumer surface.
type ConsumerFactory func() (ConsumerSurface, error)

// Producer is the producing end of a queue as handed to a buffer producer such
// as a camera.
type Producer interface {
	RequestBuffer() (Buffer, *fence.Fence, error)
	FlushBuffer(buf Buffer, f *fence.Fence, cfg FlushConfig) error
	CancelBuffer(buf Buffer) error
}

// ProducerSurface is the producing end of a queue that accepts buffers it did
// not allocate.
type ProducerSurface interface {
	RegisterReleaseListener(fn ReleaseFunc) error

	// AttachAndFlushBuffer binds buf to the queue and submits it for
	// consumption in one round trip.
	AttachAndFlushBuffer(buf Buffer, f *fence.Fence, cfg FlushConfig) error

	// RequestAndDetachBuffer unbinds a released buffer from the queue.
	RequestAndDetachBuffer(buf Buffer, f *fence.Fence) error
}

// FullFrame returns the damage rectangle covering all of buf.
func FullFrame(buf Buffer) Rect {
	return Rect{W: buf.Width(), H: buf.Height()}
}
