// Package loopback implements an in-process buffer queue with both of the
// surface capabilities. Every buffer carries an explicit owner state and
// illegal transitions fail with ErrBadState, so misbehaving callers are caught
// instead of silently corrupting the queue.
package loopback

import (
	"sync"

	errors "golang.org/x/xerrors"

	"github.com/lanikai/surfacerelay/internal/fence"
	"github.com/lanikai/surfacerelay/internal/logging"
	"github.com/lanikai/surfacerelay/internal/surface"
)

var log = logging.DefaultLogger.WithTag("loopback")

var (
	ErrNoBuffer = errors.New("loopback: no buffer available")
	ErrBadState = errors.New("loopback: buffer in wrong state")
	ErrUnknown  = errors.New("loopback: buffer not in queue")
	ErrInjected = errors.New("loopback: injected failure")
)

// State is the owner of a buffer as seen by the queue.
type State int

const (
	Free     State = iota // Owned by the queue, available to the producer.
	Dequeued              // Held by the producer.
	Queued                // Waiting for the consumer.
	Acquired              // Held by the consumer.
)

func (s State) String() string {
	switch s {
	case Free:
		return "free"
	case Dequeued:
		return "dequeued"
	case Queued:
		return "queued"
	case Acquired:
		return "acquired"
	}
	return "invalid"
}

type slot struct {
	buf   surface.Buffer
	state State

	// Set for buffers that entered through AttachAndFlushBuffer.
	attached bool

	// Fence handed out with the buffer on its next transition.
	fence *fence.Fence

	flush surface.FlushConfig
}

var (
	_ surface.ConsumerSurface = (*Queue)(nil)
	_ surface.ProducerSurface = (*Queue)(nil)
	_ surface.Producer        = (*Queue)(nil)
)

type Queue struct {
	name     string
	capacity int

	mu       sync.Mutex
	width    int
	height   int
	format   surface.PixelFormat
	usage    surface.Usage
	slots    map[uint64]*slot
	free     []uint64
	queued   []uint64
	consumer surface.ConsumerListener
	release  surface.ReleaseFunc
	faults   map[Op]int
}

// New creates a queue that allocates up to capacity buffers of its own. A
// queue with zero capacity only holds buffers attached from elsewhere.
func New(name string, capacity int) *Queue {
	return &Queue{
		name:     name,
		capacity: capacity,
		width:    640,
		height:   480,
		slots:    make(map[uint64]*slot),
		faults:   make(map[Op]int),
	}
}

func (q *Queue) String() string {
	return "loopback:" + q.name
}

// Factory returns a surface.ConsumerFactory that always yields q.
func Factory(q *Queue) surface.ConsumerFactory {
	return func() (surface.ConsumerSurface, error) {
		return q, nil
	}
}

func (q *Queue) SetDefaultSize(width, height int) error {
	if width <= 0 || height <= 0 {
		return errors.Errorf("%s: invalid size %dx%d", q, width, height)
	}
	q.mu.Lock()
	q.width, q.height = width, height
	q.mu.Unlock()
	return nil
}

func (q *Queue) SetDefaultFormat(format surface.PixelFormat) error {
	q.mu.Lock()
	q.format = format
	q.mu.Unlock()
	return nil
}

func (q *Queue) SetDefaultUsage(usage surface.Usage) error {
	q.mu.Lock()
	q.usage = usage
	q.mu.Unlock()
	return nil
}

// Defaults reports the configured geometry, format and usage.
func (q *Queue) Defaults() (width, height int, format surface.PixelFormat, usage surface.Usage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.width, q.height, q.format, q.usage
}

func (q *Queue) RegisterConsumerListener(l surface.ConsumerListener) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.fault(OpRegister); err != nil {
		return err
	}
	q.consumer = l
	return nil
}

func (q *Queue) UnregisterConsumerListener() error {
	q.mu.Lock()
	q.consumer = nil
	q.mu.Unlock()
	return nil
}

func (q *Queue) RegisterReleaseListener(fn surface.ReleaseFunc) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.fault(OpRegister); err != nil {
		return err
	}
	q.release = fn
	return nil
}

func (q *Queue) Producer() (surface.Producer, error) {
	return q, nil
}

// RequestBuffer dequeues a free buffer for the producer, allocating one if
// the queue is below capacity.
func (q *Queue) RequestBuffer() (surface.Buffer, *fence.Fence, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.fault(OpRequest); err != nil {
		return nil, nil, err
	}

	var s *slot
	if len(q.free) > 0 {
		s = q.slots[q.free[0]]
		q.free = q.free[1:]
	} else if q.owned() < q.capacity {
		s = &slot{buf: NewBuffer(q.width, q.height)}
		q.slots[s.buf.ID()] = s
	} else {
		return nil, nil, ErrNoBuffer
	}

	s.state = Dequeued
	f := s.fence
	s.fence = nil
	if f == nil {
		f = fence.None()
	}
	return s.buf, f, nil
}

func (q *Queue) FlushBuffer(buf surface.Buffer, f *fence.Fence, cfg surface.FlushConfig) error {
	q.mu.Lock()
	if err := q.fault(OpFlush); err != nil {
		q.mu.Unlock()
		return err
	}
	s, err := q.lookup(buf, Dequeued)
	if err != nil {
		q.mu.Unlock()
		return err
	}
	q.enqueue(s, f, cfg)
	listener := q.consumer
	q.mu.Unlock()

	if listener != nil {
		listener.OnBufferAvailable()
	}
	return nil
}

func (q *Queue) CancelBuffer(buf surface.Buffer) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	s, err := q.lookup(buf, Dequeued)
	if err != nil {
		return err
	}
	s.state = Free
	q.free = append(q.free, buf.ID())
	return nil
}

func (q *Queue) AcquireBuffer() (surface.Acquired, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.fault(OpAcquire); err != nil {
		return surface.Acquired{}, err
	}
	if len(q.queued) == 0 {
		return surface.Acquired{}, ErrNoBuffer
	}

	s := q.slots[q.queued[0]]
	q.queued = q.queued[1:]
	s.state = Acquired
	f := s.fence
	s.fence = nil
	if f == nil {
		f = fence.None()
	}
	return surface.Acquired{
		Buffer:    s.buf,
		Fence:     f,
		Timestamp: s.flush.Timestamp,
		Damage:    s.flush.Damage,
	}, nil
}

// ReleaseBuffer returns an acquired buffer to the queue. Attached buffers are
// reported to the release listener along with the fence; for the queue's own
// buffers the fence is kept for the producer's next request.
func (q *Queue) ReleaseBuffer(buf surface.Buffer, f *fence.Fence) error {
	q.mu.Lock()
	if err := q.fault(OpRelease); err != nil {
		q.mu.Unlock()
		return err
	}
	s, err := q.lookup(buf, Acquired)
	if err != nil {
		q.mu.Unlock()
		return err
	}
	s.state = Free

	listener := q.release
	if s.attached && listener != nil {
		q.mu.Unlock()
		listener(s.buf, fence.New(f.Take()))
		return nil
	}

	if !s.attached {
		q.free = append(q.free, buf.ID())
	}
	q.keepFence(s, f)
	q.mu.Unlock()
	return nil
}

// AttachAndFlushBuffer adopts a foreign buffer and queues it for the consumer.
func (q *Queue) AttachAndFlushBuffer(buf surface.Buffer, f *fence.Fence, cfg surface.FlushConfig) error {
	if buf == nil {
		return errors.Errorf("%s: attach nil buffer: %w", q, ErrUnknown)
	}

	q.mu.Lock()
	if err := q.fault(OpAttach); err != nil {
		q.mu.Unlock()
		return err
	}
	if _, exists := q.slots[buf.ID()]; exists {
		q.mu.Unlock()
		return errors.Errorf("%s: buffer %#x already attached: %w", q, buf.ID(), ErrBadState)
	}
	s := &slot{buf: buf, attached: true}
	q.slots[buf.ID()] = s
	q.enqueue(s, f, cfg)
	listener := q.consumer
	q.mu.Unlock()

	log.Trace(5, "%s: attached %#x", q, buf.ID())
	if listener != nil {
		listener.OnBufferAvailable()
	}
	return nil
}

// RequestAndDetachBuffer drops a released, attached buffer from the queue.
// The fence is only borrowed.
func (q *Queue) RequestAndDetachBuffer(buf surface.Buffer, f *fence.Fence) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.fault(OpDetach); err != nil {
		return err
	}
	s, err := q.lookup(buf, Free)
	if err != nil {
		return err
	}
	if !s.attached {
		return errors.Errorf("%s: buffer %#x was not attached: %w", q, buf.ID(), ErrBadState)
	}
	s.fence.Close()
	delete(q.slots, buf.ID())
	log.Trace(5, "%s: detached %#x", q, buf.ID())
	return nil
}

// StateOf reports the queue's view of buf.
func (q *Queue) StateOf(buf surface.Buffer) (state State, attached, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	s, ok := q.slots[buf.ID()]
	if !ok {
		return 0, false, false
	}
	return s.state, s.attached, true
}

// Count returns the number of buffers in the given state.
func (q *Queue) Count(state State) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, s := range q.slots {
		if s.state == state {
			n++
		}
	}
	return n
}

// Len returns the number of buffers known to the queue.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.slots)
}

// Close drops listeners and any fences still held by the queue.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.consumer = nil
	q.release = nil
	for _, s := range q.slots {
		s.fence.Close()
		s.fence = nil
	}
	return nil
}

func (q *Queue) lookup(buf surface.Buffer, want State) (*slot, error) {
	if buf == nil {
		return nil, errors.Errorf("%s: nil buffer: %w", q, ErrUnknown)
	}
	s, ok := q.slots[buf.ID()]
	if !ok {
		return nil, errors.Errorf("%s: buffer %#x: %w", q, buf.ID(), ErrUnknown)
	}
	if s.state != want {
		return nil, errors.Errorf("%s: buffer %#x is %s, want %s: %w", q, buf.ID(), s.state, want, ErrBadState)
	}
	return s, nil
}

func (q *Queue) enqueue(s *slot, f *fence.Fence, cfg surface.FlushConfig) {
	s.state = Queued
	s.flush = cfg
	q.keepFence(s, f)
	q.queued = append(q.queued, s.buf.ID())
}

func (q *Queue) keepFence(s *slot, f *fence.Fence) {
	s.fence.Close()
	s.fence = fence.New(f.Take())
}

// Buffers the queue allocated itself.
func (q *Queue) owned() int {
	n := 0
	for _, s := range q.slots {
		if !s.attached {
			n++
		}
	}
	return n
}
