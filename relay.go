//////////////////////////////////////////////////////////////////////////////
//
// BufferRelay moves camera buffers into an encoder queue without copying and
// hands them back to the camera once the encoder is done with them.
//
// Copyright 2019 Lanikai Labs LLC. All rights reserved.
//
//////////////////////////////////////////////////////////////////////////////

package surfacerelay

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/surfacerelay/internal/fence"
	"github.com/lanikai/surfacerelay/internal/inflight"
	"github.com/lanikai/surfacerelay/internal/logging"
	"github.com/lanikai/surfacerelay/internal/sideband"
	"github.com/lanikai/surfacerelay/internal/surface"
)

var log = logging.DefaultLogger.WithTag("relay")

// MetadataObserver receives the sideband block of each relayed frame. It runs
// on the source queue's callback goroutine and must not block.
type MetadataObserver func(frameIndex uint32, data []byte)

// Queue handles in use. Replaced wholesale under BufferRelay.lifecycle so
// callbacks can take a consistent snapshot without locking.
type queues struct {
	source   surface.ConsumerSurface
	producer surface.Producer
	sink     surface.ProducerSurface
}

// BufferRelay owns the consumer end of a source queue and relays every buffer
// that arrives on it into a sink queue.
//
// A buffer is owned by exactly one of the source queue, the relay or the sink
// queue. The relay takes it with AcquireBuffer, passes it to the sink with
// AttachAndFlushBuffer and, when the sink releases it, takes it back with
// RequestAndDetachBuffer and returns it with ReleaseBuffer. Buffers on loan to
// the sink are tracked in an inflight.Registry, which is the only authority
// for returning them.
type BufferRelay struct {
	cfg       Config
	extractor sideband.Extractor

	// Serializes Init, SetSinkQueue and Release. Never taken on the callback
	// paths.
	lifecycle sync.Mutex

	queues   atomic.Pointer[queues]
	observer atomic.Pointer[MetadataObserver]
	registry *inflight.Registry

	frameIndex atomic.Uint32
	running    atomic.Bool
}

var _ surface.ConsumerListener = (*BufferRelay)(nil)

// New returns an idle relay. Call Init to start it.
func New(cfg Config) *BufferRelay {
	return &BufferRelay{
		cfg:       cfg,
		extractor: cfg.extractor(),
		registry:  inflight.New(),
	}
}

// Init creates and configures the source queue and starts relaying.
func (r *BufferRelay) Init(width, height int, format surface.PixelFormat) error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	log.Info("Init: %dx%d, format=%d", width, height, format)

	if r.running.Load() {
		return errors.Wrap(ErrOperation, "relay already initialized")
	}
	if r.cfg.CreateConsumer == nil {
		return errors.Wrap(ErrInit, "no consumer factory configured")
	}

	source, err := r.cfg.CreateConsumer()
	if err != nil {
		return errors.Wrapf(ErrInit, "create consumer surface: %v", err)
	}
	if source == nil {
		return errors.Wrap(ErrInit, "create consumer surface: nil surface")
	}

	if err := source.SetDefaultSize(width, height); err != nil {
		return errors.Wrapf(ErrInit, "set default size: %v", err)
	}
	if err := source.SetDefaultFormat(format); err != nil {
		return errors.Wrapf(ErrInit, "set default format: %v", err)
	}
	if err := source.SetDefaultUsage(surface.UsageCPURead | surface.UsageMemDMA); err != nil {
		return errors.Wrapf(ErrInit, "set default usage: %v", err)
	}

	if err := source.RegisterConsumerListener(r); err != nil {
		log.Error("Register consumer listener failed: %v", err)
		return errors.Wrapf(ErrOperation, "register consumer listener: %v", err)
	}

	producer, err := source.Producer()
	if err == nil && producer == nil {
		err = errors.New("nil producer")
	}
	if err != nil {
		if uerr := source.UnregisterConsumerListener(); uerr != nil {
			log.Warn("Unregister consumer listener: %v", uerr)
		}
		return errors.Wrapf(ErrInit, "get producer: %v", err)
	}

	next := &queues{source: source, producer: producer}
	if prev := r.queues.Load(); prev != nil {
		next.sink = prev.sink
	}
	r.queues.Store(next)
	r.registry.Reopen()
	r.frameIndex.Store(0)
	r.running.Store(true)

	log.Info("Initialized")
	return nil
}

// SourceProducer returns the producing end of the source queue, to be handed
// to the buffer producer. It is nil until Init succeeds and after Release.
func (r *BufferRelay) SourceProducer() surface.Producer {
	if q := r.queues.Load(); q != nil {
		return q.producer
	}
	return nil
}

// SetSinkQueue directs relayed buffers into sink. Replacing a sink while
// buffers are on loan to the previous one is not supported; those buffers
// would never be returned.
func (r *BufferRelay) SetSinkQueue(sink surface.ProducerSurface) error {
	if sink == nil {
		log.Error("Sink queue is nil")
		return errors.Wrap(ErrInvalidArgument, "sink queue is nil")
	}

	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	if err := sink.RegisterReleaseListener(r.OnSinkReleaseBuffer); err != nil {
		log.Error("Register release listener failed: %v", err)
		return errors.Wrapf(ErrOperation, "register release listener: %v", err)
	}

	next := &queues{sink: sink}
	if prev := r.queues.Load(); prev != nil {
		if prev.sink != nil && r.registry.Len() > 0 {
			log.Warn("Sink queue replaced with %d buffers on loan", r.registry.Len())
		}
		next.source, next.producer = prev.source, prev.producer
	}
	r.queues.Store(next)

	log.Info("Sink queue set")
	return nil
}

// SetMetadataObserver sets the function notified of each sideband block. A
// nil fn removes the observer.
func (r *BufferRelay) SetMetadataObserver(fn MetadataObserver) {
	if fn == nil {
		r.observer.Store(nil)
		return
	}
	r.observer.Store(&fn)
}

// OnBufferAvailable relays one buffer from the source queue. Events that
// arrive while the relay is not running are dropped.
func (r *BufferRelay) OnBufferAvailable() {
	if !r.running.Load() {
		return
	}

	q := r.queues.Load()
	if q == nil || q.source == nil || q.sink == nil {
		log.Warn("Buffer available but queues not ready")
		return
	}

	r.relay(q)
}

func (r *BufferRelay) relay(q *queues) {
	acq, err := q.source.AcquireBuffer()
	if err == nil && acq.Buffer == nil {
		err = errors.New("nil buffer")
	}
	if err != nil {
		acq.Fence.Close()
		r.cfg.Metrics.acquireFailed()
		log.Error("Acquire buffer from source failed: %v", err)
		return
	}

	buf := acq.Buffer
	index := r.frameIndex.Add(1) - 1
	log.Debug("Acquired buffer %#x: frame=%d ts=%d %v", buf.ID(), index, acq.Timestamp, acq.Fence)

	r.resolveFence(acq.Fence)

	data, ok := r.extractor.Extract(buf)
	r.cfg.Metrics.sidebandBlock(ok)
	if ok {
		log.Trace(5, "Extracted %d sideband bytes, frame=%d", len(data), index)
		if obs := r.observer.Load(); obs != nil {
			(*obs)(index, data)
		}
	}

	if err := r.attach(q, buf); err != nil {
		r.cfg.Metrics.attempt(false)
		if errors.Is(err, inflight.ErrClosed) {
			log.Warn("Buffer %#x acquired during teardown, returning to source", buf.ID())
		} else {
			log.Error("Attach buffer %#x to sink failed: %v", buf.ID(), err)
		}
		if err := q.source.ReleaseBuffer(buf, fence.None()); err != nil {
			log.Error("Return buffer %#x to source failed: %v", buf.ID(), err)
		}
		return
	}
	r.cfg.Metrics.attempt(true)
}

// The buffer's memory must not be touched while its acquire fence is pending.
func (r *BufferRelay) resolveFence(f *fence.Fence) {
	if !f.Valid() {
		return
	}
	desc := f.String()
	start := time.Now()
	if err := f.Resolve(r.cfg.fenceTimeout()); err != nil {
		log.Warn("Resolve %s: %v", desc, err)
	}
	r.cfg.Metrics.fenceWaited(time.Since(start))
}

// attach loans buf to the sink. The loan is opened before the attach call so
// that a release racing the call still finds it.
func (r *BufferRelay) attach(q *queues, buf surface.Buffer) error {
	if err := r.registry.Open(buf); err != nil {
		return errors.WithMessage(err, "open loan")
	}

	cfg := surface.FlushConfig{Damage: surface.FullFrame(buf)}
	if err := q.sink.AttachAndFlushBuffer(buf, fence.None(), cfg); err != nil {
		r.registry.Abort(buf)
		return errors.Wrapf(ErrOperation, "attach and flush: %v", err)
	}

	f, released, err := r.registry.Commit(buf)
	if err != nil {
		// Release cleared the registry during the attach call.
		log.Warn("Buffer %#x attached during teardown, left with sink", buf.ID())
		return nil
	}
	if released {
		log.Debug("Buffer %#x released by sink before attach returned", buf.ID())
		defer f.Close()
		if err := r.returnToSource(q, buf, f); err != nil {
			log.Error("%v", err)
		}
	}
	r.cfg.Metrics.setInFlight(r.registry.Len())
	log.Trace(5, "Buffer %#x attached to sink", buf.ID())
	return nil
}

// OnSinkReleaseBuffer takes a buffer released by the sink back to the source
// queue. It may run concurrently with OnBufferAvailable.
func (r *BufferRelay) OnSinkReleaseBuffer(buf surface.Buffer, f *fence.Fence) {
	defer f.Close()

	if buf == nil {
		log.Error("Sink released a nil buffer")
		return
	}
	log.Debug("Sink released buffer %#x, %v", buf.ID(), f)

	claim, loan := r.registry.Claim(buf, f)
	switch claim {
	case inflight.Unknown:
		r.cfg.Metrics.untrackedRelease()
		log.Warn("Sink released buffer %#x that is not on loan, ignoring", buf.ID())
		return
	case inflight.Deferred:
		return
	}
	r.cfg.Metrics.setInFlight(r.registry.Len())

	if err := r.returnToSource(r.queues.Load(), loan.Buffer, f); err != nil {
		log.Error("%v", err)
	}
}

// returnToSource detaches buf from the sink and releases it to the source. The
// fence is borrowed by the detach and forwarded by the release. An error
// wrapping ErrOperation means the buffer could not be returned; that outcome
// is terminal.
func (r *BufferRelay) returnToSource(q *queues, buf surface.Buffer, f *fence.Fence) error {
	if q != nil && q.sink != nil {
		if err := q.sink.RequestAndDetachBuffer(buf, f); err != nil {
			r.cfg.Metrics.detachFailed()
			log.Warn("Request and detach buffer %#x failed: %v", buf.ID(), err)
		}
	}

	if q == nil || q.source == nil {
		r.cfg.Metrics.returned(false)
		return errors.Wrapf(ErrOperation, "return buffer %#x: source queue released", buf.ID())
	}

	if err := q.source.ReleaseBuffer(buf, f); err != nil {
		r.cfg.Metrics.returned(false)
		return errors.Wrapf(ErrOperation, "release buffer %#x to source: %v", buf.ID(), err)
	}

	r.cfg.Metrics.returned(true)
	log.Trace(5, "Buffer %#x returned to source", buf.ID())
	return nil
}

// Release stops relaying and drops both queues. Buffers still on loan to the
// sink are forgotten, not recovered. Release is idempotent.
func (r *BufferRelay) Release() {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	wasRunning := r.running.Swap(false)

	q := r.queues.Swap(nil)
	if q != nil && q.source != nil {
		if err := q.source.UnregisterConsumerListener(); err != nil {
			log.Warn("Unregister consumer listener: %v", err)
		}
	}

	if n := r.registry.Clear(); n > 0 {
		log.Warn("Released with %d buffers on loan to the sink", n)
	}
	r.cfg.Metrics.setInFlight(0)

	if wasRunning || q != nil {
		log.Info("Released")
	}
}

// Close implements io.Closer.
func (r *BufferRelay) Close() error {
	r.Release()
	return nil
}

// FrameIndex returns the index the next relay attempt will use.
func (r *BufferRelay) FrameIndex() uint32 {
	return r.frameIndex.Load()
}

// InFlight returns the number of buffers on loan to the sink.
func (r *BufferRelay) InFlight() int {
	return r.registry.Len()
}

// Running reports whether buffer-ready events are being relayed.
func (r *BufferRelay) Running() bool {
	return r.running.Load()
}
