package main

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/lanikai/surfacerelay/internal/fence"
	"github.com/lanikai/surfacerelay/internal/surface"
	"github.com/lanikai/surfacerelay/internal/surface/loopback"
)

// encoder drains a sink queue, holding each buffer for a fixed latency before
// releasing it back to the producer side.
type encoder struct {
	queue   *loopback.Queue
	latency time.Duration
	ready   chan struct{}

	frames atomic.Uint64
}

func newEncoder(queue *loopback.Queue, latency time.Duration, depth int) (*encoder, error) {
	e := &encoder{
		queue:   queue,
		latency: latency,
		ready:   make(chan struct{}, depth),
	}
	err := queue.RegisterConsumerListener(surface.ConsumerListenerFunc(func() {
		e.ready <- struct{}{}
	}))
	return e, err
}

func (e *encoder) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.ready:
			e.encode(ctx)
		}
	}
}

func (e *encoder) encode(ctx context.Context) {
	a, err := e.queue.AcquireBuffer()
	if err != nil {
		log.Warn("encoder: acquire: %v", err)
		return
	}
	if err := a.Fence.Resolve(time.Second); err != nil {
		log.Warn("encoder: acquire fence: %v", err)
	}

	select {
	case <-time.After(e.latency):
	case <-ctx.Done():
	}

	if err := e.queue.ReleaseBuffer(a.Buffer, fence.None()); err != nil {
		log.Error("encoder: release %#x: %v", a.Buffer.ID(), err)
		return
	}
	e.frames.Add(1)
}
