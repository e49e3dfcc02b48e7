package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lanikai/surfacerelay"
	"github.com/lanikai/surfacerelay/internal/imustream"
	"github.com/lanikai/surfacerelay/internal/surface"
	"github.com/lanikai/surfacerelay/internal/surface/loopback"
)

// pipeline is camera -> relay -> encoder, with relayed IMU blocks fanned out
// through a broadcaster.
type pipeline struct {
	source      *loopback.Queue
	sink        *loopback.Queue
	relay       *surfacerelay.BufferRelay
	camera      *camera
	encoder     *encoder
	broadcaster *imustream.Broadcaster

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newPipeline(cfg Config, reg prometheus.Registerer) (*pipeline, error) {
	p := &pipeline{
		source:      loopback.New("camera", cfg.Buffers),
		sink:        loopback.New("encoder", 0),
		broadcaster: imustream.NewBroadcaster(),
	}

	p.relay = surfacerelay.New(surfacerelay.Config{
		CreateConsumer: loopback.Factory(p.source),
		FenceTimeout:   cfg.FenceTimeout,
		Metrics:        surfacerelay.NewMetrics(reg),
	})
	if err := p.relay.Init(cfg.Width, cfg.Height, surface.PixelFormat(cfg.Format)); err != nil {
		return nil, err
	}
	if err := p.relay.SetSinkQueue(p.sink); err != nil {
		p.relay.Release()
		return nil, err
	}
	p.relay.SetMetadataObserver(p.broadcaster.Observe)

	enc, err := newEncoder(p.sink, cfg.EncodeLatency, cfg.Buffers)
	if err != nil {
		p.relay.Release()
		return nil, err
	}
	p.encoder = enc
	p.camera = &camera{
		producer:     p.relay.SourceProducer(),
		interval:     time.Second / time.Duration(cfg.FPS),
		fenceTimeout: cfg.FenceTimeout,
	}
	return p, nil
}

func (p *pipeline) start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		p.encoder.run(ctx)
	}()
	go func() {
		defer p.wg.Done()
		p.camera.run(ctx)
	}()
}

func (p *pipeline) stats() string {
	return fmt.Sprintf("captured=%d dropped=%d relayed=%d inflight=%d encoded=%d subscribers=%d",
		p.camera.frames.Load(), p.camera.dropped.Load(), p.relay.FrameIndex(),
		p.relay.InFlight(), p.encoder.frames.Load(), p.broadcaster.Subscribers())
}

// stop halts the camera and encoder, then tears down the relay. Buffers still
// held by the encoder at that point stay with the sink queue.
func (p *pipeline) stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.relay.Release()
	p.broadcaster.Close()
}
