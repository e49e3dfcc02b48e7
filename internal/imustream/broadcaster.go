//////////////////////////////////////////////////////////////////////////////
//
// Broadcast sideband records from one writer to multiple subscribers.
//
// Each subscriber has its own channel. Records are passed by reference; the
// data slice is shared and must be treated as read-only. A subscriber that
// falls behind loses its oldest record for each new one.
//
// Copyright 2019 Lanikai Labs LLC. All rights reserved.
//
//////////////////////////////////////////////////////////////////////////////

package imustream

import (
	"sync"

	"github.com/lanikai/surfacerelay/internal/logging"
)

var log = logging.DefaultLogger.WithTag("imustream")

// Record is one frame's sideband block.
type Record struct {
	Index uint32
	Data  []byte
}

type Broadcaster struct {
	mutex       sync.Mutex
	subscribers []chan Record
	closed      bool
	dropped     uint64
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

// Subscribe to records, buffering up to n of them. Subscribing to a closed
// broadcaster returns a closed channel.
func (b *Broadcaster) Subscribe(n int) <-chan Record {
	if n < 1 {
		panic("imustream: subscriber capacity must be positive")
	}

	ch := make(chan Record, n)
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Unsubscribe closes the channel returned by Subscribe.
func (b *Broadcaster) Unsubscribe(s <-chan Record) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	for i, sub := range b.subscribers {
		if s == sub {
			// Remove subscriber from slice (order not preserved)
			subs := b.subscribers
			close(subs[i])
			subs[len(subs)-1], subs[i] = subs[i], subs[len(subs)-1]
			b.subscribers = subs[:len(subs)-1]
			return nil
		}
	}
	return ErrNotFound
}

// Write a record to every subscriber. Never blocks.
func (b *Broadcaster) Write(r Record) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	for _, sub := range b.subscribers {
		select {
		case sub <- r:
		default:
			// Subscriber backlogged. Drop oldest record, add newest.
			select {
			case <-sub:
			default:
			}
			sub <- r
			b.dropped++
			log.Debug("subscriber missed a record, %d dropped so far", b.dropped)
		}
	}
}

// Observe adapts Write to the relay's metadata observer signature.
func (b *Broadcaster) Observe(index uint32, data []byte) {
	b.Write(Record{Index: index, Data: data})
}

// Subscribers returns the number of current subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.subscribers)
}

// Close the broadcaster. Subscriber channels are drained and closed; later
// writes are discarded.
func (b *Broadcaster) Close() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	for _, sub := range b.subscribers {
		for len(sub) > 0 {
			<-sub
		}
		close(sub)
	}
	b.subscribers = nil
	b.closed = true
	return nil
}
