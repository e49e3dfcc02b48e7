package imustream

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeAndWrite(t *testing.T) {
	b := NewBroadcaster()

	var wg sync.WaitGroup
	subs := make([]<-chan Record, 100)
	for i := range subs {
		subs[i] = b.Subscribe(1)
	}

	b.Write(Record{Index: 7, Data: []byte{0xc0, 0xff, 0xee}})

	for _, s := range subs {
		wg.Add(1)
		go func(s <-chan Record) {
			defer wg.Done()
			r, ok := <-s
			assert.True(t, ok)
			assert.Equal(t, uint32(7), r.Index)
			assert.Equal(t, []byte{0xc0, 0xff, 0xee}, r.Data)
		}(s)
	}
	wg.Wait()
}

func TestBackloggedSubscriberDropsOldest(t *testing.T) {
	b := NewBroadcaster()
	s := b.Subscribe(2)

	for i := uint32(0); i < 5; i++ {
		b.Observe(i, nil)
	}

	assert.Equal(t, uint32(3), (<-s).Index)
	assert.Equal(t, uint32(4), (<-s).Index)
}

func TestUnsubscribe(t *testing.T) {
	b := NewBroadcaster()
	s := b.Subscribe(10)
	require.Equal(t, 1, b.Subscribers())

	require.NoError(t, b.Unsubscribe(s))
	_, ok := <-s
	assert.False(t, ok)
	assert.Equal(t, 0, b.Subscribers())

	assert.ErrorIs(t, b.Unsubscribe(s), ErrNotFound)
}

func TestClose(t *testing.T) {
	b := NewBroadcaster()
	s := b.Subscribe(4)
	b.Observe(1, nil)

	require.NoError(t, b.Close())
	_, ok := <-s
	assert.False(t, ok, "pending records are drained on close")

	b.Observe(2, nil)
	late := b.Subscribe(1)
	_, ok = <-late
	assert.False(t, ok)
}
