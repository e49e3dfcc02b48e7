package loopback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/surfacerelay/internal/fence"
	"github.com/lanikai/surfacerelay/internal/surface"
)

func TestProducerConsumerCycle(t *testing.T) {
	q := New("cam", 2)
	require.NoError(t, q.SetDefaultSize(320, 240))

	notified := 0
	require.NoError(t, q.RegisterConsumerListener(surface.ConsumerListenerFunc(func() { notified++ })))

	buf, f, err := q.RequestBuffer()
	require.NoError(t, err)
	assert.False(t, f.Valid())
	assert.Equal(t, 320, buf.Width())
	assert.Equal(t, 240, buf.Height())

	require.NoError(t, q.FlushBuffer(buf, fence.None(), surface.FlushConfig{Timestamp: 42, Damage: surface.FullFrame(buf)}))
	assert.Equal(t, 1, notified)

	a, err := q.AcquireBuffer()
	require.NoError(t, err)
	assert.Equal(t, buf.ID(), a.Buffer.ID())
	assert.Equal(t, int64(42), a.Timestamp)
	assert.Equal(t, surface.Rect{W: 320, H: 240}, a.Damage)

	state, attached, ok := q.StateOf(buf)
	require.True(t, ok)
	assert.Equal(t, Acquired, state)
	assert.False(t, attached)

	require.NoError(t, q.ReleaseBuffer(buf, fence.None()))
	assert.Equal(t, 1, q.Count(Free))

	_, err = q.AcquireBuffer()
	assert.ErrorIs(t, err, ErrNoBuffer)
}

func TestCapacity(t *testing.T) {
	q := New("cam", 1)
	_, _, err := q.RequestBuffer()
	require.NoError(t, err)
	_, _, err = q.RequestBuffer()
	assert.ErrorIs(t, err, ErrNoBuffer)
}

func TestCancelBuffer(t *testing.T) {
	q := New("cam", 1)
	buf, _, err := q.RequestBuffer()
	require.NoError(t, err)
	require.NoError(t, q.CancelBuffer(buf))
	assert.ErrorIs(t, q.CancelBuffer(buf), ErrBadState)

	again, _, err := q.RequestBuffer()
	require.NoError(t, err)
	assert.Equal(t, buf.ID(), again.ID())
}

func TestDoubleReleaseRejected(t *testing.T) {
	q := New("cam", 1)
	buf, _, _ := q.RequestBuffer()
	require.NoError(t, q.FlushBuffer(buf, nil, surface.FlushConfig{}))
	_, err := q.AcquireBuffer()
	require.NoError(t, err)

	require.NoError(t, q.ReleaseBuffer(buf, nil))
	assert.ErrorIs(t, q.ReleaseBuffer(buf, nil), ErrBadState)
	assert.ErrorIs(t, q.ReleaseBuffer(NewBuffer(1, 1), nil), ErrUnknown)
}

func TestAttachReleaseDetach(t *testing.T) {
	sink := New("enc", 0)
	buf := NewBuffer(64, 64)

	var released []uint64
	require.NoError(t, sink.RegisterReleaseListener(func(b surface.Buffer, f *fence.Fence) {
		defer f.Close()
		released = append(released, b.ID())
	}))

	require.NoError(t, sink.AttachAndFlushBuffer(buf, fence.None(), surface.FlushConfig{}))
	assert.ErrorIs(t, sink.AttachAndFlushBuffer(buf, fence.None(), surface.FlushConfig{}), ErrBadState)

	// Detach only succeeds after the consumer has released the buffer.
	assert.ErrorIs(t, sink.RequestAndDetachBuffer(buf, nil), ErrBadState)

	a, err := sink.AcquireBuffer()
	require.NoError(t, err)
	require.NoError(t, sink.ReleaseBuffer(a.Buffer, fence.None()))
	assert.Equal(t, []uint64{buf.ID()}, released)

	require.NoError(t, sink.RequestAndDetachBuffer(buf, nil))
	assert.Equal(t, 0, sink.Len())
	assert.ErrorIs(t, sink.RequestAndDetachBuffer(buf, nil), ErrUnknown)
}

func TestAttachedBuffersDoNotCountTowardCapacity(t *testing.T) {
	q := New("enc", 0)
	require.NoError(t, q.AttachAndFlushBuffer(NewBuffer(8, 8), nil, surface.FlushConfig{}))
	_, _, err := q.RequestBuffer()
	assert.ErrorIs(t, err, ErrNoBuffer)
}

func TestFaultInjection(t *testing.T) {
	q := New("enc", 0)
	q.FailNext(OpAttach, 1)

	buf := NewBuffer(8, 8)
	err := q.AttachAndFlushBuffer(buf, nil, surface.FlushConfig{})
	assert.ErrorIs(t, err, ErrInjected)
	assert.Contains(t, err.Error(), "attach")
	assert.Equal(t, 0, q.Len())

	assert.NoError(t, q.AttachAndFlushBuffer(buf, nil, surface.FlushConfig{}))
}

func TestMetadata(t *testing.T) {
	buf := NewBuffer(4, 4)
	_, err := buf.Metadata(4101)
	assert.ErrorIs(t, err, ErrNoMetadata)

	v := []byte{1, 2, 3}
	buf.SetMetadata(4101, v)
	v[0] = 9
	got, err := buf.Metadata(4101)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)

	buf.SetMetadata(4101, nil)
	_, err = buf.Metadata(4101)
	assert.Error(t, err)

	assert.Len(t, buf.Bytes(), 24)
	assert.NotEqual(t, buf.ID(), NewBuffer(4, 4).ID())
}
