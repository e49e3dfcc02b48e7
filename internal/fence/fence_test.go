package fence

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// Returns an unsignaled fence and a function that signals it.
func pipeFence(t *testing.T) (*Fence, func()) {
	t.Helper()
	var p [2]int
	require.NoError(t, unix.Pipe2(p[:], unix.O_CLOEXEC))
	var once sync.Once
	signal := func() {
		once.Do(func() { unix.Close(p[1]) })
	}
	t.Cleanup(signal)
	return New(p[0]), signal
}

func isOpen(fd int) bool {
	_, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	return err == nil
}

func TestNoneIsSignaled(t *testing.T) {
	f := None()
	assert.False(t, f.Valid())
	assert.NoError(t, f.Wait(time.Millisecond))
	assert.NoError(t, f.Close())
	assert.Equal(t, "fence(none)", f.String())

	assert.Equal(t, NoFD, New(-7).FD())

	var nilFence *Fence
	assert.Equal(t, NoFD, nilFence.Take())
	assert.NoError(t, nilFence.Close())
}

func TestWaitTimesOut(t *testing.T) {
	f, _ := pipeFence(t)
	defer f.Close()

	err := f.Wait(20 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.True(t, f.Valid())
}

func TestWaitSignaled(t *testing.T) {
	f, signal := pipeFence(t)
	defer f.Close()

	go func() {
		time.Sleep(10 * time.Millisecond)
		signal()
	}()
	assert.NoError(t, f.Wait(5*time.Second))
}

func TestSignalFromManyGoroutines(t *testing.T) {
	f, signal := pipeFence(t)
	defer f.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			signal()
		}()
	}
	wg.Wait()
	assert.NoError(t, f.Wait(time.Second))
}

func TestCloseIsIdempotent(t *testing.T) {
	f, _ := pipeFence(t)
	fd := f.FD()

	require.NoError(t, f.Close())
	assert.False(t, isOpen(fd))
	assert.False(t, f.Valid())
	assert.NoError(t, f.Close())
}

func TestTakeTransfersOwnership(t *testing.T) {
	f, _ := pipeFence(t)
	fd := f.Take()
	defer unix.Close(fd)

	require.NoError(t, f.Close())
	assert.True(t, isOpen(fd))
	assert.Equal(t, NoFD, f.Take())
}

func TestResolveClosesOnTimeout(t *testing.T) {
	f, _ := pipeFence(t)
	fd := f.FD()

	err := f.Resolve(10 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.False(t, isOpen(fd))
}

func TestDup(t *testing.T) {
	f, signal := pipeFence(t)
	defer f.Close()

	d, err := f.Dup()
	require.NoError(t, err)
	require.True(t, d.Valid())
	assert.NotEqual(t, f.FD(), d.FD())

	signal()
	assert.NoError(t, d.Resolve(time.Second))
	assert.True(t, isOpen(f.FD()))

	n, err := None().Dup()
	require.NoError(t, err)
	assert.False(t, n.Valid())
}
