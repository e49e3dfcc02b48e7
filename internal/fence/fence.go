// Package fence wraps sync-file descriptors that accompany buffer handoffs.
//
// A Fence must be disposed of exactly once: waited on and closed, forwarded
// to another owner with Take, or closed outright. Close is idempotent and a
// no-op after Take, so holders can defer it on every path.
package fence

import (
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
	errors "golang.org/x/xerrors"
)

// NoFD is the descriptor value of "no fence": the buffer is ready to use.
const NoFD = -1

var (
	ErrTimeout = errors.New("fence: wait timed out")
	ErrClosed  = errors.New("fence: already closed or taken")
)

type Fence struct {
	fd int32
}

// New takes ownership of fd. A negative fd yields a no-op fence.
func New(fd int) *Fence {
	if fd < 0 {
		fd = NoFD
	}
	return &Fence{fd: int32(fd)}
}

// None returns a fence that is already signaled.
func None() *Fence {
	return &Fence{fd: NoFD}
}

// FD returns the underlying descriptor without transferring ownership.
func (f *Fence) FD() int {
	if f == nil {
		return NoFD
	}
	return int(atomic.LoadInt32(&f.fd))
}

// Valid reports whether the fence still holds a descriptor.
func (f *Fence) Valid() bool {
	return f.FD() >= 0
}

// Take transfers ownership of the descriptor to the caller. The fence is
// left empty.
func (f *Fence) Take() int {
	if f == nil {
		return NoFD
	}
	return int(atomic.SwapInt32(&f.fd, NoFD))
}

// Close releases the descriptor if the fence still owns one.
func (f *Fence) Close() error {
	fd := f.Take()
	if fd < 0 {
		return nil
	}
	if err := unix.Close(fd); err != nil {
		return errors.Errorf("fence: close fd %d: %w", fd, err)
	}
	return nil
}

// Dup returns an independent fence referring to the same sync point. A fence
// without a descriptor duplicates to None.
func (f *Fence) Dup() (*Fence, error) {
	fd := f.FD()
	if fd < 0 {
		return None(), nil
	}
	nfd, err := unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Errorf("fence: dup fd %d: %w", fd, err)
	}
	return New(nfd), nil
}

// Wait blocks until the fence signals or the timeout expires. A timeout of
// zero or less waits indefinitely. Waiting on an empty fence returns
// immediately.
func (f *Fence) Wait(timeout time.Duration) error {
	fd := f.FD()
	if fd < 0 {
		return nil
	}

	ms := -1
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		if timeout > 0 {
			ms = int(time.Until(deadline) / time.Millisecond)
			if ms < 0 {
				ms = 0
			}
		}
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return errors.Errorf("fence: poll fd %d: %w", fd, err)
		}
		if n == 0 {
			return ErrTimeout
		}
		if fds[0].Revents&unix.POLLNVAL != 0 {
			return errors.Errorf("fence: fd %d: %w", fd, ErrClosed)
		}
		return nil
	}
}

// Resolve waits for the fence and then closes it, whatever the outcome of
// the wait. The wait error, if any, takes precedence.
func (f *Fence) Resolve(timeout time.Duration) error {
	werr := f.Wait(timeout)
	cerr := f.Close()
	if werr != nil {
		return werr
	}
	return cerr
}

func (f *Fence) String() string {
	fd := f.FD()
	if fd < 0 {
		return "fence(none)"
	}
	return "fence(" + strconv.Itoa(fd) + ")"
}
