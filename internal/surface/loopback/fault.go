package loopback

import errors "golang.org/x/xerrors"

// Op names a queue operation for fault injection.
type Op int

const (
	OpAcquire Op = iota
	OpRelease
	OpAttach
	OpDetach
	OpRegister
	OpRequest
	OpFlush
)

var opNames = [...]string{"acquire", "release", "attach", "detach", "register", "request", "flush"}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return "op?"
}

// FailNext makes the next n calls of op fail with ErrInjected.
func (q *Queue) FailNext(op Op, n int) {
	q.mu.Lock()
	q.faults[op] += n
	q.mu.Unlock()
}

// Called with q.mu held.
func (q *Queue) fault(op Op) error {
	if q.faults[op] == 0 {
		return nil
	}
	q.faults[op]--
	return errors.Errorf("%s: %s: %w", q, op, ErrInjected)
}
