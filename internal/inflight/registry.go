//////////////////////////////////////////////////////////////////////////////
//
// Copyright 2019 Lanikai Labs LLC. All rights reserved.
//
//////////////////////////////////////////////////////////////////////////////

// Package inflight tracks buffers on loan to a sink queue.
//
// A loan is opened just before a buffer is offered to the sink, committed once
// the sink accepts it and claimed when the sink hands it back. Its presence in
// the registry is the only authority for returning the buffer to its source,
// so each loan is claimed at most once. The registry lock is never held while
// calling out of the package.
package inflight

import (
	"sync"

	errors "golang.org/x/xerrors"

	"github.com/lanikai/surfacerelay/internal/fence"
	"github.com/lanikai/surfacerelay/internal/surface"
)

var (
	ErrDuplicate = errors.New("inflight: buffer already on loan")
	ErrNotFound  = errors.New("inflight: no loan for buffer")
	ErrClosed    = errors.New("inflight: registry closed")
)

// State of a loan.
type State int

const (
	// The attach call is in progress.
	Attaching State = iota

	// The sink owns the buffer.
	InFlight

	// The sink released the buffer before the attach call returned. The
	// release fence is parked on the loan until the attaching side completes
	// the return.
	PendingRelease
)

func (s State) String() string {
	switch s {
	case Attaching:
		return "attaching"
	case InFlight:
		return "in-flight"
	case PendingRelease:
		return "pending-release"
	}
	return "invalid"
}

type Loan struct {
	Buffer surface.Buffer
	State  State

	// Only set in PendingRelease.
	Fence *fence.Fence
}

// Outcome of a Claim.
type Claim int

const (
	// The loan was removed; the claimer now owns the buffer.
	Claimed Claim = iota

	// The loan is still attaching; the fence was parked on it.
	Deferred

	// No loan exists for the buffer.
	Unknown
)

type Registry struct {
	mu    sync.Mutex
	loans map[uint64]*Loan

	// Set by Clear. No loans are opened until Reopen.
	closed bool
}

func New() *Registry {
	return &Registry{loans: make(map[uint64]*Loan)}
}

// Open records a loan in the Attaching state.
func (r *Registry) Open(buf surface.Buffer) error {
	id := buf.ID()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.Errorf("open buffer %#x: %w", id, ErrClosed)
	}
	if l, ok := r.loans[id]; ok {
		return errors.Errorf("buffer %#x is %s: %w", id, l.State, ErrDuplicate)
	}
	r.loans[id] = &Loan{Buffer: buf, State: Attaching}
	return nil
}

// Abort drops a loan whose attach failed. Any parked fence is closed.
func (r *Registry) Abort(buf surface.Buffer) {
	r.mu.Lock()
	l, ok := r.loans[buf.ID()]
	if ok {
		delete(r.loans, buf.ID())
	}
	r.mu.Unlock()

	if ok {
		l.Fence.Close()
	}
}

// Commit marks an attached buffer as owned by the sink. If the sink already
// released it, the loan is removed and the parked fence is returned with
// released set; the caller must finish returning the buffer.
func (r *Registry) Commit(buf surface.Buffer) (f *fence.Fence, released bool, err error) {
	id := buf.ID()

	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.loans[id]
	if !ok {
		return nil, false, errors.Errorf("commit buffer %#x: %w", id, ErrNotFound)
	}
	if l.State == PendingRelease {
		delete(r.loans, id)
		return l.Fence, true, nil
	}
	l.State = InFlight
	return nil, false, nil
}

// Claim takes a released buffer back from the sink.
func (r *Registry) Claim(buf surface.Buffer, f *fence.Fence) (Claim, *Loan) {
	id := buf.ID()

	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.loans[id]
	if !ok || l.State == PendingRelease {
		return Unknown, nil
	}
	if l.State == Attaching {
		l.State = PendingRelease
		l.Fence = fence.New(f.Take())
		return Deferred, l
	}
	delete(r.loans, id)
	return Claimed, l
}

func (r *Registry) lookup(id uint64) (surface.Buffer, State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.loans[id]
	if !ok {
		return nil, 0, false
	}
	return l.Buffer, l.State, true
}

// Len returns the number of open loans.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.loans)
}

// Clear forgets every loan, closes the registry to new loans and returns how
// many loans there were. Buffers still held by the sink are not recovered.
func (r *Registry) Clear() int {
	r.mu.Lock()
	loans := r.loans
	r.loans = make(map[uint64]*Loan)
	r.closed = true
	r.mu.Unlock()

	for _, l := range loans {
		l.Fence.Close()
	}
	return len(loans)
}

// Reopen accepts new loans after Clear.
func (r *Registry) Reopen() {
	r.mu.Lock()
	r.closed = false
	r.mu.Unlock()
}
