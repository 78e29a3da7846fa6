// Package acktracker implements the ack tracker (C6), the one object
// in the session outside the single-threaded state machine that is
// genuinely shared: the dispatcher's fan-out runs on the receive task
// while local_ack runs on application tasks (spec.md §5). It decides
// when an incoming PUBLISH may be acknowledged on the wire, keeping
// PUBACK/PUBREC emission in receive order even though the N
// application receivers for a given message complete in any order.
package acktracker

import (
	"context"
	"errors"
	"sync"
)

// ErrAlreadyRegistered is returned by RegisterPending for a pkid that
// already has a pending entry.
var ErrAlreadyRegistered = errors.New("acktracker: pkid already registered")

// ErrAckOverflow is returned when LocalAck is called more times than
// the registered requirement for a pkid.
var ErrAckOverflow = errors.New("acktracker: local ack overflow")

type entry struct {
	remaining int
	ready     chan struct{}
	closed    bool
}

// Tracker is safe for concurrent use. Its critical sections are O(1)
// (spec.md §5).
type Tracker struct {
	mu      sync.Mutex
	order   []uint16
	entries map[uint16]*entry
	// early holds local_ack counts that arrived before the matching
	// register_pending, so local_ack never blocks its caller even when
	// registration is still in flight (spec.md §4.4 invariant).
	early map[uint16]int
}

// New creates an empty ack tracker.
func New() *Tracker {
	return &Tracker{
		entries: make(map[uint16]*entry),
		early:   make(map[uint16]int),
	}
}

// RegisterPending registers pkid as needing localAcksRequired local
// acknowledgements before it is eligible for a wire ack. pkid 0 (QoS0)
// is a permanent no-op short-circuit. Duplicate registration for a
// still-pending pkid returns ErrAlreadyRegistered without altering
// state.
func (t *Tracker) RegisterPending(pkid uint16, localAcksRequired int) error {
	if pkid == 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[pkid]; exists {
		return ErrAlreadyRegistered
	}
	e := &entry{remaining: localAcksRequired, ready: make(chan struct{})}
	if n, ok := t.early[pkid]; ok {
		e.remaining -= n
		delete(t.early, pkid)
	}
	t.entries[pkid] = e
	t.order = append(t.order, pkid)
	if e.remaining < 0 {
		return ErrAckOverflow
	}
	t.recomputeHead()
	return nil
}

// LocalAck records one completed local acknowledgement for pkid. It
// never blocks: if pkid hasn't been registered yet, the ack is
// recorded and applied retroactively by RegisterPending. pkid 0 is a
// no-op.
func (t *Tracker) LocalAck(pkid uint16) error {
	if pkid == 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[pkid]
	if !ok {
		t.early[pkid]++
		return nil
	}
	e.remaining--
	if e.remaining < 0 {
		return ErrAckOverflow
	}
	t.recomputeHead()
	return nil
}

// recomputeHead signals the head entry's ready channel once its local
// acks are all in. Must be called with mu held.
func (t *Tracker) recomputeHead() {
	if len(t.order) == 0 {
		return
	}
	head := t.entries[t.order[0]]
	if head != nil && head.remaining == 0 && !head.closed {
		head.closed = true
		close(head.ready)
	}
}

// WaitRemoteAckReady blocks until pkid has received all its required
// local acks and is at the head of the insertion-ordered queue, then
// removes it. pkid 0 returns immediately. Returns ctx.Err() if ctx is
// cancelled first, leaving the entry in place.
func (t *Tracker) WaitRemoteAckReady(ctx context.Context, pkid uint16) error {
	if pkid == 0 {
		return nil
	}
	t.mu.Lock()
	e, ok := t.entries[pkid]
	if !ok {
		t.mu.Unlock()
		return errNotRegistered(pkid)
	}
	ch := e.ready
	t.mu.Unlock()

	select {
	case <-ch:
	case <-ctx.Done():
		return ctx.Err()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, pkid)
	if len(t.order) > 0 && t.order[0] == pkid {
		t.order = t.order[1:]
	}
	t.recomputeHead()
	return nil
}

// Pending reports how many pkids are currently registered and not yet
// acknowledged.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.order)
}

type notRegisteredError uint16

func errNotRegistered(pkid uint16) error { return notRegisteredError(pkid) }

func (e notRegisteredError) Error() string {
	return "acktracker: wait on unregistered pkid"
}
