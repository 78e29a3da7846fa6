// Package dispatch implements the incoming-publish dispatcher (C8):
// fan-out of received PUBLISHes to filtered and unfiltered application
// receivers, integrated with the ack tracker (package acktracker) so
// that a publish cloned to N receivers is only acknowledged once all N
// have processed it.
package dispatch

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/Azure/iot-operations-sdk-go/internal/acktracker"
	"github.com/Azure/iot-operations-sdk-go/internal/wire"
)

// AckHandle is the local-ack token bound to one receiver's copy of an
// incoming publish. Ack must be called once processing finishes; if
// the handle is instead garbage collected without being acked, a
// finalizer acks it on the caller's behalf — the Go analogue of
// "the ack-token auto-acks on drop" (spec.md §4.3, §4.6).
type AckHandle struct {
	pkid  uint16
	tr    *acktracker.Tracker
	acked int32
}

func newAckHandle(tr *acktracker.Tracker, pkid uint16) *AckHandle {
	h := &AckHandle{pkid: pkid, tr: tr}
	runtime.SetFinalizer(h, (*AckHandle).finalize)
	return h
}

// Ack records this receiver's local acknowledgement. Safe to call more
// than once; only the first call counts.
func (h *AckHandle) Ack() {
	runtime.SetFinalizer(h, nil)
	h.ack()
}

func (h *AckHandle) finalize() { h.ack() }

func (h *AckHandle) ack() {
	if atomic.CompareAndSwapInt32(&h.acked, 0, 1) {
		h.tr.LocalAck(h.pkid)
	}
}

// Received is a publish delivered to exactly one application receiver,
// paired with that receiver's ack handle.
type Received struct {
	Publish *wire.Publish
	Ack     *AckHandle
}

type filteredReceiver struct {
	filter *wire.Filter
	raw    string
	ch     chan *Received
}

// Dispatcher holds the set of filtered receivers and at most one
// unfiltered receiver, and fans out incoming PUBLISHes across them.
// Not safe for concurrent registration and dispatch from multiple
// goroutines beyond what its internal mutex serializes; spec.md §4.5
// runs it exclusively from the supervisor's receive loop, with
// registration calls arriving from application goroutines.
type Dispatcher struct {
	mu         sync.Mutex
	filtered   map[string]*filteredReceiver
	unfiltered *filteredReceiver
	acks       *acktracker.Tracker
}

// New creates a dispatcher backed by the given ack tracker.
func New(acks *acktracker.Tracker) *Dispatcher {
	return &Dispatcher{
		filtered: make(map[string]*filteredReceiver),
		acks:     acks,
	}
}

// Subscribe registers a filtered receiver and returns its channel plus
// an unregister function. bufSize bounds the per-receiver channel
// (spec.md §5 "back-pressure is effected by bounded channels").
func (d *Dispatcher) Subscribe(filterStr string, bufSize int) (<-chan *Received, func(), error) {
	f, err := wire.ParseFilter(filterStr)
	if err != nil {
		return nil, nil, err
	}
	r := &filteredReceiver{filter: &f, raw: filterStr, ch: make(chan *Received, bufSize)}

	d.mu.Lock()
	d.filtered[filterStr] = r
	d.mu.Unlock()

	unregister := func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.filtered[filterStr] == r {
			delete(d.filtered, filterStr)
			close(r.ch)
		}
	}
	return r.ch, unregister, nil
}

// SetUnfiltered installs the single catch-all receiver, replacing any
// previous one.
func (d *Dispatcher) SetUnfiltered(bufSize int) <-chan *Received {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.unfiltered != nil {
		close(d.unfiltered.ch)
	}
	r := &filteredReceiver{ch: make(chan *Received, bufSize)}
	d.unfiltered = r
	return r.ch
}

// ClearUnfiltered removes the catch-all receiver, if any.
func (d *Dispatcher) ClearUnfiltered() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.unfiltered != nil {
		close(d.unfiltered.ch)
		d.unfiltered = nil
	}
}

// Dispatch fans pub out to every matching receiver (spec.md §4.6). It
// registers pub's pkid with the ack tracker for however many receivers
// actually matched — 0 if none, which the ack tracker resolves as
// ready as soon as the pkid reaches the head of the receive order,
// giving the "drop auto-acks" behavior without
// needing a live AckHandle at all. Returns the number of receivers the
// publish was delivered to.
func (d *Dispatcher) Dispatch(pub *wire.Publish) int {
	d.mu.Lock()
	var matched []*filteredReceiver
	for _, r := range d.filtered {
		if wire.MatchTopic(r.filter.Filter, pub.Topic) {
			matched = append(matched, r)
		}
	}
	unfiltered := d.unfiltered
	d.mu.Unlock()

	if len(matched) == 0 && unfiltered != nil {
		matched = append(matched, unfiltered)
	}

	n := len(matched)
	if err := d.acks.RegisterPending(pub.PacketID, n); err != nil {
		// AlreadyRegistered: a redelivered duplicate while the original
		// is still in flight. spec.md §4.4: discard the duplicate.
		return 0
	}
	for _, r := range matched {
		h := newAckHandle(d.acks, pub.PacketID)
		select {
		case r.ch <- &Received{Publish: pub, Ack: h}:
		default:
			// receiver channel full: drop this copy, still ack it so the
			// others in the fan-out aren't stuck behind it.
			h.Ack()
		}
	}
	return n
}
