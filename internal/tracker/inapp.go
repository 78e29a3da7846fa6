package tracker

import "github.com/Azure/iot-operations-sdk-go/internal/wire"

// PendingAck is one entry in the in-application tracker: an incoming
// QoS1/2 PUBLISH that has been dispatched to the application and is
// waiting for its acknowledgement to become eligible for emission
// (spec.md §3, §4.3 "Acknowledgement ordering"). The ack itself (the
// PUBACK or PUBREC to write to the wire) is attached once the
// application's local handlers finish, but it can only be dequeued
// once every older entry has already gone.
type PendingAck struct {
	PacketID uint16
	Ready    bool
	Ack      wire.Packet // set when Ready; nil otherwise
}

// InApplication is the ordered pkid -> PendingAck map described in
// spec.md §3. Entries are inserted in receive order and can only be
// dequeued from the head, and only once the head is Ready: this is
// what keeps PUBACK/PUBREC emission in the same order the matching
// PUBLISH packets arrived, even when application handlers for
// different messages finish out of order.
type InApplication struct {
	order []uint16
	byID  map[uint16]*PendingAck
}

// NewInApplication creates an empty tracker.
func NewInApplication() *InApplication {
	return &InApplication{byID: make(map[uint16]*PendingAck)}
}

// Insert registers an incoming PUBLISH as NotReady, at the tail.
func (t *InApplication) Insert(pkid uint16) {
	if _, exists := t.byID[pkid]; exists {
		return
	}
	t.order = append(t.order, pkid)
	t.byID[pkid] = &PendingAck{PacketID: pkid}
}

// MarkReady attaches the ack packet to send for pkid and flips it
// Ready. Returns false if pkid isn't tracked.
func (t *InApplication) MarkReady(pkid uint16, ack wire.Packet) bool {
	e, ok := t.byID[pkid]
	if !ok {
		return false
	}
	e.Ready = true
	e.Ack = ack
	return true
}

// Peek reports whether the head entry exists and is Ready, without
// removing it.
func (t *InApplication) Peek() (*PendingAck, bool) {
	if len(t.order) == 0 {
		return nil, false
	}
	e := t.byID[t.order[0]]
	return e, e != nil && e.Ready
}

// DequeueReady removes and returns the head entry if it is Ready. If
// the head is NotReady (or the tracker is empty) it returns false and
// leaves the tracker untouched: a later entry becoming Ready never
// lets it jump the queue.
func (t *InApplication) DequeueReady() (*PendingAck, bool) {
	e, ready := t.Peek()
	if !ready {
		return nil, false
	}
	t.order = t.order[1:]
	delete(t.byID, e.PacketID)
	return e, true
}

// Contains reports whether pkid is currently tracked.
func (t *InApplication) Contains(pkid uint16) bool {
	_, ok := t.byID[pkid]
	return ok
}

// Len returns the number of tracked entries.
func (t *InApplication) Len() int { return len(t.order) }

// Clear drops every entry, used on session-expired processing
// (spec.md §4.3): a fresh session has nothing left to acknowledge.
func (t *InApplication) Clear() {
	t.order = nil
	t.byID = make(map[uint16]*PendingAck)
}
