// Package tracker implements the inflight (C4, outgoing) and
// in-application (C4, incoming) trackers described in spec.md §3-§4.3.
// Both are owned exclusively by the session task; nothing here takes a
// lock, matching spec.md §5 ("all mutation ... is serialized through
// [the session task]").
package tracker

import (
	"github.com/Azure/iot-operations-sdk-go/internal/notify"
	"github.com/Azure/iot-operations-sdk-go/internal/wire"
)

// OutgoingKind tags the variant of an inflight outgoing operation,
// spec.md §3 "Outgoing operation".
type OutgoingKind int

const (
	KindSubscribe OutgoingKind = iota
	KindUnsubscribe
	KindPublishQoS1
	KindPublishQoS2
	KindPubrel
	KindAuth
)

// Entry pairs an outgoing packet with the notifier the application is
// waiting on. Packet is re-encoded with DUP=true on replay for
// PUBLISH variants; PUBREL is replayed unchanged.
type Entry struct {
	Kind     OutgoingKind
	PacketID uint16
	Packet   wire.Packet
	Notifier *notify.Notifier
}

// orderedSet preserves insertion order for entries whose relative
// emission order is a protocol requirement (spec.md §4.3, §9: PUBREL
// before any QoS1 PUBLISH in the replay queue).
type orderedSet struct {
	order []uint16
	byID  map[uint16]*Entry
}

func newOrderedSet() *orderedSet {
	return &orderedSet{byID: make(map[uint16]*Entry)}
}

func (s *orderedSet) insert(e *Entry) {
	if _, exists := s.byID[e.PacketID]; !exists {
		s.order = append(s.order, e.PacketID)
	}
	s.byID[e.PacketID] = e
}

func (s *orderedSet) get(id uint16) (*Entry, bool) {
	e, ok := s.byID[id]
	return e, ok
}

func (s *orderedSet) remove(id uint16) {
	if _, ok := s.byID[id]; !ok {
		return
	}
	delete(s.byID, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// inOrder returns entries in insertion order.
func (s *orderedSet) inOrder() []*Entry {
	out := make([]*Entry, 0, len(s.order))
	for _, id := range s.order {
		if e, ok := s.byID[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

func (s *orderedSet) clear() {
	s.order = nil
	s.byID = make(map[uint16]*Entry)
}

func (s *orderedSet) len() int { return len(s.byID) }

// Inflight tracks every outgoing operation awaiting a response.
// SUBSCRIBE/UNSUBSCRIBE use an unordered map (spec.md §3: no replay,
// so order doesn't matter); QoS1/2 PUBLISH and PUBREL use ordered sets
// because disconnect-time replay must preserve insertion order.
type Inflight struct {
	subUnsub    map[uint16]*Entry
	publishQoS1 *orderedSet
	publishQoS2 *orderedSet // awaiting PUBREC
	pubrelOut   *orderedSet // PUBREC accepted, awaiting PUBCOMP
}

// NewInflight creates an empty tracker.
func NewInflight() *Inflight {
	return &Inflight{
		subUnsub:    make(map[uint16]*Entry),
		publishQoS1: newOrderedSet(),
		publishQoS2: newOrderedSet(),
		pubrelOut:   newOrderedSet(),
	}
}

// InsertSubUnsub registers a SUBSCRIBE or UNSUBSCRIBE awaiting its ack.
func (t *Inflight) InsertSubUnsub(e *Entry) { t.subUnsub[e.PacketID] = e }

// TakeSubUnsub removes and returns a SUBSCRIBE/UNSUBSCRIBE entry.
func (t *Inflight) TakeSubUnsub(pkid uint16) (*Entry, bool) {
	e, ok := t.subUnsub[pkid]
	if ok {
		delete(t.subUnsub, pkid)
	}
	return e, ok
}

// InsertPublishQoS1 registers an outgoing QoS1 PUBLISH.
func (t *Inflight) InsertPublishQoS1(e *Entry) { t.publishQoS1.insert(e) }

// TakePublishQoS1 removes and returns a QoS1 PUBLISH entry on PUBACK.
func (t *Inflight) TakePublishQoS1(pkid uint16) (*Entry, bool) {
	e, ok := t.publishQoS1.get(pkid)
	if ok {
		t.publishQoS1.remove(pkid)
	}
	return e, ok
}

// InsertPublishQoS2 registers an outgoing QoS2 PUBLISH awaiting PUBREC.
func (t *Inflight) InsertPublishQoS2(e *Entry) { t.publishQoS2.insert(e) }

// PromoteToPubrel moves a QoS2 entry from "awaiting PUBREC" to
// "awaiting PUBCOMP" on a successful PUBREC, installing a fresh PUBREL
// entry and notifier for the next leg (spec.md §4.3).
func (t *Inflight) PromoteToPubrel(pkid uint16, pubrel *Entry) (*Entry, bool) {
	old, ok := t.publishQoS2.get(pkid)
	if !ok {
		return nil, false
	}
	t.publishQoS2.remove(pkid)
	t.pubrelOut.insert(pubrel)
	return old, true
}

// FailPublishQoS2 removes a QoS2 entry whose PUBREC reported failure,
// returning it so the caller can complete its notifier.
func (t *Inflight) FailPublishQoS2(pkid uint16) (*Entry, bool) {
	e, ok := t.publishQoS2.get(pkid)
	if ok {
		t.publishQoS2.remove(pkid)
	}
	return e, ok
}

// TakePubrel removes and returns a PUBREL entry on PUBCOMP.
func (t *Inflight) TakePubrel(pkid uint16) (*Entry, bool) {
	e, ok := t.pubrelOut.get(pkid)
	if ok {
		t.pubrelOut.remove(pkid)
	}
	return e, ok
}

// ReplayPackets builds packets_to_replay (spec.md §4.3, §9): PUBREL
// entries first (in insertion order, unmodified), then QoS1 PUBLISH,
// then QoS2 PUBLISH (each in insertion order). The caller is
// responsible for forcing DUP on the returned PUBLISH packets; this
// only orders the entries.
func (t *Inflight) ReplayPackets() []*Entry {
	out := make([]*Entry, 0, t.pubrelOut.len()+t.publishQoS1.len()+t.publishQoS2.len())
	out = append(out, t.pubrelOut.inOrder()...)
	out = append(out, t.publishQoS1.inOrder()...)
	out = append(out, t.publishQoS2.inOrder()...)
	return out
}

// CancelConnectionScoped cancels SUBSCRIBE/UNSUBSCRIBE notifiers on
// any disconnect (spec.md §4.3): these never survive reconnect.
// Returns the freed pkids.
func (t *Inflight) CancelConnectionScoped(err error) []uint16 {
	freed := make([]uint16, 0, len(t.subUnsub))
	for pkid, e := range t.subUnsub {
		e.Notifier.Cancel(err)
		freed = append(freed, pkid)
	}
	t.subUnsub = make(map[uint16]*Entry)
	return freed
}

// CancelSessionScoped cancels every QoS1/2 PUBLISH and PUBREL notifier
// and clears the replay queue (spec.md §4.3 "Session-expired
// processing"). Returns the freed pkids.
func (t *Inflight) CancelSessionScoped(err error) []uint16 {
	var freed []uint16
	for _, e := range t.publishQoS1.inOrder() {
		e.Notifier.Cancel(err)
		freed = append(freed, e.PacketID)
	}
	for _, e := range t.publishQoS2.inOrder() {
		e.Notifier.Cancel(err)
		freed = append(freed, e.PacketID)
	}
	for _, e := range t.pubrelOut.inOrder() {
		e.Notifier.Cancel(err)
		freed = append(freed, e.PacketID)
	}
	t.publishQoS1.clear()
	t.publishQoS2.clear()
	t.pubrelOut.clear()
	return freed
}

// InflightCount returns the number of unacked outbound QoS1/2
// PUBLISHes, bounded against the server's receive-maximum (spec.md
// §5).
func (t *Inflight) InflightCount() int {
	return t.publishQoS1.len() + t.publishQoS2.len() + t.pubrelOut.len()
}
