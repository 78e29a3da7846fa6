package session

import (
	"context"
	"time"

	"github.com/Azure/iot-operations-sdk-go/internal/tracker"
	"github.com/Azure/iot-operations-sdk-go/internal/wire"
)

// replayQueue is populated once on a session-present reconnect (see
// BeginReplay) and drained one entry per NextOutgoingPacket call
// before any new request is considered (spec.md §4.3 step 1).
type replayQueue struct {
	entries []*tracker.Entry
}

func (q *replayQueue) empty() bool { return q == nil || len(q.entries) == 0 }

func (q *replayQueue) pop() *tracker.Entry {
	e := q.entries[0]
	q.entries = q.entries[1:]
	return e
}

// BeginReplay builds packets_to_replay from the inflight tracker
// (spec.md §4.3, §9): PUBREL first, then QoS1 PUBLISH, then QoS2
// PUBLISH, each in original insertion order. Called once per
// session-present reconnect.
func (s *Session) BeginReplay() {
	s.replay = &replayQueue{entries: s.inflt.ReplayPackets()}
}

// NextOutgoingPacket implements the scheduling contract of spec.md
// §4.3: replay first, then request channels in strict priority,
// cooperative and non-blocking at each priority level. Blocks only
// when nothing at all is ready.
func (s *Session) NextOutgoingPacket(ctx context.Context) (wire.Packet, error) {
	for {
		if pkt, ok := s.tryNonBlocking(); ok {
			s.resetKeepAlive()
			return pkt, nil
		}
		if err := s.waitForWork(ctx); err != nil {
			return nil, err
		}
	}
}

// tryNonBlocking attempts every priority level without blocking,
// returning the first packet found.
func (s *Session) tryNonBlocking() (wire.Packet, bool) {
	if !s.replay.empty() {
		return s.replayOne(), true
	}

	s.drainAckReady()

	// (a) outstanding incoming-publish acks, in receive order.
	if pa, ok := s.inApp.DequeueReady(); ok {
		return pa.Ack, true
	}

	// (b) client-initiated disconnect.
	select {
	case req := <-s.disconnect:
		return s.buildDisconnect(req), true
	default:
	}

	// (d) AUTH: a newly submitted reauth request.
	select {
	case item := <-s.reauth:
		return s.buildReauth(item), true
	default:
	}

	// (e) SUBSCRIBE/UNSUBSCRIBE, requires a free pkid.
	select {
	case req := <-s.subUnsub:
		if id, ok := s.pkids.Lease(); ok {
			return s.buildSubUnsub(req, id), true
		}
		s.requeueSubUnsub(req)
	default:
	}

	// (f) PUBLISH QoS0, no pkid required.
	select {
	case req := <-s.publishQoS0:
		return s.buildPublishQoS0(req), true
	default:
	}

	// (g) PUBLISH QoS1/2, requires a free pkid and receive-maximum budget.
	select {
	case item := <-s.publishQoS12:
		if s.inflt.InflightCount() < int(s.effectiveReceiveMaximum()) {
			if id, ok := s.pkids.Lease(); ok {
				return s.buildPublishQoS12(item, id), true
			}
		}
		s.requeuePublishQoS12(item)
	default:
	}

	// (h) PINGREQ, only when nothing else was due for keep-alive.
	if s.keepAliveTimer != nil {
		select {
		case <-s.keepAliveTimer.C:
			return &wire.PingReq{}, true
		default:
		}
	}

	return nil, false
}

func (s *Session) effectiveReceiveMaximum() uint16 {
	if s.caps.ReceiveMaximum == 0 {
		return wire.DefaultReceiveMaximum
	}
	return s.caps.ReceiveMaximum
}

// waitForWork blocks until at least one source might have work, or
// ctx is cancelled. It does not itself pick a priority: the caller
// re-runs tryNonBlocking on wake, which is what actually enforces
// priority ordering; this only avoids busy-polling. A request that
// tryNonBlocking had to requeue (no free pkid, or no receive-maximum
// budget) is still on its channel, so while one is waiting this
// returns at once and the caller's loop polls until the request can
// be served or ctx is cancelled.
func (s *Session) waitForWork(ctx context.Context) error {
	var timerC <-chan time.Time
	if s.keepAliveTimer != nil {
		timerC = s.keepAliveTimer.C
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case req := <-s.disconnect:
		s.requeueDisconnect(req)
		return nil
	case item := <-s.reauth:
		s.requeueReauth(item)
		return nil
	case req := <-s.subUnsub:
		s.requeueSubUnsub(req)
		return nil
	case req := <-s.publishQoS0:
		s.requeuePublishQoS0(req)
		return nil
	case item := <-s.publishQoS12:
		s.requeuePublishQoS12(item)
		return nil
	case ev := <-s.ackReady:
		s.requeueAckReady(ev)
		return nil
	case t := <-timerC:
		s.requeueTimer(t)
		return nil
	}
}

// The requeue* helpers push a value that was consumed only to detect
// readiness back onto its channel so the next tryNonBlocking pass
// picks it up in priority order. Channels don't support unshift, so
// these re-send onto a buffered channel; callers size queues generously
// enough that this never blocks in practice.
func (s *Session) requeueDisconnect(req *DisconnectRequest)   { s.disconnect <- req }
func (s *Session) requeueReauth(item *reauthItem)             { s.reauth <- item }
func (s *Session) requeueSubUnsub(req *subUnsubRequest)       { s.subUnsub <- req }
func (s *Session) requeuePublishQoS0(req *PublishQoS0Request) { s.publishQoS0 <- req }
func (s *Session) requeuePublishQoS12(item *pubQoS12Item)     { s.publishQoS12 <- item }
func (s *Session) requeueAckReady(ev ackReadyEvent)           { s.ackReady <- ev }

// requeueTimer restores a fired keep-alive timer's pending state so
// tryNonBlocking's own (non-consuming outside this path) check sees it.
func (s *Session) requeueTimer(t time.Time) {
	s.keepAliveTimer.Reset(0) // fire again immediately; tryNonBlocking will drain it
}

func (s *Session) drainAckReady() {
	for {
		select {
		case ev := <-s.ackReady:
			s.inApp.MarkReady(ev.pkid, ev.ack)
		default:
			return
		}
	}
}

func (s *Session) resetKeepAlive() {
	if s.keepAliveTimer != nil && s.keepAlive > 0 {
		s.keepAliveTimer.Reset(s.keepAlive)
	}
}

// replayOne pops the front of the replay queue, rewriting DUP=true on
// PUBLISH variants; PUBREL is emitted unchanged (spec.md §4.3 step 1).
func (s *Session) replayOne() wire.Packet {
	e := s.replay.pop()
	if pub, ok := e.Packet.(*wire.Publish); ok {
		dup := *pub
		dup.Dup = true
		return &dup
	}
	return e.Packet
}

func (s *Session) buildDisconnect(req *DisconnectRequest) wire.Packet {
	props := &wire.Properties{SessionExpiryInterval: req.SessionExpiryInterval}
	props.SetPresent(wire.PropSessionExpiryInterval)
	return &wire.Disconnect{ReasonCode: req.ReasonCode, Properties: props}
}

func (s *Session) buildReauth(item *reauthItem) wire.Packet {
	s.pendingAuth = &tracker.Entry{Kind: tracker.KindAuth, Notifier: item.Notifier}
	reason := wire.AuthReasonReAuthenticate
	if item.Req.Continue {
		reason = wire.AuthReasonContinueAuthentication
	}
	return &wire.Auth{ReasonCode: reason, Properties: item.Req.Properties}
}

func (s *Session) buildSubUnsub(req *subUnsubRequest, id uint16) wire.Packet {
	entry := &tracker.Entry{PacketID: id, Notifier: req.Notifier}
	if req.Subscribe != nil {
		entry.Kind = tracker.KindSubscribe
		pkt := &wire.Subscribe{PacketID: id, Topics: req.Subscribe.Topics, Properties: req.Subscribe.Properties}
		entry.Packet = pkt
		s.inflt.InsertSubUnsub(entry)
		return pkt
	}
	entry.Kind = tracker.KindUnsubscribe
	pkt := &wire.Unsubscribe{PacketID: id, Filters: req.Unsubscribe.Filters, Properties: req.Unsubscribe.Properties}
	entry.Packet = pkt
	s.inflt.InsertSubUnsub(entry)
	return pkt
}

func (s *Session) buildPublishQoS0(req *PublishQoS0Request) wire.Packet {
	return &wire.Publish{
		QoS:        wire.QoS0,
		Topic:      req.Topic,
		Payload:    req.Payload,
		Retain:     req.Retain,
		Properties: req.Properties,
	}
}

func (s *Session) buildPublishQoS12(item *pubQoS12Item, id uint16) wire.Packet {
	pkt := &wire.Publish{
		QoS:        item.Req.QoS,
		Topic:      item.Req.Topic,
		Payload:    item.Req.Payload,
		Retain:     item.Req.Retain,
		Properties: item.Req.Properties,
		PacketID:   id,
	}
	entry := &tracker.Entry{PacketID: id, Packet: pkt, Notifier: item.Notifier}
	if item.Req.QoS == wire.QoS1 {
		entry.Kind = tracker.KindPublishQoS1
		s.inflt.InsertPublishQoS1(entry)
	} else {
		entry.Kind = tracker.KindPublishQoS2
		s.inflt.InsertPublishQoS2(entry)
	}
	return pkt
}
