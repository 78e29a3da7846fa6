package session

import (
	"context"

	"github.com/Azure/iot-operations-sdk-go/internal/notify"
	"github.com/Azure/iot-operations-sdk-go/internal/tracker"
	"github.com/Azure/iot-operations-sdk-go/internal/wire"
)

// ApplyConnack processes an inbound CONNACK (spec.md §4.3 "Inbound
// handling"). requestedSessionExpiry is what the CONNECT asked for, so
// EffectiveSessionExpiryInterval can fall back to it when the server
// doesn't echo an override.
func (s *Session) ApplyConnack(ack *wire.Connack, requestedSessionExpiry uint32) error {
	if !ack.SessionPresent && s.hadPrior {
		s.sessionExpired()
		if !s.transient {
			return errSessionExpired
		}
	}

	s.epoch.Add(1)
	s.hadPrior = true
	s.state = connState{connected: true, connack: ack}
	s.caps = capabilitiesFromConnack(ack, requestedSessionExpiry)
	s.transient = s.caps.SessionExpiryInterval == 0

	if ack.SessionPresent {
		s.BeginReplay()
	} else {
		s.replay = nil
	}
	return nil
}

// IncomingPublish handles an inbound PUBLISH (spec.md §4.3). For
// QoS1/2 it admits an in-application tracker entry and dispatches a
// Received wrapper to the application; the wrapper's AckHandle drives
// local_ack, and a background watcher forwards the eventual
// wait_remote_ack_ready completion back into the scheduling loop as an
// ackReadyEvent (priority (c)).
func (s *Session) IncomingPublish(ctx context.Context, pub *wire.Publish) {
	if pub.QoS == wire.QoS0 {
		s.dispatc.Dispatch(pub)
		return
	}

	s.inApp.Insert(pub.PacketID)
	epoch := s.Epoch()
	s.dispatc.Dispatch(pub)

	go func() {
		if err := s.acks.WaitRemoteAckReady(ctx, pub.PacketID); err != nil {
			return
		}
		if s.Epoch() != epoch {
			// the session moved on; the server has already forgotten this
			// exchange (spec.md §9 "ack-token drop semantics").
			return
		}
		ack := s.buildIncomingAck(pub)
		select {
		case s.ackReady <- ackReadyEvent{pkid: pub.PacketID, ack: ack}:
		case <-ctx.Done():
		}
	}()
}

func (s *Session) buildIncomingAck(pub *wire.Publish) wire.Packet {
	if pub.QoS == wire.QoS1 {
		return &wire.Puback{PacketID: pub.PacketID, ReasonCode: wire.ReasonSuccess}
	}
	return &wire.Pubrec{PacketID: pub.PacketID, ReasonCode: wire.ReasonSuccess}
}

// IncomingPuback completes a QoS1 publish.
func (s *Session) IncomingPuback(ack *wire.Puback) error {
	e, ok := s.inflt.TakePublishQoS1(ack.PacketID)
	if !ok {
		return unexpectedPacket("PUBACK for unknown pkid %d", ack.PacketID)
	}
	s.pkids.Release(ack.PacketID)
	e.Notifier.Complete(notify.Result{Packet: ack})
	return nil
}

// IncomingPubrec handles the first leg of an outgoing QoS2 exchange.
func (s *Session) IncomingPubrec(rec *wire.Pubrec) error {
	if !wire.IsSuccess(rec.ReasonCode) {
		e, ok := s.inflt.FailPublishQoS2(rec.PacketID)
		if !ok {
			return unexpectedPacket("PUBREC for unknown pkid %d", rec.PacketID)
		}
		s.pkids.Release(rec.PacketID)
		e.Notifier.Complete(notify.Result{Packet: rec})
		return nil
	}
	pubrelNotifier := notify.New()
	pubrel := &tracker.Entry{
		Kind:     tracker.KindPubrel,
		PacketID: rec.PacketID,
		Packet:   &wire.Pubrel{PacketID: rec.PacketID, ReasonCode: wire.ReasonSuccess},
		Notifier: pubrelNotifier,
	}
	old, ok := s.inflt.PromoteToPubrel(rec.PacketID, pubrel)
	if !ok {
		return unexpectedPacket("PUBREC for unknown pkid %d", rec.PacketID)
	}
	old.Notifier.Complete(notify.Result{Packet: rec})
	return nil
}

// IncomingPubrel handles an inbound PUBREL for a publish this session
// received (QoS2, step 2): its PUBREC was already emitted and removed
// from the in-application tracker, so the PUBCOMP reply gets a fresh
// entry rather than reusing the old one. No application-ack gating
// applies here: PUBCOMP is a protocol handshake reply, not subject to
// local_ack (that already happened before the PUBREC was sent).
func (s *Session) IncomingPubrel(rel *wire.Pubrel) {
	s.inApp.Insert(rel.PacketID)
	s.inApp.MarkReady(rel.PacketID, &wire.Pubcomp{PacketID: rel.PacketID, ReasonCode: wire.ReasonSuccess})
}

// IncomingPubcomp completes an outgoing QoS2 publish.
func (s *Session) IncomingPubcomp(comp *wire.Pubcomp) error {
	e, ok := s.inflt.TakePubrel(comp.PacketID)
	if !ok {
		return unexpectedPacket("PUBCOMP for unknown pkid %d", comp.PacketID)
	}
	s.pkids.Release(comp.PacketID)
	e.Notifier.Complete(notify.Result{Packet: comp})
	return nil
}

// IncomingSuback completes a SUBSCRIBE.
func (s *Session) IncomingSuback(ack *wire.Suback) error {
	e, ok := s.inflt.TakeSubUnsub(ack.PacketID)
	if !ok {
		return unexpectedPacket("SUBACK for unknown pkid %d", ack.PacketID)
	}
	s.pkids.Release(ack.PacketID)
	e.Notifier.Complete(notify.Result{Packet: ack})
	return nil
}

// IncomingUnsuback completes an UNSUBSCRIBE.
func (s *Session) IncomingUnsuback(ack *wire.Unsuback) error {
	e, ok := s.inflt.TakeSubUnsub(ack.PacketID)
	if !ok {
		return unexpectedPacket("UNSUBACK for unknown pkid %d", ack.PacketID)
	}
	s.pkids.Release(ack.PacketID)
	e.Notifier.Complete(notify.Result{Packet: ack})
	return nil
}

// IncomingAuth handles an AUTH packet during an enhanced-auth
// exchange. Server-originated reauth (ReasonCode ReAuthenticate
// arriving without an outstanding client request) is illegal
// (spec.md §4.3).
func (s *Session) IncomingAuth(a *wire.Auth) error {
	if s.pendingAuth == nil {
		if a.ReasonCode == wire.AuthReasonReAuthenticate {
			return unexpectedPacket("server-initiated reauthentication is not permitted")
		}
		return unexpectedPacket("AUTH with no outstanding exchange")
	}
	switch a.ReasonCode {
	case wire.AuthReasonSuccess:
		n := s.pendingAuth.Notifier
		s.pendingAuth = nil
		n.Complete(notify.Result{Packet: a})
	case wire.AuthReasonContinueAuthentication:
		// exchange continues: the notifier resolves with the challenge,
		// and pendingAuth stays set until the caller's next Reauth call
		// carrying the next leg replaces it.
		s.pendingAuth.Notifier.Complete(notify.Result{Packet: a})
	default:
		n := s.pendingAuth.Notifier
		s.pendingAuth = nil
		n.Cancel(unexpectedPacket("AUTH reason code %#x", a.ReasonCode))
	}
	return nil
}

// IncomingDisconnect handles a server-initiated DISCONNECT.
func (s *Session) IncomingDisconnect(d *wire.Disconnect) {
	s.processDisconnect(errClientDisconnected)
	if s.transient {
		s.sessionExpired()
	}
}
