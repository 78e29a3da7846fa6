package session

import (
	"context"

	"github.com/Azure/iot-operations-sdk-go/internal/notify"
	"github.com/Azure/iot-operations-sdk-go/internal/wire"
)

// subUnsubRequest is the combined SUBSCRIBE/UNSUBSCRIBE request shape;
// exactly one of Subscribe/Unsubscribe is set.
type subUnsubRequest struct {
	Subscribe   *SubscribeRequest
	Unsubscribe *UnsubscribeRequest
	Notifier    *notify.Notifier
}

// SubscribeRequest asks the session to subscribe to one or more topic
// filters, spec.md §6 "ManagedClient operations".
type SubscribeRequest struct {
	Topics     []wire.SubscribeTopic
	Properties *wire.Properties
}

// UnsubscribeRequest asks the session to unsubscribe one or more topic
// filters.
type UnsubscribeRequest struct {
	Filters    []string
	Properties *wire.Properties
}

// PublishQoS0Request is a fire-and-forget publish; it carries no
// notifier because QoS0 has no acknowledgement.
type PublishQoS0Request struct {
	Topic      string
	Payload    []byte
	Retain     bool
	Properties *wire.Properties
}

// PublishQoS12Request is a QoS1 or QoS2 publish awaiting completion.
type PublishQoS12Request struct {
	Topic      string
	Payload    []byte
	QoS        uint8
	Retain     bool
	Properties *wire.Properties
}

// pubQoS12Item pairs a queued QoS1/2 publish with the notifier handed
// back to the caller at submission time.
type pubQoS12Item struct {
	Req      *PublishQoS12Request
	Notifier *notify.Notifier
}

// ReauthRequest initiates an AUTH exchange over a live connection, or
// continues one already in progress (Continue=true sends reason code
// ContinueAuthentication instead of ReAuthenticate, spec.md §4.5
// "feed the challenge back to the policy and call continue_reauth").
type ReauthRequest struct {
	Properties *wire.Properties
	Continue   bool
}

type reauthItem struct {
	Req      *ReauthRequest
	Notifier *notify.Notifier
}

// DisconnectRequest asks the session to emit a client-initiated
// DISCONNECT (spec.md §4.5 "try_exit").
type DisconnectRequest struct {
	ReasonCode            uint8
	SessionExpiryInterval uint32
}

// Subscribe enqueues a SUBSCRIBE request and returns a notifier that
// resolves to the matching SUBACK.
func (s *Session) Subscribe(ctx context.Context, req *SubscribeRequest) (*notify.Notifier, error) {
	n := notify.New()
	r := &subUnsubRequest{Subscribe: req, Notifier: n}
	select {
	case s.subUnsub <- r:
		return n, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Unsubscribe enqueues an UNSUBSCRIBE request and returns a notifier
// that resolves to the matching UNSUBACK.
func (s *Session) Unsubscribe(ctx context.Context, req *UnsubscribeRequest) (*notify.Notifier, error) {
	n := notify.New()
	r := &subUnsubRequest{Unsubscribe: req, Notifier: n}
	select {
	case s.subUnsub <- r:
		return n, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PublishQoS0 enqueues a fire-and-forget publish.
func (s *Session) PublishQoS0(ctx context.Context, req *PublishQoS0Request) error {
	select {
	case s.publishQoS0 <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishQoS12 enqueues a QoS1/2 publish and returns a notifier that
// resolves to the final ack (PUBACK for QoS1, PUBCOMP for QoS2).
func (s *Session) PublishQoS12(ctx context.Context, req *PublishQoS12Request) (*notify.Notifier, error) {
	n := notify.New()
	select {
	case s.publishQoS12 <- &pubQoS12Item{Req: req, Notifier: n}:
		return n, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reauth enqueues an AUTH request to start a reauthentication exchange
// and returns a notifier that resolves to the server's AUTH response.
func (s *Session) Reauth(ctx context.Context, req *ReauthRequest) (*notify.Notifier, error) {
	n := notify.New()
	select {
	case s.reauth <- &reauthItem{Req: req, Notifier: n}:
		return n, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RequestDisconnect enqueues a client-initiated DISCONNECT. Only the
// first pending request before the session loop observes it takes
// effect.
func (s *Session) RequestDisconnect(req *DisconnectRequest) {
	select {
	case s.disconnect <- req:
	default:
	}
}
