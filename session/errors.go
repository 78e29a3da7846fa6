package session

import "fmt"

// ProtocolError is raised when the server violates the session's
// expectations for an in-flight pkid — a response for no matching
// request, a server-originated reauth, or similar (spec.md §4.3
// "Failure semantics", §7 "Protocol errors"). The supervisor treats it
// like a decode error: close the transport, defer to the reconnect
// policy.
type ProtocolError struct {
	Kind    string
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("session: protocol error (%s): %s", e.Kind, e.Message)
}

func unexpectedPacket(format string, args ...any) *ProtocolError {
	return &ProtocolError{Kind: "UnexpectedPacket", Message: fmt.Sprintf(format, args...)}
}

// errSessionExpired is the reason string attached to notifiers
// cancelled because the session was found or declared expired
// (spec.md §4.3 "Session-expired processing", §8 scenario S3).
var errSessionExpired = &ProtocolError{Kind: "SessionExpired", Message: "MQTT session expired"}

// errClientDisconnected is attached to SUBSCRIBE/UNSUBSCRIBE/AUTH
// notifiers cancelled on any disconnect (spec.md §4.3).
var errClientDisconnected = &ProtocolError{Kind: "ClientDisconnected", Message: "client disconnected"}
