package session

// processDisconnect runs on any disconnect — client, server, or
// transport failure (spec.md §4.3 "Disconnect processing"). It cancels
// connection-scoped notifiers, releases their pkids, and clears any
// stale replay queue; the QoS1/2 inflight entries are kept so a future
// CONNACK with session_present=true can replay what's left.
func (s *Session) processDisconnect(reason error) {
	s.state = connState{}
	for _, id := range s.inflt.CancelConnectionScoped(reason) {
		s.pkids.Release(id)
	}
	s.cancelPendingAuth(reason)
	// SUBSCRIBE/UNSUBSCRIBE never survive a reconnect, so pending
	// replay state (if any) from a stale BeginReplay call is cleared;
	// ApplyConnack rebuilds it fresh from the QoS1/2 tracker that
	// remains.
	s.replay = nil
}

// cancelPendingAuth cancels the one live AUTH/reauth exchange, if any
// (spec.md §4.3: AUTH notifiers are cancelled alongside SUBSCRIBE/
// UNSUBSCRIBE on disconnect, since AUTH is connection-scoped too).
func (s *Session) cancelPendingAuth(reason error) {
	if s.pendingAuth == nil {
		return
	}
	s.pendingAuth.Notifier.Cancel(reason)
	s.pendingAuth = nil
}

// sessionExpired runs when the server has, or is declared to have,
// discarded session state (spec.md §4.3 "Session-expired processing").
// The epoch is deliberately not reset: tokens issued under the old
// epoch stay invalid forever.
func (s *Session) sessionExpired() {
	for _, id := range s.inflt.CancelSessionScoped(errSessionExpired) {
		s.pkids.Release(id)
	}
	s.cancelPendingAuth(errSessionExpired)
	s.inApp.Clear()
	s.replay = nil
}
