package mqtt

import "context"

// exitSignal is what the supervisor's connection runner selects on to
// learn it should stop; graceful carries whether a DISCONNECT should
// be attempted first.
type exitSignal struct {
	graceful bool
	result   chan error
}

// SessionExitHandle lets callers stop a running Session (spec.md §4.5
// "Exit semantics", §6 "SessionExitHandle::try_exit() / force_exit()").
// Grounded on the teacher's Disconnect/disconnectWithReason pair
// (client.go), split into graceful/forced per spec.md rather than the
// teacher's single Disconnect(ctx, opts...) call, because spec.md gives
// the two paths different failure semantics (graceful can fail
// ServerUnavailable; forced cannot fail at all).
type SessionExitHandle struct {
	requests chan exitSignal
	detached chan struct{}
}

func newSessionExitHandle() *SessionExitHandle {
	return &SessionExitHandle{
		requests: make(chan exitSignal),
		detached: make(chan struct{}),
	}
}

// TryExit attempts a graceful exit: if connected, emits
// DISCONNECT(session-expiry=0) and the run loop returns nil; if not
// connected, returns SessionExitError{ServerUnavailable} without
// affecting the run loop.
func (h *SessionExitHandle) TryExit(ctx context.Context) error {
	result := make(chan error, 1)
	select {
	case h.requests <- exitSignal{graceful: true, result: result}:
	case <-h.detached:
		return &SessionExitError{Kind: Detached}
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ForceExit attempts a graceful exit (best effort: the run loop waits
// at most forcedExitWriteBudget, 200ms, for the DISCONNECT to come out
// of the engine) then unconditionally signals the run loop to return
// ForceExit. It never fails.
func (h *SessionExitHandle) ForceExit() {
	select {
	case h.requests <- exitSignal{graceful: false, result: nil}:
	case <-h.detached:
	}
}

func (h *SessionExitHandle) release() {
	close(h.detached)
}
