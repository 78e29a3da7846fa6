package mqtt

import "sync"

// SessionMonitor observes connection state broadcast by the supervisor
// after each CONNACK/disconnect (spec.md §4.5 "Exposed observers").
// Grounded on the teacher's Client.connected atomic.Bool plus its
// OnConnect/OnConnectionLost hooks, generalized into a standalone
// broadcaster so multiple observers can each get their own channel.
type SessionMonitor struct {
	mu        sync.Mutex
	connected bool
	waiters   []chan struct{} // closed and removed once connected is reached
	losers    []chan struct{} // closed and removed once disconnected is reached
}

// NewSessionMonitor returns a SessionMonitor starting in the
// disconnected state.
func NewSessionMonitor() *SessionMonitor {
	return &SessionMonitor{}
}

// IsConnected reports the current connection state.
func (m *SessionMonitor) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Connected returns a channel that closes the next time (or
// immediately, if already true) the session becomes connected.
func (m *SessionMonitor) Connected() <-chan struct{} {
	ch := make(chan struct{})
	m.mu.Lock()
	if m.connected {
		m.mu.Unlock()
		close(ch)
		return ch
	}
	m.waiters = append(m.waiters, ch)
	m.mu.Unlock()
	return ch
}

// Disconnected returns a channel that closes the next time (or
// immediately, if already true) the session becomes disconnected.
func (m *SessionMonitor) Disconnected() <-chan struct{} {
	ch := make(chan struct{})
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		close(ch)
		return ch
	}
	m.losers = append(m.losers, ch)
	m.mu.Unlock()
	return ch
}

func (m *SessionMonitor) setConnected(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connected == v {
		return
	}
	m.connected = v
	if v {
		for _, ch := range m.waiters {
			close(ch)
		}
		m.waiters = nil
	} else {
		for _, ch := range m.losers {
			close(ch)
		}
		m.losers = nil
	}
}
