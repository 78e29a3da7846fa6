package mqtt

import (
	"os"
	"sync"
	"time"
)

// EnhancedAuthPolicy drives an MQTT v5 enhanced-authentication exchange
// (spec.md §4.5 "reauth monitor", §6 "enhanced_auth_policy: abstract").
// Grounded on the teacher's Authenticator interface (auth.go), extended
// with ReauthNotified so the reauth monitor coroutine has something to
// wait on: the teacher exposes re-authentication as an explicit method
// call (Reauthenticate); spec.md instead wants the policy to notify the
// supervisor when a reauth should start (e.g. a credential file changed
// on disk), so the supervisor can drive it uniformly from one monitor
// loop regardless of what triggers it.
type EnhancedAuthPolicy interface {
	Method() string
	InitialData() ([]byte, error)
	HandleChallenge(challengeData []byte, reasonCode uint8) ([]byte, error)
	Complete() error
	// ReauthNotified returns a channel that receives a value each time
	// the policy wants a reauth exchange started.
	ReauthNotified() <-chan struct{}
	// Close stops any background watcher the policy runs.
	Close()
}

// satFilePolicy is the default enhanced-auth policy when
// ConnectionSettings.SATFile is set: it treats the file's contents as
// opaque authentication data, re-reading it on every (re)connect and
// notifying a reauth whenever the file's mtime changes, grounded on
// spec.md §6 ("sat_file path enables enhanced-auth").
type satFilePolicy struct {
	path string

	mu       sync.Mutex
	lastMod  time.Time
	notify   chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

// NewSATFilePolicy returns an EnhancedAuthPolicy that authenticates
// with the "SAT" method using the contents of path as authentication
// data, polling the file every pollInterval for changes.
func NewSATFilePolicy(path string, pollInterval time.Duration) EnhancedAuthPolicy {
	p := &satFilePolicy{
		path:   path,
		notify: make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
	if info, err := os.Stat(path); err == nil {
		p.lastMod = info.ModTime()
	}
	go p.watch(pollInterval)
	return p
}

func (p *satFilePolicy) Method() string { return "SAT" }

func (p *satFilePolicy) InitialData() ([]byte, error) {
	return os.ReadFile(p.path)
}

func (p *satFilePolicy) HandleChallenge(challengeData []byte, reasonCode uint8) ([]byte, error) {
	// SAT is a one-shot bearer token method: the server is not expected
	// to challenge further once the token is presented.
	return nil, &unsupportedChallengeError{method: "SAT"}
}

func (p *satFilePolicy) Complete() error { return nil }

func (p *satFilePolicy) ReauthNotified() <-chan struct{} { return p.notify }

func (p *satFilePolicy) Close() {
	p.stopOnce.Do(func() { close(p.stop) })
}

func (p *satFilePolicy) watch(pollInterval time.Duration) {
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	t := time.NewTicker(pollInterval)
	defer t.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-t.C:
			info, err := os.Stat(p.path)
			if err != nil {
				continue
			}
			p.mu.Lock()
			changed := info.ModTime().After(p.lastMod)
			if changed {
				p.lastMod = info.ModTime()
			}
			p.mu.Unlock()
			if changed {
				select {
				case p.notify <- struct{}{}:
				default:
				}
			}
		}
	}
}

type unsupportedChallengeError struct{ method string }

func (e *unsupportedChallengeError) Error() string {
	return "mqtt: " + e.method + " authentication does not support server challenges"
}
