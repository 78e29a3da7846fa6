// Package session implements the session state machine (C5): the
// per-connection-epoch orchestrator that consumes application
// requests, produces outgoing MQTT packets, consumes incoming ones,
// fires completion notifiers, and handles disconnect, session-expiry
// and replay. Everything in Session is owned exclusively by one
// caller goroutine (the supervisor's connection runner); the ack
// tracker is the sole exception (spec.md §5).
package session

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Azure/iot-operations-sdk-go/internal/acktracker"
	"github.com/Azure/iot-operations-sdk-go/internal/dispatch"
	"github.com/Azure/iot-operations-sdk-go/internal/pkid"
	"github.com/Azure/iot-operations-sdk-go/internal/tracker"
	"github.com/Azure/iot-operations-sdk-go/internal/wire"
)

// connState is the sum-type connection state from spec.md §9
// ("Session state as a sum type"): disconnected, or connected with the
// negotiated CONNACK.
type connState struct {
	connected bool
	connack   *wire.Connack
}

// Session is the state machine described in spec.md §4.3. One Session
// exists per logical session (it survives reconnects; the supervisor
// constructs a new Session only when the session is truly lost).
type Session struct {
	log *slog.Logger

	pkids   *pkid.Pool
	inflt   *tracker.Inflight
	inApp   *tracker.InApplication
	acks    *acktracker.Tracker
	dispatc *dispatch.Dispatcher

	state     connState
	epoch     atomic.Uint64
	transient bool
	hadPrior  bool // true once we've seen a successful CONNACK at least once
	keepAlive time.Duration
	caps      Capabilities

	// application-facing request channels, spec.md §6 "Configuration":
	// publish_qos0_queue_size / publish_qos1_qos2_queue_size size these.
	subUnsub     chan *subUnsubRequest
	publishQoS0  chan *PublishQoS0Request
	publishQoS12 chan *pubQoS12Item
	reauth       chan *reauthItem
	disconnect   chan *DisconnectRequest

	// ackReady receives pkids whose ack tracker entry became ready for
	// emission (spec.md §4.3 scheduling priority (c)); one watcher
	// goroutine per admitted incoming QoS1/2 publish feeds it.
	ackReady chan ackReadyEvent

	pendingAuth *tracker.Entry // the one live AUTH/reauth exchange, if any
	replay      *replayQueue

	keepAliveTimer *time.Timer
}

type ackReadyEvent struct {
	pkid uint16
	ack  wire.Packet
}

// Config bundles the sizes and limits a Session is constructed with.
type Config struct {
	MaxPacketIdentifier      uint16
	PublishQoS0QueueSize     int
	PublishQoS1QoS2QueueSize int
	SubUnsubQueueSize        int
	Logger                   *slog.Logger
}

// New creates a Session with empty trackers and a fresh pkid pool. It
// is not yet connected: call ApplyConnack once a CONNACK arrives.
func New(cfg Config) *Session {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	if cfg.SubUnsubQueueSize <= 0 {
		cfg.SubUnsubQueueSize = 16
	}
	acks := acktracker.New()
	return &Session{
		log:          log,
		pkids:        pkid.New(cfg.MaxPacketIdentifier),
		inflt:        tracker.NewInflight(),
		inApp:        tracker.NewInApplication(),
		acks:         acks,
		dispatc:      dispatch.New(acks),
		subUnsub:     make(chan *subUnsubRequest, cfg.SubUnsubQueueSize),
		publishQoS0:  make(chan *PublishQoS0Request, cfg.PublishQoS0QueueSize),
		publishQoS12: make(chan *pubQoS12Item, cfg.PublishQoS1QoS2QueueSize),
		reauth:       make(chan *reauthItem, 1),
		disconnect:   make(chan *DisconnectRequest, 1),
		ackReady:     make(chan ackReadyEvent, 64),
	}
}

// Dispatcher exposes the incoming-publish dispatcher so the supervisor
// can register application receivers.
func (s *Session) Dispatcher() *dispatch.Dispatcher { return s.dispatc }

// IsTransient reports whether the current session is transient
// (effective session-expiry-interval of 0).
func (s *Session) IsTransient() bool { return s.transient }

// Epoch returns the current connection epoch.
func (s *Session) Epoch() uint64 { return s.epoch.Load() }

// Capabilities returns the server capabilities negotiated on the most
// recent CONNACK.
func (s *Session) Capabilities() Capabilities { return s.caps }

// InflightCount returns the number of outgoing QoS1/2 publishes
// currently awaiting acknowledgement, for metrics reporting.
func (s *Session) InflightCount() int { return s.inflt.InflightCount() }
