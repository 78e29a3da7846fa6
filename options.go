package mqtt

import (
	"crypto/tls"
	"log/slog"
	"time"

	"github.com/Azure/iot-operations-sdk-go/internal/wire"
)

// WillMessage is the Last Will and Testament published by the server
// if the client disconnects uncleanly.
type WillMessage struct {
	Topic      string
	Payload    []byte
	QoS        uint8
	Retain     bool
	Properties *wire.Properties
}

// AioBrokerFeatures carries Azure IoT Operations broker feature hints
// sent as CONNECT user properties (spec.md §6, §5.1 of SPEC_FULL.md).
type AioBrokerFeatures struct {
	Persistence bool
}

// ConnectionSettings is the connection-level configuration named in
// spec.md §6 "Configuration". It is immutable once passed to NewSession.
type ConnectionSettings struct {
	Hostname string
	TCPPort  uint16
	ClientID string

	// KeepAlive of 0 means "infinite" (keep-alive disabled).
	KeepAlive time.Duration

	// CleanStart only affects the first connect attempt; every
	// reconnect after that uses CleanStart=false (spec.md §4.5).
	CleanStart bool

	Username string
	Password string

	// SATFile, if non-empty, enables enhanced authentication: its
	// contents are read fresh on every (re)connect and re-sent as the
	// CONNECT/AUTH authentication data (spec.md §6 "sat_file path
	// enables enhanced-auth").
	SATFile string

	TLSConfig *tls.Config
	Will      *WillMessage

	// WebSocketURL, if set, dials a WebSocket transport at this URL
	// instead of raw TCP/TLS to Hostname:TCPPort.
	WebSocketURL string

	ConnectTimeout time.Duration

	AioBrokerFeatures AioBrokerFeatures
}

// SessionOptions bundles everything NewSession needs beyond the
// connection settings: policies, queue sizes, and ambient stack
// (spec.md §6, following the teacher's options.go functional-options
// pattern rather than a builder).
type SessionOptions struct {
	ReconnectPolicy    ReconnectPolicy
	EnhancedAuthPolicy EnhancedAuthPolicy

	MaxPacketIdentifier      uint16
	PublishQoS0QueueSize     int
	PublishQoS1QoS2QueueSize int
	SubUnsubQueueSize        int

	SessionExpiryInterval uint32

	Logger  *slog.Logger
	Metrics *Metrics
}

// Option configures a SessionOptions.
type Option func(*SessionOptions)

// WithReconnectPolicy overrides the default exponential-backoff policy.
func WithReconnectPolicy(p ReconnectPolicy) Option {
	return func(o *SessionOptions) { o.ReconnectPolicy = p }
}

// WithEnhancedAuthPolicy installs an enhanced-authentication policy,
// enabling the reauth monitor coroutine (spec.md §4.5).
func WithEnhancedAuthPolicy(p EnhancedAuthPolicy) Option {
	return func(o *SessionOptions) { o.EnhancedAuthPolicy = p }
}

// WithMaxPacketIdentifier bounds the pkid pool (default 0xFFFF).
func WithMaxPacketIdentifier(max uint16) Option {
	return func(o *SessionOptions) { o.MaxPacketIdentifier = max }
}

// WithQueueSizes sets the bounded application request channel sizes
// (spec.md §6 "publish_qos0_queue_size, publish_qos1_qos2_queue_size").
func WithQueueSizes(qos0, qos12, subUnsub int) Option {
	return func(o *SessionOptions) {
		o.PublishQoS0QueueSize = qos0
		o.PublishQoS1QoS2QueueSize = qos12
		o.SubUnsubQueueSize = subUnsub
	}
}

// WithSessionExpiryInterval requests a non-transient session (0 means
// transient, the default).
func WithSessionExpiryInterval(seconds uint32) Option {
	return func(o *SessionOptions) { o.SessionExpiryInterval = seconds }
}

// WithLogger installs a *slog.Logger (default: slog.Default()).
func WithLogger(log *slog.Logger) Option {
	return func(o *SessionOptions) { o.Logger = log }
}

// WithMetrics installs a prometheus-backed Metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(o *SessionOptions) { o.Metrics = m }
}

func defaultSessionOptions() *SessionOptions {
	return &SessionOptions{
		ReconnectPolicy:          NewExponentialBackoffPolicy(time.Second, 2*time.Minute),
		MaxPacketIdentifier:      0xFFFF,
		PublishQoS0QueueSize:     64,
		PublishQoS1QoS2QueueSize: 64,
		SubUnsubQueueSize:        16,
	}
}

func defaultConnectionSettings() ConnectionSettings {
	return ConnectionSettings{
		TCPPort:        1883,
		KeepAlive:      60 * time.Second,
		CleanStart:     true,
		ConnectTimeout: 20 * time.Second,
	}
}
