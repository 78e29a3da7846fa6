// Package mqtt implements the session supervisor (C7): the public
// Session type that dials a broker, drives the session state machine
// in package session against the live connection, and reconnects per
// a ReconnectPolicy. Grounded on the teacher's Client (client.go) and
// its logicLoop (logic.go), restructured around a connection runner
// (which also drives the receive side) and an optional reauth monitor
// under golang.org/x/sync/errgroup (see Run), in place of the
// teacher's single logicLoop goroutine plus a separate reconnectLoop.
package mqtt

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Azure/iot-operations-sdk-go/internal/dispatch"
	"github.com/Azure/iot-operations-sdk-go/internal/notify"
	"github.com/Azure/iot-operations-sdk-go/internal/wire"
	"github.com/Azure/iot-operations-sdk-go/session"
)

// Session is the public supervisor: one per logical MQTT session. It
// owns a session.Session engine and drives it against a live
// connection, reconnecting as configured (spec.md §4.5).
type Session struct {
	settings ConnectionSettings
	opts     *SessionOptions
	engine   *session.Session
	monitor  *SessionMonitor
	exit     *SessionExitHandle
	log      *slog.Logger

	connMu sync.Mutex
	conn   net.Conn

	seenFirstConnect bool
}

// NewSession constructs a Session. It does not connect until Run is
// called.
func NewSession(settings ConnectionSettings, opts ...Option) *Session {
	o := defaultSessionOptions()
	for _, opt := range opts {
		opt(o)
	}
	if settings.ConnectTimeout <= 0 {
		settings.ConnectTimeout = defaultConnectionSettings().ConnectTimeout
	}
	if o.EnhancedAuthPolicy == nil && settings.SATFile != "" {
		o.EnhancedAuthPolicy = NewSATFilePolicy(settings.SATFile, 30*time.Second)
	}
	log := o.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "mqtt.Session", "client_id", settings.ClientID)

	engine := session.New(session.Config{
		MaxPacketIdentifier:      o.MaxPacketIdentifier,
		PublishQoS0QueueSize:     o.PublishQoS0QueueSize,
		PublishQoS1QoS2QueueSize: o.PublishQoS1QoS2QueueSize,
		SubUnsubQueueSize:        o.SubUnsubQueueSize,
		Logger:                   log,
	})

	return &Session{
		settings: settings,
		opts:     o,
		engine:   engine,
		monitor:  NewSessionMonitor(),
		exit:     newSessionExitHandle(),
		log:      log,
	}
}

// Monitor returns the SessionMonitor observing this session's
// connection state.
func (s *Session) Monitor() *SessionMonitor { return s.monitor }

// ExitHandle returns the handle used to stop this session's Run loop.
func (s *Session) ExitHandle() *SessionExitHandle { return s.exit }

// Dispatcher exposes the incoming-publish dispatcher so callers can
// register filtered or unfiltered receivers (spec.md §6 "PubReceiver").
func (s *Session) Dispatcher() *dispatch.Dispatcher { return s.engine.Dispatcher() }

// Subscribe, Unsubscribe, PublishQoS0, PublishQoS12 and Reauth forward
// to the underlying engine (spec.md §6 "ManagedClient operations").
func (s *Session) Subscribe(ctx context.Context, req *session.SubscribeRequest) (*notify.Notifier, error) {
	return s.engine.Subscribe(ctx, req)
}

func (s *Session) Unsubscribe(ctx context.Context, req *session.UnsubscribeRequest) (*notify.Notifier, error) {
	return s.engine.Unsubscribe(ctx, req)
}

func (s *Session) PublishQoS0(ctx context.Context, req *session.PublishQoS0Request) error {
	return s.engine.PublishQoS0(ctx, req)
}

func (s *Session) PublishQoS12(ctx context.Context, req *session.PublishQoS12Request) (*notify.Notifier, error) {
	return s.engine.PublishQoS12(ctx, req)
}

func (s *Session) Reauth(ctx context.Context, req *session.ReauthRequest) (*notify.Notifier, error) {
	return s.engine.Reauth(ctx, req)
}

// Run drives the session until it is stopped or fails permanently.
// spec.md §4.5 describes three cooperating coroutines: a connection
// runner, a receive loop, and a reauth monitor. The first two are
// fused here into connectionRunner, since session.Session requires
// its incoming-packet handlers and NextOutgoingPacket to be called
// from a single goroutine (see engine.go); the reauth monitor remains
// independent, cancelled per-connection via SessionMonitor. Both run
// under errgroup.WithContext; when connectionRunner returns, with or
// without an error, the shared context is cancelled so the reauth
// monitor stops too.
func (s *Session) Run(ctx context.Context) error {
	defer s.exit.release()
	if s.opts.EnhancedAuthPolicy != nil {
		defer s.opts.EnhancedAuthPolicy.Close()
	}

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()
	group, gctx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		defer stopRun()
		return s.connectionRunner(gctx)
	})
	if s.opts.EnhancedAuthPolicy != nil {
		group.Go(func() error { return s.reauthMonitor(gctx) })
	}

	err := group.Wait()
	if err == nil {
		return nil
	}
	var sessionErr *SessionError
	if errors.As(err, &sessionErr) {
		return sessionErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &SessionError{Kind: Config, Reason: err}
}

func (s *Session) currentConn() net.Conn {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn
}

func (s *Session) setConn(c net.Conn) {
	s.connMu.Lock()
	s.conn = c
	s.connMu.Unlock()
}

// connectionRunner implements spec.md §4.5 coroutines 1+2: dial,
// CONNECT, drive the connection (read and write) until it drops or an
// exit is requested, consult the reconnect policy.
func (s *Session) connectionRunner(ctx context.Context) error {
	attempt := 0
	backoff := func(cause error) error {
		attempt++
		delay, ok := s.opts.ReconnectPolicy.NextDelay(attempt)
		if !ok {
			return &SessionError{Kind: ReconnectHalted, Reason: cause}
		}
		s.log.Warn("mqtt connection lost, retrying", "attempt", attempt, "delay", delay, "error", cause)
		select {
		case <-time.After(delay):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for {
		select {
		case sig := <-s.exit.requests:
			if stop, err := s.handleExitSignal(sig); stop {
				return err
			}
			continue
		default:
		}

		cleanStart := !s.seenFirstConnect && s.settings.CleanStart

		conn, connack, requestedExpiry, err := s.connectOnce(ctx, cleanStart)
		if err != nil {
			if retryErr := backoff(err); retryErr != nil {
				return retryErr
			}
			continue
		}

		if applyErr := s.engine.ApplyConnack(connack, requestedExpiry); applyErr != nil {
			conn.Close()
			return &SessionError{Kind: SessionLost, Reason: applyErr}
		}

		s.seenFirstConnect = true
		attempt = 0
		s.opts.ReconnectPolicy.Reset()
		s.setConn(conn)
		s.monitor.setConnected(true)
		if s.opts.Metrics != nil {
			s.opts.Metrics.Connected.Set(1)
		}

		runErr := s.runEngine(ctx, conn)

		s.monitor.setConnected(false)
		if s.opts.Metrics != nil {
			s.opts.Metrics.Connected.Set(0)
		}
		conn.Close()
		s.setConn(nil)

		if runErr == nil {
			// An exit handle drove a client-initiated DISCONNECT to
			// completion: the run loop stops here (spec.md §4.5 "Graceful").
			return nil
		}
		var sessionErr *SessionError
		if errors.As(runErr, &sessionErr) {
			return sessionErr
		}

		if s.opts.Metrics != nil {
			s.opts.Metrics.Reconnects.Inc()
		}
		if retryErr := backoff(runErr); retryErr != nil {
			return retryErr
		}
	}
}

// handleExitSignal interprets a SessionExitHandle signal observed while
// no connection is live. A graceful TryExit has nothing to flush, so it
// fails that one call with ServerUnavailable and lets the run loop keep
// trying to (re)connect; only a forced exit unconditionally stops Run.
func (s *Session) handleExitSignal(sig exitSignal) (stop bool, err error) {
	if sig.graceful {
		if sig.result != nil {
			sig.result <- &SessionExitError{Kind: ServerUnavailable}
		}
		return false, nil
	}
	return true, &SessionError{Kind: ForceExit}
}

// writeOne makes a best-effort attempt, within timeout, to flush the
// DISCONNECT queued by an exit, writing any higher-priority packets
// (replay, incoming-publish acks) that come out ahead of it; it stops
// at the DISCONNECT, a write error, or the timeout, per spec.md §5.2's
// force_exit decision: bounded, never blocking the run loop.
func (s *Session) writeOne(conn net.Conn, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for {
		pkt, err := s.engine.NextOutgoingPacket(ctx)
		if err != nil {
			return
		}
		if err := s.writePacket(conn, pkt); err != nil {
			return
		}
		if _, ok := pkt.(*wire.Disconnect); ok {
			return
		}
	}
}

func (s *Session) writePacket(conn net.Conn, pkt wire.Packet) error {
	buf := wire.GetBuffer(256)
	defer buf.Release()
	if err := wire.Encode(buf, pkt, wire.Version5); err != nil {
		return err
	}
	if _, err := conn.Write(buf.Bytes()); err != nil {
		return err
	}
	if s.opts.Metrics != nil {
		s.opts.Metrics.PacketsSent.Inc()
	}
	return nil
}

// connectOnce dials the transport and performs the CONNECT/CONNACK
// handshake, returning the parsed CONNACK so the caller can feed it to
// the engine. Grounded on the teacher's client.go connect/dialServer.
func (s *Session) connectOnce(ctx context.Context, cleanStart bool) (net.Conn, *wire.Connack, uint32, error) {
	connectCtx, cancel := context.WithTimeout(ctx, s.settings.ConnectTimeout)
	defer cancel()

	var conn net.Conn
	var err error
	if s.settings.WebSocketURL != "" {
		conn, err = dialWebSocket(connectCtx, s.settings.WebSocketURL)
	} else {
		conn, err = dialTCP(connectCtx, s.settings)
	}
	if err != nil {
		return nil, nil, 0, err
	}

	connectPkt, requestedExpiry, err := s.buildConnect(cleanStart)
	if err != nil {
		conn.Close()
		return nil, nil, 0, err
	}
	if err := s.writePacket(conn, connectPkt); err != nil {
		conn.Close()
		return nil, nil, 0, err
	}

	connack, err := s.readConnack(connectCtx, conn)
	if err != nil {
		conn.Close()
		return nil, nil, 0, err
	}
	if !wire.IsSuccess(connack.ReasonCode) {
		conn.Close()
		return nil, nil, 0, &connectRefusedError{reasonCode: connack.ReasonCode}
	}
	return conn, connack, requestedExpiry, nil
}

func (s *Session) readConnack(ctx context.Context, conn net.Conn) (*wire.Connack, error) {
	deadline, ok := ctx.Deadline()
	if ok {
		conn.SetReadDeadline(deadline)
		defer conn.SetReadDeadline(time.Time{})
	}
	buf := make([]byte, 0, 512)
	chunk := make([]byte, 512)
	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			pkt, consumed, decodeErr := wire.Decode(buf, wire.Version5)
			if decodeErr != nil {
				return nil, decodeErr
			}
			if consumed > 0 {
				connack, ok := pkt.(*wire.Connack)
				if !ok {
					return nil, &session.ProtocolError{Kind: "UnexpectedPacket", Message: "expected CONNACK"}
				}
				return connack, nil
			}
		}
		if err != nil {
			return nil, err
		}
	}
}

type connectRefusedError struct{ reasonCode uint8 }

func (e *connectRefusedError) Error() string {
	return "mqtt: connect refused"
}
