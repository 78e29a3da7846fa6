package mqtt

import (
	"context"
	"net"
	"time"

	"github.com/Azure/iot-operations-sdk-go/internal/wire"
	"github.com/Azure/iot-operations-sdk-go/session"
)

// forcedExitWriteBudget bounds the best-effort DISCONNECT write a
// forced exit attempts before unconditionally returning (spec.md §4.5
// "force_exit attempts a graceful exit, then unconditionally...").
const forcedExitWriteBudget = 200 * time.Millisecond

// runEngine drives one connection's full duplex traffic through the
// session engine. Per session.go's invariant that the engine is owned
// exclusively by one goroutine, both the incoming-packet handlers and
// NextOutgoingPacket are called only from this goroutine; a separate
// decodeLoop goroutine does nothing but read bytes and decode them
// (stateless), handing decoded packets over incomingCh and nudging
// wake so a blocked NextOutgoingPacket wait returns promptly. This
// fuses spec.md §4.5's "connection runner" and "receive loop"
// coroutines into one, which the session package's single-owner
// concurrency model requires.
func (s *Session) runEngine(ctx context.Context, conn net.Conn) error {
	incomingCh := make(chan wire.Packet, 32)
	readErrCh := make(chan error, 1)
	wake := make(chan struct{}, 1)

	go decodeLoop(conn, incomingCh, readErrCh, wake)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErrCh:
			return err
		case pkt := <-incomingCh:
			if err := s.applyIncoming(ctx, pkt); err != nil {
				return err
			}
			continue
		case sig := <-s.exit.requests:
			done, err := s.handleEngineExit(conn, sig)
			if done {
				return err
			}
			continue
		default:
		}

		pkt, err := s.nextOutgoingInterruptible(ctx, wake)
		if err != nil {
			if err == errWoken {
				continue
			}
			return err
		}
		if err := s.writePacket(conn, pkt); err != nil {
			return err
		}
		if s.opts.Metrics != nil {
			s.opts.Metrics.InflightOutgoing.Set(float64(s.engine.InflightCount()))
		}
		if _, ok := pkt.(*wire.Disconnect); ok {
			return nil
		}
	}
}

// errWoken is returned internally when nextOutgoingInterruptible was
// cancelled by an incoming-packet wake rather than a real ctx
// cancellation; the caller should loop back to drain incomingCh.
var errWoken = &wokenError{}

type wokenError struct{}

func (*wokenError) Error() string { return "mqtt: woken by incoming activity" }

// nextOutgoingInterruptible calls Session.NextOutgoingPacket with a
// context that is cancelled as soon as wake fires, so the engine loop
// never blocks indefinitely while incoming packets are waiting to be
// applied.
func (s *Session) nextOutgoingInterruptible(ctx context.Context, wake <-chan struct{}) (wire.Packet, error) {
	waitCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-wake:
			cancel()
		case <-waitCtx.Done():
		}
	}()
	pkt, err := s.engine.NextOutgoingPacket(waitCtx)
	cancel()
	<-done
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errWoken
	}
	return pkt, nil
}

// applyIncoming type-switches a decoded packet onto the matching
// session handler. Decode-time errors never reach here (decodeLoop
// reports them on readErrCh instead); errors returned here are
// protocol violations, which are connection-fatal per spec.md §4.3
// "Failure semantics".
func (s *Session) applyIncoming(ctx context.Context, pkt wire.Packet) error {
	if s.opts.Metrics != nil {
		s.opts.Metrics.PacketsReceived.Inc()
	}
	switch p := pkt.(type) {
	case *wire.Publish:
		s.engine.IncomingPublish(ctx, p)
	case *wire.Puback:
		return s.engine.IncomingPuback(p)
	case *wire.Pubrec:
		return s.engine.IncomingPubrec(p)
	case *wire.Pubrel:
		s.engine.IncomingPubrel(p)
	case *wire.Pubcomp:
		return s.engine.IncomingPubcomp(p)
	case *wire.Suback:
		return s.engine.IncomingSuback(p)
	case *wire.Unsuback:
		return s.engine.IncomingUnsuback(p)
	case *wire.Auth:
		return s.engine.IncomingAuth(p)
	case *wire.Disconnect:
		s.engine.IncomingDisconnect(p)
	case *wire.PingResp:
		// nothing to do; receiving it just confirms the server is alive.
	default:
		return unexpectedIncomingPacket(pkt)
	}
	return nil
}

func unexpectedIncomingPacket(pkt wire.Packet) error {
	return &session.ProtocolError{Kind: "UnexpectedPacket", Message: "unexpected packet type on established connection"}
}

// handleEngineExit interprets a SessionExitHandle signal observed
// while a connection is live (spec.md §4.5 "Exit semantics"). done
// reports whether runEngine should return now.
func (s *Session) handleEngineExit(conn net.Conn, sig exitSignal) (done bool, err error) {
	if sig.graceful {
		s.engine.RequestDisconnect(&session.DisconnectRequest{SessionExpiryInterval: 0})
		s.writeOne(conn, forcedExitWriteBudget)
		if sig.result != nil {
			sig.result <- nil
		}
		return true, nil
	}

	s.engine.RequestDisconnect(&session.DisconnectRequest{SessionExpiryInterval: 0})
	s.writeOne(conn, forcedExitWriteBudget)
	return true, &SessionError{Kind: ForceExit}
}

func decodeLoop(conn net.Conn, incomingCh chan<- wire.Packet, readErrCh chan<- error, wake chan<- struct{}) {
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	signal := func() {
		select {
		case wake <- struct{}{}:
		default:
		}
	}
	for {
		for {
			pkt, consumed, err := wire.Decode(buf, wire.Version5)
			if err != nil {
				readErrCh <- err
				signal()
				return
			}
			if consumed == 0 {
				break
			}
			buf = buf[consumed:]
			incomingCh <- pkt
			signal()
		}
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			readErrCh <- err
			signal()
			return
		}
	}
}
