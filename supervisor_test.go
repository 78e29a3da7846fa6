package mqtt

import (
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/Azure/iot-operations-sdk-go/internal/wire"
	"github.com/Azure/iot-operations-sdk-go/session"
)

// fakeBroker accepts one TCP connection at a time, decodes CONNECT and
// replies CONNACK, then hands the raw conn to the test for further
// scripting. Grounded on the teacher's client_test.go style of driving
// a Client against hand-built packets rather than a real broker.
type fakeBroker struct {
	ln net.Listener
}

func newFakeBroker(t *testing.T) *fakeBroker {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	return &fakeBroker{ln: ln}
}

func (b *fakeBroker) addr() string { return b.ln.Addr().String() }

func (b *fakeBroker) acceptAndHandshake(t *testing.T, reasonCode uint8) net.Conn {
	t.Helper()
	conn, err := b.ln.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	readPacket(t, conn) // CONNECT
	writePacketTo(t, conn, &wire.Connack{ReasonCode: reasonCode})
	return conn
}

func readPacket(t *testing.T, conn net.Conn) wire.Packet {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 0, 512)
	chunk := make([]byte, 512)
	for {
		pkt, consumed, err := wire.Decode(buf, wire.Version5)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if consumed > 0 {
			return pkt
		}
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			t.Fatalf("read: %v", err)
		}
	}
}

func writePacketTo(t *testing.T, conn net.Conn, pkt wire.Packet) {
	t.Helper()
	buf := wire.GetBuffer(256)
	defer buf.Release()
	if err := wire.Encode(buf, pkt, wire.Version5); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := conn.Write(buf.Bytes()); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func newTestSession(t *testing.T, addr string) *Session {
	t.Helper()
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	portNum, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	settings := defaultConnectionSettings()
	settings.Hostname = host
	settings.TCPPort = uint16(portNum)
	settings.ClientID = "test-client"
	return NewSession(settings, WithReconnectPolicy(NewExponentialBackoffPolicy(time.Millisecond, 10*time.Millisecond)))
}

func TestSessionConnectAndGracefulExit(t *testing.T) {
	broker := newFakeBroker(t)
	s := newTestSession(t, broker.addr())

	done := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { done <- s.Run(ctx) }()

	conn := broker.acceptAndHandshake(t, 0)
	defer conn.Close()

	select {
	case <-s.Monitor().Connected():
	case <-time.After(2 * time.Second):
		t.Fatal("never connected")
	}

	exitDone := make(chan error, 1)
	go func() { exitDone <- s.ExitHandle().TryExit(context.Background()) }()

	pkt := readPacket(t, conn)
	if _, ok := pkt.(*wire.Disconnect); !ok {
		t.Fatalf("expected DISCONNECT, got %T", pkt)
	}

	if err := <-exitDone; err != nil {
		t.Fatalf("TryExit: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestSessionForceExitStopsRunEvenWhenDisconnected(t *testing.T) {
	s := newTestSession(t, "127.0.0.1:1") // nothing listening; never connects

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(20 * time.Millisecond) // let the runner spin into its retry loop
	s.ExitHandle().ForceExit()

	select {
	case err := <-done:
		var sessionErr *SessionError
		if !errors.As(err, &sessionErr) || sessionErr.Kind != ForceExit {
			t.Fatalf("expected ForceExit SessionError, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on ForceExit")
	}
}

func TestTryExitWhileDisconnectedFailsButKeepsRunning(t *testing.T) {
	s := newTestSession(t, "127.0.0.1:1") // never connects

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() { s.ExitHandle().ForceExit(); <-done })

	time.Sleep(20 * time.Millisecond)

	err := s.ExitHandle().TryExit(context.Background())
	var exitErr *SessionExitError
	if !errors.As(err, &exitErr) || exitErr.Kind != ServerUnavailable {
		t.Fatalf("expected ServerUnavailable, got %v", err)
	}

	select {
	case <-done:
		t.Fatal("Run stopped after a failed graceful exit while disconnected; it should keep retrying")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSessionSubscribeRoundTrip(t *testing.T) {
	broker := newFakeBroker(t)
	s := newTestSession(t, broker.addr())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() { s.ExitHandle().ForceExit(); <-done })

	conn := broker.acceptAndHandshake(t, 0)
	defer conn.Close()

	select {
	case <-s.Monitor().Connected():
	case <-time.After(2 * time.Second):
		t.Fatal("never connected")
	}

	notifier, err := s.Subscribe(context.Background(), &session.SubscribeRequest{
		Topics: []wire.SubscribeTopic{{Filter: "a/b", QoS: 1}},
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	pkt := readPacket(t, conn)
	sub, ok := pkt.(*wire.Subscribe)
	if !ok {
		t.Fatalf("expected SUBSCRIBE, got %T", pkt)
	}
	writePacketTo(t, conn, &wire.Suback{PacketID: sub.PacketID, ReasonCodes: []uint8{wire.SubackGrantedQoS1}})

	res, err := notifier.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	suback, ok := res.Packet.(*wire.Suback)
	if !ok {
		t.Fatalf("expected Suback result, got %T", res.Packet)
	}
	if len(suback.ReasonCodes) != 1 || suback.ReasonCodes[0] != wire.SubackGrantedQoS1 {
		t.Fatalf("unexpected reason codes: %v", suback.ReasonCodes)
	}
}

func TestSessionReconnectAfterConnectionDrop(t *testing.T) {
	broker := newFakeBroker(t)
	s := newTestSession(t, broker.addr())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() { s.ExitHandle().ForceExit(); <-done })

	conn1 := broker.acceptAndHandshake(t, 0)
	select {
	case <-s.Monitor().Connected():
	case <-time.After(2 * time.Second):
		t.Fatal("never connected")
	}
	conn1.Close()

	select {
	case <-s.Monitor().Disconnected():
	case <-time.After(2 * time.Second):
		t.Fatal("never observed disconnect")
	}

	conn2 := broker.acceptAndHandshake(t, 0)
	defer conn2.Close()
	select {
	case <-s.Monitor().Connected():
	case <-time.After(2 * time.Second):
		t.Fatal("never reconnected")
	}
}
