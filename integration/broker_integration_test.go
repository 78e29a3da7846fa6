//go:build integration

package mqtt_test

import (
	"context"
	"net/url"
	"strconv"
	"testing"
	"time"

	mqttsdk "github.com/Azure/iot-operations-sdk-go"
	"github.com/Azure/iot-operations-sdk-go/internal/wire"
	"github.com/Azure/iot-operations-sdk-go/session"
)

func dialSettings(t *testing.T, server, clientID string) mqttsdk.ConnectionSettings {
	t.Helper()
	u, err := url.Parse(server)
	if err != nil {
		t.Fatalf("parse broker URL %q: %v", server, err)
	}
	port, err := strconv.ParseUint(u.Port(), 10, 16)
	if err != nil {
		t.Fatalf("parse broker port %q: %v", u.Port(), err)
	}
	return mqttsdk.ConnectionSettings{
		Hostname:       u.Hostname(),
		TCPPort:        uint16(port),
		ClientID:       clientID,
		CleanStart:     true,
		ConnectTimeout: 10 * time.Second,
	}
}

func startSession(t *testing.T, settings mqttsdk.ConnectionSettings, opts ...mqttsdk.Option) *mqttsdk.Session {
	t.Helper()
	s := mqttsdk.NewSession(settings, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		exitCtx, exitCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer exitCancel()
		if err := s.ExitHandle().TryExit(exitCtx); err != nil {
			s.ExitHandle().ForceExit()
		}
		<-done
		cancel()
	})

	select {
	case <-s.Monitor().Connected():
	case err := <-done:
		t.Fatalf("session stopped before connecting: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting to connect")
	}
	return s
}

// TestBrokerPublishSubscribeRoundTrip drives a real broker container
// through a QoS1 publish/subscribe round trip end to end.
func TestBrokerPublishSubscribeRoundTrip(t *testing.T) {
	server, cleanup := startMosquitto(t, "")
	defer cleanup()

	sub := startSession(t, dialSettings(t, server, "integration-sub"))
	pub := startSession(t, dialSettings(t, server, "integration-pub"))

	topic := "integration/roundtrip"
	received, unregister, err := sub.Dispatcher().Subscribe(topic, 4)
	if err != nil {
		t.Fatalf("subscribe setup: %v", err)
	}
	defer unregister()

	subCtx, subCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer subCancel()
	subNotifier, err := sub.Subscribe(subCtx, &session.SubscribeRequest{
		Topics: []wire.SubscribeTopic{{Filter: topic, QoS: 1}},
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, err := subNotifier.Wait(subCtx); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	pubCtx, pubCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pubCancel()
	pubNotifier, err := pub.PublishQoS12(pubCtx, &session.PublishQoS12Request{
		Topic:   topic,
		Payload: []byte("hello from the integration suite"),
		QoS:     1,
	})
	if err != nil {
		t.Fatalf("PublishQoS12: %v", err)
	}
	if _, err := pubNotifier.Wait(pubCtx); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case msg := <-received:
		if string(msg.Publish.Payload) != "hello from the integration suite" {
			t.Fatalf("unexpected payload: %q", msg.Publish.Payload)
		}
		msg.Ack.Ack()
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

// TestBrokerSessionStaysConnectedAfterSubscribe verifies that a session
// configured with a short keep-alive and a reconnect policy completes a
// QoS1 SUBSCRIBE against a real broker and still reports itself
// connected afterwards. It does not drop the connection.
func TestBrokerSessionStaysConnectedAfterSubscribe(t *testing.T) {
	server, cleanup := startMosquitto(t, "")
	defer cleanup()

	settings := dialSettings(t, server, "integration-reconnect")
	settings.KeepAlive = 2 * time.Second
	s := startSession(t, settings, mqttsdk.WithReconnectPolicy(
		mqttsdk.NewExponentialBackoffPolicy(50*time.Millisecond, 2*time.Second)))

	topic := "integration/reconnect"
	subCtx, subCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer subCancel()
	notifier, err := s.Subscribe(subCtx, &session.SubscribeRequest{
		Topics: []wire.SubscribeTopic{{Filter: topic, QoS: 1}},
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, err := notifier.Wait(subCtx); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	select {
	case <-s.Monitor().Connected():
	case <-time.After(2 * time.Second):
		t.Fatal("expected session to still be connected")
	}
}
