package tracker

import (
	"errors"
	"testing"

	"github.com/Azure/iot-operations-sdk-go/internal/notify"
	"github.com/Azure/iot-operations-sdk-go/internal/wire"
)

func entry(kind OutgoingKind, pkid uint16) *Entry {
	return &Entry{Kind: kind, PacketID: pkid, Notifier: notify.New()}
}

func TestReplayPacketsOrdersPubrelBeforePublish(t *testing.T) {
	inf := NewInflight()
	inf.InsertPublishQoS1(entry(KindPublishQoS1, 1))
	inf.InsertPublishQoS2(entry(KindPublishQoS2, 2))
	inf.PromoteToPubrel(2, entry(KindPubrel, 2))
	inf.InsertPublishQoS1(entry(KindPublishQoS1, 3))

	replay := inf.ReplayPackets()
	if len(replay) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(replay))
	}
	if replay[0].PacketID != 2 || replay[0].Kind != KindPubrel {
		t.Fatalf("expected PUBREL first, got %+v", replay[0])
	}
	if replay[1].PacketID != 1 || replay[2].PacketID != 3 {
		t.Fatalf("expected QoS1 publishes in insertion order, got %d, %d", replay[1].PacketID, replay[2].PacketID)
	}
}

func TestPromoteToPubrelMovesBetweenSets(t *testing.T) {
	inf := NewInflight()
	inf.InsertPublishQoS2(entry(KindPublishQoS2, 5))
	old, ok := inf.PromoteToPubrel(5, entry(KindPubrel, 5))
	if !ok || old.PacketID != 5 {
		t.Fatalf("expected promotion to succeed")
	}
	if _, stillThere := inf.FailPublishQoS2(5); stillThere {
		t.Fatal("expected QoS2-awaiting-PUBREC entry to be gone after promotion")
	}
	if _, ok := inf.TakePubrel(5); !ok {
		t.Fatal("expected PUBREL entry to be present")
	}
}

func TestCancelConnectionScopedClearsSubUnsubOnly(t *testing.T) {
	inf := NewInflight()
	inf.InsertSubUnsub(entry(KindSubscribe, 1))
	inf.InsertPublishQoS1(entry(KindPublishQoS1, 2))

	freed := inf.CancelConnectionScoped(errors.New("disconnected"))
	if len(freed) != 1 || freed[0] != 1 {
		t.Fatalf("expected only pkid 1 freed, got %v", freed)
	}
	if inf.InflightCount() != 1 {
		t.Fatalf("expected QoS1 publish to survive, inflight count %d", inf.InflightCount())
	}
}

func TestCancelSessionScopedClearsReplayState(t *testing.T) {
	inf := NewInflight()
	e1 := entry(KindPublishQoS1, 1)
	inf.InsertPublishQoS1(e1)
	e2 := entry(KindPublishQoS2, 2)
	inf.InsertPublishQoS2(e2)

	cancelErr := errors.New("session expired")
	freed := inf.CancelSessionScoped(cancelErr)
	if len(freed) != 2 {
		t.Fatalf("expected 2 freed pkids, got %v", freed)
	}
	if inf.InflightCount() != 0 {
		t.Fatalf("expected tracker empty, got %d", inf.InflightCount())
	}
	res := e1.Notifier.Result()
	if !errors.Is(res.Err, cancelErr) {
		t.Fatalf("expected notifier cancelled with session-expired error, got %v", res.Err)
	}
	if len(inf.ReplayPackets()) != 0 {
		t.Fatal("expected replay queue empty after session-scoped cancel")
	}
}

func TestTakePublishQoS1RemovesEntry(t *testing.T) {
	inf := NewInflight()
	inf.InsertPublishQoS1(&Entry{Kind: KindPublishQoS1, PacketID: 9, Packet: &wire.Publish{PacketID: 9}, Notifier: notify.New()})
	e, ok := inf.TakePublishQoS1(9)
	if !ok || e.PacketID != 9 {
		t.Fatalf("expected to take entry 9")
	}
	if _, ok := inf.TakePublishQoS1(9); ok {
		t.Fatal("expected entry removed after take")
	}
}
