package tracker

import (
	"testing"

	"github.com/Azure/iot-operations-sdk-go/internal/wire"
)

func TestInApplicationDequeuesOnlyWhenHeadReady(t *testing.T) {
	app := NewInApplication()
	app.Insert(1)
	app.Insert(2)

	// pkid 2 finishes first but must wait behind pkid 1.
	app.MarkReady(2, &wire.Puback{PacketID: 2})
	if _, ok := app.DequeueReady(); ok {
		t.Fatal("expected no dequeue while head (1) is NotReady")
	}

	app.MarkReady(1, &wire.Puback{PacketID: 1})
	first, ok := app.DequeueReady()
	if !ok || first.PacketID != 1 {
		t.Fatalf("expected pkid 1 first, got %+v", first)
	}
	second, ok := app.DequeueReady()
	if !ok || second.PacketID != 2 {
		t.Fatalf("expected pkid 2 second, got %+v", second)
	}
	if app.Len() != 0 {
		t.Fatalf("expected tracker empty, got %d", app.Len())
	}
}

func TestInApplicationInsertIsIdempotent(t *testing.T) {
	app := NewInApplication()
	app.Insert(1)
	app.Insert(1)
	if app.Len() != 1 {
		t.Fatalf("expected duplicate insert to be a no-op, got len %d", app.Len())
	}
}

func TestInApplicationClear(t *testing.T) {
	app := NewInApplication()
	app.Insert(1)
	app.MarkReady(1, &wire.Puback{PacketID: 1})
	app.Clear()
	if app.Len() != 0 {
		t.Fatalf("expected cleared tracker, got %d", app.Len())
	}
	if _, ok := app.DequeueReady(); ok {
		t.Fatal("expected nothing to dequeue after clear")
	}
}

func TestInApplicationMarkReadyUnknownPkid(t *testing.T) {
	app := NewInApplication()
	if app.MarkReady(42, &wire.Puback{PacketID: 42}) {
		t.Fatal("expected MarkReady on untracked pkid to fail")
	}
}
