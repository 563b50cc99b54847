package memory

import (
	"context"
	"testing"
	"time"

	"quiz-session-service/internal/activity"
)

func TestHubFansOutPerSession(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()

	chA, cancelA, err := hub.Subscribe(ctx, "s1")
	if err != nil {
		t.Fatalf("subscribe a: %v", err)
	}
	defer cancelA()
	chB, cancelB, err := hub.Subscribe(ctx, "s1")
	if err != nil {
		t.Fatalf("subscribe b: %v", err)
	}
	defer cancelB()
	chOther, cancelOther, err := hub.Subscribe(ctx, "s2")
	if err != nil {
		t.Fatalf("subscribe other: %v", err)
	}
	defer cancelOther()

	if err := hub.Publish(ctx, "s1", activity.Event{Type: "questionStarted"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for _, ch := range []<-chan activity.Event{chA, chB} {
		select {
		case ev := <-ch:
			if ev.Type != "questionStarted" {
				t.Fatalf("unexpected event %q", ev.Type)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber missed broadcast")
		}
	}

	select {
	case ev := <-chOther:
		t.Fatalf("event leaked across sessions: %q", ev.Type)
	default:
	}
}

func TestHubCancelStopsDelivery(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()

	ch, cancel, err := hub.Subscribe(ctx, "s1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()

	if _, open := <-ch; open {
		t.Fatal("expected channel closed after cancel")
	}
	// Publishing to a session with no subscribers is a no-op.
	if err := hub.Publish(ctx, "s1", activity.Event{Type: "gameEnded"}); err != nil {
		t.Fatalf("publish after cancel: %v", err)
	}
}

func TestHubDropsOldestWhenSubscriberLags(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()

	ch, cancel, err := hub.Subscribe(ctx, "s1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	// Overfill the subscriber buffer without reading; publish must not block.
	for i := 0; i < 32; i++ {
		if err := hub.Publish(ctx, "s1", activity.Event{Type: "questionStarted", Payload: i}); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	// The newest event survives at the back of the buffer.
	var last activity.Event
	for {
		select {
		case ev := <-ch:
			last = ev
			continue
		default:
		}
		break
	}
	if last.Payload != 31 {
		t.Fatalf("expected newest event retained, got %v", last.Payload)
	}
}
