package queue

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryPublishConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	events, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}

	want := Event{Kind: KindRejected, ActorID: "a1", ErrorKind: "not_enrolled", At: time.Now().UTC()}
	if err := q.Publish(ctx, want); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-events:
		if got.Kind != want.Kind || got.ActorID != want.ActorID || got.ErrorKind != want.ErrorKind {
			t.Errorf("got %+v, want %+v", got, want)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestInMemoryPublishRespectsContext(t *testing.T) {
	q := NewInMemory(1)
	ctx := context.Background()
	if err := q.Publish(ctx, Event{Kind: KindAccepted}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	// Queue full, context cancelled: publish must return instead of blocking.
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := q.Publish(cancelled, Event{Kind: KindAccepted}); err == nil {
		t.Error("expected error publishing to full queue with cancelled context")
	}
}
