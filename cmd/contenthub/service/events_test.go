package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lyzr/contenthub/cmd/contenthub/models"
	"github.com/lyzr/contenthub/common/queue"
)

func TestEmit_PublishesLifecycleEvent(t *testing.T) {
	log := testLogger()
	q := queue.NewMemoryQueue(log)
	defer q.Close()

	received := make(chan []byte, 1)
	if err := q.Subscribe(context.Background(), "content.lifecycle", func(ctx context.Context, key string, value []byte) error {
		received <- value
		return nil
	}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	publisher := NewEventPublisher(q, "content.lifecycle", log)
	record := &models.VersionRecord{
		ID:       uuid.Must(uuid.NewV7()),
		StaticID: uuid.New(),
		Kind:     models.KindTool,
		OrgID:    "org-1",
	}

	publisher.Emit(context.Background(), EventPublished, record, "alice")

	select {
	case payload := <-received:
		var event LifecycleEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			t.Fatalf("failed to unmarshal event: %v", err)
		}
		if event.Event != EventPublished {
			t.Errorf("expected event %q, got %q", EventPublished, event.Event)
		}
		if event.StaticID != record.StaticID || event.VersionID != record.ID {
			t.Error("event must carry the record identifiers")
		}
		if event.Actor != "alice" {
			t.Errorf("expected actor alice, got %q", event.Actor)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for lifecycle event")
	}
}

func TestEmit_NilPublisherIsSafe(t *testing.T) {
	var publisher *EventPublisher

	// Must not panic
	publisher.Emit(context.Background(), EventPublished, &models.VersionRecord{}, "alice")
}
