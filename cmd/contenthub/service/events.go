package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lyzr/contenthub/cmd/contenthub/models"
	"github.com/lyzr/contenthub/common/logger"
	"github.com/lyzr/contenthub/common/queue"
)

// Lifecycle event names emitted on the event bus
const (
	EventDraftCreated       = "draft_created"
	EventPublished          = "published"
	EventDraftDiscarded     = "draft_discarded"
	EventRemixed            = "remixed"
	EventSuggestionProposed = "suggestion_proposed"
	EventSuggestionAccepted = "suggestion_accepted"
	EventSuggestionRejected = "suggestion_rejected"
)

// LifecycleEvent is the payload published for external consumers
// (notification delivery lives outside this service)
type LifecycleEvent struct {
	Event     string             `json:"event"`
	StaticID  uuid.UUID          `json:"static_id"`
	VersionID uuid.UUID          `json:"version_id"`
	Kind      models.ContentKind `json:"kind"`
	Actor     string             `json:"actor"`
	OrgID     string             `json:"org_id"`
	At        time.Time          `json:"at"`
}

// EventPublisher emits lifecycle events onto the queue. Emission is
// best-effort; a failed emit never fails the mutation that triggered it.
type EventPublisher struct {
	queue queue.Queue
	topic string
	log   *logger.Logger
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(q queue.Queue, topic string, log *logger.Logger) *EventPublisher {
	return &EventPublisher{
		queue: q,
		topic: topic,
		log:   log,
	}
}

// Emit publishes a lifecycle event keyed by static id
func (p *EventPublisher) Emit(ctx context.Context, event string, record *models.VersionRecord, actor string) {
	if p == nil || p.queue == nil {
		return
	}

	payload, err := json.Marshal(LifecycleEvent{
		Event:     event,
		StaticID:  record.StaticID,
		VersionID: record.ID,
		Kind:      record.Kind,
		Actor:     actor,
		OrgID:     record.OrgID,
		At:        time.Now().UTC(),
	})
	if err != nil {
		p.log.Error("failed to marshal lifecycle event", "event", event, "error", err)
		return
	}

	if err := p.queue.Publish(ctx, p.topic, record.StaticID.String(), payload); err != nil {
		p.log.Warn("failed to publish lifecycle event", "event", event, "error", err)
	}
}
