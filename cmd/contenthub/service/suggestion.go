package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/uuid"
	"github.com/lyzr/contenthub/cmd/contenthub/models"
	"github.com/lyzr/contenthub/common/logger"
)

// SuggestionService handles the propose/review flow: a non-owner forks
// the published head into a suggestion branch, and a reviewer either
// accepts it (promoting it through the normal publish path) or rejects
// it with a reason.
type SuggestionService struct {
	store     VersionStore
	ids       *IdentityAllocator
	authz     Authorizer
	lifecycle *LifecycleService
	events    *EventPublisher
	log       *logger.Logger
}

// NewSuggestionService creates a new suggestion service
func NewSuggestionService(
	store VersionStore,
	ids *IdentityAllocator,
	authz Authorizer,
	lifecycle *LifecycleService,
	events *EventPublisher,
	log *logger.Logger,
) *SuggestionService {
	return &SuggestionService{
		store:     store,
		ids:       ids,
		authz:     authz,
		lifecycle: lifecycle,
		events:    events,
		log:       log,
	}
}

// ProposeRequest carries the inputs for opening a suggestion against an
// item's published head
type ProposeRequest struct {
	StaticID       uuid.UUID
	Actor          string
	OrgID          string
	Contents       []byte
	Metadata       map[string]interface{}
	IdempotencyKey *string
}

// Propose forks the current published head into a suggestion branch
// owned by the proposer. A merge diff against the base is captured in
// the suggestion's metadata so reviewers can see what changed without
// diffing payloads themselves.
func (s *SuggestionService) Propose(ctx context.Context, req ProposeRequest) (*models.VersionRecord, error) {
	if req.Actor == "" {
		return nil, fmt.Errorf("actor is required")
	}
	if len(req.Contents) == 0 {
		return nil, fmt.Errorf("suggestion contents are required")
	}
	if !json.Valid(req.Contents) {
		return nil, fmt.Errorf("suggestion contents: %w", models.ErrInvalidContents)
	}

	if replayed, err := s.lifecycle.replay(ctx, req.IdempotencyKey); err != nil {
		return nil, err
	} else if replayed != nil {
		return replayed, nil
	}

	head, err := s.store.GetLatestPublished(ctx, req.StaticID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up published head: %w", err)
	}
	if head == nil || head.IsArchived || head.IsDeleted {
		return nil, fmt.Errorf("item %s has no published head: %w", req.StaticID, models.ErrNotFound)
	}

	meta := req.Metadata
	if diff, err := jsonpatch.CreateMergePatch(head.Contents, req.Contents); err != nil {
		s.log.Warn("failed to compute suggestion diff",
			"static_id", req.StaticID,
			"error", err,
		)
	} else {
		meta = mergeMetadata(meta, map[string]interface{}{
			"diff": string(diff),
		})
	}

	actor := req.Actor
	draft := models.VersionDraft{
		ID:             s.ids.NewVersionID(),
		StaticID:       head.StaticID,
		Kind:           head.Kind,
		BranchType:     models.BranchSuggestion,
		CreatedBy:      actor,
		OrgID:          req.OrgID,
		SuggestedBy:    &actor,
		BranchedFromID: &head.ID,
		Metadata:       meta,
		Contents:       req.Contents,
		IdempotencyKey: req.IdempotencyKey,
	}

	record, replayed, err := s.lifecycle.appendOrReplay(ctx, draft.Record(time.Now().UTC()))
	if err != nil {
		return nil, err
	}
	s.lifecycle.rememberIdempotency(ctx, req.IdempotencyKey, record.ID)
	if replayed {
		return record, nil
	}

	s.events.Emit(ctx, EventSuggestionProposed, record, req.Actor)

	s.log.Info("suggestion proposed",
		"static_id", record.StaticID,
		"version_id", record.ID,
		"suggested_by", req.Actor,
	)

	return record, nil
}

// PreviewResult shows what accepting a suggestion would produce against
// the current published head
type PreviewResult struct {
	Suggestion *models.VersionRecord `json:"suggestion"`

	// The suggestion's diff rebased onto the current head's contents
	Preview json.RawMessage `json:"preview"`

	// True when the head moved since the suggestion was proposed; the
	// preview then differs from the suggestion's own contents
	Stale bool `json:"stale"`
}

// Preview applies the suggestion's captured diff to the current
// published head, so reviewers see the effective result even when the
// head has moved since the suggestion was proposed.
func (s *SuggestionService) Preview(ctx context.Context, suggestionID uuid.UUID) (*PreviewResult, error) {
	suggestion, err := s.store.GetByID(ctx, suggestionID)
	if err != nil {
		return nil, err
	}
	if suggestion.BranchType != models.BranchSuggestion {
		return nil, fmt.Errorf("version %s is not a suggestion: %w", suggestionID, models.ErrNotPromotable)
	}

	head, err := s.store.GetLatestPublished(ctx, suggestion.StaticID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up published head: %w", err)
	}
	if head == nil {
		return nil, fmt.Errorf("item %s has no published head: %w", suggestion.StaticID, models.ErrNotFound)
	}

	result := &PreviewResult{
		Suggestion: suggestion,
		Preview:    suggestion.Contents,
		Stale:      suggestion.BranchedFromID != nil && *suggestion.BranchedFromID != head.ID,
	}

	diff, ok := suggestion.Metadata["diff"].(string)
	if !ok {
		return result, nil
	}

	rebased, err := jsonpatch.MergePatch(head.Contents, []byte(diff))
	if err != nil {
		return nil, fmt.Errorf("failed to apply suggestion diff: %w", err)
	}
	result.Preview = rebased

	return result, nil
}

// Accept promotes a suggestion to the new published head through the
// normal publish path, recording the reviewer's identity on the
// promoted revision.
func (s *SuggestionService) Accept(ctx context.Context, suggestionID uuid.UUID, reviewer string, changeDescription *string) (*PublishResult, error) {
	suggestion, err := s.store.GetByID(ctx, suggestionID)
	if err != nil {
		return nil, err
	}
	if suggestion.BranchType != models.BranchSuggestion {
		return nil, fmt.Errorf("version %s is not a suggestion: %w", suggestionID, models.ErrNotPromotable)
	}

	return s.lifecycle.Publish(ctx, PublishRequest{
		VersionID:              suggestionID,
		Actor:                  reviewer,
		MajorChangeDescription: changeDescription,
		ExtraMetadata: map[string]interface{}{
			"reviewed_by": reviewer,
		},
		Event: EventSuggestionAccepted,
	})
}

// Reject closes a suggestion without publishing it, keeping it in
// history with the reviewer's identity and reason attached
func (s *SuggestionService) Reject(ctx context.Context, suggestionID uuid.UUID, reviewer, reason string) error {
	suggestion, err := s.store.GetByID(ctx, suggestionID)
	if err != nil {
		return err
	}
	if suggestion.BranchType != models.BranchSuggestion {
		return fmt.Errorf("version %s is not a suggestion: %w", suggestionID, models.ErrNotPromotable)
	}
	if !suggestion.IsOpenBranch() {
		return fmt.Errorf("suggestion %s already resolved: %w", suggestionID, models.ErrNotPromotable)
	}

	ok, err := s.authz.CanPublish(ctx, reviewer, suggestion.StaticID)
	if err != nil {
		return fmt.Errorf("authorization check failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("user %s cannot review item %s: %w", reviewer, suggestion.StaticID, models.ErrNotFound)
	}

	meta := map[string]interface{}{
		"reviewed_by": reviewer,
	}
	if reason != "" {
		meta["rejection_reason"] = reason
	}

	if err := s.store.Archive(ctx, suggestionID, meta); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("suggestion %s already resolved: %w", suggestionID, models.ErrNotPromotable)
		}
		return err
	}

	suggestion.IsArchived = true
	suggestion.IsLatest = false
	s.events.Emit(ctx, EventSuggestionRejected, suggestion, reviewer)

	s.log.Info("suggestion rejected",
		"static_id", suggestion.StaticID,
		"version_id", suggestion.ID,
		"reviewed_by", reviewer,
	)

	return nil
}
