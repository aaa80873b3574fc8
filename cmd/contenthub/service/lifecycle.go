package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lyzr/contenthub/cmd/contenthub/guard"
	"github.com/lyzr/contenthub/cmd/contenthub/models"
	"github.com/lyzr/contenthub/common/cache"
	"github.com/lyzr/contenthub/common/logger"
	"github.com/lyzr/contenthub/common/telemetry"
)

// publishRetries bounds how often a publish re-reads state after losing
// a supersede race before giving up
const publishRetries = 2

const idempotencyKeyPrefix = "idem:"

// LifecycleService owns the draft, publish, discard and remix
// transitions. All writes go through the version store; this layer adds
// authorization, guard evaluation, idempotency replay and event
// emission on top of the store's atomic primitives.
type LifecycleService struct {
	store     VersionStore
	ids       *IdentityAllocator
	authz     Authorizer
	guard     *guard.Evaluator
	guardExpr string
	events    *EventPublisher
	cache     cache.Cache
	cacheTTL  time.Duration
	tel       *telemetry.Telemetry
	log       *logger.Logger
}

// NewLifecycleService creates a new lifecycle service
func NewLifecycleService(
	store VersionStore,
	ids *IdentityAllocator,
	authz Authorizer,
	guardEval *guard.Evaluator,
	guardExpr string,
	events *EventPublisher,
	c cache.Cache,
	cacheTTL time.Duration,
	tel *telemetry.Telemetry,
	log *logger.Logger,
) *LifecycleService {
	return &LifecycleService{
		store:     store,
		ids:       ids,
		authz:     authz,
		guard:     guardEval,
		guardExpr: guardExpr,
		events:    events,
		cache:     c,
		cacheTTL:  cacheTTL,
		tel:       tel,
		log:       log,
	}
}

// CreateDraftRequest carries the inputs for opening a draft. StaticID
// nil means a brand-new logical item; set, it forks the item's current
// published head.
type CreateDraftRequest struct {
	StaticID       *uuid.UUID
	Kind           models.ContentKind
	Actor          string
	OrgID          string
	Contents       []byte
	Metadata       map[string]interface{}
	IdempotencyKey *string
}

// CreateDraft opens an editable draft. For an existing item the draft
// forks the current published head; an author can hold at most one open
// unpublished branch per item, enforced by the store.
func (s *LifecycleService) CreateDraft(ctx context.Context, req CreateDraftRequest) (*models.VersionRecord, error) {
	defer s.tel.RecordDuration("lifecycle.create_draft", time.Now())

	if req.Actor == "" {
		return nil, fmt.Errorf("actor is required")
	}
	if len(req.Contents) > 0 && !json.Valid(req.Contents) {
		return nil, fmt.Errorf("draft contents: %w", models.ErrInvalidContents)
	}

	if replayed, err := s.replay(ctx, req.IdempotencyKey); err != nil {
		return nil, err
	} else if replayed != nil {
		return replayed, nil
	}

	draft := models.VersionDraft{
		ID:             s.ids.NewVersionID(),
		Kind:           req.Kind,
		BranchType:     models.BranchDraft,
		CreatedBy:      req.Actor,
		OrgID:          req.OrgID,
		Metadata:       req.Metadata,
		Contents:       req.Contents,
		IdempotencyKey: req.IdempotencyKey,
	}

	if req.StaticID == nil {
		if !req.Kind.Valid() {
			return nil, fmt.Errorf("invalid content kind %q", req.Kind)
		}
		draft.StaticID = s.ids.NewStaticID(req.Kind)
	} else {
		head, err := s.store.GetLatestPublished(ctx, *req.StaticID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up published head: %w", err)
		}
		if head == nil || head.IsDeleted {
			return nil, fmt.Errorf("item %s has no published head: %w", *req.StaticID, models.ErrNotFound)
		}

		if err := s.authorizeEdit(ctx, req.Actor, *req.StaticID); err != nil {
			return nil, err
		}

		draft.StaticID = head.StaticID
		draft.Kind = head.Kind
		draft.BranchedFromID = &head.ID
		draft.PreviousVersionID = &head.ID
		if draft.Contents == nil {
			draft.Contents = head.Contents
		}
	}

	record, replayed, err := s.appendOrReplay(ctx, draft.Record(time.Now().UTC()))
	if err != nil {
		return nil, err
	}
	s.rememberIdempotency(ctx, req.IdempotencyKey, record.ID)
	if replayed {
		return record, nil
	}

	s.events.Emit(ctx, EventDraftCreated, record, req.Actor)

	s.log.Info("draft created",
		"static_id", record.StaticID,
		"version_id", record.ID,
		"kind", record.Kind,
		"created_by", record.CreatedBy,
	)

	return record, nil
}

// PublishRequest carries the inputs for promoting a working branch to
// the published head
type PublishRequest struct {
	VersionID              uuid.UUID
	Actor                  string
	MajorChangeDescription *string

	// Metadata merged into the promoted revision on top of the source's
	// metadata (reviewer identity for accepted suggestions)
	ExtraMetadata map[string]interface{}

	// Event name emitted on success; defaults to EventPublished
	Event string
}

// PublishResult is a successful promotion plus any non-fatal warnings
type PublishResult struct {
	Record   *models.VersionRecord   `json:"record"`
	Warnings []models.PublishWarning `json:"warnings,omitempty"`
}

// Publish promotes a live unpublished revision to the new published
// head. The current head and the source branch are both superseded
// atomically with the insert of the new head; losing the supersede race
// triggers a bounded re-read and retry. Forks of a no-longer-current
// head still publish (last writer wins) but carry a staleness warning.
func (s *LifecycleService) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	defer s.tel.RecordDuration("lifecycle.publish", time.Now())

	if req.Actor == "" {
		return nil, fmt.Errorf("actor is required")
	}

	source, err := s.store.GetByID(ctx, req.VersionID)
	if err != nil {
		return nil, err
	}

	if err := s.authorizePublish(ctx, req.Actor, source.StaticID); err != nil {
		return nil, err
	}

	if err := s.checkGuard(source, req.Actor); err != nil {
		return nil, err
	}

	event := req.Event
	if event == "" {
		event = EventPublished
	}

	var lastErr error
	for attempt := 0; attempt < publishRetries; attempt++ {
		if !source.Promotable() {
			return nil, fmt.Errorf("version %s: %w", source.ID, models.ErrNotPromotable)
		}

		head, err := s.store.GetLatestPublished(ctx, source.StaticID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up published head: %w", err)
		}

		var warnings []models.PublishWarning
		if head != nil && source.BranchedFromID != nil && *source.BranchedFromID != head.ID {
			warnings = append(warnings, models.WarningBasedOnStaleVersion)
		}

		newHead := s.buildPublishedRecord(source, head, req)

		supersede := make([]uuid.UUID, 0, 2)
		if head != nil {
			supersede = append(supersede, head.ID)
		}
		supersede = append(supersede, source.ID)

		err = s.store.Promote(ctx, newHead, supersede)
		if err == nil {
			s.events.Emit(ctx, event, newHead, req.Actor)
			s.log.Info("version published",
				"static_id", newHead.StaticID,
				"version_id", newHead.ID,
				"source_id", source.ID,
				"published_by", req.Actor,
				"warnings", len(warnings),
			)
			return &PublishResult{Record: newHead, Warnings: warnings}, nil
		}

		if !errors.Is(err, models.ErrStaleRevision) {
			return nil, err
		}

		// Lost a supersede race. Re-read the source; a concurrent accept
		// or discard may have closed it, otherwise the published head
		// moved and the next pass picks up the new one.
		lastErr = err
		source, err = s.store.GetByID(ctx, source.ID)
		if err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("publish contended on %s: %w", req.VersionID, lastErr)
}

// DiscardDraft closes the caller's open working branch without
// publishing it. The branch stays in history; discarding frees the slot
// so the author can open a fresh draft.
func (s *LifecycleService) DiscardDraft(ctx context.Context, versionID uuid.UUID, actor string) error {
	record, err := s.store.GetByID(ctx, versionID)
	if err != nil {
		return err
	}

	if record.CreatedBy != actor {
		return fmt.Errorf("version %s does not belong to %s: %w", versionID, actor, models.ErrNotFound)
	}
	if !record.IsOpenBranch() {
		return fmt.Errorf("version %s is not an open branch: %w", versionID, models.ErrNotPromotable)
	}

	if err := s.store.Archive(ctx, versionID, map[string]interface{}{
		"discarded_by": actor,
	}); err != nil {
		return err
	}

	record.IsArchived = true
	record.IsLatest = false
	s.events.Emit(ctx, EventDraftDiscarded, record, actor)

	s.log.Info("draft discarded",
		"static_id", record.StaticID,
		"version_id", record.ID,
		"discarded_by", actor,
	)

	return nil
}

// RemixRequest carries the inputs for forking a published item into a
// new independent item
type RemixRequest struct {
	StaticID       uuid.UUID
	Actor          string
	OrgID          string
	Metadata       map[string]interface{}
	IdempotencyKey *string
}

// Remix forks the current published head of an item into a brand-new
// logical item owned by the caller. The fork records its published
// ancestor for provenance but evolves independently afterwards.
func (s *LifecycleService) Remix(ctx context.Context, req RemixRequest) (*models.VersionRecord, error) {
	defer s.tel.RecordDuration("lifecycle.remix", time.Now())

	if req.Actor == "" {
		return nil, fmt.Errorf("actor is required")
	}

	if replayed, err := s.replay(ctx, req.IdempotencyKey); err != nil {
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

	meta := mergeMetadata(req.Metadata, map[string]interface{}{
		"remixed_from_static_id": head.StaticID.String(),
	})

	draft := models.VersionDraft{
		ID:             s.ids.NewVersionID(),
		StaticID:       s.ids.NewStaticID(head.Kind),
		Kind:           head.Kind,
		BranchType:     models.BranchRemix,
		CreatedBy:      req.Actor,
		OrgID:          req.OrgID,
		BranchedFromID: &head.ID,
		Metadata:       meta,
		Contents:       head.Contents,
		IdempotencyKey: req.IdempotencyKey,
	}

	record, replayed, err := s.appendOrReplay(ctx, draft.Record(time.Now().UTC()))
	if err != nil {
		return nil, err
	}
	s.rememberIdempotency(ctx, req.IdempotencyKey, record.ID)
	if replayed {
		return record, nil
	}

	s.events.Emit(ctx, EventRemixed, record, req.Actor)

	s.log.Info("item remixed",
		"source_static_id", req.StaticID,
		"static_id", record.StaticID,
		"version_id", record.ID,
		"created_by", record.CreatedBy,
	)

	return record, nil
}

// buildPublishedRecord assembles the new published head from the source
// branch. Contents and authorship carry over from the source; the
// lineage pointer tracks the published line, not the branch.
func (s *LifecycleService) buildPublishedRecord(source, head *models.VersionRecord, req PublishRequest) *models.VersionRecord {
	meta := mergeMetadata(source.Metadata, req.ExtraMetadata)
	meta = mergeMetadata(meta, map[string]interface{}{
		"published_by": req.Actor,
	})

	draft := models.VersionDraft{
		ID:                     s.ids.NewVersionID(),
		StaticID:               source.StaticID,
		Kind:                   source.Kind,
		BranchType:             models.BranchPublished,
		CreatedBy:              source.CreatedBy,
		OrgID:                  source.OrgID,
		SuggestedBy:            source.SuggestedBy,
		BranchedFromID:         source.BranchedFromID,
		MajorChangeDescription: req.MajorChangeDescription,
		Metadata:               meta,
		Contents:               source.Contents,
	}

	if head != nil {
		draft.PreviousVersionID = &head.ID
	}

	return draft.Record(time.Now().UTC())
}

func (s *LifecycleService) checkGuard(source *models.VersionRecord, actor string) error {
	if s.guard == nil || s.guardExpr == "" {
		return nil
	}

	recordView := map[string]interface{}{
		"static_id":   source.StaticID.String(),
		"version_id":  source.ID.String(),
		"kind":        string(source.Kind),
		"branch_type": string(source.BranchType),
		"created_by":  source.CreatedBy,
		"org_id":      source.OrgID,
		"metadata":    source.Metadata,
	}
	if len(source.Contents) > 0 {
		var contents interface{}
		if err := json.Unmarshal(source.Contents, &contents); err == nil {
			recordView["contents"] = contents
		}
	}

	allowed, err := s.guard.Allow(s.guardExpr, recordView, actor)
	if err != nil {
		return fmt.Errorf("guard evaluation failed: %w", err)
	}
	if !allowed {
		return fmt.Errorf("version %s: %w", source.ID, models.ErrGuardRejected)
	}

	return nil
}

func (s *LifecycleService) authorizeEdit(ctx context.Context, actor string, staticID uuid.UUID) error {
	ok, err := s.authz.CanEdit(ctx, actor, staticID)
	if err != nil {
		return fmt.Errorf("authorization check failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("user %s cannot edit item %s: %w", actor, staticID, models.ErrNotFound)
	}
	return nil
}

func (s *LifecycleService) authorizePublish(ctx context.Context, actor string, staticID uuid.UUID) error {
	ok, err := s.authz.CanPublish(ctx, actor, staticID)
	if err != nil {
		return fmt.Errorf("authorization check failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("user %s cannot publish item %s: %w", actor, staticID, models.ErrNotFound)
	}
	return nil
}

// replay returns the previously created record for an idempotency key,
// checking the cache first and falling back to the store's unique index
// as ground truth.
func (s *LifecycleService) replay(ctx context.Context, key *string) (*models.VersionRecord, error) {
	if key == nil || *key == "" {
		return nil, nil
	}

	if s.cache != nil {
		if val, found, err := s.cache.Get(ctx, idempotencyKeyPrefix+*key); err == nil && found {
			if id, err := uuid.Parse(string(val)); err == nil {
				record, err := s.store.GetByID(ctx, id)
				if err == nil {
					return record, nil
				}
			}
		}
	}

	record, err := s.store.GetByIdempotencyKey(ctx, *key)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

// appendOrReplay inserts the record, treating a collision on the
// idempotency unique index as a replay: a concurrent request carrying
// the same token already created the row, so the winner's record is
// returned instead of an error. The pre-insert replay check only sees
// rows that are already visible; this closes the race window between
// duplicate in-flight requests.
func (s *LifecycleService) appendOrReplay(ctx context.Context, record *models.VersionRecord) (*models.VersionRecord, bool, error) {
	err := s.store.Append(ctx, record)
	if err == nil {
		return record, false, nil
	}
	if record.IdempotencyKey == nil || !errors.Is(err, models.ErrIdempotentReplay) {
		return nil, false, err
	}

	existing, lookupErr := s.store.GetByIdempotencyKey(ctx, *record.IdempotencyKey)
	if lookupErr != nil || existing == nil {
		return nil, false, err
	}
	return existing, true, nil
}

func (s *LifecycleService) rememberIdempotency(ctx context.Context, key *string, id uuid.UUID) {
	if key == nil || *key == "" || s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, idempotencyKeyPrefix+*key, []byte(id.String()), s.cacheTTL); err != nil {
		s.log.Warn("failed to cache idempotency token", "error", err)
	}
}

// mergeMetadata copies base and overlays extra without mutating either
func mergeMetadata(base, extra map[string]interface{}) map[string]interface{} {
	if base == nil && extra == nil {
		return nil
	}
	merged := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
