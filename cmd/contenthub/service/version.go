package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lyzr/contenthub/cmd/contenthub/models"
	"github.com/lyzr/contenthub/common/logger"
)

// defaultHistoryLimit caps unbounded history reads
const defaultHistoryLimit = 100

// VersionService is the read and administrative surface over the
// version ledger: direct lookup, full history, archival and soft
// deletion. Lifecycle transitions live in LifecycleService.
type VersionService struct {
	store VersionStore
	authz Authorizer
	log   *logger.Logger
}

// NewVersionService creates a new version service
func NewVersionService(store VersionStore, authz Authorizer, log *logger.Logger) *VersionService {
	return &VersionService{
		store: store,
		authz: authz,
		log:   log,
	}
}

// Get returns a single revision by its version id
func (s *VersionService) Get(ctx context.Context, id uuid.UUID) (*models.VersionRecord, error) {
	return s.store.GetByID(ctx, id)
}

// History returns every revision of a logical item in creation order,
// including superseded, archived and rejected ones. Limit 0 applies the
// default cap; an explicit limit is honored as given so audit readers
// can walk lineages longer than the default.
func (s *VersionService) History(ctx context.Context, staticID uuid.UUID, limit int) ([]*models.VersionRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	records, err := s.store.History(ctx, staticID, limit)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("item %s: %w", staticID, models.ErrNotFound)
	}

	return records, nil
}

// Archive marks a revision archived and removes it from its head slot.
// Archived revisions stay readable through history.
func (s *VersionService) Archive(ctx context.Context, id uuid.UUID, actor string) error {
	record, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}

	ok, err := s.authz.CanEdit(ctx, actor, record.StaticID)
	if err != nil {
		return fmt.Errorf("authorization check failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("user %s cannot archive item %s: %w", actor, record.StaticID, models.ErrNotFound)
	}

	if record.IsArchived {
		return nil
	}

	if err := s.store.Archive(ctx, id, map[string]interface{}{
		"archived_by": actor,
	}); err != nil {
		return err
	}

	s.log.Info("version archived",
		"static_id", record.StaticID,
		"version_id", id,
		"archived_by", actor,
	)

	return nil
}

// SoftDelete hides a revision from every query surface while keeping
// the row for audit. Deleting frees the author's open-branch slot the
// same way discarding does.
func (s *VersionService) SoftDelete(ctx context.Context, id uuid.UUID, actor string) error {
	record, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}

	ok, err := s.authz.CanEdit(ctx, actor, record.StaticID)
	if err != nil {
		return fmt.Errorf("authorization check failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("user %s cannot delete item %s: %w", actor, record.StaticID, models.ErrNotFound)
	}

	if record.IsDeleted {
		return nil
	}

	if err := s.store.SoftDelete(ctx, id); err != nil {
		return err
	}

	s.log.Info("version soft-deleted",
		"static_id", record.StaticID,
		"version_id", id,
		"deleted_by", actor,
	)

	return nil
}
