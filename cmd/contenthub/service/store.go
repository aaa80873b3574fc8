package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/lyzr/contenthub/cmd/contenthub/models"
	"github.com/lyzr/contenthub/cmd/contenthub/repository"
)

// VersionStore is the append-only revision ledger the engine mutates
// through. Every mutation is one atomic unit; Promote carries the
// compare-and-swap supersede semantics that protect against lost-update
// publishes.
type VersionStore interface {
	Append(ctx context.Context, record *models.VersionRecord) error
	Promote(ctx context.Context, newHead *models.VersionRecord, supersede []uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.VersionRecord, error)
	GetLatestPublished(ctx context.Context, staticID uuid.UUID) (*models.VersionRecord, error)
	GetOpenBranch(ctx context.Context, staticID uuid.UUID, userID string) (*models.VersionRecord, error)
	History(ctx context.Context, staticID uuid.UUID, limit int) ([]*models.VersionRecord, error)
	Archive(ctx context.Context, id uuid.UUID, extraMeta map[string]interface{}) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	GetByIdempotencyKey(ctx context.Context, key string) (*models.VersionRecord, error)
}

var _ VersionStore = (*repository.VersionRepository)(nil)

// Authorizer supplies authorization decisions from the surrounding
// application. The engine consults it before mutating state but does not
// implement permission logic itself.
type Authorizer interface {
	CanEdit(ctx context.Context, userID string, staticID uuid.UUID) (bool, error)
	CanPublish(ctx context.Context, userID string, staticID uuid.UUID) (bool, error)
}

// AllowAll authorizes every action. Used when the surrounding
// application has not wired a real authorizer yet.
type AllowAll struct{}

func (AllowAll) CanEdit(ctx context.Context, userID string, staticID uuid.UUID) (bool, error) {
	return true, nil
}

func (AllowAll) CanPublish(ctx context.Context, userID string, staticID uuid.UUID) (bool, error) {
	return true, nil
}
