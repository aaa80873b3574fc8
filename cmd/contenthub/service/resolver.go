package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lyzr/contenthub/cmd/contenthub/models"
	"github.com/lyzr/contenthub/common/logger"
)

// ResolverService determines which revision is authoritative for a
// viewer: the viewer's own open draft or suggestion shadows the
// published line; everyone else sees the published head. Pure function
// of store state; no caching happens here.
type ResolverService struct {
	store VersionStore
	log   *logger.Logger
}

// NewResolverService creates a new resolver service
func NewResolverService(store VersionStore, log *logger.Logger) *ResolverService {
	return &ResolverService{
		store: store,
		log:   log,
	}
}

// Resolve returns the authoritative revision of a logical item for the
// given viewer. Returns ErrNotFound when the item has no published head
// and the viewer holds no open branch.
func (s *ResolverService) Resolve(ctx context.Context, staticID uuid.UUID, viewerID string) (*models.ResolvedView, error) {
	if viewerID != "" {
		own, err := s.store.GetOpenBranch(ctx, staticID, viewerID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up viewer branch: %w", err)
		}
		if own != nil && own.IsOpenBranch() {
			s.log.Debug("resolved to viewer's unpublished branch",
				"static_id", staticID,
				"version_id", own.ID,
				"branch_type", own.BranchType,
			)
			return &models.ResolvedView{
				Record:           own,
				IsOwnUnpublished: true,
			}, nil
		}
	}

	head, err := s.store.GetLatestPublished(ctx, staticID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up published head: %w", err)
	}
	if head == nil || head.IsArchived || head.IsDeleted {
		return nil, fmt.Errorf("item %s: %w", staticID, models.ErrNotFound)
	}

	return &models.ResolvedView{
		Record: head,
	}, nil
}
