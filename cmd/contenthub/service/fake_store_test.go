package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/lyzr/contenthub/cmd/contenthub/models"
)

// fakeStore is an in-memory VersionStore that enforces the same
// invariants the Postgres partial unique indexes enforce, so the
// services can be tested without a database.
type fakeStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*models.VersionRecord
	order   []uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records: make(map[uuid.UUID]*models.VersionRecord),
	}
}

func cloneRecord(r *models.VersionRecord) *models.VersionRecord {
	c := *r
	if r.Metadata != nil {
		c.Metadata = make(map[string]interface{}, len(r.Metadata))
		for k, v := range r.Metadata {
			c.Metadata[k] = v
		}
	}
	if r.Contents != nil {
		c.Contents = append([]byte(nil), r.Contents...)
	}
	return &c
}

func isOpenBranchRow(r *models.VersionRecord) bool {
	return r.IsLatest && r.BranchType != models.BranchPublished && !r.IsDeleted
}

// checkInsert mirrors the partial unique indexes on content_version
func (s *fakeStore) checkInsert(record *models.VersionRecord) error {
	for _, existing := range s.records {
		if record.IdempotencyKey != nil && existing.IdempotencyKey != nil &&
			*record.IdempotencyKey == *existing.IdempotencyKey {
			return fmt.Errorf("duplicate insert for token: %w", models.ErrIdempotentReplay)
		}
		if existing.StaticID != record.StaticID {
			continue
		}
		if record.BranchType == models.BranchPublished && record.IsLatest &&
			existing.BranchType == models.BranchPublished && existing.IsLatest {
			return fmt.Errorf("published head already exists: %w", models.ErrConstraintViolation)
		}
		if record.BranchType != models.BranchPublished && record.IsLatest && !record.IsDeleted &&
			existing.CreatedBy == record.CreatedBy && isOpenBranchRow(existing) {
			return fmt.Errorf("open branch already exists for author: %w", models.ErrConflictingDraft)
		}
	}
	return nil
}

func (s *fakeStore) Append(ctx context.Context, record *models.VersionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkInsert(record); err != nil {
		return err
	}

	s.records[record.ID] = cloneRecord(record)
	s.order = append(s.order, record.ID)
	return nil
}

func (s *fakeStore) Promote(ctx context.Context, newHead *models.VersionRecord, supersede []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range supersede {
		existing, ok := s.records[id]
		if !ok || !existing.IsLatest {
			return fmt.Errorf("version %s: %w", id, models.ErrStaleRevision)
		}
	}

	// Apply supersedes before the insert check, as the transaction would
	superseded := make([]*models.VersionRecord, 0, len(supersede))
	for _, id := range supersede {
		s.records[id].IsLatest = false
		superseded = append(superseded, s.records[id])
	}

	if err := s.checkInsert(newHead); err != nil {
		for _, r := range superseded {
			r.IsLatest = true
		}
		return err
	}

	s.records[newHead.ID] = cloneRecord(newHead)
	s.order = append(s.order, newHead.ID)
	return nil
}

func (s *fakeStore) GetByID(ctx context.Context, id uuid.UUID) (*models.VersionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("version %s: %w", id, models.ErrNotFound)
	}
	return cloneRecord(record), nil
}

func (s *fakeStore) GetLatestPublished(ctx context.Context, staticID uuid.UUID) (*models.VersionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range s.records {
		if record.StaticID == staticID && record.IsLatest && record.BranchType == models.BranchPublished {
			return cloneRecord(record), nil
		}
	}
	return nil, nil
}

func (s *fakeStore) GetOpenBranch(ctx context.Context, staticID uuid.UUID, userID string) (*models.VersionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range s.records {
		if record.StaticID == staticID && record.CreatedBy == userID && isOpenBranchRow(record) {
			return cloneRecord(record), nil
		}
	}
	return nil, nil
}

func (s *fakeStore) History(ctx context.Context, staticID uuid.UUID, limit int) ([]*models.VersionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []*models.VersionRecord
	for _, id := range s.order {
		record := s.records[id]
		if record.StaticID == staticID {
			records = append(records, cloneRecord(record))
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *fakeStore) Archive(ctx context.Context, id uuid.UUID, extraMeta map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return nil
	}
	record.IsArchived = true
	record.IsLatest = false
	if len(extraMeta) > 0 {
		if record.Metadata == nil {
			record.Metadata = make(map[string]interface{})
		}
		for k, v := range extraMeta {
			record.Metadata[k] = v
		}
	}
	return nil
}

func (s *fakeStore) SoftDelete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record, ok := s.records[id]; ok {
		record.IsDeleted = true
		record.IsLatest = false
	}
	return nil
}

func (s *fakeStore) GetByIdempotencyKey(ctx context.Context, key string) (*models.VersionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range s.records {
		if record.IdempotencyKey != nil && *record.IdempotencyKey == key {
			return cloneRecord(record), nil
		}
	}
	return nil, nil
}

var _ VersionStore = (*fakeStore)(nil)
