package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lyzr/contenthub/cmd/contenthub/models"
	"github.com/lyzr/contenthub/common/db"
)

// Names of the partial unique indexes that realize the store invariants.
// Violations are mapped back to domain errors by constraint name.
const (
	publishedHeadIndex = "content_version_published_head"
	openBranchIndex    = "content_version_open_branch"
	idempotencyIndex   = "content_version_idempotency"
)

const versionColumns = `
	id, static_id, kind, branch_type, is_latest, is_archived, is_deleted,
	created_by, org_id, suggested_by, branched_from_id, previous_version_id,
	major_change_description, metadata, contents, idempotency_key, created_at
`

// querier abstracts pgx.Tx and the pool so the insert and read helpers
// work inside and outside transactions
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// VersionRepository is the append-only ledger of content revisions.
// Inserts are immutable; only is_latest and the archival/deletion flags
// are ever updated.
type VersionRepository struct {
	db *db.DB
}

// NewVersionRepository creates a new version repository
func NewVersionRepository(db *db.DB) *VersionRepository {
	return &VersionRepository{db: db}
}

// Append inserts a new revision outside any caller-managed transaction
func (r *VersionRepository) Append(ctx context.Context, record *models.VersionRecord) error {
	return r.insert(ctx, r.db.Pool, record)
}

// AppendTx inserts a new revision inside tx
func (r *VersionRepository) AppendTx(ctx context.Context, tx pgx.Tx, record *models.VersionRecord) error {
	return r.insert(ctx, tx, record)
}

func (r *VersionRepository) insert(ctx context.Context, q querier, record *models.VersionRecord) error {
	query := `
		INSERT INTO content_version (` + versionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	// Both columns are NOT NULL jsonb; empty values are stored as empty
	// objects so later metadata merges stay valid
	metadata := record.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	contents := record.Contents
	if len(contents) == 0 {
		contents = []byte("{}")
	}

	_, err := q.Exec(ctx, query,
		record.ID,
		record.StaticID,
		record.Kind,
		record.BranchType,
		record.IsLatest,
		record.IsArchived,
		record.IsDeleted,
		record.CreatedBy,
		record.OrgID,
		record.SuggestedBy,
		record.BranchedFromID,
		record.PreviousVersionID,
		record.MajorChangeDescription,
		metadata,
		contents,
		record.IdempotencyKey,
		record.CreatedAt,
	)

	if err != nil {
		return mapInsertError(err)
	}

	return nil
}

// mapInsertError translates unique violations on the invariant indexes
// into domain errors
func mapInsertError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case publishedHeadIndex:
			return fmt.Errorf("published head already exists: %w", models.ErrConstraintViolation)
		case openBranchIndex:
			return fmt.Errorf("open branch already exists for author: %w", models.ErrConflictingDraft)
		case idempotencyIndex:
			return fmt.Errorf("duplicate insert for token: %w", models.ErrIdempotentReplay)
		}
		return fmt.Errorf("unique constraint %s violated: %w", pgErr.ConstraintName, models.ErrConstraintViolation)
	}
	return fmt.Errorf("failed to insert version: %w", err)
}

// SupersedeTx atomically demotes a head revision. Fails with
// ErrStaleRevision if the target is no longer the current is_latest
// record, preventing lost-update publishes.
func (r *VersionRepository) SupersedeTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	tag, err := tx.Exec(ctx, `
		UPDATE content_version
		SET is_latest = false
		WHERE id = $1 AND is_latest = true
	`, id)

	if err != nil {
		return fmt.Errorf("failed to supersede version %s: %w", id, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("version %s: %w", id, models.ErrStaleRevision)
	}

	return nil
}

// Promote atomically supersedes the given revisions (CAS on is_latest)
// and appends newHead as the new branch head, all in one transaction.
// Any stale supersede target aborts the whole unit with ErrStaleRevision
// and no partial state is observable.
func (r *VersionRepository) Promote(ctx context.Context, newHead *models.VersionRecord, supersede []uuid.UUID) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		for _, id := range supersede {
			if err := r.SupersedeTx(ctx, tx, id); err != nil {
				return err
			}
		}
		return r.AppendTx(ctx, tx, newHead)
	})
}

// GetByID retrieves a revision by its version id
func (r *VersionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.VersionRecord, error) {
	query := `SELECT ` + versionColumns + ` FROM content_version WHERE id = $1`

	record, err := scanVersion(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("version %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get version %s: %w", id, err)
	}

	return record, nil
}

// GetLatestPublished retrieves the live published head for a logical
// item (the row the published-head index protects), nil when the item was never
// published or the head was superseded away
func (r *VersionRepository) GetLatestPublished(ctx context.Context, staticID uuid.UUID) (*models.VersionRecord, error) {
	query := `
		SELECT ` + versionColumns + `
		FROM content_version
		WHERE static_id = $1 AND is_latest = true AND branch_type = 'published'
	`

	record, err := scanVersion(r.db.QueryRow(ctx, query, staticID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get published head for %s: %w", staticID, err)
	}

	return record, nil
}

// GetOpenBranch retrieves the author's live unpublished branch for a
// logical item (the row the open-branch index protects), nil when none is open
func (r *VersionRepository) GetOpenBranch(ctx context.Context, staticID uuid.UUID, userID string) (*models.VersionRecord, error) {
	query := `
		SELECT ` + versionColumns + `
		FROM content_version
		WHERE static_id = $1 AND created_by = $2
		  AND is_latest = true AND branch_type <> 'published' AND is_deleted = false
	`

	record, err := scanVersion(r.db.QueryRow(ctx, query, staticID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get open branch for %s/%s: %w", staticID, userID, err)
	}

	return record, nil
}

// History retrieves the full lineage of a logical item, oldest first.
// A limit of 0 means no limit.
func (r *VersionRepository) History(ctx context.Context, staticID uuid.UUID, limit int) ([]*models.VersionRecord, error) {
	query := `
		SELECT ` + versionColumns + `
		FROM content_version
		WHERE static_id = $1
		ORDER BY created_at ASC, id ASC
	`
	args := []any{staticID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list history for %s: %w", staticID, err)
	}
	defer rows.Close()

	var records []*models.VersionRecord
	for rows.Next() {
		record, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}

	return records, nil
}

// Archive marks a revision archived and removes it from its branch head.
// Idempotent. Extra metadata, when provided, is merged into the record's
// metadata (reviewer identity, rejection reason).
func (r *VersionRepository) Archive(ctx context.Context, id uuid.UUID, extraMeta map[string]interface{}) error {
	var err error
	if len(extraMeta) > 0 {
		_, err = r.db.Exec(ctx, `
			UPDATE content_version
			SET is_archived = true, is_latest = false, metadata = metadata || $2
			WHERE id = $1
		`, id, extraMeta)
	} else {
		_, err = r.db.Exec(ctx, `
			UPDATE content_version
			SET is_archived = true, is_latest = false
			WHERE id = $1
		`, id)
	}

	if err != nil {
		return fmt.Errorf("failed to archive version %s: %w", id, err)
	}

	return nil
}

// SoftDelete marks a revision deleted; the row is retained for history.
// Idempotent.
func (r *VersionRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		UPDATE content_version
		SET is_deleted = true, is_latest = false
		WHERE id = $1
	`, id)

	if err != nil {
		return fmt.Errorf("failed to soft-delete version %s: %w", id, err)
	}

	return nil
}

// GetByIdempotencyKey retrieves the revision created by a prior request
// carrying the same idempotency token, nil when no such request was made
func (r *VersionRepository) GetByIdempotencyKey(ctx context.Context, key string) (*models.VersionRecord, error) {
	query := `SELECT ` + versionColumns + ` FROM content_version WHERE idempotency_key = $1`

	record, err := scanVersion(r.db.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get version by idempotency key: %w", err)
	}

	return record, nil
}

// scanVersion scans one content_version row
func scanVersion(row pgx.Row) (*models.VersionRecord, error) {
	record := &models.VersionRecord{}
	var createdAt time.Time

	err := row.Scan(
		&record.ID,
		&record.StaticID,
		&record.Kind,
		&record.BranchType,
		&record.IsLatest,
		&record.IsArchived,
		&record.IsDeleted,
		&record.CreatedBy,
		&record.OrgID,
		&record.SuggestedBy,
		&record.BranchedFromID,
		&record.PreviousVersionID,
		&record.MajorChangeDescription,
		&record.Metadata,
		&record.Contents,
		&record.IdempotencyKey,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	record.CreatedAt = createdAt
	return record, nil
}
