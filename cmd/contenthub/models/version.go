package models

import (
	"time"

	"github.com/google/uuid"
)

// ContentKind is the type of content item being versioned. Every kind
// shares the same versioning shape; kind only affects the opaque
// contents payload.
type ContentKind string

const (
	KindTool     ContentKind = "tool"
	KindWorkflow ContentKind = "workflow"
	KindWidget   ContentKind = "widget"
)

// Valid reports whether the kind is one of the known content kinds
func (k ContentKind) Valid() bool {
	switch k {
	case KindTool, KindWorkflow, KindWidget:
		return true
	}
	return false
}

// BranchType is the line of revisions a version record belongs to
type BranchType string

const (
	BranchPublished  BranchType = "published"
	BranchDraft      BranchType = "draft"
	BranchRemix      BranchType = "remix"
	BranchSuggestion BranchType = "suggestion"
)

// IsUnpublished reports whether the branch is a personal working branch
// (anything other than the published line)
func (b BranchType) IsUnpublished() bool {
	return b != BranchPublished
}

// VersionRecord is one immutable-once-superseded revision of a logical
// content item. Content fields never change after insert; only is_latest
// and the archival/deletion flags are mutated afterwards.
// Maps to: content_version table
type VersionRecord struct {
	// Unique identifier for this specific revision (UUID v7)
	ID uuid.UUID `db:"id" json:"id"`

	// Stable identifier of the logical item across all its revisions
	StaticID uuid.UUID `db:"static_id" json:"static_id"`

	Kind       ContentKind `db:"kind" json:"kind"`
	BranchType BranchType  `db:"branch_type" json:"branch_type"`

	// True only for the current head of its branch
	IsLatest   bool `db:"is_latest" json:"is_latest"`
	IsArchived bool `db:"is_archived" json:"is_archived"`
	IsDeleted  bool `db:"is_deleted" json:"is_deleted"`

	CreatedBy string `db:"created_by" json:"created_by"`
	OrgID     string `db:"org_id" json:"org_id"`

	// Set when this revision originated as a suggestion
	SuggestedBy *string `db:"suggested_by" json:"suggested_by,omitempty"`

	// Published ancestor this draft/suggestion was forked from
	BranchedFromID *uuid.UUID `db:"branched_from_id" json:"branched_from_id,omitempty"`

	// Immediately prior revision in the same branch lineage
	PreviousVersionID *uuid.UUID `db:"previous_version_id" json:"previous_version_id,omitempty"`

	// Structured note describing the change, captured at promotion time
	MajorChangeDescription *string `db:"major_change_description" json:"major_change_description,omitempty"`

	// Free-form attributes that travel with the revision (icon, keywords,
	// reviewer identity, rejection reason, diff)
	Metadata map[string]interface{} `db:"metadata" json:"metadata,omitempty"`

	// Opaque payload defining the item's behavior
	Contents []byte `db:"contents" json:"contents"`

	// Client-supplied token making Append retries safe
	IdempotencyKey *string `db:"idempotency_key" json:"-"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// IsPublishedHead reports whether this record is the live published head
func (v *VersionRecord) IsPublishedHead() bool {
	return v.BranchType == BranchPublished && v.IsLatest
}

// IsOpenBranch reports whether this record is a live personal working
// branch (the row the open-branch unique index protects)
func (v *VersionRecord) IsOpenBranch() bool {
	return v.BranchType.IsUnpublished() && v.IsLatest && !v.IsDeleted && !v.IsArchived
}

// Promotable reports whether the record can be promoted to published
func (v *VersionRecord) Promotable() bool {
	return v.BranchType.IsUnpublished() && v.IsLatest && !v.IsDeleted && !v.IsArchived
}

// VersionDraft carries the fields for a new revision before it is
// appended to the store; the store assigns nothing, callers provide
// everything through the identity allocator.
type VersionDraft struct {
	ID                     uuid.UUID
	StaticID               uuid.UUID
	Kind                   ContentKind
	BranchType             BranchType
	CreatedBy              string
	OrgID                  string
	SuggestedBy            *string
	BranchedFromID         *uuid.UUID
	PreviousVersionID      *uuid.UUID
	MajorChangeDescription *string
	Metadata               map[string]interface{}
	Contents               []byte
	IdempotencyKey         *string
}

// Record converts the draft into a VersionRecord as the store will
// persist it
func (d *VersionDraft) Record(now time.Time) *VersionRecord {
	return &VersionRecord{
		ID:                     d.ID,
		StaticID:               d.StaticID,
		Kind:                   d.Kind,
		BranchType:             d.BranchType,
		IsLatest:               true,
		CreatedBy:              d.CreatedBy,
		OrgID:                  d.OrgID,
		SuggestedBy:            d.SuggestedBy,
		BranchedFromID:         d.BranchedFromID,
		PreviousVersionID:      d.PreviousVersionID,
		MajorChangeDescription: d.MajorChangeDescription,
		Metadata:               d.Metadata,
		Contents:               d.Contents,
		IdempotencyKey:         d.IdempotencyKey,
		CreatedAt:              now,
	}
}

// ResolvedView is the answer to "which revision is authoritative for
// this viewer"
type ResolvedView struct {
	Record *VersionRecord `json:"record"`

	// True when the returned record is the viewer's own unpublished edit
	// shadowing the published line
	IsOwnUnpublished bool `json:"is_own_unpublished"`
}
