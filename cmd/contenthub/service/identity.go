package service

import (
	"github.com/google/uuid"
	"github.com/lyzr/contenthub/cmd/contenthub/models"
)

// IdentityAllocator issues the stable logical identifier for a new
// content item and the per-revision identifier for each version row.
// Allocation cannot fail short of entropy exhaustion, which is fatal.
type IdentityAllocator struct{}

// NewIdentityAllocator creates a new identity allocator
func NewIdentityAllocator() *IdentityAllocator {
	return &IdentityAllocator{}
}

// NewStaticID issues the logical item identifier, stable for the item's
// lifetime. Opaque; kind does not influence the value.
func (a *IdentityAllocator) NewStaticID(kind models.ContentKind) uuid.UUID {
	return uuid.New()
}

// NewVersionID issues a revision identifier. UUID v7 keeps revision ids
// time-ordered, which simplifies history ordering.
func (a *IdentityAllocator) NewVersionID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}
