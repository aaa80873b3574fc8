package models

import "errors"

// Domain error taxonomy. Every failed invariant check surfaces as one of
// these; nothing is silently swallowed.
var (
	// ErrConstraintViolation - an invariant-protecting unique constraint
	// was hit; the caller should re-resolve state and retry or surface
	// "someone else already published / you already have an open draft"
	ErrConstraintViolation = errors.New("version constraint violation")

	// ErrStaleRevision - optimistic supersede check failed; recoverable
	// by re-reading and retrying
	ErrStaleRevision = errors.New("revision already superseded")

	// ErrNotPromotable - attempted transition from a terminal or
	// already-superseded state
	ErrNotPromotable = errors.New("version not promotable")

	// ErrConflictingDraft - author already holds an open unpublished
	// branch for this item
	ErrConflictingDraft = errors.New("author already has an open draft")

	// ErrIdempotentReplay - an insert hit the idempotency unique index;
	// the row for this token already exists and the caller should return
	// it instead of failing the retry
	ErrIdempotentReplay = errors.New("idempotency key already used")

	// ErrNotFound - unknown static id or version id
	ErrNotFound = errors.New("version not found")

	// ErrGuardRejected - the configured publish guard expression
	// evaluated to false
	ErrGuardRejected = errors.New("publish rejected by guard policy")

	// ErrInvalidContents - the submitted contents payload is not valid
	// JSON and can never be stored
	ErrInvalidContents = errors.New("contents must be valid JSON")
)

// PublishWarning is a non-fatal condition attached to a successful
// publish result
type PublishWarning string

const (
	// WarningBasedOnStaleVersion - the source branch was forked from a
	// published revision that is no longer the head; the publish
	// proceeded last-writer-wins
	WarningBasedOnStaleVersion PublishWarning = "based_on_stale_version"
)
