package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/lyzr/contenthub/cmd/contenthub/models"
)

func TestResolve_OwnDraftShadowsHead(t *testing.T) {
	store := newFakeStore()
	lifecycle := newTestLifecycle(store, "")
	resolver := NewResolverService(store, testLogger())
	ctx := context.Background()
	head := seedPublished(t, store, "alice", []byte(`{"v":1}`))

	draft, err := lifecycle.CreateDraft(ctx, CreateDraftRequest{
		StaticID: &head.StaticID,
		Actor:    "bob",
		Contents: []byte(`{"v":"wip"}`),
	})
	if err != nil {
		t.Fatalf("CreateDraft failed: %v", err)
	}

	bobView, err := resolver.Resolve(ctx, head.StaticID, "bob")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !bobView.IsOwnUnpublished || bobView.Record.ID != draft.ID {
		t.Error("author should see their own open draft")
	}

	aliceView, err := resolver.Resolve(ctx, head.StaticID, "alice")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if aliceView.IsOwnUnpublished || aliceView.Record.ID != head.ID {
		t.Error("other viewers should see the published head")
	}
}

func TestResolve_AnonymousViewer(t *testing.T) {
	store := newFakeStore()
	resolver := NewResolverService(store, testLogger())
	head := seedPublished(t, store, "alice", []byte(`{}`))

	view, err := resolver.Resolve(context.Background(), head.StaticID, "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if view.Record.ID != head.ID {
		t.Error("anonymous viewer should see the published head")
	}
}

func TestResolve_UnknownItem(t *testing.T) {
	store := newFakeStore()
	resolver := NewResolverService(store, testLogger())

	_, err := resolver.Resolve(context.Background(), uuid.New(), "alice")
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolve_DraftOnlyItemHiddenFromOthers(t *testing.T) {
	store := newFakeStore()
	lifecycle := newTestLifecycle(store, "")
	resolver := NewResolverService(store, testLogger())
	ctx := context.Background()

	draft, err := lifecycle.CreateDraft(ctx, CreateDraftRequest{
		Kind:     models.KindWidget,
		Actor:    "alice",
		Contents: []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("CreateDraft failed: %v", err)
	}

	// The author sees the unpublished item
	view, err := resolver.Resolve(ctx, draft.StaticID, "alice")
	if err != nil {
		t.Fatalf("author's resolve failed: %v", err)
	}
	if view.Record.ID != draft.ID {
		t.Error("author should see their unpublished item")
	}

	// Nobody else does
	_, err = resolver.Resolve(ctx, draft.StaticID, "bob")
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other viewers, got %v", err)
	}
}
