package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lyzr/contenthub/cmd/contenthub/guard"
	"github.com/lyzr/contenthub/cmd/contenthub/models"
	"github.com/lyzr/contenthub/common/logger"
)

func testLogger() *logger.Logger {
	return logger.New("error", "text")
}

func newTestLifecycle(store VersionStore, guardExpr string) *LifecycleService {
	return NewLifecycleService(
		store,
		NewIdentityAllocator(),
		AllowAll{},
		guard.NewEvaluator(),
		guardExpr,
		nil,
		nil,
		time.Hour,
		nil,
		testLogger(),
	)
}

// seedPublished inserts a published head directly into the store
func seedPublished(t *testing.T, store VersionStore, createdBy string, contents []byte) *models.VersionRecord {
	t.Helper()

	draft := models.VersionDraft{
		ID:         uuid.Must(uuid.NewV7()),
		StaticID:   uuid.New(),
		Kind:       models.KindTool,
		BranchType: models.BranchPublished,
		CreatedBy:  createdBy,
		OrgID:      "org-1",
		Contents:   contents,
	}
	record := draft.Record(time.Now().UTC())
	if err := store.Append(context.Background(), record); err != nil {
		t.Fatalf("failed to seed published head: %v", err)
	}
	return record
}

func TestCreateDraft_NewItem(t *testing.T) {
	store := newFakeStore()
	svc := newTestLifecycle(store, "")

	record, err := svc.CreateDraft(context.Background(), CreateDraftRequest{
		Kind:     models.KindTool,
		Actor:    "alice",
		OrgID:    "org-1",
		Contents: []byte(`{"name":"calculator"}`),
	})
	if err != nil {
		t.Fatalf("CreateDraft failed: %v", err)
	}

	if record.StaticID == uuid.Nil {
		t.Error("expected a static id to be allocated")
	}
	if record.BranchType != models.BranchDraft {
		t.Errorf("expected branch_type draft, got %s", record.BranchType)
	}
	if !record.IsLatest {
		t.Error("expected new draft to be latest")
	}
	if record.BranchedFromID != nil {
		t.Error("new item draft should have no published ancestor")
	}
}

func TestCreateDraft_InvalidKind(t *testing.T) {
	store := newFakeStore()
	svc := newTestLifecycle(store, "")

	_, err := svc.CreateDraft(context.Background(), CreateDraftRequest{
		Kind:  "gadget",
		Actor: "alice",
	})
	if err == nil {
		t.Fatal("expected error for invalid kind")
	}
}

func TestCreateDraft_ForksPublishedHead(t *testing.T) {
	store := newFakeStore()
	svc := newTestLifecycle(store, "")
	head := seedPublished(t, store, "alice", []byte(`{"v":1}`))

	record, err := svc.CreateDraft(context.Background(), CreateDraftRequest{
		StaticID: &head.StaticID,
		Actor:    "bob",
		OrgID:    "org-1",
	})
	if err != nil {
		t.Fatalf("CreateDraft failed: %v", err)
	}

	if record.StaticID != head.StaticID {
		t.Error("fork must keep the item's static id")
	}
	if record.BranchedFromID == nil || *record.BranchedFromID != head.ID {
		t.Error("fork must point at the published ancestor")
	}
	if string(record.Contents) != `{"v":1}` {
		t.Errorf("fork should copy head contents, got %s", record.Contents)
	}
}

func TestCreateDraft_ConflictingDraft(t *testing.T) {
	store := newFakeStore()
	svc := newTestLifecycle(store, "")
	head := seedPublished(t, store, "alice", []byte(`{}`))

	if _, err := svc.CreateDraft(context.Background(), CreateDraftRequest{
		StaticID: &head.StaticID,
		Actor:    "bob",
	}); err != nil {
		t.Fatalf("first draft failed: %v", err)
	}

	_, err := svc.CreateDraft(context.Background(), CreateDraftRequest{
		StaticID: &head.StaticID,
		Actor:    "bob",
	})
	if !errors.Is(err, models.ErrConflictingDraft) {
		t.Fatalf("expected ErrConflictingDraft, got %v", err)
	}

	// A different author can still open their own branch
	if _, err := svc.CreateDraft(context.Background(), CreateDraftRequest{
		StaticID: &head.StaticID,
		Actor:    "carol",
	}); err != nil {
		t.Fatalf("draft by another author failed: %v", err)
	}
}

func TestCreateDraft_UnknownItem(t *testing.T) {
	store := newFakeStore()
	svc := newTestLifecycle(store, "")

	missing := uuid.New()
	_, err := svc.CreateDraft(context.Background(), CreateDraftRequest{
		StaticID: &missing,
		Actor:    "alice",
	})
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPublish_FirstPublish(t *testing.T) {
	store := newFakeStore()
	svc := newTestLifecycle(store, "")
	ctx := context.Background()

	draft, err := svc.CreateDraft(ctx, CreateDraftRequest{
		Kind:     models.KindWorkflow,
		Actor:    "alice",
		Contents: []byte(`{"steps":[]}`),
	})
	if err != nil {
		t.Fatalf("CreateDraft failed: %v", err)
	}

	result, err := svc.Publish(ctx, PublishRequest{
		VersionID: draft.ID,
		Actor:     "alice",
	})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	head := result.Record
	if head.BranchType != models.BranchPublished || !head.IsLatest {
		t.Error("expected result to be the live published head")
	}
	if head.PreviousVersionID != nil {
		t.Error("first publish should have no previous version")
	}
	if head.Metadata["published_by"] != "alice" {
		t.Errorf("expected published_by=alice, got %v", head.Metadata["published_by"])
	}
	if len(result.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", result.Warnings)
	}

	// The source draft is superseded but preserved
	source, err := store.GetByID(ctx, draft.ID)
	if err != nil {
		t.Fatalf("source lookup failed: %v", err)
	}
	if source.IsLatest {
		t.Error("source draft should be superseded after publish")
	}
}

func TestPublish_SupersedesPreviousHead(t *testing.T) {
	store := newFakeStore()
	svc := newTestLifecycle(store, "")
	ctx := context.Background()
	head := seedPublished(t, store, "alice", []byte(`{"v":1}`))

	draft, err := svc.CreateDraft(ctx, CreateDraftRequest{
		StaticID: &head.StaticID,
		Actor:    "alice",
		Contents: []byte(`{"v":2}`),
	})
	if err != nil {
		t.Fatalf("CreateDraft failed: %v", err)
	}

	result, err := svc.Publish(ctx, PublishRequest{VersionID: draft.ID, Actor: "alice"})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if result.Record.PreviousVersionID == nil || *result.Record.PreviousVersionID != head.ID {
		t.Error("new head must link to the superseded head")
	}

	old, _ := store.GetByID(ctx, head.ID)
	if old.IsLatest {
		t.Error("old head should be superseded")
	}

	current, _ := store.GetLatestPublished(ctx, head.StaticID)
	if current == nil || current.ID != result.Record.ID {
		t.Error("new head should be the live published head")
	}
}

func TestPublish_StaleBaseWarning(t *testing.T) {
	store := newFakeStore()
	svc := newTestLifecycle(store, "")
	ctx := context.Background()
	head1 := seedPublished(t, store, "alice", []byte(`{"v":1}`))

	// Bob forks head1 before Alice ships a new head
	bobDraft, err := svc.CreateDraft(ctx, CreateDraftRequest{
		StaticID: &head1.StaticID,
		Actor:    "bob",
		Contents: []byte(`{"v":"bob"}`),
	})
	if err != nil {
		t.Fatalf("bob's draft failed: %v", err)
	}

	aliceDraft, err := svc.CreateDraft(ctx, CreateDraftRequest{
		StaticID: &head1.StaticID,
		Actor:    "alice",
		Contents: []byte(`{"v":2}`),
	})
	if err != nil {
		t.Fatalf("alice's draft failed: %v", err)
	}
	if _, err := svc.Publish(ctx, PublishRequest{VersionID: aliceDraft.ID, Actor: "alice"}); err != nil {
		t.Fatalf("alice's publish failed: %v", err)
	}

	// Bob publishes last; last writer wins but the result is flagged
	result, err := svc.Publish(ctx, PublishRequest{VersionID: bobDraft.ID, Actor: "bob"})
	if err != nil {
		t.Fatalf("bob's publish failed: %v", err)
	}

	if len(result.Warnings) != 1 || result.Warnings[0] != models.WarningBasedOnStaleVersion {
		t.Fatalf("expected stale base warning, got %v", result.Warnings)
	}

	current, _ := store.GetLatestPublished(ctx, head1.StaticID)
	if string(current.Contents) != `{"v":"bob"}` {
		t.Errorf("last writer should win, head contents are %s", current.Contents)
	}
}

func TestPublish_NotPromotable(t *testing.T) {
	store := newFakeStore()
	svc := newTestLifecycle(store, "")
	ctx := context.Background()
	head := seedPublished(t, store, "alice", []byte(`{}`))

	// A published head cannot be published again
	_, err := svc.Publish(ctx, PublishRequest{VersionID: head.ID, Actor: "alice"})
	if !errors.Is(err, models.ErrNotPromotable) {
		t.Fatalf("expected ErrNotPromotable, got %v", err)
	}
}

func TestPublish_TwiceFails(t *testing.T) {
	store := newFakeStore()
	svc := newTestLifecycle(store, "")
	ctx := context.Background()

	draft, _ := svc.CreateDraft(ctx, CreateDraftRequest{
		Kind:     models.KindTool,
		Actor:    "alice",
		Contents: []byte(`{}`),
	})
	if _, err := svc.Publish(ctx, PublishRequest{VersionID: draft.ID, Actor: "alice"}); err != nil {
		t.Fatalf("first publish failed: %v", err)
	}

	_, err := svc.Publish(ctx, PublishRequest{VersionID: draft.ID, Actor: "alice"})
	if !errors.Is(err, models.ErrNotPromotable) {
		t.Fatalf("expected ErrNotPromotable on second publish, got %v", err)
	}
}

func TestPublish_ConcurrentSameSource(t *testing.T) {
	store := newFakeStore()
	svc := newTestLifecycle(store, "")
	ctx := context.Background()

	draft, err := svc.CreateDraft(ctx, CreateDraftRequest{
		Kind:     models.KindTool,
		Actor:    "alice",
		Contents: []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("CreateDraft failed: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	successes := make(chan *PublishResult, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := svc.Publish(ctx, PublishRequest{VersionID: draft.ID, Actor: "alice"})
			if err == nil {
				successes <- result
			}
		}()
	}
	wg.Wait()
	close(successes)

	var won []*PublishResult
	for r := range successes {
		won = append(won, r)
	}
	if len(won) != 1 {
		t.Fatalf("expected exactly one publish to win, got %d", len(won))
	}

	// Exactly one live published head afterwards
	history, _ := store.History(ctx, draft.StaticID, 0)
	heads := 0
	for _, r := range history {
		if r.IsPublishedHead() {
			heads++
		}
	}
	if heads != 1 {
		t.Fatalf("expected 1 live published head, got %d", heads)
	}
}

func TestPublish_GuardRejects(t *testing.T) {
	store := newFakeStore()
	svc := newTestLifecycle(store, `record.kind == "tool"`)
	ctx := context.Background()

	draft, _ := svc.CreateDraft(ctx, CreateDraftRequest{
		Kind:     models.KindWorkflow,
		Actor:    "alice",
		Contents: []byte(`{}`),
	})

	_, err := svc.Publish(ctx, PublishRequest{VersionID: draft.ID, Actor: "alice"})
	if !errors.Is(err, models.ErrGuardRejected) {
		t.Fatalf("expected ErrGuardRejected, got %v", err)
	}
}

func TestPublish_GuardAllows(t *testing.T) {
	store := newFakeStore()
	svc := newTestLifecycle(store, `record.kind == "tool" && actor != ""`)
	ctx := context.Background()

	draft, _ := svc.CreateDraft(ctx, CreateDraftRequest{
		Kind:     models.KindTool,
		Actor:    "alice",
		Contents: []byte(`{}`),
	})

	if _, err := svc.Publish(ctx, PublishRequest{VersionID: draft.ID, Actor: "alice"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
}

func TestDiscardDraft_FreesSlot(t *testing.T) {
	store := newFakeStore()
	svc := newTestLifecycle(store, "")
	ctx := context.Background()
	head := seedPublished(t, store, "alice", []byte(`{}`))

	draft, err := svc.CreateDraft(ctx, CreateDraftRequest{
		StaticID: &head.StaticID,
		Actor:    "bob",
	})
	if err != nil {
		t.Fatalf("CreateDraft failed: %v", err)
	}

	if err := svc.DiscardDraft(ctx, draft.ID, "bob"); err != nil {
		t.Fatalf("DiscardDraft failed: %v", err)
	}

	discarded, _ := store.GetByID(ctx, draft.ID)
	if !discarded.IsArchived || discarded.IsLatest {
		t.Error("discarded draft should be archived and superseded")
	}

	// Bob can open a fresh draft now
	if _, err := svc.CreateDraft(ctx, CreateDraftRequest{
		StaticID: &head.StaticID,
		Actor:    "bob",
	}); err != nil {
		t.Fatalf("draft after discard failed: %v", err)
	}
}

func TestDiscardDraft_WrongOwner(t *testing.T) {
	store := newFakeStore()
	svc := newTestLifecycle(store, "")
	ctx := context.Background()
	head := seedPublished(t, store, "alice", []byte(`{}`))

	draft, _ := svc.CreateDraft(ctx, CreateDraftRequest{
		StaticID: &head.StaticID,
		Actor:    "bob",
	})

	err := svc.DiscardDraft(ctx, draft.ID, "mallory")
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign draft, got %v", err)
	}
}

func TestRemix_CreatesNewItem(t *testing.T) {
	store := newFakeStore()
	svc := newTestLifecycle(store, "")
	ctx := context.Background()
	head := seedPublished(t, store, "alice", []byte(`{"v":1}`))

	record, err := svc.Remix(ctx, RemixRequest{
		StaticID: head.StaticID,
		Actor:    "bob",
		OrgID:    "org-2",
	})
	if err != nil {
		t.Fatalf("Remix failed: %v", err)
	}

	if record.StaticID == head.StaticID {
		t.Error("remix must allocate a new static id")
	}
	if record.BranchType != models.BranchRemix {
		t.Errorf("expected branch_type remix, got %s", record.BranchType)
	}
	if record.BranchedFromID == nil || *record.BranchedFromID != head.ID {
		t.Error("remix must record its published ancestor")
	}
	if string(record.Contents) != `{"v":1}` {
		t.Error("remix should copy the head contents")
	}
	if record.Metadata["remixed_from_static_id"] != head.StaticID.String() {
		t.Error("remix should record the source item in metadata")
	}
}

func TestRemix_RequiresPublishedHead(t *testing.T) {
	store := newFakeStore()
	svc := newTestLifecycle(store, "")

	_, err := svc.Remix(context.Background(), RemixRequest{
		StaticID: uuid.New(),
		Actor:    "bob",
	})
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateDraft_IdempotentReplay(t *testing.T) {
	store := newFakeStore()
	svc := newTestLifecycle(store, "")
	ctx := context.Background()

	key := "req-123"
	first, err := svc.CreateDraft(ctx, CreateDraftRequest{
		Kind:           models.KindTool,
		Actor:          "alice",
		Contents:       []byte(`{}`),
		IdempotencyKey: &key,
	})
	if err != nil {
		t.Fatalf("first create failed: %v", err)
	}

	second, err := svc.CreateDraft(ctx, CreateDraftRequest{
		Kind:           models.KindTool,
		Actor:          "alice",
		Contents:       []byte(`{}`),
		IdempotencyKey: &key,
	})
	if err != nil {
		t.Fatalf("replayed create failed: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("replay should return the original record: %s vs %s", first.ID, second.ID)
	}

	history, _ := store.History(ctx, first.StaticID, 0)
	if len(history) != 1 {
		t.Errorf("expected a single record after replay, got %d", len(history))
	}
}

// replayWindowStore hides idempotency rows from lookups a set number of
// times, simulating a duplicate in-flight request whose original row is
// not yet visible to the pre-insert replay check.
type replayWindowStore struct {
	*fakeStore
	mu    sync.Mutex
	hides int
}

func (s *replayWindowStore) GetByIdempotencyKey(ctx context.Context, key string) (*models.VersionRecord, error) {
	s.mu.Lock()
	if s.hides > 0 {
		s.hides--
		s.mu.Unlock()
		return nil, nil
	}
	s.mu.Unlock()
	return s.fakeStore.GetByIdempotencyKey(ctx, key)
}

func TestCreateDraft_IdempotentReplayUnderRace(t *testing.T) {
	store := &replayWindowStore{fakeStore: newFakeStore()}
	svc := newTestLifecycle(store, "")
	ctx := context.Background()

	key := "req-456"
	first, err := svc.CreateDraft(ctx, CreateDraftRequest{
		Kind:           models.KindTool,
		Actor:          "alice",
		Contents:       []byte(`{}`),
		IdempotencyKey: &key,
	})
	if err != nil {
		t.Fatalf("first create failed: %v", err)
	}

	// The retry's replay check misses the row, so its insert collides
	// with the idempotency index and must resolve to the original record
	store.mu.Lock()
	store.hides = 1
	store.mu.Unlock()

	second, err := svc.CreateDraft(ctx, CreateDraftRequest{
		Kind:           models.KindTool,
		Actor:          "alice",
		Contents:       []byte(`{}`),
		IdempotencyKey: &key,
	})
	if err != nil {
		t.Fatalf("racing retry failed: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("racing retry should return the original record: %s vs %s", first.ID, second.ID)
	}

	history, _ := store.History(ctx, first.StaticID, 0)
	if len(history) != 1 {
		t.Errorf("expected a single record after the race, got %d", len(history))
	}
}

func TestCreateDraft_RejectsInvalidContents(t *testing.T) {
	store := newFakeStore()
	svc := newTestLifecycle(store, "")

	_, err := svc.CreateDraft(context.Background(), CreateDraftRequest{
		Kind:     models.KindTool,
		Actor:    "alice",
		Contents: []byte(`{"name":`),
	})
	if !errors.Is(err, models.ErrInvalidContents) {
		t.Fatalf("expected ErrInvalidContents, got %v", err)
	}
}
