package memory

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"github.com/vietddude/streamwatch/internal/core/domain"
)

// recordFailure seeds one full failure: catalog entry, occurrence and status
// pointer, through the unit of work.
func recordFailure(t *testing.T, store *MemoryStorage, streamID uuid.UUID, position int64, hash string) uuid.UUID {
	t.Helper()
	ctx := context.Background()

	uow, err := NewUnitOfWorkFactory(store).Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := uow.EnsureErrorHash(ctx, &domain.StreamErrorHash{
		Hash:                 hash,
		ExceptionClassName:   "persistence.FlushError",
		OriginatingClassName: "listener.RecipeProjector",
		OriginatingMethod:    "Apply",
	}); err != nil {
		t.Fatalf("EnsureErrorHash failed: %v", err)
	}
	details := &domain.StreamErrorDetails{
		ID:               uuid.New(),
		Hash:             hash,
		EventName:        "cakeshop.events.recipe-added",
		EventID:          uuid.New(),
		StreamID:         streamID,
		PositionInStream: position,
		ComponentName:    domain.ComponentEventListener,
		Source:           "cakeshop",
	}
	if err := uow.RecordStreamError(ctx, details); err != nil {
		t.Fatalf("RecordStreamError failed: %v", err)
	}
	if err := uow.MarkStreamFailed(ctx, streamID, "cakeshop", domain.ComponentEventListener, details.ID, position); err != nil {
		t.Fatalf("MarkStreamFailed failed: %v", err)
	}
	if err := uow.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	return details.ID
}

func TestCountBlockedByHash(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()
	statuses := NewStreamStatusRepo(store)

	recordFailure(t, store, uuid.New(), 1, "hash-a")
	recordFailure(t, store, uuid.New(), 3, "hash-a")
	recordFailure(t, store, uuid.New(), 2, "hash-b")

	count, err := statuses.CountBlockedByHash(ctx, "hash-a")
	if err != nil {
		t.Fatalf("CountBlockedByHash failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 streams blocked on hash-a, got %d", count)
	}

	count, err = statuses.CountBlockedByHash(ctx, "hash-unknown")
	if err != nil {
		t.Fatalf("CountBlockedByHash failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 streams for unknown hash, got %d", count)
	}
}

func TestCountNonBlockingForHash(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()
	errs := NewStreamErrorRepo(store)
	streamID := uuid.New()

	// The second failure of the same class supersedes the first as the
	// stream's blocker; the first occurrence becomes historical.
	recordFailure(t, store, streamID, 1, "hash-a")
	recordFailure(t, store, streamID, 2, "hash-a")

	count, err := errs.CountNonBlockingForHash(ctx, "hash-a")
	if err != nil {
		t.Fatalf("CountNonBlockingForHash failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 historical occurrence, got %d", count)
	}

	blocked, err := NewStreamStatusRepo(store).CountBlockedByHash(ctx, "hash-a")
	if err != nil {
		t.Fatalf("CountBlockedByHash failed: %v", err)
	}
	if blocked != 1 {
		t.Errorf("expected 1 blocked stream, got %d", blocked)
	}
}

func TestPublishedEventCount(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()
	events := NewPublishedEventRepo(store)

	count, err := events.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected empty log, got %d", count)
	}

	batch := []*domain.PublishedEvent{
		{ID: uuid.New(), StreamID: uuid.New(), Name: "cakeshop.events.recipe-added", Payload: json.RawMessage(`{}`)},
		{ID: uuid.New(), StreamID: uuid.New(), Name: "cakeshop.events.recipe-added", Payload: json.RawMessage(`{}`)},
		{ID: uuid.New(), StreamID: uuid.New(), Name: "cakeshop.events.recipe-added", Payload: json.RawMessage(`{}`)},
	}
	if err := events.InsertBatch(ctx, batch); err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}

	count, err = events.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 events, got %d", count)
	}
}
