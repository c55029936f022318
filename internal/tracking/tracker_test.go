package tracking

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/vietddude/streamwatch/internal/core/domain"
	"github.com/vietddude/streamwatch/internal/infra/storage/memory"
)

func newTestTracker() (*Tracker, *memory.MemoryStorage) {
	store := memory.NewMemoryStorage()
	tracker := New(Config{}, memory.NewStreamStatusRepo(store), memory.NewUnitOfWorkFactory(store))
	return tracker, store
}

func testFailure(streamID uuid.UUID, position int64, component domain.Component) *domain.ProcessingFailure {
	return &domain.ProcessingFailure{
		ExceptionClassName:    "persistence.FlushError",
		ExceptionMessage:      "could not execute statement",
		CauseClassName:        "pq.ConstraintViolation",
		CauseMessage:          "null value in column violates not-null constraint",
		OriginatingClassName:  "listener.RecipeProjector",
		OriginatingMethod:     "Apply",
		OriginatingLineNumber: 42,
		EventName:             "cakeshop.events.recipe-added",
		EventID:               uuid.New(),
		StreamID:              streamID,
		Position:              position,
		Component:             component,
		Source:                "cakeshop",
		StackTrace:            "persistence.FlushError: could not execute statement\n\tat listener.RecipeProjector.Apply",
	}
}

func TestRecordFailure_FreezesPositionAndSetsErrorPointer(t *testing.T) {
	tracker, _ := newTestTracker()
	ctx := context.Background()
	streamID := uuid.New()

	if err := tracker.MarkVisible(ctx, streamID, "cakeshop", domain.ComponentEventListener, 1); err != nil {
		t.Fatalf("MarkVisible failed: %v", err)
	}
	errorID, err := tracker.RecordFailure(ctx, testFailure(streamID, 1, domain.ComponentEventListener))
	if err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}

	status, err := tracker.Status(ctx, streamID, "cakeshop", domain.ComponentEventListener)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status == nil {
		t.Fatal("expected a status row")
	}
	if status.Position != 0 {
		t.Errorf("position should stay frozen at 0, got %d", status.Position)
	}
	if status.LastKnownPosition != 1 {
		t.Errorf("expected lastKnownPosition 1, got %d", status.LastKnownPosition)
	}
	if status.UpToDate {
		t.Error("errored stream must not be up to date")
	}
	if status.ErrorID == nil || *status.ErrorID != errorID {
		t.Errorf("expected error pointer %s, got %v", errorID, status.ErrorID)
	}
	if status.ErrorPosition == nil || *status.ErrorPosition != 1 {
		t.Errorf("expected error position 1, got %v", status.ErrorPosition)
	}
}

func TestRecordSuccess_AtBlockingPositionClearsError(t *testing.T) {
	tracker, _ := newTestTracker()
	ctx := context.Background()
	streamID := uuid.New()

	if _, err := tracker.RecordFailure(ctx, testFailure(streamID, 1, domain.ComponentEventListener)); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if err := tracker.RecordSuccess(ctx, streamID, "cakeshop", domain.ComponentEventListener, 1); err != nil {
		t.Fatalf("RecordSuccess failed: %v", err)
	}

	status, err := tracker.Status(ctx, streamID, "cakeshop", domain.ComponentEventListener)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.ErrorID != nil || status.ErrorPosition != nil {
		t.Error("error pointer should be cleared after reprocessing the blocking position")
	}
	if status.Position != 1 {
		t.Errorf("expected position 1, got %d", status.Position)
	}
	if !status.UpToDate {
		t.Error("stream should be up to date after clearing the error")
	}
}

func TestRecordSuccess_BehindWhenBacklogExists(t *testing.T) {
	tracker, _ := newTestTracker()
	ctx := context.Background()
	streamID := uuid.New()

	if err := tracker.MarkVisible(ctx, streamID, "cakeshop", domain.ComponentEventIndexer, 3); err != nil {
		t.Fatalf("MarkVisible failed: %v", err)
	}
	if err := tracker.RecordSuccess(ctx, streamID, "cakeshop", domain.ComponentEventIndexer, 1); err != nil {
		t.Fatalf("RecordSuccess failed: %v", err)
	}

	status, _ := tracker.Status(ctx, streamID, "cakeshop", domain.ComponentEventIndexer)
	if status.UpToDate {
		t.Error("stream with backlog must not be up to date")
	}
	if status.Blocked() {
		t.Error("successful attempt must not leave an error pointer")
	}
	if status.Position != 1 || status.LastKnownPosition != 3 {
		t.Errorf("unexpected positions: %d/%d", status.Position, status.LastKnownPosition)
	}
}

func TestMarkVisible_NeverDecreases(t *testing.T) {
	tracker, _ := newTestTracker()
	ctx := context.Background()
	streamID := uuid.New()

	if err := tracker.MarkVisible(ctx, streamID, "cakeshop", domain.ComponentEventListener, 5); err != nil {
		t.Fatalf("MarkVisible failed: %v", err)
	}
	if err := tracker.MarkVisible(ctx, streamID, "cakeshop", domain.ComponentEventListener, 3); err != nil {
		t.Fatalf("MarkVisible failed: %v", err)
	}

	status, _ := tracker.Status(ctx, streamID, "cakeshop", domain.ComponentEventListener)
	if status.LastKnownPosition != 5 {
		t.Errorf("lastKnownPosition decreased: got %d, want 5", status.LastKnownPosition)
	}
}

func TestRecordFailure_DeduplicatesErrorClasses(t *testing.T) {
	tracker, store := newTestTracker()
	ctx := context.Background()

	firstID, err := tracker.RecordFailure(ctx, testFailure(uuid.New(), 1, domain.ComponentEventListener))
	if err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	secondID, err := tracker.RecordFailure(ctx, testFailure(uuid.New(), 2, domain.ComponentEventListener))
	if err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}

	errs := memory.NewStreamErrorRepo(store)
	first, _ := errs.FindByID(ctx, firstID)
	second, _ := errs.FindByID(ctx, secondID)
	if first == nil || second == nil {
		t.Fatal("expected both occurrences to be recorded")
	}
	if first.Hash != second.Hash {
		t.Errorf("same error class produced different hashes: %s vs %s", first.Hash, second.Hash)
	}

	count, err := errs.CountForHash(ctx, first.Hash)
	if err != nil {
		t.Fatalf("CountForHash failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 occurrences for the class, got %d", count)
	}

	hashes := memory.NewErrorHashRepo(store)
	entry, err := hashes.FindByHash(ctx, first.Hash)
	if err != nil {
		t.Fatalf("FindByHash failed: %v", err)
	}
	if entry == nil {
		t.Fatal("expected exactly one catalog entry")
	}
	if entry.CauseClassName == nil || *entry.CauseClassName != "pq.ConstraintViolation" {
		t.Errorf("unexpected cause class: %v", entry.CauseClassName)
	}
}

func TestScenario_ListenerFailsIndexerSucceeds(t *testing.T) {
	tracker, store := newTestTracker()
	ctx := context.Background()
	streamID := uuid.New()

	if err := tracker.MarkVisible(ctx, streamID, "cakeshop", domain.ComponentEventListener, 1); err != nil {
		t.Fatalf("MarkVisible failed: %v", err)
	}
	if err := tracker.MarkVisible(ctx, streamID, "cakeshop", domain.ComponentEventIndexer, 1); err != nil {
		t.Fatalf("MarkVisible failed: %v", err)
	}

	errorID, err := tracker.RecordFailure(ctx, testFailure(streamID, 1, domain.ComponentEventListener))
	if err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if err := tracker.RecordSuccess(ctx, streamID, "cakeshop", domain.ComponentEventIndexer, 1); err != nil {
		t.Fatalf("RecordSuccess failed: %v", err)
	}

	errs := memory.NewStreamErrorRepo(store)
	occurrence, _ := errs.FindByID(ctx, errorID)
	statuses := memory.NewStreamStatusRepo(store)

	byHash, err := statuses.FindByErrorHash(ctx, occurrence.Hash)
	if err != nil {
		t.Fatalf("FindByErrorHash failed: %v", err)
	}
	if len(byHash) != 1 || byHash[0].Component != domain.ComponentEventListener {
		t.Fatalf("expected exactly the listener row, got %d rows", len(byHash))
	}

	withErrors, err := statuses.FindAllWithErrors(ctx)
	if err != nil {
		t.Fatalf("FindAllWithErrors failed: %v", err)
	}
	if len(withErrors) != 1 || withErrors[0].Component != domain.ComponentEventListener {
		t.Fatalf("expected exactly the listener row, got %d rows", len(withErrors))
	}

	byStream, err := statuses.FindByStreamID(ctx, streamID)
	if err != nil {
		t.Fatalf("FindByStreamID failed: %v", err)
	}
	if len(byStream) != 2 {
		t.Fatalf("expected both component rows, got %d", len(byStream))
	}
	// Ordered by position ascending: the blocked listener (position 0) first.
	if byStream[0].Component != domain.ComponentEventListener || byStream[0].Position != 0 {
		t.Errorf("unexpected first row: %s at %d", byStream[0].Component, byStream[0].Position)
	}
	if byStream[1].Component != domain.ComponentEventIndexer || !byStream[1].UpToDate {
		t.Errorf("unexpected second row: %s upToDate=%v", byStream[1].Component, byStream[1].UpToDate)
	}
}
