package query

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/streamwatch/internal/core/domain"
	"github.com/vietddude/streamwatch/internal/infra/storage/memory"
)

type fixture struct {
	service  *Service
	store    *memory.MemoryStorage
	statuses *memory.StreamStatusRepo
}

func newFixture() *fixture {
	store := memory.NewMemoryStorage()
	statuses := memory.NewStreamStatusRepo(store)
	return &fixture{
		service:  NewService(statuses, memory.NewStreamErrorRepo(store), memory.NewErrorHashRepo(store)),
		store:    store,
		statuses: statuses,
	}
}

// recordFailure writes a full failure (catalog entry, occurrence, status
// pointer) the way the tracker does.
func (f *fixture) recordFailure(t *testing.T, streamID uuid.UUID, component domain.Component, position int64, hash string) uuid.UUID {
	t.Helper()
	ctx := context.Background()

	uow, err := memory.NewUnitOfWorkFactory(f.store).Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	entry := &domain.StreamErrorHash{
		Hash:                 hash,
		ExceptionClassName:   "persistence.FlushError",
		OriginatingClassName: "listener.RecipeProjector",
		OriginatingMethod:    "Apply",
	}
	details := &domain.StreamErrorDetails{
		ID:               uuid.New(),
		Hash:             hash,
		ExceptionMessage: "could not execute statement",
		EventName:        "cakeshop.events.recipe-added",
		EventID:          uuid.New(),
		StreamID:         streamID,
		PositionInStream: position,
		ComponentName:    component,
		Source:           "cakeshop",
		FullStackTrace:   "persistence.FlushError: could not execute statement",
		CreatedAt:        time.Now(),
	}
	if err := uow.EnsureErrorHash(ctx, entry); err != nil {
		t.Fatalf("EnsureErrorHash failed: %v", err)
	}
	if err := uow.RecordStreamError(ctx, details); err != nil {
		t.Fatalf("RecordStreamError failed: %v", err)
	}
	if err := uow.MarkStreamFailed(ctx, streamID, "cakeshop", component, details.ID, position); err != nil {
		t.Fatalf("MarkStreamFailed failed: %v", err)
	}
	if err := uow.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	return details.ID
}

func TestFindStreams_ByErrorHash(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	blocked := uuid.New()
	healthy := uuid.New()

	f.recordFailure(t, blocked, domain.ComponentEventListener, 1, "hash-a")
	if err := f.statuses.ApplySuccess(ctx, healthy, "cakeshop", domain.ComponentEventListener, 1); err != nil {
		t.Fatalf("ApplySuccess failed: %v", err)
	}

	streams, err := f.service.FindStreams(ctx, StreamsByErrorHash{Hash: "hash-a"})
	if err != nil {
		t.Fatalf("FindStreams failed: %v", err)
	}
	if len(streams) != 1 || streams[0].StreamID != blocked {
		t.Fatalf("expected only the blocked stream, got %d rows", len(streams))
	}

	none, err := f.service.FindStreams(ctx, StreamsByErrorHash{Hash: "hash-unknown"})
	if err != nil {
		t.Fatalf("FindStreams failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no rows for unknown hash, got %d", len(none))
	}
}

func TestFindStreams_ByStreamID(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	streamID := uuid.New()

	if err := f.statuses.ApplySuccess(ctx, streamID, "cakeshop", domain.ComponentEventListener, 2); err != nil {
		t.Fatalf("ApplySuccess failed: %v", err)
	}
	if err := f.statuses.ApplySuccess(ctx, streamID, "cakeshop", domain.ComponentEventIndexer, 2); err != nil {
		t.Fatalf("ApplySuccess failed: %v", err)
	}

	streams, err := f.service.FindStreams(ctx, StreamsByStreamID{StreamID: streamID})
	if err != nil {
		t.Fatalf("FindStreams failed: %v", err)
	}
	if len(streams) != 2 {
		t.Fatalf("expected both component rows, got %d", len(streams))
	}
	for _, status := range streams {
		if !status.UpToDate {
			t.Errorf("%s row should be up to date", status.Component)
		}
	}
}

func TestFindStreams_WithErrors(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first := uuid.New()
	second := uuid.New()
	f.recordFailure(t, first, domain.ComponentEventListener, 1, "hash-a")
	f.recordFailure(t, second, domain.ComponentEventIndexer, 3, "hash-b")
	if err := f.statuses.ApplySuccess(ctx, uuid.New(), "cakeshop", domain.ComponentEventListener, 1); err != nil {
		t.Fatalf("ApplySuccess failed: %v", err)
	}

	streams, err := f.service.FindStreams(ctx, StreamsWithErrors{})
	if err != nil {
		t.Fatalf("FindStreams failed: %v", err)
	}
	if len(streams) != 2 {
		t.Fatalf("expected the two blocked streams, got %d", len(streams))
	}
}

func TestFindErrors_JoinsCatalogEntry(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	streamID := uuid.New()

	errorID := f.recordFailure(t, streamID, domain.ComponentEventListener, 1, "hash-a")

	byID, err := f.service.FindErrors(ctx, ErrorsByID{ErrorID: errorID})
	if err != nil {
		t.Fatalf("FindErrors failed: %v", err)
	}
	if len(byID) != 1 {
		t.Fatalf("expected one result, got %d", len(byID))
	}
	if byID[0].Details.ID != errorID {
		t.Errorf("unexpected occurrence id: %s", byID[0].Details.ID)
	}
	if byID[0].Class.Hash != "hash-a" || byID[0].Class.ExceptionClassName != "persistence.FlushError" {
		t.Errorf("catalog entry not joined: %#v", byID[0].Class)
	}

	byStream, err := f.service.FindErrors(ctx, ErrorsByStreamID{StreamID: streamID})
	if err != nil {
		t.Fatalf("FindErrors failed: %v", err)
	}
	if len(byStream) != 1 || byStream[0].Details.StreamID != streamID {
		t.Fatalf("expected the stream's occurrence, got %d rows", len(byStream))
	}
}

func TestFindErrors_ByStreamIDOrdersByPosition(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	streamID := uuid.New()

	// Seeded out of order on purpose.
	f.recordFailure(t, streamID, domain.ComponentEventListener, 5, "hash-a")
	f.recordFailure(t, streamID, domain.ComponentEventListener, 1, "hash-a")
	f.recordFailure(t, streamID, domain.ComponentEventIndexer, 3, "hash-b")
	f.recordFailure(t, uuid.New(), domain.ComponentEventListener, 2, "hash-a")

	results, err := f.service.FindErrors(ctx, ErrorsByStreamID{StreamID: streamID})
	if err != nil {
		t.Fatalf("FindErrors failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected the stream's three occurrences, got %d", len(results))
	}
	for i, want := range []int64{1, 3, 5} {
		if results[i].Details.PositionInStream != want {
			t.Errorf("result %d: expected position %d, got %d", i, want, results[i].Details.PositionInStream)
		}
	}
}

func TestFindErrors_UnknownIDReturnsEmpty(t *testing.T) {
	f := newFixture()

	results, err := f.service.FindErrors(context.Background(), ErrorsByID{ErrorID: uuid.New()})
	if err != nil {
		t.Fatalf("FindErrors failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestActiveErrors_CountsBlockedStreamsAndHistoricalEvents(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	streamID := uuid.New()

	f.recordFailure(t, streamID, domain.ComponentEventListener, 1, "hash-a")

	active, err := f.service.ActiveErrors(ctx)
	if err != nil {
		t.Fatalf("ActiveErrors failed: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected one active class, got %d", len(active))
	}
	if active[0].AffectedStreamsCount != 1 {
		t.Errorf("expected affectedStreamsCount 1, got %d", active[0].AffectedStreamsCount)
	}
	if active[0].AffectedEventsCount != 0 {
		t.Errorf("blocking occurrence must not count as affected event, got %d", active[0].AffectedEventsCount)
	}

	// A second failure of the same class at the next position supersedes the
	// first occurrence as the blocker; the first becomes historical.
	f.recordFailure(t, streamID, domain.ComponentEventListener, 2, "hash-a")

	active, err = f.service.ActiveErrors(ctx)
	if err != nil {
		t.Fatalf("ActiveErrors failed: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected one active class, got %d", len(active))
	}
	if active[0].AffectedStreamsCount != 1 || active[0].AffectedEventsCount != 1 {
		t.Errorf("unexpected counts: streams=%d events=%d",
			active[0].AffectedStreamsCount, active[0].AffectedEventsCount)
	}
}

func TestActiveErrors_EmptyWhenNothingBlocked(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	streamID := uuid.New()

	f.recordFailure(t, streamID, domain.ComponentEventListener, 1, "hash-a")
	if err := f.statuses.ApplySuccess(ctx, streamID, "cakeshop", domain.ComponentEventListener, 1); err != nil {
		t.Fatalf("ApplySuccess failed: %v", err)
	}

	active, err := f.service.ActiveErrors(ctx)
	if err != nil {
		t.Fatalf("ActiveErrors failed: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("expected no active classes after recovery, got %d", len(active))
	}
}
