package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/vietddude/streamwatch/internal/core/domain"
)

// RepositoryError wraps storage access failures so callers can distinguish
// infrastructure problems from caller mistakes.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository: %s: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// WrapError wraps err into a RepositoryError, or returns nil when err is nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &RepositoryError{Op: op, Err: err}
}

// StreamStatusRepository tracks per (streamId, source, component) progress.
// Implementations must serialize updates to a given triple; updates to
// different triples are independent.
type StreamStatusRepository interface {
	// MarkVisible raises last_known_position for the triple, creating the
	// row on first sight. The position never decreases.
	MarkVisible(ctx context.Context, streamID uuid.UUID, source string, component domain.Component, lastKnownPosition int64) error

	// ApplySuccess commits a successfully processed position: advances
	// position, recomputes up_to_date, and clears the error pointer when
	// the blocking position was the one processed.
	ApplySuccess(ctx context.Context, streamID uuid.UUID, source string, component domain.Component, position int64) error

	// Get retrieves a single status row, or nil when the triple is unknown.
	Get(ctx context.Context, streamID uuid.UUID, source string, component domain.Component) (*domain.StreamStatus, error)

	// FindByStreamID returns all rows for the stream across sources and
	// components, ordered by position ascending.
	FindByStreamID(ctx context.Context, streamID uuid.UUID) ([]*domain.StreamStatus, error)

	// FindByErrorHash returns rows whose current error belongs to the given
	// error class.
	FindByErrorHash(ctx context.Context, hash string) ([]*domain.StreamStatus, error)

	// FindAllWithErrors returns every row currently blocked on an error.
	FindAllWithErrors(ctx context.Context) ([]*domain.StreamStatus, error)

	// CountBlockedByHash counts rows currently blocked on the given error
	// class.
	CountBlockedByHash(ctx context.Context, hash string) (int, error)
}

// StreamErrorHashRepository is the insert-once, read-many error class
// catalog.
type StreamErrorHashRepository interface {
	// Ensure inserts the entry if its hash is not present. Idempotent;
	// concurrent first-insert races for the same hash must not fail.
	Ensure(ctx context.Context, entry *domain.StreamErrorHash) error

	// FindByHash retrieves a catalog entry, or nil when unknown.
	FindByHash(ctx context.Context, hash string) (*domain.StreamErrorHash, error)
}

// StreamErrorRepository is the append-only log of failure occurrences.
type StreamErrorRepository interface {
	// Record appends one occurrence. Never updates or deletes.
	Record(ctx context.Context, details *domain.StreamErrorDetails) error

	// FindByID retrieves one occurrence, or nil when unknown.
	FindByID(ctx context.Context, id uuid.UUID) (*domain.StreamErrorDetails, error)

	// FindByStreamID returns occurrences for the stream ordered by
	// position_in_stream ascending.
	FindByStreamID(ctx context.Context, streamID uuid.UUID) ([]*domain.StreamErrorDetails, error)

	// CountForHash counts all occurrences of an error class.
	CountForHash(ctx context.Context, hash string) (int, error)

	// CountNonBlockingForHash counts occurrences of an error class that are
	// not the current blocker of any stream.
	CountNonBlockingForHash(ctx context.Context, hash string) (int, error)

	// ActiveErrors summarises every error class currently blocking at least
	// one stream, with affected stream and event counts.
	ActiveErrors(ctx context.Context) ([]*domain.ActiveError, error)
}

// FailureUnitOfWork bundles the three writes of a failure report into one
// atomic unit: catalog upsert, occurrence append, status pointer update.
type FailureUnitOfWork interface {
	EnsureErrorHash(ctx context.Context, entry *domain.StreamErrorHash) error
	RecordStreamError(ctx context.Context, details *domain.StreamErrorDetails) error
	MarkStreamFailed(ctx context.Context, streamID uuid.UUID, source string, component domain.Component, errorID uuid.UUID, errorPosition int64) error
	Commit() error
	Rollback() error
}

// UnitOfWorkFactory opens failure-recording units of work.
type UnitOfWorkFactory interface {
	Begin(ctx context.Context) (FailureUnitOfWork, error)
}

// PublishedEventRepository reads the externally-owned published event table
// in storage order.
type PublishedEventRepository interface {
	// FetchBatch returns up to limit events with event_number greater than
	// afterEventNumber, ordered by event_number ascending.
	FetchBatch(ctx context.Context, afterEventNumber int64, limit int) ([]*domain.PublishedEvent, error)

	// InsertBatch appends events in one round trip. Test data seeding only;
	// production writes belong to the event publisher.
	InsertBatch(ctx context.Context, events []*domain.PublishedEvent) error

	// Count returns the total number of published events.
	Count(ctx context.Context) (int, error)
}
