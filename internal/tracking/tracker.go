// Package tracking records per (stream, source, component) processing
// progress and captures structured failure information, deduplicated by
// error-class fingerprint.
package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/streamwatch/internal/core/domain"
	"github.com/vietddude/streamwatch/internal/core/fingerprint"
	"github.com/vietddude/streamwatch/internal/infra/storage"
	"github.com/vietddude/streamwatch/internal/tracking/metrics"
)

// Config holds tracker settings.
type Config struct {
	// Fingerprint controls which failure fields participate in the
	// error-class hash. Defaults exclude the line number.
	Fingerprint fingerprint.Options
}

// Tracker is the API consumers report processing outcomes to.
type Tracker struct {
	statuses storage.StreamStatusRepository
	uow      storage.UnitOfWorkFactory
	opts     fingerprint.Options
	log      *slog.Logger
}

// New creates a tracker over the given repositories.
func New(cfg Config, statuses storage.StreamStatusRepository, uow storage.UnitOfWorkFactory) *Tracker {
	return &Tracker{
		statuses: statuses,
		uow:      uow,
		opts:     cfg.Fingerprint,
		log:      slog.Default(),
	}
}

// MarkVisible tells the tracker that events up to lastKnownPosition exist
// for the stream as seen by the component, independent of processing
// outcome. The recorded position never decreases.
func (t *Tracker) MarkVisible(ctx context.Context, streamID uuid.UUID, source string, component domain.Component, lastKnownPosition int64) error {
	return t.statuses.MarkVisible(ctx, streamID, source, component, lastKnownPosition)
}

// RecordSuccess commits a successfully processed position. If the position
// was the current blocking error's, the error pointer is cleared; historical
// error rows are kept.
func (t *Tracker) RecordSuccess(ctx context.Context, streamID uuid.UUID, source string, component domain.Component, position int64) error {
	if err := t.statuses.ApplySuccess(ctx, streamID, source, component, position); err != nil {
		return err
	}
	metrics.EventsProcessed.WithLabelValues(source, string(component)).Inc()
	return nil
}

// RecordFailure captures a failed processing attempt: it fingerprints the
// failure, ensures the error-class catalog entry, appends an occurrence to
// the error log and points the stream's status row at it, all in one unit
// of work. Returns the id of the recorded occurrence.
func (t *Tracker) RecordFailure(ctx context.Context, failure *domain.ProcessingFailure) (uuid.UUID, error) {
	hash := fingerprint.HashWithOptions(
		failure.ExceptionClassName,
		failure.CauseClassName,
		failure.OriginatingClassName,
		failure.OriginatingMethod,
		failure.OriginatingLineNumber,
		t.opts,
	)

	entry := &domain.StreamErrorHash{
		Hash:                  hash,
		ExceptionClassName:    failure.ExceptionClassName,
		OriginatingClassName:  failure.OriginatingClassName,
		OriginatingMethod:     failure.OriginatingMethod,
		OriginatingLineNumber: failure.OriginatingLineNumber,
	}
	if failure.CauseClassName != "" {
		cause := failure.CauseClassName
		entry.CauseClassName = &cause
	}

	details := &domain.StreamErrorDetails{
		ID:               uuid.New(),
		Hash:             hash,
		ExceptionMessage: failure.ExceptionMessage,
		EventName:        failure.EventName,
		EventID:          failure.EventID,
		StreamID:         failure.StreamID,
		PositionInStream: failure.Position,
		ComponentName:    failure.Component,
		Source:           failure.Source,
		FullStackTrace:   failure.StackTrace,
		CreatedAt:        time.Now(),
	}
	if failure.CauseMessage != "" {
		msg := failure.CauseMessage
		details.CauseMessage = &msg
	}

	uow, err := t.uow.Begin(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	defer uow.Rollback()

	if err := uow.EnsureErrorHash(ctx, entry); err != nil {
		return uuid.Nil, err
	}
	if err := uow.RecordStreamError(ctx, details); err != nil {
		return uuid.Nil, err
	}
	if err := uow.MarkStreamFailed(ctx, failure.StreamID, failure.Source, failure.Component, details.ID, failure.Position); err != nil {
		return uuid.Nil, err
	}
	if err := uow.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("failed to record stream failure: %w", err)
	}

	metrics.EventFailures.WithLabelValues(failure.Source, string(failure.Component)).Inc()

	blocked, err := t.statuses.CountBlockedByHash(ctx, hash)
	if err != nil {
		t.log.Warn("Failed to count blocked streams", "hash", hash, "error", err)
	}
	t.log.Error("Event processing failed",
		"streamId", failure.StreamID,
		"source", failure.Source,
		"component", failure.Component,
		"position", failure.Position,
		"eventName", failure.EventName,
		"hash", hash,
		"exception", failure.ExceptionClassName,
		"blockedStreams", blocked,
	)

	return details.ID, nil
}

// Status returns the current row for a triple, or nil when the triple has
// never been seen.
func (t *Tracker) Status(ctx context.Context, streamID uuid.UUID, source string, component domain.Component) (*domain.StreamStatus, error) {
	return t.statuses.Get(ctx, streamID, source, component)
}
