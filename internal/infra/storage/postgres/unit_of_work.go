package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/vietddude/streamwatch/internal/core/domain"
	"github.com/vietddude/streamwatch/internal/infra/storage"
	"github.com/vietddude/streamwatch/internal/tracking/metrics"
)

// failureUnitOfWork bundles the three writes of a failure report into a
// single database transaction: catalog upsert, occurrence append and status
// pointer update all succeed or all fail.
type failureUnitOfWork struct {
	tx *sqlx.Tx
}

// Begin opens a failure-recording unit of work. Implements
// storage.UnitOfWorkFactory.
func (db *DB) Begin(ctx context.Context) (storage.FailureUnitOfWork, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, storage.WrapError("begin failure unit of work", err)
	}
	return &failureUnitOfWork{tx: tx}, nil
}

// EnsureErrorHash upserts the catalog entry inside the transaction.
func (u *failureUnitOfWork) EnsureErrorHash(ctx context.Context, entry *domain.StreamErrorHash) error {
	res, err := u.tx.ExecContext(ctx, ensureErrorHashSQL, errorHashArgs(entry)...)
	if err != nil {
		return storage.WrapError("ensure error hash", err)
	}
	if inserted, err := res.RowsAffected(); err == nil && inserted > 0 {
		metrics.ErrorClassesRecorded.Inc()
	}
	return nil
}

// RecordStreamError appends the occurrence inside the transaction.
func (u *failureUnitOfWork) RecordStreamError(ctx context.Context, details *domain.StreamErrorDetails) error {
	_, err := u.tx.ExecContext(ctx, insertStreamErrorSQL, streamErrorArgs(details)...)
	return storage.WrapError("record stream error", err)
}

// MarkStreamFailed points the status row at the new error and freezes
// progress. The committed position stays where the last success left it.
func (u *failureUnitOfWork) MarkStreamFailed(
	ctx context.Context,
	streamID uuid.UUID,
	source string,
	component domain.Component,
	errorID uuid.UUID,
	errorPosition int64,
) error {
	query := `
		INSERT INTO stream_status (stream_id, source, component, position, last_known_position,
		                           up_to_date, stream_error_id, stream_error_position, updated_at)
		VALUES ($1, $2, $3, 0, $5, false, $4, $5, now())
		ON CONFLICT (stream_id, source, component) DO UPDATE SET
			stream_error_id = EXCLUDED.stream_error_id,
			stream_error_position = EXCLUDED.stream_error_position,
			last_known_position = GREATEST(stream_status.last_known_position, EXCLUDED.stream_error_position),
			up_to_date = false,
			updated_at = now()
	`
	_, err := u.tx.ExecContext(ctx, query, streamID, source, string(component), errorID, errorPosition)
	return storage.WrapError("mark stream failed", err)
}

// Commit commits the transaction.
func (u *failureUnitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("transaction already completed")
	}
	err := u.tx.Commit()
	u.tx = nil
	return storage.WrapError("commit failure unit of work", err)
}

// Rollback rolls back the transaction. Safe to call after Commit.
func (u *failureUnitOfWork) Rollback() error {
	if u.tx == nil {
		return nil
	}
	err := u.tx.Rollback()
	u.tx = nil
	return storage.WrapError("rollback failure unit of work", err)
}
