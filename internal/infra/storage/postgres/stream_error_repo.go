package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/streamwatch/internal/core/domain"
	"github.com/vietddude/streamwatch/internal/infra/storage"
)

// StreamErrorRepo implements storage.StreamErrorRepository using PostgreSQL.
// The stream_error table is append-only; rows are never updated or deleted.
type StreamErrorRepo struct {
	db *DB
}

// NewStreamErrorRepo creates a new PostgreSQL stream error repository.
func NewStreamErrorRepo(db *DB) *StreamErrorRepo {
	return &StreamErrorRepo{db: db}
}

type streamErrorRow struct {
	ID               uuid.UUID      `db:"id"`
	Hash             string         `db:"hash"`
	ExceptionMessage string         `db:"exception_message"`
	CauseMessage     sql.NullString `db:"cause_message"`
	EventName        string         `db:"event_name"`
	EventID          uuid.UUID      `db:"event_id"`
	StreamID         uuid.UUID      `db:"stream_id"`
	PositionInStream int64          `db:"position_in_stream"`
	Component        string         `db:"component"`
	Source           string         `db:"source"`
	FullStackTrace   string         `db:"full_stack_trace"`
	DateCreated      time.Time      `db:"date_created"`
}

func (r streamErrorRow) toDomain() *domain.StreamErrorDetails {
	details := &domain.StreamErrorDetails{
		ID:               r.ID,
		Hash:             r.Hash,
		ExceptionMessage: r.ExceptionMessage,
		EventName:        r.EventName,
		EventID:          r.EventID,
		StreamID:         r.StreamID,
		PositionInStream: r.PositionInStream,
		ComponentName:    domain.Component(r.Component),
		Source:           r.Source,
		FullStackTrace:   r.FullStackTrace,
		CreatedAt:        r.DateCreated,
	}
	if r.CauseMessage.Valid {
		msg := r.CauseMessage.String
		details.CauseMessage = &msg
	}
	return details
}

const selectStreamErrorColumns = `
	SELECT id, hash, exception_message, cause_message, event_name, event_id,
	       stream_id, position_in_stream, component, source, full_stack_trace, date_created
	FROM stream_error
`

const insertStreamErrorSQL = `
	INSERT INTO stream_error (id, hash, exception_message, cause_message, event_name, event_id,
	                          stream_id, position_in_stream, component, source, full_stack_trace, date_created)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`

// Record appends one failure occurrence.
func (r *StreamErrorRepo) Record(ctx context.Context, details *domain.StreamErrorDetails) error {
	_, err := r.db.ExecContext(ctx, insertStreamErrorSQL, streamErrorArgs(details)...)
	return storage.WrapError("record stream error", err)
}

// FindByID retrieves one occurrence, or nil when unknown.
func (r *StreamErrorRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.StreamErrorDetails, error) {
	query := selectStreamErrorColumns + `WHERE id = $1`

	var row streamErrorRow
	err := r.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storage.WrapError("find stream error by id", err)
	}
	return row.toDomain(), nil
}

// FindByStreamID returns occurrences for the stream ordered by
// position_in_stream ascending.
func (r *StreamErrorRepo) FindByStreamID(ctx context.Context, streamID uuid.UUID) ([]*domain.StreamErrorDetails, error) {
	query := selectStreamErrorColumns + `WHERE stream_id = $1 ORDER BY position_in_stream ASC, date_created ASC`

	var rows []streamErrorRow
	if err := r.db.SelectContext(ctx, &rows, query, streamID); err != nil {
		return nil, storage.WrapError("find stream errors by stream id", err)
	}

	details := make([]*domain.StreamErrorDetails, 0, len(rows))
	for _, row := range rows {
		details = append(details, row.toDomain())
	}
	return details, nil
}

// CountForHash counts all occurrences of an error class.
func (r *StreamErrorRepo) CountForHash(ctx context.Context, hash string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM stream_error WHERE hash = $1`, hash)
	if err != nil {
		return 0, storage.WrapError("count stream errors by hash", err)
	}
	return count, nil
}

// CountNonBlockingForHash counts occurrences of an error class that are not
// the current blocker of any stream.
func (r *StreamErrorRepo) CountNonBlockingForHash(ctx context.Context, hash string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM stream_error se
		WHERE se.hash = $1
		  AND NOT EXISTS (SELECT 1 FROM stream_status ss WHERE ss.stream_error_id = se.id)
	`
	var count int
	if err := r.db.GetContext(ctx, &count, query, hash); err != nil {
		return 0, storage.WrapError("count non-blocking stream errors by hash", err)
	}
	return count, nil
}

type activeErrorRow struct {
	Hash                 string         `db:"hash"`
	ExceptionClassName   string         `db:"exception_classname"`
	CauseClassName       sql.NullString `db:"cause_classname"`
	OriginatingClassName string         `db:"originating_classname"`
	OriginatingMethod    string         `db:"originating_method"`
	AffectedStreamsCount int            `db:"affected_streams_count"`
	AffectedEventsCount  int            `db:"affected_events_count"`
}

// ActiveErrors summarises every error class currently blocking at least one
// stream.
func (r *StreamErrorRepo) ActiveErrors(ctx context.Context) ([]*domain.ActiveError, error) {
	query := `
		SELECT h.hash,
		       h.exception_classname,
		       h.cause_classname,
		       h.originating_classname,
		       h.originating_method,
		       COUNT(*) AS affected_streams_count,
		       (SELECT COUNT(*)
		        FROM stream_error se2
		        WHERE se2.hash = h.hash
		          AND NOT EXISTS (SELECT 1 FROM stream_status ss2 WHERE ss2.stream_error_id = se2.id)
		       ) AS affected_events_count
		FROM stream_status ss
		JOIN stream_error se ON se.id = ss.stream_error_id
		JOIN stream_error_hash h ON h.hash = se.hash
		GROUP BY h.hash, h.exception_classname, h.cause_classname, h.originating_classname, h.originating_method
		ORDER BY h.hash ASC
	`

	var rows []activeErrorRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, storage.WrapError("summarise active errors", err)
	}

	summaries := make([]*domain.ActiveError, 0, len(rows))
	for _, row := range rows {
		summary := &domain.ActiveError{
			Hash:                 row.Hash,
			ExceptionClassName:   row.ExceptionClassName,
			OriginatingClassName: row.OriginatingClassName,
			OriginatingMethod:    row.OriginatingMethod,
			AffectedStreamsCount: row.AffectedStreamsCount,
			AffectedEventsCount:  row.AffectedEventsCount,
		}
		if row.CauseClassName.Valid {
			cause := row.CauseClassName.String
			summary.CauseClassName = &cause
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func streamErrorArgs(details *domain.StreamErrorDetails) []any {
	var causeMessage sql.NullString
	if details.CauseMessage != nil {
		causeMessage = sql.NullString{String: *details.CauseMessage, Valid: true}
	}
	return []any{
		details.ID,
		details.Hash,
		details.ExceptionMessage,
		causeMessage,
		details.EventName,
		details.EventID,
		details.StreamID,
		details.PositionInStream,
		string(details.ComponentName),
		details.Source,
		details.FullStackTrace,
		details.CreatedAt,
	}
}
