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

// StreamStatusRepo implements storage.StreamStatusRepository using
// PostgreSQL. Row-level locking on the (stream_id, source, component)
// primary key serializes updates to a triple; guarded upserts keep positions
// monotonic under concurrent writers.
type StreamStatusRepo struct {
	db *DB
}

// NewStreamStatusRepo creates a new PostgreSQL stream status repository.
func NewStreamStatusRepo(db *DB) *StreamStatusRepo {
	return &StreamStatusRepo{db: db}
}

type streamStatusRow struct {
	StreamID            uuid.UUID     `db:"stream_id"`
	Source              string        `db:"source"`
	Component           string        `db:"component"`
	Position            int64         `db:"position"`
	LastKnownPosition   int64         `db:"last_known_position"`
	UpToDate            bool          `db:"up_to_date"`
	StreamErrorID       uuid.NullUUID `db:"stream_error_id"`
	StreamErrorPosition sql.NullInt64 `db:"stream_error_position"`
	UpdatedAt           time.Time     `db:"updated_at"`
}

func (r streamStatusRow) toDomain() *domain.StreamStatus {
	status := &domain.StreamStatus{
		StreamID:          r.StreamID,
		Source:            r.Source,
		Component:         domain.Component(r.Component),
		Position:          r.Position,
		LastKnownPosition: r.LastKnownPosition,
		UpToDate:          r.UpToDate,
		UpdatedAt:         r.UpdatedAt,
	}
	if r.StreamErrorID.Valid {
		id := r.StreamErrorID.UUID
		status.ErrorID = &id
	}
	if r.StreamErrorPosition.Valid {
		pos := r.StreamErrorPosition.Int64
		status.ErrorPosition = &pos
	}
	return status
}

const selectStreamStatusColumns = `
	SELECT stream_id, source, component, position, last_known_position,
	       up_to_date, stream_error_id, stream_error_position, updated_at
	FROM stream_status
`

// MarkVisible raises last_known_position, creating the row on first sight.
// The position never decreases.
func (r *StreamStatusRepo) MarkVisible(
	ctx context.Context,
	streamID uuid.UUID,
	source string,
	component domain.Component,
	lastKnownPosition int64,
) error {
	query := `
		INSERT INTO stream_status (stream_id, source, component, position, last_known_position, up_to_date, updated_at)
		VALUES ($1, $2, $3, 0, $4, $4 = 0, now())
		ON CONFLICT (stream_id, source, component) DO UPDATE SET
			last_known_position = GREATEST(stream_status.last_known_position, EXCLUDED.last_known_position),
			up_to_date = (stream_status.position = GREATEST(stream_status.last_known_position, EXCLUDED.last_known_position))
				AND stream_status.stream_error_id IS NULL,
			updated_at = now()
	`
	_, err := r.db.ExecContext(ctx, query, streamID, source, string(component), lastKnownPosition)
	return storage.WrapError("mark stream visible", err)
}

// ApplySuccess commits a successfully processed position. The whole
// transition runs in one statement so concurrent writers only ever observe
// fully-updated rows.
func (r *StreamStatusRepo) ApplySuccess(
	ctx context.Context,
	streamID uuid.UUID,
	source string,
	component domain.Component,
	position int64,
) error {
	query := `
		INSERT INTO stream_status (stream_id, source, component, position, last_known_position, up_to_date, updated_at)
		VALUES ($1, $2, $3, $4, $4, true, now())
		ON CONFLICT (stream_id, source, component) DO UPDATE SET
			position = GREATEST(stream_status.position, EXCLUDED.position),
			last_known_position = GREATEST(stream_status.last_known_position, EXCLUDED.position),
			stream_error_id = CASE
				WHEN stream_status.stream_error_position = EXCLUDED.position THEN NULL
				ELSE stream_status.stream_error_id
			END,
			stream_error_position = CASE
				WHEN stream_status.stream_error_position = EXCLUDED.position THEN NULL
				ELSE stream_status.stream_error_position
			END,
			up_to_date = (GREATEST(stream_status.position, EXCLUDED.position) = GREATEST(stream_status.last_known_position, EXCLUDED.position))
				AND (stream_status.stream_error_id IS NULL OR stream_status.stream_error_position = EXCLUDED.position),
			updated_at = now()
	`
	_, err := r.db.ExecContext(ctx, query, streamID, source, string(component), position)
	return storage.WrapError("apply stream success", err)
}

// Get retrieves a single status row, or nil when the triple is unknown.
func (r *StreamStatusRepo) Get(
	ctx context.Context,
	streamID uuid.UUID,
	source string,
	component domain.Component,
) (*domain.StreamStatus, error) {
	query := selectStreamStatusColumns + `WHERE stream_id = $1 AND source = $2 AND component = $3`

	var row streamStatusRow
	err := r.db.GetContext(ctx, &row, query, streamID, source, string(component))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storage.WrapError("get stream status", err)
	}
	return row.toDomain(), nil
}

// FindByStreamID returns all rows for the stream ordered by position
// ascending.
func (r *StreamStatusRepo) FindByStreamID(ctx context.Context, streamID uuid.UUID) ([]*domain.StreamStatus, error) {
	query := selectStreamStatusColumns + `WHERE stream_id = $1 ORDER BY position ASC, component ASC`

	var rows []streamStatusRow
	if err := r.db.SelectContext(ctx, &rows, query, streamID); err != nil {
		return nil, storage.WrapError("find stream statuses by stream id", err)
	}
	return toDomainStatuses(rows), nil
}

// FindByErrorHash returns rows whose current error belongs to the given
// error class.
func (r *StreamStatusRepo) FindByErrorHash(ctx context.Context, hash string) ([]*domain.StreamStatus, error) {
	query := `
		SELECT ss.stream_id, ss.source, ss.component, ss.position, ss.last_known_position,
		       ss.up_to_date, ss.stream_error_id, ss.stream_error_position, ss.updated_at
		FROM stream_status ss
		JOIN stream_error se ON se.id = ss.stream_error_id
		WHERE se.hash = $1
		ORDER BY ss.stream_id ASC, ss.position ASC
	`

	var rows []streamStatusRow
	if err := r.db.SelectContext(ctx, &rows, query, hash); err != nil {
		return nil, storage.WrapError("find stream statuses by error hash", err)
	}
	return toDomainStatuses(rows), nil
}

// FindAllWithErrors returns every row currently blocked on an error.
func (r *StreamStatusRepo) FindAllWithErrors(ctx context.Context) ([]*domain.StreamStatus, error) {
	query := selectStreamStatusColumns + `WHERE stream_error_id IS NOT NULL ORDER BY stream_id ASC, position ASC`

	var rows []streamStatusRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, storage.WrapError("find stream statuses with errors", err)
	}
	return toDomainStatuses(rows), nil
}

// CountBlockedByHash counts rows currently blocked on the given error class.
func (r *StreamStatusRepo) CountBlockedByHash(ctx context.Context, hash string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM stream_status ss
		JOIN stream_error se ON se.id = ss.stream_error_id
		WHERE se.hash = $1
	`
	var count int
	if err := r.db.GetContext(ctx, &count, query, hash); err != nil {
		return 0, storage.WrapError("count blocked streams by hash", err)
	}
	return count, nil
}

func toDomainStatuses(rows []streamStatusRow) []*domain.StreamStatus {
	statuses := make([]*domain.StreamStatus, 0, len(rows))
	for _, row := range rows {
		statuses = append(statuses, row.toDomain())
	}
	return statuses
}
