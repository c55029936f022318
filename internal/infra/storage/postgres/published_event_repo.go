package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/vietddude/streamwatch/internal/core/domain"
	"github.com/vietddude/streamwatch/internal/infra/storage"
	"github.com/vietddude/streamwatch/internal/tracking/metrics"
)

// PublishedEventRepo implements storage.PublishedEventRepository using
// PostgreSQL. The table is externally owned; this repository reads it in
// event_number order plus a multi-row insert path for test data seeding.
type PublishedEventRepo struct {
	db *DB
}

// NewPublishedEventRepo creates a new PostgreSQL published event repository.
func NewPublishedEventRepo(db *DB) *PublishedEventRepo {
	return &PublishedEventRepo{db: db}
}

type publishedEventRow struct {
	ID               uuid.UUID       `db:"id"`
	EventNumber      int64           `db:"event_number"`
	StreamID         uuid.UUID       `db:"stream_id"`
	PositionInStream int64           `db:"position_in_stream"`
	Name             string          `db:"name"`
	Payload          json.RawMessage `db:"payload"`
	Metadata         json.RawMessage `db:"metadata"`
	DateCreated      time.Time       `db:"date_created"`
}

// FetchBatch returns up to limit events with event_number greater than
// afterEventNumber, in storage order.
func (r *PublishedEventRepo) FetchBatch(ctx context.Context, afterEventNumber int64, limit int) ([]*domain.PublishedEvent, error) {
	query := `
		SELECT id, event_number, stream_id, position_in_stream, name, payload, metadata, date_created
		FROM published_event
		WHERE event_number > $1
		ORDER BY event_number ASC
		LIMIT $2
	`

	var rows []publishedEventRow
	if err := r.db.SelectContext(ctx, &rows, query, afterEventNumber, limit); err != nil {
		return nil, storage.WrapError("fetch published events", err)
	}

	events := make([]*domain.PublishedEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, &domain.PublishedEvent{
			ID:               row.ID,
			EventNumber:      row.EventNumber,
			StreamID:         row.StreamID,
			PositionInStream: row.PositionInStream,
			Name:             row.Name,
			Payload:          row.Payload,
			Metadata:         row.Metadata,
			CreatedAt:        row.DateCreated,
		})
	}
	return events, nil
}

// InsertBatch appends events using a multi-row INSERT over unnested arrays.
func (r *PublishedEventRepo) InsertBatch(ctx context.Context, events []*domain.PublishedEvent) error {
	if len(events) == 0 {
		return nil
	}

	ids := make([]string, len(events))
	streamIDs := make([]string, len(events))
	positions := make([]int64, len(events))
	names := make([]string, len(events))
	payloads := make([]string, len(events))
	metadatas := make([]string, len(events))
	createdAts := make([]time.Time, len(events))

	for i, event := range events {
		createdAt := event.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}

		ids[i] = event.ID.String()
		streamIDs[i] = event.StreamID.String()
		positions[i] = event.PositionInStream
		names[i] = event.Name
		payloads[i] = string(event.Payload)
		metadatas[i] = string(event.Metadata)
		createdAts[i] = createdAt
	}

	metrics.DBBatchSize.WithLabelValues("insert_published_events").Observe(float64(len(events)))

	query := `
		INSERT INTO published_event (id, stream_id, position_in_stream, name, payload, metadata, date_created)
		SELECT id::uuid, stream_id::uuid, position_in_stream, name, payload::jsonb, NULLIF(metadata, '')::jsonb, date_created
		FROM UNNEST($1::text[], $2::text[], $3::bigint[], $4::text[], $5::text[], $6::text[], $7::timestamptz[])
			AS t(id, stream_id, position_in_stream, name, payload, metadata, date_created)
	`
	_, err := r.db.ExecContext(
		ctx,
		query,
		pq.Array(ids),
		pq.Array(streamIDs),
		pq.Array(positions),
		pq.Array(names),
		pq.Array(payloads),
		pq.Array(metadatas),
		pq.Array(createdAts),
	)
	return storage.WrapError("insert published events", err)
}

// Count returns the total number of published events.
func (r *PublishedEventRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM published_event`); err != nil {
		return 0, storage.WrapError("count published events", err)
	}
	return count, nil
}
