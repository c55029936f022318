package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vietddude/streamwatch/internal/core/domain"
	"github.com/vietddude/streamwatch/internal/infra/storage"
	"github.com/vietddude/streamwatch/internal/tracking/metrics"
)

// ErrorHashRepo implements storage.StreamErrorHashRepository using
// PostgreSQL. Entries are insert-once; ON CONFLICT DO NOTHING absorbs
// concurrent first-insert races for the same hash.
type ErrorHashRepo struct {
	db *DB
}

// NewErrorHashRepo creates a new PostgreSQL error hash catalog repository.
func NewErrorHashRepo(db *DB) *ErrorHashRepo {
	return &ErrorHashRepo{db: db}
}

type errorHashRow struct {
	Hash                  string         `db:"hash"`
	ExceptionClassName    string         `db:"exception_classname"`
	CauseClassName        sql.NullString `db:"cause_classname"`
	OriginatingClassName  string         `db:"originating_classname"`
	OriginatingMethod     string         `db:"originating_method"`
	OriginatingLineNumber int            `db:"originating_line_number"`
}

func (r errorHashRow) toDomain() *domain.StreamErrorHash {
	entry := &domain.StreamErrorHash{
		Hash:                  r.Hash,
		ExceptionClassName:    r.ExceptionClassName,
		OriginatingClassName:  r.OriginatingClassName,
		OriginatingMethod:     r.OriginatingMethod,
		OriginatingLineNumber: r.OriginatingLineNumber,
	}
	if r.CauseClassName.Valid {
		cause := r.CauseClassName.String
		entry.CauseClassName = &cause
	}
	return entry
}

const ensureErrorHashSQL = `
	INSERT INTO stream_error_hash (hash, exception_classname, cause_classname,
	                               originating_classname, originating_method, originating_line_number)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (hash) DO NOTHING
`

// Ensure inserts the entry if its hash is not present. Idempotent.
func (r *ErrorHashRepo) Ensure(ctx context.Context, entry *domain.StreamErrorHash) error {
	res, err := r.db.ExecContext(ctx, ensureErrorHashSQL, errorHashArgs(entry)...)
	if err != nil {
		return storage.WrapError("ensure error hash", err)
	}
	if inserted, err := res.RowsAffected(); err == nil && inserted > 0 {
		metrics.ErrorClassesRecorded.Inc()
	}
	return nil
}

// FindByHash retrieves a catalog entry, or nil when unknown.
func (r *ErrorHashRepo) FindByHash(ctx context.Context, hash string) (*domain.StreamErrorHash, error) {
	query := `
		SELECT hash, exception_classname, cause_classname,
		       originating_classname, originating_method, originating_line_number
		FROM stream_error_hash
		WHERE hash = $1
	`

	var row errorHashRow
	err := r.db.GetContext(ctx, &row, query, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storage.WrapError("find error hash", err)
	}
	return row.toDomain(), nil
}

func errorHashArgs(entry *domain.StreamErrorHash) []any {
	var cause sql.NullString
	if entry.CauseClassName != nil {
		cause = sql.NullString{String: *entry.CauseClassName, Valid: true}
	}
	return []any{
		entry.Hash,
		entry.ExceptionClassName,
		cause,
		entry.OriginatingClassName,
		entry.OriginatingMethod,
		entry.OriginatingLineNumber,
	}
}
