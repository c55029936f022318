package domain

import (
	"time"

	"github.com/google/uuid"
)

// StreamErrorHash is the canonical description of an error class, keyed by
// its content-derived fingerprint. Immutable once written; many occurrences
// share one entry.
type StreamErrorHash struct {
	Hash                  string
	ExceptionClassName    string
	CauseClassName        *string
	OriginatingClassName  string
	OriginatingMethod     string
	OriginatingLineNumber int
}

// StreamErrorDetails is a single failure occurrence. Append-only; never
// mutated after creation.
type StreamErrorDetails struct {
	ID               uuid.UUID
	Hash             string
	ExceptionMessage string
	CauseMessage     *string
	EventName        string
	EventID          uuid.UUID
	StreamID         uuid.UUID
	PositionInStream int64
	ComponentName    Component
	Source           string
	FullStackTrace   string
	CreatedAt        time.Time
}

// StreamError pairs an occurrence with its error class.
type StreamError struct {
	Details StreamErrorDetails
	Class   StreamErrorHash
}

// ActiveError summarises one error class currently blocking at least one
// stream.
type ActiveError struct {
	Hash                 string
	ExceptionClassName   string
	CauseClassName       *string
	OriginatingClassName string
	OriginatingMethod    string
	AffectedStreamsCount int
	AffectedEventsCount  int
}

// ProcessingFailure carries everything a consumer knows about an event it
// failed to process. Message text and stack trace are recorded per
// occurrence; the class/method fields feed the fingerprint.
type ProcessingFailure struct {
	ExceptionClassName    string
	ExceptionMessage      string
	CauseClassName        string
	CauseMessage          string
	OriginatingClassName  string
	OriginatingMethod     string
	OriginatingLineNumber int
	EventName             string
	EventID               uuid.UUID
	StreamID              uuid.UUID
	Position              int64
	Component             Component
	Source                string
	StackTrace            string
}
