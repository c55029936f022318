package domain

import (
	"time"

	"github.com/google/uuid"
)

// Component is a named consumer role independently tracking its own progress
// through a stream.
type Component string

const (
	ComponentEventListener Component = "EVENT_LISTENER"
	ComponentEventIndexer  Component = "EVENT_INDEXER"
)

// StreamStatus records how far a (stream, source, component) triple has
// advanced and whether it is currently blocked on an error.
type StreamStatus struct {
	StreamID          uuid.UUID
	Source            string
	Component         Component
	Position          int64
	LastKnownPosition int64
	UpToDate          bool
	ErrorID           *uuid.UUID
	ErrorPosition     *int64
	UpdatedAt         time.Time
}

// Blocked reports whether the triple is stuck on an unresolved error.
func (s *StreamStatus) Blocked() bool {
	return s.ErrorID != nil
}
