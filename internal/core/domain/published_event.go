package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PublishedEvent is an event committed to the durable log and made available
// for external consumption. The table is externally owned; this subsystem
// only reads it (plus a batch insert path for test data seeding).
type PublishedEvent struct {
	ID               uuid.UUID
	EventNumber      int64
	StreamID         uuid.UUID
	PositionInStream int64
	Name             string
	Payload          json.RawMessage
	Metadata         json.RawMessage
	CreatedAt        time.Time
}
