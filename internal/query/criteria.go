// Package query answers operator queries over stream statuses and stream
// errors. Criteria are tagged variants built by validating parsers that
// enforce the exactly-one-of rule before any lookup runs.
package query

import (
	"fmt"

	"github.com/google/uuid"
)

// InvalidQueryError reports malformed or contradictory query criteria. It is
// a caller error, surfaced as 400, never a storage error.
type InvalidQueryError struct {
	Message string
}

func (e *InvalidQueryError) Error() string {
	return e.Message
}

func invalidQuery(message string) error {
	return &InvalidQueryError{Message: message}
}

// StreamCriteria selects exactly one way of looking up stream statuses.
type StreamCriteria interface {
	isStreamCriteria()
}

// StreamsByErrorHash selects streams currently blocked on an error class.
type StreamsByErrorHash struct {
	Hash string
}

// StreamsByStreamID selects every status row of one stream.
type StreamsByStreamID struct {
	StreamID uuid.UUID
}

// StreamsWithErrors selects all streams currently blocked on any error.
type StreamsWithErrors struct{}

func (StreamsByErrorHash) isStreamCriteria() {}
func (StreamsByStreamID) isStreamCriteria()  {}
func (StreamsWithErrors) isStreamCriteria()  {}

// ParseStreamCriteria builds a StreamCriteria from raw query parameter
// values (empty string means absent). Exactly one of errorHash, streamID and
// hasError must be supplied.
func ParseStreamCriteria(errorHash, streamID, hasError string) (StreamCriteria, error) {
	supplied := 0
	for _, v := range []string{errorHash, streamID, hasError} {
		if v != "" {
			supplied++
		}
	}
	if supplied != 1 {
		return nil, invalidQuery("Exactly one query parameter(errorHash/streamId/hasError) must be provided")
	}

	switch {
	case errorHash != "":
		return StreamsByErrorHash{Hash: errorHash}, nil
	case streamID != "":
		id, err := uuid.Parse(streamID)
		if err != nil {
			return nil, invalidQuery(fmt.Sprintf("streamId is not a valid UUID: '%s'", streamID))
		}
		return StreamsByStreamID{StreamID: id}, nil
	default:
		if hasError != "true" {
			// The legacy message names the wrong parameter. Operator tooling
			// matches on it, so it is kept verbatim.
			return nil, invalidQuery("Accepted values for errorHash: true")
		}
		return StreamsWithErrors{}, nil
	}
}

// ErrorCriteria selects exactly one way of looking up stream errors.
type ErrorCriteria interface {
	isErrorCriteria()
}

// ErrorsByStreamID selects every error occurrence of one stream.
type ErrorsByStreamID struct {
	StreamID uuid.UUID
}

// ErrorsByID selects a single error occurrence.
type ErrorsByID struct {
	ErrorID uuid.UUID
}

func (ErrorsByStreamID) isErrorCriteria() {}
func (ErrorsByID) isErrorCriteria()       {}

// ParseErrorCriteria builds an ErrorCriteria from raw query parameter values
// (empty string means absent). Exactly one of streamID and errorID must be
// supplied.
func ParseErrorCriteria(streamID, errorID string) (ErrorCriteria, error) {
	switch {
	case streamID == "" && errorID == "":
		return nil, invalidQuery("Please set either 'streamId' or 'errorId' as request parameters")
	case streamID != "" && errorID != "":
		return nil, invalidQuery("Please set either 'streamId' or 'errorId' as request parameters, not both")
	case streamID != "":
		id, err := uuid.Parse(streamID)
		if err != nil {
			return nil, invalidQuery(fmt.Sprintf("streamId is not a valid UUID: '%s'", streamID))
		}
		return ErrorsByStreamID{StreamID: id}, nil
	default:
		id, err := uuid.Parse(errorID)
		if err != nil {
			return nil, invalidQuery(fmt.Sprintf("errorId is not a valid UUID: '%s'", errorID))
		}
		return ErrorsByID{ErrorID: id}, nil
	}
}
