package query

import (
	"context"
	"fmt"

	"github.com/vietddude/streamwatch/internal/core/domain"
	"github.com/vietddude/streamwatch/internal/infra/storage"
)

// Service resolves validated criteria against the status and error
// repositories.
type Service struct {
	statuses storage.StreamStatusRepository
	errors   storage.StreamErrorRepository
	hashes   storage.StreamErrorHashRepository
}

// NewService creates a query service over the given repositories.
func NewService(statuses storage.StreamStatusRepository, errors storage.StreamErrorRepository, hashes storage.StreamErrorHashRepository) *Service {
	return &Service{statuses: statuses, errors: errors, hashes: hashes}
}

// FindStreams returns the status rows matching the criteria. An empty result
// is a valid answer, not an error.
func (s *Service) FindStreams(ctx context.Context, criteria StreamCriteria) ([]*domain.StreamStatus, error) {
	switch c := criteria.(type) {
	case StreamsByErrorHash:
		return s.statuses.FindByErrorHash(ctx, c.Hash)
	case StreamsByStreamID:
		return s.statuses.FindByStreamID(ctx, c.StreamID)
	case StreamsWithErrors:
		return s.statuses.FindAllWithErrors(ctx)
	default:
		return nil, fmt.Errorf("unsupported stream criteria %T", criteria)
	}
}

// FindErrors returns error occurrences matching the criteria, each joined
// with its error-class catalog entry.
func (s *Service) FindErrors(ctx context.Context, criteria ErrorCriteria) ([]*domain.StreamError, error) {
	var (
		occurrences []*domain.StreamErrorDetails
		err         error
	)
	switch c := criteria.(type) {
	case ErrorsByStreamID:
		occurrences, err = s.errors.FindByStreamID(ctx, c.StreamID)
	case ErrorsByID:
		var one *domain.StreamErrorDetails
		one, err = s.errors.FindByID(ctx, c.ErrorID)
		if one != nil {
			occurrences = []*domain.StreamErrorDetails{one}
		}
	default:
		return nil, fmt.Errorf("unsupported error criteria %T", criteria)
	}
	if err != nil {
		return nil, err
	}

	// Occurrences of one stream usually share a handful of classes; cache
	// catalog lookups per call.
	classes := make(map[string]*domain.StreamErrorHash)
	out := make([]*domain.StreamError, 0, len(occurrences))
	for _, details := range occurrences {
		class, ok := classes[details.Hash]
		if !ok {
			class, err = s.hashes.FindByHash(ctx, details.Hash)
			if err != nil {
				return nil, err
			}
			if class == nil {
				return nil, fmt.Errorf("error log references unknown hash %s", details.Hash)
			}
			classes[details.Hash] = class
		}
		out = append(out, &domain.StreamError{Details: *details, Class: *class})
	}
	return out, nil
}

// ActiveErrors summarises every error class currently blocking at least one
// stream.
func (s *Service) ActiveErrors(ctx context.Context) ([]*domain.ActiveError, error) {
	return s.errors.ActiveErrors(ctx)
}
