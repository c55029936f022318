package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/streamwatch/internal/core/domain"
	"github.com/vietddude/streamwatch/internal/infra/storage"
	"github.com/vietddude/streamwatch/internal/tracking/metrics"
)

// MemoryStorage backs all repositories with in-process maps. Used by tests
// and by db-less runs.
type MemoryStorage struct {
	mu        sync.RWMutex
	statuses  map[statusKey]*domain.StreamStatus
	hashes    map[string]*domain.StreamErrorHash
	errs      map[uuid.UUID]*domain.StreamErrorDetails
	errOrder  []uuid.UUID
	published []*domain.PublishedEvent
	nextEvent int64
}

type statusKey struct {
	streamID  uuid.UUID
	source    string
	component domain.Component
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		statuses: make(map[statusKey]*domain.StreamStatus),
		hashes:   make(map[string]*domain.StreamErrorHash),
		errs:     make(map[uuid.UUID]*domain.StreamErrorDetails),
	}
}

func copyStatus(s *domain.StreamStatus) *domain.StreamStatus {
	cp := *s
	if s.ErrorID != nil {
		id := *s.ErrorID
		cp.ErrorID = &id
	}
	if s.ErrorPosition != nil {
		pos := *s.ErrorPosition
		cp.ErrorPosition = &pos
	}
	return &cp
}

func copyDetails(d *domain.StreamErrorDetails) *domain.StreamErrorDetails {
	cp := *d
	if d.CauseMessage != nil {
		msg := *d.CauseMessage
		cp.CauseMessage = &msg
	}
	return &cp
}

func copyHash(h *domain.StreamErrorHash) *domain.StreamErrorHash {
	cp := *h
	if h.CauseClassName != nil {
		cause := *h.CauseClassName
		cp.CauseClassName = &cause
	}
	return &cp
}

// locked mutations, shared between repos and the unit of work

func (s *MemoryStorage) markVisibleLocked(streamID uuid.UUID, source string, component domain.Component, lastKnownPosition int64) {
	key := statusKey{streamID, source, component}
	status, ok := s.statuses[key]
	if !ok {
		status = &domain.StreamStatus{StreamID: streamID, Source: source, Component: component}
		s.statuses[key] = status
	}
	if lastKnownPosition > status.LastKnownPosition {
		status.LastKnownPosition = lastKnownPosition
	}
	status.UpToDate = status.Position == status.LastKnownPosition && status.ErrorID == nil
	status.UpdatedAt = time.Now()
}

func (s *MemoryStorage) applySuccessLocked(streamID uuid.UUID, source string, component domain.Component, position int64) {
	key := statusKey{streamID, source, component}
	status, ok := s.statuses[key]
	if !ok {
		status = &domain.StreamStatus{StreamID: streamID, Source: source, Component: component}
		s.statuses[key] = status
	}
	if position > status.Position {
		status.Position = position
	}
	if position > status.LastKnownPosition {
		status.LastKnownPosition = position
	}
	if status.ErrorPosition != nil && *status.ErrorPosition == position {
		status.ErrorID = nil
		status.ErrorPosition = nil
	}
	status.UpToDate = status.Position == status.LastKnownPosition && status.ErrorID == nil
	status.UpdatedAt = time.Now()
}

func (s *MemoryStorage) markFailedLocked(streamID uuid.UUID, source string, component domain.Component, errorID uuid.UUID, errorPosition int64) {
	key := statusKey{streamID, source, component}
	status, ok := s.statuses[key]
	if !ok {
		status = &domain.StreamStatus{StreamID: streamID, Source: source, Component: component}
		s.statuses[key] = status
	}
	id := errorID
	pos := errorPosition
	status.ErrorID = &id
	status.ErrorPosition = &pos
	if errorPosition > status.LastKnownPosition {
		status.LastKnownPosition = errorPosition
	}
	status.UpToDate = false
	status.UpdatedAt = time.Now()
}

func (s *MemoryStorage) ensureHashLocked(entry *domain.StreamErrorHash) {
	if _, ok := s.hashes[entry.Hash]; !ok {
		s.hashes[entry.Hash] = copyHash(entry)
		metrics.ErrorClassesRecorded.Inc()
	}
}

func (s *MemoryStorage) recordErrorLocked(details *domain.StreamErrorDetails) {
	cp := copyDetails(details)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.errs[cp.ID] = cp
	s.errOrder = append(s.errOrder, cp.ID)
}

func (s *MemoryStorage) blockedStatusesLocked(hash string) []*domain.StreamStatus {
	var out []*domain.StreamStatus
	for _, status := range s.statuses {
		if status.ErrorID == nil {
			continue
		}
		details, ok := s.errs[*status.ErrorID]
		if !ok || details.Hash != hash {
			continue
		}
		out = append(out, copyStatus(status))
	}
	sortStatuses(out)
	return out
}

func sortStatuses(statuses []*domain.StreamStatus) {
	sort.Slice(statuses, func(i, j int) bool {
		a, b := statuses[i], statuses[j]
		if a.StreamID != b.StreamID {
			return a.StreamID.String() < b.StreamID.String()
		}
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		return a.Component < b.Component
	})
}

// -----------------------------------------------------------------------------
// Stream Status Repository
// -----------------------------------------------------------------------------

type StreamStatusRepo struct {
	store *MemoryStorage
}

func NewStreamStatusRepo(store *MemoryStorage) *StreamStatusRepo {
	return &StreamStatusRepo{store: store}
}

func (r *StreamStatusRepo) MarkVisible(ctx context.Context, streamID uuid.UUID, source string, component domain.Component, lastKnownPosition int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.markVisibleLocked(streamID, source, component, lastKnownPosition)
	return nil
}

func (r *StreamStatusRepo) ApplySuccess(ctx context.Context, streamID uuid.UUID, source string, component domain.Component, position int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.applySuccessLocked(streamID, source, component, position)
	return nil
}

func (r *StreamStatusRepo) Get(ctx context.Context, streamID uuid.UUID, source string, component domain.Component) (*domain.StreamStatus, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	status, ok := r.store.statuses[statusKey{streamID, source, component}]
	if !ok {
		return nil, nil
	}
	return copyStatus(status), nil
}

func (r *StreamStatusRepo) FindByStreamID(ctx context.Context, streamID uuid.UUID) ([]*domain.StreamStatus, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.StreamStatus
	for _, status := range r.store.statuses {
		if status.StreamID == streamID {
			out = append(out, copyStatus(status))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].Component < out[j].Component
	})
	return out, nil
}

func (r *StreamStatusRepo) FindByErrorHash(ctx context.Context, hash string) ([]*domain.StreamStatus, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.store.blockedStatusesLocked(hash), nil
}

func (r *StreamStatusRepo) FindAllWithErrors(ctx context.Context) ([]*domain.StreamStatus, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.StreamStatus
	for _, status := range r.store.statuses {
		if status.ErrorID != nil {
			out = append(out, copyStatus(status))
		}
	}
	sortStatuses(out)
	return out, nil
}

func (r *StreamStatusRepo) CountBlockedByHash(ctx context.Context, hash string) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return len(r.store.blockedStatusesLocked(hash)), nil
}

// -----------------------------------------------------------------------------
// Error Hash Catalog
// -----------------------------------------------------------------------------

type ErrorHashRepo struct {
	store *MemoryStorage
}

func NewErrorHashRepo(store *MemoryStorage) *ErrorHashRepo {
	return &ErrorHashRepo{store: store}
}

func (r *ErrorHashRepo) Ensure(ctx context.Context, entry *domain.StreamErrorHash) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.ensureHashLocked(entry)
	return nil
}

func (r *ErrorHashRepo) FindByHash(ctx context.Context, hash string) (*domain.StreamErrorHash, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	entry, ok := r.store.hashes[hash]
	if !ok {
		return nil, nil
	}
	return copyHash(entry), nil
}

// -----------------------------------------------------------------------------
// Stream Error Log
// -----------------------------------------------------------------------------

type StreamErrorRepo struct {
	store *MemoryStorage
}

func NewStreamErrorRepo(store *MemoryStorage) *StreamErrorRepo {
	return &StreamErrorRepo{store: store}
}

func (r *StreamErrorRepo) Record(ctx context.Context, details *domain.StreamErrorDetails) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.recordErrorLocked(details)
	return nil
}

func (r *StreamErrorRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.StreamErrorDetails, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	details, ok := r.store.errs[id]
	if !ok {
		return nil, nil
	}
	return copyDetails(details), nil
}

func (r *StreamErrorRepo) FindByStreamID(ctx context.Context, streamID uuid.UUID) ([]*domain.StreamErrorDetails, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.StreamErrorDetails
	for _, id := range r.store.errOrder {
		details := r.store.errs[id]
		if details.StreamID == streamID {
			out = append(out, copyDetails(details))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PositionInStream < out[j].PositionInStream
	})
	return out, nil
}

func (r *StreamErrorRepo) CountForHash(ctx context.Context, hash string) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	count := 0
	for _, details := range r.store.errs {
		if details.Hash == hash {
			count++
		}
	}
	return count, nil
}

func (r *StreamErrorRepo) CountNonBlockingForHash(ctx context.Context, hash string) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.store.countNonBlockingLocked(hash), nil
}

func (s *MemoryStorage) countNonBlockingLocked(hash string) int {
	blocking := make(map[uuid.UUID]bool)
	for _, status := range s.statuses {
		if status.ErrorID != nil {
			blocking[*status.ErrorID] = true
		}
	}
	count := 0
	for id, details := range s.errs {
		if details.Hash == hash && !blocking[id] {
			count++
		}
	}
	return count
}

func (r *StreamErrorRepo) ActiveErrors(ctx context.Context) ([]*domain.ActiveError, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	streamCounts := make(map[string]int)
	for _, status := range r.store.statuses {
		if status.ErrorID == nil {
			continue
		}
		details, ok := r.store.errs[*status.ErrorID]
		if !ok {
			continue
		}
		streamCounts[details.Hash]++
	}

	hashes := make([]string, 0, len(streamCounts))
	for hash := range streamCounts {
		hashes = append(hashes, hash)
	}
	sort.Strings(hashes)

	summaries := make([]*domain.ActiveError, 0, len(hashes))
	for _, hash := range hashes {
		entry, ok := r.store.hashes[hash]
		if !ok {
			continue
		}
		summary := &domain.ActiveError{
			Hash:                 entry.Hash,
			ExceptionClassName:   entry.ExceptionClassName,
			OriginatingClassName: entry.OriginatingClassName,
			OriginatingMethod:    entry.OriginatingMethod,
			AffectedStreamsCount: streamCounts[hash],
			AffectedEventsCount:  r.store.countNonBlockingLocked(hash),
		}
		if entry.CauseClassName != nil {
			cause := *entry.CauseClassName
			summary.CauseClassName = &cause
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// -----------------------------------------------------------------------------
// Failure Unit of Work
// -----------------------------------------------------------------------------

// UnitOfWorkFactory buffers failure-report writes and applies them under one
// lock on Commit, so readers never observe a partially-recorded failure.
type UnitOfWorkFactory struct {
	store *MemoryStorage
}

func NewUnitOfWorkFactory(store *MemoryStorage) *UnitOfWorkFactory {
	return &UnitOfWorkFactory{store: store}
}

func (f *UnitOfWorkFactory) Begin(ctx context.Context) (storage.FailureUnitOfWork, error) {
	return &failureUnitOfWork{store: f.store}, nil
}

type failureUnitOfWork struct {
	store   *MemoryStorage
	pending []func(*MemoryStorage)
	done    bool
}

func (u *failureUnitOfWork) EnsureErrorHash(ctx context.Context, entry *domain.StreamErrorHash) error {
	cp := copyHash(entry)
	u.pending = append(u.pending, func(s *MemoryStorage) { s.ensureHashLocked(cp) })
	return nil
}

func (u *failureUnitOfWork) RecordStreamError(ctx context.Context, details *domain.StreamErrorDetails) error {
	cp := copyDetails(details)
	u.pending = append(u.pending, func(s *MemoryStorage) { s.recordErrorLocked(cp) })
	return nil
}

func (u *failureUnitOfWork) MarkStreamFailed(ctx context.Context, streamID uuid.UUID, source string, component domain.Component, errorID uuid.UUID, errorPosition int64) error {
	u.pending = append(u.pending, func(s *MemoryStorage) {
		s.markFailedLocked(streamID, source, component, errorID, errorPosition)
	})
	return nil
}

func (u *failureUnitOfWork) Commit() error {
	if u.done {
		return nil
	}
	u.done = true
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	for _, apply := range u.pending {
		apply(u.store)
	}
	u.pending = nil
	return nil
}

func (u *failureUnitOfWork) Rollback() error {
	u.done = true
	u.pending = nil
	return nil
}

// -----------------------------------------------------------------------------
// Published Events
// -----------------------------------------------------------------------------

type PublishedEventRepo struct {
	store *MemoryStorage
}

func NewPublishedEventRepo(store *MemoryStorage) *PublishedEventRepo {
	return &PublishedEventRepo{store: store}
}

func (r *PublishedEventRepo) FetchBatch(ctx context.Context, afterEventNumber int64, limit int) ([]*domain.PublishedEvent, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.PublishedEvent
	for _, event := range r.store.published {
		if event.EventNumber <= afterEventNumber {
			continue
		}
		cp := *event
		out = append(out, &cp)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *PublishedEventRepo) InsertBatch(ctx context.Context, events []*domain.PublishedEvent) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, event := range events {
		cp := *event
		r.store.nextEvent++
		cp.EventNumber = r.store.nextEvent
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = time.Now()
		}
		r.store.published = append(r.store.published, &cp)
	}
	return nil
}

func (r *PublishedEventRepo) Count(ctx context.Context) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return len(r.store.published), nil
}
