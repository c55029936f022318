package validation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/streamwatch/internal/core/domain"
)

// CommandName identifies the published event validation command in status
// records and lock keys.
const CommandName = "validate-published-events"

// statusTTL keeps finished commands pollable without growing unbounded.
const statusTTL = 24 * time.Hour

// lockTTL bounds how long a crashed run can hold the single-flight lock.
const lockTTL = time.Hour

// ErrCommandInProgress is returned by Dispatch when a run is already in
// flight.
var ErrCommandInProgress = errors.New("a validate-published-events command is already in progress")

// StatusStore persists pollable command statuses. Implemented by the redis
// client; an in-process fallback covers db-less runs.
type StatusStore interface {
	SaveCommandStatus(ctx context.Context, status *domain.CommandStatus, ttl time.Duration) error
	GetCommandStatus(ctx context.Context, commandID uuid.UUID) (*domain.CommandStatus, error)
}

// Locker provides a single-flight lock per command name.
type Locker interface {
	AcquireCommandLock(ctx context.Context, name string, ttl time.Duration) (bool, error)
	ReleaseCommandLock(ctx context.Context, name string) error
}

// Runner dispatches validation runs asynchronously and tracks their status.
type Runner struct {
	validator *Validator
	store     StatusStore
	locker    Locker
	log       *slog.Logger
}

// NewRunner creates a runner over the given validator, status store and lock.
func NewRunner(validator *Validator, store StatusStore, locker Locker) *Runner {
	return &Runner{
		validator: validator,
		store:     store,
		locker:    locker,
		log:       slog.Default(),
	}
}

// Dispatch starts a validation run in the background and returns its command
// id immediately. Only one run is in flight at a time; a second dispatch
// returns ErrCommandInProgress.
func (r *Runner) Dispatch(ctx context.Context) (uuid.UUID, error) {
	acquired, err := r.locker.AcquireCommandLock(ctx, CommandName, lockTTL)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to acquire command lock: %w", err)
	}
	if !acquired {
		return uuid.Nil, ErrCommandInProgress
	}

	commandID := uuid.New()
	status := &domain.CommandStatus{
		CommandID: commandID,
		Name:      CommandName,
		State:     domain.CommandInProgress,
		UpdatedAt: time.Now(),
	}
	if err := r.store.SaveCommandStatus(ctx, status, statusTTL); err != nil {
		if releaseErr := r.locker.ReleaseCommandLock(ctx, CommandName); releaseErr != nil {
			r.log.Error("Failed to release command lock", "command", CommandName, "error", releaseErr)
		}
		return uuid.Nil, fmt.Errorf("failed to save command status: %w", err)
	}

	// The run must outlive the dispatching request.
	go r.run(context.WithoutCancel(ctx), commandID)

	return commandID, nil
}

// Status returns the current status of a dispatched command, or nil when the
// id is unknown.
func (r *Runner) Status(ctx context.Context, commandID uuid.UUID) (*domain.CommandStatus, error) {
	return r.store.GetCommandStatus(ctx, commandID)
}

func (r *Runner) run(ctx context.Context, commandID uuid.UUID) {
	defer func() {
		if err := r.locker.ReleaseCommandLock(ctx, CommandName); err != nil {
			r.log.Error("Failed to release command lock", "command", CommandName, "error", err)
		}
	}()

	result, err := r.validator.Run(ctx)

	status := &domain.CommandStatus{
		CommandID: commandID,
		Name:      CommandName,
		UpdatedAt: time.Now(),
	}
	switch {
	case err != nil:
		status.State = domain.CommandFailed
		status.Message = fmt.Sprintf("validation run failed: %v", err)
		r.log.Error("Published event validation run failed", "commandId", commandID, "error", err)
	case result.Failed > 0:
		status.State = domain.CommandFailed
		status.Message = result.Message()
	default:
		status.State = domain.CommandComplete
		status.Message = result.Message()
	}

	if err := r.store.SaveCommandStatus(ctx, status, statusTTL); err != nil {
		r.log.Error("Failed to save command status", "commandId", commandID, "error", err)
	}
}
