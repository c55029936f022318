// Package validation runs schema validation over the published event log and
// exposes it as a dispatchable, pollable system command.
package validation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vietddude/streamwatch/internal/infra/schema"
	"github.com/vietddude/streamwatch/internal/infra/storage"
	"github.com/vietddude/streamwatch/internal/tracking/metrics"
)

const defaultBatchSize = 500

// Result summarises one validation run over the published event log.
type Result struct {
	Checked int
	Failed  int
}

// Message renders the result as the operator-facing summary line.
func (r Result) Message() string {
	if r.Failed == 0 {
		return "All PublishedEvents successfully passed schema validation"
	}
	return fmt.Sprintf("%d PublishedEvent(s) failed schema validation. Please see server logs for errors", r.Failed)
}

// Validator walks the whole published event log in bounded batches and
// checks every payload against the schema registered for its event name.
type Validator struct {
	events    storage.PublishedEventRepository
	schemas   schema.Validator
	batchSize int
	log       *slog.Logger
}

// NewValidator creates a validator. batchSize <= 0 selects the default.
func NewValidator(events storage.PublishedEventRepository, schemas schema.Validator, batchSize int) *Validator {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Validator{
		events:    events,
		schemas:   schemas,
		batchSize: batchSize,
		log:       slog.Default(),
	}
}

// Run validates every published event. Individual schema mismatches are
// logged and counted, never returned as errors; the run only fails on
// storage problems or cancellation.
func (v *Validator) Run(ctx context.Context) (Result, error) {
	var result Result
	after := int64(0)

	total, err := v.events.Count(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to count published events: %w", err)
	}
	v.log.Info("Starting published event validation", "total", total, "batchSize", v.batchSize)

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		batch, err := v.events.FetchBatch(ctx, after, v.batchSize)
		if err != nil {
			return result, fmt.Errorf("failed to fetch published events: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		for _, event := range batch {
			result.Checked++
			metrics.PublishedEventsValidated.Inc()

			err := v.schemas.Validate(event.Name, event.Payload)
			if err == nil {
				continue
			}
			var failure *schema.ValidationFailure
			if !errors.As(err, &failure) {
				return result, fmt.Errorf("schema validation errored on event %s: %w", event.ID, err)
			}

			result.Failed++
			metrics.PublishedEventValidationFailures.Inc()
			v.log.Error("PublishedEvent failed schema validation",
				"eventId", event.ID,
				"eventNumber", event.EventNumber,
				"eventName", event.Name,
				"streamId", event.StreamID,
				"reasons", failure.Reasons,
			)
		}

		after = batch[len(batch)-1].EventNumber
	}

	v.log.Info("Published event validation finished",
		"checked", result.Checked,
		"failed", result.Failed,
	)
	return result, nil
}
