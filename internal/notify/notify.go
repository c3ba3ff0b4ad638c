// Package notify announces finished pipeline runs on a message queue so
// downstream consumers can react to fresh data.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sportsdatalake/internal/domain"
	"sportsdatalake/internal/observability"
)

// Run outcomes carried by Event.Status.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Event is the message published after each run.
type Event struct {
	RunID      string    `json:"run_id"`
	Status     string    `json:"status"`
	Location   string    `json:"location,omitempty"`
	Rows       int       `json:"rows"`
	Error      string    `json:"error,omitempty"`
	ErrorType  string    `json:"error_type,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// Publisher delivers a message body to a named queue.
type Publisher interface {
	Publish(ctx context.Context, target string, body []byte) error
	Close() error
}

// Notifier turns run outcomes into events on one target queue.
type Notifier struct {
	publisher Publisher
	target    string
	logger    observability.Logger
	metrics   observability.Metrics
	now       func() time.Time
}

// New creates a Notifier.
func New(publisher Publisher, target string, logger observability.Logger, metrics observability.Metrics) *Notifier {
	return &Notifier{
		publisher: publisher,
		target:    target,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Succeeded builds the event for a completed run.
func (n *Notifier) Succeeded(runID string, obj domain.StoredObject, results *domain.ResultSet) Event {
	e := Event{
		RunID:      runID,
		Status:     StatusSucceeded,
		Location:   obj.Location,
		FinishedAt: n.now().UTC(),
	}
	if results != nil {
		e.Rows = len(results.Rows)
	}
	return e
}

// Failed builds the event for an aborted run.
func (n *Notifier) Failed(runID string, err error) Event {
	return Event{
		RunID:      runID,
		Status:     StatusFailed,
		Error:      err.Error(),
		ErrorType:  domain.ErrorType(err),
		FinishedAt: n.now().UTC(),
	}
}

// Notify publishes e.
func (n *Notifier) Notify(ctx context.Context, e Event) error {
	startTime := time.Now()
	defer func() {
		n.metrics.RecordDuration("notify", time.Since(startTime).Seconds())
	}()

	body, err := json.Marshal(e)
	if err != nil {
		n.metrics.RecordError("notify", "marshal_failed")
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := n.publisher.Publish(ctx, n.target, body); err != nil {
		n.metrics.RecordError("notify", domain.ErrorType(err))
		n.logger.Error(ctx, "Failed to publish run event", err, observability.Fields{
			"target": n.target,
			"status": e.Status,
		})
		return err
	}

	n.metrics.RecordSuccess("notify")
	n.logger.Info(ctx, "Run event published", observability.Fields{
		"target": n.target,
		"status": e.Status,
		"size":   len(body),
	})
	return nil
}

// Close releases the underlying publisher.
func (n *Notifier) Close() error {
	return n.publisher.Close()
}
