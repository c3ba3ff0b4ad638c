// Package poll repeats a status check on a fixed interval until the
// observed operation reaches a terminal state.
package poll

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"

	"sportsdatalake/internal/domain"
)

// Check observes the operation once. It returns the status it saw and
// whether that status is terminal. A non-nil error stops polling at once.
type Check func(ctx context.Context) (status string, done bool, err error)

// Timer abstracts waiting so tests can count and skip the sleeps.
type Timer interface {
	After(time.Duration) <-chan time.Time
}

// Poller runs a Check once per Interval. MaxAttempts bounds the number of
// checks; zero means no bound.
type Poller struct {
	Interval    time.Duration
	MaxAttempts uint
	// OnWait is called before each wait with the number of checks so far
	// and the status that was just observed. It is not called after the
	// last allowed check.
	OnWait func(attempt uint, status string)
	Timer  Timer
}

// errPending marks a non-terminal observation so retry-go tries again.
var errPending = errors.New("operation still in progress")

// Until polls until check reports done, check fails, ctx ends or the
// attempt budget is spent. It returns the terminal status.
// Exceeding MaxAttempts yields a *domain.PollTimeoutError.
func (p Poller) Until(ctx context.Context, check Check) (string, error) {
	var (
		lastStatus string
		attempts   uint
	)
	start := time.Now()

	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(p.MaxAttempts),
		retry.Delay(p.Interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, errPending)
		}),
	}
	if p.Timer != nil {
		opts = append(opts, retry.WithTimer(p.Timer))
	}

	err := retry.Do(func() error {
		attempts++
		status, done, err := check(ctx)
		if err != nil {
			return err
		}
		lastStatus = status
		if !done {
			if p.OnWait != nil && (p.MaxAttempts == 0 || attempts < p.MaxAttempts) {
				p.OnWait(attempts, status)
			}
			return errPending
		}
		return nil
	}, opts...)

	if err == nil {
		return lastStatus, nil
	}
	if errors.Is(err, errPending) {
		return lastStatus, &domain.PollTimeoutError{
			Attempts:   attempts,
			Elapsed:    time.Since(start),
			LastStatus: lastStatus,
		}
	}
	return lastStatus, err
}
