package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/session-server-go/internal/config"
)

// SessionPurger is the slice of the session repository the janitor needs.
type SessionPurger interface {
	DeleteExpiredAndInvalidated(ctx context.Context) (int64, error)
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type SweepResult struct {
	ExpiredRemoved int64 `json:"expiredRemoved"`
	StaleRemoved   int64 `json:"staleRemoved"`
	Total          int64 `json:"total"`
}

// SessionJanitor removes expired, invalidated and stale session rows. It does
// no authentication of its own; callers guard the entry points.
type SessionJanitor struct {
	sessions  SessionPurger
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	done      chan struct{}
	stopOnce  sync.Once
}

func NewSessionJanitor(sessions SessionPurger, retention, interval time.Duration) *SessionJanitor {
	if retention <= 0 {
		retention = config.DefaultSessionRetention
	}
	return &SessionJanitor{
		sessions:  sessions,
		retention: retention,
		interval:  interval,
		now:       time.Now,
		done:      make(chan struct{}),
	}
}

// Sweep runs both purges even if the first fails, and reports what each
// removed. Calling it with nothing to remove is not an error.
func (j *SessionJanitor) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	var errs []error

	expired, err := j.runCleanup(ctx, "expired and invalidated sessions", j.sessions.DeleteExpiredAndInvalidated)
	if err != nil {
		errs = append(errs, err)
	}
	result.ExpiredRemoved = expired

	cutoff := j.now().Add(-j.retention)
	stale, err := j.runCleanup(ctx, "stale sessions", func(ctx context.Context) (int64, error) {
		return j.sessions.DeleteCreatedBefore(ctx, cutoff)
	})
	if err != nil {
		errs = append(errs, err)
	}
	result.StaleRemoved = stale

	result.Total = result.ExpiredRemoved + result.StaleRemoved
	return result, errors.Join(errs...)
}

func (j *SessionJanitor) Start() {
	if j.interval <= 0 {
		log.Info().Msg("session janitor disabled")
		return
	}
	go j.run()
	log.Info().Dur("interval", j.interval).Dur("retention", j.retention).Msg("session janitor started")
}

func (j *SessionJanitor) Stop() {
	j.stopOnce.Do(func() {
		close(j.done)
		log.Info().Msg("session janitor stopped")
	})
}

func (j *SessionJanitor) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweepOnce()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweepOnce()
		}
	}
}

func (j *SessionJanitor) sweepOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), config.SweepTimeout)
	defer cancel()

	if result, err := j.Sweep(ctx); err == nil && result.Total > 0 {
		log.Info().
			Int64("expiredRemoved", result.ExpiredRemoved).
			Int64("staleRemoved", result.StaleRemoved).
			Msg("session sweep finished")
	}
}

func (j *SessionJanitor) runCleanup(ctx context.Context, name string, fn func(context.Context) (int64, error)) (int64, error) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to cleanup %s", name)
		return 0, fmt.Errorf("cleanup %s: %w", name, err)
	}
	if count > 0 {
		log.Debug().Int64("count", count).Msgf("cleaned up %s", name)
	}
	return count, nil
}
