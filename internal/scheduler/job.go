// Package scheduler runs the engine's periodic jobs, each on its own
// interval, with overlap skipping and backoff after failures.
package scheduler

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"sjsage522/pepperwatch/logger"
	cerr "sjsage522/pepperwatch/pkg/errors"
)

// JobState describes what a job is currently doing.
type JobState string

const (
	StateIdle    JobState = "idle"
	StateRunning JobState = "running"
	StateBackoff JobState = "backoff"
)

const (
	backoffBase        = 30 * time.Second
	blockedBackoffBase = 5 * time.Minute
	backoffMax         = time.Hour
)

// RunFunc is one execution of a job's work.
type RunFunc func(ctx context.Context, now time.Time) error

// Job wraps a RunFunc with the tick discipline shared by all periodic work:
// a tick is skipped while the previous run is still in flight, and failed
// runs push the next attempt out with jittered exponential backoff. Blocked
// fetches back off from a longer base since retrying early only extends
// the block.
type Job struct {
	name     string
	interval time.Duration
	run      RunFunc
	log      *logger.Logger

	mu           sync.Mutex
	state        JobState
	failures     int
	backoffUntil time.Time
	lastRun      time.Time
}

// NewJob creates a job that executes run every interval.
func NewJob(name string, interval time.Duration, run RunFunc) *Job {
	return &Job{
		name:     name,
		interval: interval,
		run:      run,
		log:      logger.ForJob(name),
		state:    StateIdle,
	}
}

// Name returns the job's name.
func (j *Job) Name() string { return j.name }

// State returns the job's current state.
func (j *Job) State() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Tick attempts one run at the given time. It returns false when the tick
// was skipped, either because a run is still in flight or because the job
// is backing off.
func (j *Job) Tick(ctx context.Context, now time.Time) bool {
	j.mu.Lock()
	if j.state == StateRunning {
		j.mu.Unlock()
		j.log.Debug().Msg("Previous run still in flight, skipping tick")
		return false
	}
	if now.Before(j.backoffUntil) {
		j.mu.Unlock()
		return false
	}
	j.state = StateRunning
	j.mu.Unlock()

	start := time.Now()
	err := j.run(ctx, now)
	elapsed := time.Since(start)

	j.mu.Lock()
	defer j.mu.Unlock()
	j.lastRun = now

	if err != nil {
		j.failures++
		delay := j.backoffDelay(cerr.IsBlocked(err))
		j.backoffUntil = now.Add(delay)
		j.state = StateBackoff
		j.log.WithError(err).Error().
			Int("failures", j.failures).
			Dur("backoff", delay).
			Msg("Run failed")
		return true
	}

	j.failures = 0
	j.backoffUntil = time.Time{}
	j.state = StateIdle
	j.log.Debug().Dur("elapsed", elapsed).Msg("Run finished")
	return true
}

// backoffDelay computes the delay after the current failure count.
// Callers must hold j.mu.
func (j *Job) backoffDelay(blocked bool) time.Duration {
	base := backoffBase
	if blocked {
		base = blockedBackoffBase
	}
	delay := base << (j.failures - 1)
	if delay > backoffMax || delay < base {
		delay = backoffMax
	}
	jitter := time.Duration(rand.Int64N(int64(delay) / 4))
	return delay + jitter
}

// Run ticks the job on its interval until ctx is cancelled.
func (j *Job) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			j.Tick(ctx, now)
		}
	}
}

// abortsCycle reports whether an error should end the whole cycle instead
// of moving on to the next unit of work. A block means every further fetch
// against the site would fail the same way.
func abortsCycle(err error) bool {
	return cerr.IsBlocked(err)
}
