package scheduler

import (
	"context"
	"sync"
	"time"

	"sjsage522/pepperwatch/config"
	"sjsage522/pepperwatch/internal/store"
	"sjsage522/pepperwatch/logger"
	"sjsage522/pepperwatch/services/notifier"
)

// digestTick is how often the digest job checks whether its hour arrived.
const digestTick = 5 * time.Minute

// cleanupInterval is how often the retention pass runs.
const cleanupInterval = 24 * time.Hour

// Scheduler owns the engine's periodic jobs and runs each on its own
// interval. Jobs never share a tick; a slow watch cycle does not delay
// category posts.
type Scheduler struct {
	jobs   []*Job
	digest *DigestJob
	log    *logger.Logger
}

// New wires the four engine jobs from their dependencies.
func New(cfg config.Config, source DealSource, storage store.Storage, sink notifier.Notifier) *Scheduler {
	watch := NewWatchJob(source, storage, sink)
	category := NewCategoryJob(source, storage, sink)
	digest := NewDigestJob(source, storage, sink, cfg.DigestChannelID, cfg.DigestHour)
	cleanup := NewCleanupJob(storage, sink)

	return &Scheduler{
		jobs: []*Job{
			NewJob("watch", cfg.WatchInterval, watch.RunOnce),
			NewJob("category", cfg.CategoryTick, category.RunOnce),
			NewJob("digest", digestTick, digest.RunOnce),
			NewJob("cleanup", cleanupInterval, cleanup.RunOnce),
		},
		digest: digest,
		log:    logger.ForJob("scheduler"),
	}
}

// Digest exposes the digest job for the on-demand trigger command.
func (s *Scheduler) Digest() *DigestJob {
	return s.digest
}

// Run starts every job and blocks until ctx is cancelled and all jobs
// have stopped.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info().Int("jobs", len(s.jobs)).Msg("Scheduler starting")

	var wg sync.WaitGroup
	for _, j := range s.jobs {
		wg.Add(1)
		go func(j *Job) {
			defer wg.Done()
			j.Run(ctx)
		}(j)
	}
	wg.Wait()

	s.log.Info().Msg("Scheduler stopped")
}
