package scheduler

import (
	"context"
	"time"

	"sjsage522/pepperwatch/internal/store"
	"sjsage522/pepperwatch/logger"
	"sjsage522/pepperwatch/services/notifier"
)

// retentionPeriod is how long delivery and alert history is kept. Old rows
// only exist to suppress repeats, and listings never resurface deals this old.
const retentionPeriod = 30 * 24 * time.Hour

// CleanupJob prunes expired dedup history and trims the delivery streams.
type CleanupJob struct {
	storage store.Storage
	sink    notifier.Notifier
	log     *logger.Logger
}

// NewCleanupJob creates the retention job.
func NewCleanupJob(storage store.Storage, sink notifier.Notifier) *CleanupJob {
	return &CleanupJob{
		storage: storage,
		sink:    sink,
		log:     logger.ForJob("cleanup"),
	}
}

// RunOnce executes one cleanup pass.
func (j *CleanupJob) RunOnce(ctx context.Context, now time.Time) error {
	removed, err := j.storage.CleanupDeliveries(ctx, now.Add(-retentionPeriod))
	if err != nil {
		return err
	}

	if err := j.sink.TrimStreams(ctx); err != nil {
		j.log.WithError(err).Error().Msg("Stream trimming failed")
	}

	j.log.Info().Int64("removed", removed).Msg("History pruned")
	return nil
}
