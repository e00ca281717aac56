package scheduler

import (
	"context"
	"sync"
	"time"

	"sjsage522/pepperwatch/internal/store"
	"sjsage522/pepperwatch/logger"
	"sjsage522/pepperwatch/services/notifier"
)

// digestFetchLimit is how many flight deals the daily digest pulls in.
const digestFetchLimit = 7

// DigestJob posts the daily flight deal digest. It fires at most once per
// day, during the configured hour; ticks outside that hour do nothing.
type DigestJob struct {
	source    DealSource
	storage   store.Storage
	sink      notifier.Notifier
	channelID string
	hour      int
	log       *logger.Logger

	mu        sync.Mutex
	lastFired time.Time
}

// NewDigestJob creates the daily digest job posting to the given channel
// during the given hour.
func NewDigestJob(source DealSource, storage store.Storage, sink notifier.Notifier, channelID string, hour int) *DigestJob {
	return &DigestJob{
		source:    source,
		storage:   storage,
		sink:      sink,
		channelID: channelID,
		hour:      hour,
		log:       logger.ForJob("digest"),
	}
}

// RunOnce executes one digest tick.
func (j *DigestJob) RunOnce(ctx context.Context, now time.Time) error {
	if j.channelID == "" {
		return nil
	}
	if now.Hour() != j.hour {
		return nil
	}

	j.mu.Lock()
	fired := sameDay(j.lastFired, now)
	j.mu.Unlock()
	if fired {
		return nil
	}

	sent, err := j.post(ctx, now, true)
	if err != nil {
		return err
	}

	j.mu.Lock()
	j.lastFired = now
	j.mu.Unlock()

	j.log.Info().Int("deals", sent).Msg("Daily digest posted")
	return nil
}

// Trigger posts a digest immediately, ignoring both the schedule and the
// delivery history. Used by the on-demand command.
func (j *DigestJob) Trigger(ctx context.Context, now time.Time) (int, error) {
	return j.post(ctx, now, false)
}

// post fetches the flight page and delivers the batch. When dedup is on,
// already-delivered deals are dropped and the rest committed to history.
func (j *DigestJob) post(ctx context.Context, now time.Time, dedup bool) (int, error) {
	deals, err := j.source.FlightDeals(ctx, digestFetchLimit)
	if err != nil {
		return 0, err
	}

	destination := "channel:" + j.channelID

	batch := deals
	if dedup {
		batch = nil
		for _, d := range deals {
			delivered, err := j.storage.HasBeenDelivered(ctx, destination, d.ID)
			if err != nil {
				return 0, err
			}
			if !delivered {
				batch = append(batch, d)
			}
		}
	}

	if len(batch) == 0 {
		return 0, nil
	}

	if err := j.sink.Deliver(ctx, destination, batch); err != nil {
		return 0, err
	}

	if dedup {
		for _, d := range batch {
			if _, err := j.storage.MarkDelivered(ctx, destination, d.ID, now); err != nil {
				j.log.WithError(err).Error().Str("deal", d.ID).Msg("Failed to record delivery")
			}
		}
	}

	return len(batch), nil
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
