package scheduler

import (
	"context"
	"time"

	"sjsage522/pepperwatch/internal/deal"
	"sjsage522/pepperwatch/internal/matcher"
	"sjsage522/pepperwatch/internal/store"
	"sjsage522/pepperwatch/logger"
	"sjsage522/pepperwatch/services/notifier"
)

const (
	// groupFetchLimit is how many deals one category page fetch pulls in
	// before filtering.
	groupFetchLimit = 20

	// maxDealsPerPost caps how many deals one category post carries.
	maxDealsPerPost = 10
)

// CategoryJob runs due category feeds. Each tick it asks the store which
// feeds have reached their schedule anchor, fetches each feed's category
// page and posts the hottest unseen deals to the feed's channel. Feeds are
// isolated from each other; one failing feed never blocks the rest.
type CategoryJob struct {
	source  DealSource
	storage store.Storage
	sink    notifier.Notifier
	log     *logger.Logger
}

// NewCategoryJob creates the category feed job.
func NewCategoryJob(source DealSource, storage store.Storage, sink notifier.Notifier) *CategoryJob {
	return &CategoryJob{
		source:  source,
		storage: storage,
		sink:    sink,
		log:     logger.ForJob("category"),
	}
}

// RunOnce executes one category tick.
func (j *CategoryJob) RunOnce(ctx context.Context, now time.Time) error {
	feeds, err := j.storage.ListDueCategoryFeeds(ctx, now)
	if err != nil {
		return err
	}

	for _, f := range feeds {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := j.runFeed(ctx, f, now); err != nil {
			if statsErr := j.storage.AddCategoryFeedStats(ctx, f.ID, 0, 0, 1); statsErr != nil {
				j.log.WithError(statsErr).Error().Int64("feed", f.ID).Msg("Failed to record feed error")
			}
			if abortsCycle(err) {
				j.log.WithError(err).Warn().Str("slug", f.Slug).Msg("Fetch blocked, aborting cycle")
				return err
			}
			j.log.WithError(err).Error().
				Int64("feed", f.ID).
				Str("slug", f.Slug).
				Msg("Feed run failed")
		}
	}

	return nil
}

// runFeed fetches, filters and posts one feed's batch. The last run marker
// only advances on success so a failed feed is retried next tick.
func (j *CategoryJob) runFeed(ctx context.Context, f store.CategoryFeed, now time.Time) error {
	deals, err := j.source.GroupDeals(ctx, f.Slug, groupFetchLimit)
	if err != nil {
		return err
	}
	checked := len(deals)

	destination := "channel:" + f.ChannelID

	var fresh []deal.Record
	for _, d := range deals {
		if !matcher.MatchFeed(d, f) {
			continue
		}
		delivered, err := j.storage.HasBeenDelivered(ctx, destination, d.ID)
		if err != nil {
			return err
		}
		if !delivered {
			fresh = append(fresh, d)
		}
	}

	batch := matcher.TopByTemperature(fresh, maxDealsPerPost)

	if len(batch) > 0 {
		if err := j.sink.Deliver(ctx, destination, batch); err != nil {
			return err
		}
		for _, d := range batch {
			if _, err := j.storage.MarkDelivered(ctx, destination, d.ID, now); err != nil {
				j.log.WithError(err).Error().
					Str("destination", destination).
					Str("deal", d.ID).
					Msg("Failed to record delivery")
			}
		}
	}

	if err := j.storage.SetCategoryFeedLastRun(ctx, f.ID, now); err != nil {
		return err
	}
	if err := j.storage.AddCategoryFeedStats(ctx, f.ID, checked, len(batch), 0); err != nil {
		j.log.WithError(err).Error().Int64("feed", f.ID).Msg("Failed to record feed stats")
	}

	j.log.Info().
		Int64("feed", f.ID).
		Str("slug", f.Slug).
		Int("checked", checked).
		Int("sent", len(batch)).
		Msg("Feed run finished")
	return nil
}
