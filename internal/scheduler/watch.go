package scheduler

import (
	"context"
	"time"

	"sjsage522/pepperwatch/internal/deal"
	"sjsage522/pepperwatch/internal/matcher"
	"sjsage522/pepperwatch/internal/pepper"
	"sjsage522/pepperwatch/internal/store"
	"sjsage522/pepperwatch/logger"
	"sjsage522/pepperwatch/services/notifier"
)

const (
	// searchResultLimit is how many newest results one query fetch pulls in.
	searchResultLimit = 5

	// maxAlertsPerBatch caps how many deals a single personal alert carries.
	maxAlertsPerBatch = 5

	// interQueryPause spaces out search fetches once the query list grows,
	// on top of the fetcher's own pacing.
	interQueryPause = 2 * time.Second

	// pausedQueryThreshold is the query count above which the pause kicks in.
	pausedQueryThreshold = 5
)

// DealSource produces deal records from the site's listing pages.
// *pepper.Client is the production implementation.
type DealSource interface {
	SearchDeals(ctx context.Context, query string, limit int, sort string) ([]deal.Record, error)
	GroupDeals(ctx context.Context, slug string, limit int) ([]deal.Record, error)
	FlightDeals(ctx context.Context, limit int) ([]deal.Record, error)
}

// WatchJob runs the personal alert cycle: one search per distinct query,
// fanned out to every watch subscribed to it, deduplicated against each
// user's alert history.
type WatchJob struct {
	source  DealSource
	storage store.Storage
	sink    notifier.Notifier
	log     *logger.Logger

	// pause is swappable so tests do not sleep.
	pause func(ctx context.Context, d time.Duration)
}

// NewWatchJob creates the personal alert job.
func NewWatchJob(source DealSource, storage store.Storage, sink notifier.Notifier) *WatchJob {
	return &WatchJob{
		source:  source,
		storage: storage,
		sink:    sink,
		log:     logger.ForJob("watch"),
		pause:   sleepCtx,
	}
}

// RunOnce executes one alert cycle.
func (j *WatchJob) RunOnce(ctx context.Context, now time.Time) error {
	queries, err := j.storage.DistinctQueries(ctx)
	if err != nil {
		return err
	}
	if len(queries) == 0 {
		return nil
	}

	// Deals collected per user this cycle; a deal matched by several of a
	// user's watches must only count once.
	pending := make(map[string][]deal.Record)
	seen := make(map[string]map[string]bool)

	for i, query := range queries {
		if i > 0 && len(queries) > pausedQueryThreshold {
			j.pause(ctx, interQueryPause)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := j.collectQuery(ctx, query, now, pending, seen); err != nil {
			if abortsCycle(err) {
				j.log.WithError(err).Warn().Str("query", query).Msg("Fetch blocked, aborting cycle")
				return err
			}
			j.log.WithError(err).Error().Str("query", query).Msg("Query failed")
		}
	}

	for ownerID, deals := range pending {
		if err := j.deliver(ctx, ownerID, deals, now); err != nil {
			j.log.WithError(err).Error().Str("owner", ownerID).Msg("Alert delivery failed")
		}
	}

	return nil
}

// collectQuery fetches one query's newest results and fans them out across
// its watches into the per-user pending map.
func (j *WatchJob) collectQuery(ctx context.Context, query string, now time.Time, pending map[string][]deal.Record, seen map[string]map[string]bool) error {
	deals, err := j.source.SearchDeals(ctx, query, searchResultLimit, pepper.SortNew)
	if err != nil {
		return err
	}
	deals = matcher.FilterQuality(deals, matcher.DefaultQualityOptions(), now)
	if len(deals) == 0 {
		return nil
	}

	watches, err := j.storage.WatchesByQuery(ctx, query)
	if err != nil {
		return err
	}

	for _, w := range watches {
		for _, d := range deals {
			if !matcher.MatchWatch(d, w) {
				continue
			}
			if seen[w.OwnerID][d.ID] {
				continue
			}

			alerted, err := j.storage.HasAlerted(ctx, w.OwnerID, d.ID)
			if err != nil {
				j.log.WithError(err).Error().Str("owner", w.OwnerID).Msg("Alert history check failed")
				continue
			}
			if alerted {
				continue
			}

			if seen[w.OwnerID] == nil {
				seen[w.OwnerID] = make(map[string]bool)
			}
			seen[w.OwnerID][d.ID] = true
			pending[w.OwnerID] = append(pending[w.OwnerID], d)
		}
	}

	return nil
}

// deliver sends a user's batch and commits each deal to their alert history.
// A lost MarkAlerted race means another runner delivered first; that is not
// an error.
func (j *WatchJob) deliver(ctx context.Context, ownerID string, deals []deal.Record, now time.Time) error {
	batch := matcher.TopByTemperature(deals, maxAlertsPerBatch)

	if err := j.sink.Deliver(ctx, "user:"+ownerID, batch); err != nil {
		return err
	}

	for _, d := range batch {
		if _, err := j.storage.MarkAlerted(ctx, ownerID, d.ID, now); err != nil {
			j.log.WithError(err).Error().
				Str("owner", ownerID).
				Str("deal", d.ID).
				Msg("Failed to record alert")
		}
	}

	j.log.Info().
		Str("owner", ownerID).
		Int("deals", len(batch)).
		Msg("Alert delivered")
	return nil
}

// sleepCtx sleeps for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
