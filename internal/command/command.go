// Package command is the facade the chat relay calls into: on-demand
// searches and subscription management. Scheduled delivery lives in the
// scheduler; everything here runs in direct response to a user.
package command

import (
	"context"
	"time"

	"sjsage522/pepperwatch/internal/deal"
	"sjsage522/pepperwatch/internal/matcher"
	"sjsage522/pepperwatch/internal/pepper"
	"sjsage522/pepperwatch/internal/scheduler"
	"sjsage522/pepperwatch/internal/store"
	"sjsage522/pepperwatch/logger"
	cerr "sjsage522/pepperwatch/pkg/errors"
)

const (
	// maxFeedsPerServer caps category feed subscriptions per server.
	maxFeedsPerServer = 20

	// searchLimit is how many results an on-demand search returns.
	searchLimit = 7
)

// DealSource extends the scheduler's source with the front-page listing,
// which only on-demand commands use.
type DealSource interface {
	scheduler.DealSource
	HotDeals(ctx context.Context, limit int) ([]deal.Record, error)
}

// Service executes user-facing operations.
type Service struct {
	source  DealSource
	storage store.Storage
	digest  *scheduler.DigestJob
	log     *logger.Logger
}

// NewService creates the command facade.
func NewService(source DealSource, storage store.Storage, digest *scheduler.DigestJob) *Service {
	return &Service{
		source:  source,
		storage: storage,
		digest:  digest,
		log:     logger.ForJob("command"),
	}
}

// Search runs an on-demand deal search. Results are returned directly and
// never touch the delivery history; asking twice shows the same deals twice.
func (s *Service) Search(ctx context.Context, query string) ([]deal.Record, error) {
	if query == "" {
		return nil, cerr.NewConfiguration("search query must not be empty", nil)
	}
	return s.source.SearchDeals(ctx, query, searchLimit, pepper.SortRelevance)
}

// Hot returns the current front-page listing. Like Search, results go
// straight back to the asker and leave no delivery history.
func (s *Service) Hot(ctx context.Context) ([]deal.Record, error) {
	return s.source.HotDeals(ctx, searchLimit)
}

// AddWatch subscribes a user to a query. Returns false when the same watch
// already exists.
func (s *Service) AddWatch(ctx context.Context, ownerID, query string, maxPrice *float64) (bool, error) {
	if query == "" {
		return false, cerr.NewConfiguration("watch query must not be empty", nil)
	}
	w := &store.Watch{OwnerID: ownerID, Query: query, MaxPrice: maxPrice}
	created, err := s.storage.CreateWatch(ctx, w)
	if err != nil {
		return false, err
	}
	if created {
		s.log.Info().Str("owner", ownerID).Str("query", query).Msg("Watch added")
	}
	return created, nil
}

// RemoveWatch unsubscribes a user from a query. Returns false when the
// watch did not exist.
func (s *Service) RemoveWatch(ctx context.Context, ownerID, query string) (bool, error) {
	removed, err := s.storage.DeleteWatch(ctx, ownerID, query)
	if err != nil {
		return false, err
	}
	if removed {
		s.log.Info().Str("owner", ownerID).Str("query", query).Msg("Watch removed")
	}
	return removed, nil
}

// ListWatches returns a user's watches.
func (s *Service) ListWatches(ctx context.Context, ownerID string) ([]store.Watch, error) {
	return s.storage.ListWatches(ctx, ownerID)
}

// AddFeed subscribes a server channel to a category. Returns false when the
// server already follows the slug.
func (s *Service) AddFeed(ctx context.Context, f *store.CategoryFeed) (bool, error) {
	if f.Slug == "" {
		return false, cerr.NewConfiguration("category slug must not be empty", nil)
	}
	if !f.Schedule.Valid() {
		return false, cerr.NewConfiguration("unknown schedule "+string(f.Schedule), nil)
	}
	if f.AnchorHour < 0 || f.AnchorHour > 23 {
		return false, cerr.NewConfiguration("anchor hour is outside 0..23", nil)
	}

	count, err := s.storage.CountCategoryFeeds(ctx, f.ServerID)
	if err != nil {
		return false, err
	}
	if count >= maxFeedsPerServer {
		return false, cerr.NewConfiguration("server reached the category feed limit", nil)
	}

	created, err := s.storage.CreateCategoryFeed(ctx, f)
	if err != nil {
		return false, err
	}
	if created {
		s.log.Info().Str("server", f.ServerID).Str("slug", f.Slug).Msg("Category feed added")
	}
	return created, nil
}

// RemoveFeed unsubscribes a server from a category. Returns false when the
// feed did not exist.
func (s *Service) RemoveFeed(ctx context.Context, serverID, slug string) (bool, error) {
	removed, err := s.storage.DeleteCategoryFeed(ctx, serverID, slug)
	if err != nil {
		return false, err
	}
	if removed {
		s.log.Info().Str("server", serverID).Str("slug", slug).Msg("Category feed removed")
	}
	return removed, nil
}

// PauseFeed pauses or resumes a feed without losing its configuration.
func (s *Service) PauseFeed(ctx context.Context, serverID, slug string, paused bool) error {
	return s.storage.SetCategoryFeedPaused(ctx, serverID, slug, paused)
}

// ListFeeds returns a server's category feeds.
func (s *Service) ListFeeds(ctx context.Context, serverID string) ([]store.CategoryFeed, error) {
	return s.storage.ListCategoryFeeds(ctx, serverID)
}

// TriggerDigest posts the flight digest immediately and returns how many
// deals it carried.
func (s *Service) TriggerDigest(ctx context.Context) (int, error) {
	return s.digest.Trigger(ctx, time.Now())
}

// FilterQuality applies the alert cycle's quality bar to a result set, for
// relays that want curated search output.
func FilterQuality(deals []deal.Record, now time.Time) []deal.Record {
	return matcher.FilterQuality(deals, matcher.DefaultQualityOptions(), now)
}
