// Package store defines the persistence interface and its sqlite implementation.
package store

import (
	"context"
	"time"
)

// Storage is the interface for all persistence operations.
// Mutations on the dedup tables are atomic insert-or-reject; the insert's
// outcome is the sole arbiter of who won a concurrent delivery race.
type Storage interface {
	CreateWatch(ctx context.Context, w *Watch) (bool, error)
	DeleteWatch(ctx context.Context, ownerID, query string) (bool, error)
	ListWatches(ctx context.Context, ownerID string) ([]Watch, error)
	ListActiveWatches(ctx context.Context) ([]Watch, error)
	DistinctQueries(ctx context.Context) ([]string, error)
	WatchesByQuery(ctx context.Context, query string) ([]Watch, error)

	CreateCategoryFeed(ctx context.Context, f *CategoryFeed) (bool, error)
	DeleteCategoryFeed(ctx context.Context, serverID, slug string) (bool, error)
	SetCategoryFeedPaused(ctx context.Context, serverID, slug string, paused bool) error
	ListCategoryFeeds(ctx context.Context, serverID string) ([]CategoryFeed, error)
	CountCategoryFeeds(ctx context.Context, serverID string) (int, error)
	ListDueCategoryFeeds(ctx context.Context, now time.Time) ([]CategoryFeed, error)
	SetCategoryFeedLastRun(ctx context.Context, feedID int64, at time.Time) error
	AddCategoryFeedStats(ctx context.Context, feedID int64, checked, sent, errored int) error

	HasBeenDelivered(ctx context.Context, destinationID, dealID string) (bool, error)
	MarkDelivered(ctx context.Context, destinationID, dealID string, at time.Time) (bool, error)
	HasAlerted(ctx context.Context, ownerID, dealID string) (bool, error)
	MarkAlerted(ctx context.Context, ownerID, dealID string, at time.Time) (bool, error)

	CleanupDeliveries(ctx context.Context, olderThan time.Time) (int64, error)

	Close() error
}
