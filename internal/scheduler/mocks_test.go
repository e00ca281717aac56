package scheduler

import (
	"context"
	"sync"
	"time"

	"sjsage522/pepperwatch/internal/deal"
	"sjsage522/pepperwatch/internal/store"
)

// fakeSource returns canned deals per query or slug and records call order.
type fakeSource struct {
	mu          sync.Mutex
	searchDeals map[string][]deal.Record
	groupDeals  map[string][]deal.Record
	flightDeals []deal.Record
	searchErr   error
	groupErr    error
	groupErrs   map[string]error
	flightErr   error
	searchCalls []string
	groupCalls  []string
	flightCalls int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		searchDeals: make(map[string][]deal.Record),
		groupDeals:  make(map[string][]deal.Record),
		groupErrs:   make(map[string]error),
	}
}

func (f *fakeSource) SearchDeals(_ context.Context, query string, limit int, _ string) ([]deal.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls = append(f.searchCalls, query)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return capped(f.searchDeals[query], limit), nil
}

func (f *fakeSource) GroupDeals(_ context.Context, slug string, limit int) ([]deal.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groupCalls = append(f.groupCalls, slug)
	if f.groupErr != nil {
		return nil, f.groupErr
	}
	if err := f.groupErrs[slug]; err != nil {
		return nil, err
	}
	return capped(f.groupDeals[slug], limit), nil
}

func (f *fakeSource) FlightDeals(_ context.Context, limit int) ([]deal.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flightCalls++
	if f.flightErr != nil {
		return nil, f.flightErr
	}
	return capped(f.flightDeals, limit), nil
}

func capped(deals []deal.Record, limit int) []deal.Record {
	if limit > 0 && len(deals) > limit {
		return deals[:limit]
	}
	return deals
}

// delivery records one Deliver call.
type delivery struct {
	destinationID string
	deals         []deal.Record
}

// fakeNotifier records deliveries in order.
type fakeNotifier struct {
	mu         sync.Mutex
	deliveries []delivery
	deliverErr error
	trimCalls  int
}

func (f *fakeNotifier) Deliver(_ context.Context, destinationID string, deals []deal.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deliverErr != nil {
		return f.deliverErr
	}
	f.deliveries = append(f.deliveries, delivery{destinationID: destinationID, deals: deals})
	return nil
}

func (f *fakeNotifier) TrimStreams(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trimCalls++
	return nil
}

func (f *fakeNotifier) Close() error { return nil }

func (f *fakeNotifier) deliveredTo(destinationID string) []delivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []delivery
	for _, d := range f.deliveries {
		if d.destinationID == destinationID {
			out = append(out, d)
		}
	}
	return out
}

// fakeStorage is an in-memory Storage for driving jobs deterministically.
type fakeStorage struct {
	mu        sync.Mutex
	watches   []store.Watch
	feeds     []store.CategoryFeed
	delivered map[string]bool
	alerted   map[string]bool
	nextID    int64
	cleanups  []time.Time
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		delivered: make(map[string]bool),
		alerted:   make(map[string]bool),
	}
}

func (f *fakeStorage) CreateWatch(_ context.Context, w *store.Watch) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.watches {
		if existing.OwnerID == w.OwnerID && existing.Query == w.Query {
			return false, nil
		}
	}
	f.nextID++
	w.ID = f.nextID
	f.watches = append(f.watches, *w)
	return true, nil
}

func (f *fakeStorage) DeleteWatch(_ context.Context, ownerID, query string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, w := range f.watches {
		if w.OwnerID == ownerID && w.Query == query {
			f.watches = append(f.watches[:i], f.watches[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStorage) ListWatches(_ context.Context, ownerID string) ([]store.Watch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Watch
	for _, w := range f.watches {
		if w.OwnerID == ownerID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (f *fakeStorage) ListActiveWatches(_ context.Context) ([]store.Watch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.Watch(nil), f.watches...), nil
}

func (f *fakeStorage) DistinctQueries(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, w := range f.watches {
		if !seen[w.Query] {
			seen[w.Query] = true
			out = append(out, w.Query)
		}
	}
	return out, nil
}

func (f *fakeStorage) WatchesByQuery(_ context.Context, query string) ([]store.Watch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Watch
	for _, w := range f.watches {
		if w.Query == query {
			out = append(out, w)
		}
	}
	return out, nil
}

func (f *fakeStorage) CreateCategoryFeed(_ context.Context, feed *store.CategoryFeed) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.feeds {
		if existing.ServerID == feed.ServerID && existing.Slug == feed.Slug {
			return false, nil
		}
	}
	f.nextID++
	feed.ID = f.nextID
	f.feeds = append(f.feeds, *feed)
	return true, nil
}

func (f *fakeStorage) DeleteCategoryFeed(_ context.Context, serverID, slug string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, feed := range f.feeds {
		if feed.ServerID == serverID && feed.Slug == slug {
			f.feeds = append(f.feeds[:i], f.feeds[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStorage) SetCategoryFeedPaused(_ context.Context, serverID, slug string, paused bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.feeds {
		if f.feeds[i].ServerID == serverID && f.feeds[i].Slug == slug {
			f.feeds[i].Paused = paused
		}
	}
	return nil
}

func (f *fakeStorage) ListCategoryFeeds(_ context.Context, serverID string) ([]store.CategoryFeed, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.CategoryFeed
	for _, feed := range f.feeds {
		if feed.ServerID == serverID {
			out = append(out, feed)
		}
	}
	return out, nil
}

func (f *fakeStorage) CountCategoryFeeds(_ context.Context, serverID string) (int, error) {
	feeds, _ := f.ListCategoryFeeds(context.Background(), serverID)
	return len(feeds), nil
}

func (f *fakeStorage) ListDueCategoryFeeds(_ context.Context, now time.Time) ([]store.CategoryFeed, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.CategoryFeed
	for _, feed := range f.feeds {
		if feed.DueAt(now) {
			out = append(out, feed)
		}
	}
	return out, nil
}

func (f *fakeStorage) SetCategoryFeedLastRun(_ context.Context, feedID int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.feeds {
		if f.feeds[i].ID == feedID {
			t := at
			f.feeds[i].LastRunAt = &t
		}
	}
	return nil
}

func (f *fakeStorage) AddCategoryFeedStats(_ context.Context, feedID int64, checked, sent, errored int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.feeds {
		if f.feeds[i].ID == feedID {
			f.feeds[i].CheckedCount += int64(checked)
			f.feeds[i].SentCount += int64(sent)
			f.feeds[i].ErrorCount += int64(errored)
		}
	}
	return nil
}

func (f *fakeStorage) HasBeenDelivered(_ context.Context, destinationID, dealID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.delivered[destinationID+"|"+dealID], nil
}

func (f *fakeStorage) MarkDelivered(_ context.Context, destinationID, dealID string, _ time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := destinationID + "|" + dealID
	if f.delivered[key] {
		return false, nil
	}
	f.delivered[key] = true
	return true, nil
}

func (f *fakeStorage) HasAlerted(_ context.Context, ownerID, dealID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alerted[ownerID+"|"+dealID], nil
}

func (f *fakeStorage) MarkAlerted(_ context.Context, ownerID, dealID string, _ time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := ownerID + "|" + dealID
	if f.alerted[key] {
		return false, nil
	}
	f.alerted[key] = true
	return true, nil
}

func (f *fakeStorage) CleanupDeliveries(_ context.Context, olderThan time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanups = append(f.cleanups, olderThan)
	return 0, nil
}

func (f *fakeStorage) Close() error { return nil }

func (f *fakeStorage) feedByID(id int64) *store.CategoryFeed {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.feeds {
		if f.feeds[i].ID == id {
			feed := f.feeds[i]
			return &feed
		}
	}
	return nil
}

func floatPtr(v float64) *float64 { return &v }

func timePtr(t time.Time) *time.Time { return &t }
