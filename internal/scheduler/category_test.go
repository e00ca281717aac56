package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sjsage522/pepperwatch/internal/deal"
	"sjsage522/pepperwatch/internal/store"
	cerr "sjsage522/pepperwatch/pkg/errors"
)

func newCategoryFixture() (*CategoryJob, *fakeSource, *fakeStorage, *fakeNotifier) {
	source := newFakeSource()
	storage := newFakeStorage()
	sink := &fakeNotifier{}
	return NewCategoryJob(source, storage, sink), source, storage, sink
}

func addFeed(t *testing.T, storage *fakeStorage, f *store.CategoryFeed) *store.CategoryFeed {
	t.Helper()
	created, err := storage.CreateCategoryFeed(context.Background(), f)
	require.NoError(t, err)
	require.True(t, created)
	return f
}

func TestCategoryJobPostsDueFeed(t *testing.T) {
	job, source, storage, sink := newCategoryFixture()
	ctx := context.Background()
	now := time.Now()

	feed := addFeed(t, storage, &store.CategoryFeed{
		ServerID: "srv1", ChannelID: "c1", Slug: "elektronika", Schedule: store.ScheduleHourly,
	})

	source.groupDeals["elektronika"] = []deal.Record{
		{ID: "d1", Title: "RTX 4070", Temperature: 250, CategorySlug: "elektronika"},
		{ID: "d2", Title: "Dysk SSD", Temperature: 90, CategorySlug: "elektronika"},
	}

	require.NoError(t, job.RunOnce(ctx, now))

	got := sink.deliveredTo("channel:c1")
	require.Len(t, got, 1)
	require.Len(t, got[0].deals, 2)
	assert.Equal(t, "d1", got[0].deals[0].ID)

	// Last run advanced, stats recorded
	updated := storage.feedByID(feed.ID)
	require.NotNil(t, updated.LastRunAt)
	assert.Equal(t, int64(2), updated.CheckedCount)
	assert.Equal(t, int64(2), updated.SentCount)

	// Next tick inside the hour does nothing
	require.NoError(t, job.RunOnce(ctx, now.Add(time.Minute)))
	assert.Len(t, sink.deliveredTo("channel:c1"), 1)
}

func TestCategoryJobSkipsDeliveredDeals(t *testing.T) {
	job, source, storage, sink := newCategoryFixture()
	ctx := context.Background()
	now := time.Now()

	addFeed(t, storage, &store.CategoryFeed{
		ServerID: "srv1", ChannelID: "c1", Slug: "agd", Schedule: store.ScheduleHourly,
	})
	_, err := storage.MarkDelivered(ctx, "channel:c1", "old", now)
	require.NoError(t, err)

	source.groupDeals["agd"] = []deal.Record{
		{ID: "old", Title: "Odkurzacz", Temperature: 100},
		{ID: "new", Title: "Ekspres", Temperature: 80},
	}

	require.NoError(t, job.RunOnce(ctx, now))

	got := sink.deliveredTo("channel:c1")
	require.Len(t, got, 1)
	require.Len(t, got[0].deals, 1)
	assert.Equal(t, "new", got[0].deals[0].ID)
}

func TestCategoryJobAppliesFeedFilters(t *testing.T) {
	job, source, storage, sink := newCategoryFixture()
	ctx := context.Background()
	now := time.Now()

	addFeed(t, storage, &store.CategoryFeed{
		ServerID: "srv1", ChannelID: "c1", Slug: "elektronika", Schedule: store.ScheduleHourly,
		MinTemperature: floatPtr(100), MaxPrice: floatPtr(500), Keyword: "ssd",
	})

	source.groupDeals["elektronika"] = []deal.Record{
		{ID: "pass", Title: "Dysk SSD 1TB", Temperature: 150, Price: floatPtr(300)},
		{ID: "cold", Title: "Dysk SSD 2TB", Temperature: 50, Price: floatPtr(300)},
		{ID: "pricy", Title: "Dysk SSD 4TB", Temperature: 150, Price: floatPtr(900)},
		{ID: "offtopic", Title: "Monitor Dell", Temperature: 150, Price: floatPtr(300)},
	}

	require.NoError(t, job.RunOnce(ctx, now))

	got := sink.deliveredTo("channel:c1")
	require.Len(t, got, 1)
	require.Len(t, got[0].deals, 1)
	assert.Equal(t, "pass", got[0].deals[0].ID)
}

func TestCategoryJobCapsBatch(t *testing.T) {
	job, source, storage, sink := newCategoryFixture()
	ctx := context.Background()
	now := time.Now()

	addFeed(t, storage, &store.CategoryFeed{
		ServerID: "srv1", ChannelID: "c1", Slug: "gry", Schedule: store.ScheduleHourly,
	})

	var deals []deal.Record
	for i := 0; i < 15; i++ {
		deals = append(deals, deal.Record{
			ID:          fmt.Sprintf("d%d", i),
			Title:       fmt.Sprintf("Gra %d", i),
			Temperature: float64(i * 10),
		})
	}
	source.groupDeals["gry"] = deals

	require.NoError(t, job.RunOnce(ctx, now))

	got := sink.deliveredTo("channel:c1")
	require.Len(t, got, 1)
	require.Len(t, got[0].deals, maxDealsPerPost)
	assert.Equal(t, "d14", got[0].deals[0].ID)
}

func TestCategoryJobFeedErrorIsolated(t *testing.T) {
	job, source, storage, sink := newCategoryFixture()
	ctx := context.Background()
	now := time.Now()

	failing := addFeed(t, storage, &store.CategoryFeed{
		ServerID: "srv1", ChannelID: "c1", Slug: "missing", Schedule: store.ScheduleHourly,
	})
	addFeed(t, storage, &store.CategoryFeed{
		ServerID: "srv1", ChannelID: "c2", Slug: "agd", Schedule: store.ScheduleHourly,
	})

	source.groupDeals["agd"] = []deal.Record{
		{ID: "d1", Title: "Ekspres", Temperature: 120},
	}
	// Only the first feed's fetch fails
	source.groupErrs["missing"] = cerr.NewTransient("www.pepper.pl", "timeout", nil)

	require.NoError(t, job.RunOnce(ctx, now))
	assert.Equal(t, []string{"missing", "agd"}, source.groupCalls[:2])

	// The failing feed keeps its error counter and stays due
	updated := storage.feedByID(failing.ID)
	assert.Equal(t, int64(1), updated.ErrorCount)
	assert.Nil(t, updated.LastRunAt)
	assert.Empty(t, sink.deliveredTo("channel:c1"))
}

func TestCategoryJobBlockedAbortsCycle(t *testing.T) {
	job, source, storage, _ := newCategoryFixture()
	ctx := context.Background()
	now := time.Now()

	addFeed(t, storage, &store.CategoryFeed{
		ServerID: "srv1", ChannelID: "c1", Slug: "aaa", Schedule: store.ScheduleHourly,
	})
	addFeed(t, storage, &store.CategoryFeed{
		ServerID: "srv1", ChannelID: "c2", Slug: "bbb", Schedule: store.ScheduleHourly,
	})

	source.groupErr = cerr.NewBlocked("www.pepper.pl", "rate limited")

	err := job.RunOnce(ctx, now)
	require.Error(t, err)
	assert.True(t, cerr.IsBlocked(err))
	assert.Len(t, source.groupCalls, 1)
}

func TestCategoryJobEmptyBatchStillAdvancesLastRun(t *testing.T) {
	job, source, storage, sink := newCategoryFixture()
	ctx := context.Background()
	now := time.Now()

	feed := addFeed(t, storage, &store.CategoryFeed{
		ServerID: "srv1", ChannelID: "c1", Slug: "gry", Schedule: store.ScheduleHourly,
		MinTemperature: floatPtr(500),
	})

	source.groupDeals["gry"] = []deal.Record{
		{ID: "d1", Title: "Gra", Temperature: 100},
	}

	require.NoError(t, job.RunOnce(ctx, now))
	assert.Empty(t, sink.deliveries)

	updated := storage.feedByID(feed.ID)
	require.NotNil(t, updated.LastRunAt)
	assert.Equal(t, int64(1), updated.CheckedCount)
	assert.Equal(t, int64(0), updated.SentCount)
}
