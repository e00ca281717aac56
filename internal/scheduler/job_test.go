package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerr "sjsage522/pepperwatch/pkg/errors"
)

func TestJobTickRunsAndResets(t *testing.T) {
	var runs int32
	job := NewJob("test", time.Minute, func(context.Context, time.Time) error {
		atomic.AddInt32(&runs, 1)
		return nil
	})

	assert.Equal(t, StateIdle, job.State())
	assert.True(t, job.Tick(context.Background(), time.Now()))
	assert.Equal(t, StateIdle, job.State())
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
}

func TestJobBacksOffAfterFailure(t *testing.T) {
	now := time.Now()
	var runs int32
	job := NewJob("test", time.Minute, func(context.Context, time.Time) error {
		atomic.AddInt32(&runs, 1)
		return errors.New("boom")
	})

	assert.True(t, job.Tick(context.Background(), now))
	assert.Equal(t, StateBackoff, job.State())

	// Within the minimum backoff window the tick is skipped
	assert.False(t, job.Tick(context.Background(), now.Add(10*time.Second)))
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))

	// Well past any jittered delay the job runs again
	assert.True(t, job.Tick(context.Background(), now.Add(2*backoffBase)))
	assert.Equal(t, int32(2), atomic.LoadInt32(&runs))
}

func TestJobRecoveryClearsBackoff(t *testing.T) {
	now := time.Now()
	var fail atomic.Bool
	fail.Store(true)
	job := NewJob("test", time.Minute, func(context.Context, time.Time) error {
		if fail.Load() {
			return errors.New("boom")
		}
		return nil
	})

	require.True(t, job.Tick(context.Background(), now))
	require.Equal(t, StateBackoff, job.State())

	fail.Store(false)
	require.True(t, job.Tick(context.Background(), now.Add(2*backoffBase)))
	assert.Equal(t, StateIdle, job.State())

	// A fresh tick right after success is not delayed
	assert.True(t, job.Tick(context.Background(), now.Add(2*backoffBase+time.Second)))
}

func TestJobBlockedUsesLongerBackoff(t *testing.T) {
	now := time.Now()
	job := NewJob("test", time.Minute, func(context.Context, time.Time) error {
		return cerr.NewBlocked("www.pepper.pl", "rate limited")
	})

	require.True(t, job.Tick(context.Background(), now))

	// Still backing off past the normal base; the blocked base is longer
	assert.False(t, job.Tick(context.Background(), now.Add(2*backoffBase)))
	assert.True(t, job.Tick(context.Background(), now.Add(2*blockedBackoffBase)))
}

func TestJobSkipsOverlappingRuns(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	job := NewJob("test", time.Minute, func(context.Context, time.Time) error {
		close(started)
		<-release
		return nil
	})

	done := make(chan bool)
	go func() {
		done <- job.Tick(context.Background(), time.Now())
	}()

	<-started
	assert.Equal(t, StateRunning, job.State())
	assert.False(t, job.Tick(context.Background(), time.Now()))

	close(release)
	assert.True(t, <-done)
	assert.Equal(t, StateIdle, job.State())
}

func TestJobRunStopsOnCancel(t *testing.T) {
	job := NewJob("test", 10*time.Millisecond, func(context.Context, time.Time) error {
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		job.Run(ctx)
		close(stopped)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("job did not stop after cancellation")
	}
}
