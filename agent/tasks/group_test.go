package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroup_RemovesOnCompletion(t *testing.T) {
	g := NewGroup(context.Background(), Config{}, nil)
	defer g.Close()

	release := make(chan struct{})
	_, err := g.Go("ingest", func(ctx context.Context) error {
		<-release
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, g.Len())

	close(release)
	g.Wait()
	assert.Equal(t, 0, g.Len())
	assert.Equal(t, int64(1), g.Stats().Completed)
}

func TestGroup_FailuresAndPanicsAreContained(t *testing.T) {
	g := NewGroup(context.Background(), Config{}, nil)
	defer g.Close()

	_, err := g.Go("fails", func(ctx context.Context) error { return errors.New("boom") })
	require.NoError(t, err)
	_, err = g.Go("panics", func(ctx context.Context) error { panic("bad image") })
	require.NoError(t, err)
	_, err = g.Go("ok", func(ctx context.Context) error { return nil })
	require.NoError(t, err)

	g.Wait()
	stats := g.Stats()
	assert.Equal(t, int64(3), stats.Submitted)
	assert.Equal(t, int64(2), stats.Failed)
	assert.Equal(t, int64(1), stats.Completed)
	assert.Equal(t, 0, stats.Running)
}

func TestGroup_CloseCancelsAndWaits(t *testing.T) {
	g := NewGroup(context.Background(), Config{}, nil)

	var cancelled atomic.Bool
	_, err := g.Go("slow", func(ctx context.Context) error {
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	})
	require.NoError(t, err)

	g.Close()
	assert.True(t, cancelled.Load())
	assert.Equal(t, 0, g.Len())

	_, err = g.Go("late", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrGroupClosed)
	g.Close()
}

func TestGroup_LimitQueuesWithoutBlocking(t *testing.T) {
	g := NewGroup(context.Background(), Config{MaxConcurrent: 1}, nil)
	defer g.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	_, err := g.Go("first", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	require.NoError(t, err)
	<-started

	var secondRan atomic.Bool
	done := make(chan error, 1)
	go func() {
		_, err := g.Go("second", func(ctx context.Context) error {
			secondRan.Store(true)
			return nil
		})
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Go blocked on a full group")
	}
	require.Eventually(t, func() bool { return g.Stats().Queued == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, secondRan.Load())
	assert.Equal(t, 2, g.Len())

	close(release)
	g.Wait()
	assert.True(t, secondRan.Load())
	stats := g.Stats()
	assert.Equal(t, int64(2), stats.Completed)
	assert.Zero(t, stats.Queued)
}

func TestGroup_CloseCancelsQueuedTasks(t *testing.T) {
	g := NewGroup(context.Background(), Config{MaxConcurrent: 1}, nil)

	started := make(chan struct{})
	_, err := g.Go("holder", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return nil
	})
	require.NoError(t, err)
	<-started

	var queuedRan atomic.Bool
	_, err = g.Go("queued", func(ctx context.Context) error {
		queuedRan.Store(true)
		return nil
	})
	require.NoError(t, err)

	g.Close()
	assert.False(t, queuedRan.Load())
	assert.Equal(t, 0, g.Len())
	assert.Equal(t, int64(1), g.Stats().Failed)
}

func TestGroup_OnChangeReportsRunningCount(t *testing.T) {
	var last atomic.Int64
	var peak atomic.Int64
	g := NewGroup(context.Background(), Config{OnChange: func(n int) {
		last.Store(int64(n))
		if int64(n) > peak.Load() {
			peak.Store(int64(n))
		}
	}}, nil)
	defer g.Close()

	release := make(chan struct{})
	for i := 0; i < 3; i++ {
		_, err := g.Go("stream", func(ctx context.Context) error {
			<-release
			return nil
		})
		require.NoError(t, err)
	}
	assert.Len(t, g.Running(), 3)

	close(release)
	g.Wait()
	assert.Equal(t, int64(3), peak.Load())
	assert.Equal(t, int64(0), last.Load())
}
