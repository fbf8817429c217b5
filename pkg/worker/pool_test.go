package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPool_RunsTasks(t *testing.T) {
	p := NewPool(discardLogger(), WithWorkers(3), WithQueueSize(100))

	var n atomic.Int64
	for i := 0; i < 50; i++ {
		ok := p.Submit("inc", func(ctx context.Context) error {
			n.Add(1)
			return nil
		})
		require.True(t, ok)
	}

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, int64(50), n.Load())
}

func TestPool_FailingTaskIsNotRetried(t *testing.T) {
	p := NewPool(discardLogger(), WithWorkers(1))

	var calls atomic.Int64
	p.Submit("fail", func(ctx context.Context) error {
		calls.Add(1)
		return errors.New("store unavailable")
	})
	p.Submit("panic", func(ctx context.Context) error {
		panic("boom")
	})

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, int64(1), calls.Load())
}

func TestPool_TaskTimeout(t *testing.T) {
	p := NewPool(discardLogger(), WithWorkers(1), WithTaskTimeout(10*time.Millisecond))

	var ctxErr atomic.Value
	p.Submit("slow", func(ctx context.Context) error {
		<-ctx.Done()
		ctxErr.Store(ctx.Err())
		return ctx.Err()
	})

	require.NoError(t, p.Shutdown(context.Background()))
	assert.ErrorIs(t, ctxErr.Load().(error), context.DeadlineExceeded)
}

func TestPool_DropsWhenQueueFull(t *testing.T) {
	p := NewPool(discardLogger(), WithWorkers(1), WithQueueSize(1))

	release := make(chan struct{})
	started := make(chan struct{})

	require.True(t, p.Submit("block", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started

	require.True(t, p.Submit("queued", func(ctx context.Context) error { return nil }))
	assert.False(t, p.Submit("dropped", func(ctx context.Context) error { return nil }))

	close(release)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPool_Shutdown(t *testing.T) {
	t.Run("rejects after shutdown", func(t *testing.T) {
		p := NewPool(discardLogger())

		require.NoError(t, p.Shutdown(context.Background()))
		require.NoError(t, p.Shutdown(context.Background()))

		assert.False(t, p.Submit("late", func(ctx context.Context) error { return nil }))
	})

	t.Run("context deadline", func(t *testing.T) {
		p := NewPool(discardLogger(), WithWorkers(1))

		release := make(chan struct{})
		p.Submit("block", func(ctx context.Context) error {
			<-release
			return nil
		})

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		err := p.Shutdown(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		close(release)
	})

	t.Run("concurrent submit and shutdown", func(t *testing.T) {
		p := NewPool(discardLogger(), WithWorkers(2), WithQueueSize(8))

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					p.Submit("noop", func(ctx context.Context) error { return nil })
				}
			}()
		}

		require.NoError(t, p.Shutdown(context.Background()))
		wg.Wait()
	})
}
