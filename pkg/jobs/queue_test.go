package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestQueueProcessesJobs(t *testing.T) {
	var processed int32
	done := make(chan struct{}, 3)
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&processed, 1)
		done <- struct{}{}
		return nil
	}, QueueConfig{Workers: 2})

	q.Start(context.Background())
	defer q.Stop()

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(context.Background(), Job{ID: "job", Type: "noop"}))
	}
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("job not processed")
		}
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&processed))
}

func TestQueueRetriesThenGivesUp(t *testing.T) {
	var attempts int32
	var mu sync.Mutex
	var gaveUp *Job
	finished := make(chan struct{})

	q := NewQueue("retry", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("boom")
	}, QueueConfig{
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		OnGiveUp: func(job Job, err error) {
			mu.Lock()
			gaveUp = &job
			mu.Unlock()
			close(finished)
		},
	})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(context.Background(), Job{ID: "x"}))

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("queue never gave up")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, gaveUp)
	assert.Equal(t, 3, gaveUp.Attempt)
}

func TestStopWaitsForScheduledRetries(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	var attempts int32
	failing := make(chan struct{}, 1)

	q := NewQueue("stopping", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&attempts, 1)
		select {
		case failing <- struct{}{}:
		default:
		}
		return errors.New("boom")
	}, QueueConfig{
		Workers:    2,
		MaxRetries: 1000,
		RetryDelay: time.Millisecond,
		MaxDelay:   time.Millisecond,
		Logger:     zap.New(core),
	})

	q.Start(context.Background())
	for i := 0; i < 4; i++ {
		require.NoError(t, q.Enqueue(context.Background(), Job{ID: "retry"}))
	}
	select {
	case <-failing:
	case <-time.After(time.Second):
		t.Fatal("job never ran")
	}
	q.Stop()

	entries := logs.All()
	require.NotEmpty(t, entries)
	assert.Equal(t, "queue stopped", entries[len(entries)-1].Message)
	assert.Zero(t, logs.FilterMessage("failed to requeue job").Len())

	stoppedAt := atomic.LoadInt32(&attempts)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stoppedAt, atomic.LoadInt32(&attempts))
	assert.Len(t, logs.All(), len(entries))
}

func TestEnqueueBeforeStart(t *testing.T) {
	q := NewQueue("idle", func(context.Context, Job) error { return nil }, QueueConfig{})
	err := q.Enqueue(context.Background(), Job{ID: "x"})
	assert.ErrorIs(t, err, ErrQueueStopped)
}

func TestRetryDelayIsCapped(t *testing.T) {
	q := NewQueue("delay", nil, QueueConfig{RetryDelay: time.Second, MaxDelay: 5 * time.Second})
	assert.Equal(t, time.Second, q.retryDelay(1))
	assert.Equal(t, 2*time.Second, q.retryDelay(2))
	assert.Equal(t, 4*time.Second, q.retryDelay(3))
	assert.Equal(t, 5*time.Second, q.retryDelay(4))
}
