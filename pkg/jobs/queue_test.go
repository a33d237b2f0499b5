package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	done := make(chan Job, 1)
	q := NewQueue("test", func(_ context.Context, job Job) error {
		done <- job
		return nil
	}, QueueConfig{Workers: 1})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{Type: "delete_message", Payload: 42}))

	select {
	case job := <-done:
		assert.Equal(t, "delete_message", job.Type)
		assert.NotEmpty(t, job.ID)
		assert.Equal(t, 42, job.Payload)
	case <-time.After(time.Second):
		t.Fatal("job not processed")
	}
}

func TestQueueRejectsBeforeStart(t *testing.T) {
	q := NewQueue("idle", func(context.Context, Job) error { return nil }, QueueConfig{})
	assert.Error(t, q.Enqueue(Job{Type: "x"}))
	assert.Error(t, q.EnqueueAfter(Job{Type: "x"}, time.Second))
}

func TestQueueEnqueueAfterWaitsForDelay(t *testing.T) {
	fired := make(chan time.Time, 1)
	q := NewQueue("delayed", func(context.Context, Job) error {
		fired <- time.Now()
		return nil
	}, QueueConfig{Workers: 1})
	q.Start(context.Background())
	defer q.Stop()

	start := time.Now()
	require.NoError(t, q.EnqueueAfter(Job{Type: "delete_message"}, 50*time.Millisecond))

	select {
	case at := <-fired:
		assert.GreaterOrEqual(t, at.Sub(start), 50*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("delayed job not processed")
	}
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	var calls int32
	done := make(chan struct{})
	q := NewQueue("retry", func(context.Context, Job) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}, QueueConfig{Workers: 1, MaxRetries: 3, RetryDelay: 5 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{Type: "broadcast"}))

	select {
	case <-done:
		assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	case <-time.After(2 * time.Second):
		t.Fatal("job was not retried")
	}
}

func TestMuxRoutesByType(t *testing.T) {
	mux := NewMux()
	var got string
	mux.Handle("a", func(_ context.Context, job Job) error {
		got = job.ID
		return nil
	})

	require.NoError(t, mux.Process(context.Background(), Job{ID: "1", Type: "a"}))
	assert.Equal(t, "1", got)
	assert.Error(t, mux.Process(context.Background(), Job{ID: "2", Type: "b"}))
}
