package service

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clonebot/pkg/jobs"
)

func TestParseDeleteTimer(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Duration
		ok   bool
	}{
		{"10m", 600 * time.Second, true},
		{"1h", 3600 * time.Second, true},
		{"5M", 5 * time.Minute, true},
		{"2H", 2 * time.Hour, true},
		{" 15m ", 15 * time.Minute, true},
		{"0m", 0, false},
		{"0h", 0, false},
		{"garbage", 0, false},
		{"m", 0, false},
		{"10", 0, false},
		{"10s", 0, false},
		{"-5m", 0, false},
		{"1.5h", 0, false},
		{"99999999999999999999h", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseDeleteTimer(tc.raw)
		assert.Equal(t, tc.ok, ok, tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
	}
}

func TestHumanizeDeleteTimer(t *testing.T) {
	assert.Equal(t, "10 minutes", HumanizeDeleteTimer("10m"))
	assert.Equal(t, "1 hour", HumanizeDeleteTimer("1h"))
	assert.Equal(t, "2 hours", HumanizeDeleteTimer("120m"))
	assert.Equal(t, "disabled", HumanizeDeleteTimer("0m"))
}

type fakeScheduler struct {
	mu     sync.Mutex
	jobs   []jobs.Job
	delays []time.Duration
	err    error
}

func (f *fakeScheduler) EnqueueAfter(job jobs.Job, delay time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	f.delays = append(f.delays, delay)
	return nil
}

type deleterStub struct {
	mu      sync.Mutex
	deleted []int
	err     error
}

func (d *deleterStub) DeleteMessage(_ context.Context, _ int64, messageID int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deleted = append(d.deleted, messageID)
	return d.err
}

func TestScheduleDeletionUsesParsedDelay(t *testing.T) {
	scheduler := &fakeScheduler{}
	messenger := NewEphemeralMessenger(scheduler, nil)
	deleter := &deleterStub{}

	assert.True(t, messenger.ScheduleDeletion(deleter, 10, 99, "5m"))
	require.Len(t, scheduler.delays, 1)
	assert.Equal(t, 300*time.Second, scheduler.delays[0])
	assert.Equal(t, JobDeleteMessage, scheduler.jobs[0].Type)

	payload := scheduler.jobs[0].Payload.(DeleteMessagePayload)
	assert.Equal(t, int64(10), payload.ChatID)
	assert.Equal(t, 99, payload.MessageID)
}

func TestScheduleDeletionDisabledTimer(t *testing.T) {
	scheduler := &fakeScheduler{}
	messenger := NewEphemeralMessenger(scheduler, nil)

	assert.False(t, messenger.ScheduleDeletion(&deleterStub{}, 10, 99, "0m"))
	assert.False(t, messenger.ScheduleDeletion(&deleterStub{}, 10, 99, "soon"))
	assert.Empty(t, scheduler.jobs)
}

func TestScheduleDeletionSwallowsSchedulerErrors(t *testing.T) {
	messenger := NewEphemeralMessenger(&fakeScheduler{err: errors.New("queue stopped")}, nil)
	assert.False(t, messenger.ScheduleDeletion(&deleterStub{}, 10, 99, "5m"))
}

func TestHandleDeleteJobIgnoresAlreadyDeleted(t *testing.T) {
	messenger := NewEphemeralMessenger(nil, nil)
	gone := &deleterStub{err: &tgbotapi.Error{Code: 400, Message: "Bad Request: message to delete not found"}}

	err := messenger.HandleDeleteJob(context.Background(), jobs.Job{Type: JobDeleteMessage, Payload: DeleteMessagePayload{Deleter: gone, ChatID: 1, MessageID: 2}})
	assert.NoError(t, err)
	assert.Equal(t, []int{2}, gone.deleted)

	flaky := &deleterStub{err: &url.Error{Op: "Post", URL: "https://api.telegram.org", Err: errors.New("connection reset")}}
	err = messenger.HandleDeleteJob(context.Background(), jobs.Job{Type: JobDeleteMessage, Payload: DeleteMessagePayload{Deleter: flaky, ChatID: 1, MessageID: 3}})
	assert.Error(t, err)

	forbidden := &deleterStub{err: &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was kicked"}}
	err = messenger.HandleDeleteJob(context.Background(), jobs.Job{Type: JobDeleteMessage, Payload: DeleteMessagePayload{Deleter: forbidden, ChatID: 1, MessageID: 4}})
	assert.NoError(t, err)
}

func TestDeletionFiresAfterDelayThroughQueue(t *testing.T) {
	deleter := &deleterStub{}
	var messenger *EphemeralMessenger
	queue := jobs.NewQueue("ephemeral", func(ctx context.Context, job jobs.Job) error {
		return messenger.HandleDeleteJob(ctx, job)
	}, jobs.QueueConfig{Workers: 1})
	messenger = NewEphemeralMessenger(queue, nil)
	queue.Start(context.Background())
	defer queue.Stop()

	// the queue treats the parsed timer as a relative delay; drive it with a short one
	require.NoError(t, queue.EnqueueAfter(jobs.Job{Type: JobDeleteMessage, Payload: DeleteMessagePayload{Deleter: deleter, ChatID: 1, MessageID: 7}}, 40*time.Millisecond))

	time.Sleep(10 * time.Millisecond)
	deleter.mu.Lock()
	assert.Empty(t, deleter.deleted)
	deleter.mu.Unlock()

	assert.Eventually(t, func() bool {
		deleter.mu.Lock()
		defer deleter.mu.Unlock()
		return len(deleter.deleted) == 1
	}, time.Second, 5*time.Millisecond)
}
