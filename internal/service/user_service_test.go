package service

import (
	"context"
	"errors"
	"net/url"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clonebot/internal/models"
	appErrors "github.com/noah-isme/clonebot/pkg/errors"
	"github.com/noah-isme/clonebot/pkg/jobs"
)

type userRepoStub struct {
	users   []models.BotUser
	appends int
}

func (r *userRepoStub) List(context.Context) ([]models.BotUser, error) {
	return append([]models.BotUser(nil), r.users...), nil
}

func (r *userRepoStub) Append(_ context.Context, user models.BotUser) error {
	r.appends++
	r.users = append(r.users, user)
	return nil
}

func TestUserServiceTouchRecordsOnce(t *testing.T) {
	repo := &userRepoStub{users: []models.BotUser{{ID: 1}}}
	svc := NewUserService(repo, &recordingQueue{}, nil)
	ctx := context.Background()

	created, err := svc.Touch(ctx, models.BotUser{ID: 1})
	require.NoError(t, err)
	assert.False(t, created)

	created, err = svc.Touch(ctx, models.BotUser{ID: 2, Username: "bob"})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = svc.Touch(ctx, models.BotUser{ID: 2})
	require.NoError(t, err)
	assert.False(t, created)

	assert.Equal(t, 1, repo.appends)
	assert.Equal(t, 2, svc.Count(ctx))
	assert.False(t, repo.users[1].FirstSeen.IsZero())
}

func TestUserServiceBroadcastFansOut(t *testing.T) {
	queue := &recordingQueue{}
	repo := &userRepoStub{users: []models.BotUser{{ID: 1}, {ID: 2}, {ID: 3}}}
	svc := NewUserService(repo, queue, nil)
	sender := &textSenderStub{}

	queued, err := svc.Broadcast(context.Background(), sender, "  maintenance tonight  ")
	require.NoError(t, err)
	assert.Equal(t, 3, queued)
	require.Len(t, queue.jobs, 3)

	for _, job := range queue.jobs {
		assert.Equal(t, JobBroadcastMessage, job.Type)
		require.NoError(t, svc.HandleBroadcastJob(context.Background(), job))
	}
	require.Len(t, sender.sent, 3)
	assert.Equal(t, "maintenance tonight", sender.sent[2].text)
	assert.Equal(t, int64(3), sender.sent[2].chatID)
}

func TestUserServiceBroadcastValidation(t *testing.T) {
	svc := NewUserService(&userRepoStub{}, &recordingQueue{}, nil)
	_, err := svc.Broadcast(context.Background(), &textSenderStub{}, "   ")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func jobFor(sender textSender) jobs.Job {
	return jobs.Job{ID: "job-1", Type: JobBroadcastMessage, Payload: BroadcastPayload{Sender: sender, ChatID: 5, Text: "hi"}}
}

func TestUserServiceBroadcastJobErrors(t *testing.T) {
	svc := NewUserService(&userRepoStub{}, &recordingQueue{}, nil)
	job := func(err error) error {
		return svc.HandleBroadcastJob(context.Background(), jobFor(&textSenderStub{err: err}))
	}

	assert.NoError(t, job(&tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}))
	assert.Error(t, job(&url.Error{Op: "Post", URL: "https://api.telegram.org", Err: errors.New("timeout")}))
	assert.NoError(t, job(&tgbotapi.Error{Code: 400, Message: "Bad Request: chat not found"}))
}

func TestStatsServiceAggregatesFromServices(t *testing.T) {
	users := NewUserService(&userRepoStub{users: []models.BotUser{{ID: 1}, {ID: 2}}}, nil, nil)
	corpus := NewCorpusService(&fileRepoStub{files: avengersCorpus()}, nil)
	clones := NewCloneService(&botRepoStub{bots: []models.ClonedBot{{ID: "a"}}}, nil, nil, nil, nil, testConfig())
	vault := newVault()
	_, err := vault.Issue(context.Background(), "https://host/1", "1")
	require.NoError(t, err)

	stats := NewStatsService(users, corpus, clones, vault).Stats(context.Background())
	assert.Equal(t, models.Stats{Users: 2, Files: 3, Clones: 1, PendingTokens: 1}, stats)
}
