package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clonebot/internal/models"
	"github.com/noah-isme/clonebot/pkg/config"
	appErrors "github.com/noah-isme/clonebot/pkg/errors"
)

type passthroughShortener struct{ kinds []models.ShortenerKind }

func (s *passthroughShortener) Shorten(_ context.Context, rawURL string, kind models.ShortenerKind) string {
	s.kinds = append(s.kinds, kind)
	return rawURL
}

type linkFixture struct {
	svc    *LinkService
	repo   *fileRepoStub
	vault  *TokenVault
	poster *textSenderStub
}

func newLinkFixture(t *testing.T, uploadURL, apiKey string, policy models.AccessPolicy, baseURL string) linkFixture {
	t.Helper()
	repo := &fileRepoStub{}
	vault := newVault()
	poster := &textSenderStub{}
	cfg := config.Config{Telegram: config.TelegramConfig{PublicBaseURL: baseURL}}
	svc := NewLinkService(LinkServiceDeps{
		Corpus:    NewCorpusService(repo, nil),
		Tokens:    vault,
		Settings:  staticPolicy{policy: policy},
		Uploader:  NewUploadClient(config.UploadConfig{APIKey: apiKey, APIURL: uploadURL, Timeout: time.Second}, nil),
		Shortener: &passthroughShortener{},
		Poster:    poster,
	}, nil, nil, cfg)
	return linkFixture{svc: svc, repo: repo, vault: vault, poster: poster}
}

func TestLinkServiceUploadRecordsFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.URL.Query().Get("api_key"))
		assert.Equal(t, "https://example.com/media/Movie.2019.mkv", r.URL.Query().Get("url"))
		_, _ = w.Write([]byte(`{"status":"success","download_link":"https://host.example/d/abc"}`))
	}))
	defer srv.Close()

	fx := newLinkFixture(t, srv.URL, "key", models.AccessPolicy{DBChannelID: -1009}, "")
	record, err := fx.svc.Upload(context.Background(), "https://example.com/media/Movie.2019.mkv")
	require.NoError(t, err)

	assert.Equal(t, "1", record.ID)
	assert.Equal(t, "Movie.2019.mkv", record.Filename)
	assert.Equal(t, models.UnknownSize, record.Size)
	assert.Equal(t, "https://host.example/d/abc", record.DownloadTarget)
	require.Len(t, fx.repo.files, 1)
	require.Len(t, fx.poster.sent, 1)
	assert.Equal(t, int64(-1009), fx.poster.sent[0].chatID)
}

func TestLinkServiceUploadConfigurationErrorsWriteNothing(t *testing.T) {
	fx := newLinkFixture(t, "http://127.0.0.1:1", "", models.AccessPolicy{DBChannelID: -1009}, "")
	_, err := fx.svc.Upload(context.Background(), "https://example.com/a.mkv")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrConfiguration))

	fx = newLinkFixture(t, "http://127.0.0.1:1", "key", models.AccessPolicy{}, "")
	_, err = fx.svc.Upload(context.Background(), "https://example.com/a.mkv")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrConfiguration))
	assert.Empty(t, fx.repo.files)
}

func TestLinkServiceUploadRejectsInvalidURL(t *testing.T) {
	fx := newLinkFixture(t, "http://127.0.0.1:1", "key", models.AccessPolicy{DBChannelID: -1009}, "")
	_, err := fx.svc.Upload(context.Background(), "not a url")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestLinkServiceUploadUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"error","message":"quota exceeded"}`))
	}))
	defer srv.Close()

	fx := newLinkFixture(t, srv.URL, "key", models.AccessPolicy{DBChannelID: -1009}, "")
	_, err := fx.svc.Upload(context.Background(), "https://example.com/a.mkv")
	assert.True(t, errors.Is(err, appErrors.ErrUpstream))
	assert.Empty(t, fx.repo.files)
}

func TestLinkServiceBatch(t *testing.T) {
	fx := newLinkFixture(t, "", "", models.AccessPolicy{}, "https://bot.example.com")
	fx.repo.files = []models.FileRecord{
		{ID: "1", Filename: "a", DownloadTarget: "https://t/1"},
		{ID: "2", Filename: "b", DownloadTarget: "https://t/2"},
		{ID: "3", Filename: "c", DownloadTarget: "https://t/3"},
		{ID: "legacy", Filename: "d", DownloadTarget: "https://t/4"},
	}
	ctx := context.Background()

	files, err := fx.svc.Batch(ctx, 2, 3)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "b", files[0].Filename)

	_, err = fx.svc.Batch(ctx, 5, 9)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = fx.svc.Batch(ctx, 3, 2)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = fx.svc.Batch(ctx, 1, MaxBatchSpan+1)
	assert.True(t, errors.Is(err, appErrors.ErrLimitReached))
}

func TestLinkServiceGenLinkIssuesRedeemableToken(t *testing.T) {
	fx := newLinkFixture(t, "", "", models.AccessPolicy{Shortener: models.ShortenerTinyURL}, "https://bot.example.com/")
	fx.repo.files = []models.FileRecord{{ID: "1", Filename: "a", DownloadTarget: "https://t/1"}}
	ctx := context.Background()

	link, err := fx.svc.GenLink(ctx, "1")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(link.Link, "https://bot.example.com/redirect/"))

	token := strings.TrimPrefix(link.Link, "https://bot.example.com/redirect/")
	redeemed, err := fx.vault.Redeem(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "https://t/1", redeemed.Target)

	links, err := fx.svc.BatchGen(ctx, 1, 1)
	require.NoError(t, err)
	assert.Len(t, links, 1)
}

func TestLinkServiceGenLinkRequiresBaseURL(t *testing.T) {
	fx := newLinkFixture(t, "", "", models.AccessPolicy{}, "")
	fx.repo.files = []models.FileRecord{{ID: "1", Filename: "a", DownloadTarget: "https://t/1"}}

	_, err := fx.svc.GenLink(context.Background(), "1")
	assert.True(t, errors.Is(err, appErrors.ErrConfiguration))
}

func TestFilenameFromURL(t *testing.T) {
	assert.Equal(t, "file.mp4", FilenameFromURL("https://example.com/a/file.mp4?x=1"))
	assert.Equal(t, "file", FilenameFromURL("https://example.com/"))
}
