package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/clonebot/internal/callback"
	"github.com/noah-isme/clonebot/internal/models"
	"github.com/noah-isme/clonebot/pkg/config"
	appErrors "github.com/noah-isme/clonebot/pkg/errors"
	"github.com/noah-isme/clonebot/pkg/telegram"
)

// MaxSearchLimit caps caller-supplied result limits.
const MaxSearchLimit = 50

type tokenStore interface {
	tokenIssuer
	Redeem(ctx context.Context, token string) (*models.RedemptionToken, error)
}

// SearchOutcome summarises one handled query.
type SearchOutcome struct {
	Decision   models.AccessDecision
	Results    []models.SearchResult
	MessageIDs []int
}

// DeliveryOutcome summarises one handled download click.
type DeliveryOutcome struct {
	Expired    bool
	NeedsStart bool
	Link       string
	MessageID  int
}

// SearchService drives the query and download-click flows. It keeps no state between calls.
type SearchService struct {
	settings  policyReader
	gate      *AccessGate
	corpus    *CorpusService
	tokens    tokenStore
	messenger *EphemeralMessenger
	shortener linkShortener
	activity  *ActivityService
	metrics   *MetricsService
	logger    *zap.Logger

	limit      int
	baseURL    string
	howToURL   string
	defaultCap string
}

// SearchServiceDeps groups the collaborators of SearchService.
type SearchServiceDeps struct {
	Settings  policyReader
	Gate      *AccessGate
	Corpus    *CorpusService
	Tokens    tokenStore
	Messenger *EphemeralMessenger
	Shortener linkShortener
	Activity  *ActivityService
	Metrics   *MetricsService
}

// NewSearchService constructs the search orchestrator.
func NewSearchService(deps SearchServiceDeps, logger *zap.Logger, cfg config.Config) *SearchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	gate := deps.Gate
	if gate == nil {
		gate = NewAccessGate(logger)
	}
	limit := cfg.Search.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	return &SearchService{
		settings:   deps.Settings,
		gate:       gate,
		corpus:     deps.Corpus,
		tokens:     deps.Tokens,
		messenger:  deps.Messenger,
		shortener:  deps.Shortener,
		activity:   deps.Activity,
		metrics:    deps.Metrics,
		logger:     logger,
		limit:      limit,
		baseURL:    cfg.Telegram.PublicBaseURL,
		howToURL:   cfg.Telegram.HowToDownloadURL,
		defaultCap: cfg.Search.DefaultCaption,
	}
}

// Search ranks the corpus for query without access checks or token issuance.
func (s *SearchService) Search(ctx context.Context, query string, limit int) []models.SearchResult {
	if limit <= 0 {
		limit = s.limit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}
	start := time.Now()
	results := Rank(query, s.corpus.AllFiles(ctx), limit)
	s.metrics.RecordSearch(len(results), time.Since(start))
	return results
}

// HandleQuery runs the access gate, ranks the corpus and renders one message per result,
// each carrying a single-use download button.
func (s *SearchService) HandleQuery(ctx context.Context, req Request, query string) (SearchOutcome, error) {
	policy := s.settings.Policy(ctx)
	outcome := SearchOutcome{}

	decision := s.gate.Check(ctx, req.Chat, req.UserID, req.Profile, policy)
	outcome.Decision = decision
	if !decision.Allowed {
		s.metrics.RecordAccessDenied(decision.Reason)
		s.activity.Recordf(ctx, req, "Denied search (%s)", decision.Reason)
		text, keyboard := DenialMessage(decision)
		id, err := s.reply(ctx, req, req.ChatID, text, keyboard, policy.DeleteTimer)
		if err != nil {
			return outcome, err
		}
		outcome.MessageIDs = append(outcome.MessageIDs, id)
		return outcome, nil
	}

	query = strings.TrimSpace(query)
	if query == "" {
		id, err := s.reply(ctx, req, req.ChatID, "🚫 Please provide a search query.\nExample: /search Avengers", nil, policy.DeleteTimer)
		if err != nil {
			return outcome, err
		}
		outcome.MessageIDs = append(outcome.MessageIDs, id)
		return outcome, nil
	}

	s.logger.Info("search", zap.Int64("user_id", req.UserID), zap.String("bot", req.Profile.Username), zap.String("query", query))
	s.activity.Recordf(ctx, req, "Searched for: %s", query)

	results := s.Search(ctx, query, s.limit)
	outcome.Results = results
	if len(results) == 0 {
		return s.noResults(ctx, req, query, policy, outcome)
	}

	caption := policy.SearchCaption
	if caption == "" {
		caption = s.defaultCap
	}
	for _, result := range results {
		if result.File.DownloadTarget == "" {
			s.logger.Debug("result has no download target yet", zap.String("file_id", result.File.ID))
			continue
		}
		token, err := s.tokens.Issue(ctx, result.File.DownloadTarget, result.File.ID)
		if err != nil {
			s.logger.Warn("issue token for result", zap.String("file_id", result.File.ID), zap.Error(err))
			continue
		}
		text := fmt.Sprintf("%s\n\n%d. %s (%s)", html.EscapeString(caption), result.Rank,
			html.EscapeString(result.File.Filename), html.EscapeString(displaySize(result.File)))
		keyboard := telegram.Keyboard{}.Row(telegram.DataButton("☁️ Get Download Link 📥", callback.Download{Token: token}.Encode()))
		id, err := s.reply(ctx, req, req.ChatID, text, keyboard, policy.DeleteTimer)
		if err != nil {
			return outcome, err
		}
		outcome.MessageIDs = append(outcome.MessageIDs, id)
	}
	if len(outcome.MessageIDs) == 0 {
		return s.noResults(ctx, req, query, policy, outcome)
	}
	return outcome, nil
}

// noResults answers a query for which no result could be delivered.
func (s *SearchService) noResults(ctx context.Context, req Request, query string, policy models.AccessPolicy, outcome SearchOutcome) (SearchOutcome, error) {
	id, err := s.reply(ctx, req, req.ChatID, fmt.Sprintf("🚫 No results found for '%s'.", html.EscapeString(query)), nil, policy.DeleteTimer)
	if err != nil {
		return outcome, err
	}
	outcome.MessageIDs = append(outcome.MessageIDs, id)
	return outcome, nil
}

// HandleDownloadClick redeems token and delivers the link to the user privately. A spent or
// unknown token yields an "expired" reply and is never re-issued from the stale reference.
func (s *SearchService) HandleDownloadClick(ctx context.Context, req Request, token string) (DeliveryOutcome, error) {
	policy := s.settings.Policy(ctx)

	redeemed, err := s.tokens.Redeem(ctx, token)
	if err != nil {
		if !errors.Is(err, appErrors.ErrTokenNotFound) {
			return DeliveryOutcome{}, err
		}
		id, sendErr := s.reply(ctx, req, req.ChatID, "⌛ This download link has expired. Please search again.", nil, policy.DeleteTimer)
		return DeliveryOutcome{Expired: true, MessageID: id}, sendErr
	}

	link := redeemed.Target
	if s.baseURL != "" {
		fresh, err := s.tokens.Issue(ctx, redeemed.Target, redeemed.IssuedFor)
		if err != nil {
			return DeliveryOutcome{}, err
		}
		link = RedirectURL(s.baseURL, fresh)
	}
	if s.shortener != nil {
		link = s.shortener.Shorten(ctx, link, policy.Shortener)
	}

	text := s.deliveryText(ctx, redeemed.IssuedFor)
	keyboard := telegram.Keyboard{}.
		Row(telegram.URLButton("📥 Download", link)).
		Row(telegram.DataButton("❓ How to download", callback.HowTo{}.Encode()))

	id, err := s.reply(ctx, req, req.UserID, text, keyboard, policy.DeleteTimer)
	if err != nil {
		if !telegram.IsBlocked(err) {
			return DeliveryOutcome{}, err
		}
		prompt := telegram.Keyboard{}
		if req.Profile.Username != "" {
			prompt = prompt.Row(telegram.URLButton("🤖 Start bot", "https://t.me/"+req.Profile.Username))
		}
		id, err = s.reply(ctx, req, req.ChatID, "🔐 Please start me in private first, then search again to get your link.", prompt, policy.DeleteTimer)
		return DeliveryOutcome{NeedsStart: true, MessageID: id}, err
	}

	s.activity.Recordf(ctx, req, "Received download link for file %s", redeemed.IssuedFor)
	return DeliveryOutcome{Link: link, MessageID: id}, nil
}

// HandleHowTo answers the "how to download" button.
func (s *SearchService) HandleHowTo(ctx context.Context, req Request) error {
	policy := s.settings.Policy(ctx)
	text := "ℹ️ Tap <b>Download</b>, wait for the page to load and follow the on-screen steps."
	var keyboard telegram.Keyboard
	if s.howToURL != "" {
		keyboard = keyboard.Row(telegram.URLButton("📖 Guide", s.howToURL))
	}
	_, err := s.reply(ctx, req, req.ChatID, text, keyboard, policy.DeleteTimer)
	return err
}

// DenialMessage renders an access decision for the chat.
func DenialMessage(decision models.AccessDecision) (string, telegram.Keyboard) {
	switch decision.Reason {
	case models.DenyNotSubscribed:
		keyboard := telegram.Keyboard{}
		for _, prompt := range decision.Prompts {
			if prompt.URL == "" {
				continue
			}
			keyboard = keyboard.Row(telegram.URLButton(fmt.Sprintf("🔗 Join @%s", prompt.Channel), prompt.URL))
		}
		return "🚫 You must join the following channels to use this bot!", keyboard
	case models.DenyMembershipError:
		return "⚠️ Could not verify your channel membership right now. Please try again later.", nil
	case models.DenyPrivateBot:
		return "🔒 This bot is private. Only its owner can use it.", nil
	default:
		return "🚫 Access denied.", nil
	}
}

func (s *SearchService) deliveryText(ctx context.Context, fileID string) string {
	file, err := s.corpus.Find(ctx, fileID)
	if err != nil {
		return "📥 Your download link is ready."
	}
	text := fmt.Sprintf("📥 <b>%s</b> (%s)\n\nYour download link is ready.", html.EscapeString(file.Filename), html.EscapeString(displaySize(*file)))
	if file.IsLarge() {
		text += "\n\n⚠️ This file is larger than 2 GB. Use a download manager for a stable transfer."
	}
	return text
}

func (s *SearchService) reply(ctx context.Context, req Request, chatID int64, text string, keyboard telegram.Keyboard, timer string) (int, error) {
	id, err := req.Chat.SendText(ctx, chatID, text, keyboard)
	if err != nil {
		return 0, err
	}
	s.messenger.ScheduleDeletion(req.Chat, chatID, id, timer)
	return id, nil
}

func displaySize(file models.FileRecord) string {
	if file.Size == "" {
		return models.UnknownSize
	}
	return file.Size
}
