package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clonebot/pkg/retry"
)

func fakeBotAPI(t *testing.T, handler func(method string, form url.Values) string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		parts := strings.Split(r.URL.Path, "/")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, handler(parts[len(parts)-1], r.Form))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func options(srv *httptest.Server) Options {
	return Options{Endpoint: srv.URL + "/bot%s/%s", HTTPClient: srv.Client()}
}

func TestVerifyReturnsIdentity(t *testing.T) {
	srv := fakeBotAPI(t, func(method string, _ url.Values) string {
		if method == "getMe" {
			return `{"ok":true,"result":{"id":77,"is_bot":true,"first_name":"Clone","username":"clone_bot"}}`
		}
		return `{"ok":false,"error_code":404,"description":"Not Found"}`
	})

	id, err := Verify(context.Background(), "77:abc", options(srv))
	require.NoError(t, err)
	assert.Equal(t, Identity{ID: 77, Username: "clone_bot", Name: "Clone"}, id)
}

func TestVerifyUnauthorizedIsTerminal(t *testing.T) {
	srv := fakeBotAPI(t, func(string, url.Values) string {
		return `{"ok":false,"error_code":401,"description":"Unauthorized"}`
	})

	_, err := Verify(context.Background(), "77:bad", options(srv))
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	class, _ := Classify(err)
	assert.Equal(t, retry.Terminal, class)
}

func TestMemberStatusUsesChannelUsername(t *testing.T) {
	var gotChat, gotUser string
	srv := fakeBotAPI(t, func(method string, form url.Values) string {
		switch method {
		case "getMe":
			return `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Main","username":"main_bot"}}`
		case "getChatMember":
			gotChat, gotUser = form.Get("chat_id"), form.Get("user_id")
			return `{"ok":true,"result":{"status":"left","user":{"id":5,"is_bot":false,"first_name":"U"}}}`
		}
		return `{"ok":false,"error_code":404,"description":"Not Found"}`
	})

	bot, err := New("1:abc", options(srv))
	require.NoError(t, err)

	status, err := bot.MemberStatus(context.Background(), "movies", 5)
	require.NoError(t, err)
	assert.Equal(t, StatusLeft, status)
	assert.Equal(t, "@movies", gotChat)
	assert.Equal(t, "5", gotUser)
}

func TestDeleteMessageGoneIsDetectable(t *testing.T) {
	srv := fakeBotAPI(t, func(method string, _ url.Values) string {
		if method == "getMe" {
			return `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Main","username":"main_bot"}}`
		}
		return `{"ok":false,"error_code":400,"description":"Bad Request: message to delete not found"}`
	})

	bot, err := New("1:abc", options(srv))
	require.NoError(t, err)

	err = bot.DeleteMessage(context.Background(), 10, 20)
	require.Error(t, err)
	assert.True(t, IsMessageGone(err))
}

func TestClassify(t *testing.T) {
	class, wait := Classify(&tgbotapi.Error{Code: 429, Message: "Too Many Requests", ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 7}})
	assert.Equal(t, retry.Retryable, class)
	assert.Equal(t, 7*time.Second, wait)

	class, _ = Classify(tgbotapi.Error{Code: 502, Message: "Bad Gateway"})
	assert.Equal(t, retry.Retryable, class)

	class, _ = Classify(&url.Error{Op: "Post", URL: "https://api.telegram.org", Err: errors.New("connection refused")})
	assert.Equal(t, retry.Retryable, class)

	class, _ = Classify(errors.New("boom"))
	assert.Equal(t, retry.Terminal, class)
}

func TestKeyboardMarkup(t *testing.T) {
	assert.Nil(t, Keyboard(nil).markup())

	kb := Keyboard{}.
		Row(DataButton("📥 Download", "dl:abc")).
		Row(URLButton("Join", "https://t.me/movies"), DataButton("Retry", "howto")).
		Row()
	markup := kb.markup()
	require.NotNil(t, markup)
	require.Len(t, markup.InlineKeyboard, 2)
	require.NotNil(t, markup.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "dl:abc", *markup.InlineKeyboard[0][0].CallbackData)
	require.NotNil(t, markup.InlineKeyboard[1][0].URL)
	assert.Equal(t, "https://t.me/movies", *markup.InlineKeyboard[1][0].URL)
}

func TestNumericChatID(t *testing.T) {
	id, ok := numericChatID("-1001234")
	assert.True(t, ok)
	assert.Equal(t, int64(-1001234), id)

	_, ok = numericChatID("movies")
	assert.False(t, ok)
}
