package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deshack/openfront-discord-bot/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNotifier(t *testing.T, handler http.HandlerFunc) *DiscordNotifier {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	n := NewDiscordNotifier(config.DiscordConfig{APIBase: server.URL, BotToken: "secret", MaxAttempts: 3})
	n.retry.InitialDelay = time.Millisecond
	return n
}

func TestDiscordNotifier_Posts(t *testing.T) {
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/channels/chan-1/messages", r.URL.Path)
		assert.Equal(t, "Bot secret", r.Header.Get("Authorization"))

		var msg discordMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		assert.Equal(t, "Scan complete", msg.Content)
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, n.Notify(context.Background(), "chan-1", "Scan complete"))
}

func TestDiscordNotifier_EscapesChannelID(t *testing.T) {
	var calls atomic.Int32
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/channels/..%2Fguilds%2F1/messages", r.URL.EscapedPath())
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, n.Notify(context.Background(), "../guilds/1", "hi"))
	assert.Equal(t, int32(1), calls.Load())
}

func TestDiscordNotifier_UnreadableErrorBodyRetried(t *testing.T) {
	var calls atomic.Int32
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		// declared length is never delivered, so the client read fails
		w.Header().Set("Content-Length", "1024")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":`))
	})

	err := n.Notify(context.Background(), "chan-1", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read discord status 400 response")
	assert.Equal(t, int32(3), calls.Load())
}

func TestDiscordNotifier_RetriesAfterRateLimit(t *testing.T) {
	var calls atomic.Int32
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"message":"You are being rate limited.","retry_after":0.01,"global":false}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, n.Notify(context.Background(), "chan-1", "hi"))
	assert.Equal(t, int32(2), calls.Load())
}

func TestDiscordNotifier_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"Missing Access"}`))
	})

	err := n.Notify(context.Background(), "chan-1", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Missing Access")
	assert.Equal(t, int32(1), calls.Load())
}

func TestDiscordNotifier_GivesUp(t *testing.T) {
	var calls atomic.Int32
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	assert.Error(t, n.Notify(context.Background(), "chan-1", "hi"))
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryAfterSources(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "2")
	assert.Equal(t, 2*time.Second, retryAfter(h, nil))
	assert.Equal(t, 1500*time.Millisecond, retryAfter(h, []byte(`{"retry_after":1.5}`)))
	assert.Zero(t, retryAfter(http.Header{}, []byte(`nope`)))
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("a", discordMessageLimit+10)
	got := truncate(long, discordMessageLimit)
	assert.Equal(t, discordMessageLimit, len([]rune(got)))
	assert.Equal(t, "short", truncate("short", discordMessageLimit))
}
