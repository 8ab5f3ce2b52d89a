package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/deshack/openfront-discord-bot/internal/config"
	apperrors "github.com/deshack/openfront-discord-bot/internal/errors"
	"github.com/deshack/openfront-discord-bot/internal/retry"
)

// discordMessageLimit is the maximum content length of one channel message
const discordMessageLimit = 2000

// DiscordNotifier posts plain text messages to a Discord channel
type DiscordNotifier struct {
	apiBase string
	token   string
	client  *http.Client
	retry   *retry.RetryConfig
}

// NewDiscordNotifier creates a notifier using the bot token from cfg
func NewDiscordNotifier(cfg config.DiscordConfig) *DiscordNotifier {
	retryCfg := retry.DefaultRetryConfig()
	if cfg.MaxAttempts > 0 {
		retryCfg.MaxAttempts = cfg.MaxAttempts
	}
	return &DiscordNotifier{
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		token:   cfg.BotToken,
		client:  &http.Client{Timeout: 10 * time.Second},
		retry:   retryCfg,
	}
}

type discordMessage struct {
	Content string `json:"content"`
}

type discordRateLimit struct {
	RetryAfter float64 `json:"retry_after"`
}

// Notify sends content to channelID. A 429 waits the delay Discord asks for;
// other 4xx responses are not retried.
func (n *DiscordNotifier) Notify(ctx context.Context, channelID, content string) error {
	if channelID == "" {
		return apperrors.NewValidationError("channelId", "must not be empty")
	}
	payload, err := json.Marshal(discordMessage{Content: truncate(content, discordMessageLimit)})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	endpoint := fmt.Sprintf("%s/channels/%s/messages", n.apiBase, url.PathEscape(channelID))

	err = retry.Do(ctx, n.retry, func(ctx context.Context, attempt int) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bot "+n.token)

		resp, err := n.client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if err != nil {
			return fmt.Errorf("failed to read discord status %d response: %w", resp.StatusCode, err)
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return retry.After(retryAfter(resp.Header, body), fmt.Errorf("discord rate limited"))
		case resp.StatusCode >= 500:
			return fmt.Errorf("discord status %d", resp.StatusCode)
		default:
			return retry.Permanent(fmt.Errorf("discord status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
		}
	})
	if err != nil {
		return apperrors.NewUpstreamError("discord", err)
	}
	return nil
}

// retryAfter prefers the JSON retry_after (seconds, fractional) and falls
// back to the Retry-After header
func retryAfter(header http.Header, body []byte) time.Duration {
	var rl discordRateLimit
	if err := json.Unmarshal(body, &rl); err == nil && rl.RetryAfter > 0 {
		return time.Duration(rl.RetryAfter * float64(time.Second))
	}
	if v := header.Get("Retry-After"); v != "" {
		if seconds, err := strconv.ParseFloat(v, 64); err == nil && seconds > 0 {
			return time.Duration(seconds * float64(time.Second))
		}
	}
	return 0
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
