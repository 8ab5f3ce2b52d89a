package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/deshack/openfront-discord-bot/internal/circuitbreaker"
	"github.com/deshack/openfront-discord-bot/internal/config"
	"github.com/deshack/openfront-discord-bot/internal/logging"
	"golang.org/x/time/rate"
)

// ErrNoData is returned when the game-stats API answers with a non-2xx status
// or a body that cannot be decoded. Callers treat it as "nothing to record".
var ErrNoData = errors.New("game-stats api returned no data")

// maxBodyBytes bounds how much of a response is read
const maxBodyBytes = 8 << 20

// ClanSession is one game a clan took part in
type ClanSession struct {
	GameID    string  `json:"gameId"`
	ClanTag   string  `json:"clanTag"`
	HasWon    bool    `json:"hasWon"`
	Score     float64 `json:"score"`
	GameStart string  `json:"gameStart"`
}

// PlayerSession is one game a player took part in
type PlayerSession struct {
	GameID    string  `json:"gameId"`
	GameStart string  `json:"gameStart"`
	GameType  string  `json:"gameType"`
	GameMode  string  `json:"gameMode"`
	ClientID  string  `json:"clientId"`
	Username  string  `json:"username"`
	ClanTag   *string `json:"clanTag"`
	HasWon    bool    `json:"hasWon"`
}

// Tag returns the session's clan tag, or "" when untagged
func (s PlayerSession) Tag() string {
	if s.ClanTag == nil {
		return ""
	}
	return *s.ClanTag
}

// GameConfig holds the game settings the scan pipeline looks at
type GameConfig struct {
	GameMode   string `json:"gameMode"`
	GameType   string `json:"gameType"`
	RankedType string `json:"rankedType,omitempty"`
}

// GamePlayer is one participant of a game
type GamePlayer struct {
	ClientID string  `json:"clientID"`
	Username string  `json:"username"`
	ClanTag  *string `json:"clanTag"`
}

// Tag returns the player's clan tag, or "" when untagged
func (p GamePlayer) Tag() string {
	if p.ClanTag == nil {
		return ""
	}
	return *p.ClanTag
}

// GameInfo is the decoded detail of a finished game
type GameInfo struct {
	GameID  string
	Config  GameConfig
	Players []GamePlayer
	Start   time.Time
	// WinnerClientID is set only when a single player won
	WinnerClientID string
}

// WinningPlayer returns the winning participant, or nil when the game has no
// player winner
func (g *GameInfo) WinningPlayer() *GamePlayer {
	if g.WinnerClientID == "" {
		return nil
	}
	for i := range g.Players {
		if g.Players[i].ClientID == g.WinnerClientID {
			return &g.Players[i]
		}
	}
	return nil
}

// gameInfoResponse is the wire shape of GET /public/game/{id}
type gameInfoResponse struct {
	Info struct {
		GameID  string          `json:"gameID"`
		Config  GameConfig      `json:"config"`
		Players []GamePlayer    `json:"players"`
		Start   int64           `json:"start"`
		Winner  json.RawMessage `json:"winner"`
	} `json:"info"`
}

func (r *gameInfoResponse) toGameInfo() (*GameInfo, error) {
	if r.Info.GameID == "" {
		return nil, fmt.Errorf("%w: missing gameID", ErrNoData)
	}
	info := &GameInfo{
		GameID:  r.Info.GameID,
		Config:  r.Info.Config,
		Players: r.Info.Players,
		Start:   time.UnixMilli(r.Info.Start).UTC(),
	}

	// winner is ["player", clientID] or null
	if len(r.Info.Winner) > 0 && string(r.Info.Winner) != "null" {
		var winner []string
		if err := json.Unmarshal(r.Info.Winner, &winner); err != nil {
			return nil, fmt.Errorf("%w: bad winner: %v", ErrNoData, err)
		}
		if len(winner) == 2 && winner[0] == "player" {
			info.WinnerClientID = winner[1]
		}
	}
	return info, nil
}

// GameStatsClient reads public sessions and game details from the OpenFront API
type GameStatsClient struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	breaker *circuitbreaker.CircuitBreaker
}

// NewGameStatsClient creates a rate limited client guarded by a circuit breaker
func NewGameStatsClient(cfg config.GameStatsConfig) *GameStatsClient {
	burst := int(cfg.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &GameStatsClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		breaker: circuitbreaker.NewCircuitBreaker(&circuitbreaker.Config{
			Name:        "openfront",
			MaxFailures: cfg.FailureThreshold,
			Timeout:     cfg.OpenTimeout,
		}),
	}
}

// formatAPITime renders t the way the sessions endpoints expect
func formatAPITime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// ClanSessions returns the sessions of a clan that started in [start, end]
func (c *GameStatsClient) ClanSessions(ctx context.Context, clanTag string, start, end time.Time) ([]ClanSession, error) {
	path := "/public/clan/" + url.PathEscape(clanTag) + "/sessions"
	query := url.Values{"start": {formatAPITime(start)}, "end": {formatAPITime(end)}}

	var sessions []ClanSession
	if err := c.get(ctx, path, query, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// PlayerSessions returns the sessions of a player that started in [start, end]
func (c *GameStatsClient) PlayerSessions(ctx context.Context, playerID string, start, end time.Time) ([]PlayerSession, error) {
	path := "/public/player/" + url.PathEscape(playerID) + "/sessions"
	query := url.Values{"start": {formatAPITime(start)}, "end": {formatAPITime(end)}}

	var sessions []PlayerSession
	if err := c.get(ctx, path, query, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// GameInfo returns the detail of a game without its turns
func (c *GameStatsClient) GameInfo(ctx context.Context, gameID string) (*GameInfo, error) {
	path := "/public/game/" + url.PathEscape(gameID)

	var resp gameInfoResponse
	if err := c.get(ctx, path, url.Values{"turns": {"false"}}, &resp); err != nil {
		return nil, err
	}
	return resp.toGameInfo()
}

// Ping reports the game-stats API unavailable while the circuit breaker is open
func (c *GameStatsClient) Ping(ctx context.Context) error {
	if c.breaker.GetState() == circuitbreaker.StateOpen {
		return circuitbreaker.ErrCircuitOpen
	}
	return nil
}

// get performs one rate limited request. Transport failures, 5xx and 429
// count against the circuit breaker; every non-2xx status is ErrNoData.
func (c *GameStatsClient) get(ctx context.Context, path string, query url.Values, dest interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var status int
	var body []byte
	err := c.breaker.Execute(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to make request: %w", err)
		}
		defer resp.Body.Close()

		status = resp.StatusCode
		body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
			return fmt.Errorf("upstream status %d", status)
		}
		return nil
	})

	logger := logging.FromContext(ctx).WithField("path", path)
	switch {
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		return err
	case err != nil && ctx.Err() != nil:
		return ctx.Err()
	case err != nil:
		logger.WithError(err).Warn("game-stats request failed")
		return fmt.Errorf("%w: %v", ErrNoData, err)
	case status < 200 || status >= 300:
		logger.WithField("status", status).Debug("game-stats request returned no data")
		return fmt.Errorf("%w: status %d", ErrNoData, status)
	}

	if err := json.Unmarshal(body, dest); err != nil {
		logger.WithError(err).Warn("malformed game-stats response")
		return fmt.Errorf("%w: %v", ErrNoData, err)
	}
	return nil
}
