package api

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	apperrors "github.com/deshack/openfront-discord-bot/internal/errors"
	"github.com/deshack/openfront-discord-bot/internal/service"
	"github.com/deshack/openfront-discord-bot/internal/types"
	"github.com/gorilla/mux"
)

// windowParams are the query parameters shared by leaderboard and rank
type windowParams struct {
	period  types.Period
	month   *time.Time
	ranking types.RankingType
}

func parseWindowParams(query url.Values) (*windowParams, error) {
	period, err := types.ParsePeriod(query.Get("period"))
	if err != nil {
		return nil, apperrors.NewValidationError("period", err.Error())
	}
	ranking, err := types.ParseRankingType(query.Get("ranking"))
	if err != nil {
		return nil, apperrors.NewValidationError("ranking", err.Error())
	}

	params := &windowParams{period: period, ranking: ranking}
	if m := query.Get("month"); m != "" {
		month, err := time.Parse("2006-01", m)
		if err != nil {
			return nil, apperrors.NewValidationError("month", "must be YYYY-MM")
		}
		params.month = &month
	}
	return params, nil
}

func parseIntParam(query url.Values, name string, def int) (int, error) {
	raw := query.Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, apperrors.NewValidationError(name, "must be a non-negative integer")
	}
	return v, nil
}

// handleGetLeaderboard handles GET /api/communities/{communityId}/leaderboard
func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	params, err := parseWindowParams(query)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	limit, err := parseIntParam(query, "limit", 0)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	offset, err := parseIntParam(query, "offset", 0)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	board, err := s.leaderboards.GetLeaderboard(r.Context(), service.LeaderboardQuery{
		CommunityID: mux.Vars(r)["communityId"],
		Period:      params.period,
		Limit:       limit,
		Offset:      offset,
		Month:       params.month,
		Ranking:     params.ranking,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, board)
}

// handleGetPlayerRank handles GET /api/communities/{communityId}/players/{username}/rank
func (s *Server) handleGetPlayerRank(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	params, err := parseWindowParams(r.URL.Query())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	rank, err := s.leaderboards.GetPlayerRank(r.Context(), vars["communityId"], vars["username"], params.period, params.month, params.ranking)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, rank)
}
