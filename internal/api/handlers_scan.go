package api

import (
	"net/http"
	"strings"
	"time"

	apperrors "github.com/deshack/openfront-discord-bot/internal/errors"
	"github.com/deshack/openfront-discord-bot/internal/job"
	"github.com/deshack/openfront-discord-bot/internal/types"
	"github.com/gorilla/mux"
)

// CreateScanJobRequest represents the request body for creating a scan job
type CreateScanJobRequest struct {
	ChannelID string  `json:"channelId"`
	ClanTag   *string `json:"clanTag,omitempty"`
	JobType   string  `json:"jobType"`
	// StartDate and EndDate are YYYY-MM-DD (whole days, UTC) or RFC 3339
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

const dayLayout = "2006-01-02"

// parseRangeBound parses a date. A bare end date covers its whole day.
func parseRangeBound(value string, end bool) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(dayLayout, value); err == nil {
		if end {
			return t.AddDate(0, 0, 1).Add(-time.Millisecond), nil
		}
		return t, nil
	}
	return time.Parse(time.RFC3339, value)
}

// handleCreateScanJob handles POST /api/communities/{communityId}/scan-jobs
func (s *Server) handleCreateScanJob(w http.ResponseWriter, r *http.Request) {
	communityID := mux.Vars(r)["communityId"]

	var req CreateScanJobRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	jobType, err := types.ParseJobType(req.JobType)
	if err != nil {
		respondServiceError(w, r, apperrors.NewValidationError("jobType", err.Error()))
		return
	}
	start, err := parseRangeBound(req.StartDate, false)
	if err != nil {
		respondServiceError(w, r, apperrors.NewValidationError("startDate", "must be YYYY-MM-DD or RFC 3339"))
		return
	}
	end, err := parseRangeBound(req.EndDate, true)
	if err != nil {
		respondServiceError(w, r, apperrors.NewValidationError("endDate", "must be YYYY-MM-DD or RFC 3339"))
		return
	}

	created, err := s.scanJobs.CreateScanJob(r.Context(), job.CreateScanJobInput{
		CommunityID: communityID,
		ChannelID:   req.ChannelID,
		ClanTag:     req.ClanTag,
		JobType:     jobType,
		StartDate:   start,
		EndDate:     end,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, created)
}

// handleGetScanJob handles GET /api/scan-jobs/{jobId}
func (s *Server) handleGetScanJob(w http.ResponseWriter, r *http.Request) {
	progress, err := s.scanJobs.GetProgress(r.Context(), mux.Vars(r)["jobId"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, progress)
}

// handleListScanJobs handles GET /api/communities/{communityId}/scan-jobs
func (s *Server) handleListScanJobs(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntParam(r.URL.Query(), "limit", 0)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	jobs, err := s.scanJobs.ListJobs(r.Context(), mux.Vars(r)["communityId"], limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

// handleScanStep handles POST /internal/scan/step
func (s *Server) handleScanStep(w http.ResponseWriter, r *http.Request) {
	result, err := s.steps.Step(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}
