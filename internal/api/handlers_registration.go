package api

import (
	"net/http"
	"strings"

	apperrors "github.com/deshack/openfront-discord-bot/internal/errors"
	"github.com/deshack/openfront-discord-bot/internal/models"
	"github.com/gorilla/mux"
)

// PutRegistrationRequest represents the request body for registering a player
type PutRegistrationRequest struct {
	PlayerID  string `json:"playerId"`
	ChannelID string `json:"channelId,omitempty"`
}

// handlePutRegistration handles PUT /api/communities/{communityId}/registrations/{discordUserId}
func (s *Server) handlePutRegistration(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req PutRegistrationRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	req.PlayerID = strings.TrimSpace(req.PlayerID)
	if req.PlayerID == "" {
		respondServiceError(w, r, apperrors.NewValidationError("playerId", "must not be empty"))
		return
	}

	reg := &models.PlayerRegistration{
		CommunityID:   vars["communityId"],
		DiscordUserID: vars["discordUserId"],
		PlayerID:      req.PlayerID,
		ChannelID:     req.ChannelID,
	}
	if err := s.registrations.Upsert(r.Context(), reg); err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, reg)
}

// handleDeleteRegistration handles DELETE /api/communities/{communityId}/registrations/{discordUserId}
func (s *Server) handleDeleteRegistration(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if err := s.registrations.Delete(r.Context(), vars["communityId"], vars["discordUserId"]); err != nil {
		respondServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
