package api

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/deshack/openfront-discord-bot/internal/errors"
	"github.com/deshack/openfront-discord-bot/internal/logging"
)

// ErrorBody is the error payload of an API response.
type ErrorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	_ = json.NewEncoder(w).Encode(response)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// Common error codes
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// respondServiceError maps a service error onto its HTTP status. Internal
// and database details are logged, not returned.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	catErr := apperrors.Categorize(err)
	status := apperrors.GetHTTPStatusCode(catErr)

	switch catErr.Category {
	case apperrors.CategoryInternal, apperrors.CategoryDatabase:
		logging.FromContext(r.Context()).WithError(err).Error("request failed")
		respondError(w, status, catErr.Code, "An internal error occurred", nil)
	case apperrors.CategoryUpstream:
		logging.FromContext(r.Context()).WithError(err).Warn("upstream failure")
		respondError(w, status, catErr.Code, catErr.Message, nil)
	default:
		respondError(w, status, catErr.Code, catErr.Message, catErr.Details)
	}
}
