package api

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/koinlytics-backend/internal/errors"
	"github.com/koinlytics-backend/internal/logging"
	"github.com/koinlytics-backend/internal/marketdata"
	"github.com/koinlytics-backend/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	respondJSON(w, statusCode, ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
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
	ErrCodeInvalidInput       = apperrors.CodeInvalidRequest
	ErrCodeNotFound           = apperrors.CodeNotFound
	ErrCodeUnauthorized       = apperrors.CodeUnauthorized
	ErrCodeRateLimitExceeded  = apperrors.CodeRateLimitExceeded
	ErrCodeInternalError      = apperrors.CodeInternalError
	ErrCodeServiceUnavailable = apperrors.CodeUpstreamUnavailable
)

// respondServiceError maps a service error to a response. Internal causes are
// logged and never echoed to the client.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, marketdata.ErrCoinNotFound) {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, err.Error(), nil)
		return
	}

	catErr := apperrors.Categorize(err)
	if catErr.StatusCode >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).WithError(err).Error("Request failed")
	}

	message, details := catErr.Message, catErr.Details
	if catErr.Code == apperrors.CodeInternalError || catErr.Code == apperrors.CodeDatabaseError {
		message, details = "An internal error occurred", nil
	}
	respondError(w, catErr.StatusCode, catErr.Code, message, details)
}
