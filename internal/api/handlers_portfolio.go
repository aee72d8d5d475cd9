package api

import (
	"net/http"
	"strings"

	"github.com/koinlytics-backend/internal/service"
	"github.com/koinlytics-backend/internal/types"
)

// UserIDHeader identifies the caller. Authentication happens upstream of this service.
const UserIDHeader = "X-User-ID"

// requireUser returns the caller's id or writes a 401
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
	if userID == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "User ID required", nil)
		return "", false
	}
	return userID, true
}

// handleSyncPortfolio handles GET /api/portfolio/sync
func (s *Server) handleSyncPortfolio(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	portfolio, err := s.services.Portfolio.SyncPortfolio(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"portfolio": portfolio})
}

// handleGetHistory handles GET /api/portfolio/history
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	history, err := s.services.History.GetHistory(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, history)
}

// handleGenerateInsights handles POST /api/portfolio/insights
func (s *Server) handleGenerateInsights(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Portfolio *types.Portfolio `json:"portfolio"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, service.MessagePortfolioRequired, nil)
		return
	}

	insights, err := s.services.Insights.GenerateInsights(req.Portfolio)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"insights": insights})
}
