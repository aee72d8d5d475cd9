package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/koinlytics-backend/internal/marketdata"
)

// handleGetCoinDetails handles GET /api/coins/{id}
func (s *Server) handleGetCoinDetails(w http.ResponseWriter, r *http.Request) {
	coinID, err := marketdata.NormalizeCoinID(mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	entry, err := s.services.Coins.GetCoinDetails(r.Context(), coinID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, entry)
}

// handleGetCoinHistory handles GET /api/coins/{id}/history?days=1
func (s *Server) handleGetCoinHistory(w http.ResponseWriter, r *http.Request) {
	coinID, err := marketdata.NormalizeCoinID(mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	days, err := marketdata.NormalizeChartDays(r.URL.Query().Get("days"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	series, err := s.services.Coins.GetHistoricalSeries(r.Context(), coinID, days)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(series)
}
