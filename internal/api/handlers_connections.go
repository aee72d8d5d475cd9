package api

import (
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/koinlytics-backend/internal/models"
)

// connectionsView is what clients see of stored connections. Secrets never leave the service.
type connectionsView struct {
	ExchangeAPIKey   string `json:"exchangeApiKey"`
	HasExchangeKeys  bool   `json:"hasExchangeKeys"`
	WalletAddress    string `json:"walletAddress"`
	HasWalletAddress bool   `json:"hasWalletAddress"`
}

func newConnectionsView(conn *models.Connections) connectionsView {
	if conn == nil {
		return connectionsView{}
	}
	return connectionsView{
		ExchangeAPIKey:   maskKey(conn.ExchangeAPIKey),
		HasExchangeKeys:  conn.HasExchange(),
		WalletAddress:    conn.WalletAddress,
		HasWalletAddress: conn.HasWallet(),
	}
}

// maskKey keeps only the last four characters
func maskKey(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}

// handleGetConnections handles GET /api/connections
func (s *Server) handleGetConnections(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	conn, err := s.services.Connections.GetConnections(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, newConnectionsView(conn))
}

// handleSaveConnections handles POST /api/connections
func (s *Server) handleSaveConnections(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req struct {
		ExchangeAPIKey    string `json:"exchangeApiKey"`
		ExchangeAPISecret string `json:"exchangeApiSecret"`
		WalletAddress     string `json:"walletAddress"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	req.ExchangeAPIKey = strings.TrimSpace(req.ExchangeAPIKey)
	req.ExchangeAPISecret = strings.TrimSpace(req.ExchangeAPISecret)
	req.WalletAddress = strings.TrimSpace(req.WalletAddress)

	if (req.ExchangeAPIKey == "") != (req.ExchangeAPISecret == "") {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Exchange API key and secret must be provided together", nil)
		return
	}
	if req.WalletAddress != "" && !common.IsHexAddress(req.WalletAddress) {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid wallet address", nil)
		return
	}

	conn := &models.Connections{
		UserID:            userID,
		ExchangeAPIKey:    req.ExchangeAPIKey,
		ExchangeAPISecret: req.ExchangeAPISecret,
		WalletAddress:     req.WalletAddress,
	}
	if err := s.services.Connections.UpsertConnections(r.Context(), conn); err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, newConnectionsView(conn))
}
