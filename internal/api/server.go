// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/koinlytics-backend/internal/circuitbreaker"
	"github.com/koinlytics-backend/internal/logging"
	"github.com/koinlytics-backend/internal/marketdata"
	"github.com/koinlytics-backend/internal/models"
	"github.com/koinlytics-backend/internal/service"
	"github.com/koinlytics-backend/internal/types"
)

// Service interfaces for dependency injection and testing

// PortfolioSyncer syncs and values a user's holdings
type PortfolioSyncer interface {
	SyncPortfolio(ctx context.Context, userID string) (*types.Portfolio, error)
}

// HistoryProvider lists a user's recorded daily valuations
type HistoryProvider interface {
	GetHistory(ctx context.Context, userID string) ([]service.HistoryPoint, error)
}

// InsightGenerator summarizes a synced portfolio
type InsightGenerator interface {
	GenerateInsights(portfolio *types.Portfolio) (string, error)
}

// ConnectionManager reads and stores a user's balance-source connections
type ConnectionManager interface {
	GetConnections(ctx context.Context, userID string) (*models.Connections, error)
	UpsertConnections(ctx context.Context, conn *models.Connections) error
}

// CoinDataProvider serves market data for a single coin
type CoinDataProvider interface {
	GetCoinDetails(ctx context.Context, id string) (*marketdata.MarketEntry, error)
	GetHistoricalSeries(ctx context.Context, id string, days string) (json.RawMessage, error)
}

// UpstreamMonitor reports the health of an upstream behind a circuit breaker
type UpstreamMonitor interface {
	GetStats() *circuitbreaker.Stats
}

// LimiterMonitor reports how outbound market data calls are paced
type LimiterMonitor interface {
	Acquired() int64
	Interval() time.Duration
}

// CacheMonitor reports the size of an in-process cache
type CacheMonitor interface {
	Len() int
}

// Services groups the collaborators the handlers call
type Services struct {
	Portfolio   PortfolioSyncer
	History     HistoryProvider
	Insights    InsightGenerator
	Connections ConnectionManager
	Coins       CoinDataProvider
	Upstreams   []UpstreamMonitor // optional, reported by /health
	Limiter     LimiterMonitor    // optional, reported by /health
	MarketCache CacheMonitor      // optional; only the memory backend has a local size
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	services   Services
	config     *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	FreeTierRPS     int // Requests per second for free tier
	BasicTierRPS    int // Requests per second for basic tier
	PremiumTierRPS  int // Requests per second for premium tier
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, services Services) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		services: services,
		config:   config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.FreeTierRPS, s.config.BasicTierRPS, s.config.PremiumTierRPS)

	// order matters: the request id must exist before anything logs
	s.router.Use(RequestIDMiddleware)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Portfolio endpoints
	api.HandleFunc("/portfolio/sync", s.handleSyncPortfolio).Methods("GET", "OPTIONS")
	api.HandleFunc("/portfolio/history", s.handleGetHistory).Methods("GET", "OPTIONS")
	api.HandleFunc("/portfolio/insights", s.handleGenerateInsights).Methods("POST", "OPTIONS")

	// Connection endpoints
	api.HandleFunc("/connections", s.handleGetConnections).Methods("GET", "OPTIONS")
	api.HandleFunc("/connections", s.handleSaveConnections).Methods("POST")

	// Market data endpoints
	api.HandleFunc("/coins/{id}", s.handleGetCoinDetails).Methods("GET", "OPTIONS")
	api.HandleFunc("/coins/{id}/history", s.handleGetCoinHistory).Methods("GET", "OPTIONS")
}

// Handler returns the fully wired router
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleHealth handles health check requests. An open upstream breaker marks
// the service degraded but still answers 200; syncs keep working with an error field.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	upstreams := make([]*circuitbreaker.Stats, 0, len(s.services.Upstreams))
	for _, u := range s.services.Upstreams {
		stats := u.GetStats()
		if stats.State != circuitbreaker.StateClosed {
			status = "degraded"
		}
		upstreams = append(upstreams, stats)
	}

	body := map[string]interface{}{
		"status":    status,
		"service":   "koinlytics-backend",
		"upstreams": upstreams,
	}
	if l := s.services.Limiter; l != nil {
		body["limiter"] = map[string]interface{}{
			"minIntervalMs": l.Interval().Milliseconds(),
			"acquired":      l.Acquired(),
		}
	}
	if c := s.services.MarketCache; c != nil {
		body["marketCache"] = map[string]interface{}{"entries": c.Len()}
	}

	respondJSON(w, http.StatusOK, body)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
