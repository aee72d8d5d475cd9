package service

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	apperrors "github.com/koinlytics-backend/internal/errors"
	"github.com/koinlytics-backend/internal/models"
)

// ValuationHistory lists stored daily valuations
type ValuationHistory interface {
	ListValuations(ctx context.Context, userID string) ([]models.ValuationSnapshot, error)
}

// HistoryPoint is one day of a user's valuation history
type HistoryPoint struct {
	SnapshotDate string          `json:"snapshot_date"`
	TotalValue   decimal.Decimal `json:"total_value"`
}

// HistoryService serves recorded portfolio valuations
type HistoryService struct {
	store ValuationHistory
}

// NewHistoryService creates a new history service
func NewHistoryService(store ValuationHistory) *HistoryService {
	return &HistoryService{store: store}
}

// GetHistory returns the user's daily totals, oldest first
func (s *HistoryService) GetHistory(ctx context.Context, userID string) ([]HistoryPoint, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.NewInvalidRequestError("user id is required")
	}

	snapshots, err := s.store.ListValuations(ctx, userID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list valuations", err)
	}

	points := make([]HistoryPoint, 0, len(snapshots))
	for _, snap := range snapshots {
		points = append(points, HistoryPoint{
			SnapshotDate: snap.SnapshotDate.UTC().Format("2006-01-02"),
			TotalValue:   snap.TotalValue,
		})
	}
	return points, nil
}
