package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/koinlytics-backend/internal/models"
	"github.com/shopspring/decimal"
)

// ValuationRepository stores one total valuation per user per day
type ValuationRepository struct {
	db *PostgresDB
}

// NewValuationRepository creates a new valuation repository
func NewValuationRepository(db *PostgresDB) *ValuationRepository {
	return &ValuationRepository{db: db}
}

// UpsertValuation records the user's total for a date. Repeated calls for the
// same (user, date) keep the latest total.
func (r *ValuationRepository) UpsertValuation(ctx context.Context, userID string, date time.Time, total decimal.Decimal) error {
	query := `
		INSERT INTO portfolio_snapshots (user_id, snapshot_date, total_value)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, snapshot_date) DO UPDATE SET
			total_value = EXCLUDED.total_value
	`

	_, err := r.db.Pool().Exec(ctx, query, userID, truncateToDay(date), total.String())
	if err != nil {
		return fmt.Errorf("failed to upsert valuation: %w", err)
	}

	return nil
}

// ListValuations returns the user's stored valuations, oldest first
func (r *ValuationRepository) ListValuations(ctx context.Context, userID string) ([]models.ValuationSnapshot, error) {
	query := `
		SELECT user_id, snapshot_date, total_value::text
		FROM portfolio_snapshots
		WHERE user_id = $1
		ORDER BY snapshot_date ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list valuations: %w", err)
	}
	defer rows.Close()

	snapshots := []models.ValuationSnapshot{}
	for rows.Next() {
		var (
			snap  models.ValuationSnapshot
			total string
		)
		if err := rows.Scan(&snap.UserID, &snap.SnapshotDate, &total); err != nil {
			return nil, fmt.Errorf("failed to scan valuation: %w", err)
		}
		snap.TotalValue, err = decimal.NewFromString(total)
		if err != nil {
			return nil, fmt.Errorf("invalid stored total %q: %w", total, err)
		}
		snapshots = append(snapshots, snap)
	}

	return snapshots, rows.Err()
}

func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
