package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/koinlytics-backend/internal/models"
	"github.com/koinlytics-backend/internal/types"
)

// AssetSnapshotRepository appends consolidated assets to ClickHouse after each sync
type AssetSnapshotRepository struct {
	db *ClickHouseDB
}

// NewAssetSnapshotRepository creates a new asset snapshot repository
func NewAssetSnapshotRepository(db *ClickHouseDB) *AssetSnapshotRepository {
	return &AssetSnapshotRepository{db: db}
}

// ArchiveAssets writes one row per asset in a single batch
func (r *AssetSnapshotRepository) ArchiveAssets(ctx context.Context, userID string, syncedAt time.Time, assets []types.ConsolidatedAsset) error {
	if len(assets) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, "INSERT INTO asset_snapshots")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, row := range ToAssetSnapshots(userID, syncedAt, assets) {
		if err := batch.Append(
			row.UserID,
			row.SyncedAt,
			row.AssetID,
			row.Symbol,
			row.Amount,
			row.Price,
			row.CurrentValue,
			row.Change24h,
		); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append asset %s: %w", row.AssetID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

// ToAssetSnapshots maps consolidated assets to archive rows
func ToAssetSnapshots(userID string, syncedAt time.Time, assets []types.ConsolidatedAsset) []models.AssetSnapshot {
	rows := make([]models.AssetSnapshot, 0, len(assets))
	for _, asset := range assets {
		rows = append(rows, models.AssetSnapshot{
			UserID:       userID,
			SyncedAt:     syncedAt.UTC(),
			AssetID:      asset.ID,
			Symbol:       asset.Symbol,
			Amount:       asset.Amount,
			Price:        asset.Price,
			CurrentValue: asset.CurrentValue,
			Change24h:    asset.Change24h,
		})
	}
	return rows
}
