package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/koinlytics-backend/internal/models"
)

// ConnectionRepository persists per-user exchange credentials and wallet addresses
type ConnectionRepository struct {
	db *PostgresDB
}

// NewConnectionRepository creates a new connection repository
func NewConnectionRepository(db *PostgresDB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

// GetConnections returns the user's connections, or nil when none are stored
func (r *ConnectionRepository) GetConnections(ctx context.Context, userID string) (*models.Connections, error) {
	query := `
		SELECT user_id, exchange_api_key, exchange_api_secret, wallet_address, updated_at
		FROM connections
		WHERE user_id = $1
	`

	var conn models.Connections
	err := r.db.Pool().QueryRow(ctx, query, userID).Scan(
		&conn.UserID,
		&conn.ExchangeAPIKey,
		&conn.ExchangeAPISecret,
		&conn.WalletAddress,
		&conn.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get connections: %w", err)
	}

	return &conn, nil
}

// UpsertConnections creates or replaces the user's connections
func (r *ConnectionRepository) UpsertConnections(ctx context.Context, conn *models.Connections) error {
	if conn == nil || conn.UserID == "" {
		return fmt.Errorf("connections must carry a user id")
	}

	conn.WalletAddress = strings.TrimSpace(conn.WalletAddress)
	conn.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO connections (user_id, exchange_api_key, exchange_api_secret, wallet_address, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			exchange_api_key = EXCLUDED.exchange_api_key,
			exchange_api_secret = EXCLUDED.exchange_api_secret,
			wallet_address = EXCLUDED.wallet_address,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.Pool().Exec(ctx, query,
		conn.UserID,
		conn.ExchangeAPIKey,
		conn.ExchangeAPISecret,
		conn.WalletAddress,
		conn.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert connections: %w", err)
	}

	return nil
}

// ListUserIDs returns every user that has at least one connection configured
func (r *ConnectionRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	query := `
		SELECT user_id
		FROM connections
		WHERE (exchange_api_key <> '' AND exchange_api_secret <> '') OR wallet_address <> ''
		ORDER BY user_id
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
