package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/koinlytics-backend/internal/logging"
	"github.com/koinlytics-backend/internal/retry"
	"github.com/koinlytics-backend/internal/types"
)

// UserLister lists the users that have at least one balance source configured
type UserLister interface {
	ListUserIDs(ctx context.Context) ([]string, error)
}

// PortfolioSyncer is the portfolio sync operation
type PortfolioSyncer interface {
	SyncPortfolio(ctx context.Context, userID string) (*types.Portfolio, error)
}

// SnapshotResult summarizes one daily snapshot run
type SnapshotResult struct {
	Users    int
	Recorded int
	Empty    int
	Degraded int
	Failed   int
}

var errDegraded = errors.New("portfolio degraded")

// SnapshotService records the day's valuation for every connected user
type SnapshotService struct {
	users  UserLister
	syncer PortfolioSyncer
	retry  *retry.Config
}

// NewSnapshotService creates a new snapshot service. A degraded sync is retried
// per retryCfg; nil means one attempt per user.
func NewSnapshotService(users UserLister, syncer PortfolioSyncer, retryCfg *retry.Config) *SnapshotService {
	return &SnapshotService{users: users, syncer: syncer, retry: retryCfg}
}

// CreateDailySnapshots syncs each user in turn. Users are processed sequentially
// so the run stays within the shared market-data rate limit.
func (s *SnapshotService) CreateDailySnapshots(ctx context.Context) (*SnapshotResult, error) {
	logger := logging.FromContext(ctx)

	userIDs, err := s.users.ListUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	result := &SnapshotResult{Users: len(userIDs)}
	if len(userIDs) == 0 {
		logger.Info("No users to snapshot")
		return result, nil
	}

	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		userLogger := logger.WithField("user_id", userID)
		portfolio, attempts, err := s.syncUser(logging.WithLogger(ctx, userLogger), userID)
		switch {
		case errors.Is(err, errDegraded):
			result.Degraded++
			userLogger.WithFields(map[string]interface{}{
				"reason":   portfolio.Error,
				"attempts": attempts,
			}).Warn("Snapshot skipped, portfolio degraded")
		case err != nil:
			result.Failed++
			userLogger.WithError(err).Warn("Snapshot sync failed")
		case portfolio.TotalValue.IsPositive():
			result.Recorded++
			userLogger.WithField("total_value", portfolio.TotalValue.StringFixed(2)).Info("Snapshot recorded")
		default:
			result.Empty++
			userLogger.Debug("Nothing to record")
		}
	}

	logger.WithFields(map[string]interface{}{
		"users":    result.Users,
		"recorded": result.Recorded,
		"empty":    result.Empty,
		"degraded": result.Degraded,
		"failed":   result.Failed,
	}).Info("Daily snapshot complete")

	return result, nil
}

// syncUser retries while the sync reports a degraded portfolio. Hard errors are not retried.
func (s *SnapshotService) syncUser(ctx context.Context, userID string) (*types.Portfolio, int, error) {
	var portfolio *types.Portfolio
	attempts, err := retry.Do(ctx, s.retry, func(ctx context.Context, attempt int) error {
		p, err := s.syncer.SyncPortfolio(ctx, userID)
		if err != nil {
			return retry.Permanent(err)
		}
		portfolio = p
		if p.Error != "" {
			return errDegraded
		}
		return nil
	})
	return portfolio, attempts, err
}
