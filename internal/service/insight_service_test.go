package service

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/koinlytics-backend/internal/errors"
	"github.com/koinlytics-backend/internal/types"
)

func asset(symbol string, value int64) types.ConsolidatedAsset {
	return types.ConsolidatedAsset{ID: strings.ToLower(symbol), Symbol: symbol, CurrentValue: decimal.NewFromInt(value)}
}

func TestGenerateInsights(t *testing.T) {
	svc := NewInsightService()

	t.Run("concentrated mixed portfolio", func(t *testing.T) {
		insights, err := svc.GenerateInsights(&types.Portfolio{
			TotalValue:       decimal.NewFromInt(1000),
			Change24hPercent: decimal.RequireFromString("-7.25"),
			Assets:           []types.ConsolidatedAsset{asset("ETH", 800), asset("QUICK", 200)},
		})
		require.NoError(t, err)

		lines := strings.Split(insights, "\n")
		require.Len(t, lines, 3)
		for _, line := range lines {
			assert.True(t, strings.HasPrefix(line, "- "))
		}
		assert.Contains(t, lines[0], "heavily weighted towards ETH, representing over 80%")
		assert.Contains(t, lines[1], "-7.3%")
		assert.Contains(t, lines[2], "mix of major assets")
	})

	t.Run("diversified altcoins", func(t *testing.T) {
		insights, err := svc.GenerateInsights(&types.Portfolio{
			TotalValue: decimal.NewFromInt(300),
			Assets:     []types.ConsolidatedAsset{asset("LINK", 100), asset("RUNE", 100), asset("SLP", 100)},
		})
		require.NoError(t, err)
		assert.Contains(t, insights, "no single asset dominates")
		assert.Contains(t, insights, "relatively quiet day")
		assert.Contains(t, insights, "entirely in altcoins")
	})

	t.Run("missing portfolio", func(t *testing.T) {
		for _, p := range []*types.Portfolio{nil, types.EmptyPortfolio("")} {
			_, err := svc.GenerateInsights(p)
			require.Error(t, err)
			assert.True(t, apperrors.IsUserError(err))
			assert.Equal(t, MessagePortfolioRequired, apperrors.Categorize(err).Message)
		}
	})
}
