package service

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	apperrors "github.com/koinlytics-backend/internal/errors"
	"github.com/koinlytics-backend/internal/types"
)

// MessagePortfolioRequired is returned when insights are requested without holdings
const MessagePortfolioRequired = "Portfolio data is required."

var (
	concentrationLimit = decimal.NewFromInt(50)
	significantMove    = decimal.NewFromInt(5)
	majorAssets        = map[string]bool{"BTC": true, "ETH": true}
)

// InsightService turns a synced portfolio into short, rule-based observations
type InsightService struct{}

// NewInsightService creates a new insight service
func NewInsightService() *InsightService {
	return &InsightService{}
}

// GenerateInsights returns a bullet list, one insight per line
func (s *InsightService) GenerateInsights(portfolio *types.Portfolio) (string, error) {
	if portfolio.IsEmpty() {
		return "", apperrors.NewInvalidRequestError(MessagePortfolioRequired)
	}

	var insights []string

	top := portfolio.Assets[0]
	share := decimal.Zero
	if portfolio.TotalValue.IsPositive() {
		share = top.CurrentValue.Div(portfolio.TotalValue).Mul(hundred)
	}
	if share.GreaterThanOrEqual(concentrationLimit) {
		insights = append(insights, fmt.Sprintf(
			"Your portfolio is heavily weighted towards %s, representing over %s%% of your holdings. Consider diversifying to reduce risk.",
			top.Symbol, share.StringFixed(0)))
	} else {
		insights = append(insights, fmt.Sprintf(
			"Your largest position, %s, is %s%% of your holdings, so no single asset dominates.",
			top.Symbol, share.StringFixed(0)))
	}

	if portfolio.Change24hPercent.Abs().GreaterThanOrEqual(significantMove) {
		insights = append(insights, fmt.Sprintf(
			"The significant 24h change of %s%% appears to be driven primarily by price movements in your top assets.",
			portfolio.Change24hPercent.StringFixed(1)))
	} else {
		insights = append(insights, fmt.Sprintf(
			"Your portfolio moved %s%% over the last 24h, a relatively quiet day.",
			portfolio.Change24hPercent.StringFixed(1)))
	}

	var majors, alts int
	for _, a := range portfolio.Assets {
		if majorAssets[strings.ToUpper(a.Symbol)] {
			majors++
		} else {
			alts++
		}
	}
	switch {
	case majors > 0 && alts > 0:
		insights = append(insights, "You have a mix of major assets like BTC/ETH and smaller altcoins, indicating a balanced risk appetite.")
	case majors > 0:
		insights = append(insights, "Your holdings are limited to major assets like BTC/ETH, a conservative stance for crypto.")
	default:
		insights = append(insights, "Your holdings are entirely in altcoins, which tend to be more volatile than BTC/ETH.")
	}

	return "- " + strings.Join(insights, "\n- "), nil
}
