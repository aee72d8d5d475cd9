package marketdata

import (
	"regexp"
	"strings"

	apperrors "github.com/koinlytics-backend/internal/errors"
)

// coin ids are lowercase slugs such as "matic-network" or "usd-coin"
var coinIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// chartWindows are the day ranges a chart may be requested for
var chartWindows = map[string]struct{}{
	"1": {}, "7": {}, "14": {}, "30": {}, "90": {}, "180": {}, "365": {}, "max": {},
}

// NormalizeCoinID lowercases a single coin id and rejects anything that is not a slug,
// including comma-separated lists.
func NormalizeCoinID(id string) (string, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return "", apperrors.NewInvalidRequestError("coin id is required")
	}
	if len(id) > 128 || !coinIDPattern.MatchString(id) {
		err := apperrors.NewInvalidRequestError("invalid coin id")
		err.Details = map[string]interface{}{"id": id}
		return "", err
	}
	return id, nil
}

// NormalizeChartDays defaults an empty window and rejects windows outside the allowed set
func NormalizeChartDays(days string) (string, error) {
	days = strings.ToLower(strings.TrimSpace(days))
	if days == "" {
		return DefaultChartDays, nil
	}
	if _, ok := chartWindows[days]; !ok {
		err := apperrors.NewInvalidRequestError("unsupported chart window")
		err.Details = map[string]interface{}{"days": days}
		return "", err
	}
	return days, nil
}
