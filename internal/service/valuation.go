package service

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/koinlytics-backend/internal/types"
)

// DefaultDustThreshold is the minimum value an asset needs to be reported
var DefaultDustThreshold = decimal.NewFromInt(1)

var hundred = decimal.NewFromInt(100)

// Resolver maps a held symbol to the identifier the market-data provider prices it under
type Resolver interface {
	Resolve(symbol string) string
	ResolveAll(symbols []string) []string
}

// Holdings is the total free amount per lowercase symbol across every source
type Holdings map[string]decimal.Decimal

// MergeBalances sums balances per symbol. Entries without a symbol or with a
// negative amount are skipped.
func MergeBalances(lists ...[]types.Balance) Holdings {
	holdings := make(Holdings)
	for _, list := range lists {
		for _, b := range list {
			symbol := strings.ToLower(strings.TrimSpace(b.Asset))
			if symbol == "" || b.Free.IsNegative() {
				continue
			}
			holdings[symbol] = holdings[symbol].Add(b.Free)
		}
	}
	return holdings
}

// Symbols returns the held symbols with a positive amount, sorted
func (h Holdings) Symbols() []string {
	symbols := make([]string, 0, len(h))
	for symbol, amount := range h {
		if amount.IsPositive() {
			symbols = append(symbols, symbol)
		}
	}
	sort.Strings(symbols)
	return symbols
}

// Valuator prices holdings against market quotes
type Valuator struct {
	resolver Resolver
	dust     decimal.Decimal
}

// NewValuator creates a valuator. A negative dust threshold disables the filter.
func NewValuator(resolver Resolver, dust decimal.Decimal) *Valuator {
	return &Valuator{resolver: resolver, dust: dust}
}

// Identifiers returns the distinct pricing identifiers for the positive holdings, sorted
func (v *Valuator) Identifiers(h Holdings) []string {
	ids := v.resolver.ResolveAll(h.Symbols())
	sort.Strings(ids)
	return ids
}

// Value builds the portfolio for the holdings. Symbols that resolve to the same
// identifier are consolidated into one asset shown under the first symbol in
// alphabetical order. Identifiers without a quote are skipped and assets worth
// less than the dust threshold are dropped before totals are taken.
func (v *Valuator) Value(h Holdings, quotes map[string]types.MarketQuote) *types.Portfolio {
	type position struct {
		symbol string
		amount decimal.Decimal
	}

	order := make([]string, 0, len(h))
	positions := make(map[string]*position)
	for _, symbol := range h.Symbols() {
		id := v.resolver.Resolve(symbol)
		if _, ok := quotes[id]; !ok {
			continue
		}
		if p, ok := positions[id]; ok {
			p.amount = p.amount.Add(h[symbol])
			continue
		}
		positions[id] = &position{symbol: symbol, amount: h[symbol]}
		order = append(order, id)
	}

	portfolio := types.EmptyPortfolio("")
	total := decimal.Zero
	total24hAgo := decimal.Zero

	for _, id := range order {
		p := positions[id]
		quote := quotes[id]

		value := p.amount.Mul(quote.Price)
		if value.LessThan(v.dust) {
			continue
		}

		total = total.Add(value)
		total24hAgo = total24hAgo.Add(p.amount.Mul(PriorPrice(quote.Price, quote.ChangeOrZero())))

		portfolio.Assets = append(portfolio.Assets, types.ConsolidatedAsset{
			ID:           id,
			Symbol:       strings.ToUpper(p.symbol),
			Amount:       p.amount,
			CurrentValue: value,
			Price:        quote.Price,
			Change24h:    quote.ChangeOrZero(),
			Image:        quote.Image,
		})
	}

	// equal values keep identifier order
	sort.SliceStable(portfolio.Assets, func(i, j int) bool {
		return portfolio.Assets[i].CurrentValue.GreaterThan(portfolio.Assets[j].CurrentValue)
	})

	portfolio.TotalValue = total
	portfolio.Change24hValue = total.Sub(total24hAgo)
	portfolio.Change24hPercent = ChangePercent(total, total24hAgo)
	return portfolio
}

// PriorPrice reconstructs the price 24 hours ago from the current price and the
// percent change. A change of -100% or below cannot be reversed, so the current
// price is returned.
func PriorPrice(price, changePct decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(changePct.Div(hundred))
	if !factor.IsPositive() {
		return price
	}
	return price.Div(factor)
}

// ChangePercent is the percent move from before to now, or zero when before is not positive
func ChangePercent(now, before decimal.Decimal) decimal.Decimal {
	if !before.IsPositive() {
		return decimal.Zero
	}
	return now.Sub(before).Div(before).Mul(hundred)
}
