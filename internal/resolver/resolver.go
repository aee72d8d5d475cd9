// Package resolver maps exchange and wallet symbols to market-data identifiers.
package resolver

import "strings"

// SymbolResolver is an immutable symbol -> identifier table with identity fallback
type SymbolResolver struct {
	table map[string]string
}

// NewSymbolResolver copies table, lowercasing symbols and identifiers.
// Market data is keyed by lowercase identifier.
func NewSymbolResolver(table map[string]string) *SymbolResolver {
	copied := make(map[string]string, len(table))
	for symbol, id := range table {
		copied[normalize(symbol)] = normalize(id)
	}
	return &SymbolResolver{table: copied}
}

// Resolve returns the identifier for symbol; unmapped symbols resolve to themselves
func (r *SymbolResolver) Resolve(symbol string) string {
	symbol = normalize(symbol)
	if id, ok := r.table[symbol]; ok {
		return id
	}
	return symbol
}

// ResolveAll resolves each symbol and returns the distinct identifiers in first-seen order
func (r *SymbolResolver) ResolveAll(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	ids := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		id := r.Resolve(symbol)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

func normalize(symbol string) string {
	return strings.ToLower(strings.TrimSpace(symbol))
}
