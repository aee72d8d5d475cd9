package config

// defaultSymbols maps lowercase trading symbols to CoinGecko coin ids.
var defaultSymbols = map[string]string{
	"btc":   "bitcoin",
	"eth":   "ethereum",
	"weth":  "ethereum",
	"bnb":   "binancecoin",
	"usdc":  "usd-coin",
	"usdt":  "tether",
	"link":  "chainlink",
	"matic": "matic-network",
	"dogs":  "the-doge-nft",
	"quick": "quickswap",
	"rune":  "thorchain",
	"slp":   "smooth-love-potion",
}

// DefaultSymbolTable returns a fresh copy of the built-in symbol table
func DefaultSymbolTable() map[string]string {
	table := make(map[string]string, len(defaultSymbols))
	for symbol, id := range defaultSymbols {
		table[symbol] = id
	}
	return table
}

// SymbolTable returns the built-in table extended by SYMBOL_OVERRIDES
func (c ValuationConfig) SymbolTable() map[string]string {
	table := DefaultSymbolTable()
	for symbol, id := range c.SymbolOverrides {
		table[symbol] = id
	}
	return table
}
