package symbols

import "strings"

// Contracts on thousand-multiplied tokens carry a 1000 prefix on the futures
// market while supply sources list the plain token.
var multiplied = map[string]string{
	"1000BONK":  "BONK",
	"1000FLOKI": "FLOKI",
	"1000LUNC":  "LUNC",
	"1000PEPE":  "PEPE",
	"1000RATS":  "RATS",
	"1000SATS":  "SATS",
	"1000SHIB":  "SHIB",
	"1000XEC":   "XEC",
}

// ToBase strips the USDT quote suffix and normalizes thousand-multiplied
// contract names, so BTCUSDT becomes BTC and 1000PEPEUSDT becomes PEPE. The
// result is the key used for supply lookups.
func ToBase(symbol string) string {
	base := strings.ToUpper(symbol)
	base = strings.TrimSuffix(base, "USDT")
	if plain, ok := multiplied[base]; ok {
		return plain
	}
	return base
}

// ToPair builds the futures pair name for a base asset, restoring the 1000
// prefix where the contract uses one.
func ToPair(base string) string {
	base = strings.ToUpper(base)
	for prefixed, plain := range multiplied {
		if plain == base {
			return prefixed + "USDT"
		}
	}
	return base + "USDT"
}

// IsUSDTPair reports whether the symbol is quoted in USDT.
func IsUSDTPair(symbol string) bool {
	return strings.HasSuffix(strings.ToUpper(symbol), "USDT")
}

// SupplyMultiplier returns the factor between the contract unit and the plain
// token: 1000 for thousand-multiplied contracts, 1 otherwise. Market-cap math
// on such contracts must scale the contract price back to token terms.
func SupplyMultiplier(symbol string) float64 {
	base := strings.ToUpper(strings.TrimSuffix(strings.ToUpper(symbol), "USDT"))
	if _, ok := multiplied[base]; ok {
		return 1000
	}
	return 1
}
