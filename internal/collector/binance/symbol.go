package binance

import (
	"regexp"
	"strings"
)

// Quote currencies recognised as a pair suffix, longest first
var quoteCurrencies = []string{"FDUSD", "USDT", "BUSD", "USDC", "BTC", "ETH", "BNB"}

var validPair = regexp.MustCompile(`^[A-Z0-9]{2,20}$`)

// NormalizeSymbol converts ticker input to a Binance pair.
//
//	"BTC"      -> "BTCUSDT"
//	"btc-usd"  -> "BTCUSDT"
//	"ETH/BTC"  -> "ETHBTC"
//	"SOLUSDC"  -> "SOLUSDC"
//
// The second result is false when the input cannot name a pair.
func NormalizeSymbol(input, defaultQuote string) (string, bool) {
	s := strings.ToUpper(strings.TrimSpace(input))
	s = strings.NewReplacer("-", "", "/", "", "_", "").Replace(s)
	if !validPair.MatchString(s) {
		return "", false
	}

	for _, quote := range quoteCurrencies {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return s, true
		}
	}
	// Yahoo style crypto tickers quote in USD
	if strings.HasSuffix(s, "USD") && len(s) > 3 {
		return s + "T", true
	}
	return s + strings.ToUpper(defaultQuote), true
}
