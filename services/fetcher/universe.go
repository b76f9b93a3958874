package fetcher

import (
	"strings"

	"github.com/shopspring/decimal"
)

// EquityListing is static metadata for a tracked ticker.
// Market caps are reference values used for ordering, in USD.
type EquityListing struct {
	Symbol    string
	Name      string
	MarketCap decimal.Decimal
	LogoURL   string
}

func listing(symbol, name string, capBillions int64) EquityListing {
	return EquityListing{
		Symbol:    symbol,
		Name:      name,
		MarketCap: decimal.NewFromInt(capBillions).Mul(decimal.NewFromInt(1_000_000_000)),
		LogoURL:   "https://static2.finnhub.io/file/publicdatany/finnhubimage/stock_logo/" + symbol + ".png",
	}
}

// DefaultEquityUniverse is the fixed symbol list polled by the equity cycle
var DefaultEquityUniverse = []EquityListing{
	listing("NVDA", "NVIDIA Corporation", 4300),
	listing("MSFT", "Microsoft Corporation", 3800),
	listing("AAPL", "Apple Inc.", 3500),
	listing("GOOGL", "Alphabet Inc.", 2900),
	listing("AMZN", "Amazon.com, Inc.", 2400),
	listing("META", "Meta Platforms, Inc.", 1800),
	listing("AVGO", "Broadcom Inc.", 1600),
	listing("TSLA", "Tesla, Inc.", 1300),
	listing("BRK.B", "Berkshire Hathaway Inc.", 1050),
	listing("JPM", "JPMorgan Chase & Co.", 840),
	listing("WMT", "Walmart Inc.", 800),
	listing("ORCL", "Oracle Corporation", 780),
	listing("LLY", "Eli Lilly and Company", 720),
	listing("V", "Visa Inc.", 660),
	listing("MA", "Mastercard Incorporated", 530),
	listing("NFLX", "Netflix, Inc.", 520),
	listing("XOM", "Exxon Mobil Corporation", 480),
	listing("COST", "Costco Wholesale Corporation", 420),
	listing("JNJ", "Johnson & Johnson", 410),
	listing("HD", "The Home Depot, Inc.", 400),
}

func findListing(universe []EquityListing, symbol string) (EquityListing, bool) {
	for _, l := range universe {
		if strings.EqualFold(l.Symbol, symbol) {
			return l, true
		}
	}
	return EquityListing{}, false
}
