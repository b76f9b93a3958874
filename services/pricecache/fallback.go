package pricecache

import (
	"github.com/shopspring/decimal"

	"market_pulse_backend/models"
	"market_pulse_backend/services/fetcher"
)

type fallbackQuote struct {
	id, symbol, name string
	price, marketCap string
	image            string
}

var cryptoFallback = []fallbackQuote{
	{"bitcoin", "BTC", "Bitcoin", "65000", "1280000000000", "https://assets.coingecko.com/coins/images/1/large/bitcoin.png"},
	{"ethereum", "ETH", "Ethereum", "3400", "410000000000", "https://assets.coingecko.com/coins/images/279/large/ethereum.png"},
	{"tether", "USDT", "Tether", "1", "118000000000", "https://assets.coingecko.com/coins/images/325/large/Tether.png"},
	{"binancecoin", "BNB", "BNB", "580", "85000000000", "https://assets.coingecko.com/coins/images/825/large/bnb-icon2_2x.png"},
	{"solana", "SOL", "Solana", "150", "70000000000", "https://assets.coingecko.com/coins/images/4128/large/solana.png"},
	{"usd-coin", "USDC", "USDC", "1", "34000000000", "https://assets.coingecko.com/coins/images/6319/large/usdc.png"},
	{"ripple", "XRP", "XRP", "0.52", "29000000000", "https://assets.coingecko.com/coins/images/44/large/xrp-symbol-white-128.png"},
	{"dogecoin", "DOGE", "Dogecoin", "0.12", "17000000000", "https://assets.coingecko.com/coins/images/5/large/dogecoin.png"},
	{"tron", "TRX", "TRON", "0.13", "11000000000", "https://assets.coingecko.com/coins/images/1094/large/tron-logo.png"},
	{"cardano", "ADA", "Cardano", "0.35", "12500000000", "https://assets.coingecko.com/coins/images/975/large/cardano.png"},
}

var equityFallbackPrices = map[string]string{
	"NVDA": "177.00", "MSFT": "510.00", "AAPL": "235.00", "GOOGL": "240.00", "AMZN": "225.00",
	"META": "720.00", "AVGO": "340.00", "TSLA": "400.00", "BRK.B": "490.00", "JPM": "300.00",
	"WMT": "100.00", "ORCL": "280.00", "LLY": "800.00", "V": "345.00", "MA": "580.00",
	"NFLX": "1200.00", "XOM": "112.00", "COST": "930.00", "JNJ": "175.00", "HD": "400.00",
}

// Fallback returns the deterministic static dataset for an asset class,
// ordered by market cap
func Fallback(class models.AssetClass) models.Snapshot {
	var assets []models.CachedAsset
	switch class {
	case models.AssetClassCrypto:
		assets = make([]models.CachedAsset, 0, len(cryptoFallback))
		for _, q := range cryptoFallback {
			assets = append(assets, models.CachedAsset{
				ID:          q.id,
				AssetClass:  models.AssetClassCrypto,
				DisplayName: q.name,
				Symbol:      q.symbol,
				Price:       decimal.RequireFromString(q.price),
				MarketCap:   decimal.RequireFromString(q.marketCap),
				ImageURL:    q.image,
			})
		}
	case models.AssetClassEquity:
		assets = make([]models.CachedAsset, 0, len(fetcher.DefaultEquityUniverse))
		for _, l := range fetcher.DefaultEquityUniverse {
			price, ok := equityFallbackPrices[l.Symbol]
			if !ok {
				continue
			}
			assets = append(assets, models.CachedAsset{
				ID:          l.Symbol,
				AssetClass:  models.AssetClassEquity,
				DisplayName: l.Name,
				Symbol:      l.Symbol,
				Price:       decimal.RequireFromString(price),
				MarketCap:   l.MarketCap,
				ImageURL:    l.LogoURL,
			})
		}
	}
	models.SortByMarketCap(assets)
	return models.Snapshot{AssetClass: class, Assets: assets, Fallback: true}
}
