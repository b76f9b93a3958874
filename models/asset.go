package models

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AssetClass identifies a family of tracked assets
type AssetClass string

const (
	AssetClassCrypto AssetClass = "crypto"
	AssetClassEquity AssetClass = "equity"
)

// AssetClasses returns every supported asset class
func AssetClasses() []AssetClass {
	return []AssetClass{AssetClassCrypto, AssetClassEquity}
}

// ParseAssetClass converts a path or query value into an AssetClass
func ParseAssetClass(value string) (AssetClass, bool) {
	switch AssetClass(strings.ToLower(strings.TrimSpace(value))) {
	case AssetClassCrypto:
		return AssetClassCrypto, true
	case AssetClassEquity:
		return AssetClassEquity, true
	}
	return "", false
}

// CachedAsset is the latest known quote for one tracked asset.
// It is replaced wholesale on every successful ingestion cycle.
type CachedAsset struct {
	ID              string          `json:"id"`
	AssetClass      AssetClass      `json:"asset_class"`
	DisplayName     string          `json:"display_name"`
	Symbol          string          `json:"symbol"`
	Price           decimal.Decimal `json:"price"`
	Change24hPct    decimal.Decimal `json:"change_24h_pct"`
	MarketCap       decimal.Decimal `json:"market_cap"`
	Volume24h       decimal.Decimal `json:"volume_24h"`
	ImageURL        string          `json:"image_url"`
	LastRefreshedAt time.Time       `json:"last_refreshed_at"`
}

// Valid reports whether the asset carries a usable quote
func (a CachedAsset) Valid() bool {
	return a.ID != "" && a.Price.IsPositive()
}

// Snapshot is the cached view of one asset class
type Snapshot struct {
	AssetClass AssetClass    `json:"asset_class"`
	Assets     []CachedAsset `json:"assets"`
	UpdatedAt  time.Time     `json:"updated_at"`
	// Fallback marks a snapshot seeded from the static dataset
	Fallback bool `json:"fallback"`
}

// Top returns a copy of the first limit assets. A non-positive limit returns all of them.
func (s Snapshot) Top(limit int) []CachedAsset {
	n := len(s.Assets)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]CachedAsset, n)
	copy(out, s.Assets[:n])
	return out
}

// Find looks an asset up by id, falling back to its ticker symbol
func (s Snapshot) Find(id string) (CachedAsset, bool) {
	for _, asset := range s.Assets {
		if strings.EqualFold(asset.ID, id) {
			return asset, true
		}
	}
	for _, asset := range s.Assets {
		if strings.EqualFold(asset.Symbol, id) {
			return asset, true
		}
	}
	return CachedAsset{}, false
}

// Search returns assets whose id, symbol or name contains query (case-insensitive)
func (s Snapshot) Search(query string) []CachedAsset {
	query = strings.ToLower(strings.TrimSpace(query))
	result := make([]CachedAsset, 0)
	if query == "" {
		return result
	}
	for _, asset := range s.Assets {
		if strings.Contains(strings.ToLower(asset.ID), query) ||
			strings.Contains(strings.ToLower(asset.Symbol), query) ||
			strings.Contains(strings.ToLower(asset.DisplayName), query) {
			result = append(result, asset)
		}
	}
	return result
}

// SortByMarketCap orders assets by market cap, largest first
func SortByMarketCap(assets []CachedAsset) {
	sort.SliceStable(assets, func(i, j int) bool {
		return assets[i].MarketCap.GreaterThan(assets[j].MarketCap)
	})
}
