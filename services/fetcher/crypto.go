package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"market_pulse_backend/models"
)

// CryptoOptions configures the CoinGecko client
type CryptoOptions struct {
	BaseURL  string
	PageSize int
	Timeout  time.Duration
}

// CryptoFetcher loads the top coins by market cap in a single bulk call
type CryptoFetcher struct {
	client   *resty.Client
	pageSize int
	logger   *zap.Logger
	now      func() time.Time
}

type coinGeckoMarket struct {
	ID                       string              `json:"id"`
	Symbol                   string              `json:"symbol"`
	Name                     string              `json:"name"`
	Image                    string              `json:"image"`
	CurrentPrice             decimal.NullDecimal `json:"current_price"`
	MarketCap                decimal.Decimal     `json:"market_cap"`
	TotalVolume              decimal.Decimal     `json:"total_volume"`
	PriceChangePercentage24h decimal.Decimal     `json:"price_change_percentage_24h"`
}

// NewCryptoFetcher creates a CoinGecko backed fetcher
func NewCryptoFetcher(opts CryptoOptions, logger *zap.Logger) *CryptoFetcher {
	if opts.PageSize <= 0 || opts.PageSize > 250 {
		opts.PageSize = 100
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 8 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json")

	return &CryptoFetcher{
		client:   client,
		pageSize: opts.PageSize,
		logger:   logger,
		now:      time.Now,
	}
}

func (f *CryptoFetcher) AssetClass() models.AssetClass {
	return models.AssetClassCrypto
}

// FetchAll loads one page of markets ordered by market cap
func (f *CryptoFetcher) FetchAll(ctx context.Context) ([]models.CachedAsset, error) {
	markets, err := f.markets(ctx, map[string]string{
		"vs_currency": "usd",
		"order":       "market_cap_desc",
		"per_page":    strconv.Itoa(f.pageSize),
		"page":        "1",
		"sparkline":   "false",
	})
	if err != nil {
		return nil, err
	}

	assets := f.toAssets(markets)
	if len(assets) == 0 {
		return nil, fmt.Errorf("%w: coingecko returned no priced markets", ErrTooFewResults)
	}
	models.SortByMarketCap(assets)

	f.logger.Debug("crypto markets fetched", zap.Int("count", len(assets)))
	return assets, nil
}

// FetchOne loads a single coin by its CoinGecko id
func (f *CryptoFetcher) FetchOne(ctx context.Context, id string) (*models.CachedAsset, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return nil, ErrNotFound
	}
	markets, err := f.markets(ctx, map[string]string{
		"vs_currency": "usd",
		"ids":         id,
	})
	if err != nil {
		return nil, err
	}
	assets := f.toAssets(markets)
	if len(assets) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return &assets[0], nil
}

func (f *CryptoFetcher) markets(ctx context.Context, params map[string]string) ([]coinGeckoMarket, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get("/coins/markets")
	if err != nil {
		return nil, fmt.Errorf("%w: coingecko: %v", ErrUpstream, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: coingecko status %d", ErrUpstream, resp.StatusCode())
	}

	var markets []coinGeckoMarket
	if err := json.Unmarshal(resp.Body(), &markets); err != nil {
		return nil, fmt.Errorf("%w: coingecko malformed body: %v", ErrUpstream, err)
	}
	return markets, nil
}

func (f *CryptoFetcher) toAssets(markets []coinGeckoMarket) []models.CachedAsset {
	now := f.now()
	assets := make([]models.CachedAsset, 0, len(markets))
	for _, m := range markets {
		if !m.CurrentPrice.Valid {
			continue
		}
		asset := models.CachedAsset{
			ID:              m.ID,
			AssetClass:      models.AssetClassCrypto,
			DisplayName:     m.Name,
			Symbol:          strings.ToUpper(m.Symbol),
			Price:           m.CurrentPrice.Decimal,
			Change24hPct:    m.PriceChangePercentage24h,
			MarketCap:       m.MarketCap,
			Volume24h:       m.TotalVolume,
			ImageURL:        m.Image,
			LastRefreshedAt: now,
		}
		if !asset.Valid() {
			continue
		}
		assets = append(assets, asset)
	}
	return assets
}
