package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"market_pulse_backend/models"
)

// EquityOptions configures the Finnhub client and batching
type EquityOptions struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	BatchSize     int
	BatchDelay    time.Duration
	MinResults    int
	RatePerMinute int
	Universe      []EquityListing
}

// EquityFetcher polls per-symbol quotes in rate-limited batches
type EquityFetcher struct {
	client     *resty.Client
	apiKey     string
	batchSize  int
	batchDelay time.Duration
	minResults int
	limiter    *rate.Limiter
	universe   []EquityListing
	logger     *zap.Logger
	now        func() time.Time
	// sleep waits between batches; swapped in tests
	sleep func(ctx context.Context, d time.Duration) error
}

type finnhubQuote struct {
	Current       decimal.Decimal `json:"c"`
	Change        decimal.Decimal `json:"d"`
	ChangePercent decimal.Decimal `json:"dp"`
	High          decimal.Decimal `json:"h"`
	Low           decimal.Decimal `json:"l"`
	Open          decimal.Decimal `json:"o"`
	PrevClose     decimal.Decimal `json:"pc"`
	Timestamp     int64           `json:"t"`
}

// NewEquityFetcher creates a Finnhub backed fetcher
func NewEquityFetcher(opts EquityOptions, logger *zap.Logger) *EquityFetcher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 8 * time.Second
	}
	if len(opts.Universe) == 0 {
		opts.Universe = DefaultEquityUniverse
	}
	if opts.MinResults <= 0 || opts.MinResults > len(opts.Universe) {
		opts.MinResults = (len(opts.Universe) + 1) / 2
	}

	limiter := rate.NewLimiter(rate.Inf, opts.BatchSize)
	if opts.RatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RatePerMinute)), opts.BatchSize)
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json")

	return &EquityFetcher{
		client:     client,
		apiKey:     opts.APIKey,
		batchSize:  opts.BatchSize,
		batchDelay: opts.BatchDelay,
		minResults: opts.MinResults,
		limiter:    limiter,
		universe:   opts.Universe,
		logger:     logger,
		now:        time.Now,
		sleep:      sleepContext,
	}
}

func (f *EquityFetcher) AssetClass() models.AssetClass {
	return models.AssetClassEquity
}

// FetchAll quotes the universe batch by batch. Symbols inside a batch are
// requested in parallel; a symbol without a usable quote is dropped for this run.
func (f *EquityFetcher) FetchAll(ctx context.Context) ([]models.CachedAsset, error) {
	symbols := make([]string, len(f.universe))
	for i, l := range f.universe {
		symbols[i] = l.Symbol
	}

	resolved := make([]*models.CachedAsset, len(symbols))
	offset := 0
	for i, batch := range chunkSlice(symbols, f.batchSize) {
		if i > 0 && f.batchDelay > 0 {
			if err := f.sleep(ctx, f.batchDelay); err != nil {
				return nil, fmt.Errorf("%w: equity batches interrupted: %v", ErrUpstream, err)
			}
		}

		g, gctx := errgroup.WithContext(ctx)
		for j, symbol := range batch {
			slot := offset + j
			g.Go(func() error {
				asset, err := f.quote(gctx, symbol)
				if err != nil {
					f.logger.Debug("equity quote dropped", zap.String("symbol", symbol), zap.Error(err))
					return nil
				}
				resolved[slot] = asset
				return nil
			})
		}
		_ = g.Wait()
		offset += len(batch)
	}

	assets := make([]models.CachedAsset, 0, len(resolved))
	for _, asset := range resolved {
		if asset != nil {
			assets = append(assets, *asset)
		}
	}
	if len(assets) < f.minResults {
		return nil, fmt.Errorf("%w: resolved %d of %d equity symbols (minimum %d)",
			ErrTooFewResults, len(assets), len(symbols), f.minResults)
	}

	models.SortByMarketCap(assets)
	f.logger.Debug("equity quotes fetched", zap.Int("count", len(assets)), zap.Int("requested", len(symbols)))
	return assets, nil
}

// FetchOne quotes a single ticker
func (f *EquityFetcher) FetchOne(ctx context.Context, id string) (*models.CachedAsset, error) {
	symbol := strings.ToUpper(strings.TrimSpace(id))
	if symbol == "" {
		return nil, ErrNotFound
	}
	return f.quote(ctx, symbol)
}

func (f *EquityFetcher) quote(ctx context.Context, symbol string) (*models.CachedAsset, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", ErrUpstream, err)
	}

	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetQueryParam("token", f.apiKey).
		Get("/quote")
	if err != nil {
		return nil, fmt.Errorf("%w: finnhub %s: %v", ErrUpstream, symbol, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: finnhub %s status %d", ErrUpstream, symbol, resp.StatusCode())
	}

	var q finnhubQuote
	if err := json.Unmarshal(resp.Body(), &q); err != nil {
		return nil, fmt.Errorf("%w: finnhub %s malformed body: %v", ErrUpstream, symbol, err)
	}
	if !q.Current.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, symbol)
	}

	meta, ok := findListing(f.universe, symbol)
	if !ok {
		meta = EquityListing{Symbol: symbol, Name: symbol}
	}

	return &models.CachedAsset{
		ID:              meta.Symbol,
		AssetClass:      models.AssetClassEquity,
		DisplayName:     meta.Name,
		Symbol:          meta.Symbol,
		Price:           q.Current,
		Change24hPct:    q.ChangePercent,
		MarketCap:       meta.MarketCap,
		ImageURL:        meta.LogoURL,
		LastRefreshedAt: f.now(),
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
