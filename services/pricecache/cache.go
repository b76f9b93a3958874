package pricecache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"market_pulse_backend/models"
	"market_pulse_backend/services/fetcher"
)

// ErrPriceUnavailable means neither the cache nor the provider produced a price
var ErrPriceUnavailable = errors.New("price unavailable")

// Refresher is asked to refresh an asset class in the background.
// RequestRefresh must not block.
type Refresher interface {
	RequestRefresh(class models.AssetClass)
}

// SingleFetcher loads one asset directly from upstream on a cache miss
type SingleFetcher interface {
	FetchOne(ctx context.Context, id string) (*models.CachedAsset, error)
}

// View is the read model served to HTTP callers
type View struct {
	Data       []models.CachedAsset `json:"data"`
	LastUpdate *time.Time           `json:"last_update"`
	Cached     bool                 `json:"cached"`
}

// Options configures a PriceCache
type Options struct {
	// TTL of snapshots written by a successful ingestion cycle
	TTL time.Duration
	// FallbackTTL of static snapshots seeded after a failed cycle on an empty cache
	FallbackTTL time.Duration
	// FetchTimeout bounds direct single-asset fetches
	FetchTimeout time.Duration
}

// PriceCache is the cache-aside read path over a Store. Only the ingestion
// scheduler writes to it; every read returns something.
type PriceCache struct {
	store  Store
	opts   Options
	logger *zap.Logger
	group  singleflight.Group
	now    func() time.Time

	mu        sync.RWMutex
	refresher Refresher
	fetchers  map[models.AssetClass]SingleFetcher
}

// New creates a PriceCache over store
func New(store Store, opts Options, logger *zap.Logger) *PriceCache {
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	if opts.FallbackTTL <= 0 {
		opts.FallbackTTL = time.Minute
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 8 * time.Second
	}
	return &PriceCache{
		store:    store,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
		fetchers: make(map[models.AssetClass]SingleFetcher),
	}
}

// SetRefresher wires the background refresh hook
func (c *PriceCache) SetRefresher(r Refresher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refresher = r
}

// RegisterFetcher wires the direct upstream path for one asset class
func (c *PriceCache) RegisterFetcher(class models.AssetClass, f SingleFetcher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchers[class] = f
}

func snapshotKey(class models.AssetClass) string {
	return "market:" + string(class)
}

// Set stores value under key with ttl
func (c *PriceCache) Set(ctx context.Context, key string, value models.Snapshot, ttl time.Duration) error {
	return c.store.Set(ctx, key, value, ttl)
}

// Get reads key, returning ErrMiss when absent or expired
func (c *PriceCache) Get(ctx context.Context, key string) (models.Snapshot, error) {
	return c.store.Get(ctx, key)
}

// Replace publishes a freshly fetched asset list for class as one snapshot
func (c *PriceCache) Replace(ctx context.Context, class models.AssetClass, assets []models.CachedAsset) (models.Snapshot, error) {
	snapshot := models.Snapshot{
		AssetClass: class,
		Assets:     assets,
		UpdatedAt:  c.now().UTC(),
	}
	if err := c.store.Set(ctx, snapshotKey(class), snapshot, c.opts.TTL); err != nil {
		return models.Snapshot{}, fmt.Errorf("replace %s snapshot: %w", class, err)
	}
	return snapshot, nil
}

// SeedFallback stores the static dataset for class with the short fallback TTL
func (c *PriceCache) SeedFallback(ctx context.Context, class models.AssetClass) error {
	snapshot := Fallback(class)
	snapshot.UpdatedAt = c.now().UTC()
	return c.store.Set(ctx, snapshotKey(class), snapshot, c.opts.FallbackTTL)
}

// Snapshot returns the stored snapshot for class. ok is false on a miss or
// a store error; store errors are logged, never returned.
func (c *PriceCache) Snapshot(ctx context.Context, class models.AssetClass) (models.Snapshot, bool) {
	snapshot, err := c.store.Get(ctx, snapshotKey(class))
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.logger.Warn("price cache read failed", zap.String("asset_class", string(class)), zap.Error(err))
		}
		return models.Snapshot{}, false
	}
	return snapshot, true
}

// HasLiveData reports whether class holds an upstream (non-fallback) snapshot
func (c *PriceCache) HasLiveData(ctx context.Context, class models.AssetClass) bool {
	snapshot, ok := c.Snapshot(ctx, class)
	return ok && !snapshot.Fallback
}

// GetOrFallback returns the top limit assets of class. A miss is never an
// error: the static dataset is served and a background refresh is requested.
func (c *PriceCache) GetOrFallback(ctx context.Context, class models.AssetClass, limit int) View {
	snapshot, ok := c.Snapshot(ctx, class)
	if ok && !snapshot.Fallback {
		updated := snapshot.UpdatedAt
		return View{Data: snapshot.Top(limit), LastUpdate: &updated, Cached: true}
	}

	c.requestRefresh(class)
	if !ok {
		snapshot = Fallback(class)
	}
	view := View{Data: snapshot.Top(limit), Cached: false}
	if !snapshot.UpdatedAt.IsZero() {
		updated := snapshot.UpdatedAt
		view.LastUpdate = &updated
	}
	return view
}

// Search filters the current (or fallback) snapshot of class by query
func (c *PriceCache) Search(ctx context.Context, class models.AssetClass, query string) []models.CachedAsset {
	snapshot, ok := c.Snapshot(ctx, class)
	if !ok {
		c.requestRefresh(class)
		snapshot = Fallback(class)
	}
	return snapshot.Search(query)
}

// GetSingle returns one asset, falling through to a direct upstream fetch on
// a miss. The static dataset is the last resort; nil means unknown asset.
func (c *PriceCache) GetSingle(ctx context.Context, class models.AssetClass, id string) *models.CachedAsset {
	asset, err := c.resolveAsset(ctx, class, id)
	if err == nil {
		return asset
	}
	if !errors.Is(err, fetcher.ErrNotFound) {
		c.logger.Warn("single asset lookup failed",
			zap.String("asset_class", string(class)), zap.String("asset_id", id), zap.Error(err))
	}
	if fb, ok := Fallback(class).Find(id); ok {
		return &fb
	}
	return nil
}

// ResolvePrice is the authoritative price read used by alert evaluation.
// Fallback data is never used to price an alert.
func (c *PriceCache) ResolvePrice(ctx context.Context, class models.AssetClass, id string) (decimal.Decimal, error) {
	asset, err := c.resolveAsset(ctx, class, id)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s/%s: %v", ErrPriceUnavailable, class, id, err)
	}
	return asset.Price, nil
}

func (c *PriceCache) resolveAsset(ctx context.Context, class models.AssetClass, id string) (*models.CachedAsset, error) {
	if snapshot, ok := c.Snapshot(ctx, class); ok && !snapshot.Fallback {
		if asset, found := snapshot.Find(id); found {
			return &asset, nil
		}
	}

	c.mu.RLock()
	f := c.fetchers[class]
	c.mu.RUnlock()
	if f == nil {
		return nil, fmt.Errorf("no upstream fetcher for %s", class)
	}

	v, err, _ := c.group.Do(string(class)+":"+id, func() (interface{}, error) {
		// shared by every waiter, so one caller going away must not cancel it
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.FetchTimeout)
		defer cancel()
		return f.FetchOne(fetchCtx, id)
	})
	if err != nil {
		return nil, err
	}
	asset := v.(*models.CachedAsset)
	if asset == nil || !asset.Valid() {
		return nil, fetcher.ErrNotFound
	}
	cp := *asset
	return &cp, nil
}

// LastUpdate returns when class was last refreshed from upstream
func (c *PriceCache) LastUpdate(ctx context.Context, class models.AssetClass) *time.Time {
	snapshot, ok := c.Snapshot(ctx, class)
	if !ok || snapshot.Fallback {
		return nil
	}
	updated := snapshot.UpdatedAt
	return &updated
}

func (c *PriceCache) requestRefresh(class models.AssetClass) {
	c.mu.RLock()
	r := c.refresher
	c.mu.RUnlock()
	if r != nil {
		r.RequestRefresh(class)
	}
}
