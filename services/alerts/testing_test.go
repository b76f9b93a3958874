package alerts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"market_pulse_backend/models"
)

func newTestRepo(t *testing.T) *GormRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, models.MigrateAlertModels(db))
	return NewGormRepository(db)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type stubPrices struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	calls  map[string]int
}

func newStubPrices(prices map[string]string) *stubPrices {
	p := &stubPrices{prices: map[string]decimal.Decimal{}, calls: map[string]int{}}
	for id, price := range prices {
		p.prices[id] = dec(price)
	}
	return p
}

func (p *stubPrices) set(id, price string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[id] = dec(price)
}

func (p *stubPrices) ResolvePrice(ctx context.Context, class models.AssetClass, id string) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[id]++
	price, ok := p.prices[id]
	if !ok {
		return decimal.Zero, errors.New("price unavailable")
	}
	return price, nil
}

func (p *stubPrices) callCount(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[id]
}

type dispatched struct {
	alert models.Alert
	price decimal.Decimal
}

type recordingDispatcher struct {
	mu    sync.Mutex
	items []dispatched
	err   error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, alert models.Alert, price decimal.Decimal) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items = append(d.items, dispatched{alert: alert, price: price})
	return d.err
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}

func newTestService(repo Repository) *Service {
	return NewService(repo, nil, zap.NewNop())
}

func mustCreate(t *testing.T, svc *Service, in CreateInput) *models.Alert {
	t.Helper()
	alert, err := svc.Create(context.Background(), in)
	require.NoError(t, err)
	return alert
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
