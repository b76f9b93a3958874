package controllers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market_pulse_backend/models"
	"market_pulse_backend/scheduler"
	"market_pulse_backend/services/pricecache"
)

type fakeMarket struct {
	lastLimit int
	updated   time.Time
}

func (f *fakeMarket) GetOrFallback(ctx context.Context, class models.AssetClass, limit int) pricecache.View {
	f.lastLimit = limit
	return pricecache.View{
		Data:       []models.CachedAsset{{ID: "bitcoin", AssetClass: class, Symbol: "BTC", Price: decimal.NewFromInt(60000)}},
		LastUpdate: &f.updated,
		Cached:     true,
	}
}

func (f *fakeMarket) Search(ctx context.Context, class models.AssetClass, query string) []models.CachedAsset {
	if query == "btc" {
		return []models.CachedAsset{{ID: "bitcoin", Symbol: "BTC"}}
	}
	return []models.CachedAsset{}
}

func (f *fakeMarket) GetSingle(ctx context.Context, class models.AssetClass, id string) *models.CachedAsset {
	if id != "bitcoin" {
		return nil
	}
	return &models.CachedAsset{ID: "bitcoin", Symbol: "BTC"}
}

func (f *fakeMarket) LastUpdate(ctx context.Context, class models.AssetClass) *time.Time {
	if class == models.AssetClassCrypto {
		return &f.updated
	}
	return nil
}

type fakeStatus struct{}

func (fakeStatus) Status() []scheduler.CycleStatus {
	return []scheduler.CycleStatus{{Name: "crypto_ingestion", LastCount: 100}}
}

type fakeClients int

func (f fakeClients) ClientCount() int { return int(f) }

type fakeQueue int

func (f fakeQueue) Pending() int { return int(f) }

func marketRouter(m *fakeMarket) *gin.Engine {
	mc := NewMarketController(m, fakeStatus{}, fakeClients(3), fakeQueue(7))
	r := gin.New()
	r.GET("/market/status", mc.GetStatus)
	r.GET("/market/:class", mc.GetMarket)
	r.GET("/market/:class/search", mc.SearchMarket)
	r.GET("/market/:class/assets/:id", mc.GetAsset)
	return r
}

func TestGetMarket(t *testing.T) {
	m := &fakeMarket{updated: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	r := marketRouter(m)

	w := doJSON(t, r, http.MethodGet, "/market/crypto?limit=3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, m.lastLimit)

	var body struct {
		Data       []models.CachedAsset `json:"data"`
		LastUpdate *time.Time           `json:"last_update"`
		Cached     bool                 `json:"cached"`
	}
	decode(t, w, &body)
	assert.True(t, body.Cached)
	require.Len(t, body.Data, 1)
	assert.True(t, body.Data[0].Price.Equal(decimal.NewFromInt(60000)))

	doJSON(t, r, http.MethodGet, "/market/equity", nil)
	assert.Equal(t, defaultMarketLimit, m.lastLimit)

	doJSON(t, r, http.MethodGet, "/market/equity?limit=100000", nil)
	assert.Equal(t, maxMarketLimit, m.lastLimit)

	assert.Equal(t, http.StatusBadRequest, doJSON(t, r, http.MethodGet, "/market/forex", nil).Code)
	assert.Equal(t, http.StatusBadRequest, doJSON(t, r, http.MethodGet, "/market/crypto?limit=-1", nil).Code)
}

func TestSearchAndAsset(t *testing.T) {
	r := marketRouter(&fakeMarket{})

	w := doJSON(t, r, http.MethodGet, "/market/crypto/search?q=btc", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var found struct {
		Count int `json:"count"`
	}
	decode(t, w, &found)
	assert.Equal(t, 1, found.Count)

	assert.Equal(t, http.StatusBadRequest, doJSON(t, r, http.MethodGet, "/market/crypto/search", nil).Code)
	assert.Equal(t, http.StatusOK, doJSON(t, r, http.MethodGet, "/market/crypto/assets/bitcoin", nil).Code)
	assert.Equal(t, http.StatusNotFound, doJSON(t, r, http.MethodGet, "/market/crypto/assets/nope", nil).Code)
}

func TestGetStatus(t *testing.T) {
	r := marketRouter(&fakeMarket{updated: time.Now()})

	w := doJSON(t, r, http.MethodGet, "/market/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		LastUpdate      map[string]*time.Time   `json:"last_update"`
		Cycles          []scheduler.CycleStatus `json:"cycles"`
		RealtimeClients int                     `json:"realtime_clients"`
		Queue           int                     `json:"notification_queue"`
	}
	decode(t, w, &body)
	assert.NotNil(t, body.LastUpdate["crypto"])
	assert.Nil(t, body.LastUpdate["equity"])
	require.Len(t, body.Cycles, 1)
	assert.Equal(t, 3, body.RealtimeClients)
	assert.Equal(t, 7, body.Queue)
}
