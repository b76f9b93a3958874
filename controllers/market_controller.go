package controllers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"market_pulse_backend/models"
	"market_pulse_backend/scheduler"
	"market_pulse_backend/services/pricecache"
)

const (
	defaultMarketLimit = 50
	maxMarketLimit     = 250
)

// MarketReader is the read side of the price cache
type MarketReader interface {
	GetOrFallback(ctx context.Context, class models.AssetClass, limit int) pricecache.View
	Search(ctx context.Context, class models.AssetClass, query string) []models.CachedAsset
	GetSingle(ctx context.Context, class models.AssetClass, id string) *models.CachedAsset
	LastUpdate(ctx context.Context, class models.AssetClass) *time.Time
}

// StatusReporter exposes the background cycle outcomes
type StatusReporter interface {
	Status() []scheduler.CycleStatus
}

// ClientCounter reports connected realtime sessions
type ClientCounter interface {
	ClientCount() int
}

// QueueDepth reports undelivered notifications
type QueueDepth interface {
	Pending() int
}

// MarketController serves cached market data
type MarketController struct {
	cache   MarketReader
	status  StatusReporter
	clients ClientCounter
	queue   QueueDepth
}

// NewMarketController creates a new market controller. status, clients and
// queue are optional.
func NewMarketController(cache MarketReader, status StatusReporter, clients ClientCounter, queue QueueDepth) *MarketController {
	return &MarketController{cache: cache, status: status, clients: clients, queue: queue}
}

func assetClassParam(c *gin.Context) (models.AssetClass, bool) {
	class, ok := models.ParseAssetClass(c.Param("class"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_asset_class",
			"message": "asset class must be crypto or equity",
		})
	}
	return class, ok
}

// GetMarket returns the top assets of a class by market cap
// GET /api/v1/market/:class?limit=
func (mc *MarketController) GetMarket(c *gin.Context) {
	class, ok := assetClassParam(c)
	if !ok {
		return
	}

	limit := defaultMarketLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit", "message": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxMarketLimit)
	}

	c.JSON(http.StatusOK, mc.cache.GetOrFallback(c.Request.Context(), class, limit))
}

// SearchMarket filters assets of a class by name, symbol or id
// GET /api/v1/market/:class/search?q=
func (mc *MarketController) SearchMarket(c *gin.Context) {
	class, ok := assetClassParam(c)
	if !ok {
		return
	}
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_query", "message": "q is required"})
		return
	}

	results := mc.cache.Search(c.Request.Context(), class, query)
	c.JSON(http.StatusOK, gin.H{"data": results, "count": len(results)})
}

// GetAsset returns one asset by id or symbol
// GET /api/v1/market/:class/assets/:id
func (mc *MarketController) GetAsset(c *gin.Context) {
	class, ok := assetClassParam(c)
	if !ok {
		return
	}

	asset := mc.cache.GetSingle(c.Request.Context(), class, c.Param("id"))
	if asset == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "asset_not_found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": asset})
}

// GetStatus reports cache freshness and background cycle health
// GET /api/v1/market/status
func (mc *MarketController) GetStatus(c *gin.Context) {
	lastUpdate := gin.H{}
	for _, class := range models.AssetClasses() {
		lastUpdate[string(class)] = mc.cache.LastUpdate(c.Request.Context(), class)
	}

	body := gin.H{"last_update": lastUpdate}
	if mc.status != nil {
		body["cycles"] = mc.status.Status()
	}
	if mc.clients != nil {
		body["realtime_clients"] = mc.clients.ClientCount()
	}
	if mc.queue != nil {
		body["notification_queue"] = mc.queue.Pending()
	}
	c.JSON(http.StatusOK, body)
}
