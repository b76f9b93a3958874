package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"market_pulse_backend/middleware"
	"market_pulse_backend/models"
	"market_pulse_backend/services/alerts"
)

// AlertController handles price alert CRUD for the authenticated owner
type AlertController struct {
	service *alerts.Service
}

// NewAlertController creates a new alert controller
func NewAlertController(service *alerts.Service) *AlertController {
	return &AlertController{service: service}
}

type createAlertRequest struct {
	AssetClass           string                       `json:"asset_class" binding:"required"`
	AssetID              string                       `json:"asset_id" binding:"required"`
	AssetName            string                       `json:"asset_name"`
	AssetSymbol          string                       `json:"asset_symbol"`
	Direction            string                       `json:"direction" binding:"required"`
	TargetPrice          decimal.Decimal              `json:"target_price"`
	NotificationChannels *models.NotificationChannels `json:"notification_channels"`
}

type updateAlertRequest struct {
	TargetPrice          *decimal.Decimal             `json:"target_price"`
	IsActive             *bool                        `json:"is_active"`
	NotificationChannels *models.NotificationChannels `json:"notification_channels"`
}

func requireOwner(c *gin.Context) (string, bool) {
	owner, ok := middleware.GetOwnerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
	return owner, ok
}

func respondAlertError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, alerts.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "message": err.Error()})
	case errors.Is(err, alerts.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "alert_not_found"})
	case errors.Is(err, alerts.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate_alert", "message": err.Error()})
	case errors.Is(err, alerts.ErrAlreadyTriggered):
		c.JSON(http.StatusConflict, gin.H{"error": "alert_triggered", "message": err.Error()})
	default:
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

// CreateAlert creates a new price alert
// POST /api/v1/alerts
func (ac *AlertController) CreateAlert(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}

	var req createAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	alert, err := ac.service.Create(c.Request.Context(), alerts.CreateInput{
		OwnerID:     owner,
		AssetClass:  req.AssetClass,
		AssetID:     req.AssetID,
		AssetName:   req.AssetName,
		AssetSymbol: req.AssetSymbol,
		Direction:   req.Direction,
		TargetPrice: req.TargetPrice,
		Channels:    req.NotificationChannels,
	})
	if err != nil {
		respondAlertError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": alert})
}

// GetAlerts lists the owner's alerts
// GET /api/v1/alerts?active=&triggered=&asset_class=&asset_id=
func (ac *AlertController) GetAlerts(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}

	var filter alerts.Filter
	for name, dst := range map[string]**bool{"active": &filter.Active, "triggered": &filter.Triggered} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_filter", "message": name + " must be true or false"})
			return
		}
		*dst = &v
	}
	if raw := c.Query("asset_class"); raw != "" {
		class, ok := models.ParseAssetClass(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_filter", "message": "asset_class must be crypto or equity"})
			return
		}
		filter.AssetClass = class
	}
	filter.AssetID = c.Query("asset_id")

	items, err := ac.service.List(c.Request.Context(), owner, filter)
	if err != nil {
		respondAlertError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items, "count": len(items)})
}

// GetAlert returns one alert
// GET /api/v1/alerts/:id
func (ac *AlertController) GetAlert(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	alert, err := ac.service.Get(c.Request.Context(), owner, c.Param("id"))
	if err != nil {
		respondAlertError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": alert})
}

// UpdateAlert retargets, pauses/resumes or changes channels of an untriggered alert
// PATCH /api/v1/alerts/:id
func (ac *AlertController) UpdateAlert(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}

	var req updateAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	alert, err := ac.service.Update(c.Request.Context(), owner, c.Param("id"), alerts.UpdateInput{
		TargetPrice: req.TargetPrice,
		IsActive:    req.IsActive,
		Channels:    req.NotificationChannels,
	})
	if err != nil {
		respondAlertError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": alert})
}

// DeleteAlert deletes one alert
// DELETE /api/v1/alerts/:id
func (ac *AlertController) DeleteAlert(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	if err := ac.service.Delete(c.Request.Context(), owner, c.Param("id")); err != nil {
		respondAlertError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteTriggeredAlerts deletes every triggered alert of the owner
// DELETE /api/v1/alerts/triggered
func (ac *AlertController) DeleteTriggeredAlerts(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	n, err := ac.service.DeleteTriggered(c.Request.Context(), owner)
	if err != nil {
		respondAlertError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}
