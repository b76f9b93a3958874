package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"market_pulse_backend/services/notify"
)

// NotificationController serves the owner's in-app inbox
type NotificationController struct {
	store notify.Store
}

func NewNotificationController(store notify.Store) *NotificationController {
	return &NotificationController{store: store}
}

// GetNotifications lists notifications, newest first
// GET /api/v1/notifications?unread=&limit=
func (nc *NotificationController) GetNotifications(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}

	unreadOnly, _ := strconv.ParseBool(c.Query("unread"))
	limit, _ := strconv.Atoi(c.Query("limit"))

	ctx := c.Request.Context()
	items, err := nc.store.List(ctx, owner, notify.ListOptions{UnreadOnly: unreadOnly, Limit: limit})
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch notifications"})
		return
	}
	unread, err := nc.store.UnreadCount(ctx, owner)
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count notifications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items, "unread": unread})
}

// MarkRead marks one notification as read
// POST /api/v1/notifications/:id/read
func (nc *NotificationController) MarkRead(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	err := nc.store.MarkRead(c.Request.Context(), owner, c.Param("id"))
	if errors.Is(err, notify.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "notification_not_found"})
		return
	}
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update notification"})
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkAllRead marks every notification of the owner as read
// POST /api/v1/notifications/read-all
func (nc *NotificationController) MarkAllRead(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	n, err := nc.store.MarkAllRead(c.Request.Context(), owner)
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update notifications"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}
