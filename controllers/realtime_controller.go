package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SessionHandler attaches an upgraded websocket session to an owner
type SessionHandler interface {
	HandleWebSocket(w http.ResponseWriter, r *http.Request, ownerID string)
}

// RealtimeController upgrades authenticated clients to websocket sessions
type RealtimeController struct {
	hub SessionHandler
}

func NewRealtimeController(hub SessionHandler) *RealtimeController {
	return &RealtimeController{hub: hub}
}

// Connect opens a live session. Market topics are picked with ?topics=crypto,equity
// or later with {"action":"subscribe","topics":[...]} messages.
// GET /ws?token=
func (rc *RealtimeController) Connect(c *gin.Context) {
	owner, ok := requireOwner(c)
	if !ok {
		return
	}
	rc.hub.HandleWebSocket(c.Writer, c.Request, owner)
}
