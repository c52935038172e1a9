package controllers

import (
	"net/http"

	"portfolio_backend/middleware"
	"portfolio_backend/services/notify"

	"github.com/gin-gonic/gin"
)

// WSController upgrades authenticated clients to websocket connections for
// immediate alert delivery
type WSController struct {
	hub *notify.Hub
}

// NewWSController creates a new websocket controller
func NewWSController(hub *notify.Hub) *WSController {
	return &WSController{hub: hub}
}

// Connect upgrades the request to a websocket registered for the user
// GET /api/v1/ws
func (wc *WSController) Connect(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	if err := wc.hub.HandleConnection(c.Writer, c.Request, userID); err != nil {
		// upgrade failures already wrote a response
		return
	}
}
