package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"portfolio_backend/middleware"
	"portfolio_backend/models"
	"portfolio_backend/services/alerts"
	"portfolio_backend/services/notify"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// AlertController handles alert-related requests
type AlertController struct {
	db     *gorm.DB
	alerts *alerts.AlertService
}

// NewAlertController creates a new alert controller
func NewAlertController(db *gorm.DB, notifier notify.Notifier) *AlertController {
	return &AlertController{
		db:     db,
		alerts: alerts.NewAlertService(db, notifier),
	}
}

// GetAlerts returns the authenticated user's alerts
// GET /api/v1/alerts?unread_only=true
func (ac *AlertController) GetAlerts(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	unreadOnly := c.DefaultQuery("unread_only", "false") == "true"

	userAlerts, err := ac.alerts.GetUserAlerts(userID, unreadOnly)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch alerts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  userAlerts,
		"count": len(userAlerts),
	})
}

// GetAlertStats returns alert counters for the authenticated user
// GET /api/v1/alerts/stats
func (ac *AlertController) GetAlertStats(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	stats, err := ac.alerts.GetAlertStats(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch alert stats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}

// CreateAlertRequest is the payload for manual alert creation
type CreateAlertRequest struct {
	CompanyID   uint                   `json:"company_id" binding:"required"`
	AlertType   string                 `json:"alert_type" binding:"required"`
	Severity    string                 `json:"severity" binding:"required"`
	Title       string                 `json:"title" binding:"required"`
	Description string                 `json:"description"`
	Metadata    map[string]interface{} `json:"metadata"`
}

// CreateAlert creates an alert for the authenticated user. Cooldown and
// preference suppression apply the same as for engine-triggered alerts.
// POST /api/v1/alerts
func (ac *AlertController) CreateAlert(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var req CreateAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	result, err := ac.alerts.CreateAlert(alerts.CreateAlertParams{
		UserID:      userID,
		CompanyID:   req.CompanyID,
		AlertType:   req.AlertType,
		Severity:    models.Severity(req.Severity),
		Title:       req.Title,
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	if err != nil {
		switch {
		case errors.Is(err, alerts.ErrMissingFields), errors.Is(err, alerts.ErrInvalidSeverity):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create alert"})
		}
		return
	}

	status := http.StatusCreated
	if result.Suppressed {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"data": result})
}

// MarkAsRead marks one of the user's alerts as read
// PUT /api/v1/alerts/:id/read
func (ac *AlertController) MarkAsRead(c *gin.Context) {
	ac.updateAlert(c, ac.alerts.MarkAsRead)
}

// AcknowledgeAlert acknowledges one of the user's alerts
// PUT /api/v1/alerts/:id/acknowledge
func (ac *AlertController) AcknowledgeAlert(c *gin.Context) {
	ac.updateAlert(c, ac.alerts.AcknowledgeAlert)
}

// DismissAlert deactivates one of the user's alerts
// PUT /api/v1/alerts/:id/dismiss
func (ac *AlertController) DismissAlert(c *gin.Context) {
	ac.updateAlert(c, ac.alerts.DismissAlert)
}

func (ac *AlertController) updateAlert(c *gin.Context, update func(alertID, userID uint) (*models.Alert, error)) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	alertID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid alert id"})
		return
	}

	alert, err := update(uint(alertID), userID)
	if err != nil {
		if errors.Is(err, alerts.ErrAlertNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update alert"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": alert})
}

// GetPendingAlerts returns the user's undelivered active alerts ordered by
// severity
// GET /api/v1/alerts/pending
func (ac *AlertController) GetPendingAlerts(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	pending, err := ac.alerts.GetPendingAlerts(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch pending alerts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  pending,
		"count": len(pending),
	})
}

// DeliverPending sends the user's pending alerts as one batch notification
// and marks them delivered
// POST /api/v1/alerts/deliver-pending
func (ac *AlertController) DeliverPending(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	result, err := ac.alerts.ProcessPendingAlerts(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process pending alerts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// GetDailyDigest builds the user's daily digest from the last 24 hours of
// undelivered alerts
// GET /api/v1/alerts/digest
func (ac *AlertController) GetDailyDigest(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	digest, err := ac.alerts.CreateDailyDigest(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build digest"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": digest})
}
