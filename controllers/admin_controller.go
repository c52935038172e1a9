package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"portfolio_backend/scheduler"
	"portfolio_backend/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// AdminController exposes scheduler control and audit inspection to admins
type AdminController struct {
	db        *gorm.DB
	evaluator *scheduler.Evaluator
	audit     *services.AuditService
}

// NewAdminController creates a new admin controller
func NewAdminController(db *gorm.DB, evaluator *scheduler.Evaluator) *AdminController {
	return &AdminController{
		db:        db,
		evaluator: evaluator,
		audit:     services.NewAuditService(db),
	}
}

// GetSchedulerStats returns the evaluator's run counters
// GET /admin/scheduler/stats
func (ac *AdminController) GetSchedulerStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": ac.evaluator.GetStats()})
}

// RunSchedulerCycle triggers one evaluation cycle immediately
// POST /admin/scheduler/run
func (ac *AdminController) RunSchedulerCycle(c *gin.Context) {
	report, err := ac.evaluator.RunManual()
	if err != nil {
		if errors.Is(err, scheduler.ErrCycleInFlight) {
			c.JSON(http.StatusConflict, gin.H{"error": "An evaluation cycle is already running"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Evaluation cycle failed",
			"data":  report,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}

// GetRecentAuditLogs returns the newest audit log entries
// GET /admin/audit/recent?limit=100
func (ac *AdminController) GetRecentAuditLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	logs, err := ac.audit.GetRecentLogs(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch audit logs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  logs,
		"count": len(logs),
	})
}

// GetAuditStats returns action counts grouped by entity type
// GET /admin/audit/stats?days=7
func (ac *AdminController) GetAuditStats(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "7"))

	stats, err := ac.audit.GetStats(days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch audit stats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}
