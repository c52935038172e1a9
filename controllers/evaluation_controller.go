package controllers

import (
	"net/http"
	"strconv"

	"portfolio_backend/middleware"
	"portfolio_backend/services/alerts"
	"portfolio_backend/services/evaluation"
	"portfolio_backend/services/notify"
	"portfolio_backend/services/portfolio"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// EvaluationController exposes the condition evaluation engine over HTTP
type EvaluationController struct {
	db       *gorm.DB
	engine   *evaluation.Service
	holdings *portfolio.Source
}

// NewEvaluationController creates a new evaluation controller
func NewEvaluationController(db *gorm.DB, notifier notify.Notifier) *EvaluationController {
	return &EvaluationController{
		db:       db,
		engine:   evaluation.NewService(db, alerts.NewAlertService(db, notifier)),
		holdings: portfolio.NewSource(db),
	}
}

// GetHistory returns recent evaluations for a company owned by the user
// GET /api/v1/evaluations/:company_id?limit=50
func (ec *EvaluationController) GetHistory(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	companyID, err := strconv.ParseUint(c.Param("company_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid company id"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	history, err := ec.engine.History(userID, uint(companyID), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch evaluation history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  history,
		"count": len(history),
	})
}

// EvaluatePortfolio runs the metric conditions for the user's holdings on
// demand, outside the scheduled cycle
// POST /api/v1/evaluations/run
func (ec *EvaluationController) EvaluatePortfolio(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	report, err := ec.engine.EvaluateUserPortfolio(userID, ec.holdings)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Portfolio evaluation failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}
