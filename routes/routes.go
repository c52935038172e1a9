package routes

import (
	"time"

	"portfolio_backend/controllers"
	"portfolio_backend/middleware"
	"portfolio_backend/scheduler"
	"portfolio_backend/services/notify"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, db *gorm.DB, hub *notify.Hub, evaluator *scheduler.Evaluator) {
	// Initialize controllers
	alertController := controllers.NewAlertController(db, hub)
	evaluationController := controllers.NewEvaluationController(db, hub)
	adminController := controllers.NewAdminController(db, evaluator)
	wsController := controllers.NewWSController(hub)

	// Write endpoints share one rate limit bucket per client IP
	writeLimiter := middleware.NewRateLimiter(60, time.Minute)

	// API v1 group, all endpoints require authentication
	api := router.Group("/api/v1")
	api.Use(middleware.JWTAuthMiddleware())
	{
		// Alert routes
		alertRoutes := api.Group("/alerts")
		{
			alertRoutes.GET("", alertController.GetAlerts)
			alertRoutes.GET("/stats", alertController.GetAlertStats)
			alertRoutes.GET("/pending", alertController.GetPendingAlerts)
			alertRoutes.GET("/digest", alertController.GetDailyDigest)
			alertRoutes.POST("", middleware.RateLimitMiddleware(writeLimiter), alertController.CreateAlert)
			alertRoutes.POST("/deliver-pending", middleware.RateLimitMiddleware(writeLimiter), alertController.DeliverPending)
			alertRoutes.PUT("/:id/read", alertController.MarkAsRead)
			alertRoutes.PUT("/:id/acknowledge", alertController.AcknowledgeAlert)
			alertRoutes.PUT("/:id/dismiss", alertController.DismissAlert)
		}

		// Evaluation routes
		evaluationRoutes := api.Group("/evaluations")
		{
			evaluationRoutes.GET("/:company_id", evaluationController.GetHistory)
			evaluationRoutes.POST("/run", middleware.RateLimitMiddleware(writeLimiter), evaluationController.EvaluatePortfolio)
		}

		// Websocket endpoint for immediate alert delivery
		api.GET("/ws", wsController.Connect)
	}

	// Admin group requires the admin role on top of authentication
	adminRoutes := router.Group("/admin")
	adminRoutes.Use(middleware.JWTAuthMiddleware(), middleware.AdminOnlyMiddleware())
	{
		adminRoutes.GET("/scheduler/stats", adminController.GetSchedulerStats)
		adminRoutes.POST("/scheduler/run", adminController.RunSchedulerCycle)
		adminRoutes.GET("/audit/recent", adminController.GetRecentAuditLogs)
		adminRoutes.GET("/audit/stats", adminController.GetAuditStats)
	}
}
