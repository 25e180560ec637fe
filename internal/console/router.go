package console

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/switchdesk-settlements-console/internal/console/handler"
	"github.com/switchdesk-settlements-console/internal/console/middleware"
)

// setupRouter configures API routes and middleware for the console
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	reportHandler *handler.ReportHandler,
	finalizeHandler *handler.FinalizeHandler,
	settlementHandler *handler.SettlementHandler,
) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CorrelationID())

	// API v1 endpoints
	v1 := r.Group("/api/v1")
	{
		// Settlement operations
		settlements := v1.Group("/settlements")
		{
			settlements.GET("", settlementHandler.List)
			settlements.POST("", settlementHandler.Create)
			settlements.GET("/:id", settlementHandler.GetByID)
			settlements.POST("/:id/report", reportHandler.Upload)
			settlements.GET("/:id/reports", reportHandler.History)
			settlements.POST("/:id/finalize", finalizeHandler.Finalize)
			settlements.GET("/:id/attempts", finalizeHandler.Attempts)
		}

		// Settlement window operations
		windows := v1.Group("/windows")
		{
			windows.GET("", settlementHandler.ListWindows)
			windows.POST("/:id/close", settlementHandler.CloseWindow)
		}
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
}
