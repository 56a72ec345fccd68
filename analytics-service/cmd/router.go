package main

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thryec/pebbles-backend/analytics-service/internal/handler"
	"github.com/thryec/pebbles-backend/shared/middleware"
)

func newRouter(h *handler.AnalyticsHandler, jwtSecret []byte, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.LoggingMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api", middleware.AuthMiddleware(jwtSecret))
	{
		api.GET("/transactions/stats", h.GetTransactionStats)
		api.POST("/transactions/filter", h.FilterTransactions)
		api.GET("/transactions/summary/monthly", h.GetMonthlySummary)
		api.DELETE("/analytics/cache", h.PurgeCache)
	}
	return router
}
