package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"portfolio-backtest/internal/api/models"
	"portfolio-backtest/internal/stats"
)

// MetricsHandler describes the statistics vocabulary.
type MetricsHandler struct{}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// ListMetrics handles GET /api/v1/metrics
func (h *MetricsHandler) ListMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, models.MetricsResponse{Metrics: stats.Definitions()})
}
