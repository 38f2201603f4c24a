// Package api wires the HTTP surface of the backtester.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"portfolio-backtest/internal/api/handlers"
	"portfolio-backtest/internal/api/middleware"
	"portfolio-backtest/internal/common"
	"portfolio-backtest/internal/data"
	"portfolio-backtest/internal/store"
)

// Deps are the collaborators the routes need.
type Deps struct {
	Runner         handlers.Runner
	Store          store.Store
	Names          data.NameResolver // optional
	Benchmark      string
	AllowedOrigins []string
	Logger         *common.Logger
}

// NewRouter builds the gin engine with middleware and routes.
func NewRouter(d Deps) *gin.Engine {
	router := gin.New()
	router.Use(middleware.ErrorHandler(d.Logger))
	router.Use(middleware.CORS(d.AllowedOrigins))
	router.Use(middleware.Logger(d.Logger))

	backtestHandler := handlers.NewBacktestHandler(d.Runner, d.Store, d.Benchmark, d.Logger)
	portfolioHandler := handlers.NewPortfolioHandler(d.Store, d.Names, d.Logger)
	metricsHandler := handlers.NewMetricsHandler()

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	{
		api.POST("/backtest", backtestHandler.RunBacktest)
		api.POST("/backtest/report", backtestHandler.DownloadReport)
		api.POST("/backtest/chart", backtestHandler.Chart)

		api.POST("/portfolio/export", portfolioHandler.Export)
		api.POST("/portfolio/import", portfolioHandler.Import)
		api.GET("/portfolio/sample", portfolioHandler.Sample)

		api.GET("/portfolios", portfolioHandler.List)
		api.GET("/portfolios/:id", portfolioHandler.Get)

		api.GET("/metrics", metricsHandler.ListMetrics)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "NOT_FOUND", "message": "Not found"}})
	})
	return router
}
