package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"portfolio-backtest/internal/api/models"
	"portfolio-backtest/internal/common"
	"portfolio-backtest/internal/model"
	"portfolio-backtest/internal/report"
	"portfolio-backtest/internal/store"
)

// Runner executes one backtest. *backtest.Engine implements it.
type Runner interface {
	Run(ctx context.Context, p model.Portfolio, benchmark string, startDate time.Time) (*report.Report, error)
}

// BacktestHandler handles backtest-related requests
type BacktestHandler struct {
	runner    Runner
	store     store.Store
	benchmark string
	logger    *common.Logger
}

// NewBacktestHandler creates a new backtest handler. st may be nil, in
// which case runs are not remembered.
func NewBacktestHandler(runner Runner, st store.Store, defaultBenchmark string, logger *common.Logger) *BacktestHandler {
	return &BacktestHandler{
		runner:    runner,
		store:     st,
		benchmark: defaultBenchmark,
		logger:    logger.With("backtest-handler"),
	}
}

// RunBacktest handles POST /api/v1/backtest
func (h *BacktestHandler) RunBacktest(c *gin.Context) {
	req, r, ok := h.run(c)
	if !ok {
		return
	}
	id := h.remember(c, req, r)
	c.JSON(http.StatusOK, models.NewBacktestResponse(r, id, req.Options.IncludeInstruments))
}

// DownloadReport handles POST /api/v1/backtest/report
func (h *BacktestHandler) DownloadReport(c *gin.Context) {
	req, r, ok := h.run(c)
	if !ok {
		return
	}
	doc, err := r.Document()
	if err != nil {
		respondError(c, err)
		return
	}
	h.remember(c, req, r)

	filename := fmt.Sprintf("backtest_%s_%s.csv", model.FormatDate(r.Start), model.FormatDate(r.End))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", doc)
}

// Chart handles POST /api/v1/backtest/chart
func (h *BacktestHandler) Chart(c *gin.Context) {
	_, r, ok := h.run(c)
	if !ok {
		return
	}
	png, err := report.RenderChart(r)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (h *BacktestHandler) run(c *gin.Context) (models.BacktestRequest, *report.Report, bool) {
	var req models.BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return req, nil, false
	}
	start, err := req.ParseStartDate()
	if err != nil {
		badRequest(c, fmt.Errorf("start_date must be YYYY-MM-DD: %w", err))
		return req, nil, false
	}
	benchmark := strings.TrimSpace(req.Benchmark)
	if benchmark == "" {
		benchmark = h.benchmark
	}

	r, err := h.runner.Run(c.Request.Context(), models.Portfolio(req.Holdings), benchmark, start)
	if err != nil {
		respondError(c, err)
		return req, nil, false
	}
	return req, r, true
}

// remember saves the portfolio as a recent entry. Failures are logged;
// the run itself already succeeded.
func (h *BacktestHandler) remember(c *gin.Context, req models.BacktestRequest, r *report.Report) string {
	if h.store == nil {
		return ""
	}
	e, err := h.store.Save(c.Request.Context(), store.Entry{
		Benchmark: r.Benchmark,
		StartDate: strings.TrimSpace(req.StartDate),
		Portfolio: model.Portfolio{Holdings: r.Holdings},
	})
	if err != nil {
		h.logger.Warn().Err(err).Msg("could not save recent portfolio")
		return ""
	}
	return e.ID
}
