package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"portfolio-backtest/internal/api/models"
	"portfolio-backtest/internal/common"
	"portfolio-backtest/internal/data"
	"portfolio-backtest/internal/model"
	"portfolio-backtest/internal/report"
	"portfolio-backtest/internal/store"
)

// maxUpload bounds an imported weights file.
const maxUpload = 1 << 20

// PortfolioHandler serves weights import/export and recent portfolios.
type PortfolioHandler struct {
	store  store.Store
	names  data.NameResolver
	logger *common.Logger
}

// NewPortfolioHandler creates a portfolio handler. names may be nil, in
// which case exported company names are whatever the client sent. st may
// be nil, in which case no portfolios are remembered.
func NewPortfolioHandler(st store.Store, names data.NameResolver, logger *common.Logger) *PortfolioHandler {
	return &PortfolioHandler{store: st, names: names, logger: logger.With("portfolio-handler")}
}

// Export handles POST /api/v1/portfolio/export
func (h *PortfolioHandler) Export(c *gin.Context) {
	var req models.PortfolioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p := models.Portfolio(req.Holdings).Normalized()
	h.resolveNames(c.Request.Context(), &p)

	doc, err := report.WeightsDocument(p)
	if err != nil {
		respondError(c, err)
		return
	}
	filename := fmt.Sprintf("portfolio_%s.csv", time.Now().UTC().Format("20060102_150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", doc)
}

// Import handles POST /api/v1/portfolio/import. The weights file is read
// from a multipart "file" field or from the raw body.
func (h *PortfolioHandler) Import(c *gin.Context) {
	var body io.Reader = io.LimitReader(c.Request.Body, maxUpload)
	if fh, err := c.FormFile("file"); err == nil {
		f, err := fh.Open()
		if err != nil {
			badRequest(c, err)
			return
		}
		defer f.Close()
		body = io.LimitReader(f, maxUpload)
	}

	p, err := report.ParseWeights(body)
	if err != nil {
		respondError(c, err)
		return
	}
	resp := models.ImportResponse{Holdings: p.Holdings, TotalWeight: p.TotalWeight()}
	if math.Abs(resp.TotalWeight-1) > model.WeightTolerance {
		resp.Warning = fmt.Sprintf("total weight is %.2f%%, not 100%%", resp.TotalWeight*100)
	}
	c.JSON(http.StatusOK, resp)
}

// Sample handles GET /api/v1/portfolio/sample
func (h *PortfolioHandler) Sample(c *gin.Context) {
	doc, err := report.WeightsDocument(report.SampleWeights())
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="portfolio_template.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", doc)
}

// List handles GET /api/v1/portfolios
func (h *PortfolioHandler) List(c *gin.Context) {
	var entries []store.Entry
	if h.store != nil {
		var err error
		if entries, err = h.store.Recent(c.Request.Context()); err != nil {
			respondError(c, err)
			return
		}
	}
	out := make([]models.PortfolioSummary, 0, len(entries))
	for _, e := range entries {
		out = append(out, models.NewPortfolioSummary(e))
	}
	c.JSON(http.StatusOK, gin.H{"portfolios": out})
}

// Get handles GET /api/v1/portfolios/:id
func (h *PortfolioHandler) Get(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error: models.ErrorDetail{Code: "NOT_FOUND", Message: store.ErrNotFound.Error()},
		})
		return
	}
	e, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error: models.ErrorDetail{Code: "NOT_FOUND", Message: err.Error()},
		})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewPortfolioSummary(e))
}

// resolveNames fills blank company names. Lookups are best effort.
func (h *PortfolioHandler) resolveNames(ctx context.Context, p *model.Portfolio) {
	if h.names == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	for i := range p.Holdings {
		if p.Holdings[i].Name != "" || p.Holdings[i].Symbol == "" {
			continue
		}
		name, err := h.names.CompanyName(ctx, p.Holdings[i].Symbol)
		if err != nil {
			h.logger.Debug().Err(err).Str("symbol", p.Holdings[i].Symbol).Msg("company name lookup failed")
			continue
		}
		p.Holdings[i].Name = name
	}
}
