package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"portfolio-backtest/internal/api/models"
	"portfolio-backtest/internal/model"
)

// StatusFor maps a failure kind to an HTTP status.
func StatusFor(kind model.Kind) int {
	switch kind {
	case model.KindInvalidPortfolio, model.KindInsufficientHistory, model.KindEmptyIntersection:
		return http.StatusUnprocessableEntity
	case model.KindUnknownSymbol, model.KindNoDataInRange:
		return http.StatusNotFound
	case model.KindDataUnavailable:
		return http.StatusBadGateway
	case model.KindBacktestTimeout:
		return http.StatusGatewayTimeout
	case model.KindCanceled:
		// nginx's "client closed request"; nobody is left to read it.
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error: models.ErrorDetail{
			Code:    "INVALID_REQUEST",
			Message: err.Error(),
		},
	})
}

// respondError writes err with the status its kind maps to. Backtest
// errors list every failing symbol in details.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	kind := model.KindOf(err)
	code := string(kind)
	if code == "" {
		code = "INTERNAL_ERROR"
	}
	detail := models.ErrorDetail{Code: code, Message: err.Error()}

	var be *model.BacktestError
	if errors.As(err, &be) && len(be.Failures) > 0 {
		failures := make([]map[string]interface{}, 0, len(be.Failures))
		for _, f := range be.Failures {
			failures = append(failures, map[string]interface{}{
				"symbol": f.Symbol,
				"kind":   string(f.Kind),
				"error":  f.Error(),
			})
		}
		detail.Details = map[string]interface{}{
			"symbols":  be.Symbols(),
			"failures": failures,
		}
	}
	c.JSON(StatusFor(kind), models.ErrorResponse{Error: detail})
}
