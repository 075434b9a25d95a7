package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/pricescout/models"
)

// Searcher runs one search. *pipeline.Pipeline implements it.
type Searcher interface {
	Search(ctx context.Context, query string) (*models.PipelineOutcome, error)
}

// StatsProvider reports rendering session usage. *scraper.Browser
// implements it.
type StatsProvider interface {
	Stats() models.PoolStats
}

// respondError maps a ScrapeError to the correct HTTP status code and writes
// a structured JSON error response.
func respondError(c *gin.Context, err error) {
	var scrapeErr *models.ScrapeError
	if !errors.As(err, &scrapeErr) {
		scrapeErr = models.NewScrapeError(models.ErrCodeInternal, err.Error(), err)
	}
	c.JSON(mapErrorToStatus(scrapeErr), models.ErrorResponse{Error: scrapeErr.ToDetail()})
}

// invalidInput writes a 400 with the given message.
func invalidInput(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: &models.ErrorDetail{
		Code:    models.ErrCodeInvalidInput,
		Message: msg,
	}})
}

// mapErrorToStatus translates error codes to HTTP status codes. Blocking
// and timeouts never reach here: they are 200 outcomes with a diagnostic.
func mapErrorToStatus(e *models.ScrapeError) int {
	switch e.Code {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	default:
		return http.StatusInternalServerError // 500
	}
}
