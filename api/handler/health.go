package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/pricescout/models"
)

// Version is reported by GET /health.
const Version = "0.1.0"

// Health returns a handler for GET /health.
//
// Reports session usage summed over the browser profiles and degrades
// status when more than 80% of sessions are active.
func Health(startTime time.Time, pools ...StatsProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		var stats models.PoolStats
		for _, p := range pools {
			s := p.Stats()
			stats.MaxPages += s.MaxPages
			stats.ActivePages += s.ActivePages
		}

		status := "healthy"
		if stats.MaxPages > 0 && stats.ActivePages > int(float64(stats.MaxPages)*0.8) {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:    status,
			Uptime:    time.Since(startTime).Round(time.Second).String(),
			PoolStats: stats,
			Version:   Version,
		})
	}
}

// Root returns a handler for GET / describing the API.
func Root(siteName string) gin.HandlerFunc {
	body := models.RootResponse{
		Message: siteName + " Scraper API",
		Endpoints: map[string]string{
			"scrape": "GET /scrape?q=search+query",
			"health": "GET /health",
			"batch":  "POST /batch/scrape",
		},
	}
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, body)
	}
}
