package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/pricescout/cache"
	"github.com/use-agent/pricescout/models"
)

// Scrape returns a handler for GET /scrape?q=<query>.
//
// Flow:
//  1. Bind & validate the query string.
//  2. Cache lookup when max_age (or the server default) allows one.
//  3. Searcher.Search → outcome. Blocked and timed-out runs are still 200.
//  4. Cache store, respond.
func Scrape(s Searcher, cc *cache.Cache, defaultMaxAge time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		// ── 1. Parse request ────────────────────────────────────────
		var req models.SearchRequest
		if err := c.ShouldBindQuery(&req); err != nil {
			invalidInput(c, "query parameter q is required: "+err.Error())
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			invalidInput(c, "query parameter q must not be blank")
			return
		}

		maxAge := defaultMaxAge
		if req.MaxAge > 0 {
			maxAge = time.Duration(req.MaxAge) * time.Millisecond
		}
		cacheKey := cache.Key(req.Query)

		// ── 2. Cache lookup ─────────────────────────────────────────
		if cc != nil && maxAge > 0 {
			if cached, hit := cc.Get(cacheKey, maxAge); hit {
				cached.CacheStatus = "hit"
				cached.Timing = models.TimingInfo{TotalMs: time.Since(totalStart).Milliseconds()}
				c.JSON(http.StatusOK, cached)
				return
			}
		}

		// ── 3. Search ───────────────────────────────────────────────
		out, err := s.Search(c.Request.Context(), req.Query)
		if err != nil {
			respondError(c, err)
			return
		}

		// ── 4. Cache store ──────────────────────────────────────────
		if cc != nil && maxAge > 0 {
			cc.Set(cacheKey, out)
			out.CacheStatus = "miss"
		}

		c.JSON(http.StatusOK, out)
	}
}
