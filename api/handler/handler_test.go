package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/pricescout/cache"
	"github.com/use-agent/pricescout/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeSearcher returns a fixed-price outcome per query and counts calls.
type fakeSearcher struct {
	mu      sync.Mutex
	calls   map[string]int
	outcome func(query string) *models.PipelineOutcome
	err     error
}

func newFakeSearcher() *fakeSearcher {
	return &fakeSearcher{calls: make(map[string]int)}
}

func (f *fakeSearcher) Search(_ context.Context, query string) (*models.PipelineOutcome, error) {
	f.mu.Lock()
	f.calls[query]++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.outcome != nil {
		return f.outcome(query), nil
	}
	return &models.PipelineOutcome{
		Query:   query,
		Count:   1,
		Results: []models.ProductRecord{{Title: "RTX 4090", Price: 1599.99, Link: "https://www.microcenter.com/product/1", InStock: true}},
	}, nil
}

func (f *fakeSearcher) callCount(query string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[query]
}

func serve(r *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func scrapeRouter(s Searcher, cc *cache.Cache, defaultMaxAge time.Duration) *gin.Engine {
	r := gin.New()
	r.GET("/scrape", Scrape(s, cc, defaultMaxAge))
	return r
}

func TestScrape_OK(t *testing.T) {
	s := newFakeSearcher()
	w := serve(scrapeRouter(s, nil, 0), http.MethodGet, "/scrape?q=rtx+4090", "")

	require.Equal(t, http.StatusOK, w.Code)
	out := decode[models.PipelineOutcome](t, w)
	assert.Equal(t, "rtx 4090", out.Query)
	assert.Equal(t, 1, out.Count)
	assert.Empty(t, out.CacheStatus)
}

func TestScrape_MissingOrBlankQuery(t *testing.T) {
	s := newFakeSearcher()
	r := scrapeRouter(s, nil, 0)
	for _, target := range []string{"/scrape", "/scrape?q=", "/scrape?q=%20%20"} {
		w := serve(r, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
		body := decode[models.ErrorResponse](t, w)
		assert.Equal(t, models.ErrCodeInvalidInput, body.Error.Code, target)
	}
	assert.Empty(t, s.calls)
}

func TestScrape_BlockedIsStill200(t *testing.T) {
	s := newFakeSearcher()
	s.outcome = func(query string) *models.PipelineOutcome {
		return &models.PipelineOutcome{
			Query:      query,
			Results:    []models.ProductRecord{},
			Error:      "all 3 strategies exhausted",
			Diagnostic: &models.Diagnostic{Kind: models.DiagBlocked, PageTitle: "Just a moment..."},
		}
	}
	w := serve(scrapeRouter(s, nil, 0), http.MethodGet, "/scrape?q=rtx", "")

	require.Equal(t, http.StatusOK, w.Code)
	out := decode[models.PipelineOutcome](t, w)
	assert.Equal(t, models.DiagBlocked, out.Diagnostic.Kind)
	assert.NotNil(t, out.Results)
	assert.Contains(t, w.Body.String(), `"results":[]`)
}

func TestScrape_SearchErrorMapped(t *testing.T) {
	s := newFakeSearcher()
	s.err = models.NewScrapeError(models.ErrCodeInvalidInput, "query must not be empty", nil)
	w := serve(scrapeRouter(s, nil, 0), http.MethodGet, "/scrape?q=x", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScrape_CacheHitAndMiss(t *testing.T) {
	s := newFakeSearcher()
	cc := cache.New(10)
	defer cc.Stop()
	r := scrapeRouter(s, cc, 0)

	first := serve(r, http.MethodGet, "/scrape?q=rtx+4090&max_age=60000", "")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "miss", decode[models.PipelineOutcome](t, first).CacheStatus)

	second := serve(r, http.MethodGet, "/scrape?q=RTX++4090&max_age=60000", "")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "hit", decode[models.PipelineOutcome](t, second).CacheStatus)
	assert.Equal(t, 1, s.callCount("rtx 4090"))

	// No max_age and no server default: the cache is bypassed.
	third := serve(r, http.MethodGet, "/scrape?q=rtx+4090", "")
	assert.Empty(t, decode[models.PipelineOutcome](t, third).CacheStatus)
	assert.Equal(t, 2, s.callCount("rtx 4090"))
}

func TestScrape_DefaultMaxAge(t *testing.T) {
	s := newFakeSearcher()
	cc := cache.New(10)
	defer cc.Stop()
	r := scrapeRouter(s, cc, time.Minute)

	serve(r, http.MethodGet, "/scrape?q=ssd", "")
	w := serve(r, http.MethodGet, "/scrape?q=ssd", "")
	assert.Equal(t, "hit", decode[models.PipelineOutcome](t, w).CacheStatus)
	assert.Equal(t, 1, s.callCount("ssd"))
}

type fixedStats models.PoolStats

func (f fixedStats) Stats() models.PoolStats { return models.PoolStats(f) }

func TestHealth(t *testing.T) {
	r := gin.New()
	r.GET("/health", Health(time.Now(), fixedStats{MaxPages: 4, ActivePages: 1}, fixedStats{MaxPages: 4, ActivePages: 0}))
	w := serve(r, http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, w.Code)
	body := decode[models.HealthResponse](t, w)
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, Version, body.Version)
	assert.Equal(t, models.PoolStats{MaxPages: 8, ActivePages: 1}, body.PoolStats)
}

func TestHealth_Degraded(t *testing.T) {
	r := gin.New()
	r.GET("/health", Health(time.Now(), fixedStats{MaxPages: 4, ActivePages: 4}))
	body := decode[models.HealthResponse](t, serve(r, http.MethodGet, "/health", ""))
	assert.Equal(t, "degraded", body.Status)
}

func TestRoot(t *testing.T) {
	r := gin.New()
	r.GET("/", Root("Micro Center"))
	body := decode[models.RootResponse](t, serve(r, http.MethodGet, "/", ""))
	assert.Equal(t, "Micro Center Scraper API", body.Message)
	assert.Contains(t, body.Endpoints, "scrape")
}

func TestMapErrorToStatus(t *testing.T) {
	tests := map[string]int{
		models.ErrCodeInvalidInput: http.StatusBadRequest,
		models.ErrCodeUnauthorized: http.StatusUnauthorized,
		models.ErrCodeRateLimited:  http.StatusTooManyRequests,
		models.ErrCodeInternal:     http.StatusInternalServerError,
		models.ErrCodeBlocked:      http.StatusInternalServerError,
	}
	for code, want := range tests {
		assert.Equal(t, want, mapErrorToStatus(models.NewScrapeError(code, "x", nil)), code)
	}
}
