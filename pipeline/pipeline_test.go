package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/pricescout/config"
	"github.com/use-agent/pricescout/engine"
	"github.com/use-agent/pricescout/models"
)

// fakeFetcher returns a canned escalation and records the request.
type fakeFetcher struct {
	esc *engine.Escalation
	err error

	// block waits for ctx to end before returning.
	block bool

	mu   sync.Mutex
	reqs []*engine.FetchRequest
}

func (f *fakeFetcher) Dispatch(ctx context.Context, req *engine.FetchRequest) (*engine.Escalation, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return &engine.Escalation{}, engine.CategorizeError(ctx.Err(), "search deadline reached")
	}
	return f.esc, f.err
}

func testConfig() *config.Config {
	return &config.Config{
		Fetch: config.FetchConfig{SearchTimeout: time.Second},
		Site: config.SiteConfig{
			Name:               "Micro Center",
			BaseURL:            "https://www.microcenter.com",
			SearchPath:         "/search/search_results.aspx?Ntt={query}",
			ProductMarker:      "/product/",
			Cookies:            map[string]string{"storeSelected": "101", "myStore": "true"},
			ContainerSelectors: []string{".product_wrapper", ".details"},
		},
		Extract: config.ExtractConfig{
			NoiseFloor:    10,
			ResultCap:     10,
			ScanLimit:     30,
			MinRegionText: 20,
			MaxRegionText: 1500,
		},
	}
}

func newTestPipeline(t *testing.T, f Fetcher) *Pipeline {
	t.Helper()
	p, err := New(testConfig(), f)
	require.NoError(t, err)
	return p
}

const resultsPage = `<html><head><title>rtx 4090 | Micro Center</title></head><body>
<div class="product_wrapper">
  <div class="pDescription"><a href="/product/123">NVIDIA GeForce RTX 4090 Founders Edition</a></div>
  <span class="price">$1,599.99</span>
</div>
<div class="product_wrapper">
  <div class="pDescription"><a href="/product/124">MSI RTX 4090 Suprim Liquid</a></div>
  <span class="price">$1,749.99</span>
  <span>Sold Out</span>
</div>
<div class="product_wrapper">
  <div class="pDescription"><a href="/product/125">Gigabyte RTX 4090 Gaming OC Refurbished</a></div>
  <span class="price">$1,449.00</span>
  <span>Free Shipping</span>
</div>
</body></html>`

func okEscalation(html string) *engine.Escalation {
	res := &engine.FetchResult{HTML: html, Title: "rtx 4090 | Micro Center", StatusCode: 200, Status: engine.StatusOK, EngineName: "browser"}
	return &engine.Escalation{
		Result: res,
		Attempts: []engine.Attempt{
			{Engine: "http", Status: engine.StatusChallenge, Duration: 120 * time.Millisecond, Err: models.NewScrapeError(models.ErrCodeChallenge, "challenged", nil)},
			{Engine: "browser", Status: engine.StatusOK, Duration: 2 * time.Second},
		},
	}
}

func TestPipeline_Success(t *testing.T) {
	f := &fakeFetcher{esc: okEscalation(resultsPage)}
	out, err := newTestPipeline(t, f).Search(t.Context(), "  rtx 4090 ")
	require.NoError(t, err)

	assert.Equal(t, "rtx 4090", out.Query)
	assert.Nil(t, out.Diagnostic)
	assert.Empty(t, out.Error)
	assert.Equal(t, "browser", out.EngineUsed)
	require.Len(t, out.Attempts, 2)
	assert.Equal(t, "CHALLENGE", out.Attempts[0].Status)
	assert.NotEmpty(t, out.Attempts[0].Error)

	require.Equal(t, 2, out.Count)
	require.Len(t, out.Results, 2)
	assert.Equal(t, 1449.0, out.Results[0].Price)
	assert.Equal(t, models.ConditionRefurbished, out.Results[0].Condition)
	assert.Equal(t, models.ShippingFree, out.Results[0].Shipping)
	assert.Equal(t, "https://www.microcenter.com/product/123", out.Results[1].Link)
	for _, r := range out.Results {
		assert.True(t, r.InStock)
		assert.Equal(t, "Micro Center", r.Source)
	}
}

func TestPipeline_RequestShape(t *testing.T) {
	f := &fakeFetcher{esc: okEscalation(resultsPage)}
	_, err := newTestPipeline(t, f).Search(t.Context(), "rtx 4090")
	require.NoError(t, err)

	require.Len(t, f.reqs, 1)
	req := f.reqs[0]
	assert.Equal(t, "https://www.microcenter.com/search/search_results.aspx?Ntt=rtx+4090", req.URL)
	assert.Equal(t, ".product_wrapper, .details", req.WaitSelector)
	require.Len(t, req.Cookies, 2)
	assert.Equal(t, "myStore", req.Cookies[0].Name)
	assert.Equal(t, "storeSelected", req.Cookies[1].Name)
}

func TestPipeline_Blocked(t *testing.T) {
	f := &fakeFetcher{
		esc: &engine.Escalation{
			Attempts: []engine.Attempt{
				{Engine: "http", Status: engine.StatusChallenge},
				{Engine: "browser", Status: engine.StatusChallenge},
				{Engine: "stealth", Status: engine.StatusChallenge},
			},
			Challenge: &engine.FetchResult{Title: "Just a moment...", Status: engine.StatusChallenge},
		},
		err: models.NewScrapeError(models.ErrCodeBlocked, "all 3 strategies exhausted without a usable page", nil),
	}
	out, err := newTestPipeline(t, f).Search(t.Context(), "rtx 4090")
	require.NoError(t, err)

	assert.Empty(t, out.Results)
	assert.NotNil(t, out.Results)
	assert.Equal(t, 0, out.Count)
	require.NotNil(t, out.Diagnostic)
	assert.Equal(t, models.DiagBlocked, out.Diagnostic.Kind)
	assert.Equal(t, "Just a moment...", out.Diagnostic.PageTitle)
	assert.NotEmpty(t, out.Error)
	assert.Len(t, out.Attempts, 3)
	assert.Empty(t, out.EngineUsed)
}

func TestPipeline_TimeoutDiagnostic(t *testing.T) {
	cfg := testConfig()
	cfg.Fetch.SearchTimeout = 20 * time.Millisecond
	p, err := New(cfg, &fakeFetcher{block: true})
	require.NoError(t, err)

	out, err := p.Search(t.Context(), "rtx 4090")
	require.NoError(t, err)
	require.NotNil(t, out.Diagnostic)
	assert.Equal(t, models.DiagTimeout, out.Diagnostic.Kind)
	assert.True(t, out.Diagnostic.Terminal())
}

func TestPipeline_CanceledDiagnostic(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	out, err := newTestPipeline(t, &fakeFetcher{block: true}).Search(ctx, "rtx 4090")
	require.NoError(t, err)
	assert.Equal(t, models.DiagCanceled, out.Diagnostic.Kind)
}

func TestPipeline_NoCandidates(t *testing.T) {
	esc := okEscalation(`<html><body><p>We couldn't find anything for that search.</p></body></html>`)
	out, err := newTestPipeline(t, &fakeFetcher{esc: esc}).Search(t.Context(), "zzzz")
	require.NoError(t, err)

	require.NotNil(t, out.Diagnostic)
	assert.Equal(t, models.DiagNoCandidates, out.Diagnostic.Kind)
	assert.False(t, out.Diagnostic.Terminal())
	assert.Empty(t, out.Error)
	assert.Equal(t, "rtx 4090 | Micro Center", out.Diagnostic.PageTitle)
	assert.Equal(t, "browser", out.EngineUsed)
}

func TestPipeline_CandidatesAllFiltered(t *testing.T) {
	page := `<div class="product_wrapper"><div class="pDescription"><a href="/product/1">RTX 4090</a></div><span class="price">$1,599.99</span> Out of stock</div>`
	out, err := newTestPipeline(t, &fakeFetcher{esc: okEscalation(page)}).Search(t.Context(), "rtx 4090")
	require.NoError(t, err)
	assert.Nil(t, out.Diagnostic)
	assert.Empty(t, out.Results)
}

func TestPipeline_BlankQuery(t *testing.T) {
	f := &fakeFetcher{}
	out, err := newTestPipeline(t, f).Search(t.Context(), "   ")
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Equal(t, models.ErrCodeInvalidInput, models.CodeOf(err))
	assert.Empty(t, f.reqs)
}

// panicFetcher simulates a defect below the pipeline.
type panicFetcher struct{}

func (panicFetcher) Dispatch(context.Context, *engine.FetchRequest) (*engine.Escalation, error) {
	panic("boom")
}

func TestPipeline_RecoversPanic(t *testing.T) {
	out, err := newTestPipeline(t, panicFetcher{}).Search(t.Context(), "rtx 4090")
	require.NoError(t, err)
	require.NotNil(t, out.Diagnostic)
	assert.Equal(t, models.DiagInternal, out.Diagnostic.Kind)
	assert.Contains(t, out.Error, "boom")
	assert.NotNil(t, out.Results)
}

func TestNew_InvalidSelector(t *testing.T) {
	cfg := testConfig()
	cfg.Site.ContainerSelectors = []string{"div[["}
	_, err := New(cfg, &fakeFetcher{})
	assert.Error(t, err)
}
