package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/pricescout/config"
	"github.com/use-agent/pricescout/engine"
	"github.com/use-agent/pricescout/extract"
	"github.com/use-agent/pricescout/models"
)

// Fetcher obtains the first usable search-results page. *engine.Dispatcher
// implements it.
type Fetcher interface {
	Dispatch(ctx context.Context, req *engine.FetchRequest) (*engine.Escalation, error)
}

// Pipeline runs one search: fetch the results page, locate candidates,
// extract and filter records, assemble the outcome.
// It holds only read-only state and is safe for concurrent use.
type Pipeline struct {
	fetcher       Fetcher
	locator       *extract.Locator
	extractor     *extract.Extractor
	filter        *extract.Filter
	site          config.SiteConfig
	searchTimeout time.Duration
	resultCap     int
	waitSelector  string
	cookies       []http.Cookie
}

// New builds a Pipeline from cfg.
func New(cfg *config.Config, fetcher Fetcher) (*Pipeline, error) {
	locator, err := extract.NewLocator(cfg.Site, cfg.Extract)
	if err != nil {
		return nil, err
	}
	extractor, err := extract.NewExtractor(cfg.Site, cfg.Extract)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		fetcher:       fetcher,
		locator:       locator,
		extractor:     extractor,
		filter:        extract.NewFilter(cfg.Extract),
		site:          cfg.Site,
		searchTimeout: cfg.Fetch.SearchTimeout,
		resultCap:     cfg.Extract.ResultCap,
		waitSelector:  strings.Join(cfg.Site.ContainerSelectors, ", "),
		cookies:       siteCookies(cfg.Site.Cookies),
	}, nil
}

// SearchURL returns the results page URL for query.
func (p *Pipeline) SearchURL(query string) string {
	return p.site.BaseURL + strings.ReplaceAll(p.site.SearchPath, "{query}", url.QueryEscape(query))
}

// Search runs the pipeline for query. Blocking, timeouts and empty pages
// are reported in the outcome's diagnostic; the error is non-nil only for
// a blank query.
func (p *Pipeline) Search(ctx context.Context, query string) (out *models.PipelineOutcome, err error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "query must not be empty", nil)
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("pipeline panic recovered", "query", query, "panic", r, "stack", string(debug.Stack()))
			out = Assemble(query, nil, p.resultCap)
			out.Diagnostic = &models.Diagnostic{
				Kind:    models.DiagInternal,
				Message: fmt.Sprintf("internal error: %v", r),
			}
			out.Error = out.Diagnostic.Message
			out.Timing.TotalMs = time.Since(start).Milliseconds()
			err = nil
		}
	}()

	if p.searchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.searchTimeout)
		defer cancel()
	}

	// ── 1. Fetch ────────────────────────────────────────────────────
	fetchStart := time.Now()
	esc, fetchErr := p.fetcher.Dispatch(ctx, &engine.FetchRequest{
		URL:          p.SearchURL(query),
		Cookies:      p.cookies,
		WaitSelector: p.waitSelector,
	})
	fetchMs := time.Since(fetchStart).Milliseconds()
	if esc == nil {
		esc = &engine.Escalation{}
	}

	if fetchErr != nil || esc.Result == nil {
		out = Assemble(query, nil, p.resultCap)
		out.Diagnostic = fetchDiagnostic(fetchErr, esc)
		out.Error = out.Diagnostic.Message
		out.Attempts = toAttempts(esc.Attempts)
		out.Timing = models.TimingInfo{TotalMs: time.Since(start).Milliseconds(), FetchMs: fetchMs}
		slog.Warn("search ended without a usable page",
			"query", query,
			"kind", out.Diagnostic.Kind,
			"attempts", len(esc.Attempts),
		)
		return out, nil
	}

	// ── 2. Locate → extract → filter → assemble ─────────────────────
	extractStart := time.Now()
	out, candidates := p.extractRecords(query, esc.Result)
	out.EngineUsed = esc.Result.EngineName
	out.Attempts = toAttempts(esc.Attempts)
	if candidates == 0 {
		out.Diagnostic = &models.Diagnostic{
			Kind:      models.DiagNoCandidates,
			Message:   "no product listings found on the results page",
			PageTitle: esc.Result.Title,
		}
	}
	out.Timing = models.TimingInfo{
		TotalMs:   time.Since(start).Milliseconds(),
		FetchMs:   fetchMs,
		ExtractMs: time.Since(extractStart).Milliseconds(),
	}

	slog.Info("search complete",
		"query", query,
		"engine", out.EngineUsed,
		"candidates", candidates,
		"count", out.Count,
		"total_ms", out.Timing.TotalMs,
	)
	return out, nil
}

// extractRecords returns the assembled outcome and the number of candidate
// regions the page produced.
func (p *Pipeline) extractRecords(query string, page *engine.FetchResult) (*models.PipelineOutcome, int) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		slog.Warn("results page could not be parsed", "query", query, "error", err)
		return Assemble(query, nil, p.resultCap), 0
	}

	regions := p.locator.Locate(doc)
	filter := p.filter.ForQuery(query)
	records := make([]models.ProductRecord, 0, len(regions))
	for _, r := range regions {
		rec, err := p.extractor.Extract(r)
		if err != nil {
			if errors.Is(err, extract.ErrIncomplete) {
				slog.Debug("candidate dropped", "query", query, "pass", r.Pass(), "reason", "incomplete")
			} else {
				slog.Warn("candidate skipped", "query", query, "pass", r.Pass(), "error", err)
			}
			continue
		}
		if ok, reason := filter.Admit(r, rec); !ok {
			slog.Debug("candidate dropped", "query", query, "pass", r.Pass(), "reason", reason, "title", rec.Title)
			continue
		}
		rec.InStock = true
		records = append(records, rec)
	}
	return Assemble(query, records, p.resultCap), len(regions)
}

// fetchDiagnostic classifies an exhausted or abandoned escalation.
func fetchDiagnostic(err error, esc *engine.Escalation) *models.Diagnostic {
	d := &models.Diagnostic{Kind: models.DiagBlocked, Message: "all fetch strategies were blocked or failed"}
	if err != nil {
		d.Message = err.Error()
		switch models.CodeOf(err) {
		case models.ErrCodeTimeout:
			d.Kind = models.DiagTimeout
		case models.ErrCodeCanceled:
			d.Kind = models.DiagCanceled
		}
	}
	if esc.Challenge != nil {
		d.PageTitle = esc.Challenge.Title
	}
	return d
}

func toAttempts(attempts []engine.Attempt) []models.Attempt {
	out := make([]models.Attempt, 0, len(attempts))
	for _, a := range attempts {
		ma := models.Attempt{
			Engine:     a.Engine,
			Status:     string(a.Status),
			DurationMs: a.Duration.Milliseconds(),
		}
		if a.Err != nil {
			ma.Error = a.Err.Error()
		}
		out = append(out, ma)
	}
	return out
}

// siteCookies converts the configured cookies into a name-sorted slice.
func siteCookies(m map[string]string) []http.Cookie {
	if len(m) == 0 {
		return nil
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	cookies := make([]http.Cookie, 0, len(names))
	for _, name := range names {
		cookies = append(cookies, http.Cookie{Name: name, Value: m[name]})
	}
	return cookies
}
