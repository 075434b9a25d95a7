package scraper

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/pricescout/engine"
	"github.com/use-agent/pricescout/models"
	"github.com/ysmood/gson"
)

// webdriverMask hides the automation flag from page scripts on the
// scripted profile. The stealth profile uses stealth.JS instead.
const webdriverMask = `Object.defineProperty(navigator, 'webdriver', { get: () => undefined });`

// statusCodeJS reads the main document's HTTP status without CDP network
// listeners, which conflict with request hijacking.
const statusCodeJS = `() => {
	try {
		const entries = performance.getEntriesByType("navigation");
		if (entries.length > 0) return entries[0].responseStatus || 0;
	} catch(e) {}
	return 0;
}`

// Render loads req.URL in a fresh incognito session and returns the
// rendered document. It satisfies engine.RodFetchFunc; classification of
// the result (challenge, HTTP error) is left to engine.RodEngine.
//
// Lifecycle:
//
//  1. Acquire slot         – bounded by MaxPages, abandoned if ctx ends
//  2. Incognito + page     – per-run cookies and storage
//  3. DEFER: teardown      – close page and dispose context on every path
//  4. Fingerprint          – mask/stealth script, viewport, user agent
//  5. Headers + cookies    – extra headers via CDP, cookies seeded per run
//  6. Hijack mount         – block images/fonts/media + ad hosts
//  7. Navigate             – bound to ctx
//  8. Wait                 – product container selector or settle delay
//  9. Scroll               – trigger lazy-loaded listings
//  10. Extract             – HTML, title, final URL, status code
//
// Steps 4-6 must precede step 7: scripts and interception only apply to
// navigations that start after they are installed. Step 3 uses the
// original page reference (without request context), so teardown
// succeeds even if ctx has expired.
func (b *Browser) Render(ctx context.Context, req *engine.FetchRequest) (*engine.FetchResult, error) {
	// ── 1. Acquire slot ───────────────────────────────────────────────
	select {
	case b.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, engine.CategorizeError(ctx.Err(), b.profile.Name+": no free browser session")
	}
	defer func() { <-b.slots }()

	b.activePages.Add(1)
	defer b.activePages.Add(-1)

	// ── 2. Incognito context + page ───────────────────────────────────
	incognito, err := b.browser.Incognito()
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to create incognito context", err)
	}
	defer func() {
		if closeErr := incognito.Close(); closeErr != nil {
			slog.Warn("teardown: failed to dispose incognito context", "profile", b.profile.Name, "error", closeErr)
		}
	}()

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to open page", err)
	}

	// ── 3. Teardown ───────────────────────────────────────────────────
	defer func() {
		if closeErr := page.Close(); closeErr != nil {
			slog.Warn("teardown: failed to close page", "profile", b.profile.Name, "error", closeErr)
		}
	}()

	// ── 4. Fingerprint ────────────────────────────────────────────────
	mask := webdriverMask
	if b.profile.Stealth {
		mask = stealth.JS
	}
	if _, evalErr := page.EvalOnNewDocument(mask); evalErr != nil {
		slog.Warn("fingerprint script injection failed, proceeding without it",
			"profile", b.profile.Name,
			"error", evalErr,
		)
	}
	if vpErr := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             b.browserCfg.ViewportWidth,
		Height:            b.browserCfg.ViewportHeight,
		DeviceScaleFactor: 1,
	}); vpErr != nil {
		slog.Debug("viewport override failed", "profile", b.profile.Name, "error", vpErr)
	}
	if b.fetchCfg.UserAgent != "" {
		if uaErr := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      b.fetchCfg.UserAgent,
			AcceptLanguage: b.fetchCfg.AcceptLanguage,
		}); uaErr != nil {
			slog.Debug("user agent override failed", "profile", b.profile.Name, "error", uaErr)
		}
	}

	// ── 5. Extra headers + cookies ────────────────────────────────────
	if len(req.Headers) > 0 {
		if hdrErr := (proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(req.Headers),
		}).Call(page); hdrErr != nil {
			slog.Debug("extra headers override failed", "profile", b.profile.Name, "error", hdrErr)
		}
	}
	if cookies := cookieParams(req); len(cookies) > 0 {
		if cookieErr := page.SetCookies(cookies); cookieErr != nil {
			slog.Warn("failed to seed cookies", "profile", b.profile.Name, "error", cookieErr)
		}
	}

	// ── 6. Mount hijack router ────────────────────────────────────────
	router := mountBlocker(page, b.blocking)
	if router != nil {
		defer func() { _ = router.Stop() }()
	}

	// ── 7. Navigate ───────────────────────────────────────────────────
	p := page.Context(ctx)
	if navErr := p.Navigate(req.URL); navErr != nil {
		return nil, engine.CategorizeError(navErr, b.profile.Name+": navigation failed")
	}

	// ── 8. Wait for product containers or settle delay ────────────────
	if waitErr := b.waitForListings(ctx, p, req.WaitSelector); waitErr != nil {
		return nil, engine.CategorizeError(waitErr, b.profile.Name+": render wait abandoned")
	}

	// ── 9. Scroll ─────────────────────────────────────────────────────
	if scrollErr := scrollViewports(ctx, p, b.fetchCfg.ScrollSteps); scrollErr != nil {
		slog.Debug("scroll sequence stopped early", "profile", b.profile.Name, "error", scrollErr)
	}

	// ── 10. Extract ───────────────────────────────────────────────────
	rawHTML, htmlErr := p.HTML()
	if htmlErr != nil {
		return nil, engine.CategorizeError(htmlErr, b.profile.Name+": failed to read page HTML")
	}

	var statusCode int
	if res, evalErr := p.Eval(statusCodeJS); evalErr == nil {
		statusCode = res.Value.Int()
	}
	title := evalStringOrEmpty(p, `() => document.title`)
	finalURL := evalStringOrEmpty(p, `() => window.location.href`)
	if finalURL == "" {
		finalURL = req.URL
	}

	return &engine.FetchResult{
		HTML:       rawHTML,
		Title:      title,
		StatusCode: statusCode,
		FinalURL:   finalURL,
		EngineName: b.profile.Name,
	}, nil
}

// waitForListings returns once selector matches or the settle delay
// elapses, whichever comes first. It only fails when ctx itself ends.
func (b *Browser) waitForListings(ctx context.Context, p *rod.Page, selector string) error {
	settle := b.fetchCfg.SettleDelay
	if settle <= 0 {
		return ctx.Err()
	}
	if selector == "" {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(settle):
			return nil
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, settle)
	defer cancel()
	if _, err := p.Context(waitCtx).Element(selector); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Debug("no product container before settle delay, reading DOM as-is",
			"profile", b.profile.Name,
			"settle", settle,
		)
	}
	return nil
}

// cookieParams converts request cookies into CDP cookie params, defaulting
// the domain to the request host and the path to "/".
func cookieParams(req *engine.FetchRequest) []*proto.NetworkCookieParam {
	if len(req.Cookies) == 0 {
		return nil
	}
	host := ""
	if u, err := url.Parse(req.URL); err == nil {
		host = u.Hostname()
	}
	params := make([]*proto.NetworkCookieParam, 0, len(req.Cookies))
	for _, c := range req.Cookies {
		domain := c.Domain
		if domain == "" {
			domain = host
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		params = append(params, &proto.NetworkCookieParam{
			Name:   c.Name,
			Value:  c.Value,
			Domain: domain,
			Path:   path,
		})
	}
	return params
}

// evalStringOrEmpty evaluates a JS expression and returns the string result,
// swallowing any errors (useful for optional metadata extraction).
func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
