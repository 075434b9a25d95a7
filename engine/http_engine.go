package engine

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	tls "github.com/refraction-networking/utls"
	"github.com/use-agent/pricescout/models"
	"golang.org/x/net/html"
)

// HTTPEngine is the cheapest strategy: a plain GET with a browser-like
// header set and Chrome TLS fingerprint. No scripts are executed.
type HTTPEngine struct {
	transport      *http.Transport
	policy         RetryPolicy
	detector       *ChallengeDetector
	userAgent      string
	acceptLanguage string
}

// HTTPEngineConfig configures NewHTTPEngine.
type HTTPEngineConfig struct {
	Policy         RetryPolicy
	Detector       *ChallengeDetector
	UserAgent      string
	AcceptLanguage string

	// Proxy is an optional http(s) proxy URL.
	Proxy string
}

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to http/1.1
// only. Computed once at init time and reused for every connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	// Go's http.Transport cannot speak h2 over a utls connection, so the
	// server must never be offered it.
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// maxBody caps how much of a response is read.
const maxBody = 10 << 20

// NewHTTPEngine creates an HTTPEngine with a Chrome-like TLS fingerprint.
func NewHTTPEngine(cfg HTTPEngineConfig) *HTTPEngine {
	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: 10 * time.Second}
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host, _, _ := net.SplitHostPort(addr)
			tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
			if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
				conn.Close()
				return nil, fmt.Errorf("http_engine: apply tls spec: %w", err)
			}
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			return tlsConn, nil
		},
		ForceAttemptHTTP2:   false,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}
	if cfg.Proxy != "" {
		if proxyURL, err := url.Parse(cfg.Proxy); err == nil && (proxyURL.Scheme == "http" || proxyURL.Scheme == "https") {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	detector := cfg.Detector
	if detector == nil {
		detector = NewChallengeDetector(nil)
	}
	return &HTTPEngine{
		transport:      transport,
		policy:         cfg.Policy,
		detector:       detector,
		userAgent:      cfg.UserAgent,
		acceptLanguage: cfg.AcceptLanguage,
	}
}

func (e *HTTPEngine) Name() string { return "http" }

// Fetch runs the GET under the retry policy. Each call gets its own cookie
// jar seeded with req.Cookies, so session state never leaks across runs.
func (e *HTTPEngine) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	jar, err := seededJar(req.URL, req.Cookies)
	if err != nil {
		return failedResult(e.Name(), req.URL, StatusTransport),
			models.NewScrapeError(models.ErrCodeTransport, "invalid target URL", err)
	}
	client := &http.Client{
		Transport: e.transport,
		Jar:       jar,
		CheckRedirect: func(r *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}

	return e.policy.run(ctx, e.Name(), req.URL, func(attemptCtx context.Context) (*FetchResult, error) {
		return e.fetchOnce(attemptCtx, client, req)
	})
}

func (e *HTTPEngine) fetchOnce(ctx context.Context, client *http.Client, req *FetchRequest) (*FetchResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return failedResult(e.Name(), req.URL, StatusTransport),
			permanent(models.NewScrapeError(models.ErrCodeTransport, "build request", err))
	}

	// Simulate browser-like headers. Accept-Encoding is left to the
	// transport so gzip bodies are decoded transparently.
	httpReq.Header.Set("User-Agent", e.userAgent)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", e.acceptLanguage)
	if origin := originOf(req.URL); origin != "" {
		httpReq.Header.Set("Referer", origin+"/")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		se := CategorizeError(err, "http request failed")
		return failedResult(e.Name(), req.URL, StatusFor(se)), se
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		se := CategorizeError(err, "read response body")
		return failedResult(e.Name(), req.URL, StatusFor(se)), se
	}
	bodyStr := string(body)

	result := &FetchResult{
		HTML:       bodyStr,
		Title:      extractTitle(bodyStr),
		StatusCode: resp.StatusCode,
		FinalURL:   resp.Request.URL.String(),
		EngineName: e.Name(),
	}

	if e.detector.IsChallenge(resp.StatusCode, bodyStr) {
		result.Status = StatusChallenge
		return result, models.NewScrapeError(models.ErrCodeChallenge,
			fmt.Sprintf("challenge page served (status %d)", resp.StatusCode), nil)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		result.Status = StatusHTTPError
		return result, models.NewScrapeError(models.ErrCodeHTTPStatus,
			fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !isHTMLContentType(ct) {
		result.Status = StatusHTTPError
		return result, permanent(models.NewScrapeError(models.ErrCodeHTTPStatus,
			fmt.Sprintf("non-html content-type %q", ct), nil))
	}

	result.Status = StatusOK
	return result, nil
}

// seededJar builds a fresh cookie jar holding cookies for rawURL's host.
func seededJar(rawURL string, cookies []http.Cookie) (http.CookieJar, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	if len(cookies) > 0 {
		ptrs := make([]*http.Cookie, len(cookies))
		for i := range cookies {
			ptrs[i] = &cookies[i]
		}
		jar.SetCookies(u, ptrs)
	}
	return jar, nil
}

// originOf returns "scheme://host" for rawURL, or "" if it does not parse.
func originOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// isHTMLContentType returns true if the content-type header looks like HTML.
func isHTMLContentType(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}

// extractTitle uses the Go HTML tokenizer to find the first <title> element.
func extractTitle(htmlStr string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(htmlStr))
	inTitle := false
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "title" {
				inTitle = true
			}
		case html.TextToken:
			if inTitle {
				return strings.TrimSpace(string(tokenizer.Text()))
			}
		case html.EndTagToken:
			if inTitle {
				return ""
			}
		}
	}
}
