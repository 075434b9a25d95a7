package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Strategy names accepted in FetchConfig.Strategies.
const (
	StrategyHTTP    = "http"
	StrategyBrowser = "browser"
	StrategyStealth = "stealth"
)

// DefaultUserAgent is the desktop Chrome UA sent by every strategy unless overridden.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Config holds all application configuration. It is built once by Load and
// treated as read-only afterwards.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Fetch     FetchConfig
	Site      SiteConfig
	Extract   ExtractConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	CORS      CORSConfig
	Log       LogConfig
	Engine    EngineConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 10000
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the two Rod browser profiles.
type BrowserConfig struct {
	// Headless controls whether the browsers run headless.
	Headless bool // default: true

	// MaxPages caps concurrent rendering sessions per browser.
	MaxPages int // default: 4

	// DefaultProxy is the proxy URL for both profiles.
	DefaultProxy string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary of the scripted profile.
	BrowserBin string

	// StealthBin overrides the Chromium binary of the stealth profile.
	StealthBin string

	// StealthUserDataDir gives the stealth profile its own user data dir.
	StealthUserDataDir string

	ViewportWidth  int // default: 1920
	ViewportHeight int // default: 1080
}

// FetchConfig controls the fetch strategies and their retry policy.
type FetchConfig struct {
	// Strategies is the escalation order. Unknown names fail Validate.
	Strategies []string // default: [http, browser, stealth]

	// Attempts is the number of tries per strategy on transient failures.
	Attempts int // default: 3

	// Backoff is the fixed delay between tries.
	Backoff time.Duration // default: 1s

	HTTPTimeout    time.Duration // per attempt; default: 10s
	BrowserTimeout time.Duration // per attempt; default: 30s

	// SearchTimeout bounds one whole pipeline run.
	SearchTimeout time.Duration // default: 90s

	// SettleDelay is the longest a render waits for product containers.
	SettleDelay time.Duration // default: 5s

	// ScrollSteps is the number of viewport scrolls after settling.
	ScrollSteps int // default: 3

	// ChallengeMarkers are case-insensitive substrings of bot-challenge pages.
	ChallengeMarkers []string

	// BlockedResourceTypes lists resource types blocked while rendering.
	BlockedResourceTypes []string // default: [Image, Font, Media]

	// BlockAds blocks known ad/tracking hosts while rendering.
	BlockAds bool // default: true

	UserAgent      string
	AcceptLanguage string // default: "en-US,en;q=0.9"
}

// SiteConfig describes the target site family.
type SiteConfig struct {
	// Name is the source label stamped on every record.
	Name string // default: "Micro Center"

	// BaseURL is the origin used for search URLs and link resolution.
	BaseURL string // default: "https://www.microcenter.com"

	// SearchPath is appended to BaseURL; "{query}" is replaced with the
	// escaped query.
	SearchPath string

	// ProductMarker is the href substring identifying product detail links.
	ProductMarker string // default: "/product/"

	// Cookies are pre-seeded into every run's cookie jar ("a=1;b=2").
	Cookies map[string]string

	// ContainerSelectors are the curated product container selectors,
	// most precise first.
	ContainerSelectors []string
}

// ExtractConfig controls candidate scanning and result assembly.
type ExtractConfig struct {
	// NoiseFloor is the price at or below which a match is noise.
	NoiseFloor float64 // default: 10

	// ResultCap is the maximum number of records returned.
	ResultCap int // default: 10

	// ScanLimit caps the number of candidate regions per page.
	ScanLimit int // default: 30

	// MinRegionText and MaxRegionText bound the text length of regions
	// found by the currency heuristic.
	MinRegionText int // default: 20
	MaxRegionText int // default: 1500

	// RequireQueryMatch drops records whose title does not contain the query.
	RequireQueryMatch bool // default: false
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid keys. No keys means open access.
	APIKeys []string
}

// RateLimitConfig controls per-identity rate limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 // default: 2
	Burst             int     // default: 5
}

// CacheConfig controls the search outcome cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached outcomes.
	MaxEntries int // default: 500

	// DefaultMaxAge applies when a request does not pass max_age. 0 disables.
	DefaultMaxAge time.Duration // default: 0
}

// CORSConfig controls cross-origin access to the API.
type CORSConfig struct {
	AllowOrigins []string // default: ["*"]
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// EngineConfig controls the strategy dispatcher.
type EngineConfig struct {
	// DomainMemoryTTL is how long a host remembers its winning strategy.
	DomainMemoryTTL time.Duration // default: 24h
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("PRICESCOUT_HOST", "0.0.0.0"),
			Port: envIntOr("PRICESCOUT_PORT", 10000),
			Mode: envOr("PRICESCOUT_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:           envBoolOr("PRICESCOUT_HEADLESS", true),
			MaxPages:           envIntOr("PRICESCOUT_MAX_PAGES", 4),
			DefaultProxy:       os.Getenv("PRICESCOUT_PROXY"),
			NoSandbox:          envBoolOr("PRICESCOUT_NO_SANDBOX", false),
			BrowserBin:         os.Getenv("PRICESCOUT_BROWSER_BIN"),
			StealthBin:         os.Getenv("PRICESCOUT_STEALTH_BIN"),
			StealthUserDataDir: os.Getenv("PRICESCOUT_STEALTH_USER_DATA_DIR"),
			ViewportWidth:      envIntOr("PRICESCOUT_VIEWPORT_WIDTH", 1920),
			ViewportHeight:     envIntOr("PRICESCOUT_VIEWPORT_HEIGHT", 1080),
		},
		Fetch: FetchConfig{
			Strategies:     envSliceOr("PRICESCOUT_STRATEGIES", []string{StrategyHTTP, StrategyBrowser, StrategyStealth}),
			Attempts:       envIntOr("PRICESCOUT_FETCH_ATTEMPTS", 3),
			Backoff:        envDurationOr("PRICESCOUT_FETCH_BACKOFF", time.Second),
			HTTPTimeout:    envDurationOr("PRICESCOUT_HTTP_TIMEOUT", 10*time.Second),
			BrowserTimeout: envDurationOr("PRICESCOUT_BROWSER_TIMEOUT", 30*time.Second),
			SearchTimeout:  envDurationOr("PRICESCOUT_SEARCH_TIMEOUT", 90*time.Second),
			SettleDelay:    envDurationOr("PRICESCOUT_SETTLE_DELAY", 5*time.Second),
			ScrollSteps:    envIntOr("PRICESCOUT_SCROLL_STEPS", 3),
			ChallengeMarkers: envSliceOr("PRICESCOUT_CHALLENGE_MARKERS", []string{
				"just a moment",
				"enable javascript",
				"checking your browser",
				"verify you are human",
				"cf-chl-",
			}),
			BlockedResourceTypes: envSliceOr("PRICESCOUT_BLOCKED_RESOURCES", []string{
				"Image", "Font", "Media",
			}),
			BlockAds:       envBoolOr("PRICESCOUT_BLOCK_ADS", true),
			UserAgent:      envOr("PRICESCOUT_USER_AGENT", DefaultUserAgent),
			AcceptLanguage: envOr("PRICESCOUT_ACCEPT_LANGUAGE", "en-US,en;q=0.9"),
		},
		Site: SiteConfig{
			Name:          envOr("PRICESCOUT_SITE_NAME", "Micro Center"),
			BaseURL:       strings.TrimRight(envOr("PRICESCOUT_SITE_BASE_URL", "https://www.microcenter.com"), "/"),
			SearchPath:    envOr("PRICESCOUT_SITE_SEARCH_PATH", "/search/search_results.aspx?Ntt={query}"),
			ProductMarker: envOr("PRICESCOUT_SITE_PRODUCT_MARKER", "/product/"),
			Cookies:       envCookiesOr("PRICESCOUT_SITE_COOKIES", nil),
			ContainerSelectors: envSliceOr("PRICESCOUT_SITE_CONTAINERS", []string{
				".product_wrapper",
				".details",
				".result",
				".product",
				"[data-price][data-name]",
			}),
		},
		Extract: ExtractConfig{
			NoiseFloor:        envFloatOr("PRICESCOUT_NOISE_FLOOR", 10),
			ResultCap:         envIntOr("PRICESCOUT_RESULT_CAP", 10),
			ScanLimit:         envIntOr("PRICESCOUT_SCAN_LIMIT", 30),
			MinRegionText:     envIntOr("PRICESCOUT_MIN_REGION_TEXT", 20),
			MaxRegionText:     envIntOr("PRICESCOUT_MAX_REGION_TEXT", 1500),
			RequireQueryMatch: envBoolOr("PRICESCOUT_REQUIRE_QUERY_MATCH", false),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("PRICESCOUT_AUTH_ENABLED", true),
			APIKeys: envSliceOr("PRICESCOUT_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("PRICESCOUT_RATE_RPS", 2.0),
			Burst:             envIntOr("PRICESCOUT_RATE_BURST", 5),
		},
		Cache: CacheConfig{
			MaxEntries:    envIntOr("PRICESCOUT_CACHE_MAX_ENTRIES", 500),
			DefaultMaxAge: envDurationOr("PRICESCOUT_CACHE_MAX_AGE", 0),
		},
		CORS: CORSConfig{
			AllowOrigins: envSliceOr("PRICESCOUT_CORS_ORIGINS", []string{"*"}),
		},
		Log: LogConfig{
			Level:  envOr("PRICESCOUT_LOG_LEVEL", "info"),
			Format: envOr("PRICESCOUT_LOG_FORMAT", "json"),
		},
		Engine: EngineConfig{
			DomainMemoryTTL: envDurationOr("PRICESCOUT_DOMAIN_MEMORY_TTL", 24*time.Hour),
		},
	}
}

// Validate reports configuration values the pipeline cannot run with.
func (c *Config) Validate() error {
	if len(c.Fetch.Strategies) == 0 {
		return fmt.Errorf("config: at least one fetch strategy is required")
	}
	seen := make(map[string]bool, len(c.Fetch.Strategies))
	for _, s := range c.Fetch.Strategies {
		switch s {
		case StrategyHTTP, StrategyBrowser, StrategyStealth:
		default:
			return fmt.Errorf("config: unknown fetch strategy %q", s)
		}
		if seen[s] {
			return fmt.Errorf("config: fetch strategy %q listed twice", s)
		}
		seen[s] = true
	}
	if c.Fetch.Attempts < 1 {
		return fmt.Errorf("config: fetch attempts must be >= 1, got %d", c.Fetch.Attempts)
	}
	if c.Site.BaseURL == "" {
		return fmt.Errorf("config: site base URL is required")
	}
	if !strings.Contains(c.Site.SearchPath, "{query}") {
		return fmt.Errorf("config: site search path must contain {query}")
	}
	if c.Extract.ResultCap < 1 || c.Extract.ScanLimit < 1 {
		return fmt.Errorf("config: result cap and scan limit must be positive")
	}
	if c.Extract.NoiseFloor < 0 {
		return fmt.Errorf("config: noise floor must not be negative")
	}
	return nil
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}

// envCookiesOr parses "name=value;name2=value2". Pairs without '=' are skipped.
func envCookiesOr(key string, fallback map[string]string) map[string]string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	cookies := make(map[string]string)
	for _, pair := range strings.Split(v, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || strings.TrimSpace(name) == "" {
			continue
		}
		cookies[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return cookies
}
