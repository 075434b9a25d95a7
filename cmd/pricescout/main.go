package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/pricescout/api"
	"github.com/use-agent/pricescout/api/handler"
	"github.com/use-agent/pricescout/api/middleware"
	"github.com/use-agent/pricescout/cache"
	"github.com/use-agent/pricescout/config"
	"github.com/use-agent/pricescout/engine"
	"github.com/use-agent/pricescout/pipeline"
	"github.com/use-agent/pricescout/scraper"
	"github.com/use-agent/pricescout/webhook"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("pricescout starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"site", cfg.Site.BaseURL,
		"strategies", cfg.Fetch.Strategies,
	)

	// ── 3. Build the strategy chain (launches browsers) ─────────────
	engines, browsers, err := buildEngines(cfg)
	if err != nil {
		slog.Error("failed to initialise fetch strategies", "error", err)
		os.Exit(1)
	}
	defer func() {
		for _, b := range browsers {
			b.Close()
		}
	}()

	memory := engine.NewDomainMemory(cfg.Engine.DomainMemoryTTL)
	defer memory.Stop()
	dispatcher := engine.NewDispatcher(engines, memory)
	slog.Info("strategy dispatcher ready", "engines", dispatcher.Engines())

	// ── 4. Pipeline ─────────────────────────────────────────────────
	pl, err := pipeline.New(cfg, dispatcher)
	if err != nil {
		slog.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	// ── 5. Cache, batch, rate limit ─────────────────────────────────
	cc := cache.New(cfg.Cache.MaxEntries)
	defer cc.Stop()
	store := handler.NewBatchStore(time.Hour)
	defer store.Stop()
	limiter := middleware.NewRateLimiter(cfg.RateLimit)
	defer limiter.Stop()

	pools := make([]handler.StatsProvider, 0, len(browsers))
	for _, b := range browsers {
		pools = append(pools, b)
	}

	// ── 6. Setup router ─────────────────────────────────────────────
	router := api.NewRouter(cfg, api.Deps{
		Searcher:    pl,
		Cache:       cc,
		Batch:       handler.NewBatchRunner(pl, store, webhook.NewSender(), cfg.Browser.MaxPages),
		RateLimiter: limiter,
		Pools:       pools,
		StartTime:   time.Now(),
	})

	// ── 7. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 8. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// In-flight searches can hold a browser for the whole search budget.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// Browsers are closed by the deferred loop above.
	slog.Info("pricescout stopped")
}

// buildEngines creates the engines in configured escalation order,
// launching a browser only for the rendering strategies that are enabled.
func buildEngines(cfg *config.Config) ([]engine.Engine, []*scraper.Browser, error) {
	detector := engine.NewChallengeDetector(cfg.Fetch.ChallengeMarkers)
	renderPolicy := engine.RetryPolicy{
		Attempts: cfg.Fetch.Attempts,
		Backoff:  cfg.Fetch.Backoff,
		Timeout:  cfg.Fetch.BrowserTimeout,
	}

	var (
		engines  []engine.Engine
		browsers []*scraper.Browser
	)
	closeAll := func() {
		for _, b := range browsers {
			b.Close()
		}
	}

	for _, name := range cfg.Fetch.Strategies {
		switch name {
		case config.StrategyHTTP:
			engines = append(engines, engine.NewHTTPEngine(engine.HTTPEngineConfig{
				Policy: engine.RetryPolicy{
					Attempts: cfg.Fetch.Attempts,
					Backoff:  cfg.Fetch.Backoff,
					Timeout:  cfg.Fetch.HTTPTimeout,
				},
				Detector:       detector,
				UserAgent:      cfg.Fetch.UserAgent,
				AcceptLanguage: cfg.Fetch.AcceptLanguage,
				Proxy:          cfg.Browser.DefaultProxy,
			}))

		case config.StrategyBrowser, config.StrategyStealth:
			profile := scraper.ScriptedProfile(cfg.Browser)
			if name == config.StrategyStealth {
				profile = scraper.StealthProfile(cfg.Browser)
			}
			b, err := scraper.Launch(profile, cfg.Browser, cfg.Fetch)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			browsers = append(browsers, b)
			// b.Render is the engine.RodFetchFunc; engine/ never imports scraper/.
			engines = append(engines, engine.NewRodEngine(name, b.Render, renderPolicy, detector))

		default:
			closeAll()
			return nil, nil, fmt.Errorf("unknown fetch strategy %q", name)
		}
	}
	return engines, browsers, nil
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
