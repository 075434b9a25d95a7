package scraper

import (
	"log/slog"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/use-agent/pricescout/config"
	"github.com/use-agent/pricescout/models"
)

// Profile selects how a Browser is launched and how its pages are hardened.
type Profile struct {
	// Name is the strategy name the profile serves ("browser", "stealth").
	Name string

	// Bin overrides the Chromium binary. Empty uses rod's managed browser.
	Bin string

	// UserDataDir gives the profile its own on-disk state.
	UserDataDir string

	// Stealth injects go-rod/stealth's patched properties on every page
	// instead of the plain webdriver mask.
	Stealth bool
}

// ScriptedProfile returns the profile of the "browser" strategy.
func ScriptedProfile(cfg config.BrowserConfig) Profile {
	return Profile{
		Name: config.StrategyBrowser,
		Bin:  cfg.BrowserBin,
	}
}

// StealthProfile returns the profile of the "stealth" strategy.
func StealthProfile(cfg config.BrowserConfig) Profile {
	return Profile{
		Name:        config.StrategyStealth,
		Bin:         cfg.StealthBin,
		UserDataDir: cfg.StealthUserDataDir,
		Stealth:     true,
	}
}

// Browser owns one Chromium process. Every Render runs in its own incognito
// context, so concurrent runs never share cookies or storage.
// It is safe for concurrent use.
type Browser struct {
	browser     *rod.Browser
	profile     Profile
	browserCfg  config.BrowserConfig
	fetchCfg    config.FetchConfig
	blocking    blockPolicy
	slots       chan struct{}
	activePages atomic.Int32
}

// Launch starts a browser for profile and connects to it.
func Launch(profile Profile, browserCfg config.BrowserConfig, fetchCfg config.FetchConfig) (*Browser, error) {
	l := launcher.New().
		Headless(browserCfg.Headless).
		NoSandbox(browserCfg.NoSandbox)

	if profile.Bin != "" {
		l = l.Bin(profile.Bin)
	}
	if profile.UserDataDir != "" {
		l = l.UserDataDir(profile.UserDataDir)
	}
	if browserCfg.DefaultProxy != "" {
		l = l.Proxy(browserCfg.DefaultProxy)
	}

	// ── Fingerprint flags ───────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to launch "+profile.Name+" browser",
			err,
		)
	}
	slog.Info("browser launched", "profile", profile.Name, "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to connect to "+profile.Name+" browser",
			err,
		)
	}

	maxPages := browserCfg.MaxPages
	if maxPages < 1 {
		maxPages = 1
	}
	return &Browser{
		browser:    browser,
		profile:    profile,
		browserCfg: browserCfg,
		fetchCfg:   fetchCfg,
		blocking:   newBlockPolicy(fetchCfg.BlockedResourceTypes, fetchCfg.BlockAds),
		slots:      make(chan struct{}, maxPages),
	}, nil
}

// Name returns the strategy name of the browser's profile.
func (b *Browser) Name() string { return b.profile.Name }

// Stats returns a snapshot of the session slots.
func (b *Browser) Stats() models.PoolStats {
	return models.PoolStats{
		MaxPages:    cap(b.slots),
		ActivePages: int(b.activePages.Load()),
	}
}

// Close kills the browser process.
// Call this on graceful shutdown to prevent zombie Chrome processes.
func (b *Browser) Close() {
	slog.Info("browser shutting down", "profile", b.profile.Name)
	if err := b.browser.Close(); err != nil {
		slog.Warn("browser close failed", "profile", b.profile.Name, "error", err)
	}
}
