package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/use-agent/pricescout/models"
)

// Escalation states, logged on every transition.
const (
	stateFetching   = "FETCHING"
	stateFetched    = "FETCHED"
	stateChallenged = "CHALLENGED"
	stateFailed     = "FAILED"
	stateBlocked    = "BLOCKED"
)

// Dispatcher sequences engines from cheapest to costliest. Each engine runs
// only after the previous one's outcome is known; the first usable page
// wins and no engine runs twice within one dispatch.
type Dispatcher struct {
	engines []Engine
	memory  *DomainMemory
}

// Attempt records how one engine ended.
type Attempt struct {
	Engine   string
	Status   FetchStatus
	Duration time.Duration
	Err      error
}

// Escalation is the trace of one dispatch.
type Escalation struct {
	// Result is the usable page. Nil when every engine failed.
	Result *FetchResult

	// Attempts lists every engine tried, in order.
	Attempts []Attempt

	// Challenge is the last challenge page seen, kept for diagnostics.
	Challenge *FetchResult
}

// NewDispatcher creates a Dispatcher trying engines in the given order.
// memory may be nil.
func NewDispatcher(engines []Engine, memory *DomainMemory) *Dispatcher {
	return &Dispatcher{
		engines: engines,
		memory:  memory,
	}
}

// Engines returns the configured engine names in escalation order.
func (d *Dispatcher) Engines() []string {
	names := make([]string, len(d.engines))
	for i, e := range d.engines {
		names[i] = e.Name()
	}
	return names
}

// Dispatch escalates through the engines until one yields a usable page.
// The returned Escalation is never nil. When no engine succeeds the error
// is a ScrapeError coded BLOCKED, FETCH_TIMEOUT (every attempt timed out)
// or CANCELED / FETCH_TIMEOUT when ctx ended first.
func (d *Dispatcher) Dispatch(ctx context.Context, req *FetchRequest) (*Escalation, error) {
	domain := extractDomain(req.URL)
	remembered := d.memory.Preferred(domain)
	esc := &Escalation{}

	for step, eng := range d.order(domain, remembered) {
		if err := ctx.Err(); err != nil {
			return esc, CategorizeError(err, "search deadline reached during escalation")
		}

		slog.Debug("dispatcher transition", "state", stateFetching, "engine", eng.Name(), "step", step, "url", req.URL)
		start := time.Now()
		result, err := eng.Fetch(ctx, req)
		if result == nil {
			result = failedResult(eng.Name(), req.URL, StatusFor(err))
		}
		esc.Attempts = append(esc.Attempts, Attempt{
			Engine:   eng.Name(),
			Status:   result.Status,
			Duration: time.Since(start),
			Err:      err,
		})

		if err == nil && result.Status == StatusOK {
			slog.Info("dispatcher transition", "state", stateFetched, "engine", eng.Name(), "url", req.URL,
				"status_code", result.StatusCode, "bytes", len(result.HTML))
			d.memory.RecordWin(domain, eng.Name())
			esc.Result = result
			return esc, nil
		}

		// No-op unless eng was the preferred engine for domain.
		d.memory.Forget(domain, eng.Name())

		if result.Status == StatusChallenge {
			esc.Challenge = result
			d.memory.RecordChallenge(domain, eng.Name())
			slog.Info("dispatcher transition", "state", stateChallenged, "engine", eng.Name(), "url", req.URL,
				"page_title", result.Title)
			continue
		}
		slog.Warn("dispatcher transition", "state", stateFailed, "engine", eng.Name(), "url", req.URL,
			"status", result.Status, "error", err)
	}

	if err := ctx.Err(); err != nil {
		return esc, CategorizeError(err, "search deadline reached during escalation")
	}

	slog.Warn("dispatcher transition", "state", stateBlocked, "url", req.URL, "attempts", len(esc.Attempts))
	if allTimedOut(esc.Attempts) {
		return esc, models.NewScrapeError(models.ErrCodeTimeout,
			fmt.Sprintf("all %d strategies timed out", len(esc.Attempts)), nil)
	}
	return esc, models.NewScrapeError(models.ErrCodeBlocked,
		fmt.Sprintf("all %d strategies exhausted without a usable page", len(esc.Attempts)), nil)
}

// order returns the engines with the remembered winner first and the
// engines recently challenged on domain last, keeping the configured order
// otherwise. Every engine appears exactly once.
func (d *Dispatcher) order(domain, remembered string) []Engine {
	if d.memory == nil {
		return d.engines
	}
	ordered := make([]Engine, 0, len(d.engines))
	var demoted []Engine
	for _, e := range d.engines {
		if e.Name() == remembered {
			ordered = append(ordered, e)
		}
	}
	for _, e := range d.engines {
		switch {
		case e.Name() == remembered:
		case d.memory.Challenged(domain, e.Name()):
			demoted = append(demoted, e)
		default:
			ordered = append(ordered, e)
		}
	}
	if remembered != "" || len(demoted) > 0 {
		slog.Debug("domain memory applied", "domain", domain, "preferred", remembered, "demoted", len(demoted))
	}
	return append(ordered, demoted...)
}

func allTimedOut(attempts []Attempt) bool {
	if len(attempts) == 0 {
		return false
	}
	for _, a := range attempts {
		if a.Status != StatusTimeout {
			return false
		}
	}
	return true
}

// extractDomain parses the hostname from a URL string.
func extractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}
