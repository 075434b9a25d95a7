package engine

import (
	"context"
	"fmt"
	"net/http"

	"github.com/use-agent/pricescout/models"
)

// RodFetchFunc is the callback type that renders a page in a browser profile.
// It is injected from main.go to avoid a circular import (engine/ -> scraper/).
// It reports the rendered page as-is; RodEngine classifies it.
type RodFetchFunc func(ctx context.Context, req *FetchRequest) (*FetchResult, error)

// RodEngine is a browser-based strategy. The same type serves the scripted
// ("browser") and hardened ("stealth") profiles; they differ only in the
// callback and name.
type RodEngine struct {
	fetchFunc RodFetchFunc
	name      string
	policy    RetryPolicy
	detector  *ChallengeDetector
}

// NewRodEngine creates a RodEngine named name that renders through fetchFunc.
func NewRodEngine(name string, fetchFunc RodFetchFunc, policy RetryPolicy, detector *ChallengeDetector) *RodEngine {
	if detector == nil {
		detector = NewChallengeDetector(nil)
	}
	return &RodEngine{
		fetchFunc: fetchFunc,
		name:      name,
		policy:    policy,
		detector:  detector,
	}
}

func (e *RodEngine) Name() string { return e.name }

func (e *RodEngine) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	if e.fetchFunc == nil {
		return failedResult(e.name, req.URL, StatusTransport),
			permanent(models.NewScrapeError(models.ErrCodeBrowserCrash, e.name+": fetchFunc not configured", nil))
	}
	return e.policy.run(ctx, e.name, req.URL, func(attemptCtx context.Context) (*FetchResult, error) {
		return e.renderOnce(attemptCtx, req)
	})
}

func (e *RodEngine) renderOnce(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	// Clone the request so we don't mutate the caller's copy.
	r := *req
	result, err := e.fetchFunc(ctx, &r)
	if result == nil {
		result = failedResult(e.name, req.URL, StatusTransport)
	}
	result.EngineName = e.name

	if err != nil {
		se := CategorizeError(err, e.name+": render failed")
		result.Status = StatusFor(se)
		return result, se
	}

	if e.detector.IsChallenge(result.StatusCode, result.HTML) {
		result.Status = StatusChallenge
		return result, models.NewScrapeError(models.ErrCodeChallenge,
			fmt.Sprintf("%s: challenge page rendered (status %d)", e.name, result.StatusCode), nil)
	}
	// StatusCode is 0 when the browser could not report it.
	if result.StatusCode >= http.StatusBadRequest {
		result.Status = StatusHTTPError
		return result, models.NewScrapeError(models.ErrCodeHTTPStatus,
			fmt.Sprintf("%s: unexpected status %d", e.name, result.StatusCode), nil)
	}

	result.Status = StatusOK
	return result, nil
}
