package engine

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/use-agent/pricescout/models"
)

// RetryPolicy bounds the tries of one strategy.
type RetryPolicy struct {
	// Attempts is the total number of tries (minimum 1).
	Attempts int

	// Backoff is the fixed pause between tries.
	Backoff time.Duration

	// Timeout is the deadline of a single try. 0 means no per-try deadline.
	Timeout time.Duration
}

// attemptFunc performs one try and classifies its own result.
type attemptFunc func(ctx context.Context) (*FetchResult, error)

// permanentError marks a failure that another try cannot fix.
type permanentError struct{ error }

func (e permanentError) Unwrap() error { return e.error }

func permanent(err error) error { return permanentError{err} }

// run executes attempt until it succeeds, hits a non-retryable
// classification, exhausts the policy, or ctx ends.
//
// Challenges are never retried.
func (p RetryPolicy) run(ctx context.Context, engineName, url string, attempt attemptFunc) (*FetchResult, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var (
		res *FetchResult
		err error
	)
	for i := 1; i <= attempts; i++ {
		res, err = p.try(ctx, attempt)
		if err == nil {
			return res, nil
		}
		if res == nil {
			res = failedResult(engineName, url, StatusFor(err))
		}
		if ctx.Err() != nil || !retryable(res.Status, err) || i == attempts {
			break
		}

		slog.Debug("fetch attempt failed, backing off",
			"engine", engineName,
			"url", url,
			"attempt", i,
			"status", res.Status,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return res, CategorizeError(ctx.Err(), "fetch abandoned during backoff")
		case <-time.After(p.Backoff):
		}
	}
	return res, err
}

// try runs one attempt under the per-try deadline.
func (p RetryPolicy) try(ctx context.Context, attempt attemptFunc) (*FetchResult, error) {
	if p.Timeout <= 0 {
		return attempt(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	return attempt(attemptCtx)
}

func retryable(status FetchStatus, err error) bool {
	if status == StatusChallenge || status == StatusOK {
		return false
	}
	var pe permanentError
	return !errors.As(err, &pe)
}

// CategorizeError wraps raw errors into typed ScrapeErrors so the
// dispatcher and the API layer can classify them.
func CategorizeError(err error, msg string) *models.ScrapeError {
	var se *models.ScrapeError
	if errors.As(err, &se) {
		return se
	}
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeCanceled, "request canceled", err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	default:
		return models.NewScrapeError(models.ErrCodeTransport, msg, err)
	}
}

// StatusFor maps an error's code to the fetch classification.
func StatusFor(err error) FetchStatus {
	if err == nil {
		return StatusOK
	}
	switch models.CodeOf(err) {
	case models.ErrCodeChallenge:
		return StatusChallenge
	case models.ErrCodeTimeout, models.ErrCodeCanceled:
		return StatusTimeout
	case models.ErrCodeHTTPStatus:
		return StatusHTTPError
	default:
		return StatusTransport
	}
}
