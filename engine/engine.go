package engine

import (
	"context"
	"net/http"
)

// Engine is the interface that all fetch strategies must implement.
type Engine interface {
	// Name returns the strategy identifier ("http", "browser", "stealth").
	Name() string

	// Fetch retrieves the page content for the given request. The returned
	// result is never nil; the error is nil iff result.Status is StatusOK.
	Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error)
}

// FetchStatus classifies how a fetch ended.
type FetchStatus string

const (
	StatusOK        FetchStatus = "OK"
	StatusChallenge FetchStatus = "CHALLENGE"
	StatusHTTPError FetchStatus = "HTTP_ERROR"
	StatusTimeout   FetchStatus = "TIMEOUT"
	StatusTransport FetchStatus = "TRANSPORT_ERROR"
)

// FetchRequest contains everything an engine needs to fetch a page.
type FetchRequest struct {
	URL     string
	Headers map[string]string
	Cookies []http.Cookie

	// WaitSelector is the product-container selector a rendering engine
	// waits for before reading the DOM.
	WaitSelector string
}

// FetchResult is the output of one engine fetch.
type FetchResult struct {
	HTML       string
	Title      string
	StatusCode int
	FinalURL   string
	Status     FetchStatus
	EngineName string
}

// failedResult builds the non-OK result returned alongside an error.
func failedResult(engineName, url string, status FetchStatus) *FetchResult {
	return &FetchResult{
		FinalURL:   url,
		Status:     status,
		EngineName: engineName,
	}
}
