package engine

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/pricescout/models"
)

func newTestHTTPEngine(attempts int, timeout time.Duration) *HTTPEngine {
	return NewHTTPEngine(HTTPEngineConfig{
		Policy:         RetryPolicy{Attempts: attempts, Backoff: time.Millisecond, Timeout: timeout},
		Detector:       NewChallengeDetector([]string{"just a moment", "enable javascript"}),
		UserAgent:      "pricescout-test",
		AcceptLanguage: "en-US,en;q=0.9",
	})
}

func TestHTTPEngine_OK(t *testing.T) {
	var gotUA, gotLang, gotReferer, gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		gotReferer = r.Header.Get("Referer")
		if c, err := r.Cookie("storeSelected"); err == nil {
			gotCookie = c.Value
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><title>Search Results</title></head><body>ok</body></html>`))
	}))
	defer srv.Close()

	e := newTestHTTPEngine(3, time.Second)
	res, err := e.Fetch(t.Context(), &FetchRequest{
		URL:     srv.URL + "/search?q=rtx",
		Cookies: []http.Cookie{{Name: "storeSelected", Value: "131"}},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "http", res.EngineName)
	assert.Equal(t, 200, res.StatusCode)
	assert.Equal(t, "Search Results", res.Title)
	assert.Contains(t, res.HTML, "ok")

	assert.Equal(t, "pricescout-test", gotUA)
	assert.Equal(t, "en-US,en;q=0.9", gotLang)
	assert.Equal(t, srv.URL+"/", gotReferer)
	assert.Equal(t, "131", gotCookie)
}

func TestHTTPEngine_ForbiddenIsChallengeWithoutRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	e := newTestHTTPEngine(3, time.Second)
	res, err := e.Fetch(t.Context(), &FetchRequest{URL: srv.URL})
	require.Error(t, err)
	assert.Equal(t, StatusChallenge, res.Status)
	assert.Equal(t, models.ErrCodeChallenge, models.CodeOf(err))
	assert.Equal(t, int32(1), hits.Load())
}

func TestHTTPEngine_ChallengeMarker(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Just a moment...</title></head></html>`))
	}))
	defer srv.Close()

	e := newTestHTTPEngine(3, time.Second)
	res, err := e.Fetch(t.Context(), &FetchRequest{URL: srv.URL})
	require.Error(t, err)
	assert.Equal(t, StatusChallenge, res.Status)
	assert.Equal(t, "Just a moment...", res.Title)
	assert.Equal(t, int32(1), hits.Load())
}

func TestHTTPEngine_ServerErrorRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	e := newTestHTTPEngine(3, time.Second)
	res, err := e.Fetch(t.Context(), &FetchRequest{URL: srv.URL})
	require.Error(t, err)
	assert.Equal(t, StatusHTTPError, res.Status)
	assert.Equal(t, models.ErrCodeHTTPStatus, models.CodeOf(err))
	assert.Equal(t, int32(3), hits.Load())
}

func TestHTTPEngine_RecoversAfterTransientError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body>second time lucky</body></html>`))
	}))
	defer srv.Close()

	e := newTestHTTPEngine(3, time.Second)
	res, err := e.Fetch(t.Context(), &FetchRequest{URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, int32(2), hits.Load())
}

func TestHTTPEngine_NonHTMLNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	e := newTestHTTPEngine(3, time.Second)
	res, err := e.Fetch(t.Context(), &FetchRequest{URL: srv.URL})
	require.Error(t, err)
	assert.Equal(t, StatusHTTPError, res.Status)
	assert.Equal(t, int32(1), hits.Load())
}

func TestHTTPEngine_AttemptTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	e := newTestHTTPEngine(2, 50*time.Millisecond)
	res, err := e.Fetch(t.Context(), &FetchRequest{URL: srv.URL})
	require.Error(t, err)
	assert.Equal(t, StatusTimeout, res.Status)
	assert.Equal(t, models.ErrCodeTimeout, models.CodeOf(err))
}

func TestHTTPEngine_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	e := newTestHTTPEngine(1, time.Second)
	res, err := e.Fetch(t.Context(), &FetchRequest{URL: addr})
	require.Error(t, err)
	assert.Equal(t, StatusTransport, res.Status)
	assert.Equal(t, models.ErrCodeTransport, models.CodeOf(err))
}
