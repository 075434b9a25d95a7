package models

// Diagnostic kinds attached to a PipelineOutcome.
const (
	DiagBlocked      = "BLOCKED"
	DiagTimeout      = "TIMEOUT"
	DiagCanceled     = "CANCELED"
	DiagNoCandidates = "NO_CANDIDATES"
	DiagInternal     = "INTERNAL"
)

// Diagnostic explains an empty or degraded outcome.
type Diagnostic struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	PageTitle string `json:"page_title,omitempty"`
}

// Terminal reports whether the diagnostic ends the run without a usable page.
// Terminal diagnostics also populate PipelineOutcome.Error.
func (d *Diagnostic) Terminal() bool {
	if d == nil {
		return false
	}
	switch d.Kind {
	case DiagBlocked, DiagTimeout, DiagCanceled, DiagInternal:
		return true
	}
	return false
}

// PipelineOutcome is the terminal artifact of one search run.
// It is the JSON body of GET /scrape.
type PipelineOutcome struct {
	Query   string          `json:"query"`
	Count   int             `json:"count"`
	Results []ProductRecord `json:"results"`

	// Error is populated only for terminal diagnostics.
	Error string `json:"error,omitempty"`

	Diagnostic *Diagnostic `json:"diagnostic,omitempty"`

	// EngineUsed names the strategy that produced the page ("http",
	// "browser", "stealth"). Empty when no page was fetched.
	EngineUsed string `json:"engine_used,omitempty"`

	// Attempts lists the strategies tried and how each ended.
	Attempts []Attempt `json:"attempts,omitempty"`

	// CacheStatus is "hit", "miss", or empty (caching not requested).
	CacheStatus string `json:"cache_status,omitempty"`

	Timing TimingInfo `json:"timing"`
}

// Attempt records how one strategy ended during a run.
type Attempt struct {
	Engine     string `json:"engine"`
	Status     string `json:"status"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`

	// FetchMs is the time spent across all fetch strategies.
	FetchMs int64 `json:"fetch_ms"`

	// ExtractMs is the time spent locating, extracting and assembling.
	ExtractMs int64 `json:"extract_ms"`
}
