package engine

import (
	"net/http"
	"strings"
)

// ChallengeDetector recognises anti-bot interstitials served instead of
// real content.
type ChallengeDetector struct {
	markers []string
}

// NewChallengeDetector lower-cases the markers once. Empty markers are dropped.
func NewChallengeDetector(markers []string) *ChallengeDetector {
	lowered := make([]string, 0, len(markers))
	for _, m := range markers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			lowered = append(lowered, m)
		}
	}
	return &ChallengeDetector{markers: lowered}
}

// IsChallenge reports whether a response is a bot challenge: a 403 status,
// or content containing any marker case-insensitively.
func (d *ChallengeDetector) IsChallenge(statusCode int, content string) bool {
	if statusCode == http.StatusForbidden {
		return true
	}
	return d.Marker(content) != ""
}

// Marker returns the first marker found in content, or "".
func (d *ChallengeDetector) Marker(content string) string {
	if d == nil || content == "" {
		return ""
	}
	lower := strings.ToLower(content)
	for _, m := range d.markers {
		if strings.Contains(lower, m) {
			return m
		}
	}
	return ""
}
