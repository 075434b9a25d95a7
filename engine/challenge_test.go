package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChallengeDetector(t *testing.T) {
	d := NewChallengeDetector([]string{"Just a moment", " Enable JavaScript ", ""})

	tests := []struct {
		name    string
		status  int
		content string
		want    bool
	}{
		{"forbidden status", 403, "<html>ok</html>", true},
		{"marker any case", 200, "<title>JUST A MOMENT...</title>", true},
		{"trimmed marker", 200, "please enable javascript to continue", true},
		{"plain page", 200, "<div class=product>RTX 4090</div>", false},
		{"server error without marker", 503, "maintenance", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.IsChallenge(tt.status, tt.content))
		})
	}
}

func TestChallengeDetector_Marker(t *testing.T) {
	d := NewChallengeDetector([]string{"cf-chl-", "verify you are human"})
	assert.Equal(t, "cf-chl-", d.Marker(`<form id="cf-chl-widget">`))
	assert.Empty(t, d.Marker("nothing here"))

	var nilDetector *ChallengeDetector
	assert.Empty(t, nilDetector.Marker("cf-chl-"))
}
