package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCleanPrice(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want float64
	}{
		{"plain number", "450", 450},
		{"euro suffix", "450 €", 450},
		{"thousands space", "1 200 €", 1200},
		{"thousands nbsp", "1 200 €", 1200},
		{"decimal comma", "12,50 €", 12.5},
		{"thousands and decimal", "1 234,56 €", 1234.56},
		{"free french", "Gratuit", 0},
		{"free english", "free", 0},
		{"negotiable", "à débattre", 0},
		{"empty", "", 0},
		{"whitespace", "   ", 0},
		{"unparseable", "prix sur demande", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanPrice(tt.raw))
		})
	}
}

func TestNewRecord(t *testing.T) {
	r := NewRecord("  Mountain bike  ", "450 €", "https://www.example.com/ad/1")
	assert.Equal(t, "Mountain bike", r.Title)
	assert.Equal(t, 450.0, r.CleanPrice)
	assert.False(t, r.ScrapedAt.IsZero())

	untitled := NewRecord("   ", "10", "")
	assert.Equal(t, "Untitled", untitled.Title)
}

func TestSessionStatsSuccessRate(t *testing.T) {
	s := &SessionStats{SuccessfulPages: 3, FailedPages: 1}
	assert.InDelta(t, 75.0, s.SuccessRate(), 0.001)

	empty := &SessionStats{}
	assert.Equal(t, 0.0, empty.SuccessRate())
}

func TestSessionStatsDuration(t *testing.T) {
	start := time.Now().Add(-time.Minute)
	s := &SessionStats{StartTime: start, EndTime: start.Add(30 * time.Second)}
	assert.Equal(t, 30*time.Second, s.Duration())

	open := &SessionStats{StartTime: start}
	assert.Greater(t, open.Duration(), 59*time.Second, "open sessions measure up to now")
}

func TestOutcomeConstructors(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, Success(200).Kind)
	assert.Equal(t, 429, Throttled(429).StatusCode)

	blocked := Blocked("recaptcha", 200)
	assert.Equal(t, OutcomeBlocked, blocked.Kind)
	assert.Equal(t, "recaptcha", blocked.ChallengeType)

	netErr := NetworkError(assert.AnError)
	assert.Equal(t, OutcomeNetworkError, netErr.Kind)
	assert.ErrorIs(t, netErr.Err, assert.AnError)
}

func TestOutcomeKindString(t *testing.T) {
	assert.Equal(t, "success", OutcomeSuccess.String())
	assert.Equal(t, "throttled", OutcomeThrottled.String())
	assert.Equal(t, "blocked", OutcomeBlocked.String())
	assert.Equal(t, "network_error", OutcomeNetworkError.String())
}
