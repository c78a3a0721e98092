package challenge

import (
	"strings"

	"adscraper/pkg/config"
	"adscraper/pkg/fetch"
	"adscraper/pkg/models"
)

// Classifier maps raw responses to outcomes using configured signature
// lists. Ambiguous responses classify as Throttled so that Blocked stays
// reserved for confirmed challenge evidence.
type Classifier struct {
	markers            []string
	throttleIndicators []string
}

// NewClassifier builds a classifier from the challenge configuration,
// falling back to the default signature lists when none are configured
func NewClassifier(cfg config.ChallengeConfig) *Classifier {
	markers := cfg.Markers
	if len(markers) == 0 {
		markers = config.DefaultChallengeMarkers()
	}
	indicators := cfg.ThrottleIndicators
	if len(indicators) == 0 {
		indicators = config.DefaultThrottleIndicators()
	}

	lower := func(in []string) []string {
		out := make([]string, len(in))
		for i, s := range in {
			out[i] = strings.ToLower(s)
		}
		return out
	}

	return &Classifier{
		markers:            lower(markers),
		throttleIndicators: lower(indicators),
	}
}

// Classify turns one fetch result into exactly one Outcome. err is the
// transport error returned alongside a nil response; see the package doc
// for the priority order.
func (c *Classifier) Classify(resp *fetch.RawResponse, err error) models.Outcome {
	if err != nil || resp == nil {
		return models.NetworkError(err)
	}

	body := strings.ToLower(resp.Body)
	finalURL := strings.ToLower(resp.URL)

	for _, marker := range c.markers {
		if strings.Contains(body, marker) || strings.Contains(finalURL, marker) {
			return models.Blocked(marker, resp.StatusCode)
		}
	}

	if resp.StatusCode == 429 || resp.StatusCode == 503 {
		return models.Throttled(resp.StatusCode)
	}

	for _, indicator := range c.throttleIndicators {
		if strings.Contains(body, indicator) {
			return models.Throttled(resp.StatusCode)
		}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return models.Success(resp.StatusCode)
	}

	// Unconfirmed 4xx/5xx: treat as transient rather than guessing Blocked
	return models.Throttled(resp.StatusCode)
}
