package pacing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"adscraper/pkg/config"
	"adscraper/pkg/logger"
	"adscraper/pkg/models"
)

// ErrRateLimitExhausted is returned when a Blocked outcome arrives while a
// target is already at the maximum backoff level. The fetch loop surfaces it
// for an operator go/no-go decision instead of backing off forever.
var ErrRateLimitExhausted = errors.New("rate limit exhausted: backoff ceiling reached while still blocked")

// Controller computes per-target request delays and updates backoff state
// from classified outcomes. It performs no I/O.
type Controller struct {
	registry *Registry
	cfg      config.PacingConfig
	log      logger.Logger
}

// NewController creates a pacing controller over the given registry
func NewController(registry *Registry, cfg config.PacingConfig, log logger.Logger) *Controller {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Controller{
		registry: registry,
		cfg:      cfg,
		log:      log,
	}
}

// Registry returns the underlying target registry
func (c *Controller) Registry() *Registry {
	return c.registry
}

// NextDelay returns the wait time before the next request to host:
// base interval * 2^backoffLevel, capped at the configured maximum, with
// bounded random jitter. The result never drops below the configured
// minimum interval, so it is never zero or negative when a positive
// minimum is set.
func (c *Controller) NextDelay(host string) time.Duration {
	t := c.registry.Get(host)

	delay := float64(c.cfg.BaseInterval) * math.Pow(2, float64(t.BackoffLevel))
	if max := float64(c.cfg.MaxDelay); delay > max {
		delay = max
	}

	if c.cfg.JitterFraction > 0 {
		jitter := delay * c.cfg.JitterFraction
		// rand.Float64 is safe for concurrent fetch loops; a per-controller
		// rand.Rand is not
		delay += (rand.Float64() * 2 * jitter) - jitter
	}

	d := time.Duration(delay)
	if d < c.cfg.MinInterval {
		d = c.cfg.MinInterval
	}

	c.log.DebugWithFields("computed request delay", map[string]interface{}{
		"host":          host,
		"backoff_level": t.BackoffLevel,
		"delay":         d,
	})

	return d
}

// RecordOutcome mutates the target's pacing state from a classified
// outcome. It returns ErrRateLimitExhausted when a Blocked outcome arrives
// with the backoff level already at the configured maximum.
func (c *Controller) RecordOutcome(host string, outcome models.Outcome) error {
	t := c.registry.Get(host)
	t.LastRequest = time.Now()

	switch outcome.Kind {
	case models.OutcomeSuccess:
		t.ConsecutiveFailures = 0
		t.successStreak++
		if t.successStreak >= c.cfg.SuccessResetThreshold && t.BackoffLevel > 0 {
			c.log.InfoWithFields("backoff reset after success streak", map[string]interface{}{
				"host":   host,
				"streak": t.successStreak,
				"level":  t.BackoffLevel,
			})
			t.BackoffLevel = 0
			t.successStreak = 0
		}
		return nil

	case models.OutcomeNetworkError:
		// Transport failures have their own retry budget and do not feed
		// the backoff level
		t.NetworkRetries++
		t.successStreak = 0
		return nil

	case models.OutcomeThrottled, models.OutcomeBlocked:
		t.successStreak = 0
		t.ConsecutiveFailures++

		atCeiling := t.BackoffLevel >= c.cfg.MaxBackoffLevel
		if !atCeiling {
			t.BackoffLevel++
		}

		c.log.WarnWithFields("backoff level raised", map[string]interface{}{
			"host":    host,
			"outcome": outcome.Kind.String(),
			"level":   t.BackoffLevel,
			"status":  outcome.StatusCode,
		})

		if atCeiling && outcome.Kind == models.OutcomeBlocked {
			return fmt.Errorf("%w: host %s, level %d, consecutive failures %d",
				ErrRateLimitExhausted, host, t.BackoffLevel, t.ConsecutiveFailures)
		}
		return nil

	default:
		return fmt.Errorf("unknown outcome kind %d for host %s", outcome.Kind, host)
	}
}

// ClearNetworkRetries resets the transport retry counter for host, typically
// after a successful fetch
func (c *Controller) ClearNetworkRetries(host string) {
	t := c.registry.Get(host)
	t.NetworkRetries = 0
}

// Wait sleeps for the given delay or until the context is cancelled. This is
// the fetch loop's suspension point; the controller itself never sleeps.
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
