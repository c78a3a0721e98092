package scraper

import (
	"fmt"

	"adscraper/pkg/models"
)

// TargetError is the fatal per-target failure surfaced by a fetch loop.
// It carries enough state for the operator to judge whether the run
// should continue.
type TargetError struct {
	Target      string
	Host        string
	LastOutcome models.OutcomeKind
	Retries     int
	Err         error
}

func (e *TargetError) Error() string {
	return fmt.Sprintf("target %s (%s) failed after %d retries, last outcome %s: %v",
		e.Target, e.Host, e.Retries, e.LastOutcome, e.Err)
}

func (e *TargetError) Unwrap() error {
	return e.Err
}
