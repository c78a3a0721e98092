// Package challenge classifies responses and drives the per-target CAPTCHA
// state machine.
//
// The Classifier turns a raw response into exactly one Outcome using a
// fixed priority order, so classification is deterministic and testable:
//
//  1. transport failure                 -> NetworkError
//  2. challenge marker in body or URL   -> Blocked (confirmed evidence only)
//  3. HTTP 429 or 503                   -> Throttled
//  4. throttle indicator in body        -> Throttled
//  5. 2xx                               -> Success
//  6. anything else                     -> Throttled (conservative default)
//
// The Handler owns challenge sessions. A target moves through
// Normal -> Detected -> AwaitingResolution and back to Normal on a
// successful resolution, or to Aborted after the retry budget is spent.
// At most one session exists per target at a time; solving itself is
// delegated to a Solver implementation and bounded by the configured
// resolution deadline.
package challenge
