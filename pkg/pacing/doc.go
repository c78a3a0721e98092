// Package pacing decides how long to wait before each outgoing request.
//
// Every scraped host gets a Target record tracking its backoff level and
// recent outcomes. The Controller derives the next delay from the base
// interval and the target's backoff level (base * 2^level, capped, with
// bounded random jitter), and adjusts the level as outcomes are recorded:
//
//   - Success: after a configurable streak of consecutive successes the
//     backoff level resets to zero.
//   - Throttled / Blocked: the level increments, capped at the configured
//     maximum. A Blocked outcome that arrives while the level is already at
//     the maximum returns ErrRateLimitExhausted instead of backing off
//     further; the fetch loop surfaces that to the operator.
//   - NetworkError: a separate retry counter increments; the backoff level
//     is untouched.
//
// The controller performs no I/O. Waiting happens at the fetch loop's
// suspension point via Wait, which is cancellable through its context.
package pacing
