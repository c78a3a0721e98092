package challenge

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"adscraper/pkg/config"
	"adscraper/pkg/logger"
)

var (
	// ErrSessionAlreadyActive is returned by Begin when a challenge session
	// already exists for the target; sessions are serialized per target.
	ErrSessionAlreadyActive = errors.New("challenge session already active for target")

	// ErrTargetAborted is returned when a target has exhausted its
	// resolution retries and no further fetches may be attempted.
	ErrTargetAborted = errors.New("target aborted after failed challenge resolution")

	// ErrChallengeFailed is the fatal per-target condition raised exactly
	// once, on the resolution attempt that exhausts the retry budget.
	ErrChallengeFailed = errors.New("challenge resolution failed")

	// ErrEncounterBudgetExceeded is raised when the run-wide CAPTCHA budget
	// is spent.
	ErrEncounterBudgetExceeded = errors.New("challenge encounter budget exceeded")
)

// State is the challenge state of a single target
type State int

const (
	StateNormal State = iota
	StateDetected
	StateAwaitingResolution
	StateAborted
)

// String returns the state name used in logs
func (s State) String() string {
	switch s {
	case StateNormal:
		return "normal"
	case StateDetected:
		return "detected"
	case StateAwaitingResolution:
		return "awaiting_resolution"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Challenge is the opaque payload handed to a solver
type Challenge struct {
	// Host is the target the challenge belongs to
	Host string
	// PageURL is the URL that served the challenge
	PageURL string
	// Type names the matched signature ("recaptcha", "hcaptcha", ...)
	Type string
	// Body is the raw challenge page, for solvers that need it
	Body string
}

// SolverResult carries the credentials a successful resolution produced
type SolverResult struct {
	// Cookies is the Cookie header value to send on subsequent requests
	Cookies string
	// Tokens holds any extra header tokens (e.g. a clearance token)
	Tokens map[string]string
}

// Solver resolves a challenge. Implementations block until solved, the
// context is cancelled, or the deadline passes.
type Solver interface {
	Solve(ctx context.Context, ch Challenge) (SolverResult, error)
}

// CredentialSink receives the session credentials from a successful
// resolution and persists them into the target's session state.
type CredentialSink interface {
	ApplyCredentials(host string, result SolverResult) error
}

// Session is an in-progress challenge resolution. At most one exists per
// target at any time.
type Session struct {
	Host       string
	Challenge  Challenge
	RetryCount int
	CreatedAt  time.Time
}

// Handler owns the per-target challenge state machines and their sessions
type Handler struct {
	mu         sync.Mutex
	cfg        config.ChallengeConfig
	states     map[string]State
	sessions   map[string]*Session
	encounters int
	resolved   int
	log        logger.Logger

	rng *rand.Rand
}

// NewHandler creates a challenge handler
func NewHandler(cfg config.ChallengeConfig, log logger.Logger) *Handler {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Handler{
		cfg:      cfg,
		states:   make(map[string]State),
		sessions: make(map[string]*Session),
		log:      log,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// State returns the challenge state of host
func (h *Handler) State(host string) State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.states[host]
}

// Encounters returns the number of challenges seen this run
func (h *Handler) Encounters() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.encounters
}

// Resolved returns the number of successfully resolved challenges
func (h *Handler) Resolved() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.resolved
}

// Begin opens a challenge session for the target that served ch. It fails
// with ErrSessionAlreadyActive when a session is already open for the
// host, with ErrTargetAborted when the host has been aborted, and with
// ErrEncounterBudgetExceeded when the run-wide budget is spent.
func (h *Handler) Begin(host string, ch Challenge) (*Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.states[host] {
	case StateAborted:
		return nil, fmt.Errorf("%w: host %s", ErrTargetAborted, host)
	case StateAwaitingResolution:
		return nil, fmt.Errorf("%w: host %s", ErrSessionAlreadyActive, host)
	}
	if _, exists := h.sessions[host]; exists {
		return nil, fmt.Errorf("%w: host %s", ErrSessionAlreadyActive, host)
	}

	h.encounters++
	if h.cfg.MaxEncounters > 0 && h.encounters > h.cfg.MaxEncounters {
		h.setStateLocked(host, StateAborted, 0)
		return nil, fmt.Errorf("%w: %d challenges seen", ErrEncounterBudgetExceeded, h.encounters)
	}

	h.setStateLocked(host, StateDetected, 0)

	session := &Session{
		Host:      host,
		Challenge: ch,
		CreatedAt: time.Now(),
	}
	h.sessions[host] = session
	h.setStateLocked(host, StateAwaitingResolution, 0)

	h.log.WarnWithFields("challenge detected", map[string]interface{}{
		"host":       host,
		"type":       ch.Type,
		"page_url":   ch.PageURL,
		"encounters": h.encounters,
	})

	return session, nil
}

// Resolve runs one solve attempt for the session under the configured
// resolution deadline. On success the credentials go to sink, the target
// returns to Normal, and the session is closed. A failed or timed-out
// attempt increments the session retry count; the attempt that exhausts
// the retry budget closes the session, aborts the target, and returns
// ErrChallengeFailed, exactly once per session.
func (h *Handler) Resolve(ctx context.Context, session *Session, solver Solver, sink CredentialSink) error {
	solveCtx, cancel := context.WithTimeout(ctx, h.cfg.ResolutionDeadline)
	defer cancel()

	h.log.InfoWithFields("attempting challenge resolution", map[string]interface{}{
		"host":        session.Host,
		"type":        session.Challenge.Type,
		"retry_count": session.RetryCount,
		"deadline":    h.cfg.ResolutionDeadline,
	})

	result, err := solver.Solve(solveCtx, session.Challenge)
	if err != nil {
		return h.resolutionFailed(ctx, session, err)
	}

	if sink != nil {
		if err := sink.ApplyCredentials(session.Host, result); err != nil {
			return h.resolutionFailed(ctx, session, fmt.Errorf("applying credentials: %w", err))
		}
	}

	h.mu.Lock()
	delete(h.sessions, session.Host)
	h.resolved++
	h.setStateLocked(session.Host, StateNormal, session.RetryCount)
	h.mu.Unlock()

	h.log.InfoWithFields("challenge resolved", map[string]interface{}{
		"host": session.Host,
		"type": session.Challenge.Type,
	})

	return nil
}

// resolutionFailed books one failed attempt and decides between retrying
// and aborting the target
func (h *Handler) resolutionFailed(ctx context.Context, session *Session, cause error) error {
	// Operator cancellation is not a solve failure
	if ctx.Err() != nil {
		return ctx.Err()
	}

	session.RetryCount++

	h.log.WarnWithFields("challenge resolution attempt failed", map[string]interface{}{
		"host":        session.Host,
		"retry_count": session.RetryCount,
		"max_retries": h.cfg.MaxResolutionRetries,
		"error":       cause.Error(),
	})

	if session.RetryCount < h.cfg.MaxResolutionRetries {
		return fmt.Errorf("resolution attempt %d failed: %w", session.RetryCount, cause)
	}

	h.mu.Lock()
	delete(h.sessions, session.Host)
	h.setStateLocked(session.Host, StateAborted, session.RetryCount)
	h.mu.Unlock()

	return fmt.Errorf("%w: host %s after %d attempts: %v",
		ErrChallengeFailed, session.Host, session.RetryCount, cause)
}

// Cooldown returns the extra wait applied after a resolved challenge:
// the configured base plus a random spread, so resumption does not look
// mechanical.
func (h *Handler) Cooldown() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()

	d := h.cfg.CooldownBase
	if h.cfg.CooldownSpread > 0 {
		d += time.Duration(h.rng.Int63n(int64(h.cfg.CooldownSpread)))
	}
	return d
}

// setStateLocked records a state transition; callers hold h.mu
func (h *Handler) setStateLocked(host string, to State, retryCount int) {
	from := h.states[host]
	if from == to {
		return
	}
	h.states[host] = to
	h.log.InfoWithFields("challenge state changed", map[string]interface{}{
		"host":        host,
		"from":        from.String(),
		"to":          to.String(),
		"retry_count": retryCount,
	})
}
