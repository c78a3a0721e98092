package challenge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adscraper/pkg/config"
	"adscraper/pkg/logger"
)

func testChallengeConfig() config.ChallengeConfig {
	return config.ChallengeConfig{
		ResolutionDeadline:   100 * time.Millisecond,
		MaxResolutionRetries: 3,
		MaxEncounters:        10,
		CooldownBase:         time.Millisecond,
		CooldownSpread:       time.Millisecond,
	}
}

func newTestHandler(cfg config.ChallengeConfig) *Handler {
	return NewHandler(cfg, logger.NewTestLogger())
}

// stubSolver returns a fixed result or error
type stubSolver struct {
	result SolverResult
	err    error
	calls  int
}

func (s *stubSolver) Solve(ctx context.Context, ch Challenge) (SolverResult, error) {
	s.calls++
	return s.result, s.err
}

// hangingSolver blocks until the context is done, like an operator who
// never answers
type hangingSolver struct{}

func (hangingSolver) Solve(ctx context.Context, ch Challenge) (SolverResult, error) {
	<-ctx.Done()
	return SolverResult{}, ctx.Err()
}

// recordingSink captures applied credentials
type recordingSink struct {
	mu      sync.Mutex
	applied map[string]SolverResult
}

func newRecordingSink() *recordingSink {
	return &recordingSink{applied: make(map[string]SolverResult)}
}

func (s *recordingSink) ApplyCredentials(host string, result SolverResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied[host] = result
	return nil
}

func TestBeginTwiceFailsWithSessionAlreadyActive(t *testing.T) {
	h := newTestHandler(testChallengeConfig())
	host := "www.example.com"

	_, err := h.Begin(host, Challenge{Host: host, Type: "recaptcha"})
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingResolution, h.State(host))

	_, err = h.Begin(host, Challenge{Host: host, Type: "recaptcha"})
	assert.ErrorIs(t, err, ErrSessionAlreadyActive)
}

func TestBeginIndependentTargets(t *testing.T) {
	h := newTestHandler(testChallengeConfig())

	_, err := h.Begin("a.example", Challenge{Host: "a.example"})
	require.NoError(t, err)
	_, err = h.Begin("b.example", Challenge{Host: "b.example"})
	assert.NoError(t, err, "sessions are serialized per target, not globally")
}

func TestResolveSuccessAppliesCredentialsAndClosesSession(t *testing.T) {
	h := newTestHandler(testChallengeConfig())
	host := "www.example.com"
	sink := newRecordingSink()

	session, err := h.Begin(host, Challenge{Host: host, Type: "recaptcha"})
	require.NoError(t, err)

	solver := &stubSolver{result: SolverResult{
		Cookies: "datadome=abc123",
		Tokens:  map[string]string{"x-clearance": "tok"},
	}}

	require.NoError(t, h.Resolve(context.Background(), session, solver, sink))

	assert.Equal(t, StateNormal, h.State(host))
	assert.Equal(t, "datadome=abc123", sink.applied[host].Cookies)
	assert.Equal(t, 1, h.Resolved())

	// Session is gone, so a new challenge can begin
	_, err = h.Begin(host, Challenge{Host: host, Type: "recaptcha"})
	assert.NoError(t, err)
}

func TestResolveRetriesThenAborts(t *testing.T) {
	h := newTestHandler(testChallengeConfig())
	host := "www.example.com"

	session, err := h.Begin(host, Challenge{Host: host, Type: "hcaptcha"})
	require.NoError(t, err)

	solver := &stubSolver{err: errors.New("solver rejected")}

	// Attempts one and two are transient failures
	for i := 0; i < 2; i++ {
		err := h.Resolve(context.Background(), session, solver, nil)
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrChallengeFailed), "attempt %d should not yet be fatal", i+1)
		assert.Equal(t, StateAwaitingResolution, h.State(host))
	}

	// The third attempt exhausts the budget: fatal, exactly once
	err = h.Resolve(context.Background(), session, solver, nil)
	assert.ErrorIs(t, err, ErrChallengeFailed)
	assert.Equal(t, StateAborted, h.State(host))

	// Afterwards the target only reports aborted, never a second fatal
	_, err = h.Begin(host, Challenge{Host: host})
	assert.ErrorIs(t, err, ErrTargetAborted)
}

func TestResolveDeadlineTimeoutAborts(t *testing.T) {
	cfg := testChallengeConfig()
	cfg.MaxResolutionRetries = 1
	h := newTestHandler(cfg)
	host := "slow.example"

	session, err := h.Begin(host, Challenge{Host: host, Type: "recaptcha"})
	require.NoError(t, err)

	// The solver never returns before the deadline; the single allowed
	// attempt fails and the target aborts with exactly one fatal report
	err = h.Resolve(context.Background(), session, hangingSolver{}, nil)
	assert.ErrorIs(t, err, ErrChallengeFailed)
	assert.Equal(t, StateAborted, h.State(host))
}

func TestResolveOperatorCancellationIsNotAFailure(t *testing.T) {
	h := newTestHandler(testChallengeConfig())
	host := "www.example.com"

	session, err := h.Begin(host, Challenge{Host: host})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = h.Resolve(ctx, session, hangingSolver{}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, session.RetryCount, "cancellation must not consume a retry")
	assert.Equal(t, StateAwaitingResolution, h.State(host))
}

func TestEncounterBudget(t *testing.T) {
	cfg := testChallengeConfig()
	cfg.MaxEncounters = 2
	h := newTestHandler(cfg)
	sink := newRecordingSink()
	solver := &stubSolver{}

	for i, host := range []string{"a.example", "b.example"} {
		session, err := h.Begin(host, Challenge{Host: host})
		require.NoError(t, err, "encounter %d", i+1)
		require.NoError(t, h.Resolve(context.Background(), session, solver, sink))
	}

	_, err := h.Begin("c.example", Challenge{Host: "c.example"})
	assert.ErrorIs(t, err, ErrEncounterBudgetExceeded)
}

func TestCooldownWithinBounds(t *testing.T) {
	cfg := testChallengeConfig()
	cfg.CooldownBase = 30 * time.Second
	cfg.CooldownSpread = 20 * time.Second
	h := newTestHandler(cfg)

	for i := 0; i < 50; i++ {
		d := h.Cooldown()
		assert.GreaterOrEqual(t, d, 30*time.Second)
		assert.Less(t, d, 50*time.Second)
	}
}

func TestStateStringNames(t *testing.T) {
	assert.Equal(t, "normal", StateNormal.String())
	assert.Equal(t, "detected", StateDetected.String())
	assert.Equal(t, "awaiting_resolution", StateAwaitingResolution.String())
	assert.Equal(t, "aborted", StateAborted.String())
}
