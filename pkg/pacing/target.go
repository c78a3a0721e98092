package pacing

import (
	"sync"
	"time"
)

// Target tracks the pacing state of a single scraped host. A Target is
// created on the first request to its host and lives for the whole run;
// all mutation goes through the owning fetch loop via the Controller.
type Target struct {
	Host string

	// BackoffLevel is the exponent controlling delay growth, >= 0
	BackoffLevel int
	// LastRequest is when the host was last contacted
	LastRequest time.Time
	// ConsecutiveFailures counts Throttled/Blocked outcomes since the last
	// success
	ConsecutiveFailures int
	// NetworkRetries counts transport failures, independent of the backoff
	// level
	NetworkRetries int

	// successStreak counts consecutive successes toward the reset threshold
	successStreak int
}

// Registry maps hosts to their Target records. Insert-if-absent is the only
// operation that needs the lock against concurrent fetch loops; each Target
// is afterwards mutated only by the loop that owns its host.
type Registry struct {
	mu      sync.Mutex
	targets map[string]*Target
}

// NewRegistry creates an empty target registry
func NewRegistry() *Registry {
	return &Registry{
		targets: make(map[string]*Target),
	}
}

// Get returns the Target for host, creating it on first use
func (r *Registry) Get(host string) *Target {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.targets[host]; ok {
		return t
	}
	t := &Target{Host: host}
	r.targets[host] = t
	return t
}

// Len returns the number of registered targets
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.targets)
}

// Snapshot returns value copies of every Target for reporting. Readers must
// never touch the live records owned by the fetch loops.
func (r *Registry) Snapshot() []Target {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Target, 0, len(r.targets))
	for _, t := range r.targets {
		out = append(out, *t)
	}
	return out
}
