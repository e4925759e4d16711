// record.go defines ChildRecord and the active-child/retry-counter registry.
// It generalizes the teacher's pkg/buildstate.go BuildStateRegistry — a
// mutex-guarded map from key to mutable state with Get/Set/Count/Clear
// helpers — re-keyed from *Package pointer identity to InputFile string
// identity, and replaces its bitmask Flags field with an explicit State
// enum, since a child's Running/Succeeded/Failed/Terminal states are
// mutually exclusive rather than combinable.
package supervisor

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is a ChildRecord's position in its lifecycle.
type State int

const (
	StateRunning State = iota
	StateSucceeded
	StateFailed
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// ChildRecord tracks one forked child across its lifetime.
type ChildRecord struct {
	InputFile  string
	OutputFile string
	AttemptID  string // google/uuid per attempt, the same way build/build.go tags each build with a uuid
	PID        int
	StartTime  time.Time

	LastCPUPct  float64
	LastRSSByte uint64

	State State
}

// registry is the mutex-guarded map of active children plus the per-input
// retry counters, owned exclusively by the Supervisor.
type registry struct {
	mu      sync.Mutex
	active  map[string]*ChildRecord  // keyed by InputFile
	handles map[string]*processHandle
	retries map[string]int

	completed        map[string]bool
	terminalFailures map[string]bool
}

func newRegistry() *registry {
	return &registry{
		active:           make(map[string]*ChildRecord),
		handles:          make(map[string]*processHandle),
		retries:          make(map[string]int),
		completed:        make(map[string]bool),
		terminalFailures: make(map[string]bool),
	}
}

func (r *registry) isSettledOrActiveLocked(inputFile string) bool {
	if _, ok := r.active[inputFile]; ok {
		return true
	}
	return r.completed[inputFile] || r.terminalFailures[inputFile]
}

func newAttemptID() string {
	return uuid.NewString()
}

// snapshotActive returns a copy of the active map's keys, so ReapAll can
// iterate independent of concurrent mutation.
func (r *registry) snapshotActive() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.active))
	for k := range r.active {
		keys = append(keys, k)
	}
	return keys
}

func (r *registry) activeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

func (r *registry) completedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.completed)
}

func (r *registry) terminalFailureCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.terminalFailures)
}

func (r *registry) isCompleted(inputFile string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed[inputFile]
}

func (r *registry) isTerminal(inputFile string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.terminalFailures[inputFile]
}

// Outcomes returns the two outcome sets.
func (r *registry) Outcomes() (completed, terminalFailures []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for f := range r.completed {
		completed = append(completed, f)
	}
	for f := range r.terminalFailures {
		terminalFailures = append(terminalFailures, f)
	}
	return completed, terminalFailures
}
