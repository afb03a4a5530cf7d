// Package harness runs the benchmark sweep: one client process per run key,
// three telemetry samplers beside it, a hard ceiling on runtime and a
// teardown that always stops everything that was started.
package harness

import "github.com/weiihann/cachoor/bench"

// State is a step of a run's lifecycle.
type State string

// Run lifecycle: Idle → Prepared → Running → (Completed | TimedOut) →
// TornDown. Failed and Interrupted replace Completed when a run cannot
// finish normally; every run ends in TornDown.
const (
	StateIdle        State = "idle"
	StatePrepared    State = "prepared"
	StateRunning     State = "running"
	StateCompleted   State = "completed"
	StateTimedOut    State = "timed_out"
	StateInterrupted State = "interrupted"
	StateFailed      State = "failed"
	StateTornDown    State = "torn_down"
)

// Result holds the outcome of one run.
type Result struct {
	Variant     string     `json:"variant"`
	CacheSizeMB int        `json:"cache_size_mb"`
	Task        bench.Task `json:"task"`
	Outcome     State      `json:"outcome"`
	ElapsedMs   int64      `json:"elapsed_ms"`
	DBSizeBytes uint64     `json:"db_size_bytes"`
	Error       string     `json:"error,omitempty"`
	Transitions []State    `json:"-"`
}

// Key returns the run key the result belongs to.
func (r Result) Key() bench.RunKey {
	return bench.RunKey{Variant: r.Variant, CacheSizeMB: r.CacheSizeMB, Task: r.Task}
}

// Failed reports whether the run needs attention. Hitting the ceiling is
// an expected outcome and does not count.
func (r Result) Failed() bool {
	switch r.Outcome {
	case StateFailed, StateInterrupted:
		return true
	case StateCompleted:
		return r.Error != ""
	default:
		return false
	}
}
