package ledger

import "time"

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunCancelled RunStatus = "cancelled"
	RunFailed    RunStatus = "failed"
)

// Run summarizes one orchestrator invocation.
type Run struct {
	ID           string
	ManifestPath string
	OutputPath   string
	AudioDir     string
	InferURL     string
	Concurrency  int
	Status       RunStatus
	Total        int
	Succeeded    int
	Skipped      int
	Failed       int
	ErrorMessage string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Elapsed returns the wall time of a finished run, or time since start.
func (r Run) Elapsed() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Outcome is the recorded result of one manifest row.
type Outcome struct {
	Row          int
	Filename     string
	Status       string
	Reason       string
	ErrorKind    string
	Transcript   string
	Duration     string
	AudioDeleted bool
	Elapsed      time.Duration
}
