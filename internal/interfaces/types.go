package interfaces

import (
	"fmt"
	"time"
)

// RepoRef identifies the target repository.
type RepoRef struct {
	Owner string
	Name  string
}

func (r RepoRef) String() string {
	return fmt.Sprintf("%s/%s", r.Owner, r.Name)
}

// RunStatusCompleted is the only terminal run status.
const RunStatusCompleted = "completed"

// RunHandle references a remote run. It is observed, never owned.
type RunHandle struct {
	ID         int64
	Status     string
	Conclusion string
}

// RunStatus is the detail of a run returned by the provider.
type RunStatus struct {
	ID         int64
	Status     string
	Conclusion string
	URL        string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Terminal reports whether the run has reached the terminal status.
func (s RunStatus) Terminal() bool {
	return s.Status == RunStatusCompleted
}

// JobSummary describes one job of a run. Timestamps are nil until known.
type JobSummary struct {
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	Conclusion  string     `json:"conclusion"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	URL         string     `json:"url"`
}

// ExecutionResult is the terminal artifact of a successful execution.
// It is not modified after construction.
type ExecutionResult struct {
	Status          string       `json:"status"`
	Conclusion      string       `json:"conclusion"`
	URL             string       `json:"url"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
	Jobs            []JobSummary `json:"jobs"`
	RunID           int64        `json:"run_id"`
	Branch          string       `json:"branch"`
	ReplacedTrigger string       `json:"replaced_trigger,omitempty"`
}
