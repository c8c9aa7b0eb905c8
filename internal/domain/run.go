package domain

import "time"

// TaskState is the lifecycle state of one year task.
type TaskState string

const (
	StatePending     TaskState = "pending"
	StateDiscovering TaskState = "discovering"
	StateDownloading TaskState = "downloading"
	StateDone        TaskState = "done"
	StateFailed      TaskState = "failed"
)

// Terminal returns true once the task can no longer change state.
func (s TaskState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// RunStatus is the persisted outcome of a whole run.
type RunStatus string

const (
	RunRunning     RunStatus = "running"
	RunSucceeded   RunStatus = "succeeded"
	RunFailed      RunStatus = "failed"
	RunInterrupted RunStatus = "interrupted"
)

// ProgressState is a point-in-time view of one year's progress.
type ProgressState struct {
	Label     string    `json:"label"`
	State     TaskState `json:"state"`
	Message   string    `json:"message"`
	Step      int       `json:"step"`
	Steps     int       `json:"steps"`
	Total     int64     `json:"total"`
	Position  int64     `json:"position"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// YearResult is the outcome of one year task.
type YearResult struct {
	Year  Year
	Label string
	State TaskState
	Files int
	Bytes int64
	URL   string
	Error string
}

// Run is one invocation over a range of years.
type Run struct {
	ID         string
	Category   Category
	StartYear  Year
	EndYear    Year
	Dest       string
	Status     RunStatus
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
	Years      []YearResult
}
