package domain

import "context"

// RunRepository is the driven port for run history persistence.
type RunRepository interface {
	Create(ctx context.Context, run *Run) error
	Get(ctx context.Context, id string) (*Run, error)
	List(ctx context.Context, limit int) ([]Run, error)
	RecordYear(ctx context.Context, runID string, result YearResult) error
	Finish(ctx context.Context, id string, status RunStatus, reason string) error
	// RecoverStale marks running runs as interrupted unless live reports
	// them as still owned by a process. A nil live treats every run as stale.
	RecoverStale(ctx context.Context, live RunLiveness) (int64, error)
}

// RunLiveness reports whether the process that started run still works on it.
type RunLiveness func(run Run) bool

// LinkDiscoverer lists the document URLs on one index page.
type LinkDiscoverer interface {
	Discover(ctx context.Context, indexURL, prefix string) ([]string, error)
}

// Downloader streams one document into dir and returns the bytes written.
type Downloader interface {
	Download(ctx context.Context, url, dir string, progress ProgressReporter) (int64, error)
}

// ProgressReporter receives progress updates for a single task.
type ProgressReporter interface {
	SetTotal(total int64)
	SetPosition(pos int64)
	SetMessage(msg string)
	SetStep(step, steps int)
	SetState(state TaskState)
	Reset()
	Finish(msg string)
	Fail(err error)
}

// Display hands out one reporter per task and renders them together.
type Display interface {
	Register(label string) ProgressReporter
}
