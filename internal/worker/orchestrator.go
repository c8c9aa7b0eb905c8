package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cwygoda/papers/internal/domain"
)

// Options configures an Orchestrator.
type Options struct {
	Category  domain.Category
	IndexBase string
	Dest      string

	// History is optional; when set every run and year outcome is recorded.
	History *domain.HistoryService
	Logger  *slog.Logger
}

// RunResult is the aggregate outcome of one run.
type RunResult struct {
	RunID string
	Years []domain.YearResult
	// Err is the first failure observed across all years.
	Err error
}

// Failed reports whether any year failed.
func (r RunResult) Failed() bool {
	return r.Err != nil
}

// Orchestrator runs one Task per year concurrently.
type Orchestrator struct {
	discoverer domain.LinkDiscoverer
	downloader domain.Downloader
	display    domain.Display
	opts       Options
}

// New creates a new orchestrator.
func New(discoverer domain.LinkDiscoverer, downloader domain.Downloader, display domain.Display, opts Options) *Orchestrator {
	if opts.IndexBase == "" {
		opts.IndexBase = domain.DefaultIndexBase
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		discoverer: discoverer,
		downloader: downloader,
		display:    display,
		opts:       opts,
	}
}

// firstError holds the first failure reported by any task.
type firstError struct {
	p atomic.Pointer[error]
}

func (f *firstError) set(err error) bool {
	return f.p.CompareAndSwap(nil, &err)
}

func (f *firstError) get() error {
	if p := f.p.Load(); p != nil {
		return *p
	}
	return nil
}

// Run launches a task per year, waits for every one to finish, and returns
// the per-year results in input order. A failing year never stops the others.
func (o *Orchestrator) Run(ctx context.Context, years []domain.Year) RunResult {
	var result RunResult
	if len(years) == 0 {
		return result
	}
	logger := o.opts.Logger

	if o.opts.History != nil {
		run, err := o.opts.History.Begin(ctx, o.opts.Category, years[0], years[len(years)-1]+1, o.opts.Dest)
		if err != nil {
			logger.Warn("run history unavailable", "error", err)
		} else {
			result.RunID = run.ID
			logger = logger.With("run_id", run.ID)
		}
	}

	// Register every reporter before any task starts so the display order is stable.
	tasks := make([]*Task, len(years))
	for i, y := range years {
		tasks[i] = NewTask(y, o.opts.Category, o.opts.IndexBase, o.opts.Dest,
			o.discoverer, o.downloader, o.display.Register(y.Label()), logger)
	}

	// History writes must land even when ctx is cancelled mid-run.
	hctx := context.WithoutCancel(ctx)

	results := make([]domain.YearResult, len(years))
	var first firstError
	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Go(func() {
			res, err := task.Run(ctx)
			results[i] = res
			if err != nil {
				if first.set(err) {
					logger.Error("year failed", "year", int(task.Year), "error", err)
				} else {
					logger.Warn("year failed", "year", int(task.Year), "error", err)
				}
			} else {
				logger.Info("year complete", "year", int(task.Year), "files", res.Files, "bytes", res.Bytes)
			}
			o.record(hctx, logger, result.RunID, res)
		})
	}
	wg.Wait()

	result.Years = results
	result.Err = first.get()

	if result.RunID != "" {
		if err := o.opts.History.Complete(hctx, result.RunID, result.Err); err != nil {
			logger.Warn("finish run history", "error", err)
		}
	}
	return result
}

func (o *Orchestrator) record(ctx context.Context, logger *slog.Logger, runID string, res domain.YearResult) {
	if runID == "" {
		return
	}
	if err := o.opts.History.RecordYear(ctx, runID, res); err != nil {
		logger.Warn("record year", "year", int(res.Year), "error", err)
	}
}
