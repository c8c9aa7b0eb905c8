package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrRunNotFound = errors.New("run not found")
	ErrInvalidRun  = errors.New("invalid run")
)

// HistoryService records runs and their per-year outcomes.
type HistoryService struct {
	repo RunRepository
	now  func() time.Time
}

// NewHistoryService creates a new HistoryService.
func NewHistoryService(repo RunRepository) *HistoryService {
	return &HistoryService{repo: repo, now: time.Now}
}

// Begin creates a running run covering [start, end).
func (s *HistoryService) Begin(ctx context.Context, category Category, start, end Year, dest string) (*Run, error) {
	if start >= end || dest == "" {
		return nil, ErrInvalidRun
	}
	run := &Run{
		ID:        uuid.NewString(),
		Category:  category,
		StartYear: start,
		EndYear:   end,
		Dest:      dest,
		Status:    RunRunning,
		StartedAt: s.now(),
	}
	if err := s.repo.Create(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// Get retrieves a run with its year results.
func (s *HistoryService) Get(ctx context.Context, id string) (*Run, error) {
	return s.repo.Get(ctx, id)
}

// Recent lists the most recent runs, newest first.
func (s *HistoryService) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.repo.List(ctx, limit)
}

// RecordYear stores the outcome of one year task.
func (s *HistoryService) RecordYear(ctx context.Context, runID string, result YearResult) error {
	return s.repo.RecordYear(ctx, runID, result)
}

// Complete marks the run succeeded, or failed when runErr is non-nil.
func (s *HistoryService) Complete(ctx context.Context, runID string, runErr error) error {
	if runErr != nil {
		return s.repo.Finish(ctx, runID, RunFailed, runErr.Error())
	}
	return s.repo.Finish(ctx, runID, RunSucceeded, "")
}

// RecoverStale marks runs left running by a crashed process as interrupted.
// Runs for which live returns true are left alone.
func (s *HistoryService) RecoverStale(ctx context.Context, live RunLiveness) (int64, error) {
	return s.repo.RecoverStale(ctx, live)
}
