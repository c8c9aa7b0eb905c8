package fetch

import (
	"sync"

	"github.com/cwygoda/papers/internal/domain"
)

// recordingReporter implements domain.ProgressReporter for testing.
type recordingReporter struct {
	mu        sync.Mutex
	total     int64
	positions []int64
	messages  []string
}

func (r *recordingReporter) SetTotal(total int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total = total
}

func (r *recordingReporter) SetPosition(pos int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions = append(r.positions, pos)
}

func (r *recordingReporter) SetMessage(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *recordingReporter) SetStep(step, steps int)         {}
func (r *recordingReporter) SetState(state domain.TaskState) {}
func (r *recordingReporter) Reset()                          {}
func (r *recordingReporter) Finish(msg string)               {}
func (r *recordingReporter) Fail(err error)                  {}
