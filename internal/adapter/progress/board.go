package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/cwygoda/papers/internal/domain"
)

// Sink renders the lines a Board tracks.
type Sink interface {
	Add(label string) Line
	Start()
	Stop()
}

// Line is one rendered task line. Calls are serialized by the Board.
type Line interface {
	Update(st domain.ProgressState)
	Done(st domain.ProgressState)
	Failed(st domain.ProgressState)
}

// Board is the shared display aggregator. It owns one reporter per task,
// keeps the latest ProgressState of each, and forwards updates to a Sink.
type Board struct {
	mu     sync.Mutex
	sink   Sink
	order  []string
	states map[string]*domain.ProgressState
	now    func() time.Time
}

// NewBoard creates a Board rendering to sink.
func NewBoard(sink Sink) *Board {
	return &Board{
		sink:   sink,
		states: make(map[string]*domain.ProgressState),
		now:    time.Now,
	}
}

// Register adds a task line and returns its reporter.
func (b *Board) Register(label string) domain.ProgressReporter {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := &domain.ProgressState{Label: label, State: domain.StatePending, UpdatedAt: b.now()}
	if _, exists := b.states[label]; !exists {
		b.order = append(b.order, label)
	}
	b.states[label] = st
	return &reporter{board: b, state: st, line: b.sink.Add(label)}
}

// Snapshot returns a copy of every tracked state in registration order.
func (b *Board) Snapshot() []domain.ProgressState {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]domain.ProgressState, 0, len(b.order))
	for _, label := range b.order {
		out = append(out, *b.states[label])
	}
	return out
}

// Start begins rendering.
func (b *Board) Start() { b.sink.Start() }

// Stop flushes and stops rendering.
func (b *Board) Stop() { b.sink.Stop() }

type reporter struct {
	board *Board
	state *domain.ProgressState
	line  Line
}

func (r *reporter) update(fn func(st *domain.ProgressState), render func(Line, domain.ProgressState)) {
	r.board.mu.Lock()
	defer r.board.mu.Unlock()
	if r.state.State.Terminal() {
		return
	}
	fn(r.state)
	r.state.UpdatedAt = r.board.now()
	render(r.line, *r.state)
}

func (r *reporter) SetTotal(total int64) {
	r.update(func(st *domain.ProgressState) {
		st.Total = max(total, 0)
		st.Position = min(st.Position, st.Total)
	}, Line.Update)
}

func (r *reporter) SetPosition(pos int64) {
	r.update(func(st *domain.ProgressState) {
		if st.Total > 0 {
			pos = min(pos, st.Total)
		}
		st.Position = max(pos, 0)
	}, Line.Update)
}

func (r *reporter) SetMessage(msg string) {
	r.update(func(st *domain.ProgressState) { st.Message = msg }, Line.Update)
}

func (r *reporter) SetStep(step, steps int) {
	r.update(func(st *domain.ProgressState) {
		st.Step, st.Steps = step, steps
	}, Line.Update)
}

func (r *reporter) SetState(state domain.TaskState) {
	r.update(func(st *domain.ProgressState) { st.State = state }, Line.Update)
}

func (r *reporter) Reset() {
	r.update(func(st *domain.ProgressState) {
		st.Total, st.Position = 0, 0
	}, Line.Update)
}

func (r *reporter) Finish(msg string) {
	r.update(func(st *domain.ProgressState) {
		st.State = domain.StateDone
		st.Message = msg
		st.Step = st.Steps
	}, Line.Done)
}

func (r *reporter) Fail(err error) {
	r.update(func(st *domain.ProgressState) {
		st.State = domain.StateFailed
		st.Error = err.Error()
		st.Message = "error: " + err.Error()
	}, Line.Failed)
}

// Prefix renders the "[19-20|01/03]" label used on every line.
func Prefix(st domain.ProgressState) string {
	if st.Steps == 0 {
		if st.State == domain.StateDone {
			return fmt.Sprintf("[%s|00/00]", st.Label)
		}
		return fmt.Sprintf("[%s|?/?]", st.Label)
	}
	return fmt.Sprintf("[%s|%02d/%02d]", st.Label, st.Step, st.Steps)
}
