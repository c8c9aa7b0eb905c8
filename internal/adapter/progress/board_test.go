package progress

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/cwygoda/papers/internal/domain"
)

// memorySink implements Sink for testing.
type memorySink struct {
	mu      sync.Mutex
	lines   map[string]*memoryLine
	started bool
	stopped bool
}

func newMemorySink() *memorySink {
	return &memorySink{lines: make(map[string]*memoryLine)}
}

func (s *memorySink) Add(label string) Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := &memoryLine{}
	s.lines[label] = l
	return l
}

func (s *memorySink) Start() { s.started = true }
func (s *memorySink) Stop()  { s.stopped = true }

type memoryLine struct {
	updates []domain.ProgressState
	done    bool
	failed  bool
}

func (l *memoryLine) Update(st domain.ProgressState) { l.updates = append(l.updates, st) }
func (l *memoryLine) Done(st domain.ProgressState)   { l.done = true }
func (l *memoryLine) Failed(st domain.ProgressState) { l.failed = true }

func TestBoard_RegisterAndSnapshot(t *testing.T) {
	b := NewBoard(newMemorySink())
	for _, label := range []string{"17-18", "18-19", "19-20"} {
		b.Register(label)
	}

	snap := b.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("len(Snapshot) = %d, want 3", len(snap))
	}
	for i, want := range []string{"17-18", "18-19", "19-20"} {
		if snap[i].Label != want {
			t.Errorf("Snapshot[%d].Label = %q, want %q", i, snap[i].Label, want)
		}
		if snap[i].State != domain.StatePending {
			t.Errorf("Snapshot[%d].State = %q, want pending", i, snap[i].State)
		}
	}
}

func TestBoard_PositionNeverExceedsTotal(t *testing.T) {
	b := NewBoard(newMemorySink())
	r := b.Register("19-20")

	r.SetTotal(100)
	r.SetPosition(150)
	if got := b.Snapshot()[0].Position; got != 100 {
		t.Errorf("Position = %d, want 100", got)
	}

	r.SetTotal(40)
	if got := b.Snapshot()[0].Position; got != 40 {
		t.Errorf("Position after shrinking total = %d, want 40", got)
	}

	r.Reset()
	st := b.Snapshot()[0]
	if st.Total != 0 || st.Position != 0 {
		t.Errorf("after Reset total/position = %d/%d, want 0/0", st.Total, st.Position)
	}
}

func TestBoard_ReportersAreIsolated(t *testing.T) {
	sink := newMemorySink()
	b := NewBoard(sink)
	a := b.Register("17-18")
	c := b.Register("18-19")

	a.SetMessage("downloading: a.pdf")
	c.Fail(errors.New("boom"))

	snap := b.Snapshot()
	if snap[0].Message != "downloading: a.pdf" || snap[0].State == domain.StateFailed {
		t.Errorf("17-18 = %+v", snap[0])
	}
	if snap[1].State != domain.StateFailed || snap[1].Error != "boom" {
		t.Errorf("18-19 = %+v", snap[1])
	}
	if sink.lines["17-18"].failed || !sink.lines["18-19"].failed {
		t.Error("Failed routed to the wrong line")
	}
}

func TestBoard_TerminalStateIsFinal(t *testing.T) {
	sink := newMemorySink()
	b := NewBoard(sink)
	r := b.Register("19-20")

	r.SetStep(2, 2)
	r.Finish("done")
	r.SetMessage("late update")

	st := b.Snapshot()[0]
	if st.State != domain.StateDone || st.Message != "done" {
		t.Errorf("state = %+v, want done/done", st)
	}
	if !sink.lines["19-20"].done {
		t.Error("line not marked done")
	}
}

func TestBoard_ConcurrentUpdates(t *testing.T) {
	b := NewBoard(newMemorySink())
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		r := b.Register(fmt.Sprintf("%02d-%02d", i, i+1))
		wg.Go(func() {
			r.SetTotal(1000)
			for pos := int64(0); pos <= 1000; pos += 10 {
				r.SetPosition(pos)
			}
			r.Finish("done")
		})
	}
	wg.Wait()

	for _, st := range b.Snapshot() {
		if st.State != domain.StateDone || st.Position != 1000 {
			t.Errorf("%s = %+v", st.Label, st)
		}
	}
}

func TestPrefix(t *testing.T) {
	tests := []struct {
		st   domain.ProgressState
		want string
	}{
		{domain.ProgressState{Label: "19-20"}, "[19-20|?/?]"},
		{domain.ProgressState{Label: "19-20", Step: 1, Steps: 3}, "[19-20|01/03]"},
		{domain.ProgressState{Label: "19-20", State: domain.StateDone}, "[19-20|00/00]"},
	}
	for _, tt := range tests {
		if got := Prefix(tt.st); got != tt.want {
			t.Errorf("Prefix(%+v) = %q, want %q", tt.st, got, tt.want)
		}
	}
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	b := NewBoard(NewLogSink(logger))
	r := b.Register("19-20")

	r.SetState(domain.StateDownloading)
	r.SetStep(1, 1)
	r.SetMessage("downloading: C140.pdf")
	r.SetTotal(1000)
	for pos := int64(0); pos <= 1000; pos += 50 {
		r.SetPosition(pos)
	}
	r.Finish("done: 1 file(s)")

	out := buf.String()
	if !strings.Contains(out, "[19-20|01/01] downloading: C140.pdf") {
		t.Errorf("missing download line in:\n%s", out)
	}
	if !strings.Contains(out, "done: 1 file(s)") {
		t.Errorf("missing done line in:\n%s", out)
	}
	if n := strings.Count(out, "\n"); n > 12 {
		t.Errorf("%d log lines, sampler should keep progress lines sparse", n)
	}
}

func TestLogSink_EachFileLogsFromStart(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	b := NewBoard(NewLogSink(logger))
	r := b.Register("20-21")

	r.SetState(domain.StateDownloading)
	for step := 1; step <= 2; step++ {
		r.SetStep(step, 2)
		r.SetMessage("downloading: COMP40001.pdf")
		r.SetTotal(400)
		for pos := int64(0); pos <= 400; pos += 100 {
			r.SetPosition(pos)
		}
		r.Reset()
	}

	out := buf.String()
	for _, want := range []string{"[20-21|01/02] downloading", "[20-21|02/02] downloading"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if n := strings.Count(out, `bytes="400 B"`); n != 2 {
		t.Errorf("completed-file lines = %d, want one per file:\n%s", n, out)
	}
}

func TestTerminalSink_RendersLabels(t *testing.T) {
	var buf syncBuffer
	sink := NewTerminalSink(&buf)
	b := NewBoard(sink)
	r := b.Register("19-20")
	b.Start()

	r.SetState(domain.StateDownloading)
	r.SetStep(1, 1)
	r.SetMessage("downloading: C140.pdf")
	r.Finish("done")
	b.Stop()

	if !strings.Contains(buf.String(), "19-20") {
		t.Errorf("output does not mention the label:\n%q", buf.String())
	}
}

// syncBuffer is a bytes.Buffer safe for the renderer goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
