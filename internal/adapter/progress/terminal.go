package progress

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/progress"

	"github.com/cwygoda/papers/internal/domain"
)

// TerminalSink renders one go-pretty tracker per task. A tracker counts the
// files of its year; bytes of the current file are shown in the message.
type TerminalSink struct {
	pw progress.Writer
}

// NewTerminalSink creates a sink drawing to out.
func NewTerminalSink(out io.Writer) *TerminalSink {
	pw := progress.NewWriter()
	pw.SetAutoStop(false)
	pw.SetOutputWriter(out)
	pw.SetSortBy(progress.SortByNone)
	pw.SetStyle(progress.StyleDefault)
	pw.SetTrackerLength(20)
	pw.SetTrackerPosition(progress.PositionRight)
	pw.SetUpdateFrequency(100 * time.Millisecond)
	pw.Style().Visibility.ETA = false
	pw.Style().Visibility.Percentage = true
	pw.Style().Visibility.Time = true
	pw.Style().Visibility.Value = true
	pw.Style().Visibility.TrackerOverall = false
	return &TerminalSink{pw: pw}
}

// Add appends a tracker for label.
func (s *TerminalSink) Add(label string) Line {
	t := &progress.Tracker{
		Message: Prefix(domain.ProgressState{Label: label}) + " pending",
		Units:   progress.UnitsDefault,
	}
	s.pw.AppendTracker(t)
	return &trackerLine{t: t}
}

// Start renders in the background until Stop. It returns once the renderer
// is running so that an early Stop is not lost.
func (s *TerminalSink) Start() {
	go s.pw.Render()
	deadline := time.Now().Add(time.Second)
	for !s.pw.IsRenderInProgress() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
}

// Stop renders a final frame and waits for the renderer to exit.
func (s *TerminalSink) Stop() {
	s.pw.Stop()
	deadline := time.Now().Add(time.Second)
	for s.pw.IsRenderInProgress() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
}

// LogWriter returns a writer whose lines print above the trackers.
func (s *TerminalSink) LogWriter() io.Writer {
	return logWriter{pw: s.pw}
}

type logWriter struct {
	pw progress.Writer
}

func (w logWriter) Write(p []byte) (int, error) {
	if msg := strings.TrimRight(string(p), "\n"); msg != "" {
		w.pw.Log("%s", msg)
	}
	return len(p), nil
}

type trackerLine struct {
	t     *progress.Tracker
	steps int
}

func (l *trackerLine) Update(st domain.ProgressState) {
	l.t.UpdateMessage(formatMessage(st))
	if st.Steps == 0 {
		return
	}
	if st.Steps != l.steps {
		l.steps = st.Steps
		l.t.UpdateTotal(int64(st.Steps))
	}
	// The tracker completes itself on reaching its total, so hold it one
	// short until Done.
	l.t.SetValue(int64(max(st.Step-1, 0)))
}

func (l *trackerLine) Done(st domain.ProgressState) {
	l.t.UpdateMessage(formatMessage(st))
	if l.steps > 0 {
		l.t.SetValue(int64(l.steps))
	}
	l.t.MarkAsDone()
}

func (l *trackerLine) Failed(st domain.ProgressState) {
	l.t.UpdateMessage(formatMessage(st))
	l.t.MarkAsErrored()
}

func formatMessage(st domain.ProgressState) string {
	msg := Prefix(st) + " " + st.Message
	if st.Total > 0 {
		msg += fmt.Sprintf(" (%s/%s)", humanize.Bytes(uint64(st.Position)), humanize.Bytes(uint64(st.Total)))
	}
	return msg
}
