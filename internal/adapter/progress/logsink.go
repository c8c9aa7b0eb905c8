package progress

import (
	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/cwygoda/papers/internal/domain"
	"github.com/cwygoda/papers/internal/logging"
)

// LogSink writes sampled progress as log lines, for output that is not a terminal.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink logging to logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Add(label string) Line {
	return &logLine{
		logger:  s.logger.With("label", label),
		sampler: logging.NewProgressSampler(25),
	}
}

func (s *LogSink) Start() {}
func (s *LogSink) Stop()  {}

type logLine struct {
	logger  *slog.Logger
	sampler *logging.ProgressSampler
	step    int
}

func (l *logLine) Update(st domain.ProgressState) {
	// A new file starts its percentage buckets from zero.
	if st.Step != l.step {
		l.step = st.Step
		l.sampler.Reset()
	}
	percent := -1.0
	if st.Total > 0 {
		percent = float64(st.Position) * 100 / float64(st.Total)
	}
	if !l.sampler.ShouldLog(percent, st.Message) {
		return
	}
	attrs := []any{"state", st.State}
	if st.Total > 0 {
		attrs = append(attrs, "bytes", humanize.Bytes(uint64(st.Position)), "total", humanize.Bytes(uint64(st.Total)))
	}
	l.logger.Info(Prefix(st)+" "+st.Message, attrs...)
}

func (l *logLine) Done(st domain.ProgressState) {
	l.logger.Info(Prefix(st) + " " + st.Message)
}

func (l *logLine) Failed(st domain.ProgressState) {
	l.logger.Error(Prefix(st)+" failed", "error", st.Error)
}
