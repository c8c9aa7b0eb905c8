// Package progress aggregates per-year progress reporters into one display.
//
// A Board hands out a reporter per task and remembers each task's latest
// state for the status endpoint. Rendering is delegated to a Sink: on a
// terminal, TerminalSink draws one go-pretty tracker per year; otherwise
// LogSink emits sampled log lines.
package progress
