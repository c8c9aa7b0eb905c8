// Package logging builds the slog loggers used by the CLI.
//
// Output is either human-oriented text ("console") or JSON. While the
// terminal progress display is active, the CLI points the logger at the
// display's log writer so log lines print above the progress bars instead
// of tearing them.
package logging
