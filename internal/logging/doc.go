// Package logging assembles structured slog loggers and formatting helpers used
// across detectd.
//
// It owns the console and JSON handlers, routes file output through a size- and
// age-bounded rotating writer, and exposes context-aware helpers so pipeline
// code can tag log lines with job IDs, stages, and frame indexes. The package
// also provides a no-op logger for tests and wiring code that cannot fail.
package logging
