// Package logging assembles structured slog loggers and formatting helpers used
// across cvasr components.
//
// It owns the console and JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so gateway and batch code can tag log lines
// with request IDs, run IDs, and manifest rows. A no-op logger is provided for
// tests and wiring code that cannot fail.
package logging
