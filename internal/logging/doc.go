// Package logging assembles the structured slog loggers used across
// scrivener components.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes canonical field names so the router, worker, and
// daemon tag lines consistently. A no-op logger is provided for tests and
// wiring code that cannot fail.
package logging
