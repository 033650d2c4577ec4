// Package logging builds the slog loggers used across fitstogo.
//
// Two output formats are supported: a compact console format for operators and
// a JSON format for log shipping. Field names are standardized through the Field*
// constants so that try-on sessions, HTTP requests, and background jobs can be
// correlated across components.
package logging
