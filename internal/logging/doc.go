// Package logging provides slog-based loggers with console and JSON
// handlers plus attribute helpers shared across glint components.
package logging
