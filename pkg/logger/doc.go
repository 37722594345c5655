// Package logger constructs the process-wide slog logger from the
// configured level and environment.
package logger
