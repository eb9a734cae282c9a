// Package log wraps zerolog for structured, JSON-or-console logging
// with component- and blob-scoped child loggers.
package log
