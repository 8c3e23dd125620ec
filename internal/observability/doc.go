// Package observability provides structured logging, Prometheus metrics and
// OpenTelemetry tracing for the AI backend.
//
// Loggers are plain *zap.Logger values passed through constructors. Metrics
// are registered on an explicit registry so tests can assert on them in
// isolation. Tracing is optional; when disabled the global no-op provider is
// used and spans cost nothing.
package observability
