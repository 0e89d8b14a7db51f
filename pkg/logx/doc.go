// Package logx is a small zerolog wrapper used by the config manager and
// the storage layer, where a logger is needed before (or below) the slog
// service in internal/logging.
//
//   - Console output stays readable (short timestamp + short caller)
//   - File output is JSON-structured
package logx
