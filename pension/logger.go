package pension

import "log/slog"

// =============================================================================
// LOGGER - Structured logging sink consumed by the engine
// =============================================================================

// Logger is the logging collaborator the engine writes to. Key-value pairs
// follow the slog convention (alternating key, value).
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

// SlogLogger adapts a *slog.Logger to the Logger interface.
type SlogLogger struct {
	L *slog.Logger
}

func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{L: l}
}

func (s *SlogLogger) Debug(msg string, kv ...any) { s.L.Debug(msg, kv...) }
func (s *SlogLogger) Info(msg string, kv ...any)  { s.L.Info(msg, kv...) }
func (s *SlogLogger) Warn(msg string, kv ...any)  { s.L.Warn(msg, kv...) }
func (s *SlogLogger) Error(msg string, kv ...any) { s.L.Error(msg, kv...) }

// NopLogger discards everything. Used when no sink is configured.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
