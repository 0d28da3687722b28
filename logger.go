package prefs

// Fields carries the structured context of a log line, usually the setting
// key and the underlying error.
type Fields map[string]any

// Logger receives the registry's diagnostics. Warn and Error lines mirror
// the Hooks events (bad stored values, failed reads, failed writes,
// panicking subscribers); Debug covers routine events such as batch
// flushes and rollbacks. Adapters live in log/zap, log/logrus and log/slog.
// A nil Options.Logger disables logging.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}
