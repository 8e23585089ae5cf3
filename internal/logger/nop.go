package logger

// NoOpLogger discards everything. Use it in tests or when logging is disabled.
type NoOpLogger struct{}

// NewNop creates a new no-op logger instance.
func NewNop() Logger {
	return &NoOpLogger{}
}

func (l *NoOpLogger) Debug(msg string, fields ...Field) {}

func (l *NoOpLogger) Info(msg string, fields ...Field) {}

func (l *NoOpLogger) Warn(msg string, fields ...Field) {}

func (l *NoOpLogger) Error(msg string, fields ...Field) {}

// Fatal does nothing; it does not exit.
func (l *NoOpLogger) Fatal(msg string, fields ...Field) {}

func (l *NoOpLogger) With(fields ...Field) Logger {
	return l
}

func (l *NoOpLogger) Sync() error {
	return nil
}
