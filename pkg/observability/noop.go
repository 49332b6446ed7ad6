package observability

// NoopLogger discards every message. Used in tests and as a safe default for
// optional constructor arguments.
type NoopLogger struct{}

// NewNoopLogger creates a logger that does nothing
func NewNoopLogger() Logger { return &NoopLogger{} }

func (n *NoopLogger) Debug(msg string, fields map[string]interface{}) {}
func (n *NoopLogger) Info(msg string, fields map[string]interface{})  {}
func (n *NoopLogger) Warn(msg string, fields map[string]interface{})  {}
func (n *NoopLogger) Error(msg string, fields map[string]interface{}) {}
func (n *NoopLogger) Fatal(msg string, fields map[string]interface{}) {}

func (n *NoopLogger) Debugf(format string, args ...interface{}) {}
func (n *NoopLogger) Infof(format string, args ...interface{})  {}
func (n *NoopLogger) Warnf(format string, args ...interface{})  {}
func (n *NoopLogger) Errorf(format string, args ...interface{}) {}

func (n *NoopLogger) With(fields map[string]interface{}) Logger { return n }
func (n *NoopLogger) WithPrefix(prefix string) Logger           { return n }
