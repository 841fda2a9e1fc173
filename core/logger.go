package core

// Logger is the app-wide logging service.
// Implementations may forward records to an error tracker; args may carry an
// error, a map of extras and/or the acting user for context.
type Logger interface {
	Enable(enabled bool)
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
