package logger

// Logger provides a standardized logging interface for the runtime.
// It defines methods for different log levels (Debug, Info, Warn, Error) to enable
// consistent logging across the request scheduler. This interface allows users
// to plug in their preferred logging implementation (e.g., zap, logrus, standard log)
// or use the provided Noop logger to disable logging entirely.
//
// The logger is used throughout the client for:
// - Rate-limit bucket transitions and 429 handling
// - Retry attempt tracking in the requester
// - Connection and transport issues
//
// Usage Example:
//
//	// Using with a custom logger implementation
//	client := rawf.NewClient(baseUrl, userAgent, rawf.WithLogger(myLogger))
//
//	// Disable logging entirely
//	client := rawf.NewClient(baseUrl, userAgent, rawf.WithLogger(&logger.Noop{}))
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}
