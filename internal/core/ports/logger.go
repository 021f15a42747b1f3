// Package ports defines the core interfaces for the application.
package ports

// Logger defines the interface for logging.
//
//go:generate mockgen -source=logger.go -destination=mocks/mock_logger.go -package=mocks
type Logger interface {
	// Debug logs a message that is only shown in verbose mode.
	Debug(msg string, args ...any)
	// Info logs a status message.
	Info(msg string, args ...any)
	// Warn logs a warning.
	Warn(msg string, args ...any)
	// Error logs an error with its cause chain.
	Error(err error)
}
