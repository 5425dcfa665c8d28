package storage

import (
	"dsf/internal/logger"
)

// log is the package-level logger for storage operations.
// It defaults to the default logger but can be set via SetLogger.
var log = logger.Default()

// SetLogger sets the logger for all storage operations.
// This should be called before opening a store.
func SetLogger(l *logger.Logger) {
	if l != nil {
		log = l.Component("storage")
	}
}

// Logger returns the storage logger with the given subcomponent.
func Logger(subcomponent string) *logger.Logger {
	return log.With("subcomponent", subcomponent)
}
