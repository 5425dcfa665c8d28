// Package p2p provides the libp2p peer network behind dsfd: the host,
// service discovery over the DHT and data fan-out over pubsub.
package p2p

import (
	"dsf/internal/logger"
)

// log is the package-level logger for P2P operations.
var log = logger.Default()

// SetLogger sets the logger for all P2P operations.
// This should be called before creating any P2P components.
func SetLogger(l *logger.Logger) {
	if l != nil {
		log = l.Component("p2p")
	}
}

// getLogger returns a logger with the given subcomponent.
func getLogger(subcomponent string) *logger.Logger {
	return log.With("subcomponent", subcomponent)
}
