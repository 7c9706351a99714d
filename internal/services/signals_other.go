//go:build !linux

package services

import (
	"os"
	"syscall"
)

// ShutdownSignals are the signals that request a graceful shutdown.
var ShutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
