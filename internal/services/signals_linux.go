package services

import (
	"os"

	"golang.org/x/sys/unix"
)

// ShutdownSignals are the signals that request a graceful shutdown.
var ShutdownSignals = []os.Signal{unix.SIGPWR, unix.SIGINT, unix.SIGQUIT, unix.SIGTERM}
