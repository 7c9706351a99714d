package services

import (
	"os"
	"os/signal"

	"github.com/jaeyoung0509/meltdown"
)

// Signals waits for one of sigs and returns its name. It returns an empty
// string when the token fires first.
func Signals(sigs ...os.Signal) meltdown.ServiceFunc[string] {
	if len(sigs) == 0 {
		sigs = ShutdownSignals
	}

	return func(token meltdown.Token) (string, error) {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, sigs...)
		defer signal.Stop(ch)

		select {
		case sig := <-ch:
			return sig.String(), nil
		case <-token.Done():
			return "", nil
		}
	}
}
