package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jaeyoung0509/meltdown"
	"github.com/sirupsen/logrus"
)

// HTTP listens on addr and serves handler until the token fires.
// Binding is retried with exponential backoff until the token fires.
func HTTP(addr string, handler http.Handler, shutdownTimeout time.Duration) meltdown.ServiceFunc[string] {
	return func(token meltdown.Token) (string, error) {
		ctx, cancel := token.Context(context.Background())
		defer cancel()

		var ln net.Listener
		listen := func() error {
			var err error
			ln, err = net.Listen("tcp", addr)
			if err != nil {
				logrus.WithError(err).WithField("address", addr).Warning("Failed to listen, retrying")
			}
			return err
		}

		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 100 * time.Millisecond
		b.RandomizationFactor = 0.5
		b.Multiplier = 1.5
		b.MaxInterval = 5 * time.Second
		b.MaxElapsedTime = 0 // retry until the token fires
		b.Reset()

		if err := backoff.Retry(listen, backoff.WithContext(b, ctx)); err != nil {
			if token.Fired() {
				return "never listened", nil
			}
			return "", fmt.Errorf("failed to listen on %s: %w", addr, err)
		}

		return Serve(ln, handler, shutdownTimeout).Run(token)
	}
}

// Serve serves handler on ln until the token fires, then shuts the server
// down within shutdownTimeout.
func Serve(ln net.Listener, handler http.Handler, shutdownTimeout time.Duration) meltdown.ServiceFunc[string] {
	return func(token meltdown.Token) (string, error) {
		srv := &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		logrus.WithField("address", ln.Addr().String()).Print("Serving HTTP")

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Serve(ln)
		}()

		select {
		case err := <-errCh:
			return "", fmt.Errorf("http server stopped: %w", err)
		case <-token.Done():
		}

		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(stopCtx); err != nil {
			return "", fmt.Errorf("failed to shutdown http server: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return "", fmt.Errorf("http server stopped: %w", err)
		}
		return "server closed", nil
	}
}
