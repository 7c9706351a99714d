package services

import (
	"context"
	"fmt"
	"time"

	"github.com/jaeyoung0509/meltdown"
	"golang.org/x/time/rate"
)

// Heartbeat calls beat at most once per interval until the token fires and
// reports how many beats ran.
func Heartbeat(interval time.Duration, beat func(n int)) meltdown.ServiceFunc[string] {
	return func(token meltdown.Token) (string, error) {
		ctx, cancel := token.Context(context.Background())
		defer cancel()

		limiter := rate.NewLimiter(rate.Every(interval), 1)
		beats := 0
		for {
			if err := limiter.Wait(ctx); err != nil {
				if token.Fired() {
					return fmt.Sprintf("%d heartbeats", beats), nil
				}
				return "", fmt.Errorf("heartbeat stopped: %w", err)
			}
			beats++
			if beat != nil {
				beat(beats)
			}
		}
	}
}
