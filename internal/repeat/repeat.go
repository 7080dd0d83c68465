// Package repeat runs periodic work, like the credential expiry sweep.
package repeat

import (
	"context"
	"time"
)

// Start a goroutine which repeatedly calls run and then sleeps for interval
// between each call. The goroutine runs until the context is cancelled. Calls
// to run never overlap, so a run that takes longer than interval delays the
// next one instead of racing it.
func Start(ctx context.Context, interval time.Duration, run func(context.Context)) {
	go func() {
		run(ctx)

		for {
			timer := time.NewTimer(interval)
			select {
			case <-timer.C:
				run(ctx)
			case <-ctx.Done():
				timer.Stop()
				return
			}
		}
	}()
}
