// Package background runs periodic work off the calling goroutine.
package background

import (
	"context"
	"sync"
	"time"
)

// Repeat calls do every interval until cancel is called or ctx is done.
// cancel is safe to call more than once.
func Repeat(ctx context.Context, do func(), interval time.Duration) (cancel func()) {
	t := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		defer t.Stop()
		for {
			select {
			case <-t.C:
				do()
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
		})
	}
}
