package helpers

import (
	"context"
	"sync"
)

// MergeChannels fans in all channels into one. The returned channel is closed once every
// input channel is closed, or once ctx is done.
func MergeChannels[A any](ctx context.Context, channels ...<-chan A) <-chan A {
	out := make(chan A)
	var wg sync.WaitGroup
	wg.Add(len(channels))
	for _, ch := range channels {
		go func(ch <-chan A) {
			defer wg.Done()
			for v := range ch {
				select {
				case out <- v:
				case <-ctx.Done():
					// keep draining so the producer can finish
				}
			}
		}(ch)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
