package renderer

import "context"

// CombineContext returns a context derived from primary (which carries the
// chromedp target) that is also cancelled when secondary is done.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(primary)

	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()

	return combinedCtx, cancel
}
