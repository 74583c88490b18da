// internal/browser/cdpdriver/context.go
package cdpdriver

import "context"

// CombineContext derives a context from session (keeping its values, which carry
// the chromedp target) that is also cancelled when op is done. The cancellation
// cause of op is preserved and can be read with context.Cause.
func CombineContext(session, op context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(session)
	stop := context.AfterFunc(op, func() {
		cancel(context.Cause(op))
	})
	return ctx, func() {
		stop()
		cancel(context.Canceled)
	}
}
