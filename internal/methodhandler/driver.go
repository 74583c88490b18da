// internal/methodhandler/driver.go
package methodhandler

import "context"

// Driver is the remote automation session the handler sits on top of.
// Implementations own transport, timeouts and element lifetimes.
type Driver interface {
	// ElementOrNull looks up a single element. A miss is reported as (nil, nil).
	ElementOrNull(ctx context.Context, strategy, selector string) (Element, error)
	// Elements looks up zero or more elements, in document order.
	Elements(ctx context.Context, strategy, selector string) ([]Element, error)
	// Source returns the current structural source of the session.
	Source(ctx context.Context) (string, error)
	// TakeScreenshot returns a base64 encoded screenshot.
	TakeScreenshot(ctx context.Context) (string, error)
	// Invoke runs a named, session-scoped operation.
	Invoke(ctx context.Context, method string, args []any) (any, error)
}

// Element is a remote element handle owned by the Driver.
type Element interface {
	// ID is the opaque identifier assigned by the Driver.
	ID() string
	// Invoke runs a named operation against the element.
	Invoke(ctx context.Context, method string, args []any) (any, error)
}
