// internal/browser/cdpdriver/driver.go
package cdpdriver

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/scalpel-inspector/internal/config"
	"github.com/xkilldash9x/scalpel-inspector/internal/methodhandler"
)

// Driver implements methodhandler.Driver on top of a single chromedp tab.
type Driver struct {
	ctx     context.Context // the tab context; carries the CDP target
	cancel  context.CancelFunc
	logger  *zap.Logger
	timeout time.Duration
	// limiter throttles commands sent to the tab. Nil means unlimited.
	limiter *rate.Limiter

	// runActionsFunc executes chromedp actions. It is chromedp.Run outside of tests.
	runActionsFunc func(ctx context.Context, actions ...chromedp.Action) error
}

var _ methodhandler.Driver = (*Driver)(nil)

// NewDriver opens a tab in the browser behind allocCtx and waits until the CDP
// target is attached.
func NewDriver(allocCtx context.Context, cfg config.Interface, logger *zap.Logger) (*Driver, error) {
	tabCtx, cancel := chromedp.NewContext(allocCtx)

	d := &Driver{
		ctx:            tabCtx,
		cancel:         cancel,
		logger:         logger.Named("cdp_driver"),
		timeout:        cfg.Browser().CommandTimeout,
		limiter:        newLimiter(cfg.Browser()),
		runActionsFunc: chromedp.Run,
	}

	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to attach to browser target: %w", err)
	}

	if vp := cfg.Browser().Viewport; vp.Width > 0 && vp.Height > 0 {
		if err := d.RunActions(tabCtx, chromedp.EmulateViewport(int64(vp.Width), int64(vp.Height))); err != nil {
			d.logger.Warn("Failed to apply viewport.", zap.Error(err))
		}
	}

	d.logger.Info("Browser target attached.")
	return d, nil
}

// Close shuts the tab down. When the driver launched the browser, the browser goes with it.
func (d *Driver) Close() error {
	err := chromedp.Cancel(d.ctx)
	d.cancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to close browser target: %w", err)
	}
	return nil
}

// RunActions executes chromedp actions against the tab, bounded by ctx and the
// configured command timeout. Failures caused by a vanished target are reported
// as a methodhandler.SessionError with StatusInvalidSession.
func (d *Driver) RunActions(ctx context.Context, actions ...chromedp.Action) error {
	opCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	runCtx, cancel := CombineContext(d.ctx, opCtx)
	defer cancel()

	err := d.waitTurn(runCtx)
	if err == nil {
		err = d.runActionsFunc(runCtx, actions...)
	}
	if err == nil {
		return nil
	}
	if d.sessionLost(err) {
		return &methodhandler.SessionError{
			Status:  methodhandler.StatusInvalidSession,
			Message: "browser target is no longer available",
			Err:     err,
		}
	}
	if opCtx.Err() != nil {
		return fmt.Errorf("driver command aborted: %w", context.Cause(opCtx))
	}
	return err
}

func newLimiter(cfg config.BrowserConfig) *rate.Limiter {
	if cfg.CommandsPerSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(cfg.CommandsPerSecond), max(cfg.CommandBurst, 1))
}

func (d *Driver) waitTurn(ctx context.Context) error {
	if d.limiter == nil {
		return nil
	}
	return d.limiter.Wait(ctx)
}

func (d *Driver) sessionLost(err error) bool {
	if d.ctx.Err() != nil {
		return true
	}
	return errors.Is(err, chromedp.ErrInvalidContext) ||
		errors.Is(err, chromedp.ErrInvalidTarget) ||
		errors.Is(err, chromedp.ErrChannelClosed)
}

// ElementOrNull returns the first element matched by the locator, or nil when
// nothing matches. It does not wait for elements to appear.
func (d *Driver) ElementOrNull(ctx context.Context, strategy, selector string) (methodhandler.Element, error) {
	nodes, err := d.queryNodes(ctx, strategy, selector)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	return newElement(d, nodes[0]), nil
}

// Elements returns every element matched by the locator, in document order.
func (d *Driver) Elements(ctx context.Context, strategy, selector string) ([]methodhandler.Element, error) {
	nodes, err := d.queryNodes(ctx, strategy, selector)
	if err != nil {
		return nil, err
	}
	out := make([]methodhandler.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, newElement(d, n))
	}
	return out, nil
}

func (d *Driver) queryNodes(ctx context.Context, strategy, selector string) ([]*cdp.Node, error) {
	loc, err := resolveLocator(strategy, selector)
	if err != nil {
		return nil, err
	}

	var nodes []*cdp.Node
	// AtLeast(0) turns the query into a single lookup instead of a wait.
	if err := d.RunActions(ctx, chromedp.Nodes(loc.query, &nodes, loc.by, chromedp.AtLeast(0))); err != nil {
		return nil, fmt.Errorf("failed to query %q: %w", loc.query, err)
	}
	d.logger.Debug("Queried nodes.", zap.String("query", loc.query), zap.Int("matches", len(nodes)))
	return nodes, nil
}

// Source returns the outer HTML of the current document.
func (d *Driver) Source(ctx context.Context) (string, error) {
	var html string
	if err := d.RunActions(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read page source: %w", err)
	}
	return html, nil
}

// TakeScreenshot captures the viewport as a base64 encoded PNG.
func (d *Driver) TakeScreenshot(ctx context.Context) (string, error) {
	var buf []byte
	if err := d.RunActions(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return "", fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// Invoke runs a session-scoped method from the driver method table.
func (d *Driver) Invoke(ctx context.Context, method string, args []any) (any, error) {
	fn, ok := driverMethods[method]
	if !ok {
		return nil, fmt.Errorf("%w: driver has no method %q", ErrUnsupportedMethod, method)
	}
	return fn(ctx, d, args)
}
