// internal/browser/cdpdriver/methods.go
package cdpdriver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
)

var (
	// ErrUnsupportedMethod is returned when a method name is not in the driver's tables.
	ErrUnsupportedMethod = errors.New("unsupported method")
	// ErrInvalidArgument is returned when a method receives arguments of the wrong shape.
	ErrInvalidArgument = errors.New("invalid argument")
)

type elementMethod func(ctx context.Context, e *Element, args []any) (any, error)

type driverMethod func(ctx context.Context, d *Driver, args []any) (any, error)

// elementMethods is the closed set of operations an Element supports.
var elementMethods = map[string]elementMethod{
	"click": func(ctx context.Context, e *Element, _ []any) (any, error) {
		return nil, e.run(ctx, chromedp.Click(e.ids(), chromedp.ByNodeID))
	},
	"clear": func(ctx context.Context, e *Element, _ []any) (any, error) {
		return nil, e.run(ctx, chromedp.Clear(e.ids(), chromedp.ByNodeID))
	},
	"sendKeys": func(ctx context.Context, e *Element, args []any) (any, error) {
		text, err := stringArg(args, 0, "text")
		if err != nil {
			return nil, err
		}
		return nil, e.run(ctx, chromedp.SendKeys(e.ids(), text, chromedp.ByNodeID))
	},
	"submit": func(ctx context.Context, e *Element, _ []any) (any, error) {
		return nil, e.run(ctx, chromedp.Submit(e.ids(), chromedp.ByNodeID))
	},
	"focus": func(ctx context.Context, e *Element, _ []any) (any, error) {
		return nil, e.run(ctx, chromedp.Focus(e.ids(), chromedp.ByNodeID))
	},
	"scrollIntoView": func(ctx context.Context, e *Element, _ []any) (any, error) {
		return nil, e.run(ctx, chromedp.ScrollIntoView(e.ids(), chromedp.ByNodeID))
	},
	"text": func(ctx context.Context, e *Element, _ []any) (any, error) {
		var text string
		if err := e.run(ctx, chromedp.Text(e.ids(), &text, chromedp.ByNodeID)); err != nil {
			return nil, err
		}
		return text, nil
	},
	"value": func(ctx context.Context, e *Element, _ []any) (any, error) {
		var value string
		if err := e.run(ctx, chromedp.Value(e.ids(), &value, chromedp.ByNodeID)); err != nil {
			return nil, err
		}
		return value, nil
	},
	"getAttribute": func(ctx context.Context, e *Element, args []any) (any, error) {
		name, err := stringArg(args, 0, "name")
		if err != nil {
			return nil, err
		}
		var (
			value string
			ok    bool
		)
		if err := e.run(ctx, chromedp.AttributeValue(e.ids(), name, &value, &ok, chromedp.ByNodeID)); err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		return value, nil
	},
	"outerHTML": func(ctx context.Context, e *Element, _ []any) (any, error) {
		var html string
		if err := e.run(ctx, chromedp.OuterHTML(e.ids(), &html, chromedp.ByNodeID)); err != nil {
			return nil, err
		}
		return html, nil
	},
	"rect": func(ctx context.Context, e *Element, _ []any) (any, error) {
		var box *dom.BoxModel
		err := e.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
			var err error
			box, err = dom.GetBoxModel().WithNodeID(e.nodeID).Do(c)
			return err
		}))
		if err != nil {
			return nil, err
		}
		if box == nil || len(box.Border) < 8 {
			return nil, fmt.Errorf("element %s has no box model", e.id)
		}
		return map[string]any{
			"x":      box.Border[0],
			"y":      box.Border[1],
			"width":  box.Width,
			"height": box.Height,
		}, nil
	},
}

// driverMethods is the closed set of session-scoped operations.
var driverMethods = map[string]driverMethod{
	"navigate": navigate,
	"get":      navigate,
	"back": func(ctx context.Context, d *Driver, _ []any) (any, error) {
		return nil, d.RunActions(ctx, chromedp.NavigateBack())
	},
	"forward": func(ctx context.Context, d *Driver, _ []any) (any, error) {
		return nil, d.RunActions(ctx, chromedp.NavigateForward())
	},
	"refresh": func(ctx context.Context, d *Driver, _ []any) (any, error) {
		return nil, d.RunActions(ctx, chromedp.Reload())
	},
	"title": func(ctx context.Context, d *Driver, _ []any) (any, error) {
		var title string
		if err := d.RunActions(ctx, chromedp.Title(&title)); err != nil {
			return nil, err
		}
		return title, nil
	},
	"url": func(ctx context.Context, d *Driver, _ []any) (any, error) {
		var loc string
		if err := d.RunActions(ctx, chromedp.Location(&loc)); err != nil {
			return nil, err
		}
		return loc, nil
	},
	"execute": func(ctx context.Context, d *Driver, args []any) (any, error) {
		script, err := stringArg(args, 0, "script")
		if err != nil {
			return nil, err
		}
		var res any
		err = d.RunActions(ctx, chromedp.Evaluate(script, &res))
		if errors.Is(err, chromedp.ErrJSUndefined) || errors.Is(err, chromedp.ErrJSNull) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return res, nil
	},
	"setWindowSize": func(ctx context.Context, d *Driver, args []any) (any, error) {
		w, err := intArg(args, 0, "width")
		if err != nil {
			return nil, err
		}
		h, err := intArg(args, 1, "height")
		if err != nil {
			return nil, err
		}
		if w <= 0 || h <= 0 {
			return nil, fmt.Errorf("%w: window size must be positive, got %dx%d", ErrInvalidArgument, w, h)
		}
		return nil, d.RunActions(ctx, chromedp.EmulateViewport(w, h))
	},
	"source": func(ctx context.Context, d *Driver, _ []any) (any, error) {
		return d.Source(ctx)
	},
	"screenshot": func(ctx context.Context, d *Driver, _ []any) (any, error) {
		return d.TakeScreenshot(ctx)
	},
}

func navigate(ctx context.Context, d *Driver, args []any) (any, error) {
	url, err := stringArg(args, 0, "url")
	if err != nil {
		return nil, err
	}
	return nil, d.RunActions(ctx, chromedp.Navigate(url))
}

func (e *Element) run(ctx context.Context, actions ...chromedp.Action) error {
	return e.driver.RunActions(ctx, actions...)
}

// -- Argument helpers --
// Arguments usually arrive decoded from JSON, so numbers are float64.

func stringArg(args []any, i int, name string) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("%w: missing %s (argument %d)", ErrInvalidArgument, name, i)
	}
	switch v := args[i].(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return "", fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidArgument, name, args[i])
	}
}

func intArg(args []any, i int, name string) (int64, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("%w: missing %s (argument %d)", ErrInvalidArgument, name, i)
	}
	switch v := args[i].(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%w: %s must be a whole number, got %v", ErrInvalidArgument, name, v)
		}
		return int64(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrInvalidArgument, name, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: %s must be a number, got %T", ErrInvalidArgument, name, args[i])
	}
}
