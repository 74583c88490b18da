// internal/browser/cdpdriver/element.go
package cdpdriver

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/cdp"

	"github.com/xkilldash9x/scalpel-inspector/internal/methodhandler"
)

// Element is a DOM node found through a Driver.
type Element struct {
	id        string
	nodeID    cdp.NodeID
	backendID cdp.BackendNodeID
	nodeName  string
	driver    *Driver
}

var _ methodhandler.Element = (*Element)(nil)

// elementID derives the public id from the backend node id, which stays stable
// for the lifetime of the node, across repeated queries.
func elementID(n *cdp.Node) string {
	return fmt.Sprintf("node-%d", n.BackendNodeID)
}

func newElement(d *Driver, n *cdp.Node) *Element {
	return &Element{
		id:        elementID(n),
		nodeID:    n.NodeID,
		backendID: n.BackendNodeID,
		nodeName:  n.NodeName,
		driver:    d,
	}
}

// ID returns the driver-assigned identifier.
func (e *Element) ID() string { return e.id }

// NodeName is the DOM node name (e.g. "BUTTON") seen at lookup time.
func (e *Element) NodeName() string { return e.nodeName }

// Invoke runs an element method from the element method table.
func (e *Element) Invoke(ctx context.Context, method string, args []any) (any, error) {
	fn, ok := elementMethods[method]
	if !ok {
		return nil, fmt.Errorf("%w: element has no method %q", ErrUnsupportedMethod, method)
	}
	return fn(ctx, e, args)
}

// ids is the selector form chromedp expects with ByNodeID.
func (e *Element) ids() []cdp.NodeID {
	return []cdp.NodeID{e.nodeID}
}
