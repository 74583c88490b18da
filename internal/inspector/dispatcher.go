// File: internal/inspector/dispatcher.go
package inspector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-inspector/internal/methodhandler"
	"github.com/xkilldash9x/scalpel-inspector/internal/observability"
)

var (
	errMissingField = errors.New("missing required field")
	// ErrSessionClosed is returned for requests that arrive after the session was lost.
	ErrSessionClosed = errors.New("inspector session is closed")
)

// Dispatcher decodes requests, runs them against a Handler and encodes the
// responses. Requests are serialized, so it may be shared by several transports
// or connections.
type Dispatcher struct {
	mu      sync.Mutex
	handler *methodhandler.Handler
	metrics *observability.Metrics
	logger  *zap.Logger
	lost    error
}

// NewDispatcher wraps h. metrics may be nil.
func NewDispatcher(h *methodhandler.Handler, metrics *observability.Metrics, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		handler: h,
		metrics: metrics,
		logger:  logger.Named("dispatcher"),
	}
}

// Do handles one encoded request and returns the encoded response. The error is
// non-nil once the session has been lost; the response describing the loss is
// still returned and should be delivered before the caller shuts down.
func (d *Dispatcher) Do(ctx context.Context, raw []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var req request
	if err := json.Unmarshal(raw, &req); err != nil {
		return d.encode(errorResponse(fmt.Errorf("malformed request: %w", err))), d.lost
	}

	if d.lost != nil {
		resp := errorResponse(fmt.Errorf("%w: %w", ErrSessionClosed, d.lost))
		resp.ID = req.ID
		return d.encode(resp), d.lost
	}

	start := time.Now()
	result, err := d.dispatch(ctx, req)
	outcome := observability.OutcomeOK

	resp := response{ID: req.ID, OK: true, Result: result}
	if err != nil {
		outcome = observability.OutcomeError
		if methodhandler.IsSessionLost(err) {
			outcome = observability.OutcomeSessionLost
			d.lost = err
			d.logger.Error("Browser session lost.", zap.String("op", req.Op), zap.Error(err))
		} else {
			d.logger.Debug("Request failed.", zap.String("op", req.Op), zap.Error(err))
		}
		resp = errorResponse(err)
		resp.ID = req.ID
	}

	d.metrics.ObserveRequest(metricOp(req.Op), outcome, time.Since(start))
	d.metrics.SetCachedElements(len(d.handler.Entries()))
	return d.encode(resp), d.lost
}

// Lost reports the error that ended the session, if any.
func (d *Dispatcher) Lost() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lost
}

func (d *Dispatcher) encode(resp response) []byte {
	out, err := json.Marshal(resp)
	if err != nil {
		// Results are built from strings, numbers and driver return values; a value
		// that cannot be encoded is reported instead of the result.
		d.logger.Warn("Failed to encode response.", zap.Error(err))
		out, _ = json.Marshal(response{ID: resp.ID, Error: fmt.Sprintf("encoding response: %v", err)})
	}
	return out
}

func (d *Dispatcher) dispatch(ctx context.Context, req request) (any, error) {
	switch req.Op {
	case opFetchElement:
		if err := requireFields(map[string]string{"strategy": req.Strategy, "selector": req.Selector}); err != nil {
			return nil, err
		}
		entry, err := d.handler.FetchElement(ctx, req.Strategy, req.Selector)
		if err != nil || entry == nil {
			return nil, err
		}
		return newElementView(*entry), nil

	case opFetchElements:
		if err := requireFields(map[string]string{"strategy": req.Strategy, "selector": req.Selector}); err != nil {
			return nil, err
		}
		col, err := d.handler.FetchElements(ctx, req.Strategy, req.Selector)
		if err != nil {
			return nil, err
		}
		return newCollectionView(col), nil

	case opExecuteElementCommand:
		if err := requireFields(map[string]string{"elementId": req.ElementID, "method": req.Method}); err != nil {
			return nil, err
		}
		res, err := d.handler.ExecuteElementCommand(ctx, req.ElementID, req.Method, req.Args)
		if err != nil {
			return nil, err
		}
		d.recordSnapshot(res.Snapshot)
		return elementCommandView{
			snapshotView: newSnapshotView(res.Snapshot),
			Element:      newElementView(res.Element),
			Res:          res.Result,
		}, nil

	case opExecuteMethod:
		if err := requireFields(map[string]string{"method": req.Method}); err != nil {
			return nil, err
		}
		res, err := d.handler.ExecuteMethod(ctx, req.Method, req.Args)
		if err != nil {
			return nil, err
		}
		d.recordSnapshot(res.Snapshot)
		return methodView{snapshotView: newSnapshotView(res.Snapshot), Res: res.Result}, nil

	case opRestart:
		d.handler.Restart()
		return map[string]any{}, nil

	case opEntries:
		entries := d.handler.Entries()
		views := make([]elementView, len(entries))
		for i, e := range entries {
			views[i] = newElementView(e)
		}
		return views, nil

	default:
		return nil, fmt.Errorf("unknown op %q", req.Op)
	}
}

// metricOp bounds the op label to the known operations.
func metricOp(op string) string {
	switch op {
	case opFetchElement, opFetchElements, opExecuteElementCommand, opExecuteMethod, opRestart, opEntries:
		return op
	default:
		return opUnknown
	}
}

func (d *Dispatcher) recordSnapshot(s methodhandler.Snapshot) {
	if s.SourceErr != nil {
		d.metrics.SnapshotFailure("source")
	}
	if s.ScreenshotErr != nil {
		d.metrics.SnapshotFailure("screenshot")
	}
}

func requireFields(fields map[string]string) error {
	var missing []string
	for name, val := range fields {
		if val == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("%w: %s", errMissingField, strings.Join(missing, ", "))
}
