// internal/methodhandler/handler.go
package methodhandler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultSettleInterval is how long the handler waits after a command before
// capturing a snapshot, so asynchronous UI changes have time to land.
const DefaultSettleInterval = 500 * time.Millisecond

// Methods that produce the snapshot payloads themselves. ExecuteMethod skips
// invoking them since the snapshot step fetches the same data right after.
const (
	MethodSource     = "source"
	MethodScreenshot = "screenshot"
)

// VariableTypeArray tags a collection result.
const VariableTypeArray = "array"

// Sleeper pauses for d, returning early only if ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Handler keeps a per-session element cache with readable variable names and
// runs the execute-then-resnapshot protocol over a Driver.
//
// A Handler is not safe for concurrent use. Callers must serialize calls.
type Handler struct {
	id     string
	driver Driver
	logger *zap.Logger
	cache  *elementCache

	settle time.Duration
	sleep  Sleeper
}

// Option configures a Handler.
type Option func(*Handler)

// WithSettleInterval overrides the delay inserted before every snapshot.
func WithSettleInterval(d time.Duration) Option {
	return func(h *Handler) {
		if d >= 0 {
			h.settle = d
		}
	}
}

// WithSleeper replaces the function used to wait out the settle interval.
func WithSleeper(s Sleeper) Option {
	return func(h *Handler) {
		if s != nil {
			h.sleep = s
		}
	}
}

// New creates a Handler over driver.
func New(driver Driver, logger *zap.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.New().String()
	h := &Handler{
		id:     id,
		driver: driver,
		logger: logger.Named("method_handler").With(zap.String("handler_id", id)),
		cache:  newElementCache(),
		settle: DefaultSettleInterval,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ID returns the handler's session-scoped identifier.
func (h *Handler) ID() string { return h.id }

// Collection is the result of a multi-element fetch.
type Collection struct {
	VariableName string
	VariableType string
	Strategy     string
	Selector     string
	Elements     []Entry
}

// ElementCommandResult is returned by ExecuteElementCommand.
type ElementCommandResult struct {
	Snapshot
	Element Entry
	Result  any
}

// MethodResult is returned by ExecuteMethod.
type MethodResult struct {
	Snapshot
	Result any
}

// FetchElement looks up a single element and caches it without a display name.
// No match is not an error: the returned entry is nil.
func (h *Handler) FetchElement(ctx context.Context, strategy, selector string) (*Entry, error) {
	el, err := h.driver.ElementOrNull(ctx, strategy, selector)
	if err != nil {
		return nil, fmt.Errorf("finding element by %s %q: %w", strategy, selector, err)
	}
	if el == nil {
		h.logger.Debug("No element matched.", zap.String("strategy", strategy), zap.String("selector", selector))
		return nil, nil
	}

	entry := Entry{
		ID:       el.ID(),
		Kind:     KindScalar,
		Strategy: strategy,
		Selector: selector,
		handle:   el,
	}
	if _, exists := h.cache.get(entry.ID); exists {
		h.logger.Debug("Replacing cached element with the same id.", zap.String("element_id", entry.ID))
	}
	h.cache.put(entry)

	h.logger.Debug("Cached element.", zap.String("element_id", entry.ID), zap.String("strategy", strategy), zap.String("selector", selector))
	return &entry, nil
}

// FetchElements looks up all matching elements and names the result set right
// away (els1, els2, ...), even when it is empty.
func (h *Handler) FetchElements(ctx context.Context, strategy, selector string) (*Collection, error) {
	els, err := h.driver.Elements(ctx, strategy, selector)
	if err != nil {
		return nil, fmt.Errorf("finding elements by %s %q: %w", strategy, selector, err)
	}

	name := h.cache.collections.take()
	members := make([]Entry, 0, len(els))
	for i, el := range els {
		entry := Entry{
			ID:              el.ID(),
			DisplayName:     name,
			Kind:            KindCollectionMember,
			CollectionName:  name,
			CollectionIndex: i,
			Strategy:        strategy,
			Selector:        selector,
			handle:          el,
		}
		h.cache.put(entry)
		members = append(members, entry)
	}

	h.logger.Debug("Cached element collection.",
		zap.String("variable", name),
		zap.Int("count", len(members)),
		zap.String("strategy", strategy),
		zap.String("selector", selector),
	)

	return &Collection{
		VariableName: name,
		VariableType: VariableTypeArray,
		Strategy:     strategy,
		Selector:     selector,
		Elements:     members,
	}, nil
}

// ExecuteElementCommand runs method on a cached element, naming it first if it
// has never been acted upon, then waits for the page to settle and snapshots it.
func (h *Handler) ExecuteElementCommand(ctx context.Context, elementID, method string, args []any) (*ElementCommandResult, error) {
	entry, ok := h.cache.get(elementID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownElement, elementID)
	}

	if named, assigned := h.cache.assignNameIfAbsent(entry); assigned {
		entry = named
		h.cache.put(entry)
		h.logger.Debug("Assigned variable name.", zap.String("element_id", elementID), zap.String("variable", entry.DisplayName))
	}

	log := h.logger.With(zap.String("element_id", elementID), zap.String("method", method))
	log.Debug("Invoking element method.")

	res, err := entry.handle.Invoke(ctx, method, args)
	if err != nil {
		return nil, fmt.Errorf("invoking %q on element %s: %w", method, elementID, err)
	}

	snap, err := h.settleAndSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	return &ElementCommandResult{Snapshot: snap, Element: entry, Result: res}, nil
}

// ExecuteMethod runs a session-scoped method, then waits for the page to settle
// and snapshots it. Source and screenshot requests are served by the snapshot alone.
func (h *Handler) ExecuteMethod(ctx context.Context, method string, args []any) (*MethodResult, error) {
	var res any = map[string]any{}
	if method != MethodSource && method != MethodScreenshot {
		h.logger.Debug("Invoking driver method.", zap.String("method", method))
		out, err := h.driver.Invoke(ctx, method, args)
		if err != nil {
			return nil, fmt.Errorf("invoking %q on driver: %w", method, err)
		}
		res = out
	}

	snap, err := h.settleAndSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return &MethodResult{Snapshot: snap, Result: res}, nil
}

// Restart clears all variable names and restarts both counters. Cached
// elements stay addressable by id.
func (h *Handler) Restart() {
	h.cache.clearNames()
	h.logger.Debug("Variable names cleared.", zap.Int("cached_elements", len(h.cache.entries)))
}

// Lookup returns the cached entry for id.
func (h *Handler) Lookup(id string) (Entry, bool) {
	return h.cache.get(id)
}

// Entries returns a copy of every cached entry, ordered by id.
func (h *Handler) Entries() []Entry {
	return h.cache.snapshot()
}

func (h *Handler) settleAndSnapshot(ctx context.Context) (Snapshot, error) {
	if err := h.sleep(ctx, h.settle); err != nil {
		return Snapshot{}, fmt.Errorf("waiting for page to settle: %w", err)
	}
	return h.captureSnapshot(ctx)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
