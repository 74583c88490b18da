// internal/methodhandler/property_test.go
package methodhandler_test

import (
	"context"
	"fmt"
	"testing"

	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/xkilldash9x/scalpel-inspector/internal/methodhandler"
)

// TestHandler_CacheProperties checks, over generated operation sequences, that
// every fetched element stays cached across restarts, that scalars are named
// once acted upon and that collection members carry their collection's name
// and position.
func TestHandler_CacheProperties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		h := methodhandler.New(&fakeDriver{}, zap.NewNop(), methodhandler.WithSleeper(noSleep))

		fetched := make(map[string]bool)
		steps := rapid.IntRange(1, 40).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.SampledFrom([]string{"fetch", "fetchAll", "execute", "restart"}).Draw(rt, "op") {
			case "fetch":
				entry, err := h.FetchElement(ctx, "id", "x")
				if err != nil {
					rt.Fatalf("fetch element: %v", err)
				}
				fetched[entry.ID] = true

			case "fetchAll":
				sel := rapid.StringN(0, 7, -1).Draw(rt, "selector")
				col, err := h.FetchElements(ctx, "css selector", sel)
				if err != nil {
					rt.Fatalf("fetch elements: %v", err)
				}
				for idx, m := range col.Elements {
					if m.CollectionName != col.VariableName || m.CollectionIndex != idx {
						rt.Fatalf("member %s is %s[%d], want %s[%d]", m.ID, m.CollectionName, m.CollectionIndex, col.VariableName, idx)
					}
					fetched[m.ID] = true
				}

			case "execute":
				entries := h.Entries()
				if len(entries) == 0 {
					continue
				}
				target := entries[rapid.IntRange(0, len(entries)-1).Draw(rt, "target")]
				res, err := h.ExecuteElementCommand(ctx, target.ID, "click", nil)
				if err != nil {
					rt.Fatalf("execute on %s: %v", target.ID, err)
				}
				if target.Kind == methodhandler.KindScalar && !res.Element.Named() {
					rt.Fatalf("scalar %s still unnamed after a command", target.ID)
				}

			case "restart":
				h.Restart()
			}

			if got := len(h.Entries()); got != len(fetched) {
				rt.Fatalf("cache holds %d entries, fetched %d distinct elements", got, len(fetched))
			}
		}
	})
}

// TestHandler_ScalarNamesAreSequential checks that acting on n fresh scalars
// names them el1..eln in the order they are first used.
func TestHandler_ScalarNamesAreSequential(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		h := methodhandler.New(&fakeDriver{}, zap.NewNop(), methodhandler.WithSleeper(noSleep))

		n := rapid.IntRange(1, 12).Draw(rt, "n")
		ids := make([]string, n)
		for i := range ids {
			entry, err := h.FetchElement(ctx, "id", "x")
			if err != nil {
				rt.Fatalf("fetch element: %v", err)
			}
			ids[i] = entry.ID
		}

		order := rapid.Permutation(ids).Draw(rt, "order")
		for i, id := range order {
			res, err := h.ExecuteElementCommand(ctx, id, "click", nil)
			if err != nil {
				rt.Fatalf("execute on %s: %v", id, err)
			}
			if want := fmt.Sprintf("el%d", i+1); res.Element.DisplayName != want {
				rt.Fatalf("element %s named %q, want %q", id, res.Element.DisplayName, want)
			}
		}
	})
}
