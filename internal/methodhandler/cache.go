// internal/methodhandler/cache.go
package methodhandler

import (
	"fmt"
	"sort"
)

// NameKind distinguishes singly fetched elements from members of a fetched collection.
type NameKind string

const (
	KindScalar           NameKind = "scalar"
	KindCollectionMember NameKind = "collection-member"
)

const (
	scalarPrefix     = "el"
	collectionPrefix = "els"
)

// Entry is the cached view of one remote element.
type Entry struct {
	ID          string
	DisplayName string
	Kind        NameKind
	// CollectionName and CollectionIndex are only meaningful for KindCollectionMember.
	CollectionName  string
	CollectionIndex int
	Strategy        string
	Selector        string

	handle Element
}

// Named reports whether the entry currently carries a display name.
func (e Entry) Named() bool { return e.DisplayName != "" }

// counter hands out sequential names with a fixed prefix, starting at 1.
type counter struct {
	prefix string
	next   int
}

func newCounter(prefix string) counter {
	return counter{prefix: prefix, next: 1}
}

// take consumes the current value and returns the name built from it.
func (c *counter) take() string {
	name := fmt.Sprintf("%s%d", c.prefix, c.next)
	c.next++
	return name
}

func (c *counter) reset() { c.next = 1 }

// elementCache is an arena of entries keyed by driver id, plus the naming state.
type elementCache struct {
	entries     map[string]Entry
	scalars     counter
	collections counter
}

func newElementCache() *elementCache {
	return &elementCache{
		entries:     make(map[string]Entry),
		scalars:     newCounter(scalarPrefix),
		collections: newCounter(collectionPrefix),
	}
}

func (c *elementCache) get(id string) (Entry, bool) {
	e, ok := c.entries[id]
	return e, ok
}

// put stores e, replacing any entry with the same id.
func (c *elementCache) put(e Entry) {
	c.entries[e.ID] = e
}

// assignNameIfAbsent returns e with a scalar display name, consuming the scalar
// counter only when e is an unnamed scalar. The bool reports whether a name was assigned.
func (c *elementCache) assignNameIfAbsent(e Entry) (Entry, bool) {
	if e.Kind != KindScalar || e.Named() {
		return e, false
	}
	e.DisplayName = c.scalars.take()
	return e, true
}

// clearNames drops every display name and restarts both counters.
func (c *elementCache) clearNames() {
	for id, e := range c.entries {
		e.DisplayName = ""
		c.entries[id] = e
	}
	c.scalars.reset()
	c.collections.reset()
}

// snapshot returns a copy of all entries ordered by id.
func (c *elementCache) snapshot() []Entry {
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
