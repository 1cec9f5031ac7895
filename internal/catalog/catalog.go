// Package catalog derives the collection catalog of the workspace: one entry per
// known schema, its collection name, and optionally what storage reports about it.
package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"workspace-collections/internal/apiresponse"
	"workspace-collections/internal/naming"
	"workspace-collections/internal/schema"
)

// ErrUnknownCollection is returned by Resolve for collections no registered schema maps to.
var ErrUnknownCollection = errors.New("unknown collection")

// Entry describes one schema and the collection that stores it.
type Entry struct {
	Schema     string `json:"schema"`
	Collection string `json:"collection"`
	Section    string `json:"section,omitempty"`
	Registered bool   `json:"registered"`
	// Exists and Documents are only set once storage has been inspected.
	Exists    *bool  `json:"exists,omitempty"`
	Documents *int64 `json:"documents,omitempty"`
}

// Catalog is an immutable, ordered set of entries.
type Catalog struct {
	namer        *naming.Namer
	entries      []Entry
	bySchema     map[string]int
	byCollection map[string]int
}

// Build derives an entry for each name, in order. Duplicate names are skipped;
// collection collisions (possible through overrides) are suffixed.
func Build(namer *naming.Namer, names []schema.Name, logger *slog.Logger) *Catalog {
	if namer == nil {
		namer = naming.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}

	resolver := naming.NewCollisionResolver(logger)
	c := &Catalog{
		namer:        namer,
		entries:      make([]Entry, 0, len(names)),
		bySchema:     make(map[string]int, len(names)),
		byCollection: make(map[string]int, len(names)),
	}

	for _, name := range names {
		key := strings.ToLower(name.String())
		if key == "" {
			continue
		}
		if _, dup := c.bySchema[key]; dup {
			continue
		}
		collection := resolver.RegisterCollection(namer.CollectionName(name), name.String())
		c.bySchema[key] = len(c.entries)
		c.byCollection[collection] = len(c.entries)
		c.entries = append(c.entries, Entry{
			Schema:     name.String(),
			Collection: collection,
			Section:    string(name.Section()),
			Registered: true,
		})
	}

	return c
}

// Default builds the catalog of every known schema with default naming.
func Default() *Catalog {
	return Build(naming.Default(), schema.All, nil)
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Entries returns a copy of all entries in order.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Collections returns the collection names in order.
func (c *Catalog) Collections() []string {
	out := make([]string, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.Collection
	}
	return out
}

// Entry returns the entry of a registered schema.
func (c *Catalog) Entry(name schema.Name) (Entry, bool) {
	idx, ok := c.bySchema[strings.ToLower(name.String())]
	if !ok {
		return Entry{}, false
	}
	return c.entries[idx], true
}

// Lookup returns the entry for any identifier. Registered schemas (matched
// case-insensitively) return their catalog entry; anything else is named by
// the namer and returned with Registered=false.
func (c *Catalog) Lookup(raw string) (Entry, error) {
	if idx, ok := c.bySchema[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return c.entries[idx], nil
	}

	collection, err := c.namer.CollectionNameFor(raw)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		Schema:     strings.TrimSpace(raw),
		Collection: collection,
	}, nil
}

// Resolve finds the registered entry that owns a collection. For unknown
// collections it returns ErrUnknownCollection together with an unregistered
// entry whose Schema is the singular form of the collection.
func (c *Catalog) Resolve(collection string) (Entry, error) {
	key := strings.ToLower(strings.TrimSpace(collection))
	if key == "" {
		return Entry{}, fmt.Errorf("%w: empty collection name", ErrUnknownCollection)
	}
	if idx, ok := c.byCollection[key]; ok {
		return c.entries[idx], nil
	}
	return Entry{
		Schema:     c.namer.SchemaWordFor(key),
		Collection: key,
	}, fmt.Errorf("%w: %q", ErrUnknownCollection, collection)
}

// Page returns a window of entries. Page is 1-based.
func (c *Catalog) Page(page, pageSize int) ([]Entry, apiresponse.Pagination) {
	p, start, end := apiresponse.NewPagination(page, pageSize, len(c.entries))
	out := make([]Entry, end-start)
	copy(out, c.entries[start:end])
	return out, p
}

// WithStorage returns a copy of the catalog with storage facts attached to
// the entries whose collection appears in facts. Entries missing from facts
// are marked as not existing.
func (c *Catalog) WithStorage(facts map[string]StorageFact) *Catalog {
	out := &Catalog{
		namer:        c.namer,
		entries:      make([]Entry, len(c.entries)),
		bySchema:     c.bySchema,
		byCollection: c.byCollection,
	}
	for i, e := range c.entries {
		fact := facts[e.Collection]
		exists := fact.Exists
		e.Exists = &exists
		e.Documents = nil
		if fact.Documents != nil {
			docs := *fact.Documents
			e.Documents = &docs
		}
		out.entries[i] = e
	}
	return out
}
