package naming

import (
	"fmt"
	"log/slog"
)

// CollisionResolver tracks registered collection names and resolves collisions
// by applying numeric suffixes when duplicates are detected. Overrides can map
// two schemas onto the same plural; the second one gets "<name>2".
// It is not safe for concurrent use; build one per catalog.
type CollisionResolver struct {
	seen   map[string]string // collection name → source schema
	logger *slog.Logger
}

// NewCollisionResolver creates a new collision resolver.
func NewCollisionResolver(logger *slog.Logger) *CollisionResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &CollisionResolver{
		seen:   make(map[string]string),
		logger: logger,
	}
}

// RegisterCollection registers a collection name and returns the resolved name.
// If a collision occurs, applies a numeric suffix and logs a warning.
func (c *CollisionResolver) RegisterCollection(collection, source string) string {
	if _, exists := c.seen[collection]; !exists {
		c.seen[collection] = source
		return collection
	}

	existingSource := c.seen[collection]
	c.logger.Warn("collection name collision detected, applying suffix",
		slog.String("collection", collection),
		slog.String("existing_source", existingSource),
		slog.String("new_source", source),
	)

	for i := 2; ; i++ {
		suffixed := fmt.Sprintf("%s%d", collection, i)
		if _, exists := c.seen[suffixed]; !exists {
			c.seen[suffixed] = source
			return suffixed
		}
	}
}

// Exists reports whether a collection name has been registered.
func (c *CollisionResolver) Exists(collection string) bool {
	_, ok := c.seen[collection]
	return ok
}

// Source returns the schema that registered a collection name.
func (c *CollisionResolver) Source(collection string) (string, bool) {
	source, ok := c.seen[collection]
	return source, ok
}
