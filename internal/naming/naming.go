package naming

import (
	"errors"
	"log/slog"
	"strings"

	"workspace-collections/internal/schema"
)

// ErrEmptySchemaName is returned when a collection name is requested for an
// empty or whitespace-only identifier.
var ErrEmptySchemaName = errors.New("schema name is empty")

// Namer maps schema identifiers to collection names. It holds no mutable
// state after construction and is safe for concurrent use.
type Namer struct {
	config     Config
	logger     *slog.Logger
	pluralizer Pluralizer
}

// Option customizes a Namer.
type Option func(*Namer)

// WithPluralizer swaps the pluralization rules used after overrides.
func WithPluralizer(p Pluralizer) Option {
	return func(n *Namer) {
		if p != nil {
			n.pluralizer = p
		}
	}
}

// New creates a Namer with the given configuration
func New(cfg Config, logger *slog.Logger, opts ...Option) *Namer {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.normalized()
	// A plural override implies its inverse unless one was configured explicitly.
	for singular, plural := range cfg.PluralOverrides {
		if _, ok := cfg.SingularOverrides[plural]; !ok {
			cfg.SingularOverrides[plural] = singular
		}
	}

	n := &Namer{
		config:     cfg,
		logger:     logger,
		pluralizer: InflectionPluralizer{},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Default returns a Namer with default configuration
func Default() *Namer {
	return New(DefaultConfig(), nil)
}

// Config returns a copy of the normalized configuration.
func (n *Namer) Config() Config {
	return Config{
		PluralOverrides:   copyMap(n.config.PluralOverrides),
		SingularOverrides: copyMap(n.config.SingularOverrides),
	}
}

// CollectionName returns the collection that stores entities of the given schema.
// Example: schema.Category -> "categories"
func (n *Namer) CollectionName(name schema.Name) string {
	word := strings.ToLower(strings.TrimSpace(string(name)))
	if word == "" {
		return ""
	}
	return n.Pluralize(word)
}

// CollectionNameFor derives a collection name from an arbitrary identifier.
// Identifiers outside the schema registry are not rejected; they fall through
// to the pluralizer's suffix rules.
// Example: "Box" -> "boxes", "USER" -> "users"
func (n *Namer) CollectionNameFor(raw string) (string, error) {
	word := strings.ToLower(strings.TrimSpace(raw))
	if word == "" {
		return "", ErrEmptySchemaName
	}
	collection := n.Pluralize(word)
	n.logger.Debug("derived collection name",
		slog.String("schema", raw),
		slog.String("collection", collection),
	)
	return collection, nil
}

// SchemaWordFor returns the lowercase singular word a collection was derived from.
// Example: "categories" -> "category"
func (n *Namer) SchemaWordFor(collection string) string {
	word := strings.ToLower(strings.TrimSpace(collection))
	if word == "" {
		return ""
	}
	return n.Singularize(word)
}

func copyMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
