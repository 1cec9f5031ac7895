// Package graphqlapi exposes the collection catalog as a read-only GraphQL schema.
package graphqlapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"workspace-collections/internal/catalog"
	"workspace-collections/internal/naming"
	"workspace-collections/internal/observability"
	"workspace-collections/internal/schema"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/handler"
)

const surface = "graphql"

// CatalogSource provides the catalog to query. *catalog.Manager satisfies it.
type CatalogSource interface {
	Catalog() *catalog.Catalog
}

// Config configures the GraphQL schema and handler.
type Config struct {
	Source          CatalogSource
	DefaultPageSize int
	MaxPageSize     int
	GraphiQL        bool
}

// ResolveResult pairs a resolved entry with whether a registered schema owns it.
type ResolveResult struct {
	Found bool
	Entry catalog.Entry
}

// SchemaInfo describes one registered schema.
type SchemaInfo struct {
	Name       string
	Section    string
	Collection string
}

type builder struct {
	source          CatalogSource
	defaultPageSize int
	maxPageSize     int
}

// NewSchema builds the GraphQL schema over cfg.Source.
func NewSchema(cfg Config) (graphql.Schema, error) {
	if cfg.Source == nil {
		return graphql.Schema{}, errors.New("graphqlapi: catalog source is required")
	}
	b := &builder{
		source:          cfg.Source,
		defaultPageSize: cfg.DefaultPageSize,
		maxPageSize:     cfg.MaxPageSize,
	}
	if b.defaultPageSize <= 0 {
		b.defaultPageSize = 20
	}
	if b.maxPageSize < b.defaultPageSize {
		b.maxPageSize = max(b.defaultPageSize, 100)
	}
	return graphql.NewSchema(graphql.SchemaConfig{Query: b.queryType()})
}

// NewHandler returns the HTTP handler serving the schema on GET and POST.
func NewHandler(cfg Config) (http.Handler, error) {
	s, err := NewSchema(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build GraphQL schema: %w", err)
	}
	return handler.New(&handler.Config{
		Schema:   &s,
		Pretty:   true,
		GraphiQL: cfg.GraphiQL,
	}), nil
}

func (b *builder) queryType() *graphql.Object {
	entryType := graphql.NewObject(graphql.ObjectConfig{
		Name:        "CollectionEntry",
		Description: "A schema and the collection that stores it.",
		Fields: graphql.Fields{
			"schema":     &graphql.Field{Type: graphql.NewNonNull(graphql.String), Resolve: entryField(func(e catalog.Entry) any { return e.Schema })},
			"collection": &graphql.Field{Type: graphql.NewNonNull(graphql.String), Resolve: entryField(func(e catalog.Entry) any { return e.Collection })},
			"section": &graphql.Field{Type: graphql.String, Resolve: entryField(func(e catalog.Entry) any {
				if e.Section == "" {
					return nil
				}
				return e.Section
			})},
			"registered": &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean), Resolve: entryField(func(e catalog.Entry) any { return e.Registered })},
			"exists": &graphql.Field{
				Type:        graphql.Boolean,
				Description: "Whether the collection table exists. Null when storage is not inspected.",
				Resolve: entryField(func(e catalog.Entry) any {
					if e.Exists == nil {
						return nil
					}
					return *e.Exists
				}),
			},
			"documents": &graphql.Field{
				Type:        graphql.Float,
				Description: "Row count of the collection table. Null unless documents are counted.",
				Resolve: entryField(func(e catalog.Entry) any {
					if e.Documents == nil {
						return nil
					}
					return float64(*e.Documents)
				}),
			},
		},
	})

	paginationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Pagination",
		Fields: graphql.Fields{
			"page":       &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"pageSize":   &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"total":      &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"totalPages": &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
		},
	})

	pageType := graphql.NewObject(graphql.ObjectConfig{
		Name: "CollectionPage",
		Fields: graphql.Fields{
			"items":      &graphql.Field{Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(entryType)))},
			"pagination": &graphql.Field{Type: graphql.NewNonNull(paginationType)},
		},
	})

	resolveType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ResolveResult",
		Fields: graphql.Fields{
			"found": &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
			"entry": &graphql.Field{Type: graphql.NewNonNull(entryType)},
		},
	})

	schemaInfoType := graphql.NewObject(graphql.ObjectConfig{
		Name: "SchemaInfo",
		Fields: graphql.Fields{
			"name":       &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"section":    &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"collection": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		},
	})

	return graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"collections": &graphql.Field{
				Type: graphql.NewNonNull(pageType),
				Args: graphql.FieldConfigArgument{
					"page":     &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 1},
					"pageSize": &graphql.ArgumentConfig{Type: graphql.Int},
				},
				Resolve: b.resolveCollections,
			},
			"collection": &graphql.Field{
				Type:    graphql.NewNonNull(entryType),
				Args:    graphql.FieldConfigArgument{"schema": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)}},
				Resolve: b.resolveCollection,
			},
			"resolve": &graphql.Field{
				Type:    graphql.NewNonNull(resolveType),
				Args:    graphql.FieldConfigArgument{"collection": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)}},
				Resolve: b.resolveResolve,
			},
			"schemas": &graphql.Field{
				Type:        graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(schemaInfoType))),
				Description: "Registered schemas, optionally limited to one section.",
				Args:        graphql.FieldConfigArgument{"section": &graphql.ArgumentConfig{Type: graphql.String}},
				Resolve:     b.resolveSchemas,
			},
		},
	})
}

func entryField(get func(catalog.Entry) any) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		switch e := p.Source.(type) {
		case catalog.Entry:
			return get(e), nil
		case *catalog.Entry:
			return get(*e), nil
		}
		return nil, nil
	}
}

type pageResult struct {
	Items      []catalog.Entry
	Pagination paginationResult
}

type paginationResult struct {
	Page       int
	PageSize   int
	Total      int
	TotalPages int
}

func (b *builder) resolveCollections(p graphql.ResolveParams) (interface{}, error) {
	page, _ := p.Args["page"].(int)
	pageSize, ok := p.Args["pageSize"].(int)
	if !ok {
		pageSize = b.defaultPageSize
	}
	if page < 1 {
		return nil, errors.New("page must be a positive integer")
	}
	if pageSize < 1 {
		return nil, errors.New("pageSize must be a positive integer")
	}

	items, pagination := b.source.Catalog().Page(page, min(pageSize, b.maxPageSize))
	return pageResult{
		Items: items,
		Pagination: paginationResult{
			Page:       pagination.Page,
			PageSize:   pagination.PageSize,
			Total:      pagination.Total,
			TotalPages: pagination.TotalPages,
		},
	}, nil
}

func (b *builder) resolveCollection(p graphql.ResolveParams) (interface{}, error) {
	raw, _ := p.Args["schema"].(string)
	entry, err := b.source.Catalog().Lookup(raw)
	if errors.Is(err, naming.ErrEmptySchemaName) {
		return nil, errors.New("schema name is required")
	}
	if err != nil {
		return nil, err
	}
	observability.APIMetricsFromContext(p.Context).RecordLookup(p.Context, surface, entry.Registered)
	return entry, nil
}

func (b *builder) resolveResolve(p graphql.ResolveParams) (interface{}, error) {
	raw, _ := p.Args["collection"].(string)
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("collection name is required")
	}
	entry, err := b.source.Catalog().Resolve(raw)
	found := err == nil
	observability.APIMetricsFromContext(p.Context).RecordResolve(p.Context, surface, found)
	if err != nil && !errors.Is(err, catalog.ErrUnknownCollection) {
		return nil, err
	}
	return ResolveResult{Found: found, Entry: entry}, nil
}

func (b *builder) resolveSchemas(p graphql.ResolveParams) (interface{}, error) {
	names := schema.All
	if raw, ok := p.Args["section"].(string); ok && raw != "" {
		names = schema.InSection(schema.Section(strings.ToLower(strings.TrimSpace(raw))))
	}

	cat := b.source.Catalog()
	out := make([]SchemaInfo, 0, len(names))
	for _, name := range names {
		entry, ok := cat.Entry(name)
		if !ok {
			continue
		}
		out = append(out, SchemaInfo{
			Name:       name.String(),
			Section:    string(name.Section()),
			Collection: entry.Collection,
		})
	}
	return out, nil
}
