package catalog

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"workspace-collections/internal/naming"
	"workspace-collections/internal/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_AllSchemas(t *testing.T) {
	cat := Default()

	require.Equal(t, len(schema.All), cat.Len())
	entries := cat.Entries()
	for i, name := range schema.All {
		assert.Equal(t, name.String(), entries[i].Schema)
		assert.Equal(t, naming.Default().CollectionName(name), entries[i].Collection)
		assert.Equal(t, string(name.Section()), entries[i].Section)
		assert.True(t, entries[i].Registered)
		assert.Nil(t, entries[i].Exists)
	}
}

func TestBuild_SkipsDuplicatesAndEmpty(t *testing.T) {
	cat := Build(nil, []schema.Name{schema.Task, "", schema.Task, schema.User}, nil)
	assert.Equal(t, []string{"tasks", "users"}, cat.Collections())
}

func TestBuild_ResolvesCollisions(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	namer := naming.New(naming.Config{
		PluralOverrides: map[string]string{"comment": "activities"},
	}, logger)

	cat := Build(namer, []schema.Name{schema.Activity, schema.Comment}, logger)

	assert.Equal(t, []string{"activities", "activities2"}, cat.Collections())
	assert.Contains(t, buf.String(), "collection name collision detected")

	entry, err := cat.Resolve("activities2")
	require.NoError(t, err)
	assert.Equal(t, "Comment", entry.Schema)
}

func TestEntries_ReturnsCopy(t *testing.T) {
	cat := Default()
	entries := cat.Entries()
	entries[0].Collection = "mutated"

	assert.Equal(t, "organizations", cat.Entries()[0].Collection)
}

func TestLookup(t *testing.T) {
	cat := Default()

	tests := []struct {
		name       string
		input      string
		schema     string
		collection string
		registered bool
	}{
		{"registered", "Task", "Task", "tasks", true},
		{"registered lowercase", "keyresult", "KeyResult", "keyresults", true},
		{"registered padded", "  USER ", "User", "users", true},
		{"unregistered", "Box", "Box", "boxes", false},
		{"unregistered irregular", "person", "person", "people", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := cat.Lookup(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.schema, entry.Schema)
			assert.Equal(t, tt.collection, entry.Collection)
			assert.Equal(t, tt.registered, entry.Registered)
		})
	}
}

func TestLookup_Empty(t *testing.T) {
	_, err := Default().Lookup("   ")
	assert.True(t, errors.Is(err, naming.ErrEmptySchemaName))
}

func TestResolve(t *testing.T) {
	cat := Default()

	entry, err := cat.Resolve("Categories")
	require.NoError(t, err)
	assert.Equal(t, "Category", entry.Schema)
	assert.True(t, entry.Registered)

	entry, err = cat.Resolve("boxes")
	assert.True(t, errors.Is(err, ErrUnknownCollection))
	assert.Equal(t, "box", entry.Schema)
	assert.Equal(t, "boxes", entry.Collection)
	assert.False(t, entry.Registered)

	_, err = cat.Resolve("")
	assert.True(t, errors.Is(err, ErrUnknownCollection))
}

func TestPage(t *testing.T) {
	cat := Default()

	entries, page := cat.Page(2, 5)
	require.Len(t, entries, 5)
	assert.Equal(t, "KeyResult", entries[0].Schema)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, len(schema.All), page.Total)
	assert.Equal(t, 3, page.TotalPages)

	entries, _ = cat.Page(3, 5)
	assert.Len(t, entries, 2)

	entries, _ = cat.Page(10, 5)
	assert.Empty(t, entries)
}

func TestWithStorage(t *testing.T) {
	cat := Build(nil, []schema.Name{schema.Task, schema.User}, nil)
	docs := int64(7)

	withFacts := cat.WithStorage(map[string]StorageFact{
		"tasks": {Exists: true, Documents: &docs},
	})

	entries := withFacts.Entries()
	require.NotNil(t, entries[0].Exists)
	assert.True(t, *entries[0].Exists)
	require.NotNil(t, entries[0].Documents)
	assert.Equal(t, int64(7), *entries[0].Documents)

	require.NotNil(t, entries[1].Exists)
	assert.False(t, *entries[1].Exists)
	assert.Nil(t, entries[1].Documents)

	// Original catalog is untouched.
	assert.Nil(t, cat.Entries()[0].Exists)
}
