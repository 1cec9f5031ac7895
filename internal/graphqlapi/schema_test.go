package graphqlapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"workspace-collections/internal/catalog"

	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	cat *catalog.Catalog
}

func (s staticSource) Catalog() *catalog.Catalog { return s.cat }

func execute(t *testing.T, cfg Config, query string) *graphql.Result {
	t.Helper()
	if cfg.Source == nil {
		cfg.Source = staticSource{cat: catalog.Default()}
	}
	s, err := NewSchema(cfg)
	require.NoError(t, err)
	return graphql.Do(graphql.Params{
		Schema:        s,
		RequestString: query,
		Context:       context.Background(),
	})
}

// asJSON round-trips the result data so assertions work on plain maps.
func asJSON(t *testing.T, result *graphql.Result) map[string]any {
	t.Helper()
	require.Empty(t, result.Errors)
	raw, err := json.Marshal(result.Data)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestNewSchema_RequiresSource(t *testing.T) {
	_, err := NewSchema(Config{})
	assert.Error(t, err)
}

func TestCollectionsQuery(t *testing.T) {
	data := asJSON(t, execute(t, Config{DefaultPageSize: 4}, `{
		collections(page: 2) {
			items { schema collection section registered exists documents }
			pagination { page pageSize total totalPages }
		}
	}`))

	page := data["collections"].(map[string]any)
	items := page["items"].([]any)
	require.Len(t, items, 4)

	first := items[0].(map[string]any)
	assert.Equal(t, "Objective", first["schema"])
	assert.Equal(t, "objectives", first["collection"])
	assert.Equal(t, "okr", first["section"])
	assert.Equal(t, true, first["registered"])
	assert.Nil(t, first["exists"])
	assert.Nil(t, first["documents"])

	assert.Equal(t, map[string]any{
		"page": float64(2), "pageSize": float64(4), "total": float64(12), "totalPages": float64(3),
	}, page["pagination"])
}

func TestCollectionsQuery_CapsPageSize(t *testing.T) {
	data := asJSON(t, execute(t, Config{DefaultPageSize: 2, MaxPageSize: 3}, `{ collections(pageSize: 50) { items { schema } pagination { pageSize } } }`))
	page := data["collections"].(map[string]any)
	assert.Len(t, page["items"], 3)
	assert.Equal(t, float64(3), page["pagination"].(map[string]any)["pageSize"])
}

func TestCollectionsQuery_RejectsNonPositivePage(t *testing.T) {
	result := execute(t, Config{}, `{ collections(page: 0) { items { schema } } }`)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0].Message, "page must be a positive integer")
}

func TestCollectionQuery(t *testing.T) {
	data := asJSON(t, execute(t, Config{}, `{
		registered: collection(schema: "keyresult") { schema collection registered }
		other: collection(schema: "Person") { schema collection registered section }
	}`))

	assert.Equal(t, map[string]any{"schema": "KeyResult", "collection": "keyresults", "registered": true}, data["registered"])
	assert.Equal(t, map[string]any{"schema": "Person", "collection": "people", "registered": false, "section": nil}, data["other"])
}

func TestCollectionQuery_EmptySchema(t *testing.T) {
	result := execute(t, Config{}, `{ collection(schema: "  ") { collection } }`)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0].Message, "schema name is required")
}

func TestCollectionQuery_StorageFacts(t *testing.T) {
	docs := int64(42)
	cat := catalog.Default().WithStorage(map[string]catalog.StorageFact{
		"tasks": {Exists: true, Documents: &docs},
	})

	data := asJSON(t, execute(t, Config{Source: staticSource{cat: cat}}, `{
		tasks: collection(schema: "Task") { exists documents }
		users: collection(schema: "User") { exists documents }
	}`))
	assert.Equal(t, map[string]any{"exists": true, "documents": float64(42)}, data["tasks"])
	assert.Equal(t, map[string]any{"exists": false, "documents": nil}, data["users"])
}

func TestResolveQuery(t *testing.T) {
	data := asJSON(t, execute(t, Config{}, `{
		known: resolve(collection: "categories") { found entry { schema } }
		unknown: resolve(collection: "boxes") { found entry { schema collection registered } }
	}`))

	assert.Equal(t, map[string]any{"found": true, "entry": map[string]any{"schema": "Category"}}, data["known"])
	assert.Equal(t, map[string]any{
		"found": false,
		"entry": map[string]any{"schema": "box", "collection": "boxes", "registered": false},
	}, data["unknown"])
}

func TestSchemasQuery(t *testing.T) {
	data := asJSON(t, execute(t, Config{}, `{
		all: schemas { name }
		okr: schemas(section: "OKR") { name section collection }
	}`))

	assert.Len(t, data["all"], 12)
	assert.Equal(t, []any{
		map[string]any{"name": "Objective", "section": "okr", "collection": "objectives"},
		map[string]any{"name": "KeyResult", "section": "okr", "collection": "keyresults"},
	}, data["okr"])
}

func TestNewHandler_ServesPost(t *testing.T) {
	h, err := NewHandler(Config{Source: staticSource{cat: catalog.Default()}})
	require.NoError(t, err)

	body := strings.NewReader(`{"query":"{ collection(schema: \"Task\") { collection } }"}`)
	req := httptest.NewRequest(http.MethodPost, "/graphql", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data struct {
			Collection struct {
				Collection string `json:"collection"`
			} `json:"collection"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "tasks", resp.Data.Collection.Collection)
}
