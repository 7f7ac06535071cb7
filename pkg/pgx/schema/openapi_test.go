package schema

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/edgeflare/sandman/pkg/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource map[string]Table

func (s staticSource) Snapshot() map[string]Table { return s }

func TestGenerate(t *testing.T) {
	source := staticSource{
		"shop.book": bookTable,
		"shop.edition": {
			Schema:      "shop",
			Name:        "edition",
			Columns:     []Column{{Name: "book_id", DataType: "integer"}, {Name: "number", DataType: "smallint"}},
			PrimaryKeys: []string{"book_id", "number"},
		},
		"shop.cheap_book": {Schema: "shop", Name: "cheap_book", Type: TypeView, Columns: []Column{{Name: "id", DataType: "integer"}}},
		"other.book":      {Schema: "other", Name: "book", PrimaryKeys: []string{"id"}, Columns: []Column{{Name: "id", DataType: "integer"}}},
	}

	doc := NewOpenAPIGenerator(source, "shop", "https://api.example.com/", OpenAPIInfo{Title: "Shop", Version: "1"}).Generate()
	assert.Equal(t, "3.1.0", doc["openapi"])
	assert.Equal(t, []map[string]any{{"url": "https://api.example.com"}}, doc["servers"])

	paths := doc["paths"].(map[string]any)
	assert.Len(t, paths, 6)
	for _, p := range []string{"/books", "/books/meta", "/books/{id}", "/editions", "/editions/meta", "/editions/{book_id}/{number}"} {
		assert.Contains(t, paths, p)
	}
	assert.NotContains(t, paths, "/cheap_books")

	record := paths["/books/{id}"].(map[string]any)
	for _, method := range []string{"get", "patch", "put", "delete"} {
		assert.Contains(t, record, method)
	}

	schemas := doc["components"].(map[string]any)["schemas"].(map[string]any)
	book := schemas["book"].(map[string]any)
	props := book["properties"].(map[string]any)
	assert.Equal(t, "integer", props["id"].(map[string]any)["type"])
	price := props["price"].(map[string]any)
	assert.Equal(t, "string", price["type"])
	assert.Equal(t, "decimal", price["format"])
	assert.Equal(t, true, price["nullable"])
	assert.Contains(t, props, resource.LinksKey)
	assert.Equal(t, []string{"id", "title"}, book["required"])
}

func TestGenerateInflected(t *testing.T) {
	source := staticSource{"public.person": {
		Schema:      "public",
		Name:        "person",
		Columns:     []Column{{Name: "id", DataType: "uuid"}},
		PrimaryKeys: []string{"id"},
	}}
	g := NewOpenAPIGenerator(source, "public", "", OpenAPIInfo{}).
		WithEndpoint(resource.InflectedEndpoint).
		WithCollectionKey("items")
	doc := g.Generate()

	paths := doc["paths"].(map[string]any)
	assert.Contains(t, paths, "/people/{id}")
	assert.NotContains(t, doc, "servers")

	list := paths["/people"].(map[string]any)["get"].(map[string]any)
	content := list["responses"].(map[string]any)["200"].(map[string]any)["content"].(map[string]any)
	schema := content["application/json"].(map[string]any)["schema"].(map[string]any)
	assert.Contains(t, schema["properties"], "items")
}

func TestOpenAPIServeHTTP(t *testing.T) {
	g := NewOpenAPIGenerator(staticSource{"shop.book": bookTable}, "shop", "", OpenAPIInfo{Title: "Shop"})

	w := httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "Shop", doc["info"].(map[string]any)["title"])
}
