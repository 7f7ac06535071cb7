package schema

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/edgeflare/sandman/pkg/resource"
)

// Source provides the tables an OpenAPIGenerator documents. *Cache is one.
type Source interface {
	Snapshot() map[string]Table
}

// OpenAPIInfo contains API metadata for the OpenAPI document
type OpenAPIInfo struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

// OpenAPIGenerator documents the resource routes served for the tables of
// one schema. Tables without a primary key are not served and are left out.
type OpenAPIGenerator struct {
	source        Source
	schema        string
	baseURL       string
	info          OpenAPIInfo
	endpoint      func(table string) string
	collectionKey string
}

// NewOpenAPIGenerator creates a generator for the tables of schema.
func NewOpenAPIGenerator(source Source, schema, baseURL string, info OpenAPIInfo) *OpenAPIGenerator {
	return &OpenAPIGenerator{
		source:        source,
		schema:        schema,
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		info:          info,
		endpoint:      resource.DefaultEndpoint,
		collectionKey: resource.DefaultCollectionKey,
	}
}

// WithEndpoint changes how table names map to endpoints. It must match the
// naming of the mappers the server registers.
func (g *OpenAPIGenerator) WithEndpoint(fn func(table string) string) *OpenAPIGenerator {
	g.endpoint = fn
	return g
}

// WithCollectionKey changes the key wrapping list responses.
func (g *OpenAPIGenerator) WithCollectionKey(key string) *OpenAPIGenerator {
	g.collectionKey = key
	return g
}

func (g *OpenAPIGenerator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(g.Generate())
}

// Generate builds the OpenAPI 3.1 document.
func (g *OpenAPIGenerator) Generate() map[string]any {
	paths := make(map[string]any)
	schemas := map[string]any{
		"Link": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"rel": map[string]any{"type": "string", "enum": []string{resource.RelSelf, resource.RelRelated}},
				"uri": map[string]any{"type": "string"},
			},
			"required": []string{"rel", "uri"},
		},
		"Error": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{"type": "string"},
				"code":    map[string]any{"type": "integer"},
			},
		},
	}

	for _, table := range TablesOf(g.source.Snapshot(), g.schema) {
		if len(table.PrimaryKeys) == 0 {
			continue
		}
		endpoint := "/" + g.endpoint(table.Name)
		paths[endpoint] = g.collectionOperations(table)
		paths[endpoint+"/meta"] = g.metaOperation(table)
		paths[g.recordPath(endpoint, table)] = g.recordOperations(table)
		schemas[table.Name] = g.tableSchema(table)
	}

	doc := map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":       g.info.Title,
			"description": g.info.Description,
			"version":     g.info.Version,
		},
		"paths":      paths,
		"components": map[string]any{"schemas": schemas},
	}
	if g.baseURL != "" {
		doc["servers"] = []map[string]any{{"url": g.baseURL}}
	}
	return doc
}

func ref(name string) map[string]string {
	return map[string]string{"$ref": "#/components/schemas/" + name}
}

func jsonContent(schema any) map[string]any {
	return map[string]any{"application/json": map[string]any{"schema": schema}}
}

func errorResponse(description string) map[string]any {
	return map[string]any{"description": description, "content": jsonContent(ref("Error"))}
}

func (g *OpenAPIGenerator) collectionOperations(table Table) map[string]any {
	return map[string]any{
		"get": map[string]any{
			"summary":    fmt.Sprintf("List %s", table.Name),
			"parameters": g.queryParameters(table),
			"responses": map[string]any{
				"200": map[string]any{
					"description": "Success",
					"content": jsonContent(map[string]any{
						"type": "object",
						"properties": map[string]any{
							g.collectionKey: map[string]any{"type": "array", "items": ref(table.Name)},
						},
					}),
				},
				"400": errorResponse("Bad Request"),
			},
			"tags": []string{table.Name},
		},
		"post": map[string]any{
			"summary":     fmt.Sprintf("Create a %s resource", table.Name),
			"requestBody": map[string]any{"content": jsonContent(ref(table.Name)), "required": true},
			"responses": map[string]any{
				"201": map[string]any{
					"description": "Created",
					"headers": map[string]any{
						"Location": map[string]any{"schema": map[string]string{"type": "string"}},
					},
					"content": jsonContent(ref(table.Name)),
				},
				"400": errorResponse("Bad Request"),
			},
			"tags": []string{table.Name},
		},
	}
}

func (g *OpenAPIGenerator) metaOperation(table Table) map[string]any {
	return map[string]any{
		"get": map[string]any{
			"summary": fmt.Sprintf("Describe the columns of %s", table.Name),
			"responses": map[string]any{
				"200": map[string]any{
					"description": "Column types by resource name",
					"content": jsonContent(map[string]any{
						"type":                 "object",
						"additionalProperties": map[string]any{"type": "object", "additionalProperties": map[string]string{"type": "string"}},
					}),
				},
			},
			"tags": []string{table.Name},
		},
	}
}

func (g *OpenAPIGenerator) recordOperations(table Table) map[string]any {
	params := g.keyParameters(table)
	body := map[string]any{"content": jsonContent(ref(table.Name)), "required": true}
	found := map[string]any{"description": "Success", "content": jsonContent(ref(table.Name))}

	return map[string]any{
		"get": map[string]any{
			"summary":    fmt.Sprintf("Get a %s resource", table.Name),
			"parameters": params,
			"responses":  map[string]any{"200": found, "404": errorResponse("Not Found")},
			"tags":       []string{table.Name},
		},
		"patch": map[string]any{
			"summary":     fmt.Sprintf("Update a %s resource", table.Name),
			"parameters":  params,
			"requestBody": body,
			"responses": map[string]any{
				"200": found,
				"400": errorResponse("Bad Request"),
				"404": errorResponse("Not Found"),
			},
			"tags": []string{table.Name},
		},
		"put": map[string]any{
			"summary":     fmt.Sprintf("Replace or create a %s resource", table.Name),
			"parameters":  params,
			"requestBody": body,
			"responses": map[string]any{
				"200": found,
				"201": map[string]any{"description": "Created", "content": jsonContent(ref(table.Name))},
				"400": errorResponse("Bad Request"),
			},
			"tags": []string{table.Name},
		},
		"delete": map[string]any{
			"summary":    fmt.Sprintf("Delete a %s resource", table.Name),
			"parameters": params,
			"responses": map[string]any{
				"204": map[string]string{"description": "Deleted"},
				"404": errorResponse("Not Found"),
			},
			"tags": []string{table.Name},
		},
	}
}

func (g *OpenAPIGenerator) recordPath(endpoint string, table Table) string {
	var sb strings.Builder
	sb.WriteString(endpoint)
	for _, key := range table.PrimaryKeys {
		fmt.Fprintf(&sb, "/{%s}", key)
	}
	return sb.String()
}

func (g *OpenAPIGenerator) queryParameters(table Table) []map[string]any {
	params := []map[string]any{
		{"name": "limit", "in": "query", "description": "Maximum number of resources", "schema": map[string]string{"type": "integer"}},
		{"name": "offset", "in": "query", "description": "Resources to skip", "schema": map[string]string{"type": "integer"}},
		{"name": "order", "in": "query", "description": "Comma separated column[.asc|.desc][.nullsfirst|.nullslast]", "schema": map[string]string{"type": "string"}},
		{"name": "select", "in": "query", "description": "Comma separated columns", "schema": map[string]string{"type": "string"}},
	}
	for _, col := range table.Columns {
		params = append(params, map[string]any{
			"name":        col.Name,
			"in":          "query",
			"description": fmt.Sprintf("Filter on %s, eg eq.value", col.Name),
			"schema":      map[string]string{"type": "string"},
		})
	}
	return params
}

func (g *OpenAPIGenerator) keyParameters(table Table) []map[string]any {
	params := make([]map[string]any, 0, len(table.PrimaryKeys))
	for _, key := range table.PrimaryKeys {
		var col Column
		for _, c := range table.Columns {
			if c.Name == key {
				col = c
				break
			}
		}
		params = append(params, map[string]any{
			"name":     key,
			"in":       "path",
			"required": true,
			"schema":   columnSchema(col),
		})
	}
	return params
}

func (g *OpenAPIGenerator) tableSchema(table Table) map[string]any {
	properties := make(map[string]any, len(table.Columns)+1)
	var required []string
	for _, col := range table.Columns {
		properties[col.Name] = columnSchema(col)
		if !col.IsNullable {
			required = append(required, col.Name)
		}
	}
	properties[resource.LinksKey] = map[string]any{
		"type":     "array",
		"items":    ref("Link"),
		"readOnly": true,
	}

	schema := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// columnSchema maps a column to the JSON it is represented as.
func columnSchema(col Column) map[string]any {
	s := map[string]any{"x-pg-type": col.DataType}
	if col.IsNullable {
		s["nullable"] = true
	}
	switch KindOf(col.DataType) {
	case KindInteger:
		s["type"] = "integer"
	case KindNumeric:
		s["type"] = "string"
		s["format"] = "decimal"
	case KindFloat:
		s["type"] = "number"
	case KindBool:
		s["type"] = "boolean"
	case KindDate:
		s["type"] = "string"
		s["format"] = "date"
	case KindTimestamp:
		s["type"] = "string"
		s["format"] = "date-time"
	case KindTime:
		s["type"] = "string"
		s["format"] = "time"
	case KindUUID:
		s["type"] = "string"
		s["format"] = "uuid"
	case KindJSON:
		s["type"] = []string{"object", "array", "string", "number", "boolean"}
	case KindArray:
		s["type"] = "array"
	default:
		s["type"] = "string"
	}
	return s
}
