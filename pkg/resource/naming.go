package resource

import (
	"strings"

	"github.com/jinzhu/inflection"
)

// DefaultEndpoint lowercases a table name and appends "s" unless it already
// ends with one. It does no other pluralization: "person" -> "persons".
func DefaultEndpoint(table string) string {
	endpoint := strings.ToLower(table)
	if !strings.HasSuffix(endpoint, "s") {
		endpoint += "s"
	}
	return endpoint
}

// InflectedEndpoint lowercases a table name and pluralizes it with English
// inflection rules: "person" -> "people", "category" -> "categories".
func InflectedEndpoint(table string) string {
	return inflection.Plural(strings.ToLower(table))
}
