package schema

import "strings"

// Kind groups PostgreSQL types by how their values travel as JSON and in
// URL path segments.
type Kind int

const (
	KindString Kind = iota
	KindInteger
	KindNumeric // exact decimals, carried as strings
	KindFloat
	KindBool
	KindDate
	KindTimestamp
	KindTime
	KindUUID
	KindJSON
	KindArray
)

// KindOf classifies a declared type as rendered by format_type, eg
// "numeric(10,2)" or "timestamp with time zone".
func KindOf(dataType string) Kind {
	t := strings.ToLower(strings.TrimSpace(dataType))
	if strings.HasSuffix(t, "[]") {
		return KindArray
	}
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	switch t {
	case "smallint", "integer", "int", "int2", "int4", "int8", "bigint",
		"smallserial", "serial", "bigserial":
		return KindInteger
	case "numeric", "decimal", "money":
		return KindNumeric
	case "real", "double precision", "float4", "float8":
		return KindFloat
	case "boolean", "bool":
		return KindBool
	case "date":
		return KindDate
	case "uuid":
		return KindUUID
	case "json", "jsonb":
		return KindJSON
	}
	switch {
	case strings.HasPrefix(t, "timestamp"):
		return KindTimestamp
	case strings.HasPrefix(t, "time"):
		return KindTime
	}
	return KindString
}
