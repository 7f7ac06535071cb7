package rest

import (
	"net/http"
	"strings"
)

// Prefer holds preferences from the Prefer header (RFC 7240).
type Prefer struct {
	Return string // "minimal", "representation", "headers-only"
}

// parsePrefer parses the Prefer header according to RFC 7240. Unknown or
// malformed preferences are ignored.
func parsePrefer(r *http.Request) Prefer {
	var p Prefer
	for _, header := range r.Header.Values("Prefer") {
		parseKeyValPairs(header, func(key, value string) {
			if key == "return" && isValidReturn(value) {
				p.Return = strings.ToLower(value)
			}
		})
	}
	return p
}

// parseKeyValPairs parses comma-separated preference directives.
// For each key=value pair found, it calls fn with the key and value.
func parseKeyValPairs(header string, fn func(key, value string)) {
	for pref := range strings.SplitSeq(header, ",") {
		pref = strings.TrimSpace(pref)
		if key, value, found := strings.Cut(pref, "="); found {
			key = strings.TrimSpace(strings.ToLower(key))
			value = strings.Trim(strings.TrimSpace(value), `"`)
			fn(key, value)
		}
	}
}

// isValidReturn reports whether s is a valid return preference value.
func isValidReturn(s string) bool {
	switch strings.ToLower(s) {
	case "minimal", "representation", "headers-only":
		return true
	}
	return false
}

// Minimal reports whether the client asked for a mutation response without
// a body. Without a preference the representation is returned.
func (p Prefer) Minimal() bool {
	return p.Return == "minimal" || p.Return == "headers-only"
}
