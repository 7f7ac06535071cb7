package rest

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePrefer(t *testing.T) {
	tests := []struct {
		name    string
		headers []string
		want    string
		minimal bool
	}{
		{name: "absent"},
		{name: "minimal", headers: []string{"return=minimal"}, want: "minimal", minimal: true},
		{name: "quoted and cased", headers: []string{`Return="Representation"`}, want: "representation"},
		{name: "headers-only", headers: []string{"count=exact, return=headers-only"}, want: "headers-only", minimal: true},
		{name: "invalid value ignored", headers: []string{"return=everything"}},
		{name: "last header wins", headers: []string{"return=minimal", "return=representation"}, want: "representation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/books", nil)
			for _, h := range tt.headers {
				r.Header.Add("Prefer", h)
			}
			p := parsePrefer(r)
			assert.Equal(t, tt.want, p.Return)
			assert.Equal(t, tt.minimal, p.Minimal())
		})
	}
}
