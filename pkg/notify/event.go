package notify

import (
	"strings"
	"time"

	"github.com/edgeflare/sandman/pkg/resource"
)

type Op string

const (
	OpCreate  Op = "create"
	OpUpdate  Op = "update"
	OpReplace Op = "replace"
	OpDelete  Op = "delete"
)

// Event describes one change to a resource. Resource is the representation
// after the change; for deletes it is the last stored state.
type Event struct {
	Op       Op                      `json:"op"`
	Endpoint string                  `json:"endpoint"`
	URI      string                  `json:"uri"`
	Resource resource.Representation `json:"resource,omitempty"`
	Time     time.Time               `json:"time"`
}

// NewEvent stamps an event with the current time.
func NewEvent(op Op, endpoint, uri string, rep resource.Representation) Event {
	return Event{Op: op, Endpoint: endpoint, URI: uri, Resource: rep, Time: time.Now().UTC()}
}

// Subject joins prefix, endpoint and op with sep, eg "sandman.books.create".
// Separators inside the endpoint are replaced so the subject keeps three
// levels below the prefix.
func (e Event) Subject(prefix, sep string) string {
	endpoint := strings.ReplaceAll(e.Endpoint, sep, "_")
	parts := []string{endpoint, string(e.Op)}
	if prefix != "" {
		parts = append([]string{prefix}, parts...)
	}
	return strings.Join(parts, sep)
}
