package resource

import (
	"net/http"
	"strings"
)

// DefaultCollectionKey is the top-level JSON key of collection responses.
const DefaultCollectionKey = "resources"

var defaultMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPatch,
	http.MethodDelete,
	http.MethodPut,
}

// Option configures a Mapper.
type Option func(*options)

type options struct {
	endpoint      string
	namer         func(string) string
	name          string
	present       func(any) bool
	methods       []string
	collectionKey string
}

// WithEndpoint sets the endpoint explicitly instead of deriving it from the
// table name.
func WithEndpoint(endpoint string) Option {
	return func(o *options) {
		o.endpoint = strings.Trim(endpoint, "/")
	}
}

// WithInflection derives the endpoint with InflectedEndpoint.
func WithInflection() Option {
	return func(o *options) {
		o.namer = InflectedEndpoint
	}
}

// WithName sets the key Meta reports the columns under. Defaults to the Go
// type name of the entity.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithPresence replaces the policy deciding whether a value is present, both
// for foreign-key links and for FromDict. The default is Truthy.
func WithPresence(present func(any) bool) Option {
	return func(o *options) {
		o.present = present
	}
}

// WithMethods restricts the HTTP methods the resource supports.
func WithMethods(methods ...string) Option {
	return func(o *options) {
		o.methods = make([]string, 0, len(methods))
		for _, m := range methods {
			o.methods = append(o.methods, strings.ToUpper(m))
		}
	}
}

// WithCollectionKey sets the top-level JSON key of collection responses.
func WithCollectionKey(key string) Option {
	return func(o *options) {
		o.collectionKey = key
	}
}
