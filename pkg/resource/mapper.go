package resource

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// Mapper maps instances of T to and from their resource representation.
// It is immutable once built and safe for concurrent use.
type Mapper[T any] struct {
	table         Table
	fields        map[string]Field[T]
	endpoint      string
	name          string
	present       func(any) bool
	methods       []string
	collectionKey string
}

// New builds a Mapper for table. fields must describe every declared column;
// their order does not matter, the table's column order is used throughout.
func New[T any](table Table, fields []Field[T], opts ...Option) (*Mapper[T], error) {
	if err := table.validate(); err != nil {
		return nil, err
	}

	o := options{
		namer:         DefaultEndpoint,
		name:          reflect.TypeFor[T]().Name(),
		present:       Truthy,
		methods:       defaultMethods,
		collectionKey: DefaultCollectionKey,
	}
	for _, opt := range opts {
		opt(&o)
	}

	byName := make(map[string]Field[T], len(fields))
	for _, f := range fields {
		if _, ok := table.Column(f.Name); !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, table.Name, f.Name)
		}
		if f.Get == nil || f.Set == nil {
			return nil, fmt.Errorf("%w: %s.%s has no accessor", ErrMissingField, table.Name, f.Name)
		}
		byName[f.Name] = f
	}
	for _, c := range table.Columns {
		if _, ok := byName[c.Name]; !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrMissingField, table.Name, c.Name)
		}
	}

	endpoint := o.endpoint
	if endpoint == "" {
		endpoint = o.namer(table.Name)
	}

	return &Mapper[T]{
		table:         table,
		fields:        byName,
		endpoint:      endpoint,
		name:          o.name,
		present:       o.present,
		methods:       slices.Clone(o.methods),
		collectionKey: o.collectionKey,
	}, nil
}

// MustNew is like New but panics on a misconfigured table.
func MustNew[T any](table Table, fields []Field[T], opts ...Option) *Mapper[T] {
	m, err := New(table, fields, opts...)
	if err != nil {
		panic(err)
	}
	return m
}

// Table returns the table descriptor the mapper was built from.
func (m *Mapper[T]) Table() Table {
	return m.table
}

// Name returns the key Meta reports the columns under.
func (m *Mapper[T]) Name() string {
	return m.name
}

// Endpoint returns the path segment the resource is addressed under.
func (m *Mapper[T]) Endpoint() string {
	return m.endpoint
}

// PrimaryKey returns the first primary-key column.
func (m *Mapper[T]) PrimaryKey() string {
	return m.table.PrimaryKeys[0]
}

// PrimaryKeys returns every primary-key column in declared order.
func (m *Mapper[T]) PrimaryKeys() []string {
	return slices.Clone(m.table.PrimaryKeys)
}

// Methods returns the HTTP methods the resource supports.
func (m *Mapper[T]) Methods() []string {
	return slices.Clone(m.methods)
}

// Allows reports whether the resource supports the HTTP method.
func (m *Mapper[T]) Allows(method string) bool {
	return slices.Contains(m.methods, strings.ToUpper(method))
}

// CollectionKey returns the top-level JSON key of collection responses.
func (m *Mapper[T]) CollectionKey() string {
	return m.collectionKey
}

// Columns returns the declared column names in order.
func (m *Mapper[T]) Columns() []string {
	return m.table.ColumnNames()
}

// Present applies the mapper's presence policy to a value.
func (m *Mapper[T]) Present(value any) bool {
	return m.present(value)
}

// Value returns the value of column on v, nil if the column is unknown.
func (m *Mapper[T]) Value(v *T, column string) any {
	f, ok := m.fields[column]
	if !ok {
		return nil
	}
	return f.Get(v)
}

// Keys returns the primary-key values of v in declared order.
func (m *Mapper[T]) Keys(v *T) []any {
	keys := make([]any, len(m.table.PrimaryKeys))
	for i, pk := range m.table.PrimaryKeys {
		keys[i] = m.Value(v, pk)
	}
	return keys
}

// SetKeys assigns primary-key values to v in declared order.
func (m *Mapper[T]) SetKeys(v *T, keys ...any) error {
	if len(keys) != len(m.table.PrimaryKeys) {
		return fmt.Errorf("%w: %s wants %d, got %d", ErrKeyCount, m.table.Name, len(m.table.PrimaryKeys), len(keys))
	}
	for i, pk := range m.table.PrimaryKeys {
		if err := m.fields[pk].Set(v, keys[i]); err != nil {
			return &FieldError{Column: pk, Err: err}
		}
	}
	return nil
}

// Identified reports whether every primary-key value of v is set.
func (m *Mapper[T]) Identified(v *T) bool {
	for _, k := range m.Keys(v) {
		if !NotNil(k) {
			return false
		}
	}
	return true
}

// ResourceURI returns "/{endpoint}/{key}", with one segment per primary-key
// column. Unset key values render as "null".
func (m *Mapper[T]) ResourceURI(v *T) string {
	var b strings.Builder
	b.WriteString("/")
	b.WriteString(m.endpoint)
	for _, k := range m.Keys(v) {
		b.WriteString("/")
		b.WriteString(Segment(k))
	}
	return b.String()
}

// Links returns a related link for every foreign key whose local value is
// present, in declaration order, followed by the self link.
func (m *Mapper[T]) Links(v *T) []Link {
	links := make([]Link, 0, len(m.table.ForeignKeys)+1)
	for _, fk := range m.table.ForeignKeys {
		value := m.Value(v, fk.Column)
		if !m.present(value) {
			continue
		}
		links = append(links, Link{
			Rel: RelRelated,
			URI: "/" + fk.RefTable + "/" + Segment(value),
		})
	}
	return append(links, Link{Rel: RelSelf, URI: m.ResourceURI(v)})
}

// AsDict returns every declared column of v plus its links. Exact decimals
// are converted to strings.
func (m *Mapper[T]) AsDict(v *T) Representation {
	rep := make(Representation, len(m.table.Columns)+1)
	for _, c := range m.table.Columns {
		rep[c.Name] = Normalize(m.Value(v, c.Name))
	}
	rep[LinksKey] = m.Links(v)
	return rep
}

// FromDict assigns the values of d that belong to declared columns and are
// present. Other columns keep their value. It stops at the first value a
// field cannot accept; columns before it have already been assigned.
func (m *Mapper[T]) FromDict(v *T, d map[string]any) error {
	for _, c := range m.table.Columns {
		value, ok := d[c.Name]
		if !ok || !m.present(value) {
			continue
		}
		if err := m.fields[c.Name].Set(v, value); err != nil {
			return &FieldError{Column: c.Name, Err: err}
		}
	}
	return nil
}

// Replace resets every declared column of v to nil, then applies FromDict.
// Columns missing from d end up nil.
func (m *Mapper[T]) Replace(v *T, d map[string]any) error {
	for _, c := range m.table.Columns {
		if err := m.fields[c.Name].Set(v, nil); err != nil {
			return &FieldError{Column: c.Name, Err: err}
		}
	}
	return m.FromDict(v, d)
}

// Scan assigns every declared column of v from row, presence policy aside.
// Columns missing from row are set to nil. It loads stored rows, where a
// false or zero value is data rather than absence.
func (m *Mapper[T]) Scan(v *T, row map[string]any) error {
	for _, c := range m.table.Columns {
		if err := m.fields[c.Name].Set(v, row[c.Name]); err != nil {
			return &FieldError{Column: c.Name, Err: err}
		}
	}
	return nil
}

// Attributes returns the raw value of every declared column of v.
func (m *Mapper[T]) Attributes(v *T) Row {
	row := make(Row, len(m.table.Columns))
	for _, c := range m.table.Columns {
		row[c.Name] = m.Value(v, c.Name)
	}
	return row
}

// Meta returns the lowercased declared type of every column, keyed by the
// mapper name.
func (m *Mapper[T]) Meta() map[string]map[string]string {
	attrs := make(map[string]string, len(m.table.Columns))
	for _, c := range m.table.Columns {
		attrs[c.Name] = strings.ToLower(c.Type)
	}
	return map[string]map[string]string{m.name: attrs}
}
