package rest

import (
	"slices"

	"github.com/edgeflare/sandman/pkg/resource"
)

// binding erases the entity type of a mapper so resources of different Go
// types share one route table. Rows travel between the store and a binding
// as resource.Row; the mapper's field table does the conversion.
type binding interface {
	Endpoint() string
	Name() string
	Table() resource.Table
	Allows(method string) bool
	Methods() []string
	CollectionKey() string
	Meta() map[string]map[string]string

	represent(row resource.Row) (resource.Representation, error)
	create(body map[string]any) (resource.Row, error)
	patch(stored resource.Row, body map[string]any) (resource.Row, error)
	replace(keys []any, body map[string]any) (resource.Row, error)
}

type mapped[T any] struct {
	*resource.Mapper[T]
}

func (b mapped[T]) load(row resource.Row) (*T, error) {
	v := new(T)
	if err := b.Scan(v, row); err != nil {
		return nil, err
	}
	return v, nil
}

func (b mapped[T]) represent(row resource.Row) (resource.Representation, error) {
	v, err := b.load(row)
	if err != nil {
		return nil, err
	}
	return b.AsDict(v), nil
}

// create returns the columns body supplies, converted by the field table.
// Columns left out fall back to their database defaults.
func (b mapped[T]) create(body map[string]any) (resource.Row, error) {
	v := new(T)
	if err := b.FromDict(v, body); err != nil {
		return nil, err
	}
	return b.supplied(v, body), nil
}

// patch applies body over the stored row and returns only the columns body
// supplies.
func (b mapped[T]) patch(stored resource.Row, body map[string]any) (resource.Row, error) {
	v, err := b.load(stored)
	if err != nil {
		return nil, err
	}
	if err := b.FromDict(v, body); err != nil {
		return nil, err
	}
	return b.supplied(v, body), nil
}

// replace builds a whole row from body; keys come from the URL and win over
// any key values in body. Other columns body does not supply are stored as
// NULL, whatever zero value the entity's field holds.
func (b mapped[T]) replace(keys []any, body map[string]any) (resource.Row, error) {
	v := new(T)
	if err := b.Replace(v, body); err != nil {
		return nil, err
	}
	if err := b.SetKeys(v, keys...); err != nil {
		return nil, err
	}
	row := b.Attributes(v)
	pks := b.Table().PrimaryKeys
	for _, col := range b.Columns() {
		if slices.Contains(pks, col) {
			continue
		}
		if value, ok := body[col]; !ok || !b.Present(value) {
			row[col] = nil
		}
	}
	return row, nil
}

func (b mapped[T]) supplied(v *T, body map[string]any) resource.Row {
	attrs := b.Attributes(v)
	row := make(resource.Row, len(attrs))
	for _, col := range b.Columns() {
		if value, ok := body[col]; ok && b.Present(value) {
			row[col] = attrs[col]
		}
	}
	return row
}
