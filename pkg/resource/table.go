package resource

import "fmt"

// Column is a declared table column. Type is the database type as declared,
// eg "integer", "numeric(10,2)", "character varying(255)".
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ForeignKey maps a local column to a column of another table.
type ForeignKey struct {
	Column    string `json:"column"`
	RefTable  string `json:"ref_table"`
	RefColumn string `json:"ref_column"`
}

// Table describes a relational table. Columns, PrimaryKeys and ForeignKeys
// keep the order in which the table declares them.
type Table struct {
	Name        string       `json:"name"`
	Columns     []Column     `json:"columns"`
	PrimaryKeys []string     `json:"primary_keys"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty"`
}

// ColumnNames returns the declared column names in order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the named column.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

func (t Table) validate() error {
	if t.Name == "" {
		return ErrTableNotBound
	}
	if len(t.PrimaryKeys) == 0 {
		return fmt.Errorf("%w: %s", ErrNoPrimaryKey, t.Name)
	}
	for _, pk := range t.PrimaryKeys {
		if _, ok := t.Column(pk); !ok {
			return fmt.Errorf("%w: primary key %s.%s", ErrUnknownColumn, t.Name, pk)
		}
	}
	for _, fk := range t.ForeignKeys {
		if _, ok := t.Column(fk.Column); !ok {
			return fmt.Errorf("%w: foreign key %s.%s", ErrUnknownColumn, t.Name, fk.Column)
		}
	}
	return nil
}
