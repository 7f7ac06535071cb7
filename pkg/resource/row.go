package resource

// Row is an entity whose attributes are held by column name. It backs tables
// discovered at runtime, where no Go type exists per table.
type Row map[string]any

// NewRowMapper builds a Mapper over Row for table. The mapper name defaults
// to the table name.
func NewRowMapper(table Table, opts ...Option) (*Mapper[Row], error) {
	fields := make([]Field[Row], 0, len(table.Columns))
	for _, c := range table.Columns {
		fields = append(fields, rowField(c.Name))
	}
	opts = append([]Option{WithName(table.Name)}, opts...)
	return New(table, fields, opts...)
}

func rowField(name string) Field[Row] {
	return Field[Row]{
		Name: name,
		Get: func(r *Row) any {
			if *r == nil {
				return nil
			}
			return (*r)[name]
		},
		Set: func(r *Row, v any) error {
			if *r == nil {
				*r = Row{}
			}
			(*r)[name] = v
			return nil
		},
	}
}
