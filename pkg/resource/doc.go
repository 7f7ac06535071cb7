// Package resource derives a REST resource surface from a table descriptor.
//
// A Mapper is built once per entity type from a Table (name, ordered columns,
// primary keys, foreign keys) and a field-descriptor table that tells it how
// to read and write each column on an instance. It then provides:
//
//	Endpoint()        "book" -> "books" (lowercased, "s" appended unless present)
//	PrimaryKey()      first primary-key column; PrimaryKeys() returns all of them
//	ResourceURI(v)    "/books/5" (composite keys add one segment per column)
//	Links(v)          related links for set foreign keys, then the self link
//	AsDict(v)         column values + "_links"; exact decimals become strings
//	FromDict(v, d)    partial update: only present values are assigned
//	Replace(v, d)     full replacement: every column reset, then FromDict
//	Meta()            {"Book": {"id": "integer", "title": "text", ...}}
//
// Values count as present when they are truthy: nil, false, numeric zero,
// zero decimals, empty strings and empty collections are treated as absent.
// A foreign key holding 0 therefore produces no related link, and an update
// setting a column to 0 is ignored. Use WithPresence(NotNil) to treat every
// non-nil value as present instead.
//
// Struct-backed entities describe their columns with Col:
//
//	type Book struct {
//		ID       int64
//		Title    string
//		AuthorID *int64
//	}
//
//	var books = resource.MustNew(table, []resource.Field[Book]{
//		resource.Col("id", func(b *Book) *int64 { return &b.ID }),
//		resource.Col("title", func(b *Book) *string { return &b.Title }),
//		resource.Col("author_id", func(b *Book) **int64 { return &b.AuthorID }),
//	})
//
// Introspected tables use Row, a column-name keyed map, via NewRowMapper.
package resource
