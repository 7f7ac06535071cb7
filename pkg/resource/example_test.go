package resource_test

import (
	"encoding/json"
	"fmt"

	"github.com/edgeflare/sandman/pkg/resource"
)

func ExampleMapper_AsDict() {
	table := resource.Table{
		Name: "book",
		Columns: []resource.Column{
			{Name: "id", Type: "integer"},
			{Name: "title", Type: "text"},
			{Name: "author_id", Type: "integer"},
		},
		PrimaryKeys: []string{"id"},
		ForeignKeys: []resource.ForeignKey{
			{Column: "author_id", RefTable: "author", RefColumn: "id"},
		},
	}

	books, err := resource.NewRowMapper(table)
	if err != nil {
		panic(err)
	}

	row := resource.Row{"id": 5, "title": "Dune", "author_id": 3}
	data, _ := json.Marshal(books.AsDict(&row))
	fmt.Println(books.ResourceURI(&row))
	fmt.Println(string(data))
	// Output:
	// /books/5
	// {"_links":[{"rel":"related","uri":"/author/3"},{"rel":"self","uri":"/books/5"}],"author_id":3,"id":5,"title":"Dune"}
}
