// Package rest serves resources over HTTP.
//
// Every registered resource.Mapper gets a collection and a record route:
//
//	Route                       | Behavior
//	----------------------------|---------------------------------------------
//	GET    /                    | index of endpoints with their meta links
//	GET    /openapi.json        | OpenAPI document, when configured
//	GET    /{endpoint}          | list, wrapped in the collection key
//	POST   /{endpoint}          | create; 201 with Location
//	GET    /{endpoint}/meta     | column types
//	GET    /{endpoint}/{pk...}  | one resource; composite keys use one segment each
//	PATCH  /{endpoint}/{pk...}  | partial update, absent values are ignored
//	PUT    /{endpoint}/{pk...}  | full replacement or create; keys come from the path
//	DELETE /{endpoint}/{pk...}  | delete; 204
//
// Lists accept PostgREST style query parameters:
//
//	Parameter           | Description
//	--------------------|------------------------------------------------
//	?select=col1,col2   | Return only these columns (links are kept)
//	?order=col.desc     | Order results (supports nullsfirst/nullslast)
//	?limit=100          | Limit number of results (default: 100)
//	?offset=0           | Pagination offset
//	?col=eq.val         | Equality; also neq, gt, gte, lt, lte
//	?col=like.a*        | Pattern matching, * stands for %; also ilike
//	?col=in.(a,b,c)     | Value lists
//	?col=is.null        | Null tests; also is.true, is.false
//
// Repeating a filter parameter ORs its conditions.
//
// Mutations return the new representation unless the request carries
// Prefer: return=minimal. Each successful mutation is published as a
// notify.Event when a publisher is configured.
//
// Example usage:
//
//	store := pgx.NewStore(pool, "public")
//	srv := rest.NewServer(store, rest.WithLogger(logger))
//	if err := rest.Register(srv, books); err != nil {
//		log.Fatal(err)
//	}
//	router := httputil.NewRouter()
//	srv.Mount(router)
//	log.Fatal(router.ListenAndServe(":8080"))
package rest
