package adminserver

import "github.com/graphql-go/graphql"

// jsonScalar exposes a nested stats map (buffer pool, disk manager, lock
// manager) as an opaque JSON value, since graphql-go has no built-in map
// type. Grounded on pkg/graphql/scalars.go's JSONScalar; this read-only
// server never needs the ParseValue/ParseLiteral input-direction half of
// that scalar, so only Serialize is implemented.
var jsonScalar = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "JSON",
	Description: "An opaque JSON object, used for nested stats snapshots.",
	Serialize: func(value interface{}) interface{} {
		return value
	},
})
