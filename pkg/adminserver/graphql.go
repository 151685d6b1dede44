package adminserver

import (
	"encoding/json"
	"net/http"

	"github.com/graphql-go/graphql"

	"github.com/mnohosten/laura-core/pkg/storage"
	"github.com/mnohosten/laura-core/pkg/txn"
)

// schema builds the read-only GraphQL schema over engine/lock-manager
// stats. Grounded on pkg/graphql/schema.go's graphql.NewObject/graphql.Fields
// shape, narrowed to a single Query root since this core exposes no
// mutations.
func schema(engine *storage.Engine, lockManager *txn.LockManager) (graphql.Schema, error) {
	statsType := graphql.NewObject(graphql.ObjectConfig{
		Name:        "Stats",
		Description: "A snapshot of engine and lock manager counters",
		Fields: graphql.Fields{
			"disk": &graphql.Field{
				Type:        jsonScalar,
				Description: "Disk manager I/O counters",
			},
			"bufferPool": &graphql.Field{
				Type:        jsonScalar,
				Description: "Buffer pool occupancy counters",
			},
			"persistentLsn": &graphql.Field{
				Type:        graphql.Float,
				Description: "The log manager's durable-through LSN watermark",
			},
			"lockManager": &graphql.Field{
				Type:        jsonScalar,
				Description: "Lock table occupancy counters, or null if no lock manager is wired in",
			},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"stats": &graphql.Field{
				Type:        statsType,
				Description: "Current engine and lock manager statistics",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					raw := engine.Stats()
					body := map[string]interface{}{
						"disk":          raw["disk"],
						"bufferPool":    raw["buffer_pool"],
						"persistentLsn": raw["persistent_lsn"],
					}
					if lockManager != nil {
						body["lockManager"] = lockManager.Stats()
					}
					return body, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{Query: queryType})
}

// graphQLRequest is the standard GraphQL-over-HTTP envelope.
type graphQLRequest struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables"`
}

// graphqlHandler serves POST /graphql, grounded on pkg/graphql/handler.go's
// ServeHTTP.
func graphqlHandler(gqlSchema graphql.Schema) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "GraphQL only accepts POST requests", http.StatusMethodNotAllowed)
			return
		}

		var req graphQLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"errors": []map[string]interface{}{{"message": "invalid request body"}},
			})
			return
		}

		result := graphql.Do(graphql.Params{
			Schema:         gqlSchema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        r.Context(),
		})

		writeJSON(w, http.StatusOK, result)
	}
}

// graphiqlHandler serves the GraphiQL playground, grounded on
// pkg/graphql/handler.go's GraphiQLHandler/graphiqlHTML.
func graphiqlHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(graphiqlHTML))
}

const graphiqlHTML = `<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="UTF-8">
	<title>laura-core admin console</title>
	<script crossorigin src="https://unpkg.com/react@17/umd/react.production.min.js"></script>
	<script crossorigin src="https://unpkg.com/react-dom@17/umd/react-dom.production.min.js"></script>
	<link rel="stylesheet" href="https://unpkg.com/graphiql@1.8.7/graphiql.min.css" />
</head>
<body style="margin:0;height:100vh;">
	<div id="graphiql" style="height:100vh;">Loading...</div>
	<script src="https://unpkg.com/graphiql@1.8.7/graphiql.min.js"></script>
	<script>
		const fetcher = GraphiQL.createFetcher({ url: '/graphql' });
		ReactDOM.render(
			React.createElement(GraphiQL, { fetcher: fetcher, defaultQuery: '{ stats { persistentLsn bufferPool } }' }),
			document.getElementById('graphiql'),
		);
	</script>
</body>
</html>
`
