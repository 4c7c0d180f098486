package clone

import (
	"loftdata/config"
	"loftdata/store"
	"loftdata/store/dynamostore"
	"loftdata/store/sqlstore"
)

// OpenStore dials the environment's backend. readOnly selects the anon
// credential over the service one for SQL backends.
func OpenStore(env config.Environment, readOnly bool) (store.TableStore, error) {
	if env.Backend == "dynamodb" {
		return dynamostore.Open(env)
	}
	return sqlstore.Open(env, readOnly)
}
