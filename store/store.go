// Package store defines the table access collaborator used by the cloners.
// Implementations exist for Postgres and MySQL (sqlstore), DynamoDB
// (dynamostore) and in-memory testing (memstore).
package store

import (
	"context"
	"fmt"
	"sort"
)

// Row is one table record keyed by column name.
type Row map[string]any

// WriteResult reports the outcome of a batched write or delete.
type WriteResult struct {
	Written int
	Deleted int
}

// TableStore is the minimal capability set a data environment must offer.
type TableStore interface {
	// Exists probes whether the table is present.
	Exists(ctx context.Context, table string) (bool, error)

	// Columns samples one row and returns the table's column set. An empty
	// slice means the schema could not be sampled (empty table); callers
	// disable column-intersection shaping in that case.
	Columns(ctx context.Context, table string) ([]string, error)

	// FetchPage returns rows [offset, offset+limit). A short page marks the
	// end of the table.
	FetchPage(ctx context.Context, table string, offset, limit int) ([]Row, error)

	// UpsertBatch writes rows with insert-or-update semantics keyed on
	// conflictKey (comma-separated for composite keys).
	UpsertBatch(ctx context.Context, table string, rows []Row, conflictKey string) (int, error)

	// InsertBatch is the plain-insert fallback used when an upsert fails.
	InsertBatch(ctx context.Context, table string, rows []Row) (int, error)

	// DeleteAll clears the table. Nothing to delete is not an error.
	DeleteAll(ctx context.Context, table string) (int, error)

	Close() error
}

// Definition is a database function or trigger definition, cloned by the
// audit system as metadata rather than rows.
type Definition struct {
	Name   string
	Kind   string // function | trigger
	Schema string
	Body   string
}

// SchemaObjects is an optional store capability for cloning function and
// trigger definitions. Stores without it cause the audit cloner to record a
// warning instead of failing.
type SchemaObjects interface {
	FunctionDefinitions(ctx context.Context, schema string) ([]Definition, error)
	TriggerDefinitions(ctx context.Context, schema string) ([]Definition, error)
	ApplyDefinition(ctx context.Context, def Definition) error
}

// Subscriber is an optional store capability used by the conversations
// cloner's realtime smoke test.
type Subscriber interface {
	// Subscribe opens a subscription on the table and returns its closer.
	Subscribe(ctx context.Context, table string) (func() error, error)
}

// Shape drops columns absent from the target column set, preserving all
// others verbatim. An empty column set disables shaping.
func Shape(rows []Row, columns []string) []Row {
	if len(columns) == 0 {
		return rows
	}
	keep := make(map[string]bool, len(columns))
	for _, col := range columns {
		keep[col] = true
	}

	shaped := make([]Row, len(rows))
	for i, row := range rows {
		out := make(Row, len(row))
		for col, val := range row {
			if keep[col] {
				out[col] = val
			}
		}
		shaped[i] = out
	}
	return shaped
}

// SortedColumns returns a row's column names in stable order.
func SortedColumns(row Row) []string {
	cols := make([]string, 0, len(row))
	for col := range row {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

// RowKey renders a row's value for a (possibly composite) conflict key.
func RowKey(row Row, conflictKey string) string {
	key := ""
	start := 0
	for i := 0; i <= len(conflictKey); i++ {
		if i == len(conflictKey) || conflictKey[i] == ',' {
			col := conflictKey[start:i]
			key += fmt.Sprintf("%v|", row[col])
			start = i + 1
		}
	}
	return key
}
