// Package sqlstore implements the table store over database/sql with
// Postgres and MySQL dialects.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"loftdata/config"
	"loftdata/store"
)

const (
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
)

type Store struct {
	db      *sql.DB
	dialect string
}

// Open connects to the environment's database. Reads use the anon
// credential, writes the service credential; readOnly selects which.
func Open(env config.Environment, readOnly bool) (*Store, error) {
	password := env.ServiceKey
	if readOnly {
		password = env.AnonKey
	}

	var driver, dsn string
	switch env.Backend {
	case DialectPostgres:
		driver = "postgres"
		dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=prefer",
			env.Host, env.Port, env.User, password, env.Database)
	case DialectMySQL:
		driver = "mysql"
		dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s",
			env.User, password, env.Host, env.Port, env.Database)
	default:
		return nil, fmt.Errorf("unsupported sql backend: %s", env.Backend)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", env.Backend, err)
	}

	return &Store{db: db, dialect: env.Backend}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) placeholder(n int) string {
	if s.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// quoteIdent quotes an identifier, handling schema-qualified names like
// "audit.activity_logs".
func (s *Store) quoteIdent(name string) string {
	quote := `"`
	if s.dialect == DialectMySQL {
		quote = "`"
	}
	parts := strings.Split(name, ".")
	for i, part := range parts {
		parts[i] = quote + part + quote
	}
	return strings.Join(parts, ".")
}

func splitTable(name string) (schema, table string) {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

func (s *Store) Exists(ctx context.Context, table string) (bool, error) {
	schema, bare := splitTable(table)

	query := fmt.Sprintf("SELECT COUNT(*) FROM information_schema.tables WHERE table_name = %s", s.placeholder(1))
	args := []any{bare}
	if schema != "" {
		query += fmt.Sprintf(" AND table_schema = %s", s.placeholder(2))
		args = append(args, schema)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to probe table %s: %w", table, err)
	}
	return count > 0, nil
}

func (s *Store) Columns(ctx context.Context, table string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT 1", s.quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("failed to sample table %s: %w", table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	return columns, rows.Err()
}

func (s *Store) FetchPage(ctx context.Context, table string, offset, limit int) ([]store.Row, error) {
	query := fmt.Sprintf("SELECT * FROM %s ORDER BY 1 LIMIT %d OFFSET %d",
		s.quoteIdent(table), limit, offset)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page from %s: %w", table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var page []store.Row
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row from %s: %w", table, err)
		}

		row := make(store.Row, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		page = append(page, row)
	}

	return page, rows.Err()
}

func (s *Store) UpsertBatch(ctx context.Context, table string, rows []store.Row, conflictKey string) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	columns := store.SortedColumns(rows[0])
	query, args := s.buildInsert(table, columns, rows)

	keyCols := strings.Split(conflictKey, ",")
	switch s.dialect {
	case DialectPostgres:
		query += fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET ", s.identList(keyCols))
		query += s.excludedAssignments(columns, keyCols)
	case DialectMySQL:
		query += " ON DUPLICATE KEY UPDATE "
		query += s.valuesAssignments(columns, keyCols)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return 0, fmt.Errorf("failed to upsert batch into %s: %w", table, err)
	}
	return len(rows), nil
}

func (s *Store) InsertBatch(ctx context.Context, table string, rows []store.Row) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	columns := store.SortedColumns(rows[0])
	query, args := s.buildInsert(table, columns, rows)

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return 0, fmt.Errorf("failed to insert batch into %s: %w", table, err)
	}
	return len(rows), nil
}

func (s *Store) DeleteAll(ctx context.Context, table string) (int, error) {
	result, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", s.quoteIdent(table)))
	if err != nil {
		return 0, fmt.Errorf("failed to clear table %s: %w", table, err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(deleted), nil
}

func (s *Store) buildInsert(table string, columns []string, rows []store.Row) (string, []any) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", s.quoteIdent(table), s.identList(columns))

	args := make([]any, 0, len(rows)*len(columns))
	n := 1
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j, col := range columns {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(s.placeholder(n))
			args = append(args, row[col])
			n++
		}
		sb.WriteString(")")
	}

	return sb.String(), args
}

func (s *Store) identList(names []string) string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = s.quoteIdent(strings.TrimSpace(name))
	}
	return strings.Join(quoted, ", ")
}

func (s *Store) excludedAssignments(columns, keyCols []string) string {
	var assignments []string
	for _, col := range columns {
		if contains(keyCols, col) {
			continue
		}
		assignments = append(assignments, fmt.Sprintf("%s = EXCLUDED.%s", s.quoteIdent(col), s.quoteIdent(col)))
	}
	if len(assignments) == 0 {
		// Every column is part of the key; update the first key column to
		// itself so the statement stays valid.
		first := s.quoteIdent(strings.TrimSpace(keyCols[0]))
		return fmt.Sprintf("%s = EXCLUDED.%s", first, first)
	}
	return strings.Join(assignments, ", ")
}

func (s *Store) valuesAssignments(columns, keyCols []string) string {
	var assignments []string
	for _, col := range columns {
		if contains(keyCols, col) {
			continue
		}
		assignments = append(assignments, fmt.Sprintf("%s = VALUES(%s)", s.quoteIdent(col), s.quoteIdent(col)))
	}
	if len(assignments) == 0 {
		first := s.quoteIdent(strings.TrimSpace(keyCols[0]))
		return fmt.Sprintf("%s = VALUES(%s)", first, first)
	}
	return strings.Join(assignments, ", ")
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if strings.TrimSpace(n) == name {
			return true
		}
	}
	return false
}
