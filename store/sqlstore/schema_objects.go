package sqlstore

import (
	"context"
	"fmt"

	"loftdata/store"
)

// FunctionDefinitions returns the function definitions in a schema. Only
// the Postgres dialect can express this; MySQL environments surface a
// capability error that the audit cloner downgrades to a warning.
func (s *Store) FunctionDefinitions(ctx context.Context, schema string) ([]store.Definition, error) {
	if s.dialect != DialectPostgres {
		return nil, fmt.Errorf("function definitions are not supported on %s", s.dialect)
	}

	query := `SELECT p.proname, pg_get_functiondef(p.oid)
		FROM pg_proc p
		JOIN pg_namespace n ON n.oid = p.pronamespace
		WHERE n.nspname = $1`

	rows, err := s.db.QueryContext(ctx, query, schema)
	if err != nil {
		return nil, fmt.Errorf("failed to read function definitions: %w", err)
	}
	defer rows.Close()

	var defs []store.Definition
	for rows.Next() {
		var def store.Definition
		if err := rows.Scan(&def.Name, &def.Body); err != nil {
			return nil, err
		}
		def.Kind = "function"
		def.Schema = schema
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// TriggerDefinitions returns the trigger definitions in a schema.
func (s *Store) TriggerDefinitions(ctx context.Context, schema string) ([]store.Definition, error) {
	if s.dialect != DialectPostgres {
		return nil, fmt.Errorf("trigger definitions are not supported on %s", s.dialect)
	}

	query := `SELECT t.tgname, pg_get_triggerdef(t.oid)
		FROM pg_trigger t
		JOIN pg_class c ON c.oid = t.tgrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND NOT t.tgisinternal`

	rows, err := s.db.QueryContext(ctx, query, schema)
	if err != nil {
		return nil, fmt.Errorf("failed to read trigger definitions: %w", err)
	}
	defer rows.Close()

	var defs []store.Definition
	for rows.Next() {
		var def store.Definition
		if err := rows.Scan(&def.Name, &def.Body); err != nil {
			return nil, err
		}
		def.Kind = "trigger"
		def.Schema = schema
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// ApplyDefinition executes a function or trigger definition on the target.
func (s *Store) ApplyDefinition(ctx context.Context, def store.Definition) error {
	if s.dialect != DialectPostgres {
		return fmt.Errorf("definitions are not supported on %s", s.dialect)
	}
	if _, err := s.db.ExecContext(ctx, def.Body); err != nil {
		return fmt.Errorf("failed to apply %s %s: %w", def.Kind, def.Name, err)
	}
	return nil
}
