// Package memstore is an in-memory table store. It backs the test suites
// and supports failure injection and call counting.
package memstore

import (
	"context"
	"strings"
	"sync"

	"loftdata/store"
)

type Store struct {
	mu     sync.Mutex
	tables map[string][]store.Row
	schema map[string][]string

	// Failure injection: errors returned by the matching operation for a
	// given table.
	FailFetch  map[string]error
	FailUpsert map[string]error
	FailInsert map[string]error

	// Call counters keyed by table.
	FetchCalls  map[string]int
	UpsertCalls map[string]int
}

func New() *Store {
	return &Store{
		tables:      make(map[string][]store.Row),
		schema:      make(map[string][]string),
		FailFetch:   make(map[string]error),
		FailUpsert:  make(map[string]error),
		FailInsert:  make(map[string]error),
		FetchCalls:  make(map[string]int),
		UpsertCalls: make(map[string]int),
	}
}

// CreateTable registers a table with the given column set.
func (s *Store) CreateTable(table string, columns ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[table]; !ok {
		s.tables[table] = nil
	}
	s.schema[table] = columns
}

// Seed appends rows to a table, creating it if needed.
func (s *Store) Seed(table string, rows ...store.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[table] = append(s.tables[table], rows...)
	if len(s.schema[table]) == 0 && len(rows) > 0 {
		s.schema[table] = store.SortedColumns(rows[0])
	}
}

// Rows returns a copy of a table's rows.
func (s *Store) Rows(table string) []store.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Row, len(s.tables[table]))
	copy(out, s.tables[table])
	return out
}

func (s *Store) Exists(ctx context.Context, table string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tables[table]
	return ok, nil
}

func (s *Store) Columns(ctx context.Context, table string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schema[table], nil
}

func (s *Store) FetchPage(ctx context.Context, table string, offset, limit int) ([]store.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.FetchCalls[table]++
	if err := s.FailFetch[table]; err != nil {
		return nil, err
	}

	rows := s.tables[table]
	if offset >= len(rows) {
		return nil, nil
	}
	end := offset + limit
	if end > len(rows) {
		end = len(rows)
	}

	page := make([]store.Row, end-offset)
	for i, row := range rows[offset:end] {
		page[i] = cloneRow(row)
	}
	return page, nil
}

func (s *Store) UpsertBatch(ctx context.Context, table string, rows []store.Row, conflictKey string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.UpsertCalls[table]++
	if err := s.FailUpsert[table]; err != nil {
		return 0, err
	}

	for _, row := range rows {
		s.upsertRow(table, row, conflictKey)
	}
	return len(rows), nil
}

func (s *Store) InsertBatch(ctx context.Context, table string, rows []store.Row) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.FailInsert[table]; err != nil {
		return 0, err
	}

	for _, row := range rows {
		s.tables[table] = append(s.tables[table], cloneRow(row))
	}
	return len(rows), nil
}

func (s *Store) DeleteAll(ctx context.Context, table string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := len(s.tables[table])
	if _, ok := s.tables[table]; ok {
		s.tables[table] = nil
	}
	return deleted, nil
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) upsertRow(table string, row store.Row, conflictKey string) {
	if strings.TrimSpace(conflictKey) == "" {
		conflictKey = "id"
	}
	key := store.RowKey(row, conflictKey)
	for i, existing := range s.tables[table] {
		if store.RowKey(existing, conflictKey) == key {
			s.tables[table][i] = cloneRow(row)
			return
		}
	}
	s.tables[table] = append(s.tables[table], cloneRow(row))
}

func cloneRow(row store.Row) store.Row {
	out := make(store.Row, len(row))
	for col, val := range row {
		out[col] = val
	}
	return out
}
