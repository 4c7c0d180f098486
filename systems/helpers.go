package systems

import (
	"context"
	"fmt"
	"time"

	"loftdata/store"
)

const opTimeout = 30 * time.Second

func fetchAll(ctx context.Context, st store.TableStore, table string, pageSize int) ([]store.Row, error) {
	var rows []store.Row
	offset := 0
	for {
		pageCtx, cancel := context.WithTimeout(ctx, opTimeout)
		page, err := st.FetchPage(pageCtx, table, offset, pageSize)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("fetch %s at offset %d failed: %w", table, offset, err)
		}

		rows = append(rows, page...)
		if len(page) < pageSize {
			return rows, nil
		}
		offset += len(page)
	}
}

// writeRows upserts in batches with the generic insert fallback.
func writeRows(ctx context.Context, st store.TableStore, table, conflictKey string, rows []store.Row, batchSize int) (int, error) {
	written := 0
	var lastErr error

	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]

		batchCtx, cancel := context.WithTimeout(ctx, opTimeout)
		n, err := st.UpsertBatch(batchCtx, table, batch, conflictKey)
		cancel()
		if err == nil {
			written += n
			continue
		}

		batchCtx, cancel = context.WithTimeout(ctx, opTimeout)
		n, insertErr := st.InsertBatch(batchCtx, table, batch)
		cancel()
		if insertErr == nil {
			written += n
			continue
		}

		lastErr = fmt.Errorf("batch into %s at offset %d failed: upsert: %v; insert: %v", table, start, err, insertErr)
	}

	return written, lastErr
}

// tablePresent probes one side, distinguishing probe failures from absence.
func tablePresent(ctx context.Context, st store.TableStore, table string) (bool, error) {
	exists, err := st.Exists(ctx, table)
	if err != nil {
		return false, fmt.Errorf("failed to probe %s: %w", table, err)
	}
	return exists, nil
}

// idSet collects the "id" values of rows as strings.
func idSet(rows []store.Row) map[string]bool {
	ids := make(map[string]bool, len(rows))
	for _, row := range rows {
		if id, ok := row["id"]; ok {
			ids[fmt.Sprintf("%v", id)] = true
		}
	}
	return ids
}

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func parseDate(val any) (time.Time, bool) {
	switch v := val.(type) {
	case time.Time:
		return v, true
	case string:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
