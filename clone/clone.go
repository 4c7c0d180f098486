// Package clone drives the generic table clone: resolve environments, run
// the production safety guard, optionally back up and truncate the target,
// then copy each table in dependency order with column-intersection shaping,
// anonymization and batched upserts.
package clone

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"loftdata/anonymize"
	"loftdata/backup"
	"loftdata/config"
	"loftdata/internal"
	"loftdata/plan"
	"loftdata/safety"
	"loftdata/store"
	"loftdata/validate"
)

// pageTimeout bounds each page fetch and each batch write.
const pageTimeout = 30 * time.Second

// mustHaveTables are probed during the schema preflight; a missing table is
// an operator warning, never fatal.
var mustHaveTables = []string{"currencies", "profiles", "lofts", "reservations"}

type Cloner struct {
	SourceEnv config.Environment
	TargetEnv config.Environment

	source store.TableStore
	target store.TableStore

	registry *anonymize.Registry
	owned    bool
}

// New resolves both environments' stores. The source is opened read-only.
func New(sourceEnv, targetEnv config.Environment) (*Cloner, error) {
	src, err := OpenStore(sourceEnv, true)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to source %s: %w", sourceEnv.Name, err)
	}

	dst, err := OpenStore(targetEnv, false)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("failed to connect to target %s: %w", targetEnv.Name, err)
	}

	c := NewWithStores(sourceEnv, targetEnv, src, dst)
	c.owned = true
	return c, nil
}

// NewWithStores builds a cloner over already-open stores; used by the
// specialized cloners and the tests.
func NewWithStores(sourceEnv, targetEnv config.Environment, src, dst store.TableStore) *Cloner {
	return &Cloner{
		SourceEnv: sourceEnv,
		TargetEnv: targetEnv,
		source:    src,
		target:    dst,
		registry:  anonymize.NewRegistry(targetEnv.Name),
	}
}

// Stores exposes the underlying stores to the specialized cloners.
func (c *Cloner) Stores() (source, target store.TableStore) {
	return c.source, c.target
}

func (c *Cloner) Close() {
	if !c.owned {
		return
	}
	c.source.Close()
	c.target.Close()
}

// Clone runs the end-to-end generic clone. A single table's failure never
// aborts the loop; the aggregate Success flag reflects it instead. Safety
// violations and configuration errors abort before any I/O and are also
// returned as the error.
func (c *Cloner) Clone(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	result := &Result{
		Success:           true,
		OperationID:       uuid.NewString(),
		SourceEnvironment: c.SourceEnv.Name,
		TargetEnvironment: c.TargetEnv.Name,
	}

	fail := func(err error) (*Result, error) {
		result.Success = false
		result.Errors = append(result.Errors, err.Error())
		result.Duration = time.Since(start)
		result.CompletedAt = time.Now().UTC()
		return result, err
	}

	if err := opts.Validate(); err != nil {
		return fail(err)
	}
	opts = opts.withDefaults()

	// The guard runs before any read or write; a violation means zero side
	// effects.
	if err := safety.ValidateCloneSource(c.SourceEnv); err != nil {
		return fail(err)
	}
	if err := safety.ValidateCloneTarget(c.TargetEnv); err != nil {
		return fail(err)
	}
	if err := safety.ValidateDatabaseConnection(c.SourceEnv); err != nil {
		return fail(err)
	}
	if err := safety.ValidateDatabaseConnection(c.TargetEnv); err != nil {
		return fail(err)
	}

	result.Warnings = append(result.Warnings, c.preflight(ctx)...)

	tables, warnings := plan.Order(opts.Tables)
	result.Warnings = append(result.Warnings, warnings...)

	// Fresh rule set per invocation; DemoteRoles is sticky on a registry.
	c.registry = anonymize.NewRegistry(c.TargetEnv.Name)
	if !opts.PreserveUserRoles && opts.Anonymize {
		c.registry.DemoteRoles()
	}

	// Backups run before any destructive step so the id is usable even when
	// the clone fails later.
	if opts.CreateBackup {
		names := make([]string, len(tables))
		for i, t := range tables {
			names[i] = t.Name
		}
		backupID, err := backup.Create(ctx, c.target, names, opts.BackupStore, result.OperationID)
		result.BackupID = backupID
		if err != nil {
			return fail(fmt.Errorf("backup failed: %w", err))
		}
		internal.Logger.Info("Backup completed", "backupId", backupID)
	}

	if opts.Truncate && !opts.DryRun {
		c.truncate(ctx, tables, result)
	}

	for _, table := range tables {
		var tr TableResult
		internal.SimpleSpinner("Cloning "+table.Name, func() error {
			tr = c.cloneTable(ctx, table, opts, result)
			if tr.Status == StatusError {
				return fmt.Errorf("%s", tr.Error)
			}
			return nil
		})
		result.record(tr)
	}
	internal.FinishLine()

	if opts.ValidateAfterClone {
		c.runValidation(ctx, result)
	}

	result.Duration = time.Since(start)
	result.CompletedAt = time.Now().UTC()
	return result, nil
}

// preflight probes the must-have tables on both sides. Mismatches are
// warnings only; the clone proceeds.
func (c *Cloner) preflight(ctx context.Context) []string {
	var warnings []string
	for _, table := range mustHaveTables {
		for side, st := range map[string]store.TableStore{"source": c.source, "target": c.target} {
			exists, err := st.Exists(ctx, table)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("preflight: failed to probe %s on %s: %v", table, side, err))
				continue
			}
			if !exists {
				warnings = append(warnings, fmt.Sprintf("preflight: expected table %s missing on %s", table, side))
			}
		}
	}
	return warnings
}

// truncate clears target tables in reverse dependency order. Missing or
// already-empty tables are not errors.
func (c *Cloner) truncate(ctx context.Context, tables []plan.Table, result *Result) {
	for _, table := range plan.Reverse(tables) {
		exists, err := c.target.Exists(ctx, table.Name)
		if err != nil || !exists {
			continue
		}
		deleted, err := c.target.DeleteAll(ctx, table.Name)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("truncate %s: %v", table.Name, err))
			continue
		}
		internal.Logger.Debug("Cleared target table", "table", table.Name, "deleted", deleted)
	}
}

func (c *Cloner) cloneTable(ctx context.Context, table plan.Table, opts Options, result *Result) TableResult {
	tr := TableResult{Table: table.Name}

	targetExists, err := c.target.Exists(ctx, table.Name)
	if err != nil {
		tr.Status = StatusError
		tr.Error = fmt.Sprintf("target probe failed: %v", err)
		return tr
	}
	if !targetExists {
		tr.Status = StatusEmpty
		return tr
	}

	sourceExists, err := c.source.Exists(ctx, table.Name)
	if err != nil {
		tr.Status = StatusError
		tr.Error = fmt.Sprintf("source probe failed: %v", err)
		return tr
	}
	if !sourceExists {
		tr.Status = StatusEmpty
		return tr
	}

	rows, err := c.fetchAll(ctx, table.Name, opts.PageSize)
	if err != nil {
		tr.Status = StatusError
		tr.Error = err.Error()
		return tr
	}
	if len(rows) == 0 {
		tr.Status = StatusEmpty
		return tr
	}

	// Column-intersection shaping tolerates schema drift between the two
	// sides; dropped columns are informational only.
	columns, err := c.target.Columns(ctx, table.Name)
	if err != nil {
		internal.Logger.Debug("Could not sample target schema; shaping disabled", "table", table.Name, "error", err)
		columns = nil
	}
	rows = store.Shape(rows, columns)

	if opts.Anonymize {
		var applied bool
		rows, applied = c.registry.Apply(table.Name, rows)
		if applied {
			result.Statistics.RecordsAnonymized += len(rows)
		}
		if len(rows) == 0 {
			tr.Status = StatusEmpty
			return tr
		}
	}

	if opts.DryRun {
		tr.Status = StatusDryRun
		tr.Records = len(rows)
		return tr
	}

	written, writeErr := c.writeAll(ctx, table, rows, opts.BatchSize)
	tr.Records = written
	if writeErr != nil {
		tr.Status = StatusError
		tr.Error = writeErr.Error()
		return tr
	}

	tr.Status = StatusSuccess
	return tr
}

// fetchAll pages through the source table until a short page. Each page
// fetch carries its own timeout.
func (c *Cloner) fetchAll(ctx context.Context, table string, pageSize int) ([]store.Row, error) {
	var rows []store.Row
	offset := 0
	for {
		pageCtx, cancel := context.WithTimeout(ctx, pageTimeout)
		page, err := c.source.FetchPage(pageCtx, table, offset, pageSize)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("fetch at offset %d failed: %w", offset, err)
		}

		rows = append(rows, page...)
		if len(page) < pageSize {
			return rows, nil
		}
		offset += len(page)
	}
}

// writeAll upserts rows in fixed-size batches. A failed upsert falls back to
// a plain insert; when both fail the batch's rows are excluded from the
// written count and the loop continues with the next batch.
func (c *Cloner) writeAll(ctx context.Context, table plan.Table, rows []store.Row, batchSize int) (int, error) {
	written := 0
	var lastErr error

	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]

		batchCtx, cancel := context.WithTimeout(ctx, pageTimeout)
		n, err := c.target.UpsertBatch(batchCtx, table.Name, batch, table.ConflictKey)
		cancel()
		if err == nil {
			written += n
			continue
		}
		internal.Logger.Warn("Upsert failed; falling back to insert", "table", table.Name, "error", err)

		batchCtx, cancel = context.WithTimeout(ctx, pageTimeout)
		n, insertErr := c.target.InsertBatch(batchCtx, table.Name, batch)
		cancel()
		if insertErr == nil {
			written += n
			continue
		}

		lastErr = fmt.Errorf("batch at offset %d failed: upsert: %v; insert: %v", start, err, insertErr)
	}

	return written, lastErr
}

func (c *Cloner) runValidation(ctx context.Context, result *Result) {
	integrity, err := validate.DataIntegrity(ctx, c.target)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("integrity validation failed to run: %v", err))
	} else {
		result.Integrity = integrity
		if !integrity.IsValid {
			// Referential integrity failures are errors, not warnings.
			result.Success = false
			result.Errors = append(result.Errors, "post-clone integrity validation found dangling references")
		}
	}

	scan, err := validate.Anonymization(ctx, c.target)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("anonymization validation failed to run: %v", err))
		return
	}
	result.AnonymizationScan = scan
	result.Warnings = append(result.Warnings, scan.Warnings...)
}
