package systems

import (
	"context"
	"time"

	"loftdata/anonymize"
	"loftdata/internal"
	"loftdata/plan"
	"loftdata/store"
)

// auditTables are schema-qualified; the audit subsystem lives in its own
// schema alongside its functions and triggers.
var auditTables = []string{"audit.activity_logs", "audit.security_events"}

const auditSchema = "audit"

// AuditCloner clones the audit subsystem: log tables, function and trigger
// definitions, with optional payload anonymization.
type AuditCloner struct {
	source   store.TableStore
	target   store.TableStore
	registry *anonymize.Registry
}

func NewAuditCloner(source, target store.TableStore, registry *anonymize.Registry) *AuditCloner {
	return &AuditCloner{source: source, target: target, registry: registry}
}

func (a *AuditCloner) Clone(ctx context.Context, opts AuditOptions, pageSize, batchSize int, dryRun bool) *AuditResult {
	start := time.Now()
	result := &AuditResult{
		SystemResult:       SystemResult{System: "audit", Success: true},
		StructurePreserved: true,
	}
	defer func() { result.Duration = time.Since(start) }()

	present, err := tablePresent(ctx, a.source, auditTables[0])
	if err != nil {
		result.fail("audit probe failed: %v", err)
		return result
	}
	if !present {
		result.warn("audit system missing on source; skipped")
		return result
	}

	for _, table := range auditTables {
		if !a.cloneLogTable(ctx, result, table, opts, pageSize, batchSize, dryRun) {
			continue
		}
	}

	if opts.IncludeFunctions || opts.IncludeTriggers {
		a.cloneDefinitions(ctx, result, opts, dryRun)
	}

	if !dryRun {
		a.verifyTrigger(ctx, result)
	}

	return result
}

func (a *AuditCloner) cloneLogTable(ctx context.Context, result *AuditResult, table string, opts AuditOptions, pageSize, batchSize int, dryRun bool) bool {
	present, err := tablePresent(ctx, a.target, table)
	if err != nil {
		result.fail("%v", err)
		return false
	}
	if !present {
		result.warn("audit table %s missing on target; skipped", table)
		return false
	}

	rows, err := fetchAll(ctx, a.source, table, pageSize)
	if err != nil {
		result.fail("%v", err)
		return false
	}
	if len(rows) == 0 {
		return true
	}

	if opts.AnonymizeLogs {
		var applied bool
		rows, applied = a.registry.Apply(table, rows)
		if applied {
			result.LogsAnonymized += len(rows)
		}
	}

	if dryRun {
		result.LogsCloned += len(rows)
		result.RecordsCloned += len(rows)
		return true
	}

	written, err := writeRows(ctx, a.target, table, plan.ConflictKey(table), rows, batchSize)
	result.LogsCloned += written
	result.RecordsCloned += written
	if err != nil {
		result.fail("%v", err)
		return false
	}
	return true
}

// cloneDefinitions copies function and trigger definitions when both stores
// expose schema objects; anything less capable is a warning, not a failure.
func (a *AuditCloner) cloneDefinitions(ctx context.Context, result *AuditResult, opts AuditOptions, dryRun bool) {
	src, ok := a.source.(store.SchemaObjects)
	if !ok {
		result.warn("source store cannot read function/trigger definitions; skipped")
		return
	}
	dst, ok := a.target.(store.SchemaObjects)
	if !ok {
		result.warn("target store cannot apply function/trigger definitions; skipped")
		return
	}

	if opts.IncludeFunctions {
		defs, err := src.FunctionDefinitions(ctx, auditSchema)
		if err != nil {
			result.warn("failed to read audit functions: %v", err)
		} else {
			result.FunctionsCloned += a.applyDefinitions(ctx, result, dst, defs, dryRun)
		}
	}

	if opts.IncludeTriggers {
		defs, err := src.TriggerDefinitions(ctx, auditSchema)
		if err != nil {
			result.warn("failed to read audit triggers: %v", err)
		} else {
			result.TriggersCloned += a.applyDefinitions(ctx, result, dst, defs, dryRun)
		}
	}
}

func (a *AuditCloner) applyDefinitions(ctx context.Context, result *AuditResult, dst store.SchemaObjects, defs []store.Definition, dryRun bool) int {
	applied := 0
	for _, def := range defs {
		if dryRun {
			applied++
			continue
		}
		if err := dst.ApplyDefinition(ctx, def); err != nil {
			result.warn("failed to apply %s %s: %v", def.Kind, def.Name, err)
			result.StructurePreserved = false
			continue
		}
		applied++
	}
	return applied
}

// verifyTrigger confirms the audit mechanism still accepts writes on the
// target by upserting an idempotent probe row.
func (a *AuditCloner) verifyTrigger(ctx context.Context, result *AuditResult) {
	probe := store.Row{
		"id":     "audit-clone-probe",
		"action": "clone_verification",
	}
	_, err := a.target.UpsertBatch(ctx, auditTables[0], []store.Row{probe}, "id")
	if err != nil {
		result.warn("audit trigger verification failed: %v", err)
		return
	}
	result.TriggerVerified = true
	internal.Logger.Debug("Audit trigger verification succeeded")
}
