package systems

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"loftdata/anonymize"
	"loftdata/clone"
	"loftdata/config"
	"loftdata/internal"
	"loftdata/safety"
	"loftdata/store"
)

// SpecializedSystemsCloner runs the audit, conversations and reservations
// cloners in a fixed order, tolerating per-system failures.
type SpecializedSystemsCloner struct {
	sourceEnv config.Environment
	targetEnv config.Environment

	source store.TableStore
	target store.TableStore

	registry *anonymize.Registry
	owned    bool
}

func NewSystemsCloner(sourceEnv, targetEnv config.Environment) (*SpecializedSystemsCloner, error) {
	src, err := clone.OpenStore(sourceEnv, true)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to source %s: %w", sourceEnv.Name, err)
	}
	dst, err := clone.OpenStore(targetEnv, false)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("failed to connect to target %s: %w", targetEnv.Name, err)
	}

	c := NewSystemsClonerWithStores(sourceEnv, targetEnv, src, dst)
	c.owned = true
	return c, nil
}

func NewSystemsClonerWithStores(sourceEnv, targetEnv config.Environment, src, dst store.TableStore) *SpecializedSystemsCloner {
	return &SpecializedSystemsCloner{
		sourceEnv: sourceEnv,
		targetEnv: targetEnv,
		source:    src,
		target:    dst,
		registry:  anonymize.NewRegistry(targetEnv.Name),
	}
}

func (s *SpecializedSystemsCloner) Close() {
	if !s.owned {
		return
	}
	s.source.Close()
	s.target.Close()
}

// CloneAll dispatches to the requested sub-cloners. The safety guard runs
// here too, not just in the generic cloner: sub-cloners can be invoked on
// their own, so this layer cannot rely on an earlier check.
func (s *SpecializedSystemsCloner) CloneAll(ctx context.Context, opts Options) (*ComprehensiveResult, error) {
	start := time.Now()
	result := &ComprehensiveResult{
		Success:           true,
		OperationID:       uuid.NewString(),
		SourceEnvironment: s.sourceEnv.Name,
		TargetEnvironment: s.targetEnv.Name,
	}

	finish := func() *ComprehensiveResult {
		result.Duration = time.Since(start)
		result.CompletedAt = time.Now().UTC()
		return result
	}

	if err := opts.Validate(); err != nil {
		result.Success = false
		result.Errors = append(result.Errors, err.Error())
		return finish(), err
	}
	opts = opts.withDefaults()

	if err := safety.ValidateCloneSource(s.sourceEnv); err != nil {
		result.Success = false
		result.Errors = append(result.Errors, err.Error())
		return finish(), err
	}
	if err := safety.ValidateCloneTarget(s.targetEnv); err != nil {
		result.Success = false
		result.Errors = append(result.Errors, err.Error())
		return finish(), err
	}

	if opts.IncludeAudit {
		internal.Logger.Info("Cloning audit system", "operationId", result.OperationID)
		audit := NewAuditCloner(s.source, s.target, s.registry)
		result.Audit = audit.Clone(ctx, *opts.Audit, opts.PageSize, opts.BatchSize, opts.DryRun)
		s.collect(result, &result.Audit.SystemResult)
	}

	if opts.IncludeConversations {
		internal.Logger.Info("Cloning conversations system", "operationId", result.OperationID)
		conversations := NewConversationsCloner(s.source, s.target, s.registry)
		result.Conversations = conversations.Clone(ctx, *opts.Conversations, opts.PageSize, opts.BatchSize, opts.DryRun)
		s.collect(result, &result.Conversations.SystemResult)
	}

	if opts.IncludeReservations {
		internal.Logger.Info("Cloning reservations system", "operationId", result.OperationID)
		reservations := NewReservationsCloner(s.source, s.target, s.registry)
		result.Reservations = reservations.Clone(ctx, *opts.Reservations, opts.PageSize, opts.BatchSize, opts.DryRun)
		s.collect(result, &result.Reservations.SystemResult)
	}

	return finish(), nil
}

// collect folds one system's outcome into the aggregate. A failed system
// flips overall success but never stops its siblings.
func (s *SpecializedSystemsCloner) collect(result *ComprehensiveResult, sys *SystemResult) {
	result.Warnings = append(result.Warnings, sys.Warnings...)
	if sys.Success {
		result.SystemsCloned = append(result.SystemsCloned, sys.System)
		return
	}
	result.Success = false
	for _, e := range sys.Errors {
		result.Errors = append(result.Errors, sys.System+": "+e)
	}
}
