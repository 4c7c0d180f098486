package clone

import (
	"fmt"

	"loftdata/backup"
)

const (
	// DefaultPageSize bounds each source fetch.
	DefaultPageSize = 1000
	// DefaultBatchSize bounds each target write.
	DefaultBatchSize = 500
)

// Options controls one generic clone invocation.
type Options struct {
	// Tables restricts the clone to the named tables; empty means the full
	// dependency plan.
	Tables []string

	PageSize  int
	BatchSize int

	// DryRun performs every step except target writes, still reporting
	// would-be record counts.
	DryRun bool

	// Truncate clears target tables in reverse dependency order before
	// loading.
	Truncate bool

	// Anonymize applies the registered PII rules while cloning.
	Anonymize bool

	// PreserveUserRoles keeps profile roles intact during anonymization;
	// otherwise roles are demoted to plain users on the target.
	PreserveUserRoles bool

	// CreateBackup snapshots target tables to BackupStore before any
	// destructive step.
	CreateBackup bool
	BackupStore  backup.Store

	// ValidateAfterClone runs integrity and anonymization checks on the
	// target and attaches the reports.
	ValidateAfterClone bool
}

func (o *Options) withDefaults() Options {
	opts := *o
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	return opts
}

// Validate rejects inconsistent option combinations before any I/O.
func (o *Options) Validate() error {
	if o.CreateBackup && o.BackupStore == nil {
		return fmt.Errorf("createBackup requested without a backup store")
	}
	if o.PageSize < 0 || o.BatchSize < 0 {
		return fmt.Errorf("page and batch sizes must be positive")
	}
	return nil
}
