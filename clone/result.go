package clone

import (
	"time"

	"loftdata/validate"
)

// Status classifies one table's clone outcome.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusEmpty   Status = "empty"
	StatusDryRun  Status = "dry-run"
)

// TableResult is one table's outcome. Error is set only when Status is
// StatusError.
type TableResult struct {
	Table   string
	Status  Status
	Records int
	Error   string
}

// Statistics aggregates counts across a clone invocation. Function and
// trigger counts live on the audit system's own result.
type Statistics struct {
	TablesCloned      int
	RecordsCloned     int
	RecordsAnonymized int
}

// Result is the aggregate outcome of one generic clone invocation.
type Result struct {
	Success           bool
	OperationID       string
	SourceEnvironment string
	TargetEnvironment string
	Tables            []TableResult
	Statistics        Statistics
	BackupID          string
	Integrity         *validate.Report
	AnonymizationScan *validate.Report
	Errors            []string
	Warnings          []string
	Duration          time.Duration
	CompletedAt       time.Time
}

func (r *Result) record(tr TableResult) {
	r.Tables = append(r.Tables, tr)
	switch tr.Status {
	case StatusSuccess, StatusDryRun:
		r.Statistics.TablesCloned++
		r.Statistics.RecordsCloned += tr.Records
	case StatusError:
		r.Success = false
		r.Errors = append(r.Errors, tr.Table+": "+tr.Error)
	}
}

// Counts returns the number of success, error and empty table results;
// dry-run counts as success.
func (r *Result) Counts() (success, errored, empty int) {
	for _, tr := range r.Tables {
		switch tr.Status {
		case StatusSuccess, StatusDryRun:
			success++
		case StatusError:
			errored++
		case StatusEmpty:
			empty++
		}
	}
	return
}
