// Package validate runs post-clone checks against a target environment:
// referential integrity over declared foreign-key pairs and anonymization
// completeness. Integrity violations are errors; anonymization gaps are
// warnings.
package validate

import (
	"context"
	"fmt"
	"strings"

	"loftdata/store"
)

// ConstraintReport describes one foreign-key check.
type ConstraintReport struct {
	Table      string
	Column     string
	References string
	Dangling   int
}

// TableReport describes one table's anonymization check.
type TableReport struct {
	Table     string
	Remaining int
}

type Report struct {
	IsValid               bool
	AnonymizationComplete bool
	Constraints           []ConstraintReport
	Tables                []TableReport
	Warnings              []string
}

// foreignKeys lists the reference pairs checked for dangling values.
var foreignKeys = []struct {
	table, column, references string
}{
	{"lofts", "partner_id", "partners"},
	{"reservations", "loft_id", "lofts"},
	{"payments", "reservation_id", "reservations"},
	{"messages", "conversation_id", "conversations"},
	{"conversation_participants", "conversation_id", "conversations"},
	{"availability", "loft_id", "lofts"},
}

const pageSize = 1000

// DataIntegrity checks the declared foreign keys on the target. A dangling
// reference marks the report invalid.
func DataIntegrity(ctx context.Context, target store.TableStore) (*Report, error) {
	report := &Report{IsValid: true, AnonymizationComplete: true}

	for _, fk := range foreignKeys {
		exists, err := bothExist(ctx, target, fk.table, fk.references)
		if err != nil {
			return nil, err
		}
		if !exists {
			continue
		}

		ids, err := collectIDs(ctx, target, fk.references)
		if err != nil {
			return nil, err
		}

		dangling := 0
		err = eachRow(ctx, target, fk.table, func(row store.Row) {
			val := row[fk.column]
			if val == nil {
				return
			}
			if !ids[fmt.Sprintf("%v", val)] {
				dangling++
			}
		})
		if err != nil {
			return nil, err
		}

		report.Constraints = append(report.Constraints, ConstraintReport{
			Table:      fk.table,
			Column:     fk.column,
			References: fk.references,
			Dangling:   dangling,
		})
		if dangling > 0 {
			report.IsValid = false
		}
	}

	return report, nil
}

// Anonymization checks that PII scrubbing completed: profile emails must be
// synthetic (.local) and message contents must be placeholders.
func Anonymization(ctx context.Context, target store.TableStore) (*Report, error) {
	report := &Report{IsValid: true, AnonymizationComplete: true}

	checks := []struct {
		table string
		bad   func(store.Row) bool
	}{
		{"profiles", func(row store.Row) bool {
			email, _ := row["email"].(string)
			return email != "" && !strings.HasSuffix(email, ".local")
		}},
		{"messages", func(row store.Row) bool {
			content, _ := row["content"].(string)
			return content != "" && strings.Contains(content, "@")
		}},
	}

	for _, check := range checks {
		exists, err := target.Exists(ctx, check.table)
		if err != nil {
			return nil, err
		}
		if !exists {
			continue
		}

		remaining := 0
		err = eachRow(ctx, target, check.table, func(row store.Row) {
			if check.bad(row) {
				remaining++
			}
		})
		if err != nil {
			return nil, err
		}

		report.Tables = append(report.Tables, TableReport{Table: check.table, Remaining: remaining})
		if remaining > 0 {
			report.AnonymizationComplete = false
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("%d row(s) in %s still carry unanonymized data", remaining, check.table))
		}
	}

	return report, nil
}

func bothExist(ctx context.Context, target store.TableStore, a, b string) (bool, error) {
	for _, table := range []string{a, b} {
		exists, err := target.Exists(ctx, table)
		if err != nil {
			return false, fmt.Errorf("failed to probe %s: %w", table, err)
		}
		if !exists {
			return false, nil
		}
	}
	return true, nil
}

func collectIDs(ctx context.Context, target store.TableStore, table string) (map[string]bool, error) {
	ids := make(map[string]bool)
	err := eachRow(ctx, target, table, func(row store.Row) {
		if id, ok := row["id"]; ok {
			ids[fmt.Sprintf("%v", id)] = true
		}
	})
	return ids, err
}

func eachRow(ctx context.Context, target store.TableStore, table string, fn func(store.Row)) error {
	offset := 0
	for {
		page, err := target.FetchPage(ctx, table, offset, pageSize)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", table, err)
		}
		for _, row := range page {
			fn(row)
		}
		if len(page) < pageSize {
			return nil
		}
		offset += len(page)
	}
}
