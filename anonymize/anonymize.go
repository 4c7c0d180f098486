// Package anonymize scrubs PII from cloned rows. Rules are registered per
// table; anonymization is deterministic for a given input so that re-running
// a clone yields identical synthetic values, and it never touches primary or
// foreign key columns.
package anonymize

import (
	"fmt"
	"strings"
	"time"

	"loftdata/store"
)

// Rule transforms the rows of one table.
type Rule interface {
	Anonymize(rows []store.Row) []store.Row
}

// RuleFunc adapts a function to the Rule interface.
type RuleFunc func(rows []store.Row) []store.Row

func (f RuleFunc) Anonymize(rows []store.Row) []store.Row {
	return f(rows)
}

// Registry maps table names to their anonymization rule. Tables without a
// rule pass through unchanged.
type Registry struct {
	targetEnv   string
	rules       map[string]Rule
	demoteRoles bool
}

// NewRegistry builds the default rule set for a clone into targetEnv.
func NewRegistry(targetEnv string) *Registry {
	r := &Registry{
		targetEnv: strings.ToLower(targetEnv),
		rules:     make(map[string]Rule),
	}

	r.Register("profiles", RuleFunc(r.anonymizeProfiles))
	r.Register("sessions", RuleFunc(dropAll))
	r.Register("notifications", RuleFunc(anonymizeNotifications))
	r.Register("messages", RuleFunc(anonymizeMessages))
	r.Register("audit_logs", RuleFunc(anonymizeAuditLogs))
	r.Register("audit.activity_logs", RuleFunc(anonymizeAuditLogs))
	r.Register("audit.security_events", RuleFunc(anonymizeAuditLogs))
	r.Register("reservations", RuleFunc(r.anonymizeReservations))

	return r
}

func (r *Registry) Register(table string, rule Rule) {
	r.rules[table] = rule
}

// DemoteRoles makes the profile rule reset elevated roles to plain users;
// used when the clone does not preserve user roles.
func (r *Registry) DemoteRoles() {
	r.demoteRoles = true
}

// Apply runs the table's rule, if any, and reports whether one applied.
// After the rule runs, primary and foreign key columns are restored from the
// original rows so referential integrity survives any rule bug.
func (r *Registry) Apply(table string, rows []store.Row) ([]store.Row, bool) {
	rule, ok := r.rules[table]
	if !ok {
		return rows, false
	}

	originals := make([]store.Row, len(rows))
	for i, row := range rows {
		orig := make(store.Row, len(row))
		for col, val := range row {
			orig[col] = val
		}
		originals[i] = orig
	}

	out := rule.Anonymize(rows)

	for i, row := range out {
		if i >= len(originals) {
			break
		}
		for col, val := range originals[i] {
			if isKeyColumn(col) {
				row[col] = val
			}
		}
	}
	return out, true
}

func isKeyColumn(col string) bool {
	return col == "id" || col == "uuid" || strings.HasSuffix(col, "_id")
}

// SyntheticEmail derives a stable test address from a record id: the last
// six characters of the id become the local-part suffix, so the same record
// always maps to the same address.
func SyntheticEmail(id, targetEnv string) string {
	return fmt.Sprintf("user-%s@%s.local", idSuffix(id), strings.ToLower(targetEnv))
}

func idSuffix(id string) string {
	if len(id) <= 6 {
		return id
	}
	return id[len(id)-6:]
}

func (r *Registry) anonymizeProfiles(rows []store.Row) []store.Row {
	tag := fmt.Sprintf("(%s)", strings.ToUpper(r.targetEnv))
	now := time.Now().UTC().Format(time.RFC3339)

	for _, row := range rows {
		id, _ := row["id"].(string)
		row["email"] = SyntheticEmail(id, r.targetEnv)

		if name, ok := row["full_name"].(string); ok && name != "" {
			if !strings.Contains(name, tag) {
				row["full_name"] = name + " " + tag
			}
		}

		for _, col := range []string{"provider_token", "provider_refresh_token", "access_token", "refresh_token"} {
			if _, ok := row[col]; ok {
				row[col] = nil
			}
		}

		if _, ok := row["updated_at"]; ok {
			row["updated_at"] = now
		}

		if r.demoteRoles {
			if _, ok := row["role"]; ok {
				row["role"] = "user"
			}
		}
	}
	return rows
}

// Sessions are never meaningfully clonable.
func dropAll(rows []store.Row) []store.Row {
	return nil
}

const (
	notificationPlaceholder = "[notification content removed]"
	messagePlaceholder      = "[message content anonymized]"
)

func anonymizeNotifications(rows []store.Row) []store.Row {
	for _, row := range rows {
		if msg, ok := row["message"].(string); ok && looksLikeEmail(msg) {
			row["message"] = notificationPlaceholder
		}
		if _, ok := row["read"]; ok {
			row["read"] = true
		}
	}
	return rows
}

func anonymizeMessages(rows []store.Row) []store.Row {
	for _, row := range rows {
		row["content"] = messagePlaceholder
		if _, ok := row["metadata"]; ok {
			row["metadata"] = map[string]any{"anonymized": true}
		}
	}
	return rows
}

// piiFields are scrubbed from audit payloads; structural fields (ids,
// timestamps, action, status) are left alone so log analytics stay usable.
var piiFields = []string{"email", "name", "full_name", "phone", "address", "ip_address", "user_agent"}

func anonymizeAuditLogs(rows []store.Row) []store.Row {
	for _, row := range rows {
		for _, field := range piiFields {
			if _, ok := row[field]; ok {
				row[field] = "[redacted]"
			}
		}
		if details, ok := row["details"].(map[string]any); ok {
			for _, field := range piiFields {
				if _, present := details[field]; present {
					details[field] = "[redacted]"
				}
			}
		}
	}
	return rows
}

func (r *Registry) anonymizeReservations(rows []store.Row) []store.Row {
	for _, row := range rows {
		id, _ := row["id"].(string)
		if _, ok := row["guest_email"]; ok {
			row["guest_email"] = SyntheticEmail(id, r.targetEnv)
		}
		if _, ok := row["guest_name"]; ok {
			row["guest_name"] = "Guest " + idSuffix(id)
		}
		if _, ok := row["guest_phone"]; ok {
			row["guest_phone"] = "+00000000000"
		}
	}
	return rows
}

// RoundPricing replaces exact amounts with values rounded to the nearest
// 100, preserving order-of-magnitude analytics without exact figures. Used
// by the reservations cloner when pricing anonymization is requested.
func RoundPricing(rows []store.Row, columns ...string) []store.Row {
	for _, row := range rows {
		for _, col := range columns {
			switch v := row[col].(type) {
			case float64:
				row[col] = float64(int((v+50)/100)) * 100
			case int:
				row[col] = ((v + 50) / 100) * 100
			}
		}
	}
	return rows
}

func looksLikeEmail(s string) bool {
	at := strings.IndexByte(s, '@')
	if at <= 0 {
		return false
	}
	rest := s[at+1:]
	dot := strings.IndexByte(rest, '.')
	return dot > 0 && dot < len(rest)-1 && !strings.ContainsAny(rest[:dot], " \t")
}
