// Package plan owns the table dependency graph of the rental platform
// schema. The clone order is a topological sort computed once at package
// init from the known foreign-key relationships, never re-derived per call.
package plan

import (
	"fmt"
	"sort"
)

// Table pairs a table name with its declared upsert conflict key. Declaring
// the key here, next to the table's position in the plan, keeps conflict
// handling auditable instead of inferred.
type Table struct {
	Name        string
	ConflictKey string
}

// dependencies maps each table to the tables it references by foreign key.
// Reference/owner tables have no entries.
var dependencies = map[string][]string{
	"currencies":                {},
	"categories":                {},
	"zone_areas":                {},
	"connection_types":          {},
	"payment_methods":           {},
	"owners":                    {},
	"teams":                     {},
	"profiles":                  {"teams"},
	"partners":                  {"owners", "zone_areas"},
	"lofts":                     {"partners", "categories", "zone_areas", "connection_types"},
	"sessions":                  {"profiles"},
	"reservations":              {"lofts", "profiles", "currencies"},
	"availability":              {"lofts"},
	"pricing_rules":             {"lofts", "currencies"},
	"payments":                  {"reservations", "payment_methods", "currencies"},
	"transactions":              {"payments", "categories", "currencies"},
	"transaction_references":    {"transactions"},
	"bill_notifications":        {"partners", "transactions"},
	"conversations":             {"reservations", "profiles"},
	"conversation_participants": {"conversations", "profiles"},
	"messages":                  {"conversations", "profiles"},
	"notifications":             {"profiles"},
	"audit_logs":                {"profiles"},
}

// conflictKeys lists tables whose natural unique key is not "id".
var conflictKeys = map[string]string{
	"availability":              "loft_id,date",
	"conversation_participants": "conversation_id,profile_id",
}

// defaultOrder is the fixed topological order, computed once.
var defaultOrder []Table

func init() {
	order, err := topoSort(dependencies)
	if err != nil {
		panic(fmt.Sprintf("plan: invalid table dependency graph: %v", err))
	}
	defaultOrder = order
}

func topoSort(deps map[string][]string) ([]Table, error) {
	indegree := make(map[string]int, len(deps))
	dependents := make(map[string][]string, len(deps))
	for name := range deps {
		indegree[name] = 0
	}
	for name, refs := range deps {
		for _, ref := range refs {
			if _, known := deps[ref]; !known {
				return nil, fmt.Errorf("table %s references unknown table %s", name, ref)
			}
			indegree[name]++
			dependents[ref] = append(dependents[ref], name)
		}
	}

	// Ready tables are drained in sorted name order so the plan is stable
	// across builds.
	var ready []string
	for name, deg := range indegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	var order []Table
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, Table{Name: name, ConflictKey: ConflictKey(name)})

		next := dependents[name]
		sort.Strings(next)
		for _, dep := range next {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
				sort.Strings(ready)
			}
		}
	}

	if len(order) != len(deps) {
		return nil, fmt.Errorf("circular dependency among tables")
	}
	return order, nil
}

// ConflictKey returns the declared upsert conflict key for a table; unknown
// tables fall back to "id".
func ConflictKey(name string) string {
	if key, ok := conflictKeys[name]; ok {
		return key
	}
	return "id"
}

// Known reports whether the table is part of the platform schema.
func Known(name string) bool {
	_, ok := dependencies[name]
	return ok
}

// DefaultTables returns the full plan in dependency order.
func DefaultTables() []Table {
	out := make([]Table, len(defaultOrder))
	copy(out, defaultOrder)
	return out
}

// TableNames returns the names of the full plan in dependency order.
func TableNames() []string {
	names := make([]string, len(defaultOrder))
	for i, t := range defaultOrder {
		names[i] = t.Name
	}
	return names
}

// Order filters the default plan down to the requested tables, keeping
// dependency order. Tables unknown to the plan are treated as
// dependency-free and appended at the end, each with a warning; they are
// never silently dropped.
func Order(requested []string) ([]Table, []string) {
	if len(requested) == 0 {
		return DefaultTables(), nil
	}

	want := make(map[string]bool, len(requested))
	for _, name := range requested {
		want[name] = true
	}

	var ordered []Table
	for _, t := range defaultOrder {
		if want[t.Name] {
			ordered = append(ordered, t)
			delete(want, t.Name)
		}
	}

	var warnings []string
	var unknown []string
	for name := range want {
		unknown = append(unknown, name)
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		ordered = append(ordered, Table{Name: name, ConflictKey: ConflictKey(name)})
		warnings = append(warnings, fmt.Sprintf("table %s is not in the dependency plan; appended without dependencies", name))
	}

	return ordered, warnings
}

// Reverse returns the tables in reverse order, the order used when clearing
// a target before a fresh load.
func Reverse(tables []Table) []Table {
	out := make([]Table, len(tables))
	for i, t := range tables {
		out[len(tables)-1-i] = t
	}
	return out
}
