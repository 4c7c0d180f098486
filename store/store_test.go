package store

import (
	"reflect"
	"testing"
)

func TestShape(t *testing.T) {
	rows := []Row{
		{"id": "1", "name": "a", "legacy_flag": true},
		{"id": "2", "name": "b", "legacy_flag": false},
	}

	shaped := Shape(rows, []string{"id", "name"})
	if len(shaped) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(shaped))
	}
	for i, row := range shaped {
		if _, ok := row["legacy_flag"]; ok {
			t.Errorf("Row %d: column missing from target should be dropped", i)
		}
		if row["id"] == nil || row["name"] == nil {
			t.Errorf("Row %d: shared columns must survive, got %v", i, row)
		}
	}
	// Originals stay untouched.
	if _, ok := rows[0]["legacy_flag"]; !ok {
		t.Error("Shape must not mutate input rows")
	}
}

func TestShapeWithoutColumnsPassesThrough(t *testing.T) {
	rows := []Row{{"id": "1", "anything": "kept"}}
	shaped := Shape(rows, nil)
	if !reflect.DeepEqual(shaped, rows) {
		t.Errorf("Empty column set should disable shaping, got %v", shaped)
	}
}

func TestSortedColumns(t *testing.T) {
	row := Row{"zeta": 1, "alpha": 2, "mid": 3}
	got := SortedColumns(row)
	expected := []string{"alpha", "mid", "zeta"}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}
}

func TestRowKey(t *testing.T) {
	tests := []struct {
		name string
		a    Row
		b    Row
		key  string
		same bool
	}{
		{
			name: "simple key match",
			a:    Row{"id": "x", "name": "a"},
			b:    Row{"id": "x", "name": "b"},
			key:  "id",
			same: true,
		},
		{
			name: "simple key mismatch",
			a:    Row{"id": "x"},
			b:    Row{"id": "y"},
			key:  "id",
			same: false,
		},
		{
			name: "composite key match",
			a:    Row{"loft_id": "l1", "date": "2026-01-01", "state": "open"},
			b:    Row{"loft_id": "l1", "date": "2026-01-01", "state": "blocked"},
			key:  "loft_id,date",
			same: true,
		},
		{
			name: "composite key mismatch",
			a:    Row{"loft_id": "l1", "date": "2026-01-01"},
			b:    Row{"loft_id": "l1", "date": "2026-01-02"},
			key:  "loft_id,date",
			same: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ka, kb := RowKey(tt.a, tt.key), RowKey(tt.b, tt.key)
			if (ka == kb) != tt.same {
				t.Errorf("Keys %q and %q: expected same=%v", ka, kb, tt.same)
			}
		})
	}
}
