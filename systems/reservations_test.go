package systems

import (
	"context"
	"strings"
	"testing"
	"time"

	"loftdata/anonymize"
	"loftdata/store"
	"loftdata/store/memstore"
)

func newReservationsFixture() (*ReservationsCloner, *memstore.Store, *memstore.Store) {
	src := memstore.New()
	dst := memstore.New()
	cloner := NewReservationsCloner(src, dst, anonymize.NewRegistry("test"))
	return cloner, src, dst
}

func seedReservationTables(dst *memstore.Store) {
	dst.CreateTable("reservations", "id", "loft_id", "status", "check_in", "check_out", "guest_email", "guest_name", "total_price")
	dst.CreateTable("availability", "loft_id", "date", "is_available")
	dst.CreateTable("pricing_rules", "id", "loft_id", "price")
	dst.CreateTable("payments", "id", "reservation_id", "amount")
}

func TestReservationsCloneWithAnonymization(t *testing.T) {
	cloner, src, dst := newReservationsFixture()
	src.Seed("reservations", store.Row{
		"id":          "res-901",
		"loft_id":     "loft-1",
		"status":      "confirmed",
		"check_in":    "2026-09-01",
		"check_out":   "2026-09-03",
		"guest_email": "guest@example.com",
		"guest_name":  "Jane Guest",
		"total_price": float64(1234),
	})
	seedReservationTables(dst)

	result := cloner.Clone(context.Background(), ReservationsOptions{
		AnonymizeGuestData: true,
		AnonymizePricing:   true,
	}, 100, 50, false)
	if !result.Success {
		t.Fatalf("Clone failed: %v", result.Errors)
	}
	if result.ReservationsCloned != 1 || result.GuestsAnonymized != 1 {
		t.Errorf("Expected 1 reservation cloned and anonymized, got %d/%d",
			result.ReservationsCloned, result.GuestsAnonymized)
	}

	row := dst.Rows("reservations")[0]
	email, _ := row["guest_email"].(string)
	if !strings.HasSuffix(email, "@test.local") {
		t.Errorf("Expected synthetic guest email, got %q", email)
	}
	if row["total_price"] != float64(1200) {
		t.Errorf("Expected price rounded to the nearest 100, got %v", row["total_price"])
	}
	if row["loft_id"] != "loft-1" {
		t.Errorf("Foreign key must survive, got %v", row["loft_id"])
	}
}

func TestReservationStatusAndAgeFilters(t *testing.T) {
	recent := time.Now().UTC().AddDate(0, 0, -10)
	old := time.Now().UTC().AddDate(0, 0, -500)

	reservations := []store.Row{
		{"id": "r1", "status": "confirmed", "check_in": recent.Format("2006-01-02"), "check_out": recent.AddDate(0, 0, 2).Format("2006-01-02")},
		{"id": "r2", "status": "cancelled", "check_in": recent.Format("2006-01-02"), "check_out": recent.AddDate(0, 0, 2).Format("2006-01-02")},
		{"id": "r3", "status": "confirmed", "check_in": old.Format("2006-01-02"), "check_out": old.AddDate(0, 0, 2).Format("2006-01-02")},
	}

	kept, err := filterReservations(reservations, ReservationsOptions{
		StatusFilter: []string{"confirmed"},
		MaxAgeDays:   90,
	})
	if err != nil {
		t.Fatalf("Filter failed: %v", err)
	}
	if len(kept) != 1 || kept[0]["id"] != "r1" {
		t.Errorf("Expected only the recent confirmed reservation, got %v", kept)
	}
}

func TestInvalidDateRangeIsFatal(t *testing.T) {
	cloner, src, dst := newReservationsFixture()
	src.Seed("reservations", store.Row{
		"id":        "res-bad",
		"loft_id":   "loft-1",
		"check_in":  "2026-09-03",
		"check_out": "2026-09-01",
	})
	seedReservationTables(dst)

	result := cloner.Clone(context.Background(), ReservationsOptions{}, 100, 50, false)
	if result.Success {
		t.Fatal("An inverted date range must be fatal")
	}
	if len(result.Errors) == 0 || !strings.Contains(result.Errors[0], "res-bad") {
		t.Errorf("Error should name the reservation, got %v", result.Errors)
	}
	if len(dst.Rows("reservations")) != 0 {
		t.Error("Nothing may be written after an integrity failure")
	}
}

func TestPaymentsFollowTheirReservations(t *testing.T) {
	cloner, src, dst := newReservationsFixture()
	src.Seed("reservations",
		store.Row{"id": "r1", "loft_id": "l1", "status": "confirmed", "check_in": "2026-09-01", "check_out": "2026-09-02"},
		store.Row{"id": "r2", "loft_id": "l1", "status": "cancelled", "check_in": "2026-09-05", "check_out": "2026-09-06"})
	src.Seed("payments",
		store.Row{"id": "p1", "reservation_id": "r1", "amount": float64(100)},
		store.Row{"id": "p2", "reservation_id": "r2", "amount": float64(200)})
	seedReservationTables(dst)

	result := cloner.Clone(context.Background(), ReservationsOptions{
		StatusFilter: []string{"confirmed"},
	}, 100, 50, false)
	if !result.Success {
		t.Fatalf("Clone failed: %v", result.Errors)
	}
	if result.PaymentsCloned != 1 {
		t.Errorf("Expected the cancelled reservation's payment dropped, got %d", result.PaymentsCloned)
	}
	if rows := dst.Rows("payments"); len(rows) != 1 || rows[0]["id"] != "p1" {
		t.Errorf("Expected only p1 on the target, got %v", rows)
	}
}

func TestDanglingPaymentWithoutFiltersIsFatal(t *testing.T) {
	cloner, src, dst := newReservationsFixture()
	src.Seed("reservations",
		store.Row{"id": "r1", "loft_id": "l1", "check_in": "2026-09-01", "check_out": "2026-09-02"})
	src.Seed("payments",
		store.Row{"id": "p-ghost", "reservation_id": "r-missing", "amount": float64(50)})
	seedReservationTables(dst)

	result := cloner.Clone(context.Background(), ReservationsOptions{}, 100, 50, false)
	if result.Success {
		t.Fatal("An orphaned payment must be fatal when no filters explain it")
	}
	if len(result.Errors) == 0 || !strings.Contains(result.Errors[0], "r-missing") {
		t.Errorf("Error should name the missing reservation, got %v", result.Errors)
	}
}

func TestCalendarConsistency(t *testing.T) {
	reservations := []store.Row{
		{"id": "r1", "loft_id": "l1", "check_in": "2026-09-01", "check_out": "2026-09-03"},
	}

	t.Run("consistent calendar", func(t *testing.T) {
		availability := []store.Row{
			{"loft_id": "l1", "date": "2026-09-01", "is_available": false},
			{"loft_id": "l1", "date": "2026-09-02", "is_available": false},
		}
		result := &ReservationsResult{SystemResult: SystemResult{Success: true}}
		checkCalendarConsistency(result, reservations, availability)
		if !result.CalendarConsistencyValidated {
			t.Errorf("Expected a consistent calendar, warnings: %v", result.Warnings)
		}
	})

	t.Run("blocked date without reservation", func(t *testing.T) {
		availability := []store.Row{
			{"loft_id": "l1", "date": "2026-09-01", "is_available": false},
			{"loft_id": "l1", "date": "2026-09-02", "is_available": false},
			{"loft_id": "l1", "date": "2026-12-24", "is_available": false},
		}
		result := &ReservationsResult{SystemResult: SystemResult{Success: true}}
		checkCalendarConsistency(result, reservations, availability)
		if result.CalendarConsistencyValidated {
			t.Error("Expected the stray blocked date to be flagged")
		}
		if !result.Success {
			t.Error("Calendar mismatches are warnings, never failures")
		}
		if len(result.Warnings) != 1 {
			t.Errorf("Expected one warning, got %v", result.Warnings)
		}
	})

	t.Run("unblocked reservation night", func(t *testing.T) {
		availability := []store.Row{
			{"loft_id": "l1", "date": "2026-09-01", "is_available": false},
		}
		result := &ReservationsResult{SystemResult: SystemResult{Success: true}}
		checkCalendarConsistency(result, reservations, availability)
		if result.CalendarConsistencyValidated {
			t.Error("Expected the unblocked night to be flagged")
		}
	})

	t.Run("no availability data passes", func(t *testing.T) {
		result := &ReservationsResult{SystemResult: SystemResult{Success: true}}
		checkCalendarConsistency(result, reservations, nil)
		if !result.CalendarConsistencyValidated {
			t.Error("Absent calendar data is not an inconsistency")
		}
	})
}

func TestReservationsDryRun(t *testing.T) {
	cloner, src, dst := newReservationsFixture()
	src.Seed("reservations",
		store.Row{"id": "r1", "loft_id": "l1", "check_in": "2026-09-01", "check_out": "2026-09-02"})
	seedReservationTables(dst)

	result := cloner.Clone(context.Background(), ReservationsOptions{}, 100, 50, true)
	if !result.Success {
		t.Fatalf("Dry run failed: %v", result.Errors)
	}
	if result.ReservationsCloned != 1 {
		t.Errorf("Dry run should report would-be counts, got %d", result.ReservationsCloned)
	}
	if len(dst.Rows("reservations")) != 0 {
		t.Error("Dry run must not write")
	}
}
