package systems

import (
	"context"
	"fmt"
	"time"

	"loftdata/anonymize"
	"loftdata/plan"
	"loftdata/store"
)

// ReservationsCloner clones reservations, availability, pricing rules and
// payments, then cross-checks the calendar against the reservations.
type ReservationsCloner struct {
	source   store.TableStore
	target   store.TableStore
	registry *anonymize.Registry
}

func NewReservationsCloner(source, target store.TableStore, registry *anonymize.Registry) *ReservationsCloner {
	return &ReservationsCloner{source: source, target: target, registry: registry}
}

func (r *ReservationsCloner) Clone(ctx context.Context, opts ReservationsOptions, pageSize, batchSize int, dryRun bool) *ReservationsResult {
	start := time.Now()
	result := &ReservationsResult{
		SystemResult: SystemResult{System: "reservations", Success: true},
	}
	defer func() { result.Duration = time.Since(start) }()

	present, err := tablePresent(ctx, r.source, "reservations")
	if err != nil {
		result.fail("%v", err)
		return result
	}
	if !present {
		result.warn("reservations system missing on source; skipped")
		return result
	}

	reservations, err := fetchAll(ctx, r.source, "reservations", pageSize)
	if err != nil {
		result.fail("%v", err)
		return result
	}

	reservations, err = filterReservations(reservations, opts)
	if err != nil {
		// Invalid date ranges are data-integrity violations: fatal for this
		// sub-clone, not for siblings.
		result.fail("%v", err)
		return result
	}
	reservationIDs := idSet(reservations)

	if opts.AnonymizeGuestData {
		var applied bool
		reservations, applied = r.registry.Apply("reservations", reservations)
		if applied {
			result.GuestsAnonymized = len(reservations)
		}
	}
	if opts.AnonymizePricing {
		reservations = anonymize.RoundPricing(reservations, "total_price", "cleaning_fee")
	}

	availability, err := r.fetchOptional(ctx, result, "availability", pageSize)
	if err != nil {
		result.fail("%v", err)
		return result
	}
	pricingRules, err := r.fetchOptional(ctx, result, "pricing_rules", pageSize)
	if err != nil {
		result.fail("%v", err)
		return result
	}
	if opts.AnonymizePricing {
		pricingRules = anonymize.RoundPricing(pricingRules, "price", "amount")
	}

	payments, err := r.fetchOptional(ctx, result, "payments", pageSize)
	if err != nil {
		result.fail("%v", err)
		return result
	}
	// Payments follow their reservations: a filtered-out reservation takes
	// its payments with it, and a payment pointing nowhere is fatal.
	var keptPayments []store.Row
	for _, row := range payments {
		resID := fmt.Sprintf("%v", row["reservation_id"])
		if reservationIDs[resID] {
			keptPayments = append(keptPayments, row)
		} else if len(opts.StatusFilter) == 0 && opts.MaxAgeDays <= 0 {
			result.fail("payment %v references missing reservation %v", row["id"], row["reservation_id"])
			return result
		}
	}
	if opts.AnonymizePricing {
		keptPayments = anonymize.RoundPricing(keptPayments, "amount")
	}

	if dryRun {
		result.ReservationsCloned = len(reservations)
		result.AvailabilityCloned = len(availability)
		result.PricingRulesCloned = len(pricingRules)
		result.PaymentsCloned = len(keptPayments)
		result.RecordsCloned = len(reservations) + len(availability) + len(pricingRules) + len(keptPayments)
	} else {
		groups := []struct {
			table string
			rows  []store.Row
			count *int
		}{
			{"reservations", reservations, &result.ReservationsCloned},
			{"availability", availability, &result.AvailabilityCloned},
			{"pricing_rules", pricingRules, &result.PricingRulesCloned},
			{"payments", keptPayments, &result.PaymentsCloned},
		}
		for _, group := range groups {
			if len(group.rows) == 0 {
				continue
			}
			present, err := tablePresent(ctx, r.target, group.table)
			if err != nil {
				result.fail("%v", err)
				return result
			}
			if !present {
				result.warn("table %s missing on target; skipped", group.table)
				continue
			}
			written, err := writeRows(ctx, r.target, group.table, plan.ConflictKey(group.table), group.rows, batchSize)
			*group.count = written
			result.RecordsCloned += written
			if err != nil {
				result.fail("%v", err)
				return result
			}
		}
	}

	checkCalendarConsistency(result, reservations, availability)
	return result
}

func (r *ReservationsCloner) fetchOptional(ctx context.Context, result *ReservationsResult, table string, pageSize int) ([]store.Row, error) {
	present, err := tablePresent(ctx, r.source, table)
	if err != nil {
		return nil, err
	}
	if !present {
		result.warn("table %s missing on source; skipped", table)
		return nil, nil
	}
	return fetchAll(ctx, r.source, table, pageSize)
}

// filterReservations applies status and age filters and rejects invalid
// date ranges.
func filterReservations(reservations []store.Row, opts ReservationsOptions) ([]store.Row, error) {
	statusAllowed := make(map[string]bool, len(opts.StatusFilter))
	for _, s := range opts.StatusFilter {
		statusAllowed[s] = true
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -opts.MaxAgeDays)

	var kept []store.Row
	for _, row := range reservations {
		checkIn, inOK := parseDate(row["check_in"])
		checkOut, outOK := parseDate(row["check_out"])
		if inOK && outOK && !checkOut.After(checkIn) {
			return nil, fmt.Errorf("reservation %v has check_out %v not after check_in %v",
				row["id"], row["check_out"], row["check_in"])
		}

		if len(statusAllowed) > 0 {
			status, _ := row["status"].(string)
			if !statusAllowed[status] {
				continue
			}
		}
		if opts.MaxAgeDays > 0 && inOK && checkIn.Before(cutoff) {
			continue
		}
		kept = append(kept, row)
	}
	return kept, nil
}

// checkCalendarConsistency verifies that every date blocked in the calendar
// is covered by a reservation and every reservation night is blocked.
// Mismatches are warnings, never hard failures.
func checkCalendarConsistency(result *ReservationsResult, reservations, availability []store.Row) {
	type span struct {
		loft     string
		from, to time.Time
	}
	var spans []span
	for _, row := range reservations {
		checkIn, inOK := parseDate(row["check_in"])
		checkOut, outOK := parseDate(row["check_out"])
		if !inOK || !outOK {
			continue
		}
		spans = append(spans, span{
			loft: fmt.Sprintf("%v", row["loft_id"]),
			from: checkIn,
			to:   checkOut,
		})
	}

	covered := func(loft string, date time.Time) bool {
		for _, s := range spans {
			if s.loft == loft && !date.Before(s.from) && date.Before(s.to) {
				return true
			}
		}
		return false
	}

	blocked := make(map[string]bool)
	mismatches := 0
	for _, row := range availability {
		if avail, ok := row["is_available"].(bool); !ok || avail {
			continue
		}
		date, ok := parseDate(row["date"])
		if !ok {
			continue
		}
		loft := fmt.Sprintf("%v", row["loft_id"])
		blocked[loft+"|"+date.Format("2006-01-02")] = true
		if !covered(loft, date) {
			mismatches++
			result.warn("calendar: %s blocked on %s without a covering reservation", loft, date.Format("2006-01-02"))
		}
	}

	for _, s := range spans {
		for date := s.from; date.Before(s.to); date = date.AddDate(0, 0, 1) {
			if len(availability) > 0 && !blocked[s.loft+"|"+date.Format("2006-01-02")] {
				mismatches++
				result.warn("calendar: reservation night %s on %s is not blocked", date.Format("2006-01-02"), s.loft)
			}
		}
	}

	result.CalendarConsistencyValidated = mismatches == 0
}
