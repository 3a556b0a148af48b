// Package tables implements the interval and season lookup tables of
// spec §4.3: pure functions of the loaded configuration document.
package tables

import (
	"time"

	"github.com/housesprinkler/controller/internal/domain"
)

// IntervalForIndex maps a watering index (0..100) to a day-interval modifier
// via scale.ByIndex, bucketed by index/10 and clamped to 0..10. A missing
// table (zero value) returns 1 day, matching spec's "1 day (daily)" default.
func IntervalForIndex(scale domain.IntervalScale, index int) int {
	if scale.Name == "" {
		return 1
	}
	bucket := index / 10
	if bucket < 0 {
		bucket = 0
	}
	if bucket > 10 {
		bucket = 10
	}
	return scale.ByIndex[bucket]
}

// SeasonMultiplier selects the monthly or weekly bucket of table depending on
// its array length (12 → monthly, 52/53 → weekly), per spec §4.3 and the
// length validation resolved in §9(b). A missing table (zero value) returns
// 100 (no effect).
func SeasonMultiplier(table domain.SeasonTable, now time.Time) int {
	n := len(table.Values)
	if n == 0 {
		return 100
	}
	if n == 12 {
		return table.Values[int(now.Month())-1]
	}
	// Weekly (52 or 53 entries): ISO week number, 1-indexed, clamped to the
	// table's length so a 53-entry table doesn't panic on a 52-entry year
	// and vice versa.
	_, week := now.ISOWeek()
	idx := week - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return table.Values[idx]
}
