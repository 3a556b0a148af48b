package tables

import (
	"testing"
	"time"

	"github.com/housesprinkler/controller/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestIntervalForIndex_Buckets(t *testing.T) {
	scale := domain.IntervalScale{Name: "Default", ByIndex: [11]int{7, 6, 5, 4, 3, 2, 2, 1, 1, 1, 1}}

	assert.Equal(t, 7, IntervalForIndex(scale, 0))
	assert.Equal(t, 6, IntervalForIndex(scale, 15))
	assert.Equal(t, 1, IntervalForIndex(scale, 100))
}

func TestIntervalForIndex_ClampsOutOfRange(t *testing.T) {
	scale := domain.IntervalScale{Name: "Default", ByIndex: [11]int{7, 6, 5, 4, 3, 2, 2, 1, 1, 1, 1}}

	assert.Equal(t, 7, IntervalForIndex(scale, -50))
	assert.Equal(t, 1, IntervalForIndex(scale, 500))
}

func TestIntervalForIndex_MissingTableDefaultsToDaily(t *testing.T) {
	assert.Equal(t, 1, IntervalForIndex(domain.IntervalScale{}, 50))
}

func TestSeasonMultiplier_Monthly(t *testing.T) {
	table := domain.SeasonTable{Name: "Monthly", Values: []int{10, 20, 30, 40, 50, 60, 70, 80, 90, 80, 50, 20}}
	july := time.Date(2026, time.July, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 70, SeasonMultiplier(table, july))
}

func TestSeasonMultiplier_Weekly(t *testing.T) {
	values := make([]int, 52)
	for i := range values {
		values[i] = i + 1
	}
	table := domain.SeasonTable{Name: "Weekly", Values: values}

	now := time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC)
	_, week := now.ISOWeek()
	assert.Equal(t, values[week-1], SeasonMultiplier(table, now))
}

func TestSeasonMultiplier_MissingTableDefaultsTo100(t *testing.T) {
	assert.Equal(t, 100, SeasonMultiplier(domain.SeasonTable{}, time.Now()))
}
