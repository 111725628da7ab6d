package allocation_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tschnepf/workload-tracker-sub005/allocation"
)

// =============================================================================
// WEEK KEY TESTS
// =============================================================================

func TestMondayOf_AnchorsEveryWeekdayToMonday(t *testing.T) {
	// GIVEN: Each day of a week in March 2026 (Mon Mar 2 .. Sun Mar 8)
	// WHEN: Computing the Monday anchor
	// THEN: All seven days map to Monday March 2

	monday := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	for offset := 0; offset < 7; offset++ {
		day := monday.AddDate(0, 0, offset)
		assert.Equal(t, monday, allocation.MondayOf(day), "day %v", day.Weekday())
	}
}

func TestMondayOf_DropsTimeOfDay(t *testing.T) {
	// Midday Wednesday still anchors to Monday midnight UTC
	wednesday := time.Date(2026, time.March, 4, 15, 30, 0, 0, time.UTC)
	got := allocation.MondayOf(wednesday)

	assert.Equal(t, time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC), got)
}

func TestWeekKeyOf_FormatsAsISODate(t *testing.T) {
	friday := time.Date(2026, time.March, 6, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, allocation.WeekKey("2026-03-02"), allocation.WeekKeyOf(friday))
}

func TestParseWeekKey_NormalizesToMonday(t *testing.T) {
	// GIVEN: A key naming a Thursday
	// WHEN: Parsing
	// THEN: The returned key names that week's Monday

	key, err := allocation.ParseWeekKey("2026-03-05")
	require.NoError(t, err)
	assert.Equal(t, allocation.WeekKey("2026-03-02"), key)
}

func TestParseWeekKey_RejectsGarbage(t *testing.T) {
	_, err := allocation.ParseWeekKey("not-a-date")
	assert.Error(t, err)
}

func TestWeekKey_AddWeeks(t *testing.T) {
	key := allocation.WeekKey("2026-03-02")

	assert.Equal(t, allocation.WeekKey("2026-03-09"), key.AddWeeks(1))
	assert.Equal(t, allocation.WeekKey("2026-02-23"), key.AddWeeks(-1))
	// Across a year boundary
	assert.Equal(t, allocation.WeekKey("2026-12-28"), allocation.WeekKey("2026-12-21").AddWeeks(1))
}

func TestWeeksBetween_CountsMondayToMonday(t *testing.T) {
	// GIVEN: A Wednesday and the Friday two calendar weeks later
	// WHEN: Measuring the distance
	// THEN: Distance is 2 weeks regardless of weekday

	wednesday := time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC)
	laterFriday := time.Date(2026, time.March, 20, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 2, allocation.WeeksBetween(wednesday, laterFriday))
	assert.Equal(t, -2, allocation.WeeksBetween(laterFriday, wednesday))
}

func TestWeeksBetween_SameWeekIsZero(t *testing.T) {
	monday := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	sunday := time.Date(2026, time.March, 8, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 0, allocation.WeeksBetween(monday, sunday))
}

func TestSortWeekKeys_ChronologicalOrder(t *testing.T) {
	set := map[allocation.WeekKey]struct{}{
		"2026-03-16": {},
		"2026-03-02": {},
		"2026-03-09": {},
	}

	got := allocation.SortWeekKeys(set)

	assert.Equal(t, []allocation.WeekKey{"2026-03-02", "2026-03-09", "2026-03-16"}, got)
}
