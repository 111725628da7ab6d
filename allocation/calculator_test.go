package allocation_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/tschnepf/workload-tracker-sub005/allocation"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func activeSetting(curve map[int]float64) allocation.RoleSetting {
	return allocation.RoleSetting{
		RoleID:        "role-arch",
		PercentByWeek: allocation.PercentByWeekFromMap(curve, allocation.DefaultLookbackWeeks),
		IsActive:      true,
	}
}

func hours(n float64) decimal.Decimal {
	return decimal.NewFromFloat(n)
}

// dueDate lands on a Friday; the window anchors on its Monday.
var dueDate = time.Date(2026, time.March, 6, 0, 0, 0, 0, time.UTC)

// =============================================================================
// TARGET WINDOW TESTS
// =============================================================================

func TestComputeTarget_ScalesPercentByCapacity(t *testing.T) {
	// GIVEN: Curve 100% due week, 50% one week out, 40h capacity
	// WHEN: Computing targets
	// THEN: 40h on the due week, 20h the week before

	setting := activeSetting(map[int]float64{0: 100, 1: 50})

	window := allocation.ComputeTargetWeeklyHours(dueDate, hours(40), setting, allocation.DefaultLookbackWeeks)

	dueWeek := allocation.WeekKeyOf(dueDate)
	assert.True(t, window[dueWeek].Equal(hours(40)))
	assert.True(t, window[dueWeek.AddWeeks(-1)].Equal(hours(20)))
}

func TestComputeTarget_WindowIsDense(t *testing.T) {
	// GIVEN: A curve touching only offset 0
	// WHEN: Computing with an 8-week lookback
	// THEN: All 9 weeks are present, the untouched ones at zero

	setting := activeSetting(map[int]float64{0: 100})

	window := allocation.ComputeTargetWeeklyHours(dueDate, hours(40), setting, 8)

	assert.Len(t, window, 9)
	dueWeek := allocation.WeekKeyOf(dueDate)
	for offset := 1; offset <= 8; offset++ {
		assert.True(t, window[dueWeek.AddWeeks(-offset)].IsZero(), "offset %d", offset)
	}
}

func TestComputeTarget_ZeroCapacityYieldsAllZeros(t *testing.T) {
	setting := activeSetting(map[int]float64{0: 100, 1: 50})

	window := allocation.ComputeTargetWeeklyHours(dueDate, decimal.Zero, setting, 4)

	assert.Len(t, window, 5)
	for week, target := range window {
		assert.True(t, target.IsZero(), "week %s", week)
	}
}

func TestComputeTarget_InactiveSettingYieldsAllZeros(t *testing.T) {
	setting := activeSetting(map[int]float64{0: 100})
	setting.IsActive = false

	window := allocation.ComputeTargetWeeklyHours(dueDate, hours(40), setting, 4)

	for week, target := range window {
		assert.True(t, target.IsZero(), "week %s", week)
	}
}

func TestComputeTarget_FractionalCapacity(t *testing.T) {
	// 36h capacity at 25% is exactly 9h, no float drift
	setting := activeSetting(map[int]float64{0: 25})

	window := allocation.ComputeTargetWeeklyHours(dueDate, hours(36), setting, 0)

	assert.True(t, window[allocation.WeekKeyOf(dueDate)].Equal(hours(9)))
}

// =============================================================================
// PERCENT CLAMPING TESTS
// =============================================================================

func TestPercentByWeek_SetClampsRange(t *testing.T) {
	curve := allocation.NewPercentByWeek(4)

	curve.Set(0, decimal.NewFromInt(150))
	curve.Set(1, decimal.NewFromInt(-10))

	assert.True(t, curve.At(0).Equal(decimal.NewFromInt(100)))
	assert.True(t, curve.At(1).IsZero())
}

func TestPercentByWeek_OutOfWindowOffsetsAreZero(t *testing.T) {
	curve := allocation.PercentByWeekFromMap(map[int]float64{0: 100}, 4)

	assert.True(t, curve.At(7).IsZero())
	assert.True(t, curve.At(-1).IsZero())
}

// =============================================================================
// WINDOW DIFF TESTS
// =============================================================================

func TestDiffWindows_ReturnsOnlyChangedWeeks(t *testing.T) {
	// GIVEN: Old and new windows sharing one unchanged week
	// WHEN: Diffing
	// THEN: Only the changed weeks appear, signed

	old := allocation.WeekWindow{
		"2026-03-02": hours(40),
		"2026-02-23": hours(20),
	}
	updated := allocation.WeekWindow{
		"2026-03-02": hours(40), // unchanged
		"2026-02-23": hours(10), // reduced
		"2026-03-09": hours(40), // new week
	}

	deltas := allocation.DiffWindows(old, updated)

	assert.Len(t, deltas, 2)
	assert.True(t, deltas["2026-02-23"].Equal(hours(-10)))
	assert.True(t, deltas["2026-03-09"].Equal(hours(40)))
}

func TestDiffWindows_WeekMissingFromNewIsRemoved(t *testing.T) {
	old := allocation.WeekWindow{"2026-03-02": hours(40)}
	updated := allocation.WeekWindow{}

	deltas := allocation.DiffWindows(old, updated)

	assert.True(t, deltas["2026-03-02"].Equal(hours(-40)))
}

func TestDiffWindows_IdenticalWindowsProduceNoDeltas(t *testing.T) {
	w := allocation.WeekWindow{"2026-03-02": hours(40), "2026-02-23": hours(20)}

	assert.Empty(t, allocation.DiffWindows(w, w))
}
