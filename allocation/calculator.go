/*
calculator.go - Pure target-hours computation

PURPOSE:
  Turns a role's percent curve plus a person's weekly capacity into the
  target hours for every week in the rolling window leading up to (and
  including) a deliverable's due week.

DENSITY INVARIANT:
  The returned window always contains lookback+1 entries, zeros included.
  The reallocation engine relies on this: "was non-zero, should now be
  zero" is only detectable if the zero week is materialized.

NUMERIC SEMANTICS:
  All math is decimal. targetHours = clamp(percent, 0, 100) / 100 * capacity.
  Zero or negative capacity yields an all-zero window (no division is ever
  performed, so there is nothing to guard). A deactivated setting also
  yields all zeros - an inactive role never contributes hours.

SEE ALSO:
  - types.go: PercentByWeek, RoleSetting
  - week.go:  Monday anchoring
*/
package allocation

import (
	"time"

	"github.com/shopspring/decimal"
)

// WeekWindow maps Monday-anchored week keys to target hours.
type WeekWindow map[WeekKey]decimal.Decimal

// ComputeTargetWeeklyHours computes the dense target-hours window for one
// role setting against one deliverable date. Offset 0 is the week containing
// deliverableDate; offset lookbackWeeks is the furthest week out. Every
// offset appears in the result, zero-hour weeks included.
func ComputeTargetWeeklyHours(
	deliverableDate time.Time,
	capacityHours decimal.Decimal,
	setting RoleSetting,
	lookbackWeeks int,
) WeekWindow {
	if lookbackWeeks < 0 {
		lookbackWeeks = 0
	}

	window := make(WeekWindow, lookbackWeeks+1)
	dueWeek := WeekKeyOf(deliverableDate)

	zeroOut := !setting.IsActive || capacityHours.Sign() <= 0

	for offset := 0; offset <= lookbackWeeks; offset++ {
		week := dueWeek.AddWeeks(-offset)
		if zeroOut {
			window[week] = decimal.Zero
			continue
		}
		pct := ClampPercent(setting.PercentByWeek.At(offset))
		window[week] = pct.Div(hundred).Mul(capacityHours)
	}

	return window
}

// DiffWindows returns the non-zero per-week deltas that move `old` to `new`.
// Weeks present in either window participate; a week absent from one side
// counts as zero there.
func DiffWindows(old, new WeekWindow) map[WeekKey]decimal.Decimal {
	deltas := make(map[WeekKey]decimal.Decimal)
	for week, target := range new {
		d := target.Sub(old[week])
		if !d.IsZero() {
			deltas[week] = d
		}
	}
	for week, prev := range old {
		if _, seen := new[week]; seen {
			continue
		}
		if !prev.IsZero() {
			deltas[week] = prev.Neg()
		}
	}
	return deltas
}
