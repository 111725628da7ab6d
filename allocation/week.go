package allocation

import (
	"fmt"
	"time"
)

// =============================================================================
// WEEK KEY - Monday-anchored week identifier
// =============================================================================

// WeekKey identifies a week by its Monday in ISO date form ("2006-01-02").
// All weekly-hours maps and reallocation windows are keyed this way, so
// week identity is stable regardless of which weekday a deliverable lands on.
type WeekKey string

const weekKeyLayout = "2006-01-02"

// MondayOf returns the Monday (UTC, midnight) of the week containing t.
func MondayOf(t time.Time) time.Time {
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	// time.Weekday puts Sunday at 0; shift so Monday is 0.
	back := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -back)
}

// WeekKeyOf returns the week key for the week containing t.
func WeekKeyOf(t time.Time) WeekKey {
	return WeekKey(MondayOf(t).Format(weekKeyLayout))
}

// ParseWeekKey parses an ISO date and normalizes it to its week's Monday.
func ParseWeekKey(s string) (WeekKey, error) {
	t, err := time.Parse(weekKeyLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid week key %q: %w", s, err)
	}
	return WeekKeyOf(t), nil
}

// Time returns the Monday this key names. Invalid keys return the zero time.
func (k WeekKey) Time() time.Time {
	t, err := time.Parse(weekKeyLayout, string(k))
	if err != nil {
		return time.Time{}
	}
	return t
}

// AddWeeks returns the key n weeks after (or before, for negative n) this one.
func (k WeekKey) AddWeeks(n int) WeekKey {
	return WeekKey(k.Time().AddDate(0, 0, n*7).Format(weekKeyLayout))
}

// WeeksBetween returns the signed number of whole weeks from the week
// containing `from` to the week containing `to`. Positive means `to` is
// later. Both ends are Monday-normalized first, so the distance is always
// an exact multiple of seven days.
func WeeksBetween(from, to time.Time) int {
	days := int(MondayOf(to).Sub(MondayOf(from)).Hours() / 24)
	return days / 7
}
