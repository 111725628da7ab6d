/*
Package workload provides the domain layer for resource/workload tracking.

PURPOSE:
  People, departments, roles, projects, deliverables and weekly-hour
  assignments - the entities the allocation engine operates on - plus the
  two services built on the allocation core:
  - TemplateService:     resolves and edits auto-hours templates/settings
  - ReallocationEngine:  redistributes assignment hours when a
                         deliverable's date moves

KEY TYPES IN THIS FILE:
  - Person:      has a department role and a weekly capacity in hours
  - Deliverable: carries the date and phase that drive auto-hours
  - Assignment:  person-on-project with a sparse weekly-hours map
  - WeeklyHours: week-key -> hours, absent key means zero

SEE ALSO:
  - reallocation.go: The reallocation engine
  - templates.go:    Template/settings service
  - phases.go:       The phase universe (sd/dd/ifp/ifc by default)
*/
package workload

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tschnepf/workload-tracker-sub005/allocation"
)

// =============================================================================
// ORGANIZATION - Departments, roles, people
// =============================================================================

type Department struct {
	ID   string
	Name string
}

// Role is a department role. A role may be assigned an auto-hours template;
// when unset (or when the template does not opt into a deliverable's phase)
// the global defaults apply.
type Role struct {
	ID           allocation.RoleID
	Name         string
	DepartmentID string
	TemplateID   *allocation.TemplateID
}

// Person is an allocatable resource. WeeklyCapacityHours is the full-time
// capacity percent curves are realized against; zero capacity simply means
// the auto-hours engine never contributes hours for this person.
type Person struct {
	ID                  string
	Name                string
	DepartmentID        string
	RoleID              allocation.RoleID
	WeeklyCapacityHours decimal.Decimal
}

// =============================================================================
// PROJECTS AND DELIVERABLES
// =============================================================================

type Project struct {
	ID     string
	Name   string
	Client string
	Status string
}

// Deliverable is a dated project milestone. Its date (nullable) and phase
// drive auto-hours allocation; date edits are the reallocation trigger.
type Deliverable struct {
	ID          string
	ProjectID   string
	Percentage  *decimal.Decimal // 0-100, nullable
	Description string
	Date        *time.Time
	Notes       string
	IsCompleted bool
	PhaseKey    allocation.PhaseKey
}

// DateEquals reports whether two deliverable snapshots carry the same date
// (week precision is NOT applied here - any calendar-date change counts).
func (d Deliverable) DateEquals(other Deliverable) bool {
	if d.Date == nil || other.Date == nil {
		return d.Date == nil && other.Date == nil
	}
	y1, m1, dd1 := d.Date.Date()
	y2, m2, dd2 := other.Date.Date()
	return y1 == y2 && m1 == m2 && dd1 == dd2
}

// =============================================================================
// ASSIGNMENTS - Person on project, hours by week
// =============================================================================

// WeeklyHours maps Monday-anchored week keys to hours. The map is sparse:
// an absent key means zero. Entries never go negative.
type WeeklyHours map[allocation.WeekKey]decimal.Decimal

// Get returns the hours for a week, zero when absent.
func (wh WeeklyHours) Get(week allocation.WeekKey) decimal.Decimal {
	return wh[week]
}

// Apply adds a delta to a week, flooring at zero. Entries that land on
// zero are removed so manual-entry maps stay sparse. Returns the stored
// value after the change.
func (wh WeeklyHours) Apply(week allocation.WeekKey, delta decimal.Decimal) decimal.Decimal {
	next := wh[week].Add(delta)
	if next.Sign() <= 0 {
		delete(wh, week)
		return decimal.Zero
	}
	wh[week] = next
	return next
}

// Clone returns an independent copy.
func (wh WeeklyHours) Clone() WeeklyHours {
	out := make(WeeklyHours, len(wh))
	for k, v := range wh {
		out[k] = v
	}
	return out
}

// Total returns the sum of all weekly hours.
func (wh WeeklyHours) Total() decimal.Decimal {
	total := decimal.Zero
	for _, v := range wh {
		total = total.Add(v)
	}
	return total
}

// Assignment links a person to a project with an hours-by-week grid.
// WeeklyHours is mutated by manual grid edits and by the reallocation
// engine; both are additive against whatever is already there.
type Assignment struct {
	ID              string
	PersonID        string
	ProjectID       string
	RoleOnProjectID *allocation.RoleID
	WeeklyHours     WeeklyHours
}
