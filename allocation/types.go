/*
Package allocation provides the core auto-hours allocation engine.

PURPOSE:
  This package contains the domain-agnostic primitives for distributing
  weekly hours ahead of a deadline: percent-of-capacity curves indexed by
  week offset, Monday-anchored week keys, and the pure calculator that
  turns a curve plus a person's capacity into target hours per week.

KEY CONCEPTS IN THIS FILE (types.go):
  - PercentByWeek: A dense percent curve keyed by week offset (0 = due week)
  - TemplateRef:   A tagged reference to either the global defaults or a
                   concrete template (never a magic sentinel id)
  - RoleSetting:   One role's percent curve for one phase
  - Template:      A named curve set that opts into a subset of phases
  - ReallocationResult: What a reallocation run reports back

DESIGN PRINCIPLES:
  1. Density: curves always materialize every offset 0..lookback, so
     delta computation is total - a zero week is a real zero, not a gap
  2. Precision: decimal.Decimal for all percent and hour math
  3. Clamping: percents are clamped to [0,100] at every write, matching
     the clamp-on-input behavior of the editing surface
  4. Type safety: TemplateRef makes the global-vs-concrete branch explicit

SEE ALSO:
  - week.go:       Monday-anchored week arithmetic
  - calculator.go: Target-hours computation and window diffing
  - store.go:      Persistence interfaces
*/
package allocation

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type RoleID string
type TemplateID string
type PhaseKey string

// DefaultLookbackWeeks is how many weeks before the deliverable week a
// curve covers. Offset 0 is the deliverable week itself, so a curve spans
// DefaultLookbackWeeks+1 weeks in total.
const DefaultLookbackWeeks = 8

// =============================================================================
// TEMPLATE REF - Global defaults vs. a concrete template
// =============================================================================

// TemplateRef identifies which template's settings apply. The global
// defaults are not a row with a magic id; they are their own variant.
// Use Global() or ByID() - the zero value is the global reference.
type TemplateRef struct {
	id TemplateID
}

func Global() TemplateRef             { return TemplateRef{} }
func ByID(id TemplateID) TemplateRef  { return TemplateRef{id: id} }

func (r TemplateRef) IsGlobal() bool { return r.id == "" }

// ID returns the concrete template id and true, or ("", false) for global.
func (r TemplateRef) ID() (TemplateID, bool) {
	if r.IsGlobal() {
		return "", false
	}
	return r.id, true
}

func (r TemplateRef) String() string {
	if r.IsGlobal() {
		return "global"
	}
	return string(r.id)
}

// =============================================================================
// PERCENT BY WEEK - Dense percent-of-capacity curve
// =============================================================================

var hundred = decimal.NewFromInt(100)

// ClampPercent clamps a percentage to [0, 100]. Out-of-range input is
// corrected, never rejected.
func ClampPercent(p decimal.Decimal) decimal.Decimal {
	if p.IsNegative() {
		return decimal.Zero
	}
	if p.GreaterThan(hundred) {
		return hundred
	}
	return p
}

// PercentByWeek is a dense percent curve over week offsets 0..lookback.
// Index 0 is the deliverable week; higher offsets are further in the past
// relative to the due date. Every offset is always present - a missing
// offset does not exist, only an explicit zero.
type PercentByWeek struct {
	percents []decimal.Decimal
}

// NewPercentByWeek returns an all-zero curve covering offsets 0..lookback.
func NewPercentByWeek(lookbackWeeks int) PercentByWeek {
	if lookbackWeeks < 0 {
		lookbackWeeks = 0
	}
	return PercentByWeek{percents: make([]decimal.Decimal, lookbackWeeks+1)}
}

// PercentByWeekFromMap builds a dense curve from a sparse offset->percent
// mapping. Offsets outside 0..lookback are ignored; values are clamped.
func PercentByWeekFromMap(m map[int]float64, lookbackWeeks int) PercentByWeek {
	curve := NewPercentByWeek(lookbackWeeks)
	for offset, pct := range m {
		curve.Set(offset, decimal.NewFromFloat(pct))
	}
	return curve
}

// Len returns the number of offsets (lookback+1).
func (p PercentByWeek) Len() int { return len(p.percents) }

// At returns the clamped percent at the given offset, zero when out of range.
func (p PercentByWeek) At(offset int) decimal.Decimal {
	if offset < 0 || offset >= len(p.percents) {
		return decimal.Zero
	}
	return p.percents[offset]
}

// Set stores a clamped percent at the given offset. Out-of-range offsets
// are ignored.
func (p PercentByWeek) Set(offset int, pct decimal.Decimal) {
	if offset < 0 || offset >= len(p.percents) {
		return
	}
	p.percents[offset] = ClampPercent(pct)
}

// IsZero reports whether every offset is zero.
func (p PercentByWeek) IsZero() bool {
	for _, pct := range p.percents {
		if !pct.IsZero() {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of the curve.
func (p PercentByWeek) Clone() PercentByWeek {
	out := PercentByWeek{percents: make([]decimal.Decimal, len(p.percents))}
	copy(out.percents, p.percents)
	return out
}

// ToMap returns the curve as an offset->percent map (for serialization).
func (p PercentByWeek) ToMap() map[int]float64 {
	out := make(map[int]float64, len(p.percents))
	for offset, pct := range p.percents {
		f, _ := pct.Float64()
		out[offset] = f
	}
	return out
}

// =============================================================================
// ROLE SETTING - One role's curve for one phase
// =============================================================================

// RoleSetting is the resolved percent curve for a single department role
// under one (template, phase) combination. Every role known to the system
// resolves to exactly one setting row; roles without an explicit override
// get an all-zero curve.
type RoleSetting struct {
	RoleID         RoleID
	RoleName       string
	DepartmentID   string
	DepartmentName string
	PercentByWeek  PercentByWeek
	IsActive       bool
}

// Contributes reports whether this setting can produce any hours at all.
// A deactivated role never contributes, regardless of its curve.
func (s RoleSetting) Contributes() bool {
	return s.IsActive && !s.PercentByWeek.IsZero()
}

// =============================================================================
// TEMPLATE - Named curve set scoped to phases
// =============================================================================

// Template is a named, reusable set of per-role curves. A template opts
// into phases via PhaseKeys; an empty set means "applies to all phases".
// The global defaults are NOT a Template - see TemplateRef.
type Template struct {
	ID          TemplateID
	Name        string
	Description string
	PhaseKeys   []PhaseKey
}

// AppliesTo reports whether the template opts into the given phase.
func (t Template) AppliesTo(phase PhaseKey) bool {
	if len(t.PhaseKeys) == 0 {
		return true
	}
	for _, k := range t.PhaseKeys {
		if k == phase {
			return true
		}
	}
	return false
}

// ResolveEffectiveRef applies the fallback rule: the assigned template is
// used only when it exists and opts into the phase; everything else
// defers to the global defaults. A phase is never silently dropped.
func ResolveEffectiveRef(assigned *Template, phase PhaseKey) TemplateRef {
	if assigned != nil && assigned.AppliesTo(phase) {
		return ByID(assigned.ID)
	}
	return Global()
}

// =============================================================================
// REALLOCATION RESULT - What one engine run reports
// =============================================================================

// ReallocationResult summarizes a single reallocation run. It is transient:
// returned to the caller alongside the updated deliverable, never persisted
// as-is (an audit row records the same facts separately).
type ReallocationResult struct {
	AssignmentsChanged int
	TouchedWeekKeys    []WeekKey
	DeltaWeeks         int
}

// NoOpResult is the result of a reallocation that had nothing to do.
func NoOpResult() ReallocationResult {
	return ReallocationResult{TouchedWeekKeys: []WeekKey{}}
}

// IsNoOp reports whether the run changed nothing.
func (r ReallocationResult) IsNoOp() bool {
	return r.AssignmentsChanged == 0 && len(r.TouchedWeekKeys) == 0 && r.DeltaWeeks == 0
}

// SortWeekKeys sorts a set of week keys ascending (ISO dates sort
// lexicographically) and removes duplicates.
func SortWeekKeys(keys map[WeekKey]struct{}) []WeekKey {
	out := make([]WeekKey, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
