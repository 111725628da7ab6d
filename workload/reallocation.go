/*
reallocation.go - Deliverable-driven hour redistribution

PURPOSE:
  When a deliverable's date moves, every assignment on its project may
  carry auto-allocated hours anchored to the old due week. The engine
  diffs the old and new target windows per assignment and applies the
  per-week deltas additively, then reports what it touched.

WHY ADDITIVE, NOT OVERWRITE:
  An assignment's weekly hours accumulate from several sources - manual
  grid entry plus the auto-hours contributions of any number of
  deliverables. Overwriting a week with the new target would destroy
  independently-entered hours. Applying only the DELTA between old and
  new targets preserves them. This is the engine's central correctness
  property.

RUN SHAPE:
  One run per committed deliverable edit, serialized per deliverable id.
  The serialization covers the WHOLE read-patch-save-reallocate sequence
  (ApplyDeliverableEdit), not just the diff/apply: two concurrent edits
  to the same deliverable must each diff against the state the previous
  one committed, or the first window gets backed out twice. The
  per-assignment computation fans out concurrently (assignments are
  disjoint), joins via errgroup, and the mutated assignments are then
  persisted in a single atomic batch: all-or-nothing, never partial.

SEE ALSO:
  - allocation/calculator.go: Target windows and window diffing
  - templates.go:             Effective-setting resolution
  - api/events.go:            Grid refresh bus fed by run results
*/
package workload

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/tschnepf/workload-tracker-sub005/allocation"
)

// ErrReallocationFailed marks a run that failed after the deliverable edit
// itself already committed. Callers can surface the partial outcome: the
// edit is saved, no assignment was touched.
var ErrReallocationFailed = errors.New("reallocation failed after edit")

// RefreshSink receives touched-week notifications after a non-empty apply.
// The api package's grid refresh bus implements this; a nil sink disables
// emission.
type RefreshSink interface {
	EmitGridRefresh(touchedWeekKeys []allocation.WeekKey, reason string)
}

// ReallocationEngine recomputes and applies weekly-hour deltas when a
// deliverable's date changes.
type ReallocationEngine struct {
	Templates    *TemplateService
	People       PersonStore
	Assignments  AssignmentStore
	Deliverables DeliverableStore // required by ApplyDeliverableEdit
	Runs         RunStore         // optional audit trail
	Events       RefreshSink      // optional grid refresh bus

	// LookbackWeeks sets window length; zero means allocation.DefaultLookbackWeeks.
	LookbackWeeks int

	mu    sync.Mutex
	locks map[string]*deliverableLock
}

func NewReallocationEngine(templates *TemplateService, people PersonStore, assignments AssignmentStore) *ReallocationEngine {
	return &ReallocationEngine{
		Templates:   templates,
		People:      people,
		Assignments: assignments,
	}
}

func (e *ReallocationEngine) lookback() int {
	if e.LookbackWeeks > 0 {
		return e.LookbackWeeks
	}
	return allocation.DefaultLookbackWeeks
}

// deliverableLock is one refcounted entry in the keyed mutex. The count
// tracks holders plus waiters so the entry can be dropped once the last
// one releases.
type deliverableLock struct {
	mu   sync.Mutex
	refs int
}

// lockFor serializes work per deliverable id. It blocks until the lock is
// held and returns the release func. Entries are created lazily and removed
// on last release, so the map stays bounded by in-flight deliverables.
func (e *ReallocationEngine) lockFor(deliverableID string) func() {
	e.mu.Lock()
	if e.locks == nil {
		e.locks = make(map[string]*deliverableLock)
	}
	l, ok := e.locks[deliverableID]
	if !ok {
		l = &deliverableLock{}
		e.locks[deliverableID] = l
	}
	l.refs++
	e.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		e.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, deliverableID)
		}
		e.mu.Unlock()
	}
}

// assignmentMutation is one assignment's computed outcome from the fan-out.
type assignmentMutation struct {
	assignment Assignment
	touched    []allocation.WeekKey
}

// ApplyDeliverableEdit loads the deliverable, applies edit, persists the
// result, and runs a reallocation when the date changed. The whole
// read-patch-save-reallocate sequence holds the deliverable's lock, so a
// concurrent edit to the same deliverable diffs against the state this one
// committed, never against a stale pre-edit snapshot. A nil result means
// the date did not change. A reallocation failure after the save returns
// the committed deliverable and an error wrapping ErrReallocationFailed.
func (e *ReallocationEngine) ApplyDeliverableEdit(ctx context.Context, id string, edit func(Deliverable) (Deliverable, error)) (Deliverable, *allocation.ReallocationResult, error) {
	unlock := e.lockFor(id)
	defer unlock()

	old, err := e.Deliverables.GetDeliverable(ctx, id)
	if err != nil {
		return Deliverable{}, nil, err
	}

	updated, err := edit(old)
	if err != nil {
		return Deliverable{}, nil, err
	}
	updated.ID = old.ID
	updated.ProjectID = old.ProjectID

	if err := e.Deliverables.SaveDeliverable(ctx, updated); err != nil {
		return Deliverable{}, nil, fmt.Errorf("saving deliverable %s: %w", id, err)
	}

	if old.DateEquals(updated) {
		return updated, nil, nil
	}

	result, err := e.reallocate(ctx, old, updated)
	if err != nil {
		return updated, nil, fmt.Errorf("%w: %v", ErrReallocationFailed, err)
	}
	return updated, &result, nil
}

// Reallocate runs one reallocation for a committed deliverable edit.
// oldD is the pre-edit snapshot, newD the post-edit one. If the date is
// unchanged (including both nil) the run is a no-op. Callers that still
// need to read and commit the edit should use ApplyDeliverableEdit so the
// snapshot is taken under the same lock.
func (e *ReallocationEngine) Reallocate(ctx context.Context, oldD, newD Deliverable) (allocation.ReallocationResult, error) {
	if newD.ID == "" {
		return allocation.NoOpResult(), fmt.Errorf("deliverable id is required")
	}

	unlock := e.lockFor(newD.ID)
	defer unlock()

	return e.reallocate(ctx, oldD, newD)
}

// reallocate is the diff/apply core. The caller holds the deliverable lock.
func (e *ReallocationEngine) reallocate(ctx context.Context, oldD, newD Deliverable) (allocation.ReallocationResult, error) {
	if oldD.DateEquals(newD) {
		return allocation.NoOpResult(), nil
	}

	startedAt := time.Now().UTC()

	deltaWeeks := 0
	if oldD.Date != nil && newD.Date != nil {
		deltaWeeks = allocation.WeeksBetween(*oldD.Date, *newD.Date)
	}

	assignments, err := e.Assignments.ListByProject(ctx, newD.ProjectID)
	if err != nil {
		return allocation.NoOpResult(), fmt.Errorf("listing assignments for project %s: %w", newD.ProjectID, err)
	}

	// Compute phase: embarrassingly parallel across assignments. Each task
	// reads shared state and writes only its own slot; the join is
	// all-or-error so a failed resolution abandons the whole run before
	// anything is written.
	mutations := make([]*assignmentMutation, len(assignments))
	g, gctx := errgroup.WithContext(ctx)
	for i := range assignments {
		i := i
		g.Go(func() error {
			m, err := e.computeAssignment(gctx, assignments[i], oldD, newD)
			if err != nil {
				return err
			}
			mutations[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return allocation.NoOpResult(), err
	}

	// Aggregate.
	touchedSet := make(map[allocation.WeekKey]struct{})
	var changed []Assignment
	for _, m := range mutations {
		if m == nil || len(m.touched) == 0 {
			continue
		}
		changed = append(changed, m.assignment)
		for _, week := range m.touched {
			touchedSet[week] = struct{}{}
		}
	}

	result := allocation.ReallocationResult{
		AssignmentsChanged: len(changed),
		TouchedWeekKeys:    allocation.SortWeekKeys(touchedSet),
		DeltaWeeks:         deltaWeeks,
	}

	// Apply phase: single atomic batch. A failed commit leaves every
	// assignment at its pre-run state.
	if len(changed) > 0 {
		if err := e.Assignments.SaveAll(ctx, changed); err != nil {
			return allocation.NoOpResult(), fmt.Errorf("%w: %v", allocation.ErrPersistFailed, err)
		}
	}

	e.recordRun(ctx, newD, result, startedAt)

	if e.Events != nil && len(result.TouchedWeekKeys) > 0 {
		e.Events.EmitGridRefresh(result.TouchedWeekKeys, "deliverable_date_change")
	}

	return result, nil
}

// computeAssignment diffs one assignment's old vs new target windows and
// returns the mutated copy plus its touched weeks. A nil result means the
// assignment cannot contribute (no project role).
func (e *ReallocationEngine) computeAssignment(ctx context.Context, a Assignment, oldD, newD Deliverable) (*assignmentMutation, error) {
	if a.RoleOnProjectID == nil {
		return nil, nil
	}

	person, err := e.People.GetPerson(ctx, a.PersonID)
	if err != nil {
		return nil, fmt.Errorf("resolving person %s: %w", a.PersonID, err)
	}

	oldTargets, err := e.targetWindow(ctx, *a.RoleOnProjectID, oldD, person.WeeklyCapacityHours)
	if err != nil {
		return nil, err
	}
	newTargets, err := e.targetWindow(ctx, *a.RoleOnProjectID, newD, person.WeeklyCapacityHours)
	if err != nil {
		return nil, err
	}

	deltas := allocation.DiffWindows(oldTargets, newTargets)
	if len(deltas) == 0 {
		return &assignmentMutation{assignment: a}, nil
	}

	updated := a
	updated.WeeklyHours = a.WeeklyHours.Clone()
	if updated.WeeklyHours == nil {
		updated.WeeklyHours = make(WeeklyHours, len(deltas))
	}

	touched := make([]allocation.WeekKey, 0, len(deltas))
	for week, delta := range deltas {
		updated.WeeklyHours.Apply(week, delta)
		touched = append(touched, week)
	}

	return &assignmentMutation{assignment: updated, touched: touched}, nil
}

// targetWindow computes the dense target window for one role under one
// deliverable snapshot. A dateless snapshot contributes an empty window
// (every delta comes from the other side).
func (e *ReallocationEngine) targetWindow(ctx context.Context, roleID allocation.RoleID, d Deliverable, capacity decimal.Decimal) (allocation.WeekWindow, error) {
	if d.Date == nil {
		return allocation.WeekWindow{}, nil
	}
	setting, err := e.Templates.SettingFor(ctx, roleID, d.PhaseKey)
	if err != nil {
		return nil, fmt.Errorf("resolving settings for role %s phase %s: %w", roleID, d.PhaseKey, err)
	}
	return allocation.ComputeTargetWeeklyHours(*d.Date, capacity, setting, e.lookback()), nil
}

// recordRun writes the audit row. Best-effort: a failed audit write never
// fails a run that already applied.
func (e *ReallocationEngine) recordRun(ctx context.Context, d Deliverable, result allocation.ReallocationResult, startedAt time.Time) {
	if e.Runs == nil {
		return
	}
	run := ReallocationRun{
		ID:                 uuid.NewString(),
		DeliverableID:      d.ID,
		ProjectID:          d.ProjectID,
		DeltaWeeks:         result.DeltaWeeks,
		AssignmentsChanged: result.AssignmentsChanged,
		TouchedWeeks:       len(result.TouchedWeekKeys),
		StartedAt:          startedAt,
		CompletedAt:        time.Now().UTC(),
	}
	if err := e.Runs.SaveRun(ctx, run); err != nil {
		log.Printf("[Reallocation] failed to record run for deliverable %s: %v", d.ID, err)
	}
}
