/*
store.go - Domain persistence interfaces

PURPOSE:
  Interfaces between the workload services and the database. The sqlite
  and memory stores implement all of these (plus the allocation package's
  TemplateStore/SettingsStore) on one store value.

TRANSACTIONAL APPLY:
  AssignmentStore.SaveAll is the reallocation engine's apply step. It MUST
  be all-or-nothing: if any assignment write fails, no assignment may keep
  a partial update. The sqlite store wraps the batch in one transaction.

SEE ALSO:
  - allocation/store.go: Template and settings interfaces
  - store/sqlite:        Production implementation
  - store/memory:        In-memory implementation
*/
package workload

import (
	"context"
	"time"

	"github.com/tschnepf/workload-tracker-sub005/allocation"
)

type DepartmentStore interface {
	SaveDepartment(ctx context.Context, d Department) error
	GetDepartment(ctx context.Context, id string) (Department, error)
	ListDepartments(ctx context.Context) ([]Department, error)
}

type RoleStore interface {
	SaveRole(ctx context.Context, r Role) error

	// GetRole returns the role or a NotFoundError wrapping ErrRoleNotFound.
	GetRole(ctx context.Context, id allocation.RoleID) (Role, error)

	// ListRoles returns every role known to the system, ordered by
	// department then name. This is the universe ListSettings zero-fills.
	ListRoles(ctx context.Context) ([]Role, error)
}

type PersonStore interface {
	SavePerson(ctx context.Context, p Person) error
	GetPerson(ctx context.Context, id string) (Person, error)
	ListPeople(ctx context.Context) ([]Person, error)
	DeletePerson(ctx context.Context, id string) error
}

type ProjectStore interface {
	SaveProject(ctx context.Context, p Project) error
	GetProject(ctx context.Context, id string) (Project, error)
	ListProjects(ctx context.Context) ([]Project, error)
	DeleteProject(ctx context.Context, id string) error
}

type DeliverableStore interface {
	SaveDeliverable(ctx context.Context, d Deliverable) error
	GetDeliverable(ctx context.Context, id string) (Deliverable, error)
	ListDeliverables(ctx context.Context, projectID string) ([]Deliverable, error)
	DeleteDeliverable(ctx context.Context, id string) error
}

type AssignmentStore interface {
	SaveAssignment(ctx context.Context, a Assignment) error
	GetAssignment(ctx context.Context, id string) (Assignment, error)

	// ListByProject returns all assignments on a project - the reallocation
	// fan-out set.
	ListByProject(ctx context.Context, projectID string) ([]Assignment, error)

	// SaveAll persists a batch of mutated assignments atomically.
	SaveAll(ctx context.Context, assignments []Assignment) error

	DeleteAssignment(ctx context.Context, id string) error
}

type PhaseStore interface {
	// ListPhases returns the configured phase universe in display order.
	ListPhases(ctx context.Context) ([]Phase, error)

	// SavePhases replaces the configured universe (seed path).
	SavePhases(ctx context.Context, phases []Phase) error
}

// =============================================================================
// REALLOCATION RUNS - Audit trail of engine executions
// =============================================================================

// ReallocationRun is the persisted audit record of one engine run.
type ReallocationRun struct {
	ID                 string
	DeliverableID      string
	ProjectID          string
	DeltaWeeks         int
	AssignmentsChanged int
	TouchedWeeks       int
	StartedAt          time.Time
	CompletedAt        time.Time
}

type RunStore interface {
	SaveRun(ctx context.Context, run ReallocationRun) error
	ListRuns(ctx context.Context, deliverableID string, limit int) ([]ReallocationRun, error)

	// PruneRuns deletes runs completed before the cutoff and returns the
	// number deleted.
	PruneRuns(ctx context.Context, before time.Time) (int, error)
}
