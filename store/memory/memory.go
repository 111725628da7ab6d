// Package memory provides an in-memory store implementation (for testing/dev).
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tschnepf/workload-tracker-sub005/allocation"
	"github.com/tschnepf/workload-tracker-sub005/workload"
)

// =============================================================================
// MEMORY STORE - Implements every store interface on one value
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	templates   map[allocation.TemplateID]allocation.Template
	settings    map[settingsKey][]allocation.RoleSetting
	departments map[string]workload.Department
	roles       map[allocation.RoleID]workload.Role
	people      map[string]workload.Person
	projects    map[string]workload.Project
	deliverable map[string]workload.Deliverable
	assignments map[string]workload.Assignment
	phases      []workload.Phase
	runs        []workload.ReallocationRun
}

type settingsKey struct {
	Ref   string
	Phase allocation.PhaseKey
}

func New() *Memory {
	return &Memory{
		templates:   make(map[allocation.TemplateID]allocation.Template),
		settings:    make(map[settingsKey][]allocation.RoleSetting),
		departments: make(map[string]workload.Department),
		roles:       make(map[allocation.RoleID]workload.Role),
		people:      make(map[string]workload.Person),
		projects:    make(map[string]workload.Project),
		deliverable: make(map[string]workload.Deliverable),
		assignments: make(map[string]workload.Assignment),
	}
}

// =============================================================================
// TEMPLATES (allocation.TemplateStore)
// =============================================================================

func (m *Memory) SaveTemplate(_ context.Context, t allocation.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[t.ID] = t
	return nil
}

func (m *Memory) GetTemplate(_ context.Context, id allocation.TemplateID) (allocation.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.templates[id]
	if !ok {
		return allocation.Template{}, &allocation.NotFoundError{Kind: "template", ID: string(id), Err: allocation.ErrTemplateNotFound}
	}
	return t, nil
}

func (m *Memory) ListTemplates(_ context.Context) ([]allocation.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]allocation.Template, 0, len(m.templates))
	for _, t := range m.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) DeleteTemplate(_ context.Context, id allocation.TemplateID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.templates[id]; !ok {
		return &allocation.NotFoundError{Kind: "template", ID: string(id), Err: allocation.ErrTemplateNotFound}
	}
	delete(m.templates, id)
	for k := range m.settings {
		if k.Ref == string(id) {
			delete(m.settings, k)
		}
	}
	return nil
}

// =============================================================================
// SETTINGS (allocation.SettingsStore)
// =============================================================================

func (m *Memory) GetSettings(_ context.Context, ref allocation.TemplateRef, phase allocation.PhaseKey) ([]allocation.RoleSetting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.settings[settingsKey{Ref: refKey(ref), Phase: phase}]
	out := make([]allocation.RoleSetting, len(rows))
	for i, row := range rows {
		row.PercentByWeek = row.PercentByWeek.Clone()
		out[i] = row
	}
	return out, nil
}

func (m *Memory) SaveSettings(_ context.Context, ref allocation.TemplateRef, phase allocation.PhaseKey, rows []allocation.RoleSetting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := settingsKey{Ref: refKey(ref), Phase: phase}

	byRole := make(map[allocation.RoleID]int)
	existing := m.settings[k]
	for i, row := range existing {
		byRole[row.RoleID] = i
	}
	for _, row := range rows {
		row.PercentByWeek = row.PercentByWeek.Clone()
		if i, ok := byRole[row.RoleID]; ok {
			existing[i] = row
			continue
		}
		existing = append(existing, row)
		byRole[row.RoleID] = len(existing) - 1
	}
	m.settings[k] = existing
	return nil
}

func refKey(ref allocation.TemplateRef) string {
	if id, ok := ref.ID(); ok {
		return string(id)
	}
	return "" // global
}

// =============================================================================
// ORGANIZATION (workload.DepartmentStore / RoleStore / PersonStore)
// =============================================================================

func (m *Memory) SaveDepartment(_ context.Context, d workload.Department) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.departments[d.ID] = d
	return nil
}

func (m *Memory) GetDepartment(_ context.Context, id string) (workload.Department, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.departments[id]
	if !ok {
		return workload.Department{}, &allocation.NotFoundError{Kind: "department", ID: id}
	}
	return d, nil
}

func (m *Memory) ListDepartments(_ context.Context) ([]workload.Department, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]workload.Department, 0, len(m.departments))
	for _, d := range m.departments {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) SaveRole(_ context.Context, r workload.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roles[r.ID] = r
	return nil
}

func (m *Memory) GetRole(_ context.Context, id allocation.RoleID) (workload.Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.roles[id]
	if !ok {
		return workload.Role{}, &allocation.NotFoundError{Kind: "role", ID: string(id), Err: allocation.ErrRoleNotFound}
	}
	return r, nil
}

func (m *Memory) ListRoles(_ context.Context) ([]workload.Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]workload.Role, 0, len(m.roles))
	for _, r := range m.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DepartmentID != out[j].DepartmentID {
			return out[i].DepartmentID < out[j].DepartmentID
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *Memory) SavePerson(_ context.Context, p workload.Person) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.people[p.ID] = p
	return nil
}

func (m *Memory) GetPerson(_ context.Context, id string) (workload.Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.people[id]
	if !ok {
		return workload.Person{}, &allocation.NotFoundError{Kind: "person", ID: id}
	}
	return p, nil
}

func (m *Memory) ListPeople(_ context.Context) ([]workload.Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]workload.Person, 0, len(m.people))
	for _, p := range m.people {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) DeletePerson(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.people, id)
	return nil
}

// =============================================================================
// PROJECTS / DELIVERABLES / ASSIGNMENTS
// =============================================================================

func (m *Memory) SaveProject(_ context.Context, p workload.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[p.ID] = p
	return nil
}

func (m *Memory) GetProject(_ context.Context, id string) (workload.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok {
		return workload.Project{}, &allocation.NotFoundError{Kind: "project", ID: id}
	}
	return p, nil
}

func (m *Memory) ListProjects(_ context.Context) ([]workload.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]workload.Project, 0, len(m.projects))
	for _, p := range m.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) DeleteProject(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.projects, id)
	return nil
}

func (m *Memory) SaveDeliverable(_ context.Context, d workload.Deliverable) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliverable[d.ID] = d
	return nil
}

func (m *Memory) GetDeliverable(_ context.Context, id string) (workload.Deliverable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.deliverable[id]
	if !ok {
		return workload.Deliverable{}, &allocation.NotFoundError{Kind: "deliverable", ID: id}
	}
	return d, nil
}

func (m *Memory) ListDeliverables(_ context.Context, projectID string) ([]workload.Deliverable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []workload.Deliverable
	for _, d := range m.deliverable {
		if d.ProjectID == projectID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) DeleteDeliverable(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.deliverable, id)
	return nil
}

func (m *Memory) SaveAssignment(_ context.Context, a workload.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveAssignmentLocked(a)
	return nil
}

func (m *Memory) saveAssignmentLocked(a workload.Assignment) {
	a.WeeklyHours = a.WeeklyHours.Clone()
	m.assignments[a.ID] = a
}

func (m *Memory) GetAssignment(_ context.Context, id string) (workload.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assignments[id]
	if !ok {
		return workload.Assignment{}, &allocation.NotFoundError{Kind: "assignment", ID: id}
	}
	a.WeeklyHours = a.WeeklyHours.Clone()
	return a, nil
}

func (m *Memory) ListByProject(_ context.Context, projectID string) ([]workload.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []workload.Assignment
	for _, a := range m.assignments {
		if a.ProjectID == projectID {
			a.WeeklyHours = a.WeeklyHours.Clone()
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveAll persists a batch atomically. The memory store holds one lock for
// the whole batch, so the all-or-nothing contract is trivial here.
func (m *Memory) SaveAll(_ context.Context, assignments []workload.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range assignments {
		m.saveAssignmentLocked(a)
	}
	return nil
}

func (m *Memory) DeleteAssignment(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.assignments, id)
	return nil
}

// =============================================================================
// PHASES / RUNS
// =============================================================================

func (m *Memory) ListPhases(_ context.Context) ([]workload.Phase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]workload.Phase, len(m.phases))
	copy(out, m.phases)
	return out, nil
}

func (m *Memory) SavePhases(_ context.Context, phases []workload.Phase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phases = make([]workload.Phase, len(phases))
	copy(m.phases, phases)
	return nil
}

func (m *Memory) SaveRun(_ context.Context, run workload.ReallocationRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *Memory) ListRuns(_ context.Context, deliverableID string, limit int) ([]workload.ReallocationRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []workload.ReallocationRun
	for i := len(m.runs) - 1; i >= 0; i-- {
		if deliverableID != "" && m.runs[i].DeliverableID != deliverableID {
			continue
		}
		out = append(out, m.runs[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) PruneRuns(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.runs[:0]
	pruned := 0
	for _, run := range m.runs {
		if run.CompletedAt.Before(before) {
			pruned++
			continue
		}
		kept = append(kept, run)
	}
	m.runs = kept
	return pruned, nil
}
