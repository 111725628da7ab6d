/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates departments, roles,
	people, projects, deliverables, and assignments that demonstrate
	specific auto-hours features.

AVAILABLE SCENARIOS:

	studio-baseline:  Two departments, global defaults, one active project
	front-loaded:     Custom phase-scoped template assigned to a role
	date-shift-demo:  Assignments pre-filled with auto hours, ready for a
	                  deliverable date move

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Seed phases and global default curves via factory presets
 3. Create departments, roles, people
 4. Create a project with deliverables and assignments
 5. Optionally pre-fill assignment hours from the current targets

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "date-shift-demo"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: route handlers
  - factory/template.go: curve JSON presets
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tschnepf/workload-tracker-sub005/allocation"
	"github.com/tschnepf/workload-tracker-sub005/factory"
	"github.com/tschnepf/workload-tracker-sub005/workload"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "studio-baseline",
		Name:        "Studio Baseline",
		Description: "Two departments, global default curves, one active project",
		Category:    "autohours",
	},
	{
		ID:          "front-loaded",
		Name:        "Front-Loaded Template",
		Description: "Custom ramp template scoped to design phases, assigned to one role",
		Category:    "autohours",
	},
	{
		ID:          "date-shift-demo",
		Name:        "Date Shift Demo",
		Description: "Assignments pre-filled with auto hours; move the deliverable date to watch reallocation",
		Category:    "autohours",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}

	// Scenario ID exists but not in list (shouldn't happen)
	writeJSON(w, http.StatusOK, ScenarioDTO{
		ID:          h.currentScenario,
		Name:        h.currentScenario,
		Description: "Currently loaded scenario",
	})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()

	// Reset first
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	var err error
	switch req.ScenarioID {
	case "studio-baseline":
		err = h.loadStudioBaselineScenario(ctx)
	case "front-loaded":
		err = h.loadFrontLoadedScenario(ctx)
	case "date-shift-demo":
		err = h.loadDateShiftDemoScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data without loading a scenario.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

var demoRoleIDs = []string{"role-pm", "role-arch", "role-eng", "role-drafter"}

// seedOrganization creates the shared org chart: two departments, four
// roles, four people. Every scenario starts from this.
func (h *Handler) seedOrganization(ctx context.Context) error {
	departments := []workload.Department{
		{ID: "dept-design", Name: "Design"},
		{ID: "dept-production", Name: "Production"},
	}
	for _, d := range departments {
		if err := h.Store.SaveDepartment(ctx, d); err != nil {
			return err
		}
	}

	roles := []workload.Role{
		{ID: "role-pm", Name: "Project Manager", DepartmentID: "dept-design"},
		{ID: "role-arch", Name: "Architect", DepartmentID: "dept-design"},
		{ID: "role-eng", Name: "Engineer", DepartmentID: "dept-production"},
		{ID: "role-drafter", Name: "Drafter", DepartmentID: "dept-production"},
	}
	for _, r := range roles {
		if err := h.Store.SaveRole(ctx, r); err != nil {
			return err
		}
	}

	people := []workload.Person{
		{ID: "person-maya", Name: "Maya Chen", DepartmentID: "dept-design", RoleID: "role-pm", WeeklyCapacityHours: decimal.NewFromInt(40)},
		{ID: "person-omar", Name: "Omar Reyes", DepartmentID: "dept-design", RoleID: "role-arch", WeeklyCapacityHours: decimal.NewFromInt(40)},
		{ID: "person-iris", Name: "Iris Kowalski", DepartmentID: "dept-production", RoleID: "role-eng", WeeklyCapacityHours: decimal.NewFromInt(36)},
		{ID: "person-theo", Name: "Theo Lindqvist", DepartmentID: "dept-production", RoleID: "role-drafter", WeeklyCapacityHours: decimal.NewFromInt(40)},
	}
	for _, p := range people {
		if err := h.Store.SavePerson(ctx, p); err != nil {
			return err
		}
	}

	return nil
}

// seedGlobalDefaults parses the factory preset and installs it as the
// global default curves for every phase.
func (h *Handler) seedGlobalDefaults(ctx context.Context) error {
	if err := h.Store.SavePhases(ctx, workload.DefaultPhases()); err != nil {
		return err
	}

	phaseKeys := make([]string, 0, len(workload.DefaultPhases()))
	for _, p := range workload.DefaultPhases() {
		phaseKeys = append(phaseKeys, string(p.Value))
	}

	f := &factory.TemplateFactory{}
	byPhase, err := f.ParseGlobalDefaults(factory.GlobalDefaultsJSON(phaseKeys, demoRoleIDs))
	if err != nil {
		return err
	}
	for phase, rows := range byPhase {
		if err := h.Store.SaveSettings(ctx, allocation.Global(), phase, rows); err != nil {
			return err
		}
	}
	return nil
}

// loadStudioBaselineScenario: org chart + global defaults + one project
// with a deliverable per phase and empty assignments.
func (h *Handler) loadStudioBaselineScenario(ctx context.Context) error {
	if err := h.seedOrganization(ctx); err != nil {
		return err
	}
	if err := h.seedGlobalDefaults(ctx); err != nil {
		return err
	}

	project := workload.Project{ID: "proj-riverside", Name: "Riverside Commons", Client: "Harbor Development", Status: "active"}
	if err := h.Store.SaveProject(ctx, project); err != nil {
		return err
	}

	base := allocation.MondayOf(time.Now().UTC())
	deliverables := []struct {
		id, desc string
		phase    allocation.PhaseKey
		weeksOut int
	}{
		{"del-sd", "Schematic design package", "sd", 4},
		{"del-dd", "Design development set", "dd", 10},
		{"del-ifp", "Issued for permit", "ifp", 16},
		{"del-ifc", "Issued for construction", "ifc", 24},
	}
	for _, d := range deliverables {
		due := base.AddDate(0, 0, d.weeksOut*7+4) // land on Fridays
		if err := h.Store.SaveDeliverable(ctx, workload.Deliverable{
			ID:          d.id,
			ProjectID:   project.ID,
			Description: d.desc,
			Date:        &due,
			PhaseKey:    d.phase,
		}); err != nil {
			return err
		}
	}

	assignments := []struct {
		id, person string
		role       allocation.RoleID
	}{
		{"asgn-maya", "person-maya", "role-pm"},
		{"asgn-omar", "person-omar", "role-arch"},
		{"asgn-iris", "person-iris", "role-eng"},
	}
	for _, a := range assignments {
		role := a.role
		if err := h.Store.SaveAssignment(ctx, workload.Assignment{
			ID:              a.id,
			PersonID:        a.person,
			ProjectID:       project.ID,
			RoleOnProjectID: &role,
			WeeklyHours:     make(workload.WeeklyHours),
		}); err != nil {
			return err
		}
	}

	return nil
}

// loadFrontLoadedScenario: baseline plus a custom ramp template scoped
// to the design phases and assigned to the architect role.
func (h *Handler) loadFrontLoadedScenario(ctx context.Context) error {
	if err := h.loadStudioBaselineScenario(ctx); err != nil {
		return err
	}

	f := &factory.TemplateFactory{}
	tmpl, byPhase, err := f.ParseTemplate(factory.FrontLoadedRampJSON(
		"Front-Loaded Ramp", []string{"sd", "dd"}, []string{"role-arch"}))
	if err != nil {
		return err
	}

	created, err := h.Templates.CreateTemplate(ctx, tmpl.Name, tmpl.Description, tmpl.PhaseKeys)
	if err != nil {
		return err
	}
	ref := allocation.ByID(created.ID)
	for phase, rows := range byPhase {
		if err := h.Store.SaveSettings(ctx, ref, phase, rows); err != nil {
			return err
		}
	}

	// Point the architect role at the new template
	role, err := h.Store.GetRole(ctx, "role-arch")
	if err != nil {
		return err
	}
	role.TemplateID = &created.ID
	return h.Store.SaveRole(ctx, role)
}

// loadDateShiftDemoScenario: baseline with assignment hours pre-filled
// from the current targets, so moving a deliverable date produces a
// visible reallocation.
func (h *Handler) loadDateShiftDemoScenario(ctx context.Context) error {
	if err := h.loadStudioBaselineScenario(ctx); err != nil {
		return err
	}

	deliverable, err := h.Store.GetDeliverable(ctx, "del-dd")
	if err != nil {
		return err
	}

	assignments, err := h.Store.ListByProject(ctx, "proj-riverside")
	if err != nil {
		return err
	}
	for _, a := range assignments {
		if a.RoleOnProjectID == nil {
			continue
		}
		person, err := h.Store.GetPerson(ctx, a.PersonID)
		if err != nil {
			return err
		}
		setting, err := h.Templates.SettingFor(ctx, *a.RoleOnProjectID, deliverable.PhaseKey)
		if err != nil {
			return err
		}
		window := allocation.ComputeTargetWeeklyHours(
			*deliverable.Date, person.WeeklyCapacityHours, setting, allocation.DefaultLookbackWeeks)
		for week, hours := range window {
			a.WeeklyHours.Apply(week, hours)
		}
		if err := h.Store.SaveAssignment(ctx, a); err != nil {
			return err
		}
	}

	return nil
}
