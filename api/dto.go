/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

NUMERIC BOUNDARY:
  Internally everything is decimal; DTOs expose float64. Hours are
  rounded to two decimal places for display; stored precision is never
  truncated.

INPUT MODES:
  Settings editors may submit curves as percents or as absolute hours
  against a stated full capacity. Hours are normalized to
  percent = hours / capacity * 100 before anything is stored, so the
  persisted representation is always percent-based and capacity-agnostic.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tschnepf/workload-tracker-sub005/allocation"
	"github.com/tschnepf/workload-tracker-sub005/workload"
)

// =============================================================================
// ERRORS
// =============================================================================

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// ORGANIZATION
// =============================================================================

type DepartmentDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type RoleDTO struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	DepartmentID string  `json:"department_id"`
	TemplateID   *string `json:"template_id,omitempty"`
}

type PersonDTO struct {
	ID                  string  `json:"id"`
	Name                string  `json:"name"`
	DepartmentID        string  `json:"department_id"`
	RoleID              string  `json:"role_id"`
	WeeklyCapacityHours float64 `json:"weekly_capacity_hours"`
}

type CreatePersonRequest struct {
	ID                  string  `json:"id"`
	Name                string  `json:"name"`
	DepartmentID        string  `json:"department_id"`
	RoleID              string  `json:"role_id"`
	WeeklyCapacityHours float64 `json:"weekly_capacity_hours"`
}

// =============================================================================
// PROJECTS / DELIVERABLES / ASSIGNMENTS
// =============================================================================

type ProjectDTO struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Client string `json:"client,omitempty"`
	Status string `json:"status,omitempty"`
}

type DeliverableDTO struct {
	ID          string   `json:"id"`
	ProjectID   string   `json:"project_id"`
	Percentage  *float64 `json:"percentage,omitempty"`
	Description string   `json:"description,omitempty"`
	Date        *string  `json:"date,omitempty"` // YYYY-MM-DD
	Notes       string   `json:"notes,omitempty"`
	IsCompleted bool     `json:"is_completed"`
	PhaseKey    string   `json:"phase_key"`
}

// UpdateDeliverableRequest carries the editable deliverable fields. A
// missing date leaves the current one alone; ClearDate removes it.
type UpdateDeliverableRequest struct {
	Percentage  *float64 `json:"percentage,omitempty"`
	Description *string  `json:"description,omitempty"`
	Date        *string  `json:"date,omitempty"` // YYYY-MM-DD
	ClearDate   bool     `json:"clear_date,omitempty"`
	Notes       *string  `json:"notes,omitempty"`
	IsCompleted *bool    `json:"is_completed,omitempty"`
	PhaseKey    *string  `json:"phase_key,omitempty"`
}

// ReallocationDTO mirrors allocation.ReallocationResult on the wire.
type ReallocationDTO struct {
	AssignmentsChanged int      `json:"assignmentsChanged"`
	TouchedWeekKeys    []string `json:"touchedWeekKeys"`
	DeltaWeeks         int      `json:"deltaWeeks"`
}

// UpdateDeliverableResponse is the updated deliverable plus the optional
// reallocation report (present only when the date changed and a
// reallocation ran).
type UpdateDeliverableResponse struct {
	Deliverable  DeliverableDTO   `json:"deliverable"`
	Reallocation *ReallocationDTO `json:"reallocation,omitempty"`
}

type AssignmentDTO struct {
	ID              string             `json:"id"`
	PersonID        string             `json:"person_id"`
	ProjectID       string             `json:"project_id"`
	RoleOnProjectID *string            `json:"role_on_project_id,omitempty"`
	WeeklyHours     map[string]float64 `json:"weekly_hours"`
}

type CreateAssignmentRequest struct {
	ID              string             `json:"id"`
	PersonID        string             `json:"person_id"`
	ProjectID       string             `json:"project_id"`
	RoleOnProjectID *string            `json:"role_on_project_id,omitempty"`
	WeeklyHours     map[string]float64 `json:"weekly_hours,omitempty"`
}

// UpdateWeeklyHoursRequest replaces the hours of specific weeks (manual
// grid edit). Weeks set to zero are removed from the grid.
type UpdateWeeklyHoursRequest struct {
	WeeklyHours map[string]float64 `json:"weekly_hours"`
}

// =============================================================================
// AUTO-HOURS SETTINGS AND TEMPLATES
// =============================================================================

type RoleSettingDTO struct {
	RoleID         string             `json:"roleId"`
	RoleName       string             `json:"roleName"`
	DepartmentID   string             `json:"departmentId"`
	DepartmentName string             `json:"departmentName"`
	PercentByWeek  map[string]float64 `json:"percentByWeek"`
	IsActive       bool               `json:"isActive"`
}

// UpdateSettingsRequest submits curve rows in percent or hours mode.
// Hours mode requires FullCapacityHours > 0 and is normalized to percent
// before storage.
type UpdateSettingsRequest struct {
	InputMode         string             `json:"input_mode,omitempty"` // "percent" (default) | "hours"
	FullCapacityHours float64            `json:"full_capacity_hours,omitempty"`
	Rows              []RoleSettingRowIn `json:"rows"`
}

type RoleSettingRowIn struct {
	RoleID        string             `json:"roleId"`
	PercentByWeek map[string]float64 `json:"percentByWeek,omitempty"`
	HoursByWeek   map[string]float64 `json:"hoursByWeek,omitempty"`
	IsActive      *bool              `json:"isActive,omitempty"`
}

type TemplateDTO struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	PhaseKeys   []string `json:"phaseKeys"`
}

type CreateTemplateRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	PhaseKeys   []string `json:"phaseKeys,omitempty"`
}

type UpdateTemplateRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type SetPhaseKeysRequest struct {
	PhaseKeys []string `json:"phaseKeys"`
}

type PhaseDTO struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// =============================================================================
// EVENTS / RUNS
// =============================================================================

type RefreshEventDTO struct {
	ID              string   `json:"id"`
	Reason          string   `json:"reason"`
	TouchedWeekKeys []string `json:"touchedWeekKeys"`
	EmittedAt       string   `json:"emitted_at"`
}

type ReallocationRunDTO struct {
	ID                 string `json:"id"`
	DeliverableID      string `json:"deliverable_id"`
	ProjectID          string `json:"project_id"`
	DeltaWeeks         int    `json:"delta_weeks"`
	AssignmentsChanged int    `json:"assignments_changed"`
	TouchedWeeks       int    `json:"touched_weeks"`
	StartedAt          string `json:"started_at"`
	CompletedAt        string `json:"completed_at"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

// displayHours rounds to two decimal places for the wire; storage keeps
// full precision.
func displayHours(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}

func toDeliverableDTO(d workload.Deliverable) DeliverableDTO {
	dto := DeliverableDTO{
		ID:          d.ID,
		ProjectID:   d.ProjectID,
		Description: d.Description,
		Notes:       d.Notes,
		IsCompleted: d.IsCompleted,
		PhaseKey:    string(d.PhaseKey),
	}
	if d.Percentage != nil {
		f, _ := d.Percentage.Float64()
		dto.Percentage = &f
	}
	if d.Date != nil {
		s := d.Date.UTC().Format("2006-01-02")
		dto.Date = &s
	}
	return dto
}

func toReallocationDTO(r allocation.ReallocationResult) *ReallocationDTO {
	keys := make([]string, len(r.TouchedWeekKeys))
	for i, k := range r.TouchedWeekKeys {
		keys[i] = string(k)
	}
	return &ReallocationDTO{
		AssignmentsChanged: r.AssignmentsChanged,
		TouchedWeekKeys:    keys,
		DeltaWeeks:         r.DeltaWeeks,
	}
}

func toAssignmentDTO(a workload.Assignment) AssignmentDTO {
	dto := AssignmentDTO{
		ID:          a.ID,
		PersonID:    a.PersonID,
		ProjectID:   a.ProjectID,
		WeeklyHours: make(map[string]float64, len(a.WeeklyHours)),
	}
	if a.RoleOnProjectID != nil {
		s := string(*a.RoleOnProjectID)
		dto.RoleOnProjectID = &s
	}
	for week, hours := range a.WeeklyHours {
		dto.WeeklyHours[string(week)] = displayHours(hours)
	}
	return dto
}

func toRoleSettingDTO(s allocation.RoleSetting) RoleSettingDTO {
	curve := s.PercentByWeek.ToMap()
	byWeek := make(map[string]float64, len(curve))
	for offset, pct := range curve {
		byWeek[strconv.Itoa(offset)] = pct
	}
	return RoleSettingDTO{
		RoleID:         string(s.RoleID),
		RoleName:       s.RoleName,
		DepartmentID:   s.DepartmentID,
		DepartmentName: s.DepartmentName,
		PercentByWeek:  byWeek,
		IsActive:       s.IsActive,
	}
}

func toTemplateDTO(t allocation.Template) TemplateDTO {
	keys := make([]string, len(t.PhaseKeys))
	for i, k := range t.PhaseKeys {
		keys[i] = string(k)
	}
	return TemplateDTO{
		ID:          string(t.ID),
		Name:        t.Name,
		Description: t.Description,
		PhaseKeys:   keys,
	}
}

func toRefreshEventDTO(e RefreshEvent) RefreshEventDTO {
	keys := make([]string, len(e.TouchedWeekKeys))
	for i, k := range e.TouchedWeekKeys {
		keys[i] = string(k)
	}
	return RefreshEventDTO{
		ID:              e.ID,
		Reason:          e.Reason,
		TouchedWeekKeys: keys,
		EmittedAt:       e.EmittedAt.Format(time.RFC3339),
	}
}

func toRunDTO(run workload.ReallocationRun) ReallocationRunDTO {
	return ReallocationRunDTO{
		ID:                 run.ID,
		DeliverableID:      run.DeliverableID,
		ProjectID:          run.ProjectID,
		DeltaWeeks:         run.DeltaWeeks,
		AssignmentsChanged: run.AssignmentsChanged,
		TouchedWeeks:       run.TouchedWeeks,
		StartedAt:          run.StartedAt.Format(time.RFC3339),
		CompletedAt:        run.CompletedAt.Format(time.RFC3339),
	}
}
