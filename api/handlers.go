/*
handlers.go - HTTP API handlers for the workload tracker

PURPOSE:
  Exposes the auto-hours engine and its surrounding domain via REST.
  Handles HTTP request/response, JSON serialization, and delegates to
  the workload services.

ENDPOINTS:
  Organization:
    GET/POST   /api/departments
    GET/POST   /api/roles
    GET/POST   /api/people            (+ GET/DELETE /{id})

  Work:
    GET/POST   /api/projects          (+ GET/DELETE /{id})
    GET/POST   /api/projects/{id}/deliverables
    GET/PUT/DELETE /api/deliverables/{id}   PUT triggers reallocation
    GET/POST   /api/projects/{id}/assignments
    GET/DELETE /api/assignments/{id}
    PUT        /api/assignments/{id}/hours  Manual grid edit

  Auto-hours:
    GET/PUT    /api/autohours/settings?template_id=&phase=
    GET/POST   /api/autohours/templates
    GET/PUT/DELETE /api/autohours/templates/{id}
    PUT        /api/autohours/templates/{id}/phases
    GET        /api/phases

  Observability:
    GET        /api/events/recent     Grid refresh ring buffer
    GET        /api/reallocations     Run audit trail

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 500: Internal errors

SEE ALSO:
  - dto.go:       Request/response data structures
  - server.go:    Router setup and middleware
  - scenarios.go: Demo scenario loaders
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tschnepf/workload-tracker-sub005/allocation"
	"github.com/tschnepf/workload-tracker-sub005/store/sqlite"
	"github.com/tschnepf/workload-tracker-sub005/workload"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     *sqlite.Store
	Templates *workload.TemplateService
	Engine    *workload.ReallocationEngine
	Bus       *RefreshBus

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler wires the services onto one store.
func NewHandler(store *sqlite.Store) *Handler {
	bus := NewRefreshBus()
	templates := workload.NewTemplateService(store, store, store, store)
	engine := workload.NewReallocationEngine(templates, store, store)
	engine.Deliverables = store
	engine.Runs = store
	engine.Events = bus

	return &Handler{
		Store:     store,
		Templates: templates,
		Engine:    engine,
		Bus:       bus,
	}
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps error classes to HTTP status.
func writeServiceError(w http.ResponseWriter, message string, err error) {
	switch {
	case allocation.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case allocation.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

// =============================================================================
// ORGANIZATION HANDLERS
// =============================================================================

func (h *Handler) ListDepartments(w http.ResponseWriter, r *http.Request) {
	departments, err := h.Store.ListDepartments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list departments", err)
		return
	}
	dtos := make([]DepartmentDTO, len(departments))
	for i, d := range departments {
		dtos[i] = DepartmentDTO{ID: d.ID, Name: d.Name}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateDepartment(w http.ResponseWriter, r *http.Request) {
	var req DepartmentDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	d := workload.Department{ID: req.ID, Name: req.Name}
	if err := h.Store.SaveDepartment(r.Context(), d); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create department", err)
		return
	}
	writeJSON(w, http.StatusCreated, DepartmentDTO{ID: d.ID, Name: d.Name})
}

func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.Store.ListRoles(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list roles", err)
		return
	}
	dtos := make([]RoleDTO, len(roles))
	for i, role := range roles {
		dtos[i] = toRoleDTO(role)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req RoleDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	role := workload.Role{
		ID:           allocation.RoleID(req.ID),
		Name:         req.Name,
		DepartmentID: req.DepartmentID,
	}
	if req.TemplateID != nil && *req.TemplateID != "" {
		id := allocation.TemplateID(*req.TemplateID)
		if _, err := h.Templates.GetTemplate(r.Context(), id); err != nil {
			writeServiceError(w, "Unknown template", err)
			return
		}
		role.TemplateID = &id
	}
	if err := h.Store.SaveRole(r.Context(), role); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create role", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRoleDTO(role))
}

func toRoleDTO(role workload.Role) RoleDTO {
	dto := RoleDTO{
		ID:           string(role.ID),
		Name:         role.Name,
		DepartmentID: role.DepartmentID,
	}
	if role.TemplateID != nil {
		s := string(*role.TemplateID)
		dto.TemplateID = &s
	}
	return dto
}

func (h *Handler) ListPeople(w http.ResponseWriter, r *http.Request) {
	people, err := h.Store.ListPeople(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list people", err)
		return
	}
	dtos := make([]PersonDTO, len(people))
	for i, p := range people {
		dtos[i] = toPersonDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreatePerson(w http.ResponseWriter, r *http.Request) {
	var req CreatePersonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.WeeklyCapacityHours < 0 {
		writeError(w, http.StatusBadRequest, "weekly_capacity_hours must not be negative", nil)
		return
	}
	p := workload.Person{
		ID:                  req.ID,
		Name:                req.Name,
		DepartmentID:        req.DepartmentID,
		RoleID:              allocation.RoleID(req.RoleID),
		WeeklyCapacityHours: decimal.NewFromFloat(req.WeeklyCapacityHours),
	}
	if err := h.Store.SavePerson(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create person", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPersonDTO(p))
}

func (h *Handler) GetPerson(w http.ResponseWriter, r *http.Request) {
	p, err := h.Store.GetPerson(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "Failed to get person", err)
		return
	}
	writeJSON(w, http.StatusOK, toPersonDTO(p))
}

func (h *Handler) DeletePerson(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeletePerson(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete person", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toPersonDTO(p workload.Person) PersonDTO {
	capacity, _ := p.WeeklyCapacityHours.Float64()
	return PersonDTO{
		ID:                  p.ID,
		Name:                p.Name,
		DepartmentID:        p.DepartmentID,
		RoleID:              string(p.RoleID),
		WeeklyCapacityHours: capacity,
	}
}

// =============================================================================
// PROJECT HANDLERS
// =============================================================================

func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.Store.ListProjects(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list projects", err)
		return
	}
	dtos := make([]ProjectDTO, len(projects))
	for i, p := range projects {
		dtos[i] = ProjectDTO{ID: p.ID, Name: p.Name, Client: p.Client, Status: p.Status}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req ProjectDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	p := workload.Project{ID: req.ID, Name: req.Name, Client: req.Client, Status: req.Status}
	if err := h.Store.SaveProject(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create project", err)
		return
	}
	writeJSON(w, http.StatusCreated, ProjectDTO{ID: p.ID, Name: p.Name, Client: p.Client, Status: p.Status})
}

func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.Store.GetProject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "Failed to get project", err)
		return
	}
	writeJSON(w, http.StatusOK, ProjectDTO{ID: p.ID, Name: p.Name, Client: p.Client, Status: p.Status})
}

func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteProject(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete project", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// DELIVERABLE HANDLERS
// =============================================================================

func (h *Handler) ListDeliverables(w http.ResponseWriter, r *http.Request) {
	deliverables, err := h.Store.ListDeliverables(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list deliverables", err)
		return
	}
	dtos := make([]DeliverableDTO, len(deliverables))
	for i, d := range deliverables {
		dtos[i] = toDeliverableDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateDeliverable(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	var req DeliverableDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	d := workload.Deliverable{
		ID:          req.ID,
		ProjectID:   projectID,
		Description: req.Description,
		Notes:       req.Notes,
		IsCompleted: req.IsCompleted,
		PhaseKey:    allocation.PhaseKey(req.PhaseKey),
	}
	if err := h.validatePhase(r, d.PhaseKey); err != nil {
		writeServiceError(w, "Invalid phase", err)
		return
	}
	if req.Percentage != nil {
		pct := allocation.ClampPercent(decimal.NewFromFloat(*req.Percentage))
		d.Percentage = &pct
	}
	if req.Date != nil {
		t, err := time.Parse("2006-01-02", *req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
			return
		}
		d.Date = &t
	}

	if err := h.Store.SaveDeliverable(r.Context(), d); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create deliverable", err)
		return
	}
	writeJSON(w, http.StatusCreated, toDeliverableDTO(d))
}

func (h *Handler) GetDeliverable(w http.ResponseWriter, r *http.Request) {
	d, err := h.Store.GetDeliverable(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "Failed to get deliverable", err)
		return
	}
	writeJSON(w, http.StatusOK, toDeliverableDTO(d))
}

// UpdateDeliverable commits an edit and, when the date changed, runs the
// reallocation engine. The response carries the reallocation report so the
// client can toast and selectively refresh. The engine serializes the whole
// read-patch-save-reallocate sequence per deliverable id, so concurrent
// edits each diff against the state the previous one committed.
func (h *Handler) UpdateDeliverable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var req UpdateDeliverableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	updated, result, err := h.Engine.ApplyDeliverableEdit(ctx, id, func(d workload.Deliverable) (workload.Deliverable, error) {
		if req.Description != nil {
			d.Description = *req.Description
		}
		if req.Notes != nil {
			d.Notes = *req.Notes
		}
		if req.IsCompleted != nil {
			d.IsCompleted = *req.IsCompleted
		}
		if req.Percentage != nil {
			pct := allocation.ClampPercent(decimal.NewFromFloat(*req.Percentage))
			d.Percentage = &pct
		}
		if req.PhaseKey != nil {
			d.PhaseKey = allocation.PhaseKey(*req.PhaseKey)
			if err := h.validatePhase(r, d.PhaseKey); err != nil {
				return d, err
			}
		}
		switch {
		case req.ClearDate:
			d.Date = nil
		case req.Date != nil:
			t, err := time.Parse("2006-01-02", *req.Date)
			if err != nil {
				return d, &allocation.ValidationError{Field: "date", Message: "invalid date format (use YYYY-MM-DD)", Err: err}
			}
			d.Date = &t
		}
		return d, nil
	})
	if err != nil {
		if errors.Is(err, workload.ErrReallocationFailed) {
			// The edit itself is committed; the atomic apply left every
			// assignment untouched.
			writeError(w, http.StatusInternalServerError, "Deliverable updated but reallocation failed", err)
			return
		}
		writeServiceError(w, "Failed to update deliverable", err)
		return
	}

	resp := UpdateDeliverableResponse{Deliverable: toDeliverableDTO(updated)}
	if result != nil {
		resp.Reallocation = toReallocationDTO(*result)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) DeleteDeliverable(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteDeliverable(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete deliverable", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) validatePhase(r *http.Request, key allocation.PhaseKey) error {
	phases, err := h.Store.ListPhases(r.Context())
	if err != nil {
		return err
	}
	if len(phases) == 0 {
		phases = workload.DefaultPhases()
	}
	return workload.NewPhaseSet(phases).Validate([]allocation.PhaseKey{key})
}

// =============================================================================
// ASSIGNMENT HANDLERS
// =============================================================================

func (h *Handler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	assignments, err := h.Store.ListByProject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list assignments", err)
		return
	}
	dtos := make([]AssignmentDTO, len(assignments))
	for i, a := range assignments {
		dtos[i] = toAssignmentDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	var req CreateAssignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if _, err := h.Store.GetPerson(r.Context(), req.PersonID); err != nil {
		writeServiceError(w, "Unknown person", err)
		return
	}

	a := workload.Assignment{
		ID:          req.ID,
		PersonID:    req.PersonID,
		ProjectID:   projectID,
		WeeklyHours: make(workload.WeeklyHours),
	}
	if req.RoleOnProjectID != nil && *req.RoleOnProjectID != "" {
		roleID := allocation.RoleID(*req.RoleOnProjectID)
		if _, err := h.Store.GetRole(r.Context(), roleID); err != nil {
			writeServiceError(w, "Unknown role", err)
			return
		}
		a.RoleOnProjectID = &roleID
	}
	for week, hours := range req.WeeklyHours {
		key, err := allocation.ParseWeekKey(week)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid week key", err)
			return
		}
		if hours > 0 {
			a.WeeklyHours[key] = decimal.NewFromFloat(hours)
		}
	}

	if err := h.Store.SaveAssignment(r.Context(), a); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create assignment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAssignmentDTO(a))
}

func (h *Handler) GetAssignment(w http.ResponseWriter, r *http.Request) {
	a, err := h.Store.GetAssignment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "Failed to get assignment", err)
		return
	}
	writeJSON(w, http.StatusOK, toAssignmentDTO(a))
}

// UpdateWeeklyHours is the manual grid edit: the submitted weeks replace
// their current values (zero removes the week); untouched weeks stay as
// they are.
func (h *Handler) UpdateWeeklyHours(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a, err := h.Store.GetAssignment(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "Failed to get assignment", err)
		return
	}

	var req UpdateWeeklyHoursRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	for week, hours := range req.WeeklyHours {
		key, err := allocation.ParseWeekKey(week)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid week key", err)
			return
		}
		if hours < 0 {
			writeError(w, http.StatusBadRequest, "Hours must not be negative", nil)
			return
		}
		if hours == 0 {
			delete(a.WeeklyHours, key)
			continue
		}
		a.WeeklyHours[key] = decimal.NewFromFloat(hours)
	}

	if err := h.Store.SaveAssignment(ctx, a); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update assignment", err)
		return
	}
	writeJSON(w, http.StatusOK, toAssignmentDTO(a))
}

func (h *Handler) DeleteAssignment(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteAssignment(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete assignment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// AUTO-HOURS SETTINGS HANDLERS
// =============================================================================

// templateRefFromQuery reads ?template_id=; absent means global defaults.
func templateRefFromQuery(r *http.Request) allocation.TemplateRef {
	id := r.URL.Query().Get("template_id")
	if id == "" {
		return allocation.Global()
	}
	return allocation.ByID(allocation.TemplateID(id))
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	phase := allocation.PhaseKey(r.URL.Query().Get("phase"))
	if phase == "" {
		writeError(w, http.StatusBadRequest, "phase query parameter is required", nil)
		return
	}

	rows, err := h.Templates.ListSettings(r.Context(), templateRefFromQuery(r), phase)
	if err != nil {
		writeServiceError(w, "Failed to list settings", err)
		return
	}
	dtos := make([]RoleSettingDTO, len(rows))
	for i, row := range rows {
		dtos[i] = toRoleSettingDTO(row)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	phase := allocation.PhaseKey(r.URL.Query().Get("phase"))
	if phase == "" {
		writeError(w, http.StatusBadRequest, "phase query parameter is required", nil)
		return
	}

	var req UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rows, err := settingsRowsFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid settings rows", err)
		return
	}

	updated, err := h.Templates.UpdateSettings(r.Context(), templateRefFromQuery(r), phase, rows)
	if err != nil {
		writeServiceError(w, "Failed to update settings", err)
		return
	}
	dtos := make([]RoleSettingDTO, len(updated))
	for i, row := range updated {
		dtos[i] = toRoleSettingDTO(row)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// settingsRowsFromRequest normalizes submitted rows to percent curves.
// Hours mode divides by the stated full capacity; everything stored is
// percent-based and capacity-agnostic.
func settingsRowsFromRequest(req UpdateSettingsRequest) ([]allocation.RoleSetting, error) {
	hoursMode := req.InputMode == "hours"
	var capacity decimal.Decimal
	if hoursMode {
		if req.FullCapacityHours <= 0 {
			return nil, &allocation.ValidationError{
				Field: "full_capacity_hours", Message: "required and positive in hours mode",
			}
		}
		capacity = decimal.NewFromFloat(req.FullCapacityHours)
	}

	rows := make([]allocation.RoleSetting, 0, len(req.Rows))
	for _, in := range req.Rows {
		curve := allocation.NewPercentByWeek(allocation.DefaultLookbackWeeks)
		source := in.PercentByWeek
		if hoursMode {
			source = in.HoursByWeek
		}
		for k, v := range source {
			offset, err := strconv.Atoi(k)
			if err != nil {
				return nil, &allocation.ValidationError{
					Field: "percentByWeek", Message: "week offsets must be integers",
				}
			}
			pct := decimal.NewFromFloat(v)
			if hoursMode {
				pct = pct.Div(capacity).Mul(decimal.NewFromInt(100))
			}
			curve.Set(offset, pct)
		}
		active := true
		if in.IsActive != nil {
			active = *in.IsActive
		}
		rows = append(rows, allocation.RoleSetting{
			RoleID:        allocation.RoleID(in.RoleID),
			PercentByWeek: curve,
			IsActive:      active,
		})
	}
	return rows, nil
}

// =============================================================================
// TEMPLATE HANDLERS
// =============================================================================

func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.Templates.ListTemplates(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list templates", err)
		return
	}
	dtos := make([]TemplateDTO, len(templates))
	for i, t := range templates {
		dtos[i] = toTemplateDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req CreateTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	keys := make([]allocation.PhaseKey, len(req.PhaseKeys))
	for i, k := range req.PhaseKeys {
		keys[i] = allocation.PhaseKey(k)
	}
	tmpl, err := h.Templates.CreateTemplate(r.Context(), req.Name, req.Description, keys)
	if err != nil {
		writeServiceError(w, "Failed to create template", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTemplateDTO(tmpl))
}

func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, err := h.Templates.GetTemplate(r.Context(), allocation.TemplateID(chi.URLParam(r, "id")))
	if err != nil {
		writeServiceError(w, "Failed to get template", err)
		return
	}
	writeJSON(w, http.StatusOK, toTemplateDTO(tmpl))
}

func (h *Handler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id := allocation.TemplateID(chi.URLParam(r, "id"))
	var req UpdateTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	tmpl, err := h.Templates.GetTemplate(r.Context(), id)
	if err != nil {
		writeServiceError(w, "Failed to get template", err)
		return
	}
	if req.Name != nil {
		if tmpl, err = h.Templates.RenameTemplate(r.Context(), id, *req.Name); err != nil {
			writeServiceError(w, "Failed to rename template", err)
			return
		}
	}
	if req.Description != nil {
		if tmpl, err = h.Templates.UpdateDescription(r.Context(), id, *req.Description); err != nil {
			writeServiceError(w, "Failed to update template", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, toTemplateDTO(tmpl))
}

func (h *Handler) SetTemplatePhases(w http.ResponseWriter, r *http.Request) {
	id := allocation.TemplateID(chi.URLParam(r, "id"))
	var req SetPhaseKeysRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	keys := make([]allocation.PhaseKey, len(req.PhaseKeys))
	for i, k := range req.PhaseKeys {
		keys[i] = allocation.PhaseKey(k)
	}
	tmpl, err := h.Templates.SetPhaseKeys(r.Context(), id, keys)
	if err != nil {
		writeServiceError(w, "Failed to set template phases", err)
		return
	}
	writeJSON(w, http.StatusOK, toTemplateDTO(tmpl))
}

func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.Templates.DeleteTemplate(r.Context(), allocation.ByID(allocation.TemplateID(id)))
	if err != nil {
		writeServiceError(w, "Failed to delete template", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// PHASE / EVENT / RUN HANDLERS
// =============================================================================

func (h *Handler) ListPhases(w http.ResponseWriter, r *http.Request) {
	phases, err := h.Store.ListPhases(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list phases", err)
		return
	}
	if len(phases) == 0 {
		phases = workload.DefaultPhases()
	}
	dtos := make([]PhaseDTO, len(phases))
	for i, p := range phases {
		dtos[i] = PhaseDTO{Value: string(p.Value), Label: p.Label}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) RecentEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}
	events := h.Bus.Recent(limit)
	dtos := make([]RefreshEventDTO, len(events))
	for i, e := range events {
		dtos[i] = toRefreshEventDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) ListReallocationRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}
	runs, err := h.Store.ListRuns(r.Context(), r.URL.Query().Get("deliverable_id"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list reallocation runs", err)
		return
	}
	dtos := make([]ReallocationRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}
