/*
templates.go - Auto-hours template and settings service

PURPOSE:
  The editing and resolution surface for percent-by-week templates:
  - ListSettings/UpdateSettings: one curve row per known role, per
    (template-or-global, phase)
  - Template CRUD with the phase opt-in rules
  - Effective-template resolution (the global-fallback invariant)

RESOLUTION RULE (core invariant):
  A template opts in per phase. A role's assigned template is used only
  when it exists AND opts into the deliverable's phase; in every other
  case the global defaults apply. A phase is never silently dropped.

ZERO-FILL RULE:
  Every role known to the system resolves to a settings row. Roles with
  no explicit override get an all-zero curve - never an absent row.

SEE ALSO:
  - allocation/types.go: Template, TemplateRef, RoleSetting
  - reallocation.go:     Consumes SettingFor during fan-out
*/
package workload

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/tschnepf/workload-tracker-sub005/allocation"
)

// TemplateService resolves and edits auto-hours configuration.
type TemplateService struct {
	Templates allocation.TemplateStore
	Settings  allocation.SettingsStore
	Roles     RoleStore
	Phases    PhaseStore

	// LookbackWeeks sets curve length; zero means allocation.DefaultLookbackWeeks.
	LookbackWeeks int
}

func NewTemplateService(templates allocation.TemplateStore, settings allocation.SettingsStore, roles RoleStore, phases PhaseStore) *TemplateService {
	return &TemplateService{
		Templates: templates,
		Settings:  settings,
		Roles:     roles,
		Phases:    phases,
	}
}

func (ts *TemplateService) lookback() int {
	if ts.LookbackWeeks > 0 {
		return ts.LookbackWeeks
	}
	return allocation.DefaultLookbackWeeks
}

func (ts *TemplateService) phaseSet(ctx context.Context) (*PhaseSet, error) {
	phases, err := ts.Phases.ListPhases(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading phase universe: %w", err)
	}
	if len(phases) == 0 {
		phases = DefaultPhases()
	}
	return NewPhaseSet(phases), nil
}

// =============================================================================
// SETTINGS - List and update per-role curves
// =============================================================================

// ListSettings returns one settings row per role known to the system for
// (ref, phase). Roles without an explicit override carry an all-zero curve.
func (ts *TemplateService) ListSettings(ctx context.Context, ref allocation.TemplateRef, phase allocation.PhaseKey) ([]allocation.RoleSetting, error) {
	phases, err := ts.phaseSet(ctx)
	if err != nil {
		return nil, err
	}
	if err := phases.Validate([]allocation.PhaseKey{phase}); err != nil {
		return nil, err
	}
	if err := ts.requireTemplate(ctx, ref); err != nil {
		return nil, err
	}

	roles, err := ts.Roles.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	explicit, err := ts.Settings.GetSettings(ctx, ref, phase)
	if err != nil {
		return nil, err
	}

	byRole := make(map[allocation.RoleID]allocation.RoleSetting, len(explicit))
	for _, row := range explicit {
		byRole[row.RoleID] = row
	}

	departments := ts.departmentNames(ctx)

	rows := make([]allocation.RoleSetting, 0, len(roles))
	for _, role := range roles {
		if row, ok := byRole[role.ID]; ok {
			// Keep stored curve but refresh the denormalized names.
			row.RoleName = role.Name
			row.DepartmentID = role.DepartmentID
			row.DepartmentName = departments[role.DepartmentID]
			rows = append(rows, row)
			continue
		}
		rows = append(rows, allocation.RoleSetting{
			RoleID:         role.ID,
			RoleName:       role.Name,
			DepartmentID:   role.DepartmentID,
			DepartmentName: departments[role.DepartmentID],
			PercentByWeek:  allocation.NewPercentByWeek(ts.lookback()),
			IsActive:       true,
		})
	}
	return rows, nil
}

// UpdateSettings clamps, persists and returns the canonical rows for
// (ref, phase). Out-of-range percents are clamped, not rejected; unknown
// role ids are.
func (ts *TemplateService) UpdateSettings(ctx context.Context, ref allocation.TemplateRef, phase allocation.PhaseKey, rows []allocation.RoleSetting) ([]allocation.RoleSetting, error) {
	phases, err := ts.phaseSet(ctx)
	if err != nil {
		return nil, err
	}
	if err := phases.Validate([]allocation.PhaseKey{phase}); err != nil {
		return nil, err
	}
	if err := ts.requireTemplate(ctx, ref); err != nil {
		return nil, err
	}

	clamped := make([]allocation.RoleSetting, 0, len(rows))
	for _, row := range rows {
		if _, err := ts.Roles.GetRole(ctx, row.RoleID); err != nil {
			return nil, err
		}
		curve := allocation.NewPercentByWeek(ts.lookback())
		for offset := 0; offset < curve.Len(); offset++ {
			curve.Set(offset, row.PercentByWeek.At(offset))
		}
		row.PercentByWeek = curve
		clamped = append(clamped, row)
	}

	if err := ts.Settings.SaveSettings(ctx, ref, phase, clamped); err != nil {
		return nil, err
	}
	return ts.ListSettings(ctx, ref, phase)
}

// SettingFor resolves the effective settings row one role contributes under
// for a phase: effective-template resolution first, then the row (zero
// curve when no override exists).
func (ts *TemplateService) SettingFor(ctx context.Context, roleID allocation.RoleID, phase allocation.PhaseKey) (allocation.RoleSetting, error) {
	ref, err := ts.ResolveEffectiveTemplate(ctx, roleID, phase)
	if err != nil {
		return allocation.RoleSetting{}, err
	}

	explicit, err := ts.Settings.GetSettings(ctx, ref, phase)
	if err != nil {
		return allocation.RoleSetting{}, err
	}
	for _, row := range explicit {
		if row.RoleID == roleID {
			return row, nil
		}
	}

	role, err := ts.Roles.GetRole(ctx, roleID)
	if err != nil {
		return allocation.RoleSetting{}, err
	}
	return allocation.RoleSetting{
		RoleID:        role.ID,
		RoleName:      role.Name,
		DepartmentID:  role.DepartmentID,
		PercentByWeek: allocation.NewPercentByWeek(ts.lookback()),
		IsActive:      true,
	}, nil
}

// ResolveEffectiveTemplate applies the fallback rule for a role and phase.
// A dangling template reference on the role falls back to global rather
// than erroring - a deleted template must not break allocation.
func (ts *TemplateService) ResolveEffectiveTemplate(ctx context.Context, roleID allocation.RoleID, phase allocation.PhaseKey) (allocation.TemplateRef, error) {
	role, err := ts.Roles.GetRole(ctx, roleID)
	if err != nil {
		return allocation.Global(), err
	}
	if role.TemplateID == nil {
		return allocation.Global(), nil
	}
	tmpl, err := ts.Templates.GetTemplate(ctx, *role.TemplateID)
	if err != nil {
		if allocation.IsNotFound(err) {
			return allocation.Global(), nil
		}
		return allocation.Global(), err
	}
	return allocation.ResolveEffectiveRef(&tmpl, phase), nil
}

// =============================================================================
// TEMPLATE CRUD
// =============================================================================

// CreateTemplate creates a named template. An empty phase-key set means
// the template applies to every phase.
func (ts *TemplateService) CreateTemplate(ctx context.Context, name, description string, phaseKeys []allocation.PhaseKey) (allocation.Template, error) {
	if strings.TrimSpace(name) == "" {
		return allocation.Template{}, &allocation.ValidationError{
			Field: "name", Message: "must not be empty", Err: allocation.ErrNameRequired,
		}
	}
	phases, err := ts.phaseSet(ctx)
	if err != nil {
		return allocation.Template{}, err
	}
	if err := phases.Validate(phaseKeys); err != nil {
		return allocation.Template{}, err
	}

	tmpl := allocation.Template{
		ID:          allocation.TemplateID(uuid.NewString()),
		Name:        strings.TrimSpace(name),
		Description: description,
		PhaseKeys:   phaseKeys,
	}
	if err := ts.Templates.SaveTemplate(ctx, tmpl); err != nil {
		return allocation.Template{}, err
	}
	return tmpl, nil
}

func (ts *TemplateService) GetTemplate(ctx context.Context, id allocation.TemplateID) (allocation.Template, error) {
	return ts.Templates.GetTemplate(ctx, id)
}

func (ts *TemplateService) ListTemplates(ctx context.Context) ([]allocation.Template, error) {
	return ts.Templates.ListTemplates(ctx)
}

// RenameTemplate changes the display name. Duplicate names are allowed.
func (ts *TemplateService) RenameTemplate(ctx context.Context, id allocation.TemplateID, name string) (allocation.Template, error) {
	if strings.TrimSpace(name) == "" {
		return allocation.Template{}, &allocation.ValidationError{
			Field: "name", Message: "must not be empty", Err: allocation.ErrNameRequired,
		}
	}
	tmpl, err := ts.Templates.GetTemplate(ctx, id)
	if err != nil {
		return allocation.Template{}, err
	}
	tmpl.Name = strings.TrimSpace(name)
	if err := ts.Templates.SaveTemplate(ctx, tmpl); err != nil {
		return allocation.Template{}, err
	}
	return tmpl, nil
}

// UpdateDescription changes the free-form description.
func (ts *TemplateService) UpdateDescription(ctx context.Context, id allocation.TemplateID, description string) (allocation.Template, error) {
	tmpl, err := ts.Templates.GetTemplate(ctx, id)
	if err != nil {
		return allocation.Template{}, err
	}
	tmpl.Description = description
	if err := ts.Templates.SaveTemplate(ctx, tmpl); err != nil {
		return allocation.Template{}, err
	}
	return tmpl, nil
}

// SetPhaseKeys replaces the phase opt-in set. An empty set is rejected and
// leaves the template unchanged: a template applicable to nothing is
// unusable configuration.
func (ts *TemplateService) SetPhaseKeys(ctx context.Context, id allocation.TemplateID, phaseKeys []allocation.PhaseKey) (allocation.Template, error) {
	if len(phaseKeys) == 0 {
		return allocation.Template{}, &allocation.ValidationError{
			Field: "phase_keys", Message: "at least one phase must remain active", Err: allocation.ErrEmptyPhaseSet,
		}
	}
	phases, err := ts.phaseSet(ctx)
	if err != nil {
		return allocation.Template{}, err
	}
	if err := phases.Validate(phaseKeys); err != nil {
		return allocation.Template{}, err
	}

	tmpl, err := ts.Templates.GetTemplate(ctx, id)
	if err != nil {
		return allocation.Template{}, err
	}
	tmpl.PhaseKeys = phaseKeys
	if err := ts.Templates.SaveTemplate(ctx, tmpl); err != nil {
		return allocation.Template{}, err
	}
	return tmpl, nil
}

// DeleteTemplate removes a template and its settings. The global defaults
// have no id and cannot be targeted.
func (ts *TemplateService) DeleteTemplate(ctx context.Context, ref allocation.TemplateRef) error {
	id, ok := ref.ID()
	if !ok {
		return allocation.ErrGlobalTemplateImmutable
	}
	return ts.Templates.DeleteTemplate(ctx, id)
}

// =============================================================================
// HELPERS
// =============================================================================

// requireTemplate verifies a concrete ref exists. Global always exists.
func (ts *TemplateService) requireTemplate(ctx context.Context, ref allocation.TemplateRef) error {
	id, ok := ref.ID()
	if !ok {
		return nil
	}
	_, err := ts.Templates.GetTemplate(ctx, id)
	return err
}

// departmentNames is best-effort denormalization for display fields.
func (ts *TemplateService) departmentNames(ctx context.Context) map[string]string {
	names := make(map[string]string)
	if ds, ok := ts.Roles.(DepartmentStore); ok {
		if departments, err := ds.ListDepartments(ctx); err == nil {
			for _, d := range departments {
				names[d.ID] = d.Name
			}
		}
	}
	return names
}
