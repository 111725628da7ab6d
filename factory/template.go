/*
Package factory provides JSON to Go auto-hours template conversion.

PURPOSE:
  Converts JSON template definitions into allocation.Template values plus
  their per-phase role curves. This enables template configuration without
  code changes - admins can define percent curves in JSON, and the factory
  produces the proper Go structs for seeding or import.

JSON SCHEMA:
  {
    "name": "Front-loaded delivery",
    "description": "Ramps hours into the due week",
    "phase_keys": ["sd", "dd"],
    "settings": {
      "sd": [
        {"role_id": "role-pm", "percent_by_week": {"0": 100, "1": 50, "2": 25}},
        {"role_id": "role-eng", "percent_by_week": {"0": 100, "1": 75}, "is_active": false}
      ]
    }
  }

KEY FEATURES:
  - Validates structure and required fields
  - Clamps percents to [0,100] (curve semantics, not an error)
  - Unknown week offsets outside 0..lookback are dropped
  - Preset builders for the stock seed data

SEE ALSO:
  - allocation/types.go:   Template, PercentByWeek, RoleSetting
  - api/scenarios.go:      Uses presets to load demo data
*/
package factory

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tschnepf/workload-tracker-sub005/allocation"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// TemplateJSON is the JSON representation of a template and its curves.
type TemplateJSON struct {
	Name        string                     `json:"name"`
	Description string                     `json:"description,omitempty"`
	PhaseKeys   []string                   `json:"phase_keys,omitempty"`
	Settings    map[string][]RoleCurveJSON `json:"settings,omitempty"` // phase -> rows
}

// RoleCurveJSON is one role's percent curve within a phase.
type RoleCurveJSON struct {
	RoleID        string             `json:"role_id"`
	PercentByWeek map[string]float64 `json:"percent_by_week"`
	IsActive      *bool              `json:"is_active,omitempty"` // default true
}

// =============================================================================
// FACTORY
// =============================================================================

// TemplateFactory converts JSON template definitions.
type TemplateFactory struct {
	// LookbackWeeks sets curve length; zero means allocation.DefaultLookbackWeeks.
	LookbackWeeks int
}

func NewTemplateFactory() *TemplateFactory {
	return &TemplateFactory{}
}

func (f *TemplateFactory) lookback() int {
	if f.LookbackWeeks > 0 {
		return f.LookbackWeeks
	}
	return allocation.DefaultLookbackWeeks
}

// ParseTemplate parses a JSON definition into a template (without id - the
// caller assigns one) and its per-phase settings rows.
func (f *TemplateFactory) ParseTemplate(data string) (allocation.Template, map[allocation.PhaseKey][]allocation.RoleSetting, error) {
	var def TemplateJSON
	if err := json.Unmarshal([]byte(data), &def); err != nil {
		return allocation.Template{}, nil, fmt.Errorf("invalid template JSON: %w", err)
	}
	if strings.TrimSpace(def.Name) == "" {
		return allocation.Template{}, nil, &allocation.ValidationError{
			Field: "name", Message: "must not be empty", Err: allocation.ErrNameRequired,
		}
	}

	tmpl := allocation.Template{
		Name:        strings.TrimSpace(def.Name),
		Description: def.Description,
	}
	for _, k := range def.PhaseKeys {
		tmpl.PhaseKeys = append(tmpl.PhaseKeys, allocation.PhaseKey(k))
	}

	settings := make(map[allocation.PhaseKey][]allocation.RoleSetting, len(def.Settings))
	for phase, rows := range def.Settings {
		parsed, err := f.parseRows(rows)
		if err != nil {
			return allocation.Template{}, nil, fmt.Errorf("phase %s: %w", phase, err)
		}
		settings[allocation.PhaseKey(phase)] = parsed
	}

	return tmpl, settings, nil
}

// ParseGlobalDefaults parses a JSON definition whose rows target the global
// defaults (name/phase_keys are ignored; only settings matter).
func (f *TemplateFactory) ParseGlobalDefaults(data string) (map[allocation.PhaseKey][]allocation.RoleSetting, error) {
	var def TemplateJSON
	if err := json.Unmarshal([]byte(data), &def); err != nil {
		return nil, fmt.Errorf("invalid defaults JSON: %w", err)
	}
	settings := make(map[allocation.PhaseKey][]allocation.RoleSetting, len(def.Settings))
	for phase, rows := range def.Settings {
		parsed, err := f.parseRows(rows)
		if err != nil {
			return nil, fmt.Errorf("phase %s: %w", phase, err)
		}
		settings[allocation.PhaseKey(phase)] = parsed
	}
	return settings, nil
}

func (f *TemplateFactory) parseRows(rows []RoleCurveJSON) ([]allocation.RoleSetting, error) {
	out := make([]allocation.RoleSetting, 0, len(rows))
	for _, row := range rows {
		if row.RoleID == "" {
			return nil, &allocation.ValidationError{Field: "role_id", Message: "must not be empty"}
		}
		byOffset := make(map[int]float64, len(row.PercentByWeek))
		for k, v := range row.PercentByWeek {
			offset, err := strconv.Atoi(k)
			if err != nil {
				return nil, &allocation.ValidationError{
					Field: "percent_by_week", Message: fmt.Sprintf("non-integer week offset %q", k),
				}
			}
			byOffset[offset] = v
		}
		active := true
		if row.IsActive != nil {
			active = *row.IsActive
		}
		out = append(out, allocation.RoleSetting{
			RoleID:        allocation.RoleID(row.RoleID),
			PercentByWeek: allocation.PercentByWeekFromMap(byOffset, f.lookback()),
			IsActive:      active,
		})
	}
	return out, nil
}

// =============================================================================
// PRESETS - Stock definitions used by seeding and demo scenarios
// =============================================================================

// GlobalDefaultsJSON builds the stock global curve for the given roles and
// phases: 100% in the due week tapering to 25% two weeks out.
func GlobalDefaultsJSON(phaseKeys []string, roleIDs []string) string {
	settings := make(map[string][]RoleCurveJSON, len(phaseKeys))
	for _, phase := range phaseKeys {
		rows := make([]RoleCurveJSON, 0, len(roleIDs))
		for _, roleID := range roleIDs {
			rows = append(rows, RoleCurveJSON{
				RoleID:        roleID,
				PercentByWeek: map[string]float64{"0": 100, "1": 50, "2": 25},
			})
		}
		settings[phase] = rows
	}
	def := TemplateJSON{Name: "global", Settings: settings}
	b, _ := json.Marshal(def)
	return string(b)
}

// FrontLoadedRampJSON builds a template that ramps hours harder into the
// due week, scoped to the given phases.
func FrontLoadedRampJSON(name string, phaseKeys []string, roleIDs []string) string {
	settings := make(map[string][]RoleCurveJSON, len(phaseKeys))
	for _, phase := range phaseKeys {
		rows := make([]RoleCurveJSON, 0, len(roleIDs))
		for _, roleID := range roleIDs {
			rows = append(rows, RoleCurveJSON{
				RoleID:        roleID,
				PercentByWeek: map[string]float64{"0": 100, "1": 75, "2": 50, "3": 25},
			})
		}
		settings[phase] = rows
	}
	def := TemplateJSON{
		Name:        name,
		Description: "Ramps hours into the due week over four weeks",
		PhaseKeys:   phaseKeys,
		Settings:    settings,
	}
	b, _ := json.Marshal(def)
	return string(b)
}
