/*
store.go - Persistence interfaces for templates and settings

PURPOSE:
  Defines the interface between the allocation engine and the database.
  Implementations live in store/sqlite (production) and store/memory
  (tests/dev). The workload package composes these with its own domain
  stores into services.

SETTINGS SEMANTICS:
  SettingsStore persists only EXPLICIT rows. Zero-filling for roles with
  no override is a service-level concern (workload.TemplateService), so
  the store never has to answer "which roles exist".

SEE ALSO:
  - workload/store.go:  Domain store interfaces (people, assignments, ...)
  - store/sqlite:       Production implementation
  - store/memory:       In-memory implementation
*/
package allocation

import "context"

// TemplateStore persists named templates. The global defaults are not a
// template row and never appear here.
type TemplateStore interface {
	// SaveTemplate inserts or updates a template.
	SaveTemplate(ctx context.Context, t Template) error

	// GetTemplate returns the template or ErrTemplateNotFound.
	GetTemplate(ctx context.Context, id TemplateID) (Template, error)

	// ListTemplates returns all templates ordered by name.
	ListTemplates(ctx context.Context) ([]Template, error)

	// DeleteTemplate removes a template and its settings rows.
	// Returns ErrTemplateNotFound for unknown ids.
	DeleteTemplate(ctx context.Context, id TemplateID) error
}

// SettingsStore persists explicit per-role percent curves, keyed by
// (template-or-global, phase, role).
type SettingsStore interface {
	// GetSettings returns the explicit rows for (ref, phase). Roles without
	// an override are simply absent - callers zero-fill.
	GetSettings(ctx context.Context, ref TemplateRef, phase PhaseKey) ([]RoleSetting, error)

	// SaveSettings upserts rows for (ref, phase). Curves are stored as
	// given; callers clamp before saving.
	SaveSettings(ctx context.Context, ref TemplateRef, phase PhaseKey, rows []RoleSetting) error
}
