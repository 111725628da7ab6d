/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements every persistence interface the services depend on
  (allocation.TemplateStore/SettingsStore plus the workload domain stores)
  on a single Store value. In production the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  autohours_templates: Named templates with phase opt-in sets
  autohours_settings:  Percent curves per (template-or-global, phase, role)
  departments/roles/people: The organization
  projects/deliverables:    The work
  assignments:         Person-on-project with a weekly-hours JSON column
  phases:              The configured phase universe
  reallocation_runs:   Audit trail of engine runs

ENCODING:
  Decimal values (capacity, hours, percents) are stored as strings so no
  precision is lost round-tripping through SQLite's numeric affinity.
  Weekly-hours maps and percent curves are JSON columns keyed by week key
  and week offset respectively.

GLOBAL SENTINEL:
  The global defaults are not a template row. In autohours_settings the
  template_id column uses '' for global; the TemplateRef tag is restored
  on read so the sentinel never leaks past this package.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of WAL mode (multiple
  readers, single writer, better crash recovery).

USAGE:
  store, err := sqlite.New("./data/tracker.db")
  defer store.Close()

SEE ALSO:
  - allocation/store.go: Template/settings interface definitions
  - workload/store.go:   Domain interface definitions
  - store/memory:        In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/tschnepf/workload-tracker-sub005/allocation"
	"github.com/tschnepf/workload-tracker-sub005/workload"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Reset wipes all data. Used by the demo scenario loaders; never call
// this in production.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"reallocation_runs",
		"autohours_settings",
		"autohours_templates",
		"assignments",
		"deliverables",
		"projects",
		"people",
		"roles",
		"departments",
		"phases",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset table %s: %w", table, err)
		}
	}
	return nil
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Departments and roles
	CREATE TABLE IF NOT EXISTS departments (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS roles (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		department_id TEXT NOT NULL,
		template_id TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_roles_department
		ON roles(department_id);

	-- People
	CREATE TABLE IF NOT EXISTS people (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		department_id TEXT NOT NULL,
		role_id TEXT NOT NULL,
		weekly_capacity TEXT NOT NULL DEFAULT '0'
	);

	-- Projects and deliverables
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		client TEXT,
		status TEXT
	);

	CREATE TABLE IF NOT EXISTS deliverables (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		percentage TEXT,
		description TEXT,
		due_date TEXT,
		notes TEXT,
		is_completed BOOLEAN NOT NULL DEFAULT FALSE,
		phase_key TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_deliverables_project
		ON deliverables(project_id);

	-- Assignments (hot path for the reallocation fan-out)
	CREATE TABLE IF NOT EXISTS assignments (
		id TEXT PRIMARY KEY,
		person_id TEXT NOT NULL,
		project_id TEXT NOT NULL,
		role_on_project_id TEXT,
		weekly_hours_json TEXT NOT NULL DEFAULT '{}',
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_assignments_project
		ON assignments(project_id);
	CREATE INDEX IF NOT EXISTS idx_assignments_person
		ON assignments(person_id);

	-- Auto-hours templates ('' template_id in settings = global defaults)
	CREATE TABLE IF NOT EXISTS autohours_templates (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		phase_keys_json TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS autohours_settings (
		template_id TEXT NOT NULL DEFAULT '',
		phase_key TEXT NOT NULL,
		role_id TEXT NOT NULL,
		percent_by_week_json TEXT NOT NULL DEFAULT '{}',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (template_id, phase_key, role_id)
	);

	-- Phase universe
	CREATE TABLE IF NOT EXISTS phases (
		value TEXT PRIMARY KEY,
		label TEXT NOT NULL,
		position INTEGER NOT NULL DEFAULT 0
	);

	-- Reallocation audit trail
	CREATE TABLE IF NOT EXISTS reallocation_runs (
		id TEXT PRIMARY KEY,
		deliverable_id TEXT NOT NULL,
		project_id TEXT NOT NULL,
		delta_weeks INTEGER NOT NULL,
		assignments_changed INTEGER NOT NULL,
		touched_weeks INTEGER NOT NULL,
		started_at TEXT NOT NULL,
		completed_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_deliverable
		ON reallocation_runs(deliverable_id);
	CREATE INDEX IF NOT EXISTS idx_runs_completed
		ON reallocation_runs(completed_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ENCODING HELPERS
// =============================================================================

func marshalCurve(curve allocation.PercentByWeek) string {
	m := make(map[string]string, curve.Len())
	for offset := 0; offset < curve.Len(); offset++ {
		m[strconv.Itoa(offset)] = curve.At(offset).String()
	}
	b, _ := json.Marshal(m)
	return string(b)
}

func unmarshalCurve(data string, lookback int) allocation.PercentByWeek {
	curve := allocation.NewPercentByWeek(lookback)
	var m map[string]string
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return curve
	}
	for k, v := range m {
		offset, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		pct, err := decimal.NewFromString(v)
		if err != nil {
			continue
		}
		curve.Set(offset, pct)
	}
	return curve
}

func marshalHours(wh workload.WeeklyHours) string {
	m := make(map[string]string, len(wh))
	for week, hours := range wh {
		m[string(week)] = hours.String()
	}
	b, _ := json.Marshal(m)
	return string(b)
}

func unmarshalHours(data string) workload.WeeklyHours {
	wh := make(workload.WeeklyHours)
	var m map[string]string
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return wh
	}
	for week, v := range m {
		hours, err := decimal.NewFromString(v)
		if err != nil {
			continue
		}
		if hours.Sign() > 0 {
			wh[allocation.WeekKey(week)] = hours
		}
	}
	return wh
}

func refColumn(ref allocation.TemplateRef) string {
	if id, ok := ref.ID(); ok {
		return string(id)
	}
	return ""
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// =============================================================================
// TEMPLATE STORE (allocation.TemplateStore)
// =============================================================================

// SaveTemplate inserts or updates a template.
func (s *Store) SaveTemplate(ctx context.Context, t allocation.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, _ := json.Marshal(t.PhaseKeys)
	now := nowRFC3339()

	query := `
		INSERT INTO autohours_templates (id, name, description, phase_keys_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			phase_keys_json = excluded.phase_keys_json,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, t.ID, t.Name, t.Description, string(keys), now, now); err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}
	return nil
}

// GetTemplate returns the template or ErrTemplateNotFound.
func (s *Store) GetTemplate(ctx context.Context, id allocation.TemplateID) (allocation.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, phase_keys_json FROM autohours_templates WHERE id = ?`, id)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return t, &allocation.NotFoundError{Kind: "template", ID: string(id), Err: allocation.ErrTemplateNotFound}
	}
	return t, err
}

// ListTemplates returns all templates ordered by name.
func (s *Store) ListTemplates(ctx context.Context) ([]allocation.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, phase_keys_json FROM autohours_templates ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer rows.Close()

	var templates []allocation.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// DeleteTemplate removes a template and its settings rows.
func (s *Store) DeleteTemplate(ctx context.Context, id allocation.TemplateID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM autohours_templates WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &allocation.NotFoundError{Kind: "template", ID: string(id), Err: allocation.ErrTemplateNotFound}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM autohours_settings WHERE template_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete template settings: %w", err)
	}
	return tx.Commit()
}

func scanTemplate(row rowScanner) (allocation.Template, error) {
	var (
		t        allocation.Template
		desc     sql.NullString
		keysJSON string
	)
	if err := row.Scan(&t.ID, &t.Name, &desc, &keysJSON); err != nil {
		return t, err
	}
	t.Description = desc.String
	if err := json.Unmarshal([]byte(keysJSON), &t.PhaseKeys); err != nil {
		t.PhaseKeys = nil
	}
	return t, nil
}

// =============================================================================
// SETTINGS STORE (allocation.SettingsStore)
// =============================================================================

// GetSettings returns the explicit rows for (ref, phase). Roles without an
// override are absent; zero-filling is the service's job.
func (s *Store) GetSettings(ctx context.Context, ref allocation.TemplateRef, phase allocation.PhaseKey) ([]allocation.RoleSetting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT st.role_id, COALESCE(r.name, ''), COALESCE(r.department_id, ''), COALESCE(d.name, ''),
		       st.percent_by_week_json, st.is_active
		FROM autohours_settings st
		LEFT JOIN roles r ON r.id = st.role_id
		LEFT JOIN departments d ON d.id = r.department_id
		WHERE st.template_id = ? AND st.phase_key = ?
		ORDER BY r.department_id ASC, r.name ASC
	`
	rows, err := s.db.QueryContext(ctx, query, refColumn(ref), phase)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	var settings []allocation.RoleSetting
	for rows.Next() {
		var (
			setting   allocation.RoleSetting
			curveJSON string
		)
		if err := rows.Scan(&setting.RoleID, &setting.RoleName, &setting.DepartmentID,
			&setting.DepartmentName, &curveJSON, &setting.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		setting.PercentByWeek = unmarshalCurve(curveJSON, allocation.DefaultLookbackWeeks)
		settings = append(settings, setting)
	}
	return settings, rows.Err()
}

// SaveSettings upserts rows for (ref, phase) in one transaction.
func (s *Store) SaveSettings(ctx context.Context, ref allocation.TemplateRef, phase allocation.PhaseKey, rows []allocation.RoleSetting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO autohours_settings (template_id, phase_key, role_id, percent_by_week_json, is_active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(template_id, phase_key, role_id) DO UPDATE SET
			percent_by_week_json = excluded.percent_by_week_json,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
	`
	now := nowRFC3339()
	for _, row := range rows {
		if _, err := tx.ExecContext(ctx, query,
			refColumn(ref), phase, row.RoleID, marshalCurve(row.PercentByWeek), row.IsActive, now,
		); err != nil {
			return fmt.Errorf("failed to save setting for role %s: %w", row.RoleID, err)
		}
	}
	return tx.Commit()
}
