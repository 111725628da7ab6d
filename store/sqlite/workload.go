/*
workload.go - Domain store implementations (people, projects, assignments)

PURPOSE:
  The workload-side half of the SQLite store: organization tables,
  projects/deliverables, assignment grids, the phase universe and the
  reallocation audit trail.

ATOMIC APPLY:
  SaveAll wraps the whole assignment batch in one database transaction.
  This is the all-or-nothing guarantee the reallocation engine's apply
  step depends on: a failed write rolls back every assignment in the run.

SEE ALSO:
  - sqlite.go:         Schema, encoding helpers, template/settings stores
  - workload/store.go: Interface contracts
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tschnepf/workload-tracker-sub005/allocation"
	"github.com/tschnepf/workload-tracker-sub005/workload"
)

// =============================================================================
// DEPARTMENTS (workload.DepartmentStore)
// =============================================================================

func (s *Store) SaveDepartment(ctx context.Context, d workload.Department) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO departments (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`, d.ID, d.Name)
	if err != nil {
		return fmt.Errorf("failed to save department: %w", err)
	}
	return nil
}

func (s *Store) GetDepartment(ctx context.Context, id string) (workload.Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var d workload.Department
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM departments WHERE id = ?`, id).
		Scan(&d.ID, &d.Name)
	if err == sql.ErrNoRows {
		return d, &allocation.NotFoundError{Kind: "department", ID: id}
	}
	if err != nil {
		return d, fmt.Errorf("failed to get department: %w", err)
	}
	return d, nil
}

func (s *Store) ListDepartments(ctx context.Context) ([]workload.Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM departments ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query departments: %w", err)
	}
	defer rows.Close()

	var departments []workload.Department
	for rows.Next() {
		var d workload.Department
		if err := rows.Scan(&d.ID, &d.Name); err != nil {
			return nil, fmt.Errorf("failed to scan department: %w", err)
		}
		departments = append(departments, d)
	}
	return departments, rows.Err()
}

// =============================================================================
// ROLES (workload.RoleStore)
// =============================================================================

func (s *Store) SaveRole(ctx context.Context, r workload.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var templateID any
	if r.TemplateID != nil {
		templateID = string(*r.TemplateID)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO roles (id, name, department_id, template_id) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			department_id = excluded.department_id,
			template_id = excluded.template_id
	`, r.ID, r.Name, r.DepartmentID, templateID)
	if err != nil {
		return fmt.Errorf("failed to save role: %w", err)
	}
	return nil
}

func (s *Store) GetRole(ctx context.Context, id allocation.RoleID) (workload.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, department_id, template_id FROM roles WHERE id = ?`, id)
	r, err := scanRole(row)
	if err == sql.ErrNoRows {
		return r, &allocation.NotFoundError{Kind: "role", ID: string(id), Err: allocation.ErrRoleNotFound}
	}
	return r, err
}

func (s *Store) ListRoles(ctx context.Context) ([]workload.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, department_id, template_id FROM roles ORDER BY department_id ASC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}
	defer rows.Close()

	var roles []workload.Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

func scanRole(row rowScanner) (workload.Role, error) {
	var (
		r          workload.Role
		templateID sql.NullString
	)
	if err := row.Scan(&r.ID, &r.Name, &r.DepartmentID, &templateID); err != nil {
		return r, err
	}
	if templateID.Valid && templateID.String != "" {
		id := allocation.TemplateID(templateID.String)
		r.TemplateID = &id
	}
	return r, nil
}

// =============================================================================
// PEOPLE (workload.PersonStore)
// =============================================================================

func (s *Store) SavePerson(ctx context.Context, p workload.Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO people (id, name, department_id, role_id, weekly_capacity)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			department_id = excluded.department_id,
			role_id = excluded.role_id,
			weekly_capacity = excluded.weekly_capacity
	`, p.ID, p.Name, p.DepartmentID, p.RoleID, p.WeeklyCapacityHours.String())
	if err != nil {
		return fmt.Errorf("failed to save person: %w", err)
	}
	return nil
}

func (s *Store) GetPerson(ctx context.Context, id string) (workload.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, department_id, role_id, weekly_capacity FROM people WHERE id = ?`, id)
	p, err := scanPerson(row)
	if err == sql.ErrNoRows {
		return p, &allocation.NotFoundError{Kind: "person", ID: id}
	}
	return p, err
}

func (s *Store) ListPeople(ctx context.Context) ([]workload.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, department_id, role_id, weekly_capacity FROM people ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query people: %w", err)
	}
	defer rows.Close()

	var people []workload.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, err
		}
		people = append(people, p)
	}
	return people, rows.Err()
}

func (s *Store) DeletePerson(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM people WHERE id = ?`, id)
	return err
}

func scanPerson(row rowScanner) (workload.Person, error) {
	var (
		p        workload.Person
		capacity string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.DepartmentID, &p.RoleID, &capacity); err != nil {
		return p, err
	}
	c, err := decimal.NewFromString(capacity)
	if err != nil {
		c = decimal.Zero
	}
	p.WeeklyCapacityHours = c
	return p, nil
}

// =============================================================================
// PROJECTS (workload.ProjectStore)
// =============================================================================

func (s *Store) SaveProject(ctx context.Context, p workload.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, client, status) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			client = excluded.client,
			status = excluded.status
	`, p.ID, p.Name, p.Client, p.Status)
	if err != nil {
		return fmt.Errorf("failed to save project: %w", err)
	}
	return nil
}

func (s *Store) GetProject(ctx context.Context, id string) (workload.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		p      workload.Project
		client sql.NullString
		status sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, client, status FROM projects WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &client, &status)
	if err == sql.ErrNoRows {
		return p, &allocation.NotFoundError{Kind: "project", ID: id}
	}
	if err != nil {
		return p, fmt.Errorf("failed to get project: %w", err)
	}
	p.Client = client.String
	p.Status = status.String
	return p, nil
}

func (s *Store) ListProjects(ctx context.Context) ([]workload.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, client, status FROM projects ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	var projects []workload.Project
	for rows.Next() {
		var (
			p      workload.Project
			client sql.NullString
			status sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Name, &client, &status); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		p.Client = client.String
		p.Status = status.String
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (s *Store) DeleteProject(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	return err
}

// =============================================================================
// DELIVERABLES (workload.DeliverableStore)
// =============================================================================

func (s *Store) SaveDeliverable(ctx context.Context, d workload.Deliverable) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var percentage, dueDate any
	if d.Percentage != nil {
		percentage = d.Percentage.String()
	}
	if d.Date != nil {
		dueDate = d.Date.UTC().Format("2006-01-02")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deliverables (id, project_id, percentage, description, due_date, notes, is_completed, phase_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			project_id = excluded.project_id,
			percentage = excluded.percentage,
			description = excluded.description,
			due_date = excluded.due_date,
			notes = excluded.notes,
			is_completed = excluded.is_completed,
			phase_key = excluded.phase_key
	`, d.ID, d.ProjectID, percentage, d.Description, dueDate, d.Notes, d.IsCompleted, d.PhaseKey)
	if err != nil {
		return fmt.Errorf("failed to save deliverable: %w", err)
	}
	return nil
}

func (s *Store) GetDeliverable(ctx context.Context, id string) (workload.Deliverable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, percentage, description, due_date, notes, is_completed, phase_key
		FROM deliverables WHERE id = ?`, id)
	d, err := scanDeliverable(row)
	if err == sql.ErrNoRows {
		return d, &allocation.NotFoundError{Kind: "deliverable", ID: id}
	}
	return d, err
}

func (s *Store) ListDeliverables(ctx context.Context, projectID string) ([]workload.Deliverable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, percentage, description, due_date, notes, is_completed, phase_key
		FROM deliverables WHERE project_id = ? ORDER BY due_date ASC, id ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query deliverables: %w", err)
	}
	defer rows.Close()

	var deliverables []workload.Deliverable
	for rows.Next() {
		d, err := scanDeliverable(rows)
		if err != nil {
			return nil, err
		}
		deliverables = append(deliverables, d)
	}
	return deliverables, rows.Err()
}

func (s *Store) DeleteDeliverable(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM deliverables WHERE id = ?`, id)
	return err
}

func scanDeliverable(row rowScanner) (workload.Deliverable, error) {
	var (
		d           workload.Deliverable
		percentage  sql.NullString
		description sql.NullString
		dueDate     sql.NullString
		notes       sql.NullString
	)
	if err := row.Scan(&d.ID, &d.ProjectID, &percentage, &description, &dueDate, &notes, &d.IsCompleted, &d.PhaseKey); err != nil {
		return d, err
	}
	d.Description = description.String
	d.Notes = notes.String
	if percentage.Valid {
		if pct, err := decimal.NewFromString(percentage.String); err == nil {
			d.Percentage = &pct
		}
	}
	if dueDate.Valid && dueDate.String != "" {
		if t, err := time.Parse("2006-01-02", dueDate.String); err == nil {
			d.Date = &t
		}
	}
	return d, nil
}

// =============================================================================
// ASSIGNMENTS (workload.AssignmentStore)
// =============================================================================

func (s *Store) SaveAssignment(ctx context.Context, a workload.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.saveAssignmentTx(ctx, s.db, a)
}

func (s *Store) saveAssignmentTx(ctx context.Context, db interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}, a workload.Assignment) error {
	var roleID any
	if a.RoleOnProjectID != nil {
		roleID = string(*a.RoleOnProjectID)
	}

	query := `
		INSERT INTO assignments (id, person_id, project_id, role_on_project_id, weekly_hours_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			person_id = excluded.person_id,
			project_id = excluded.project_id,
			role_on_project_id = excluded.role_on_project_id,
			weekly_hours_json = excluded.weekly_hours_json,
			updated_at = excluded.updated_at
	`
	if _, err := db.ExecContext(ctx, query,
		a.ID, a.PersonID, a.ProjectID, roleID, marshalHours(a.WeeklyHours), nowRFC3339(),
	); err != nil {
		return fmt.Errorf("failed to save assignment %s: %w", a.ID, err)
	}
	return nil
}

func (s *Store) GetAssignment(ctx context.Context, id string) (workload.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, person_id, project_id, role_on_project_id, weekly_hours_json
		FROM assignments WHERE id = ?`, id)
	a, err := scanAssignment(row)
	if err == sql.ErrNoRows {
		return a, &allocation.NotFoundError{Kind: "assignment", ID: id}
	}
	return a, err
}

func (s *Store) ListByProject(ctx context.Context, projectID string) ([]workload.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, person_id, project_id, role_on_project_id, weekly_hours_json
		FROM assignments WHERE project_id = ? ORDER BY id ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	var assignments []workload.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// SaveAll persists a batch of assignments atomically. Either every
// assignment in the batch commits or none do - the reallocation engine's
// all-or-nothing apply depends on this.
func (s *Store) SaveAll(ctx context.Context, assignments []workload.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, a := range assignments {
		if err := s.saveAssignmentTx(ctx, tx, a); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) DeleteAssignment(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM assignments WHERE id = ?`, id)
	return err
}

func scanAssignment(row rowScanner) (workload.Assignment, error) {
	var (
		a         workload.Assignment
		roleID    sql.NullString
		hoursJSON string
	)
	if err := row.Scan(&a.ID, &a.PersonID, &a.ProjectID, &roleID, &hoursJSON); err != nil {
		return a, err
	}
	if roleID.Valid && roleID.String != "" {
		id := allocation.RoleID(roleID.String)
		a.RoleOnProjectID = &id
	}
	a.WeeklyHours = unmarshalHours(hoursJSON)
	return a, nil
}

// =============================================================================
// PHASES (workload.PhaseStore)
// =============================================================================

func (s *Store) ListPhases(ctx context.Context) ([]workload.Phase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT value, label FROM phases ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query phases: %w", err)
	}
	defer rows.Close()

	var phases []workload.Phase
	for rows.Next() {
		var p workload.Phase
		if err := rows.Scan(&p.Value, &p.Label); err != nil {
			return nil, fmt.Errorf("failed to scan phase: %w", err)
		}
		phases = append(phases, p)
	}
	return phases, rows.Err()
}

func (s *Store) SavePhases(ctx context.Context, phases []workload.Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM phases`); err != nil {
		return fmt.Errorf("failed to clear phases: %w", err)
	}
	for i, p := range phases {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO phases (value, label, position) VALUES (?, ?, ?)`,
			p.Value, p.Label, i,
		); err != nil {
			return fmt.Errorf("failed to save phase %s: %w", p.Value, err)
		}
	}
	return tx.Commit()
}

// =============================================================================
// REALLOCATION RUNS (workload.RunStore)
// =============================================================================

func (s *Store) SaveRun(ctx context.Context, run workload.ReallocationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reallocation_runs
		(id, deliverable_id, project_id, delta_weeks, assignments_changed, touched_weeks, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.DeliverableID, run.ProjectID, run.DeltaWeeks, run.AssignmentsChanged,
		run.TouchedWeeks,
		run.StartedAt.UTC().Format(time.RFC3339),
		run.CompletedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save reallocation run: %w", err)
	}
	return nil
}

func (s *Store) ListRuns(ctx context.Context, deliverableID string, limit int) ([]workload.ReallocationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, deliverable_id, project_id, delta_weeks, assignments_changed, touched_weeks, started_at, completed_at
		FROM reallocation_runs
	`
	args := []any{}
	if deliverableID != "" {
		query += ` WHERE deliverable_id = ?`
		args = append(args, deliverableID)
	}
	query += ` ORDER BY completed_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reallocation runs: %w", err)
	}
	defer rows.Close()

	var runs []workload.ReallocationRun
	for rows.Next() {
		var (
			run                  workload.ReallocationRun
			startedAt, completed string
		)
		if err := rows.Scan(&run.ID, &run.DeliverableID, &run.ProjectID, &run.DeltaWeeks,
			&run.AssignmentsChanged, &run.TouchedWeeks, &startedAt, &completed); err != nil {
			return nil, fmt.Errorf("failed to scan reallocation run: %w", err)
		}
		run.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		run.CompletedAt, _ = time.Parse(time.RFC3339, completed)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *Store) PruneRuns(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM reallocation_runs WHERE completed_at < ?`,
		before.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to prune reallocation runs: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
