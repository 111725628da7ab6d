package workload_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tschnepf/workload-tracker-sub005/allocation"
	"github.com/tschnepf/workload-tracker-sub005/store/memory"
	"github.com/tschnepf/workload-tracker-sub005/workload"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestTemplateService(t *testing.T) (*workload.TemplateService, *memory.Memory) {
	store := memory.New()
	ts := workload.NewTemplateService(store, store, store, store)

	ctx := context.Background()
	require.NoError(t, store.SaveDepartment(ctx, workload.Department{ID: "dept-design", Name: "Design"}))
	require.NoError(t, store.SaveRole(ctx, workload.Role{ID: "role-arch", Name: "Architect", DepartmentID: "dept-design"}))
	require.NoError(t, store.SaveRole(ctx, workload.Role{ID: "role-eng", Name: "Engineer", DepartmentID: "dept-design"}))

	return ts, store
}

func curve(m map[int]float64) allocation.PercentByWeek {
	return allocation.PercentByWeekFromMap(m, allocation.DefaultLookbackWeeks)
}

// =============================================================================
// SETTINGS TESTS
// =============================================================================

func TestListSettings_ZeroFillsEveryRole(t *testing.T) {
	// GIVEN: Two roles, no explicit curves saved
	// WHEN: Listing global settings for a phase
	// THEN: Both roles appear, each with an all-zero active curve

	ts, _ := newTestTemplateService(t)

	rows, err := ts.ListSettings(context.Background(), allocation.Global(), "sd")
	require.NoError(t, err)

	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.True(t, row.PercentByWeek.IsZero(), "role %s", row.RoleID)
		assert.True(t, row.IsActive)
	}
}

func TestListSettings_MergesExplicitRowsWithRoleNames(t *testing.T) {
	ts, _ := newTestTemplateService(t)
	ctx := context.Background()

	_, err := ts.UpdateSettings(ctx, allocation.Global(), "sd", []allocation.RoleSetting{
		{RoleID: "role-arch", PercentByWeek: curve(map[int]float64{0: 100}), IsActive: true},
	})
	require.NoError(t, err)

	rows, err := ts.ListSettings(ctx, allocation.Global(), "sd")
	require.NoError(t, err)

	byRole := make(map[allocation.RoleID]allocation.RoleSetting)
	for _, row := range rows {
		byRole[row.RoleID] = row
	}
	arch := byRole["role-arch"]
	assert.Equal(t, "Architect", arch.RoleName)
	assert.Equal(t, "Design", arch.DepartmentName)
	assert.True(t, arch.PercentByWeek.At(0).Equal(decimal.NewFromInt(100)))
	// The role without an override stays zero
	assert.True(t, byRole["role-eng"].PercentByWeek.IsZero())
}

func TestListSettings_UnknownPhaseRejected(t *testing.T) {
	ts, _ := newTestTemplateService(t)

	_, err := ts.ListSettings(context.Background(), allocation.Global(), "bogus")

	assert.ErrorIs(t, err, allocation.ErrUnknownPhase)
	assert.True(t, allocation.IsClientError(err))
}

func TestUpdateSettings_ClampsOutOfRangePercents(t *testing.T) {
	// GIVEN: A submitted curve with 150% and -20%
	// WHEN: Saving
	// THEN: Values are clamped to [0,100], not rejected

	ts, _ := newTestTemplateService(t)

	rows, err := ts.UpdateSettings(context.Background(), allocation.Global(), "sd", []allocation.RoleSetting{
		{RoleID: "role-arch", PercentByWeek: curve(map[int]float64{0: 150, 1: -20}), IsActive: true},
	})
	require.NoError(t, err)

	for _, row := range rows {
		if row.RoleID != "role-arch" {
			continue
		}
		assert.True(t, row.PercentByWeek.At(0).Equal(decimal.NewFromInt(100)))
		assert.True(t, row.PercentByWeek.At(1).IsZero())
	}
}

func TestUpdateSettings_UnknownRoleRejected(t *testing.T) {
	ts, _ := newTestTemplateService(t)

	_, err := ts.UpdateSettings(context.Background(), allocation.Global(), "sd", []allocation.RoleSetting{
		{RoleID: "role-ghost", PercentByWeek: curve(map[int]float64{0: 50}), IsActive: true},
	})

	assert.ErrorIs(t, err, allocation.ErrRoleNotFound)
}

func TestUpdateSettings_TemplateAndGlobalAreIsolated(t *testing.T) {
	// GIVEN: Distinct curves under global and under a template
	// WHEN: Reading each back
	// THEN: Neither leaks into the other

	ts, _ := newTestTemplateService(t)
	ctx := context.Background()

	tmpl, err := ts.CreateTemplate(ctx, "Ramp", "", nil)
	require.NoError(t, err)

	_, err = ts.UpdateSettings(ctx, allocation.Global(), "sd", []allocation.RoleSetting{
		{RoleID: "role-arch", PercentByWeek: curve(map[int]float64{0: 100}), IsActive: true},
	})
	require.NoError(t, err)
	_, err = ts.UpdateSettings(ctx, allocation.ByID(tmpl.ID), "sd", []allocation.RoleSetting{
		{RoleID: "role-arch", PercentByWeek: curve(map[int]float64{0: 60}), IsActive: true},
	})
	require.NoError(t, err)

	globalRows, err := ts.ListSettings(ctx, allocation.Global(), "sd")
	require.NoError(t, err)
	tmplRows, err := ts.ListSettings(ctx, allocation.ByID(tmpl.ID), "sd")
	require.NoError(t, err)

	for _, row := range globalRows {
		if row.RoleID == "role-arch" {
			assert.True(t, row.PercentByWeek.At(0).Equal(decimal.NewFromInt(100)))
		}
	}
	for _, row := range tmplRows {
		if row.RoleID == "role-arch" {
			assert.True(t, row.PercentByWeek.At(0).Equal(decimal.NewFromInt(60)))
		}
	}
}

// =============================================================================
// EFFECTIVE TEMPLATE RESOLUTION TESTS
// =============================================================================

func TestResolveEffectiveTemplate_RoleWithoutTemplateIsGlobal(t *testing.T) {
	ts, _ := newTestTemplateService(t)

	ref, err := ts.ResolveEffectiveTemplate(context.Background(), "role-arch", "sd")
	require.NoError(t, err)

	assert.True(t, ref.IsGlobal())
}

func TestResolveEffectiveTemplate_PhaseOptIn(t *testing.T) {
	// GIVEN: Role assigned a template scoped to sd/dd
	// WHEN: Resolving for sd and for ifc
	// THEN: sd uses the template, ifc falls back to global

	ts, store := newTestTemplateService(t)
	ctx := context.Background()

	tmpl, err := ts.CreateTemplate(ctx, "Design Ramp", "", []allocation.PhaseKey{"sd", "dd"})
	require.NoError(t, err)

	role, err := store.GetRole(ctx, "role-arch")
	require.NoError(t, err)
	role.TemplateID = &tmpl.ID
	require.NoError(t, store.SaveRole(ctx, role))

	inPhase, err := ts.ResolveEffectiveTemplate(ctx, "role-arch", "sd")
	require.NoError(t, err)
	id, ok := inPhase.ID()
	require.True(t, ok)
	assert.Equal(t, tmpl.ID, id)

	outOfPhase, err := ts.ResolveEffectiveTemplate(ctx, "role-arch", "ifc")
	require.NoError(t, err)
	assert.True(t, outOfPhase.IsGlobal())
}

func TestResolveEffectiveTemplate_DanglingRefFallsBackToGlobal(t *testing.T) {
	// A role pointing at a deleted template degrades to global, not an error
	ts, store := newTestTemplateService(t)
	ctx := context.Background()

	ghost := allocation.TemplateID("tmpl-deleted")
	role, err := store.GetRole(ctx, "role-arch")
	require.NoError(t, err)
	role.TemplateID = &ghost
	require.NoError(t, store.SaveRole(ctx, role))

	ref, err := ts.ResolveEffectiveTemplate(ctx, "role-arch", "sd")
	require.NoError(t, err)
	assert.True(t, ref.IsGlobal())
}

// =============================================================================
// TEMPLATE LIFECYCLE TESTS
// =============================================================================

func TestCreateTemplate_NameRequired(t *testing.T) {
	ts, _ := newTestTemplateService(t)

	_, err := ts.CreateTemplate(context.Background(), "   ", "", nil)

	assert.ErrorIs(t, err, allocation.ErrNameRequired)
	assert.True(t, allocation.IsClientError(err))
}

func TestCreateTemplate_UnknownPhaseKeyRejected(t *testing.T) {
	ts, _ := newTestTemplateService(t)

	_, err := ts.CreateTemplate(context.Background(), "Ramp", "", []allocation.PhaseKey{"bogus"})

	assert.ErrorIs(t, err, allocation.ErrUnknownPhase)
}

func TestRenameTemplate_DuplicateNamesAllowed(t *testing.T) {
	ts, _ := newTestTemplateService(t)
	ctx := context.Background()

	_, err := ts.CreateTemplate(ctx, "Ramp", "", nil)
	require.NoError(t, err)
	second, err := ts.CreateTemplate(ctx, "Other", "", nil)
	require.NoError(t, err)

	renamed, err := ts.RenameTemplate(ctx, second.ID, "Ramp")
	require.NoError(t, err)
	assert.Equal(t, "Ramp", renamed.Name)
}

func TestSetPhaseKeys_EmptySetRejectedStateUnchanged(t *testing.T) {
	// GIVEN: A template scoped to sd
	// WHEN: Submitting an empty phase set
	// THEN: Rejected, and the stored scope is untouched

	ts, _ := newTestTemplateService(t)
	ctx := context.Background()

	tmpl, err := ts.CreateTemplate(ctx, "Ramp", "", []allocation.PhaseKey{"sd"})
	require.NoError(t, err)

	_, err = ts.SetPhaseKeys(ctx, tmpl.ID, []allocation.PhaseKey{})
	assert.ErrorIs(t, err, allocation.ErrEmptyPhaseSet)

	stored, err := ts.GetTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, []allocation.PhaseKey{"sd"}, stored.PhaseKeys)
}

func TestDeleteTemplate_GlobalIsImmutable(t *testing.T) {
	ts, _ := newTestTemplateService(t)

	err := ts.DeleteTemplate(context.Background(), allocation.Global())

	assert.ErrorIs(t, err, allocation.ErrGlobalTemplateImmutable)
}

func TestDeleteTemplate_RemovesTemplate(t *testing.T) {
	ts, _ := newTestTemplateService(t)
	ctx := context.Background()

	tmpl, err := ts.CreateTemplate(ctx, "Ramp", "", nil)
	require.NoError(t, err)

	require.NoError(t, ts.DeleteTemplate(ctx, allocation.ByID(tmpl.ID)))

	_, err = ts.GetTemplate(ctx, tmpl.ID)
	assert.ErrorIs(t, err, allocation.ErrTemplateNotFound)
	assert.True(t, allocation.IsNotFound(err))
}
