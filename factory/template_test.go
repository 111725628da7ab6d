package factory_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tschnepf/workload-tracker-sub005/allocation"
	"github.com/tschnepf/workload-tracker-sub005/factory"
)

// =============================================================================
// TEMPLATE PARSING TESTS
// =============================================================================

func TestParseTemplate_Basic(t *testing.T) {
	f := factory.NewTemplateFactory()

	tmpl, settings, err := f.ParseTemplate(`{
		"name": "Front-loaded delivery",
		"description": "Ramps hours into the due week",
		"phase_keys": ["sd", "dd"],
		"settings": {
			"sd": [
				{"role_id": "role-pm", "percent_by_week": {"0": 100, "1": 50}},
				{"role_id": "role-eng", "percent_by_week": {"0": 80}, "is_active": false}
			]
		}
	}`)
	require.NoError(t, err)

	assert.Equal(t, "Front-loaded delivery", tmpl.Name)
	assert.Equal(t, []allocation.PhaseKey{"sd", "dd"}, tmpl.PhaseKeys)
	assert.Empty(t, tmpl.ID, "caller assigns the id")

	rows := settings["sd"]
	require.Len(t, rows, 2)
	assert.Equal(t, allocation.RoleID("role-pm"), rows[0].RoleID)
	assert.True(t, rows[0].PercentByWeek.At(0).Equal(decimal.NewFromInt(100)))
	assert.True(t, rows[0].PercentByWeek.At(1).Equal(decimal.NewFromInt(50)))
	assert.True(t, rows[0].IsActive, "is_active defaults to true")
	assert.False(t, rows[1].IsActive)
}

func TestParseTemplate_MissingNameRejected(t *testing.T) {
	f := factory.NewTemplateFactory()

	_, _, err := f.ParseTemplate(`{"name": "  ", "settings": {}}`)

	assert.ErrorIs(t, err, allocation.ErrNameRequired)
}

func TestParseTemplate_ClampsOutOfRangePercents(t *testing.T) {
	f := factory.NewTemplateFactory()

	_, settings, err := f.ParseTemplate(`{
		"name": "Hot",
		"settings": {"sd": [{"role_id": "role-pm", "percent_by_week": {"0": 250, "1": -5}}]}
	}`)
	require.NoError(t, err)

	row := settings["sd"][0]
	assert.True(t, row.PercentByWeek.At(0).Equal(decimal.NewFromInt(100)))
	assert.True(t, row.PercentByWeek.At(1).IsZero())
}

func TestParseTemplate_NonIntegerOffsetRejected(t *testing.T) {
	f := factory.NewTemplateFactory()

	_, _, err := f.ParseTemplate(`{
		"name": "Bad",
		"settings": {"sd": [{"role_id": "role-pm", "percent_by_week": {"soon": 50}}]}
	}`)

	assert.Error(t, err)
	assert.True(t, allocation.IsClientError(err))
}

func TestParseTemplate_MissingRoleIDRejected(t *testing.T) {
	f := factory.NewTemplateFactory()

	_, _, err := f.ParseTemplate(`{
		"name": "Bad",
		"settings": {"sd": [{"percent_by_week": {"0": 50}}]}
	}`)

	assert.Error(t, err)
}

func TestParseTemplate_InvalidJSONRejected(t *testing.T) {
	f := factory.NewTemplateFactory()

	_, _, err := f.ParseTemplate(`{not json`)

	assert.Error(t, err)
}

// =============================================================================
// PRESET TESTS
// =============================================================================

func TestGlobalDefaultsPreset_ParsesForEveryPhaseAndRole(t *testing.T) {
	f := factory.NewTemplateFactory()

	data := factory.GlobalDefaultsJSON([]string{"sd", "dd"}, []string{"role-pm", "role-eng"})
	settings, err := f.ParseGlobalDefaults(data)
	require.NoError(t, err)

	require.Len(t, settings, 2)
	for _, phase := range []allocation.PhaseKey{"sd", "dd"} {
		rows := settings[phase]
		require.Len(t, rows, 2, "phase %s", phase)
		for _, row := range rows {
			assert.True(t, row.PercentByWeek.At(0).Equal(decimal.NewFromInt(100)))
			assert.True(t, row.PercentByWeek.At(2).Equal(decimal.NewFromInt(25)))
			assert.True(t, row.IsActive)
		}
	}
}

func TestFrontLoadedRampPreset_ScopedToGivenPhases(t *testing.T) {
	f := factory.NewTemplateFactory()

	data := factory.FrontLoadedRampJSON("Ramp", []string{"sd"}, []string{"role-arch"})
	tmpl, settings, err := f.ParseTemplate(data)
	require.NoError(t, err)

	assert.Equal(t, "Ramp", tmpl.Name)
	assert.Equal(t, []allocation.PhaseKey{"sd"}, tmpl.PhaseKeys)
	row := settings["sd"][0]
	assert.True(t, row.PercentByWeek.At(3).Equal(decimal.NewFromInt(25)))
}
