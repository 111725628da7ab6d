/*
handlers_test.go - End-to-end tests for the HTTP API

Tests for:
- Deliverable date edits driving the reallocation engine
- Auto-hours settings round trips (percent and hours input modes)
- Template lifecycle over HTTP
- Scenario loading
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tschnepf/workload-tracker-sub005/allocation"
	"github.com/tschnepf/workload-tracker-sub005/store/sqlite"
	"github.com/tschnepf/workload-tracker-sub005/workload"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) (*httptest.Server, *Handler, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	handler := NewHandler(store)
	server := httptest.NewServer(NewRouter(handler))
	t.Cleanup(server.Close)

	return server, handler, store
}

// seedProject creates one project with an architect assignment carrying the
// auto allocation for a March 6 2026 due date under a 100%/50% curve.
func seedProject(t *testing.T, handler *Handler, store *sqlite.Store) {
	ctx := context.Background()

	require.NoError(t, store.SaveDepartment(ctx, workload.Department{ID: "dept-1", Name: "Design"}))
	require.NoError(t, store.SaveRole(ctx, workload.Role{ID: "role-arch", Name: "Architect", DepartmentID: "dept-1"}))
	require.NoError(t, store.SavePerson(ctx, workload.Person{
		ID: "person-1", Name: "Omar", DepartmentID: "dept-1",
		RoleID: "role-arch", WeeklyCapacityHours: decimal.NewFromInt(40),
	}))
	require.NoError(t, store.SaveProject(ctx, workload.Project{ID: "proj-1", Name: "Riverside", Status: "active"}))

	due := time.Date(2026, time.March, 6, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveDeliverable(ctx, workload.Deliverable{
		ID: "del-1", ProjectID: "proj-1", Description: "Schematic set",
		Date: &due, PhaseKey: "sd",
	}))

	_, err := handler.Templates.UpdateSettings(ctx, allocation.Global(), "sd", []allocation.RoleSetting{
		{
			RoleID:        "role-arch",
			PercentByWeek: allocation.PercentByWeekFromMap(map[int]float64{0: 100, 1: 50}, allocation.DefaultLookbackWeeks),
			IsActive:      true,
		},
	})
	require.NoError(t, err)

	role := allocation.RoleID("role-arch")
	require.NoError(t, store.SaveAssignment(ctx, workload.Assignment{
		ID: "asgn-1", PersonID: "person-1", ProjectID: "proj-1",
		RoleOnProjectID: &role,
		WeeklyHours: workload.WeeklyHours{
			"2026-03-02": decimal.NewFromInt(40),
			"2026-02-23": decimal.NewFromInt(20),
		},
	}))
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// =============================================================================
// DELIVERABLE UPDATE / REALLOCATION TESTS
// =============================================================================

func TestUpdateDeliverable_DateMoveTriggersReallocation(t *testing.T) {
	// GIVEN: A deliverable due March 6 with matching auto hours
	// WHEN: PUT moves the date one week later
	// THEN: The response reports the reallocation and the stored hours shift

	server, handler, store := newTestServer(t)
	seedProject(t, handler, store)

	resp := doJSON(t, http.MethodPut, server.URL+"/api/deliverables/del-1",
		map[string]any{"date": "2026-03-13"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[UpdateDeliverableResponse](t, resp)
	require.NotNil(t, body.Reallocation)
	assert.Equal(t, 1, body.Reallocation.AssignmentsChanged)
	assert.Equal(t, 1, body.Reallocation.DeltaWeeks)
	assert.Contains(t, body.Reallocation.TouchedWeekKeys, "2026-03-09")

	a, err := store.GetAssignment(context.Background(), "asgn-1")
	require.NoError(t, err)
	assert.True(t, a.WeeklyHours.Get("2026-03-09").Equal(decimal.NewFromInt(40)))
	assert.True(t, a.WeeklyHours.Get("2026-03-02").Equal(decimal.NewFromInt(20)))
	assert.True(t, a.WeeklyHours.Get("2026-02-23").IsZero())
}

func TestUpdateDeliverable_NonDateEditSkipsReallocation(t *testing.T) {
	server, handler, store := newTestServer(t)
	seedProject(t, handler, store)

	resp := doJSON(t, http.MethodPut, server.URL+"/api/deliverables/del-1",
		map[string]any{"description": "Schematic set rev B"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[UpdateDeliverableResponse](t, resp)
	assert.Nil(t, body.Reallocation)
	assert.Equal(t, "Schematic set rev B", body.Deliverable.Description)

	a, err := store.GetAssignment(context.Background(), "asgn-1")
	require.NoError(t, err)
	assert.True(t, a.WeeklyHours.Get("2026-03-02").Equal(decimal.NewFromInt(40)))
}

func TestUpdateDeliverable_DateMoveEmitsRefreshEventAndRun(t *testing.T) {
	server, handler, store := newTestServer(t)
	seedProject(t, handler, store)

	resp := doJSON(t, http.MethodPut, server.URL+"/api/deliverables/del-1",
		map[string]any{"date": "2026-03-13"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	eventsResp := doJSON(t, http.MethodGet, server.URL+"/api/events/recent", nil)
	require.Equal(t, http.StatusOK, eventsResp.StatusCode)
	events := decodeBody[[]RefreshEventDTO](t, eventsResp)
	require.Len(t, events, 1)
	assert.Equal(t, "deliverable_date_change", events[0].Reason)
	assert.Contains(t, events[0].TouchedWeekKeys, "2026-03-09")

	runsResp := doJSON(t, http.MethodGet, server.URL+"/api/reallocations?deliverable_id=del-1", nil)
	require.Equal(t, http.StatusOK, runsResp.StatusCode)
	runs := decodeBody[[]ReallocationRunDTO](t, runsResp)
	require.Len(t, runs, 1)
	assert.Equal(t, 1, runs[0].DeltaWeeks)
}

func TestUpdateDeliverable_ClearDateBacksOutHours(t *testing.T) {
	server, handler, store := newTestServer(t)
	seedProject(t, handler, store)

	resp := doJSON(t, http.MethodPut, server.URL+"/api/deliverables/del-1",
		map[string]any{"clear_date": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[UpdateDeliverableResponse](t, resp)
	assert.Nil(t, body.Deliverable.Date)
	require.NotNil(t, body.Reallocation)
	assert.Equal(t, 0, body.Reallocation.DeltaWeeks)

	a, err := store.GetAssignment(context.Background(), "asgn-1")
	require.NoError(t, err)
	assert.True(t, a.WeeklyHours.Total().IsZero())
}

func TestUpdateDeliverable_UnknownIDIs404(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPut, server.URL+"/api/deliverables/del-ghost",
		map[string]any{"date": "2026-03-13"})

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateDeliverable_BadDateFormatIs400(t *testing.T) {
	server, handler, store := newTestServer(t)
	seedProject(t, handler, store)

	resp := doJSON(t, http.MethodPut, server.URL+"/api/deliverables/del-1",
		map[string]any{"date": "13/03/2026"})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateDeliverable_ConcurrentDateMovesStayConsistent(t *testing.T) {
	// GIVEN: Two clients editing the same deliverable at the same time
	// WHEN: Both PUT different dates
	// THEN: Both succeed and the stored hours equal the window of whichever
	//   date was committed last - the original window is never backed out
	//   twice

	server, handler, store := newTestServer(t)
	seedProject(t, handler, store)

	dates := []string{"2026-03-13", "2026-03-20"}
	statuses := make([]int, len(dates))
	var wg sync.WaitGroup
	for i, date := range dates {
		wg.Add(1)
		go func(i int, date string) {
			defer wg.Done()
			body, err := json.Marshal(map[string]any{"date": date})
			if err != nil {
				return
			}
			req, err := http.NewRequest(http.MethodPut, server.URL+"/api/deliverables/del-1", bytes.NewReader(body))
			if err != nil {
				return
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return
			}
			resp.Body.Close()
			statuses[i] = resp.StatusCode
		}(i, date)
	}
	wg.Wait()
	for i, status := range statuses {
		assert.Equal(t, http.StatusOK, status, "request %d", i)
	}

	d, err := store.GetDeliverable(context.Background(), "del-1")
	require.NoError(t, err)
	require.NotNil(t, d.Date)

	a, err := store.GetAssignment(context.Background(), "asgn-1")
	require.NoError(t, err)
	due := allocation.WeekKeyOf(*d.Date)
	assert.True(t, a.WeeklyHours.Get(due).Equal(decimal.NewFromInt(40)))
	assert.True(t, a.WeeklyHours.Get(due.AddWeeks(-1)).Equal(decimal.NewFromInt(20)))
	assert.True(t, a.WeeklyHours.Total().Equal(decimal.NewFromInt(60)), "windows shift, never stack")
}

// =============================================================================
// SETTINGS ENDPOINT TESTS
// =============================================================================

func TestGetSettings_RequiresPhase(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, server.URL+"/api/autohours/settings", nil)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateSettings_PercentMode(t *testing.T) {
	server, handler, store := newTestServer(t)
	seedProject(t, handler, store)

	resp := doJSON(t, http.MethodPut, server.URL+"/api/autohours/settings?phase=dd",
		map[string]any{
			"rows": []map[string]any{
				{"roleId": "role-arch", "percentByWeek": map[string]float64{"0": 90, "1": 45}},
			},
		})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	rows := decodeBody[[]RoleSettingDTO](t, resp)
	require.Len(t, rows, 1)
	assert.Equal(t, "role-arch", rows[0].RoleID)
	assert.InDelta(t, 90, rows[0].PercentByWeek["0"], 0.001)
	assert.InDelta(t, 45, rows[0].PercentByWeek["1"], 0.001)
}

func TestUpdateSettings_HoursModeNormalizesToPercent(t *testing.T) {
	// GIVEN: Hours entered against a 40h full capacity
	// WHEN: Saving in hours mode
	// THEN: Stored and returned values are percent (20h of 40h = 50%)

	server, handler, store := newTestServer(t)
	seedProject(t, handler, store)

	resp := doJSON(t, http.MethodPut, server.URL+"/api/autohours/settings?phase=dd",
		map[string]any{
			"input_mode":          "hours",
			"full_capacity_hours": 40,
			"rows": []map[string]any{
				{"roleId": "role-arch", "hoursByWeek": map[string]float64{"0": 40, "1": 20}},
			},
		})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	rows := decodeBody[[]RoleSettingDTO](t, resp)
	require.Len(t, rows, 1)
	assert.InDelta(t, 100, rows[0].PercentByWeek["0"], 0.001)
	assert.InDelta(t, 50, rows[0].PercentByWeek["1"], 0.001)
}

func TestUpdateSettings_HoursModeWithoutCapacityIs400(t *testing.T) {
	server, handler, store := newTestServer(t)
	seedProject(t, handler, store)

	resp := doJSON(t, http.MethodPut, server.URL+"/api/autohours/settings?phase=dd",
		map[string]any{
			"input_mode": "hours",
			"rows": []map[string]any{
				{"roleId": "role-arch", "hoursByWeek": map[string]float64{"0": 40}},
			},
		})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// TEMPLATE ENDPOINT TESTS
// =============================================================================

func TestTemplateLifecycleOverHTTP(t *testing.T) {
	server, _, _ := newTestServer(t)

	// Create
	createResp := doJSON(t, http.MethodPost, server.URL+"/api/autohours/templates",
		map[string]any{"name": "Ramp", "phaseKeys": []string{"sd", "dd"}})
	require.Equal(t, http.StatusCreated, createResp.StatusCode)
	created := decodeBody[TemplateDTO](t, createResp)
	require.NotEmpty(t, created.ID)

	// Rename
	renameResp := doJSON(t, http.MethodPut, server.URL+"/api/autohours/templates/"+created.ID,
		map[string]any{"name": "Ramp v2"})
	require.Equal(t, http.StatusOK, renameResp.StatusCode)
	renamed := decodeBody[TemplateDTO](t, renameResp)
	assert.Equal(t, "Ramp v2", renamed.Name)

	// Empty phase set rejected
	phasesResp := doJSON(t, http.MethodPut, server.URL+"/api/autohours/templates/"+created.ID+"/phases",
		map[string]any{"phaseKeys": []string{}})
	assert.Equal(t, http.StatusBadRequest, phasesResp.StatusCode)

	// Delete
	deleteResp := doJSON(t, http.MethodDelete, server.URL+"/api/autohours/templates/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, deleteResp.StatusCode)

	getResp := doJSON(t, http.MethodGet, server.URL+"/api/autohours/templates/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, getResp.StatusCode)
}

func TestCreateTemplate_EmptyNameIs400(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, server.URL+"/api/autohours/templates",
		map[string]any{"name": "  "})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// SCENARIO TESTS
// =============================================================================

func TestLoadScenario_DateShiftDemo(t *testing.T) {
	server, _, store := newTestServer(t)

	resp := doJSON(t, http.MethodPost, server.URL+"/api/scenarios/load",
		map[string]any{"scenario_id": "date-shift-demo"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	people, err := store.ListPeople(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, people)

	assignments, err := store.ListByProject(context.Background(), "proj-riverside")
	require.NoError(t, err)
	require.NotEmpty(t, assignments)

	// The demo pre-fills auto hours so a date move is visible
	var total decimal.Decimal
	for _, a := range assignments {
		total = total.Add(a.WeeklyHours.Total())
	}
	assert.True(t, total.GreaterThan(decimal.Zero))

	currentResp := doJSON(t, http.MethodGet, server.URL+"/api/scenarios/current", nil)
	current := decodeBody[ScenarioDTO](t, currentResp)
	assert.Equal(t, "date-shift-demo", current.ID)
}

func TestLoadScenario_UnknownIDIs400(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, server.URL+"/api/scenarios/load",
		map[string]any{"scenario_id": "bogus"})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
