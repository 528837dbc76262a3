package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/consult-ledger/billing"
)

func TestScenario_AllScenariosLoadWithoutError(t *testing.T) {
	ts := setupTestServer(t)

	for _, s := range scenarios {
		t.Run(s.ID, func(t *testing.T) {
			var body map[string]any
			code := ts.do(http.MethodPost, "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: s.ID}, &body)

			require.Equal(t, http.StatusOK, code, body)
			assert.Equal(t, "loaded", body["status"])

			var current map[string]ScenarioDTO
			require.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/scenarios/current", "", nil, &current))
			assert.Equal(t, s.ID, current["scenario"].ID)
		})
	}
}

func TestScenario_Unknown_BadRequest(t *testing.T) {
	ts := setupTestServer(t)

	code := ts.do(http.MethodPost, "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: "nope"}, nil)

	assert.Equal(t, http.StatusBadRequest, code)
}

func TestScenario_LoadReplacesPreviousData(t *testing.T) {
	// GIVEN: The offboarding scenario, then the paid-booking one
	ts := setupTestServer(t)
	ts.seed("lawyer-offboarding")
	ts.seed("paid-booking")

	// THEN: None of Marc's bookings survive
	marc := billing.UserID("lawyer-marc")
	appts, err := ts.store.ListAppointments(context.Background(), billing.AppointmentFilter{LawyerID: &marc})
	require.NoError(t, err)
	assert.Empty(t, appts)

	views, err := ts.store.ListInvoiceViews(context.Background(), billing.InvoiceFilter{})
	require.NoError(t, err)
	assert.Len(t, views, 3)
}

func TestScenario_Reset(t *testing.T) {
	ts := setupTestServer(t)
	ts.seed("paid-booking")

	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/api/scenarios/reset", "", nil, nil))

	u, err := ts.store.GetUser(context.Background(), "admin")
	require.NoError(t, err)
	assert.Nil(t, u)

	var current map[string]any
	require.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/scenarios/current", "", nil, &current))
	assert.Nil(t, current["scenario"])
}

func TestScenario_RoutesDisabled_NotFound(t *testing.T) {
	// GIVEN: A router built without scenario routes, over seeded data
	ts := setupTestServer(t)
	ts.seed("paid-booking")
	router := NewRouter(ts.h, RouterOptions{})

	// WHEN: Anonymous callers try to list, reset or load
	for _, rt := range []struct{ method, path string }{
		{http.MethodGet, "/api/scenarios"},
		{http.MethodGet, "/api/scenarios/current"},
		{http.MethodPost, "/api/scenarios/load"},
		{http.MethodPost, "/api/scenarios/reset"},
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(rt.method, rt.path, nil))

		// THEN: The routes do not exist
		assert.Equal(t, http.StatusNotFound, rec.Code, rt.path)
	}

	// AND: The data is untouched
	u, err := ts.store.GetUser(context.Background(), "admin")
	require.NoError(t, err)
	assert.NotNil(t, u)
}
