package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sbgisen/resource-broker/pkg/api"
	"github.com/sbgisen/resource-broker/pkg/clock"
	"github.com/sbgisen/resource-broker/pkg/engine"
	"github.com/sbgisen/resource-broker/pkg/resource"
)

func newTestRouter(t *testing.T) (http.Handler, *clock.Virtual) {
	t.Helper()
	store, err := resource.OpenSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	err = store.Seed(t.Context(), resource.Definition{
		BldgID: "bldg1", ResourceID: "dock-1", ResourceType: resource.TypeAllowOne,
		MaxTimeoutMs: 10000, DefaultTimeoutMs: 5000,
	})
	require.NoError(t, err)

	clk := clock.NewVirtual(1_000_000)
	eng := engine.New(store, clk, nil)
	rt, err := api.NewRouter(eng, clk, nil, nil)
	require.NoError(t, err)
	return rt.Handler(nil), clk
}

func postJSON(t *testing.T, h http.Handler, path string, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandleRegistration_Success(t *testing.T) {
	h, clk := newTestRouter(t)
	w := postJSON(t, h, "/api/registration", map[string]any{
		"api": "Registration", "bldg_id": "bldg1", "resource_id": "dock-1",
		"robot_id": "robot-1", "timeout": 3000, "request_id": "req-1", "timestamp": clk.Now(),
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "RegistrationResult", resp["api"])
	require.EqualValues(t, engine.ResultSuccess, resp["result"])
}

func TestHandleRegistration_AlreadyLeased(t *testing.T) {
	h, clk := newTestRouter(t)
	body := map[string]any{
		"api": "Registration", "bldg_id": "bldg1", "resource_id": "dock-1",
		"robot_id": "robot-1", "timeout": 3000, "request_id": "req-1", "timestamp": clk.Now(),
	}
	w := postJSON(t, h, "/api/registration", body)
	require.Equal(t, http.StatusOK, w.Code)

	body["robot_id"] = "robot-2"
	body["request_id"] = "req-2"
	w = postJSON(t, h, "/api/registration", body)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.EqualValues(t, engine.ResultFailure, resp["result"])
}

func TestHandleRegistration_BadDiscriminator(t *testing.T) {
	h, clk := newTestRouter(t)
	w := postJSON(t, h, "/api/registration", map[string]any{
		"api": "NotRegistration", "bldg_id": "bldg1", "resource_id": "dock-1",
		"robot_id": "robot-1", "request_id": "req-1", "timestamp": clk.Now(),
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.EqualValues(t, engine.ResultOthers, resp["result"])
	require.Equal(t, "req-1", resp["request_id"])
}

func TestHandleRegistration_MissingRequiredField(t *testing.T) {
	h, _ := newTestRouter(t)
	w := postJSON(t, h, "/api/registration", map[string]any{
		"api": "Registration", "bldg_id": "bldg1", "request_id": "req-1",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleRelease_WrongHolder(t *testing.T) {
	h, clk := newTestRouter(t)
	postJSON(t, h, "/api/registration", map[string]any{
		"api": "Registration", "bldg_id": "bldg1", "resource_id": "dock-1",
		"robot_id": "robot-1", "timeout": 3000, "request_id": "req-1", "timestamp": clk.Now(),
	})

	w := postJSON(t, h, "/api/release", map[string]any{
		"api": "Release", "bldg_id": "bldg1", "resource_id": "dock-1",
		"robot_id": "robot-2", "request_id": "req-2",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.EqualValues(t, engine.ResultFailure, resp["result"])
}

func TestHandleResourceStatus_Available(t *testing.T) {
	h, _ := newTestRouter(t)
	w := postJSON(t, h, "/api/request_resource_status", map[string]any{
		"api": "RequestResourceStatus", "bldg_id": "bldg1", "resource_id": "dock-1", "request_id": "req-1",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.EqualValues(t, engine.ResourceStateAvailable, resp["resource_state"])
}

func TestHandleRobotStatus_CancelReleases(t *testing.T) {
	h, clk := newTestRouter(t)
	postJSON(t, h, "/api/registration", map[string]any{
		"api": "Registration", "bldg_id": "bldg1", "resource_id": "dock-1",
		"robot_id": "robot-1", "timeout": 3000, "request_id": "req-1", "timestamp": clk.Now(),
	})

	w := postJSON(t, h, "/api/robot_status", map[string]any{
		"api": "RobotStatus", "robot_id": "robot-1", "resource_id": "dock-1",
		"state": int(engine.RobotStateCancel), "request_id": "req-2",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.EqualValues(t, engine.ResultSuccess, resp["result"])

	status := postJSON(t, h, "/api/request_resource_status", map[string]any{
		"api": "RequestResourceStatus", "bldg_id": "bldg1", "resource_id": "dock-1", "request_id": "req-3",
	})
	var statusResp map[string]any
	require.NoError(t, json.Unmarshal(status.Body.Bytes(), &statusResp))
	require.EqualValues(t, engine.ResourceStateAvailable, statusResp["resource_state"])
}

func TestHandleAllData(t *testing.T) {
	h, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/all_data", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var entries []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	require.Equal(t, "dock-1", entries[0]["resource_id"])
}
