package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sbgisen/resource-broker/pkg/engine"
)

// maxBodyBytes bounds request bodies so a malformed or hostile client can't
// force the decoder to buffer unbounded memory.
const maxBodyBytes = 1 << 20 // 1 MiB

// decodeBody reads r's body (capped at maxBodyBytes) and returns it as a
// generic map for schema validation and best-effort request_id/resource_id
// recovery on failure (spec §6.4). ok is false if the body cannot be read or
// is not a JSON object.
func decodeBody(w http.ResponseWriter, r *http.Request) (raw map[string]any, ok bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, false
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, false
	}
	return raw, true
}

func stringField(raw map[string]any, key string) string {
	if raw == nil {
		return ""
	}
	if v, ok := raw[key].(string); ok {
		return v
	}
	return ""
}

func validate(schema *jsonschema.Schema, raw map[string]any) error {
	if raw == nil {
		return errors.New("empty or malformed body")
	}
	return schema.Validate(raw)
}

// handleRegistration serves POST /api/registration (spec §4.4.1, §6.1).
func (rt *Router) handleRegistration(w http.ResponseWriter, r *http.Request) {
	ts := rt.clock.Now()
	raw, ok := decodeBody(w, r)
	if !ok {
		writeValidationError(w, "RegistrationResult", "", "", ts)
		return
	}
	requestID, resourceID := stringField(raw, "request_id"), stringField(raw, "resource_id")

	if raw["api"] != "Registration" {
		writeValidationError(w, "RegistrationResult", requestID, resourceID, ts)
		return
	}
	if err := validate(rt.schemas.registration, raw); err != nil {
		writeValidationError(w, "RegistrationResult", requestID, resourceID, ts)
		return
	}

	var req registrationRequest
	if err := remarshal(raw, &req); err != nil {
		writeValidationError(w, "RegistrationResult", requestID, resourceID, ts)
		return
	}

	ctx, span := rt.tracer.StartSpan(r.Context(), "registration")
	defer span.End()

	resp := rt.engine.Registration(ctx, toRegistrationRequest(req))
	rt.tracer.RecordRegistration(ctx, resp.Result == engine.ResultSuccess)
	writeJSON(w, http.StatusOK, fromRegistrationResponse("RegistrationResult", rt.clock.Now(), resp))
}

// handleRelease serves POST /api/release (spec §4.4.2, §6.1).
func (rt *Router) handleRelease(w http.ResponseWriter, r *http.Request) {
	ts := rt.clock.Now()
	raw, ok := decodeBody(w, r)
	if !ok {
		writeValidationError(w, "ReleaseResult", "", "", ts)
		return
	}
	requestID, resourceID := stringField(raw, "request_id"), stringField(raw, "resource_id")

	if raw["api"] != "Release" {
		writeValidationError(w, "ReleaseResult", requestID, resourceID, ts)
		return
	}
	if err := validate(rt.schemas.release, raw); err != nil {
		writeValidationError(w, "ReleaseResult", requestID, resourceID, ts)
		return
	}

	var req releaseRequest
	if err := remarshal(raw, &req); err != nil {
		writeValidationError(w, "ReleaseResult", requestID, resourceID, ts)
		return
	}

	ctx, span := rt.tracer.StartSpan(r.Context(), "release")
	defer span.End()

	resp := rt.engine.Release(ctx, toReleaseRequest(req))
	rt.tracer.RecordRelease(ctx, resp.Result == engine.ResultSuccess)
	writeJSON(w, http.StatusOK, fromReleaseResponse("ReleaseResult", rt.clock.Now(), resp))
}

// handleResourceStatus serves POST /api/request_resource_status (spec
// §4.4.3, §6.1).
func (rt *Router) handleResourceStatus(w http.ResponseWriter, r *http.Request) {
	ts := rt.clock.Now()
	raw, ok := decodeBody(w, r)
	if !ok {
		writeValidationError(w, "ResourceStatus", "", "", ts)
		return
	}
	requestID, resourceID := stringField(raw, "request_id"), stringField(raw, "resource_id")

	if raw["api"] != "RequestResourceStatus" {
		writeValidationError(w, "ResourceStatus", requestID, resourceID, ts)
		return
	}
	if err := validate(rt.schemas.resourceStatus, raw); err != nil {
		writeValidationError(w, "ResourceStatus", requestID, resourceID, ts)
		return
	}

	var req resourceStatusRequest
	if err := remarshal(raw, &req); err != nil {
		writeValidationError(w, "ResourceStatus", requestID, resourceID, ts)
		return
	}

	ctx, span := rt.tracer.StartSpan(r.Context(), "request_resource_status")
	defer span.End()

	resp := rt.engine.RequestResourceStatus(ctx, toStatusRequest(req))
	writeJSON(w, http.StatusOK, fromStatusResponse("ResourceStatus", rt.clock.Now(), resp))
}

// handleRobotStatus serves POST /api/robot_status (spec §4.4.4, §6.1).
func (rt *Router) handleRobotStatus(w http.ResponseWriter, r *http.Request) {
	ts := rt.clock.Now()
	raw, ok := decodeBody(w, r)
	if !ok {
		writeValidationError(w, "RobotStatusResult", "", "", ts)
		return
	}
	requestID, resourceID := stringField(raw, "request_id"), stringField(raw, "resource_id")

	if raw["api"] != "RobotStatus" {
		writeValidationError(w, "RobotStatusResult", requestID, resourceID, ts)
		return
	}
	if err := validate(rt.schemas.robotStatus, raw); err != nil {
		writeValidationError(w, "RobotStatusResult", requestID, resourceID, ts)
		return
	}

	var req robotStatusRequest
	if err := remarshal(raw, &req); err != nil {
		writeValidationError(w, "RobotStatusResult", requestID, resourceID, ts)
		return
	}

	ctx, span := rt.tracer.StartSpan(r.Context(), "robot_status")
	defer span.End()

	resp := rt.engine.RobotStatus(ctx, toRobotStatusRequest(req))
	writeJSON(w, http.StatusOK, fromRobotStatusResponse("RobotStatusResult", rt.clock.Now(), resp))
}

// handleAllData serves GET /api/all_data, the debug enumeration endpoint
// (spec §4.6, supplemented from original_source per DESIGN.md).
func (rt *Router) handleAllData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	records, err := rt.engine.ListAll(r.Context())
	if err != nil {
		writeBackendFailure(w, rt.logger, "AllData", "", rt.clock.Now(), err)
		return
	}

	entries := make([]allDataEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, allDataEntry{
			BldgID:         rec.BldgID,
			ResourceID:     rec.ResourceID,
			ResourceType:   int(rec.ResourceType),
			MaxTimeout:     rec.MaxTimeoutMs,
			DefaultTimeout: rec.DefaultTimeoutMs,
			LockedBy:       rec.LockedBy,
			LockedTime:     rec.LockedTimeMs,
			ExpirationTime: rec.ExpirationTimeMs,
		})
	}
	writeJSON(w, http.StatusOK, entries)
}

// remarshal round-trips raw through JSON into dst. Cheaper alternatives
// (manual field plucking) don't compose with the schema-validated map, and
// this path only runs after schema.Validate has already accepted raw.
func remarshal(raw map[string]any, dst any) error {
	b, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}
