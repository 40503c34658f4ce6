package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sbgisen/resource-broker/pkg/engine"
)

// writeJSON encodes v as the HTTP response body with status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// validationError is the envelope written on a 400 (spec §6.4, §7): the
// discriminator echoes the endpoint's own response api string, result is
// always OTHERS, and request_id/resource_id are echoed back when they can be
// recovered from the raw payload.
type validationError struct {
	API        string `json:"api"`
	Result     int    `json:"result"`
	RequestID  string `json:"request_id"`
	ResourceID string `json:"resource_id,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

func writeValidationError(w http.ResponseWriter, responseAPI, requestID, resourceID string, ts int64) {
	writeJSON(w, http.StatusBadRequest, validationError{
		API:        responseAPI,
		Result:     int(engine.ResultOthers),
		RequestID:  requestID,
		ResourceID: resourceID,
		Timestamp:  ts,
	})
}

// writeBackendFailure writes a 500 for uncategorized backend errors (spec
// §7). The error itself is never exposed to the client.
func writeBackendFailure(w http.ResponseWriter, logger *slog.Logger, responseAPI, requestID string, ts int64, err error) {
	logger.Error("backend failure", "api", responseAPI, "error", err)
	writeJSON(w, http.StatusInternalServerError, validationError{
		API:       responseAPI,
		Result:    int(engine.ResultOthers),
		RequestID: requestID,
		Timestamp: ts,
	})
}
