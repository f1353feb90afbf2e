package transport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rezkam/umbridge-gateway/internal/joberr"
)

// errorEnvelope is the wire shape every error response takes:
// {"error":{"type":"...","message":"..."}}.
type errorEnvelope struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// writeJSON marshals v as the response body with status, logging (but not
// failing the request on) a write error.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "failed to write response body", "error", err)
	}
}

// writeError maps err to an HTTP status and wire error type via
// FromJobError, and writes the envelope.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := FromJobError(err)
	writeJSON(w, r, status, errorEnvelope{Error: detail})
}

// FromJobError maps a joberr kind (or any other error) to the HTTP status
// and wire error.type the gateway reports to clients. Errors that match
// none of the known kinds are treated as internal failures.
func FromJobError(err error) (int, errorDetail) {
	switch {
	case joberr.IsModelNotFound(err):
		return http.StatusBadRequest, errorDetail{Type: "ModelNotFound", Message: err.Error()}
	case joberr.IsUnsupportedFeature(err):
		return http.StatusBadRequest, errorDetail{Type: "UnsupportedFeature", Message: err.Error()}
	case joberr.IsInvalidInput(err):
		return http.StatusBadRequest, errorDetail{Type: "InvalidInput", Message: err.Error()}
	case joberr.IsWorkerProtocolError(err):
		var wpe joberr.WorkerProtocolError
		errors.As(err, &wpe)

		status := http.StatusInternalServerError
		if wpe.Status >= 400 && wpe.Status < 600 {
			status = wpe.Status
		}

		// A worker reporting one of the gateway's own known error kinds
		// (e.g. UnsupportedFeature) is surfaced verbatim rather than
		// collapsed to the generic WorkerProtocolError type.
		errType := "WorkerProtocolError"
		switch wpe.Type {
		case "UnsupportedFeature", "InvalidInput", "ModelNotFound":
			errType = wpe.Type
		}
		return status, errorDetail{Type: errType, Message: wpe.Message}
	case joberr.IsScriptMissing(err):
		return http.StatusInternalServerError, errorDetail{Type: "ScriptMissing", Message: err.Error()}
	case joberr.IsSpawnFailed(err):
		return http.StatusInternalServerError, errorDetail{Type: "SpawnFailed", Message: err.Error()}
	case joberr.IsSubmitFailed(err):
		return http.StatusInternalServerError, errorDetail{Type: "SubmitFailed", Message: err.Error()}
	case joberr.IsRendezvousTimeout(err):
		return http.StatusInternalServerError, errorDetail{Type: "RendezvousTimeout", Message: err.Error()}
	case joberr.IsIoError(err):
		return http.StatusInternalServerError, errorDetail{Type: "IoError", Message: err.Error()}
	default:
		return http.StatusInternalServerError, errorDetail{Type: "InternalError", Message: err.Error()}
	}
}
