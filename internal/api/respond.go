package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ruslano69/sqlassist/pkg/failure"
)

type errorResponse struct {
	Error     string       `json:"error"`
	Kind      failure.Kind `json:"kind,omitempty"`
	Source    string       `json:"source,omitempty"`
	SessionID string       `json:"session_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeFailure maps a domain failure to its status code.
func writeFailure(w http.ResponseWriter, err error, sessionID string) {
	resp := errorResponse{Error: err.Error(), SessionID: sessionID}
	var f *failure.Failure
	if errors.As(err, &f) {
		resp.Kind, resp.Source = f.Kind, f.Source
	}
	writeJSON(w, statusFor(err), resp)
}

// statusFor: PlanParseError 422, ExecutionError 400, ConnectionError and
// PartialSourceFailure 502, GenerationError 503, anything else 500.
func statusFor(err error) int {
	kind, ok := failure.KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case failure.PlanParseError:
		return http.StatusUnprocessableEntity
	case failure.ExecutionError:
		return http.StatusBadRequest
	case failure.ConnectionError, failure.PartialSourceFailure:
		return http.StatusBadGateway
	case failure.GenerationError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(v)
}
