package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/TimurManjosov/mockflow/internal/store"
)

// maxBodyBytes caps request bodies on every route.
const maxBodyBytes = 1 << 20

// ===== HTTP Helpers =====

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a size-limited JSON body into dst. It writes the error
// response itself and reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, hint string) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			RequestTooLargeError(w, r, "Request body too large")
			return false
		}
		BadRequestError(w, r, ErrCodeInvalidJSON, "Invalid JSON: "+hint)
		return false
	}
	return true
}

// readBody reads a size-limited body. An empty body yields nil, valid JSON is
// decoded, anything else is passed through as text.
func readBody(w http.ResponseWriter, r *http.Request) (any, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data), nil
	}
	return v, nil
}

// storeError maps store sentinels to 404 and everything else to 500.
func (s *Server) storeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrScenarioNotFound):
		NotFoundError(w, r, "Scenario not found")
	case errors.Is(err, store.ErrTransitionNotFound):
		NotFoundError(w, r, "Transition not found")
	case errors.Is(err, store.ErrStateNotFound):
		NotFoundError(w, r, "Scenario has no state")
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("store operation failed")
		InternalError(w, r, "Store operation failed")
	}
}
