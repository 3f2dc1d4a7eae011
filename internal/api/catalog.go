package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/TimurManjosov/mockflow/internal/audit"
	"github.com/TimurManjosov/mockflow/internal/catalog"
)

func (s *Server) handleExportCatalog(w http.ResponseWriter, r *http.Request) {
	c, err := catalog.Export(r.Context(), s.store)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	out, err := catalog.Marshal(c)
	if err != nil {
		InternalError(w, r, "Failed to encode catalog")
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

// handleImportCatalog applies a YAML catalog. Transitions of the scenarios it
// names are replaced; other scenarios and all state are untouched.
func (s *Server) handleImportCatalog(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			RequestTooLargeError(w, r, "Request body too large")
			return
		}
		BadRequestError(w, r, ErrCodeBadRequest, "Failed to read body")
		return
	}

	c, err := catalog.Parse(data)
	if err != nil {
		BadRequestError(w, r, ErrCodeInvalidCatalog, err.Error())
		return
	}
	res, err := catalog.Apply(r.Context(), s.store, c)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	s.logger.Info().Int("scenarios", res.Scenarios).Int("transitions", res.Transitions).Msg("catalog imported")
	s.record(audit.NewEventBuilder(r).
		ForResource(audit.ResourceTypeCatalog, "catalog").
		WithAction(audit.ActionImported).
		WithAfterState(audit.ToMap(res)))
	writeJSON(w, http.StatusOK, res)
}
