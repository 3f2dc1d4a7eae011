package api

import (
	"net/http"
	"strconv"

	"github.com/TimurManjosov/mockflow/internal/audit"
)

// AuditReader exposes recently recorded audit events.
type AuditReader interface {
	Recent(limit int) []audit.AuditEvent
}

// WithAudit records management writes and auth failures on svc. When recent is
// non-nil, GET /v1/audit serves from it.
func WithAudit(svc *audit.Service, recent AuditReader) Option {
	return func(s *Server) {
		s.audit = svc
		s.auditLog = recent
	}
}

func (s *Server) record(b *audit.EventBuilder) {
	if s.audit == nil {
		return
	}
	s.audit.Log(b.Build())
}

type listAuditResponse struct {
	Events []audit.AuditEvent `json:"events"`
}

const defaultAuditLimit = 50

func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			ValidationError(w, r, "Invalid limit", map[string]string{"limit": "must be a positive integer"})
			return
		}
		limit = n
	}

	events := []audit.AuditEvent{}
	if s.auditLog != nil {
		events = append(events, s.auditLog.Recent(limit)...)
	}
	writeJSON(w, http.StatusOK, listAuditResponse{Events: events})
}
