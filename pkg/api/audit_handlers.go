package api

import (
	"net/http"
	"strconv"

	"github.com/platinummonkey/docket/pkg/audit"
	"github.com/platinummonkey/docket/pkg/httputil"
)

func (s *Server) searchAudit(w http.ResponseWriter, r *http.Request) {
	if !s.requireSuperuser(w, r) {
		return
	}

	filter := audit.Filter{
		EntityID: r.URL.Query().Get("entity_id"),
		UserID:   r.URL.Query().Get("user_id"),
		Limit:    100,
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > 1000 {
			httputil.WriteValidationError(w, "limit must be between 1 and 1000")
			return
		}
		filter.Limit = limit
	}

	entries, err := s.audit.Search(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"entries": entries})
}
