package api

import (
	"net/http"

	"github.com/platinummonkey/docket/pkg/httputil"
	"github.com/platinummonkey/docket/pkg/middleware"
)

type tagRequest struct {
	Name   string `json:"name"`
	Color  string `json:"color,omitempty"`
	Parent string `json:"parent,omitempty"`
}

func (s *Server) createTag(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())

	var req tagRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.ValidateLength(w, "name", req.Name, 1, 36) {
		return
	}

	t, err := s.tags.Create(r.Context(), req.Name, req.Color, req.Parent, p.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteCreated(w, t)
}

func (s *Server) deleteTag(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	id, err := httputil.ParsePathString(r, "id")
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	t, err := s.tags.GetActiveByID(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if t.UserID != p.UserID && !p.Superuser {
		httputil.WriteForbidden(w)
		return
	}
	if err := s.tags.Delete(r.Context(), id, p.UserID); err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteOK(w)
}
