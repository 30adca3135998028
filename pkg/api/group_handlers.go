package api

import (
	"net/http"

	"github.com/platinummonkey/docket/pkg/httputil"
	"github.com/platinummonkey/docket/pkg/middleware"
)

type groupRequest struct {
	Name   string `json:"name"`
	Parent string `json:"parent,omitempty"`
}

// requireSuperuser gates the group admin surface.
func (s *Server) requireSuperuser(w http.ResponseWriter, r *http.Request) bool {
	p := middleware.PrincipalFromContext(r.Context())
	if p == nil || !p.Superuser {
		httputil.WriteForbidden(w)
		return false
	}
	return true
}

func (s *Server) createGroup(w http.ResponseWriter, r *http.Request) {
	if !s.requireSuperuser(w, r) {
		return
	}
	p := middleware.PrincipalFromContext(r.Context())

	var req groupRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.ValidateLength(w, "name", req.Name, 1, 50) {
		return
	}

	g, err := s.groups.Create(r.Context(), req.Name, req.Parent, p.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteCreated(w, g)
}

func (s *Server) updateGroup(w http.ResponseWriter, r *http.Request) {
	if !s.requireSuperuser(w, r) {
		return
	}
	p := middleware.PrincipalFromContext(r.Context())
	name, err := httputil.ParsePathString(r, "name")
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	var req groupRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	g, err := s.groups.GetActiveByName(r.Context(), name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	updated, err := s.groups.Update(r.Context(), g.ID, req.Name, req.Parent, p.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, updated)
}

func (s *Server) deleteGroup(w http.ResponseWriter, r *http.Request) {
	if !s.requireSuperuser(w, r) {
		return
	}
	p := middleware.PrincipalFromContext(r.Context())
	name, err := httputil.ParsePathString(r, "name")
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	g, err := s.groups.GetActiveByName(r.Context(), name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.groups.Delete(r.Context(), g.ID, p.UserID); err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteOK(w)
}

type memberRequest struct {
	Username string `json:"username"`
}

func (s *Server) addGroupMember(w http.ResponseWriter, r *http.Request) {
	if !s.requireSuperuser(w, r) {
		return
	}
	name, err := httputil.ParsePathString(r, "name")
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	var req memberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, "username", req.Username) {
		return
	}

	g, err := s.groups.GetActiveByName(r.Context(), name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	u, err := s.users.GetActiveByUsername(r.Context(), req.Username)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.groups.AddMember(r.Context(), g.ID, u.ID); err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteOK(w)
}

func (s *Server) removeGroupMember(w http.ResponseWriter, r *http.Request) {
	if !s.requireSuperuser(w, r) {
		return
	}
	name, err := httputil.ParsePathString(r, "name")
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}
	username, err := httputil.ParsePathString(r, "username")
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	g, err := s.groups.GetActiveByName(r.Context(), name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	u, err := s.users.GetActiveByUsername(r.Context(), username)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.groups.RemoveMember(r.Context(), g.ID, u.ID); err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteOK(w)
}
