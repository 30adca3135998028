package api

import (
	"net/http"

	"github.com/platinummonkey/docket/pkg/acl"
	"github.com/platinummonkey/docket/pkg/httputil"
	"github.com/platinummonkey/docket/pkg/middleware"
	"github.com/platinummonkey/docket/pkg/routing"
)

type routeModelRequest struct {
	Name  string                 `json:"name"`
	Steps []routing.StepTemplate `json:"steps"`
}

func (s *Server) createRouteModel(w http.ResponseWriter, r *http.Request) {
	if !s.requireSuperuser(w, r) {
		return
	}
	p := middleware.PrincipalFromContext(r.Context())

	var req routeModelRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.ValidateLength(w, "name", req.Name, 1, 50) {
		return
	}

	m, err := s.models.Create(r.Context(), req.Name, req.Steps, p)
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteCreated(w, m)
}

func (s *Server) listRouteModels(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	targets, err := s.resolver.TargetIDSet(r.Context(), p)
	if err != nil {
		s.writeError(w, err)
		return
	}

	all, err := s.models.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	// Model visibility follows model READ grants.
	visible := make([]routing.RouteModel, 0, len(all))
	for _, m := range all {
		ok, err := s.checker.CheckPermission(r.Context(), m.ID, acl.PermRead, targets)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if ok {
			visible = append(visible, m)
		}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"models": visible})
}

func (s *Server) getRouteModel(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	id, err := httputil.ParsePathString(r, "id")
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	targets, err := s.resolver.TargetIDSet(r.Context(), p)
	if err != nil {
		s.writeError(w, err)
		return
	}
	ok, err := s.checker.CheckPermission(r.Context(), id, acl.PermRead, targets)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !ok {
		httputil.WriteNotFound(w)
		return
	}

	m, err := s.models.GetActiveByID(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, m)
}

func (s *Server) updateRouteModel(w http.ResponseWriter, r *http.Request) {
	if !s.requireSuperuser(w, r) {
		return
	}
	p := middleware.PrincipalFromContext(r.Context())
	id, err := httputil.ParsePathString(r, "id")
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	var req routeModelRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.ValidateLength(w, "name", req.Name, 1, 50) {
		return
	}

	m, err := s.models.Update(r.Context(), id, req.Name, req.Steps, p.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, m)
}

func (s *Server) deleteRouteModel(w http.ResponseWriter, r *http.Request) {
	if !s.requireSuperuser(w, r) {
		return
	}
	p := middleware.PrincipalFromContext(r.Context())
	id, err := httputil.ParsePathString(r, "id")
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	if err := s.models.Delete(r.Context(), id, p.UserID); err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteOK(w)
}
