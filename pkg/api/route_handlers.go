package api

import (
	"net/http"

	"github.com/platinummonkey/docket/pkg/httputil"
	"github.com/platinummonkey/docket/pkg/middleware"
	"github.com/platinummonkey/docket/pkg/routing"
)

type startRouteRequest struct {
	RouteModelID string `json:"route_model_id"`
}

func (s *Server) startRoute(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	documentID, err := httputil.ParsePathString(r, "id")
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	var req startRouteRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, "route_model_id", req.RouteModelID) {
		return
	}

	route, err := s.engine.Start(r.Context(), documentID, req.RouteModelID, p)
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteCreated(w, route)
}

func (s *Server) getRouteStatus(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	documentID, err := httputil.ParsePathString(r, "id")
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	targets, err := s.resolver.TargetIDSet(r.Context(), p)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if _, err := s.documents.Get(r.Context(), documentID, targets); err != nil {
		s.writeError(w, err)
		return
	}

	step, err := s.engine.CurrentStep(r.Context(), documentID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	transitionable, err := s.engine.IsTransitionable(r.Context(), documentID, p)
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"current_step":   step,
		"transitionable": transitionable,
	})
}

type validateRouteRequest struct {
	Transition string `json:"transition"`
	Comment    string `json:"comment,omitempty"`
}

func (s *Server) validateRouteStep(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	documentID, err := httputil.ParsePathString(r, "id")
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	var req validateRouteRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, "transition", req.Transition) {
		return
	}

	step, err := s.engine.Validate(r.Context(), documentID, routing.Transition(req.Transition), req.Comment, p)
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, step)
}

func (s *Server) cancelRoute(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	routeID, err := httputil.ParsePathString(r, "id")
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	if err := s.engine.Cancel(r.Context(), routeID, p); err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteOK(w)
}
