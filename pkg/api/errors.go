package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/docket/pkg/acl"
	"github.com/platinummonkey/docket/pkg/documents"
	"github.com/platinummonkey/docket/pkg/groups"
	"github.com/platinummonkey/docket/pkg/httputil"
	"github.com/platinummonkey/docket/pkg/principal"
	"github.com/platinummonkey/docket/pkg/routing"
	"github.com/platinummonkey/docket/pkg/tags"
	"github.com/platinummonkey/docket/pkg/users"
)

// writeError maps core errors to the API's error codes. Read-path denials
// surface as not-found so the API never leaks that an object exists.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, documents.ErrNotFound),
		errors.Is(err, tags.ErrNotFound),
		errors.Is(err, users.ErrNotFound),
		errors.Is(err, groups.ErrNotFound),
		errors.Is(err, routing.ErrModelNotFound),
		errors.Is(err, routing.ErrRouteNotFound):
		httputil.WriteNotFound(w)
	case errors.Is(err, routing.ErrNoCurrentStep):
		httputil.WriteErrorCode(w, http.StatusBadRequest, "NoCurrentStep", err.Error())
	case errors.Is(err, routing.ErrForbiddenTransition):
		httputil.WriteErrorCode(w, http.StatusBadRequest, "ForbiddenTransition", err.Error())
	case errors.Is(err, routing.ErrInvalidRouteModel):
		httputil.WriteErrorCode(w, http.StatusBadRequest, "InvalidRouteModel", err.Error())
	case errors.Is(err, routing.ErrRunningRoute):
		httputil.WriteErrorCode(w, http.StatusConflict, "RunningRoute", err.Error())
	case errors.Is(err, routing.ErrForbidden),
		errors.Is(err, documents.ErrForbidden):
		httputil.WriteForbidden(w)
	case errors.Is(err, groups.ErrParentNotFound):
		httputil.WriteErrorCode(w, http.StatusBadRequest, "ParentGroupNotFound", err.Error())
	case errors.Is(err, tags.ErrParentNotFound):
		httputil.WriteErrorCode(w, http.StatusBadRequest, "ParentTagNotFound", err.Error())
	case errors.Is(err, groups.ErrAlreadyExists):
		httputil.WriteErrorCode(w, http.StatusBadRequest, "GroupAlreadyExists", err.Error())
	case errors.Is(err, acl.ErrBaseACL):
		httputil.WriteErrorCode(w, http.StatusBadRequest, "AclError", err.Error())
	case errors.Is(err, users.ErrAlreadyExists),
		errors.Is(err, tags.ErrAlreadyExists):
		httputil.WriteErrorCode(w, http.StatusBadRequest, "AlreadyExists", err.Error())
	case errors.Is(err, principal.ErrInvalidTarget):
		httputil.WriteValidationError(w, err.Error())
	default:
		s.logger.WithError(err).Error("request failed")
		httputil.WriteInternalError(w, err)
	}
}
