package api

import (
	"net/http"

	"github.com/platinummonkey/docket/pkg/acl"
	"github.com/platinummonkey/docket/pkg/httputil"
	"github.com/platinummonkey/docket/pkg/middleware"
	"github.com/platinummonkey/docket/pkg/principal"
)

type aclRequest struct {
	Perm       string `json:"perm"`
	TargetName string `json:"target_name"`
	TargetType string `json:"target_type"`
}

// parseACLRequest decodes and validates a grant body; on failure the error
// response has already been written.
func parseACLRequest(w http.ResponseWriter, r *http.Request) (acl.Permission, principal.TargetType, string, bool) {
	var req aclRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return "", "", "", false
	}
	perm := acl.Permission(req.Perm)
	if !perm.Valid() {
		httputil.WriteValidationError(w, "perm must be READ or WRITE")
		return "", "", "", false
	}
	targetType := principal.TargetType(req.TargetType)
	if !targetType.Valid() {
		httputil.WriteValidationError(w, "invalid target type")
		return "", "", "", false
	}
	return perm, targetType, req.TargetName, true
}

// requireDocumentWrite loads the document and checks WRITE, returning the
// caller's target set. A read denial is reported as not-found.
func (s *Server) requireDocumentWrite(w http.ResponseWriter, r *http.Request, documentID string, p *principal.Principal) (principal.TargetIDSet, bool) {
	targets, err := s.resolver.TargetIDSet(r.Context(), p)
	if err != nil {
		s.writeError(w, err)
		return principal.TargetIDSet{}, false
	}
	if _, err := s.documents.Get(r.Context(), documentID, targets); err != nil {
		s.writeError(w, err)
		return principal.TargetIDSet{}, false
	}
	ok, err := s.checker.CheckPermission(r.Context(), documentID, acl.PermWrite, targets)
	if err != nil {
		s.writeError(w, err)
		return principal.TargetIDSet{}, false
	}
	if !ok {
		httputil.WriteForbidden(w)
		return principal.TargetIDSet{}, false
	}
	return targets, true
}

func (s *Server) listACLs(w http.ResponseWriter, r *http.Request) {
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
	if _, err := s.documents.Get(r.Context(), id, targets); err != nil {
		s.writeError(w, err)
		return
	}

	acls, err := s.acls.GetBySource(r.Context(), id, acl.KindUser)
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"acls": acls})
}

func (s *Server) createACL(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	id, err := httputil.ParsePathString(r, "id")
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	perm, targetType, targetName, ok := parseACLRequest(w, r)
	if !ok {
		return
	}

	if _, ok := s.requireDocumentWrite(w, r, id, p); !ok {
		return
	}

	targetID, err := s.resolver.ResolveTargetID(r.Context(), targetName, targetType)
	if err != nil {
		s.writeError(w, err)
		return
	}

	grant := &acl.ACL{
		SourceID:   id,
		Perm:       perm,
		TargetID:   targetID,
		TargetType: targetType,
		Kind:       acl.KindUser,
	}
	if err := s.acls.Create(r.Context(), grant, p.UserID); err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteCreated(w, grant)
}

func (s *Server) deleteACL(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	id, err := httputil.ParsePathString(r, "id")
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	perm, targetType, targetName, ok := parseACLRequest(w, r)
	if !ok {
		return
	}

	if _, ok := s.requireDocumentWrite(w, r, id, p); !ok {
		return
	}

	targetID, err := s.resolver.ResolveTargetID(r.Context(), targetName, targetType)
	if err != nil {
		s.writeError(w, err)
		return
	}

	// The creator's base grants are not deletable; revoking them would
	// orphan the document.
	owned, err := s.documents.OwnedBy(r.Context(), id, targetID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if owned {
		s.writeError(w, acl.ErrBaseACL)
		return
	}

	if err := s.acls.Delete(r.Context(), id, perm, targetID, acl.KindUser, p.UserID); err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteOK(w)
}

// requireTagOwner loads the tag and checks the caller owns it. Only the
// owner (or a superuser) may inspect or change a tag's grants.
func (s *Server) requireTagOwner(w http.ResponseWriter, r *http.Request, tagID string, p *principal.Principal) bool {
	t, err := s.tags.GetActiveByID(r.Context(), tagID)
	if err != nil {
		s.writeError(w, err)
		return false
	}
	if t.UserID != p.UserID && !p.Superuser {
		httputil.WriteForbidden(w)
		return false
	}
	return true
}

func (s *Server) listTagACLs(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	id, err := httputil.ParsePathString(r, "id")
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	if !s.requireTagOwner(w, r, id, p) {
		return
	}

	acls, err := s.acls.GetBySource(r.Context(), id, acl.KindUser)
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"acls": acls})
}

// createTagACL grants on the tag itself; a READ grant reaches every
// document the tag is attached to through inheritance.
func (s *Server) createTagACL(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	id, err := httputil.ParsePathString(r, "id")
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	perm, targetType, targetName, ok := parseACLRequest(w, r)
	if !ok {
		return
	}

	if !s.requireTagOwner(w, r, id, p) {
		return
	}

	targetID, err := s.resolver.ResolveTargetID(r.Context(), targetName, targetType)
	if err != nil {
		s.writeError(w, err)
		return
	}

	grant := &acl.ACL{
		SourceID:   id,
		Perm:       perm,
		TargetID:   targetID,
		TargetType: targetType,
		Kind:       acl.KindUser,
	}
	if err := s.acls.Create(r.Context(), grant, p.UserID); err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteCreated(w, grant)
}

func (s *Server) deleteTagACL(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	id, err := httputil.ParsePathString(r, "id")
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	perm, targetType, targetName, ok := parseACLRequest(w, r)
	if !ok {
		return
	}

	if !s.requireTagOwner(w, r, id, p) {
		return
	}

	targetID, err := s.resolver.ResolveTargetID(r.Context(), targetName, targetType)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.acls.Delete(r.Context(), id, perm, targetID, acl.KindUser, p.UserID); err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteOK(w)
}

func (s *Server) checkPermissions(w http.ResponseWriter, r *http.Request) {
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
	canRead, err := s.checker.CheckPermission(r.Context(), id, acl.PermRead, targets)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !canRead {
		httputil.WriteNotFound(w)
		return
	}
	canWrite, err := s.checker.CheckPermission(r.Context(), id, acl.PermWrite, targets)
	if err != nil {
		s.writeError(w, err)
		return
	}

	perms := []string{string(acl.PermRead)}
	if canWrite {
		perms = append(perms, string(acl.PermWrite))
	}
	httputil.WriteSuccess(w, map[string]interface{}{"permissions": perms})
}
