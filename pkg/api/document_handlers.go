package api

import (
	"net/http"

	"github.com/platinummonkey/docket/pkg/acl"
	"github.com/platinummonkey/docket/pkg/httputil"
	"github.com/platinummonkey/docket/pkg/middleware"
)

type createDocumentRequest struct {
	Title string `json:"title"`
}

func (s *Server) createDocument(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())

	var req createDocumentRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.ValidateLength(w, "title", req.Title, 1, 100) {
		return
	}

	doc, err := s.documents.Create(r.Context(), req.Title, p)
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteCreated(w, doc)
}

func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
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
	doc, err := s.documents.Get(r.Context(), id, targets)
	if err != nil {
		s.writeError(w, err)
		return
	}

	tagIDs, err := s.tags.TagIDsForDocument(r.Context(), doc.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"document": doc,
		"tags":     tagIDs,
	})
}

func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request) {
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
	if err := s.documents.Delete(r.Context(), id, p, targets); err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteOK(w)
}

type updateTagsRequest struct {
	Tags []string `json:"tags"`
}

func (s *Server) updateDocumentTags(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	id, err := httputil.ParsePathString(r, "id")
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	var req updateTagsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	targets, err := s.resolver.TargetIDSet(r.Context(), p)
	if err != nil {
		s.writeError(w, err)
		return
	}
	// Retagging is a write.
	if _, err := s.documents.Get(r.Context(), id, targets); err != nil {
		s.writeError(w, err)
		return
	}
	ok, err := s.checker.CheckPermission(r.Context(), id, acl.PermWrite, targets)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !ok {
		httputil.WriteForbidden(w)
		return
	}

	if err := s.tags.UpdateTagList(r.Context(), id, req.Tags); err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteOK(w)
}
