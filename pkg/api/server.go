// Package api exposes the authorization and workflow core over REST. It
// authenticates the caller into a principal, marshals route model step
// templates, and maps engine failures to HTTP status and error codes.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/docket/pkg/acl"
	"github.com/platinummonkey/docket/pkg/audit"
	"github.com/platinummonkey/docket/pkg/documents"
	"github.com/platinummonkey/docket/pkg/groups"
	"github.com/platinummonkey/docket/pkg/httputil"
	"github.com/platinummonkey/docket/pkg/middleware"
	"github.com/platinummonkey/docket/pkg/observability"
	"github.com/platinummonkey/docket/pkg/principal"
	"github.com/platinummonkey/docket/pkg/routing"
	"github.com/platinummonkey/docket/pkg/tags"
	"github.com/platinummonkey/docket/pkg/users"
)

// Server wires the stores and engines into an HTTP handler.
type Server struct {
	router *mux.Router

	users     *users.Store
	groups    *groups.Store
	tags      *tags.Store
	documents *documents.Store
	acls      *acl.Store
	checker   *acl.Checker
	resolver  *principal.Resolver
	models    *routing.ModelStore
	engine    *routing.Engine
	audit     *audit.Recorder

	logger  *observability.Logger
	metrics *observability.Metrics
}

// Options carries the server's dependencies.
type Options struct {
	Users     *users.Store
	Groups    *groups.Store
	Tags      *tags.Store
	Documents *documents.Store
	ACLs      *acl.Store
	Checker   *acl.Checker
	Resolver  *principal.Resolver
	Models    *routing.ModelStore
	Engine    *routing.Engine
	Audit     *audit.Recorder

	Logger  *observability.Logger
	Metrics *observability.Metrics

	// RateLimit is optional; nil disables rate limiting.
	RateLimit *middleware.RateLimitMiddleware
}

// NewServer creates the API server and registers its routes.
func NewServer(opts Options) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		users:     opts.Users,
		groups:    opts.Groups,
		tags:      opts.Tags,
		documents: opts.Documents,
		acls:      opts.ACLs,
		checker:   opts.Checker,
		resolver:  opts.Resolver,
		models:    opts.Models,
		engine:    opts.Engine,
		audit:     opts.Audit,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}

	chain := []mux.MiddlewareFunc{
		httputil.RecoveryMiddleware(s.logger),
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.logger),
		s.metrics.HTTPMiddleware,
	}
	if opts.RateLimit != nil {
		chain = append(chain, opts.RateLimit.Handler)
	}
	chain = append(chain, middleware.AuthMiddleware(opts.Users))
	s.router.Use(chain...)

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Documents
	s.router.HandleFunc("/api/v1/documents", s.createDocument).Methods("POST")
	s.router.HandleFunc("/api/v1/documents/{id}", s.getDocument).Methods("GET")
	s.router.HandleFunc("/api/v1/documents/{id}", s.deleteDocument).Methods("DELETE")
	s.router.HandleFunc("/api/v1/documents/{id}/tags", s.updateDocumentTags).Methods("PUT")

	// ACLs
	s.router.HandleFunc("/api/v1/documents/{id}/acls", s.listACLs).Methods("GET")
	s.router.HandleFunc("/api/v1/documents/{id}/acls", s.createACL).Methods("POST")
	s.router.HandleFunc("/api/v1/documents/{id}/acls", s.deleteACL).Methods("DELETE")
	s.router.HandleFunc("/api/v1/documents/{id}/permissions", s.checkPermissions).Methods("GET")

	// Groups
	s.router.HandleFunc("/api/v1/groups", s.createGroup).Methods("POST")
	s.router.HandleFunc("/api/v1/groups/{name}", s.updateGroup).Methods("PUT")
	s.router.HandleFunc("/api/v1/groups/{name}", s.deleteGroup).Methods("DELETE")
	s.router.HandleFunc("/api/v1/groups/{name}/members", s.addGroupMember).Methods("POST")
	s.router.HandleFunc("/api/v1/groups/{name}/members/{username}", s.removeGroupMember).Methods("DELETE")

	// Tags
	s.router.HandleFunc("/api/v1/tags", s.createTag).Methods("POST")
	s.router.HandleFunc("/api/v1/tags/{id}", s.deleteTag).Methods("DELETE")
	s.router.HandleFunc("/api/v1/tags/{id}/acls", s.listTagACLs).Methods("GET")
	s.router.HandleFunc("/api/v1/tags/{id}/acls", s.createTagACL).Methods("POST")
	s.router.HandleFunc("/api/v1/tags/{id}/acls", s.deleteTagACL).Methods("DELETE")

	// Route models
	s.router.HandleFunc("/api/v1/routemodels", s.createRouteModel).Methods("POST")
	s.router.HandleFunc("/api/v1/routemodels", s.listRouteModels).Methods("GET")
	s.router.HandleFunc("/api/v1/routemodels/{id}", s.getRouteModel).Methods("GET")
	s.router.HandleFunc("/api/v1/routemodels/{id}", s.updateRouteModel).Methods("PUT")
	s.router.HandleFunc("/api/v1/routemodels/{id}", s.deleteRouteModel).Methods("DELETE")

	// Routes
	s.router.HandleFunc("/api/v1/documents/{id}/route", s.startRoute).Methods("POST")
	s.router.HandleFunc("/api/v1/documents/{id}/route", s.getRouteStatus).Methods("GET")
	s.router.HandleFunc("/api/v1/documents/{id}/route/validate", s.validateRouteStep).Methods("POST")
	s.router.HandleFunc("/api/v1/routes/{id}", s.cancelRoute).Methods("DELETE")

	// Audit trail
	s.router.HandleFunc("/api/v1/audit", s.searchAudit).Methods("GET")
}

// Handler returns the server's HTTP handler, wrapped for tracing.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "docket-api")
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
