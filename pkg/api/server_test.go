package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/docket/pkg/acl"
	"github.com/platinummonkey/docket/pkg/actions"
	"github.com/platinummonkey/docket/pkg/audit"
	"github.com/platinummonkey/docket/pkg/documents"
	"github.com/platinummonkey/docket/pkg/groups"
	"github.com/platinummonkey/docket/pkg/observability"
	"github.com/platinummonkey/docket/pkg/principal"
	"github.com/platinummonkey/docket/pkg/routing"
	"github.com/platinummonkey/docket/pkg/schema"
	"github.com/platinummonkey/docket/pkg/tags"
	"github.com/platinummonkey/docket/pkg/users"
)

type testServer struct {
	*Server
	db    *sql.DB
	users *users.Store
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	require.NoError(t, schema.RunMigrations(context.Background(), db))
	t.Cleanup(func() { db.Close() })

	recorder := audit.NewRecorder(db, nil)
	metrics := observability.NewMetrics(nil)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)

	acls := acl.NewStore(db, recorder)
	checker := acl.NewChecker(db, nil)
	userStore := users.NewStore(db, recorder)
	groupStore := groups.NewStore(db, recorder)
	tagStore := tags.NewStore(db, recorder)
	docStore := documents.NewStore(db, acls, checker, recorder)
	resolver := principal.NewResolver(userStore, groupStore)
	executor := actions.NewExecutor(tagStore, nil, logger, metrics)
	models := routing.NewModelStore(db, acls, recorder, executor)
	routes := routing.NewStore(db, recorder)
	engine := routing.NewEngine(db, models, routes, acls, checker, resolver, executor,
		tagStore, recorder, logger, metrics)

	srv := NewServer(Options{
		Users:     userStore,
		Groups:    groupStore,
		Tags:      tagStore,
		Documents: docStore,
		ACLs:      acls,
		Checker:   checker,
		Resolver:  resolver,
		Models:    models,
		Engine:    engine,
		Audit:     recorder,
		Logger:    logger,
		Metrics:   metrics,
	})
	return &testServer{Server: srv, db: db, users: userStore}
}

func (ts *testServer) addUser(t *testing.T, username string, superuser bool) string {
	t.Helper()
	u := &users.User{Username: username, Superuser: superuser}
	require.NoError(t, ts.users.Create(context.Background(), u, "admin"))
	return u.ID
}

// request performs an authenticated request as the given username.
func (ts *testServer) request(t *testing.T, method, path, username string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if username != "" {
		req.Header.Set("X-Auth-Username", username)
	}
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	code, _ := decodeBody(t, rec)["code"].(string)
	return code
}

func (ts *testServer) createDocumentAs(t *testing.T, username, title string) string {
	t.Helper()
	rec := ts.request(t, http.MethodPost, "/api/v1/documents", username,
		map[string]string{"title": title})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id, _ := decodeBody(t, rec)["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func validateStepTemplates(target string) []map[string]interface{} {
	return []map[string]interface{}{{
		"type":   "VALIDATE",
		"name":   "peer check",
		"target": map[string]string{"name": target, "type": "USER"},
	}}
}

func TestAuthRequired(t *testing.T) {
	ts := setupTestServer(t)
	ts.addUser(t, "alice", false)

	rec := ts.request(t, http.MethodPost, "/api/v1/documents", "", map[string]string{"title": "x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.request(t, http.MethodPost, "/api/v1/documents", "mallory", map[string]string{"title": "x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDocumentEndpoints(t *testing.T) {
	ts := setupTestServer(t)
	ts.addUser(t, "alice", false)
	ts.addUser(t, "bob", false)

	rec := ts.request(t, http.MethodPost, "/api/v1/documents", "alice", map[string]string{"title": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	id := ts.createDocumentAs(t, "alice", "quarterly report")

	rec = ts.request(t, http.MethodGet, "/api/v1/documents/"+id, "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	doc := body["document"].(map[string]interface{})
	assert.Equal(t, "quarterly report", doc["title"])

	// A stranger cannot tell the document exists.
	rec = ts.request(t, http.MethodGet, "/api/v1/documents/"+id, "bob", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NotFound", errorCode(t, rec))

	rec = ts.request(t, http.MethodDelete, "/api/v1/documents/"+id, "bob", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.request(t, http.MethodDelete, "/api/v1/documents/"+id, "alice", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.request(t, http.MethodGet, "/api/v1/documents/"+id, "alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestACLEndpoints(t *testing.T) {
	ts := setupTestServer(t)
	ts.addUser(t, "alice", false)
	ts.addUser(t, "bob", false)
	id := ts.createDocumentAs(t, "alice", "handbook")

	grant := map[string]string{"perm": "READ", "target_name": "bob", "target_type": "USER"}
	rec := ts.request(t, http.MethodPost, "/api/v1/documents/"+id+"/acls", "alice", grant)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// bob can now read the document.
	rec = ts.request(t, http.MethodGet, "/api/v1/documents/"+id, "bob", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// But cannot manage its grants.
	rec = ts.request(t, http.MethodPost, "/api/v1/documents/"+id+"/acls", "bob",
		map[string]string{"perm": "WRITE", "target_name": "bob", "target_type": "USER"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.request(t, http.MethodGet, "/api/v1/documents/"+id+"/acls", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	acls := decodeBody(t, rec)["acls"].([]interface{})
	assert.Len(t, acls, 3)

	// The creator's base grant cannot be revoked.
	rec = ts.request(t, http.MethodDelete, "/api/v1/documents/"+id+"/acls", "alice",
		map[string]string{"perm": "READ", "target_name": "alice", "target_type": "USER"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "AclError", errorCode(t, rec))

	rec = ts.request(t, http.MethodDelete, "/api/v1/documents/"+id+"/acls", "alice", grant)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = ts.request(t, http.MethodGet, "/api/v1/documents/"+id, "bob", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Unknown targets and malformed perms are validation errors.
	rec = ts.request(t, http.MethodPost, "/api/v1/documents/"+id+"/acls", "alice",
		map[string]string{"perm": "READ", "target_name": "ghost", "target_type": "USER"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ValidationError", errorCode(t, rec))

	rec = ts.request(t, http.MethodPost, "/api/v1/documents/"+id+"/acls", "alice",
		map[string]string{"perm": "OWN", "target_name": "bob", "target_type": "USER"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPermissionsEndpoint(t *testing.T) {
	ts := setupTestServer(t)
	ts.addUser(t, "alice", false)
	ts.addUser(t, "bob", false)
	ts.addUser(t, "carol", false)
	id := ts.createDocumentAs(t, "alice", "handbook")

	rec := ts.request(t, http.MethodPost, "/api/v1/documents/"+id+"/acls", "alice",
		map[string]string{"perm": "READ", "target_name": "bob", "target_type": "USER"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.request(t, http.MethodGet, "/api/v1/documents/"+id+"/permissions", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.ElementsMatch(t, []interface{}{"READ", "WRITE"}, decodeBody(t, rec)["permissions"])

	rec = ts.request(t, http.MethodGet, "/api/v1/documents/"+id+"/permissions", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{"READ"}, decodeBody(t, rec)["permissions"].([]interface{}))

	rec = ts.request(t, http.MethodGet, "/api/v1/documents/"+id+"/permissions", "carol", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGroupEndpoints(t *testing.T) {
	ts := setupTestServer(t)
	ts.addUser(t, "admin", true)
	ts.addUser(t, "alice", false)

	// Group administration is superuser-only.
	rec := ts.request(t, http.MethodPost, "/api/v1/groups", "alice", map[string]string{"name": "staff"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.request(t, http.MethodPost, "/api/v1/groups", "admin", map[string]string{"name": "staff"})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.request(t, http.MethodPost, "/api/v1/groups", "admin", map[string]string{"name": "staff"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "GroupAlreadyExists", errorCode(t, rec))

	rec = ts.request(t, http.MethodPost, "/api/v1/groups", "admin",
		map[string]string{"name": "backend", "parent": "ghost"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ParentGroupNotFound", errorCode(t, rec))

	rec = ts.request(t, http.MethodPost, "/api/v1/groups/staff/members", "admin",
		map[string]string{"username": "alice"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.request(t, http.MethodPost, "/api/v1/groups/staff/members", "admin",
		map[string]string{"username": "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.request(t, http.MethodDelete, "/api/v1/groups/staff/members/alice", "admin", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.request(t, http.MethodDelete, "/api/v1/groups/staff", "admin", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = ts.request(t, http.MethodDelete, "/api/v1/groups/staff", "admin", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTagEndpoints(t *testing.T) {
	ts := setupTestServer(t)
	ts.addUser(t, "alice", false)
	ts.addUser(t, "bob", false)

	rec := ts.request(t, http.MethodPost, "/api/v1/tags", "alice", map[string]string{"name": "finance"})
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	tagID := body["id"].(string)
	assert.Equal(t, "#3a87ad", body["color"])

	rec = ts.request(t, http.MethodPost, "/api/v1/tags", "bob", map[string]string{"name": "finance"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "AlreadyExists", errorCode(t, rec))

	rec = ts.request(t, http.MethodPost, "/api/v1/tags", "alice",
		map[string]string{"name": "invoices", "parent": "finance"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, tagID, decodeBody(t, rec)["parent_id"])

	rec = ts.request(t, http.MethodPost, "/api/v1/tags", "alice",
		map[string]string{"name": "receipts", "parent": "ghost"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ParentTagNotFound", errorCode(t, rec))

	// Only the owner (or a superuser) deletes a tag.
	rec = ts.request(t, http.MethodDelete, "/api/v1/tags/"+tagID, "bob", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.request(t, http.MethodDelete, "/api/v1/tags/"+tagID, "alice", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.request(t, http.MethodDelete, "/api/v1/tags/"+tagID, "alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouteModelEndpoints(t *testing.T) {
	ts := setupTestServer(t)
	ts.addUser(t, "admin", true)
	ts.addUser(t, "alice", false)
	ts.addUser(t, "bob", false)

	model := map[string]interface{}{"name": "review", "steps": validateStepTemplates("bob")}
	rec := ts.request(t, http.MethodPost, "/api/v1/routemodels", "alice", model)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.request(t, http.MethodPost, "/api/v1/routemodels", "admin", model)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	modelID := decodeBody(t, rec)["id"].(string)

	rec = ts.request(t, http.MethodPost, "/api/v1/routemodels", "admin",
		map[string]interface{}{"name": "broken", "steps": []map[string]interface{}{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "InvalidRouteModel", errorCode(t, rec))

	// Visibility follows model READ grants: alice has none.
	rec = ts.request(t, http.MethodGet, "/api/v1/routemodels", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody(t, rec)["models"])

	rec = ts.request(t, http.MethodGet, "/api/v1/routemodels/"+modelID, "alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.request(t, http.MethodGet, "/api/v1/routemodels/"+modelID, "admin", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.request(t, http.MethodDelete, "/api/v1/routemodels/"+modelID, "admin", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = ts.request(t, http.MethodGet, "/api/v1/routemodels/"+modelID, "admin", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouteEndpoints(t *testing.T) {
	ts := setupTestServer(t)
	ts.addUser(t, "admin", true)
	ts.addUser(t, "alice", false)
	ts.addUser(t, "bob", false)

	rec := ts.request(t, http.MethodPost, "/api/v1/routemodels", "admin",
		map[string]interface{}{"name": "review", "steps": validateStepTemplates("bob")})
	require.Equal(t, http.StatusCreated, rec.Code)
	modelID := decodeBody(t, rec)["id"].(string)

	docID := ts.createDocumentAs(t, "alice", "launch plan")

	start := map[string]string{"route_model_id": modelID}
	rec = ts.request(t, http.MethodPost, fmt.Sprintf("/api/v1/documents/%s/route", docID), "admin", start)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.request(t, http.MethodPost, fmt.Sprintf("/api/v1/documents/%s/route", docID), "admin", start)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "RunningRoute", errorCode(t, rec))

	// bob sees the document through the workflow grant.
	rec = ts.request(t, http.MethodGet, fmt.Sprintf("/api/v1/documents/%s/route", docID), "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decodeBody(t, rec)
	assert.Equal(t, true, status["transitionable"])
	step := status["current_step"].(map[string]interface{})
	assert.Equal(t, "peer check", step["name"])

	// Only the addressee may act.
	rec = ts.request(t, http.MethodPost, fmt.Sprintf("/api/v1/documents/%s/route/validate", docID), "alice",
		map[string]string{"transition": "VALIDATED"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// And only with a transition the step type allows.
	rec = ts.request(t, http.MethodPost, fmt.Sprintf("/api/v1/documents/%s/route/validate", docID), "bob",
		map[string]string{"transition": "APPROVED"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ForbiddenTransition", errorCode(t, rec))

	rec = ts.request(t, http.MethodPost, fmt.Sprintf("/api/v1/documents/%s/route/validate", docID), "bob",
		map[string]string{"transition": "VALIDATED", "comment": "looks good"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	closed := decodeBody(t, rec)
	assert.Equal(t, "VALIDATED", closed["transition"])
	assert.NotEmpty(t, closed["end_date"])

	rec = ts.request(t, http.MethodPost, fmt.Sprintf("/api/v1/documents/%s/route/validate", docID), "bob",
		map[string]string{"transition": "VALIDATED"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "NoCurrentStep", errorCode(t, rec))

	// Start a fresh route to exercise cancel.
	rec = ts.request(t, http.MethodPost, fmt.Sprintf("/api/v1/documents/%s/route", docID), "admin", start)
	require.Equal(t, http.StatusCreated, rec.Code)
	secondID := decodeBody(t, rec)["id"].(string)

	rec = ts.request(t, http.MethodDelete, "/api/v1/routes/"+secondID, "bob", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.request(t, http.MethodDelete, "/api/v1/routes/"+secondID, "alice", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuditEndpoint(t *testing.T) {
	ts := setupTestServer(t)
	ts.addUser(t, "admin", true)
	ts.addUser(t, "alice", false)
	ts.createDocumentAs(t, "alice", "plan")

	rec := ts.request(t, http.MethodGet, "/api/v1/audit", "alice", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.request(t, http.MethodGet, "/api/v1/audit", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decodeBody(t, rec)["entries"].([]interface{})
	assert.NotEmpty(t, entries)

	rec = ts.request(t, http.MethodGet, "/api/v1/audit?limit=nope", "admin", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.request(t, http.MethodGet, "/api/v1/audit?limit=5000", "admin", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTagACLEndpoints(t *testing.T) {
	ts := setupTestServer(t)
	ts.addUser(t, "alice", false)
	ts.addUser(t, "bob", false)
	docID := ts.createDocumentAs(t, "alice", "contract")

	rec := ts.request(t, http.MethodPost, "/api/v1/tags", "alice", map[string]string{"name": "legal"})
	require.Equal(t, http.StatusCreated, rec.Code)
	tagID := decodeBody(t, rec)["id"].(string)

	rec = ts.request(t, http.MethodPut, fmt.Sprintf("/api/v1/documents/%s/tags", docID), "alice",
		map[string][]string{"tags": {tagID}})
	require.Equal(t, http.StatusOK, rec.Code)

	// The tagged document is invisible to bob until the tag is shared.
	rec = ts.request(t, http.MethodGet, "/api/v1/documents/"+docID, "bob", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	grant := map[string]string{"perm": "READ", "target_name": "bob", "target_type": "USER"}

	// Only the tag's owner may manage its grants.
	rec = ts.request(t, http.MethodPost, "/api/v1/tags/"+tagID+"/acls", "bob", grant)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.request(t, http.MethodPost, "/api/v1/tags/"+tagID+"/acls", "alice", grant)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// bob now reads the document through the tag grant.
	rec = ts.request(t, http.MethodGet, "/api/v1/documents/"+docID, "bob", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.request(t, http.MethodGet, "/api/v1/tags/"+tagID+"/acls", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["acls"].([]interface{}), 1)
	rec = ts.request(t, http.MethodGet, "/api/v1/tags/"+tagID+"/acls", "bob", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Tag grants never confer WRITE on the documents carrying the tag.
	rec = ts.request(t, http.MethodPost, "/api/v1/tags/"+tagID+"/acls", "alice",
		map[string]string{"perm": "WRITE", "target_name": "bob", "target_type": "USER"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = ts.request(t, http.MethodDelete, "/api/v1/documents/"+docID, "bob", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Revoking the READ grant makes the document invisible again.
	rec = ts.request(t, http.MethodDelete, "/api/v1/tags/"+tagID+"/acls", "alice",
		map[string]string{"perm": "WRITE", "target_name": "bob", "target_type": "USER"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.request(t, http.MethodDelete, "/api/v1/tags/"+tagID+"/acls", "alice", grant)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.request(t, http.MethodGet, "/api/v1/documents/"+docID, "bob", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Grants on unknown tags are not-found.
	rec = ts.request(t, http.MethodPost, "/api/v1/tags/nope/acls", "alice", grant)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateDocumentTags(t *testing.T) {
	ts := setupTestServer(t)
	ts.addUser(t, "alice", false)
	ts.addUser(t, "bob", false)
	docID := ts.createDocumentAs(t, "alice", "report")

	rec := ts.request(t, http.MethodPost, "/api/v1/tags", "alice", map[string]string{"name": "finance"})
	require.Equal(t, http.StatusCreated, rec.Code)
	tagID := decodeBody(t, rec)["id"].(string)

	rec = ts.request(t, http.MethodPut, fmt.Sprintf("/api/v1/documents/%s/tags", docID), "alice",
		map[string][]string{"tags": {tagID}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.request(t, http.MethodGet, "/api/v1/documents/"+docID, "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{tagID}, decodeBody(t, rec)["tags"])

	// Retagging is a write; a stranger gets not-found, not forbidden.
	rec = ts.request(t, http.MethodPut, fmt.Sprintf("/api/v1/documents/%s/tags", docID), "bob",
		map[string][]string{"tags": {}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
