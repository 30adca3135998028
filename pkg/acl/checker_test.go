package acl

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/docket/pkg/audit"
	"github.com/platinummonkey/docket/pkg/principal"
	"github.com/platinummonkey/docket/pkg/schema"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	require.NoError(t, schema.RunMigrations(context.Background(), db))
	t.Cleanup(func() { db.Close() })
	return db
}

func insertDocument(t *testing.T, db *sql.DB, id, title, userID string) {
	t.Helper()
	_, err := db.Exec(
		"INSERT INTO documents (id, title, user_id, create_date) VALUES ($1, $2, $3, $4)",
		id, title, userID, time.Now().UTC(),
	)
	require.NoError(t, err)
}

func insertTag(t *testing.T, db *sql.DB, id, name, userID string) {
	t.Helper()
	_, err := db.Exec(
		"INSERT INTO tags (id, name, color, user_id, create_date) VALUES ($1, $2, '#3a87ad', $3, $4)",
		id, name, userID, time.Now().UTC(),
	)
	require.NoError(t, err)
}

func attachTag(t *testing.T, db *sql.DB, documentID, tagID string) {
	t.Helper()
	_, err := db.Exec(
		"INSERT INTO document_tags (id, document_id, tag_id, create_date) VALUES ($1, $2, $3, $4)",
		documentID+":"+tagID, documentID, tagID, time.Now().UTC(),
	)
	require.NoError(t, err)
}

func userTargets(ids ...string) principal.TargetIDSet {
	return principal.TargetIDSet{IDs: ids}
}

func TestCheckPermissionDirectGrant(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	store := NewStore(db, audit.NewRecorder(db, nil))
	checker := NewChecker(db, nil)

	insertDocument(t, db, "doc-1", "quarterly report", "user-alice")
	require.NoError(t, store.Create(ctx, &ACL{
		SourceID:   "doc-1",
		Perm:       PermRead,
		TargetID:   "user-alice",
		TargetType: principal.TargetUser,
		Kind:       KindUser,
	}, "user-alice"))

	allowed, err := checker.CheckPermission(ctx, "doc-1", PermRead, userTargets("user-alice"))
	require.NoError(t, err)
	assert.True(t, allowed)

	// READ does not imply WRITE.
	allowed, err = checker.CheckPermission(ctx, "doc-1", PermWrite, userTargets("user-alice"))
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = checker.CheckPermission(ctx, "doc-1", PermRead, userTargets("user-bob"))
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestCheckPermissionGroupGrant(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	store := NewStore(db, audit.NewRecorder(db, nil))
	checker := NewChecker(db, nil)

	insertDocument(t, db, "doc-1", "handbook", "user-alice")
	require.NoError(t, store.Create(ctx, &ACL{
		SourceID:   "doc-1",
		Perm:       PermRead,
		TargetID:   "group-staff",
		TargetType: principal.TargetGroup,
		Kind:       KindUser,
	}, "user-alice"))

	// The flattened target set carries the group ID; membership
	// resolution happens upstream of the checker.
	allowed, err := checker.CheckPermission(ctx, "doc-1", PermRead, userTargets("user-bob", "group-staff"))
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = checker.CheckPermission(ctx, "doc-1", PermRead, userTargets("user-bob", "group-legal"))
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestCheckPermissionSoftDeletedGrant(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	store := NewStore(db, audit.NewRecorder(db, nil))
	checker := NewChecker(db, nil)

	insertDocument(t, db, "doc-1", "draft", "user-alice")
	require.NoError(t, store.Create(ctx, &ACL{
		SourceID: "doc-1", Perm: PermRead, TargetID: "user-alice",
		TargetType: principal.TargetUser, Kind: KindUser,
	}, "user-alice"))
	require.NoError(t, store.Create(ctx, &ACL{
		SourceID: "doc-1", Perm: PermRead, TargetID: "user-bob",
		TargetType: principal.TargetUser, Kind: KindUser,
	}, "user-alice"))

	require.NoError(t, store.Delete(ctx, "doc-1", PermRead, "user-bob", KindUser, "user-alice"))

	allowed, err := checker.CheckPermission(ctx, "doc-1", PermRead, userTargets("user-bob"))
	require.NoError(t, err)
	assert.False(t, allowed, "revoked grant must not satisfy a check")

	// The sibling grant on the same source is unaffected.
	allowed, err = checker.CheckPermission(ctx, "doc-1", PermRead, userTargets("user-alice"))
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestCheckPermissionTagInheritance(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	store := NewStore(db, audit.NewRecorder(db, nil))
	checker := NewChecker(db, nil)

	insertDocument(t, db, "doc-1", "invoice", "user-alice")
	insertTag(t, db, "tag-finance", "finance", "user-alice")
	attachTag(t, db, "doc-1", "tag-finance")

	// Grants live on the tag, not the document.
	require.NoError(t, store.Create(ctx, &ACL{
		SourceID: "tag-finance", Perm: PermRead, TargetID: "group-accounting",
		TargetType: principal.TargetGroup, Kind: KindUser,
	}, "user-alice"))
	require.NoError(t, store.Create(ctx, &ACL{
		SourceID: "tag-finance", Perm: PermWrite, TargetID: "group-accounting",
		TargetType: principal.TargetGroup, Kind: KindUser,
	}, "user-alice"))

	allowed, err := checker.CheckPermission(ctx, "doc-1", PermRead, userTargets("group-accounting"))
	require.NoError(t, err)
	assert.True(t, allowed, "READ propagates from the attached tag")

	// WRITE never propagates through tags, even when granted on the tag.
	allowed, err = checker.CheckPermission(ctx, "doc-1", PermWrite, userTargets("group-accounting"))
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestCheckPermissionDetachedTag(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	store := NewStore(db, audit.NewRecorder(db, nil))
	checker := NewChecker(db, nil)

	insertDocument(t, db, "doc-1", "invoice", "user-alice")
	insertTag(t, db, "tag-finance", "finance", "user-alice")
	attachTag(t, db, "doc-1", "tag-finance")
	require.NoError(t, store.Create(ctx, &ACL{
		SourceID: "tag-finance", Perm: PermRead, TargetID: "user-bob",
		TargetType: principal.TargetUser, Kind: KindUser,
	}, "user-alice"))

	_, err := db.Exec(
		"UPDATE document_tags SET delete_date = $1 WHERE document_id = $2 AND tag_id = $3",
		time.Now().UTC(), "doc-1", "tag-finance",
	)
	require.NoError(t, err)

	allowed, err := checker.CheckPermission(ctx, "doc-1", PermRead, userTargets("user-bob"))
	require.NoError(t, err)
	assert.False(t, allowed, "detached tag must stop propagating grants")
}

func TestCheckPermissionSuperuser(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	checker := NewChecker(db, nil)

	// No rows at all: the superuser flag alone decides.
	allowed, err := checker.CheckPermission(ctx, "doc-unknown", PermWrite, principal.TargetIDSet{
		IDs:       []string{"user-admin"},
		Superuser: true,
	})
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestCheckPermissionEmptyTargetSet(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	checker := NewChecker(db, nil)

	allowed, err := checker.CheckPermission(ctx, "doc-1", PermRead, principal.TargetIDSet{})
	require.NoError(t, err)
	assert.False(t, allowed)
}
