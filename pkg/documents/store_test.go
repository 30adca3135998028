package documents

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/docket/pkg/acl"
	"github.com/platinummonkey/docket/pkg/audit"
	"github.com/platinummonkey/docket/pkg/principal"
	"github.com/platinummonkey/docket/pkg/schema"
)

func setupTestStore(t *testing.T) (*Store, *acl.Store, *sql.DB) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	require.NoError(t, schema.RunMigrations(context.Background(), db))
	t.Cleanup(func() { db.Close() })

	recorder := audit.NewRecorder(db, nil)
	acls := acl.NewStore(db, recorder)
	checker := acl.NewChecker(db, nil)
	return NewStore(db, acls, checker, recorder), acls, db
}

func alicePrincipal() (*principal.Principal, principal.TargetIDSet) {
	p := &principal.Principal{UserID: "user-alice", Username: "alice"}
	return p, principal.TargetIDSet{IDs: []string{"user-alice"}}
}

func TestCreateDocumentGrantsBaseACLs(t *testing.T) {
	ctx := context.Background()
	store, acls, _ := setupTestStore(t)
	p, targets := alicePrincipal()

	d, err := store.Create(ctx, "quarterly report", p)
	require.NoError(t, err)
	assert.Equal(t, "user-alice", d.UserID)

	grants, err := acls.GetBySource(ctx, d.ID, acl.KindUser)
	require.NoError(t, err)
	require.Len(t, grants, 2)
	perms := []acl.Permission{grants[0].Perm, grants[1].Perm}
	assert.ElementsMatch(t, []acl.Permission{acl.PermRead, acl.PermWrite}, perms)

	got, err := store.Get(ctx, d.ID, targets)
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.ID)
}

func TestGetDeniedReadsAsNotFound(t *testing.T) {
	ctx := context.Background()
	store, _, _ := setupTestStore(t)
	p, _ := alicePrincipal()

	d, err := store.Create(ctx, "secret plans", p)
	require.NoError(t, err)

	// A reader without a grant cannot tell the document exists.
	_, err = store.Get(ctx, d.ID, principal.TargetIDSet{IDs: []string{"user-bob"}})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Get(ctx, "no-such-id", principal.TargetIDSet{IDs: []string{"user-bob"}})
	assert.ErrorIs(t, err, ErrNotFound)

	// A superuser reads everything.
	got, err := store.Get(ctx, d.ID, principal.TargetIDSet{Superuser: true})
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.ID)
}

func TestDeleteRequiresWrite(t *testing.T) {
	ctx := context.Background()
	store, acls, _ := setupTestStore(t)
	p, _ := alicePrincipal()

	d, err := store.Create(ctx, "handbook", p)
	require.NoError(t, err)

	// bob can read but not write.
	require.NoError(t, acls.Create(ctx, &acl.ACL{
		SourceID: d.ID, Perm: acl.PermRead, TargetID: "user-bob",
		TargetType: principal.TargetUser,
	}, p.UserID))

	bob := &principal.Principal{UserID: "user-bob", Username: "bob"}
	err = store.Delete(ctx, d.ID, bob, principal.TargetIDSet{IDs: []string{"user-bob"}})
	assert.ErrorIs(t, err, ErrForbidden)

	// carol cannot even see it.
	carol := &principal.Principal{UserID: "user-carol", Username: "carol"}
	err = store.Delete(ctx, d.ID, carol, principal.TargetIDSet{IDs: []string{"user-carol"}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteCascades(t *testing.T) {
	ctx := context.Background()
	store, _, db := setupTestStore(t)
	p, targets := alicePrincipal()

	d, err := store.Create(ctx, "invoice", p)
	require.NoError(t, err)

	now := time.Now().UTC()
	_, err = db.Exec(
		"INSERT INTO document_tags (id, document_id, tag_id, create_date) VALUES ('dt-1', $1, 'tag-1', $2)",
		d.ID, now,
	)
	require.NoError(t, err)
	_, err = db.Exec(
		"INSERT INTO routes (id, document_id, name, create_date) VALUES ('route-1', $1, 'review', $2)",
		d.ID, now,
	)
	require.NoError(t, err)
	_, err = db.Exec(`
		INSERT INTO route_steps (id, route_id, name, step_type, step_order, target_id, target_type, transitions, create_date)
		VALUES ('step-1', 'route-1', 'check', 'VALIDATE', 0, 'user-bob', 'USER', '[]', $1)`,
		now,
	)
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, d.ID, p, targets))

	exists, err := store.Exists(ctx, d.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	for _, q := range []string{
		"SELECT COUNT(*) FROM acls WHERE source_id = $1 AND delete_date IS NULL",
		"SELECT COUNT(*) FROM document_tags WHERE document_id = $1 AND delete_date IS NULL",
		"SELECT COUNT(*) FROM routes WHERE document_id = $1 AND delete_date IS NULL",
	} {
		var count int
		require.NoError(t, db.QueryRow(q, d.ID).Scan(&count))
		assert.Zero(t, count)
	}
	var steps int
	require.NoError(t, db.QueryRow(
		"SELECT COUNT(*) FROM route_steps WHERE route_id = 'route-1' AND delete_date IS NULL",
	).Scan(&steps))
	assert.Zero(t, steps)
}

func TestOwnedBy(t *testing.T) {
	ctx := context.Background()
	store, _, _ := setupTestStore(t)
	p, _ := alicePrincipal()

	d, err := store.Create(ctx, "notes", p)
	require.NoError(t, err)

	owned, err := store.OwnedBy(ctx, d.ID, "user-alice")
	require.NoError(t, err)
	assert.True(t, owned)

	owned, err = store.OwnedBy(ctx, d.ID, "user-bob")
	require.NoError(t, err)
	assert.False(t, owned)

	owned, err = store.OwnedBy(ctx, "missing", "user-alice")
	require.NoError(t, err)
	assert.False(t, owned)
}
