package groups

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupIDsForUserChain(t *testing.T) {
	ctx := context.Background()
	store, db := newTestStore(t)

	// d -> c -> b -> a, user is a direct member of d only.
	a, err := store.Create(ctx, "a", "", "user-admin")
	require.NoError(t, err)
	b, err := store.Create(ctx, "b", "a", "user-admin")
	require.NoError(t, err)
	c, err := store.Create(ctx, "c", "b", "user-admin")
	require.NoError(t, err)
	d, err := store.Create(ctx, "d", "c", "user-admin")
	require.NoError(t, err)

	alice := insertUser(t, db, "alice")
	require.NoError(t, store.AddMember(ctx, d.ID, alice))

	ids, err := store.GroupIDsForUser(ctx, alice, true)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, b.ID, c.ID, d.ID}, ids)

	ids, err = store.GroupIDsForUser(ctx, alice, false)
	require.NoError(t, err)
	assert.Equal(t, []string{d.ID}, ids)
}

func TestGroupIDsForUserSharedAncestor(t *testing.T) {
	ctx := context.Background()
	store, db := newTestStore(t)

	root, err := store.Create(ctx, "root", "", "user-admin")
	require.NoError(t, err)
	left, err := store.Create(ctx, "left", "root", "user-admin")
	require.NoError(t, err)
	right, err := store.Create(ctx, "right", "root", "user-admin")
	require.NoError(t, err)

	alice := insertUser(t, db, "alice")
	require.NoError(t, store.AddMember(ctx, left.ID, alice))
	require.NoError(t, store.AddMember(ctx, right.ID, alice))

	ids, err := store.GroupIDsForUser(ctx, alice, true)
	require.NoError(t, err)
	// The shared ancestor appears exactly once.
	assert.ElementsMatch(t, []string{root.ID, left.ID, right.ID}, ids)
}

func TestGroupIDsForUserCycleTerminates(t *testing.T) {
	ctx := context.Background()
	store, db := newTestStore(t)

	a, err := store.Create(ctx, "a", "", "user-admin")
	require.NoError(t, err)
	b, err := store.Create(ctx, "b", "a", "user-admin")
	require.NoError(t, err)

	// Corrupt the hierarchy into a cycle a -> b -> a.
	_, err = db.Exec("UPDATE groups SET parent_id = $1 WHERE id = $2", b.ID, a.ID)
	require.NoError(t, err)

	alice := insertUser(t, db, "alice")
	require.NoError(t, store.AddMember(ctx, b.ID, alice))

	done := make(chan struct{})
	var ids []string
	go func() {
		defer close(done)
		ids, err = store.GroupIDsForUser(ctx, alice, true)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("hierarchy walk did not terminate on a cycle")
	}
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)
}

func TestGroupIDsForUserSkipsDeletedGroups(t *testing.T) {
	ctx := context.Background()
	store, db := newTestStore(t)

	parent, err := store.Create(ctx, "parent", "", "user-admin")
	require.NoError(t, err)
	child, err := store.Create(ctx, "child", "parent", "user-admin")
	require.NoError(t, err)

	alice := insertUser(t, db, "alice")
	require.NoError(t, store.AddMember(ctx, child.ID, alice))

	// Soft-delete the parent directly; the walk must skip it.
	_, err = db.Exec("UPDATE groups SET delete_date = $1 WHERE id = $2", time.Now().UTC(), parent.ID)
	require.NoError(t, err)

	ids, err := store.GroupIDsForUser(ctx, alice, true)
	require.NoError(t, err)
	assert.Equal(t, []string{child.ID}, ids)
}
