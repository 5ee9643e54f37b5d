package store

import (
	"context"
	"testing"

	"github.com/robolist/robolist/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRobot struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Views       int64  `json:"views"`
}

var robotName = Unique{"user_id", "name"}

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	database, err := db.Init("sqlite", ":memory:")
	require.NoError(t, err)
	s := NewSQLStore(database, "sqlite")
	require.NoError(t, s.EnsureTable(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLStore_PutGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Put(ctx, "Robot", &testRobot{ID: "r1", UserID: "u1", Name: "arm"})
	require.NoError(t, err)

	var got testRobot
	require.NoError(t, s.Get(ctx, "Robot", "r1", &got))
	assert.Equal(t, "arm", got.Name)

	err = s.Get(ctx, "RobotClass", "r1", &got)
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.Get(ctx, "Robot", "missing", &got)
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.Put(ctx, "Robot", &testRobot{ID: "r1", UserID: "u2", Name: "other"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestSQLStore_UniqueConstraint(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "Robot", &testRobot{ID: "r1", UserID: "u1", Name: "arm"}, robotName))

	err := s.Put(ctx, "Robot", &testRobot{ID: "r2", UserID: "u1", Name: "arm"}, robotName)
	assert.ErrorIs(t, err, ErrConflict)

	// The rejected row must not be left behind.
	var got testRobot
	assert.ErrorIs(t, s.Get(ctx, "Robot", "r2", &got), ErrNotFound)

	// Same name for another owner is fine.
	require.NoError(t, s.Put(ctx, "Robot", &testRobot{ID: "r3", UserID: "u2", Name: "arm"}, robotName))
}

func TestSQLStore_UpdateMovesUniqueGuard(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "Robot", &testRobot{ID: "r1", UserID: "u1", Name: "arm"}, robotName))
	require.NoError(t, s.Put(ctx, "Robot", &testRobot{ID: "r2", UserID: "u1", Name: "leg"}, robotName))

	err := s.Update(ctx, "Robot", "r1", NewUpdate().Set("name", "leg"), robotName)
	assert.ErrorIs(t, err, ErrConflict)

	require.NoError(t, s.Update(ctx, "Robot", "r1", NewUpdate().Set("name", "hand"), robotName))

	// The old name is free again.
	require.NoError(t, s.Put(ctx, "Robot", &testRobot{ID: "r3", UserID: "u1", Name: "arm"}, robotName))

	var got []testRobot
	require.NoError(t, s.Query(ctx, "Robot", "name", "hand", Filter{}, &got))
	require.Len(t, got, 1)
	assert.Equal(t, "r1", got[0].ID)
}

func TestSQLStore_UpdateOperations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "Robot", &testRobot{ID: "r1", UserID: "u1", Name: "arm", Description: "old"}))

	upd := NewUpdate().Add("views", 2).Remove("description")
	require.NoError(t, s.Update(ctx, "Robot", "r1", upd))

	var got testRobot
	require.NoError(t, s.Get(ctx, "Robot", "r1", &got))
	assert.Equal(t, int64(2), got.Views)
	assert.Empty(t, got.Description)

	err := s.Update(ctx, "Robot", "r1", NewUpdate().Add("views", -3).RequireAtLeast("views", 3))
	assert.ErrorIs(t, err, ErrConditionFailed)

	err = s.Update(ctx, "Robot", "missing", NewUpdate().Set("name", "x"))
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.Update(ctx, "Listing", "r1", NewUpdate().Set("name", "x"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStore_UpdateReturning(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "Robot", &testRobot{ID: "r1", UserID: "u1", Name: "arm", Views: 4}))

	var got testRobot
	upd := NewUpdate().Add("views", 1).Add("views", 2).Set("description", "new").Returning(&got)
	require.NoError(t, s.Update(ctx, "Robot", "r1", upd))
	assert.Equal(t, int64(7), got.Views)
	assert.Equal(t, "new", got.Description)
	assert.Equal(t, "arm", got.Name)
}

func TestSQLStore_DeleteIsIdempotentAndReleasesGuards(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "Robot", &testRobot{ID: "r1", UserID: "u1", Name: "arm"}, robotName))
	require.NoError(t, s.Delete(ctx, "r1"))
	require.NoError(t, s.Delete(ctx, "r1"))

	require.NoError(t, s.Put(ctx, "Robot", &testRobot{ID: "r2", UserID: "u1", Name: "arm"}, robotName))

	var got []testRobot
	require.NoError(t, s.Query(ctx, "Robot", "user_id", "u1", Filter{}, &got))
	require.Len(t, got, 1)
	assert.Equal(t, "r2", got[0].ID)
}

func TestSQLStore_ScanAndQueryFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "Robot", &testRobot{ID: "r1", UserID: "u1", Name: "stompy arm"}))
	require.NoError(t, s.Put(ctx, "Robot", &testRobot{ID: "r2", UserID: "u1", Name: "gripper", Description: "two finger arm"}))
	require.NoError(t, s.Put(ctx, "Robot", &testRobot{ID: "r3", UserID: "u2", Name: "leg"}))

	var all []testRobot
	require.NoError(t, s.Scan(ctx, "Robot", Filter{}, &all))
	assert.Len(t, all, 3)

	var matched []testRobot
	search := Filter{Search: "arm", SearchFields: []string{"name", "description"}}
	require.NoError(t, s.Scan(ctx, "Robot", search, &matched))
	assert.Len(t, matched, 2)

	var owned []testRobot
	require.NoError(t, s.Query(ctx, "Robot", "user_id", "u1", Filter{Equals: map[string]any{"name": "gripper"}}, &owned))
	require.Len(t, owned, 1)
	assert.Equal(t, "r2", owned[0].ID)

	var none []testRobot
	require.NoError(t, s.Query(ctx, "RobotClass", "user_id", "u1", Filter{}, &none))
	assert.Empty(t, none)
}
