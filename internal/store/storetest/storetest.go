// Package storetest provides an in-memory SQLStore for tests.
package storetest

import (
	"context"
	"testing"

	"github.com/robolist/robolist/internal/db"
	"github.com/robolist/robolist/internal/store"
	"github.com/stretchr/testify/require"
)

// New returns a migrated SQLStore on a private in-memory sqlite database.
func New(t testing.TB) *store.SQLStore {
	t.Helper()
	database, err := db.Init("sqlite", ":memory:")
	require.NoError(t, err)
	s := store.NewSQLStore(database, "sqlite")
	require.NoError(t, s.EnsureTable(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}
