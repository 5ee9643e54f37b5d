package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateAndReset(t *testing.T) {
	ctx := context.Background()
	database, err := Init("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(database) })

	missing, err := missingTables(ctx, database.DB, "sqlite")
	require.NoError(t, err)
	assert.Equal(t, ItemTables, missing)

	require.NoError(t, Migrate(ctx, database.DB, "sqlite"))
	require.NoError(t, Migrate(ctx, database.DB, "sqlite"))

	missing, err = missingTables(ctx, database.DB, "sqlite")
	require.NoError(t, err)
	assert.Empty(t, missing)

	require.NoError(t, Reset(ctx, database.DB, "sqlite"))
	missing, err = missingTables(ctx, database.DB, "sqlite")
	require.NoError(t, err)
	assert.Equal(t, ItemTables, missing)
}

func TestMigrateRejectsUnknownDriver(t *testing.T) {
	database, err := Init("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(database) })

	err = Migrate(context.Background(), database.DB, "mysql")
	assert.ErrorContains(t, err, `unsupported database driver "mysql"`)
}
