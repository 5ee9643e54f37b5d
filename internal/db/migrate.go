package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

// ItemTables are the tables backing the SQL item store.
var ItemTables = []string{"items", "item_index", "unique_keys"}

func dialect(driver string) (goose.Dialect, error) {
	switch driver {
	case "sqlite":
		return goose.DialectSQLite3, nil
	case "pgx":
		return goose.DialectPostgres, nil
	}
	return "", fmt.Errorf("unsupported database driver %q", driver)
}

func newProvider(db *sql.DB, driver string) (*goose.Provider, error) {
	d, err := dialect(driver)
	if err != nil {
		return nil, err
	}
	migrations, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open migrations: %w", err)
	}
	p, err := goose.NewProvider(d, db, migrations)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration provider: %w", err)
	}
	return p, nil
}

// Migrate creates or upgrades the item tables and checks they exist.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	p, err := newProvider(db, driver)
	if err != nil {
		return err
	}
	results, err := p.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to migrate item tables: %w", err)
	}
	for _, r := range results {
		slog.Info("applied item store migration", "version", r.Source.Version, "file", r.Source.Path, "duration", r.Duration)
	}

	missing, err := missingTables(ctx, db, driver)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("item store tables missing after migration: %v", missing)
	}
	return nil
}

// Reset rolls back every migration, dropping the item tables.
func Reset(ctx context.Context, db *sql.DB, driver string) error {
	p, err := newProvider(db, driver)
	if err != nil {
		return err
	}
	results, err := p.DownTo(ctx, 0)
	if err != nil && !errors.Is(err, goose.ErrNoNextVersion) {
		return fmt.Errorf("failed to drop item tables: %w", err)
	}
	slog.Warn("dropped item store tables", "driver", driver, "migrations", len(results))
	return nil
}

func missingTables(ctx context.Context, db *sql.DB, driver string) ([]string, error) {
	query := `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = $1`
	if driver == "pgx" {
		query = `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1`
	}
	var missing []string
	for _, table := range ItemTables {
		var n int
		err := db.QueryRowContext(ctx, query, table).Scan(&n)
		if err != nil {
			return nil, fmt.Errorf("failed to check table %s: %w", table, err)
		}
		if n == 0 {
			missing = append(missing, table)
		}
	}
	return missing, nil
}
