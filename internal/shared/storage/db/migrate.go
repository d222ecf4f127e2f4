package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const migrationDir = "migrations"

// RunMigrations brings the schema up to the newest embedded migration. It is a
// no-op without a database, which is how the in-memory mode runs.
func RunMigrations(ctx context.Context, database *sql.DB) error {
	if database == nil {
		return nil
	}
	return withGoose(func() error { return goose.UpContext(ctx, database, migrationDir) })
}

// MigrationStatus logs which embedded migrations are applied and which are pending.
func MigrationStatus(ctx context.Context, database *sql.DB) error {
	if database == nil {
		return fmt.Errorf("migration status needs a database")
	}
	return withGoose(func() error { return goose.StatusContext(ctx, database, migrationDir) })
}

func withGoose(run func() error) error {
	goose.SetBaseFS(migrationFiles)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := run(); err != nil {
		return fmt.Errorf("goose: %w", err)
	}
	return nil
}
