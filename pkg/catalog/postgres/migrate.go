package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql

	"github.com/marmos91/blobgc/internal/logger"
	"github.com/marmos91/blobgc/pkg/catalog/postgres/migrations"
)

// MigrationsTable is kept apart from the upload service's own migration
// bookkeeping.
const MigrationsTable = "blobgc_schema_migrations"

// MigrationStatus describes the schema version of a catalog.
type MigrationStatus struct {
	Version uint `json:"version" yaml:"version"`
	Dirty   bool `json:"dirty" yaml:"dirty"`
	Applied bool `json:"applied" yaml:"applied"` // false if no migration ever ran
}

func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	driver, err := migratepg.WithInstance(db, &migratepg.Config{
		MigrationsTable: MigrationsTable,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

func openDB(ctx context.Context, connString string) (*sql.DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// runMigrations applies every pending migration. golang-migrate serialises
// concurrent runs with an advisory lock of its own.
func runMigrations(ctx context.Context, connString string) (MigrationStatus, error) {
	logger.Info("Running catalog migrations...")

	db, err := openDB(ctx, connString)
	if err != nil {
		return MigrationStatus{}, err
	}
	defer db.Close()

	m, err := newMigrate(db)
	if err != nil {
		return MigrationStatus{}, err
	}

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Info("No migrations to apply (catalog is up to date)")
	case err != nil:
		return MigrationStatus{}, fmt.Errorf("migration failed: %w", err)
	default:
		logger.Info("Migrations completed successfully")
	}

	status, err := versionOf(m)
	if err != nil {
		return MigrationStatus{}, err
	}
	if status.Dirty {
		logger.Warn("Catalog schema is in dirty state - manual intervention may be required",
			"version", status.Version)
	}
	return status, nil
}

func versionOf(m *migrate.Migrate) (MigrationStatus, error) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return MigrationStatus{}, nil
	}
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("failed to get migration version: %w", err)
	}
	return MigrationStatus{Version: version, Dirty: dirty, Applied: true}, nil
}

// RunMigrations applies the catalog schema (e.g., from the CLI).
func RunMigrations(ctx context.Context, cfg *Config) (MigrationStatus, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return MigrationStatus{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return runMigrations(ctx, cfg.ConnectionString())
}

// GetMigrationStatus reports the applied schema version without changing it.
func GetMigrationStatus(ctx context.Context, cfg *Config) (MigrationStatus, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return MigrationStatus{}, fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := openDB(ctx, cfg.ConnectionString())
	if err != nil {
		return MigrationStatus{}, err
	}
	defer db.Close()

	m, err := newMigrate(db)
	if err != nil {
		return MigrationStatus{}, err
	}
	return versionOf(m)
}
