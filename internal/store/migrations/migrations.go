// Package migrations applies the embedded postgres schema with golang-migrate.
package migrations

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	sourceName   = "iofs"
	databaseName = "postgres"
	sourceDir    = "migrations"
)

// Status describes the schema version recorded in the database.
type Status struct {
	Version uint
	Dirty   bool
	Applied bool
}

// Up applies every pending migration.
func Up(databaseURL string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	migrator, err := newMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer closeMigrator(migrator, logger)

	err = migrator.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("schema up to date")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrations: apply: %w", err)
	}
	version, _, _ := migrator.Version()
	logger.Info("schema migrated", zap.Uint("version", version))
	return nil
}

// Down rolls back the given number of migrations.
func Down(databaseURL string, steps int, logger *zap.Logger) error {
	if steps <= 0 {
		return fmt.Errorf("migrations: steps must be positive, got %d", steps)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	migrator, err := newMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer closeMigrator(migrator, logger)

	if err := migrator.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrations: rollback: %w", err)
	}
	version, _, versionErr := migrator.Version()
	if errors.Is(versionErr, migrate.ErrNilVersion) {
		logger.Info("schema rolled back to empty")
		return nil
	}
	logger.Info("schema rolled back", zap.Uint("version", version))
	return nil
}

// CurrentStatus reports the applied schema version.
func CurrentStatus(databaseURL string) (Status, error) {
	migrator, err := newMigrator(databaseURL)
	if err != nil {
		return Status{}, err
	}
	defer closeMigrator(migrator, zap.NewNop())

	version, dirty, err := migrator.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("migrations: version: %w", err)
	}
	return Status{Version: version, Dirty: dirty, Applied: true}, nil
}

func newMigrator(databaseURL string) (*migrate.Migrate, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("migrations: parse database url: %w", err)
	}
	db := stdlib.OpenDB(*config.ConnConfig)
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: postgres driver: %w", err)
	}
	source, err := iofs.New(migrationsFS, sourceDir)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: source driver: %w", err)
	}
	migrator, err := migrate.NewWithInstance(sourceName, source, databaseName, driver)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: instance: %w", err)
	}
	return migrator, nil
}

func closeMigrator(migrator *migrate.Migrate, logger *zap.Logger) {
	sourceErr, databaseErr := migrator.Close()
	if sourceErr != nil || databaseErr != nil {
		logger.Warn("close migrator", zap.NamedError("source_error", sourceErr), zap.NamedError("database_error", databaseErr))
	}
}
