package store

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/sirupsen/logrus"
)

const migrationsTable = "schema_migrations"

func newMigrator(db *sql.DB, migrationsDir string) (*migrate.Migrate, error) {
	abs, err := filepath.Abs(migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("resolve migrations dir: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable: migrationsTable,
	})
	if err != nil {
		return nil, fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+filepath.ToSlash(abs), "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

// ApplyMigrations brings the schema up to the newest *.up.sql in migrationsDir.
func ApplyMigrations(db *sql.DB, migrationsDir string, log logrus.FieldLogger) error {
	m, err := newMigrator(db, migrationsDir)
	if err != nil {
		return err
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		log.Info("no migrations applied yet")
	case err != nil:
		return fmt.Errorf("read migration version: %w", err)
	default:
		log.WithFields(logrus.Fields{"version": version, "dirty": dirty}).Info("current migration version")
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("schema is up to date")
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, _, _ = m.Version()
	log.WithField("version", version).Info("migrations applied")
	return nil
}

// RollbackMigrations applies every *.down.sql. Used by integration tests.
func RollbackMigrations(db *sql.DB, migrationsDir string) error {
	m, err := newMigrator(db, migrationsDir)
	if err != nil {
		return err
	}
	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("rollback migrations: %w", err)
	}
	return nil
}
