package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// NewMigrator builds a migrate instance over the embedded scripts for
// the given dialect, bound to an already open connection.
func NewMigrator(db *sql.DB, d Dialect) (*migrate.Migrate, error) {
	const op = "database.NewMigrator"

	src, err := iofs.New(migrationsFS, "migrations/"+string(d))
	if err != nil {
		return nil, fmt.Errorf("%s: source: %w", op, err)
	}

	var drv migratedb.Driver
	switch d {
	case Postgres:
		drv, err = migratepgx.WithInstance(db, &migratepgx.Config{})
	default:
		drv, err = migratemysql.WithInstance(db, &migratemysql.Config{})
	}
	if err != nil {
		return nil, fmt.Errorf("%s: driver: %w", op, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, string(d), drv)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return m, nil
}

// MigrateUp applies every pending migration.  Having nothing to apply is
// not an error.
func MigrateUp(db *sql.DB, d Dialect, log *slog.Logger) error {
	m, err := NewMigrator(db, d)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("no migrations to apply", slog.String("dialect", string(d)))
			return nil
		}
		return fmt.Errorf("database.MigrateUp: %w", err)
	}
	v, _, _ := m.Version()
	log.Info("migrations applied", slog.String("dialect", string(d)), slog.Uint64("version", uint64(v)))
	return nil
}
