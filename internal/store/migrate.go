package store

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// OpenAndMigrate is the entry point cmd/proxytools uses: it runs
// migrations against dsn using the already-open *sql.DB's driver, then
// returns a ready Postgres store.
func OpenAndMigrate(dsn string, maxConns int) (*Postgres, error) {
	pg, err := Open(dsn, maxConns)
	if err != nil {
		return nil, err
	}
	driver, err := postgres.WithInstance(pg.db, &postgres.Config{})
	if err != nil {
		pg.Close()
		return nil, fmt.Errorf("store: migration driver: %w", err)
	}
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		pg.Close()
		return nil, fmt.Errorf("store: migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		pg.Close()
		return nil, fmt.Errorf("store: migrate instance: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		pg.Close()
		return nil, fmt.Errorf("store: migrate up: %w", err)
	}
	return pg, nil
}
