// Package migrations embeds the PLS schema and applies it with
// golang-migrate. Embedding the SQL with go:embed instead of a relative
// filesystem path keeps Up reproducible regardless of the binary's working
// directory.
package migrations

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed *.sql
var fs embed.FS

// Up applies every pending migration against the database reachable
// through driver, which the caller obtains from a *sql.DB via
// postgres.WithInstance (see internal/adapters/postgres.Pool.runMigrations).
func Up(driver database.Driver, databaseName string) error {
	src, err := iofs.New(fs, ".")
	if err != nil {
		return fmt.Errorf("migrations: open embedded source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, databaseName, driver)
	if err != nil {
		return fmt.Errorf("migrations: build migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrations: up: %w", err)
	}

	return nil
}
