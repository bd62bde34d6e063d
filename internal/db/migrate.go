package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/hackgods/clinic-appointment-booking/migrations"
)

// Direction selects which way Migrate moves the schema.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Migrate applies the embedded migrations. ErrNoChange is not an error.
func Migrate(dsn string, dir Direction) error {
	return withMigrator(dsn, func(m *migrate.Migrate) error {
		var err error
		switch dir {
		case Up:
			err = m.Up()
		case Down:
			err = m.Down()
		default:
			return fmt.Errorf("unknown migration direction %q", dir)
		}
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate %s: %w", dir, err)
		}
		return nil
	})
}

// Force sets the recorded schema version without running migrations, clearing a dirty flag.
func Force(dsn string, version int) error {
	return withMigrator(dsn, func(m *migrate.Migrate) error {
		if err := m.Force(version); err != nil {
			return fmt.Errorf("force version %d: %w", version, err)
		}
		return nil
	})
}

func withMigrator(dsn string, fn func(m *migrate.Migrate) error) error {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if err := conn.Ping(); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}

	dbDriver, err := postgres.WithInstance(conn, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("db driver: %w", err)
	}

	srcDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("source driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	return fn(m)
}
