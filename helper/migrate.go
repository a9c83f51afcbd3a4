package helper

//nolint:revive
import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog/log"

	"mlaku/config"
	"mlaku/infras/postgres"
)

const migrationSource = "file://migrations/postgres"

const (
	ActionUp     = "up"
	ActionDown   = "down"
	ActionStepUp = "step-up"
	ActionDrop   = "drop"
)

func getConnection(config *config.Config) (*migrate.Migrate, error) {
	pg := config.DB.Postgres
	name := pg.Write.Name

	if pg.Prefix != "" {
		name = pg.Prefix + name
	}

	dsn := postgres.DSN(pg.Write.Username, pg.Write.Password, pg.Write.Host, pg.Write.Port, name, pg.Write.SSLMode)

	mig, err := migrate.New(migrationSource, dsn+"&x-migrations-table="+pg.MigrationTable)
	if err != nil {
		return nil, fmt.Errorf("error creating migrate instance: %w", err)
	}

	return mig, nil
}

// Runner applies a single migration action against the write database.
func Runner(config *config.Config, action string) error {
	mig, err := getConnection(config)
	if err != nil {
		return err
	}

	defer mig.Close()

	var run func() error

	switch action {
	case ActionUp:
		run = mig.Up
	case ActionDown:
		run = func() error { return mig.Steps(-1) }
	case ActionStepUp:
		run = func() error { return mig.Steps(1) }
	case ActionDrop:
		run = mig.Down
	default:
		return fmt.Errorf("unknown migration action %q", action)
	}

	if err := run(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("error running migration %s: %w", action, err)
	}

	version, dirty, err := mig.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("error reading migration version: %w", err)
	}

	log.Info().Str("action", action).Uint("version", version).Bool("dirty", dirty).Msg("Database migration finished")

	return nil
}

// AutoMigrate runs pending migrations on boot when enabled.
func AutoMigrate(config *config.Config) {
	if !config.DB.Postgres.AutoMigrate {
		return
	}

	if err := Runner(config, ActionUp); err != nil {
		log.Fatal().Err(err).Msg("Failed to auto migrate database")
	}
}
