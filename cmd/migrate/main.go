package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog/log"

	"github.com/overseer-bot/shop/internal/pkg/database"
	"github.com/overseer-bot/shop/internal/pkg/env"
	"github.com/overseer-bot/shop/internal/pkg/logging"
)

func main() {
	env.SetupEnvFile()
	logging.Setup(env.GetEnv("LOG_LEVEL", "info"), true)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	settings := database.SettingsFromEnv()
	if settings.Driver == database.DriverMemory {
		log.Fatal().Msg("DB_DRIVER=memory has nothing to migrate")
	}

	log.Info().
		Str("driver", settings.Driver).
		Str("user", settings.User).
		Str("host", settings.Host).
		Str("port", settings.Port).
		Str("database", settings.Name).
		Msg("connecting to database")

	m, err := migrate.New(
		"file://migrations/"+settings.Driver,
		settings.MigrateURL(),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize migrations")
	}

	defer func() {
		if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
			log.Error().AnErr("source", sourceErr).AnErr("database", dbErr).Msg("failed to close migration resources")
		}
	}()

	switch command {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatal().Err(err).Msg("failed to apply migrations")
		} else if errors.Is(err, migrate.ErrNoChange) {
			log.Info().Msg("no change: database is up to date")
		} else {
			log.Info().Msg("migrations applied")
		}

	case "down":
		if err := m.Steps(-1); err != nil {
			log.Fatal().Err(err).Msg("failed to roll back the last migration")
		} else {
			log.Info().Msg("rolled back the last migration")
		}

	case "goto":
		if len(os.Args) < 3 {
			log.Fatal().Msg("goto needs a version number")
		}
		version, err := strconv.ParseUint(os.Args[2], 10, 64)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid version number")
		}

		if err := m.Migrate(uint(version)); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatal().Err(err).Uint64("version", version).Msg("failed to migrate")
		} else if errors.Is(err, migrate.ErrNoChange) {
			log.Info().Uint64("version", version).Msg("no change: database is already at version")
		} else {
			log.Info().Uint64("version", version).Msg("migrated")
		}

	case "status":
		version, dirty, err := m.Version()
		if err != nil {
			if errors.Is(err, migrate.ErrNilVersion) {
				log.Info().Msg("no migrations applied yet")
			} else {
				log.Fatal().Err(err).Msg("failed to read migration version")
			}
		} else {
			log.Info().Uint("version", version).Bool("dirty", dirty).Msg("current migration version")
		}

	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: go run cmd/migrate/main.go [command]")
	fmt.Println("Commands:")
	fmt.Println("  up     - apply all pending migrations")
	fmt.Println("  down   - roll back the last migration")
	fmt.Println("  goto N - migrate to version N")
	fmt.Println("  status - show the current migration version")
}
