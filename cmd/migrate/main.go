package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-booking/internal/db"
	"github.com/hackgods/clinic-appointment-booking/pkg/logging"
)

const usage = "usage: migrate [up | down | force <version>]"

func main() {
	_ = godotenv.Load()
	logger := logging.New(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT")).With().Str("service", "migrate").Logger()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required")
	}
	args := os.Args[1:]
	if len(args) == 0 {
		args = []string{"up"}
	}

	if err := run(dsn, args, logger); err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}
}

func run(dsn string, args []string, logger zerolog.Logger) error {
	switch args[0] {
	case "up", "down":
		if err := db.Migrate(dsn, db.Direction(args[0])); err != nil {
			return err
		}
		logger.Info().Str("direction", args[0]).Msg("migrations applied")
	case "force":
		if len(args) < 2 {
			return fmt.Errorf("force needs a version\n%s", usage)
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("version %q is not an integer", args[1])
		}
		if err := db.Force(dsn, v); err != nil {
			return err
		}
		logger.Info().Int("version", v).Msg("schema version forced")
	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
	return nil
}
