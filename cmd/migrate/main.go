package main

import (
	"flag"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/session-server-go/internal/database"
)

type migrateConfig struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	direction := flag.String("direction", "up", "migration direction: up or down")
	flag.Parse()

	var cfg migrateConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatal().Err(err).Msg("failed to parse config")
	}

	if err := database.Migrate(cfg.DatabaseURL, *direction); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	log.Info().Str("direction", *direction).Msg("migrations applied")
}
