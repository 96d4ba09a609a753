// Command initdb creates or upgrades the SQLite schema at DB_PATH without
// starting the server.
package main

import (
	"os"

	"github.com/ad/go-hooks-academy/internal/db"
	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "hooks.db"
	}

	logger.Info().Str("path", dbPath).Msg("initializing schema")
	database, err := db.Open(dbPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer database.Close()

	logger.Info().Str("path", dbPath).Msg("schema is up to date")
}
