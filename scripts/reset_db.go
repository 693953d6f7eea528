package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/elys-network/joint/internal/logger"
	"github.com/elys-network/joint/internal/state"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// reset_db wipes the keeper state of the configured store backend. Ledgers hold the
// contributions of live positions, so it refuses to run without -confirm.
func main() {
	confirm := flag.Bool("confirm", false, "actually delete every instance, ledger and report")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "Warning: .env file not found. Relying on OS environment variables.")
	}
	logger.Initialize(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

	backend := os.Getenv("STORE_BACKEND")
	if backend == "" {
		backend = "badger"
	}
	if !*confirm {
		log.Fatal().Str("backend", backend).Msg("Refusing to reset without -confirm")
	}

	var err error
	switch backend {
	case "badger":
		err = resetBadger(os.Getenv("BADGER_PATH"))
	case "postgres":
		err = resetPostgres()
	default:
		err = fmt.Errorf("unknown STORE_BACKEND %q", backend)
	}
	if err != nil {
		log.Fatal().Err(err).Str("backend", backend).Msg("Reset failed")
	}
	log.Info().Str("backend", backend).Msg("Keeper state reset complete")
}

func resetBadger(path string) error {
	if path == "" {
		return errors.New("BADGER_PATH is empty; an in-memory store has nothing to reset")
	}
	store, err := state.OpenBadger(path)
	if err != nil {
		return err
	}
	defer store.Close()

	log.Warn().Str("path", path).Msg("Dropping every badger key")
	return store.Reset()
}

func resetPostgres() error {
	dbCfg := state.DBConfig{
		Host:     envOr("DB_HOST", "localhost"),
		Port:     5432,
		User:     os.Getenv("DB_USER"),
		Password: os.Getenv("DB_PASSWORD"),
		DBName:   os.Getenv("DB_NAME"),
		SSLMode:  envOr("DB_SSLMODE", "disable"),
	}
	if dbCfg.User == "" || dbCfg.DBName == "" {
		return errors.New("DB_USER and DB_NAME must be set")
	}
	if raw := os.Getenv("DB_PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("DB_PORT must be an integer, got: %s", raw)
		}
		dbCfg.Port = port
	}

	log.Info().
		Str("host", dbCfg.Host).
		Int("port", dbCfg.Port).
		Str("dbname", dbCfg.DBName).
		Msg("Connecting to database")
	if err := state.InitDB(dbCfg); err != nil {
		return err
	}
	defer state.CloseDB()

	log.Warn().Strs("tables", state.Tables).Msg("Dropping keeper tables")
	if err := state.DropSchema(); err != nil {
		return err
	}
	return state.EnsureSchema()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
