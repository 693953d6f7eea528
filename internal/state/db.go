package state

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// DSN renders the lib/pq connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	var err error
	DB, err = sql.Open("postgres", cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Str("host", cfg.Host).Str("dbname", cfg.DBName).Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// Tables owned by the keeper, in drop order.
var Tables = []string{"operation_reports", "joint_ledgers", "joint_instances"}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		CREATE TABLE IF NOT EXISTS joint_instances (
			instance_id VARCHAR(64) PRIMARY KEY,
			definition JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Amounts are uint256 token units, stored exactly.
		CREATE TABLE IF NOT EXISTS joint_ledgers (
			instance_id VARCHAR(64) PRIMARY KEY REFERENCES joint_instances(instance_id) ON DELETE CASCADE,
			contributed_a NUMERIC(78, 0) NOT NULL DEFAULT 0,
			contributed_b NUMERIC(78, 0) NOT NULL DEFAULT 0,
			call_id NUMERIC(78, 0) NOT NULL DEFAULT 0,
			put_id NUMERIC(78, 0) NOT NULL DEFAULT 0,
			hedge_budget_bps INTEGER NOT NULL,
			hedge_moneyness_bps INTEGER NOT NULL,
			hedge_period_seconds BIGINT NOT NULL,
			min_time_to_maturity_seconds BIGINT NOT NULL DEFAULT 0,
			cycle BIGINT NOT NULL DEFAULT 0,
			invested_at TIMESTAMPTZ,
			version BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT contributions_both_or_none CHECK ((contributed_a = 0) = (contributed_b = 0)),
			CONSTRAINT hedge_both_or_none CHECK ((call_id = 0) = (put_id = 0))
		);

		CREATE TABLE IF NOT EXISTS operation_reports (
			report_id SERIAL PRIMARY KEY,
			operation_id UUID NOT NULL UNIQUE,
			instance_id VARCHAR(64) NOT NULL,
			operation VARCHAR(50) NOT NULL,
			success BOOLEAN NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ NOT NULL,
			report JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_operation_reports_instance_started ON operation_reports(instance_id, started_at DESC);
		CREATE INDEX IF NOT EXISTS idx_operation_reports_operation ON operation_reports(operation);
	`
	_, err := DB.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// DropSchema removes every keeper table.
func DropSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	for _, table := range Tables {
		if _, err := DB.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE;", table)); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
	}
	return nil
}
