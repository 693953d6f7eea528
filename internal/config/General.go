package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
)

const (
	ModeLive  = "live"
	ModePaper = "paper"

	StoreBackendPostgres = "postgres"
	StoreBackendBadger   = "badger"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// Mode selects the venue: "live" broadcasts real transactions, "paper" runs against the in-memory venue.
	Mode string

	// ChainID is the EIP-155 chain id of the target network.
	ChainID uint64
	// KeeperPrivateKey is the hex key of the account that holds the joint funds. Live mode only.
	KeeperPrivateKey string

	// DefaultGasLimit is the fallback gas limit if estimation fails.
	DefaultGasLimit uint64
	// GasAdjustment is the multiplier applied to estimated gas.
	GasAdjustment float64
	// SwapSlippageBps bounds the minimum output accepted by live swaps and liquidity operations.
	SwapSlippageBps uint32

	// InstancesFile is the YAML file with the instance definitions.
	InstancesFile string

	// StoreBackend is "postgres" or "badger".
	StoreBackend string
	// BadgerPath is the badger directory; empty keeps the store in memory.
	BadgerPath string

	// RedisAddr enables the cross-process operation lock when set.
	RedisAddr string
	// LockTTL bounds how long one operation may hold the instance lock.
	LockTTL time.Duration

	WebPort string
	// APIKeys maps bearer tokens to the caller identity they act as.
	APIKeys map[string]common.Address

	// EpochSchedule is the cron spec used to check epoch boundaries.
	EpochSchedule string
	// ProjectionSchedule is the cron spec used to refresh projections.
	ProjectionSchedule string
	// EpochReturnFunds makes scheduled harvests send the proceeds back to the providers.
	EpochReturnFunds bool

	LogLevel  string
	LogFormat string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	Mode = getEnvDefault("JOINT_MODE", ModePaper)
	if Mode != ModeLive && Mode != ModePaper {
		return fmt.Errorf("JOINT_MODE must be %q or %q, got: %s", ModeLive, ModePaper, Mode)
	}

	if Mode == ModeLive {
		ChainID, err = getEnvAsUint64("CHAIN_ID")
		if err != nil {
			return err
		}

		KeeperPrivateKey, err = getEnv("KEEPER_PRIVATE_KEY")
		if err != nil {
			return err
		}

		DefaultGasLimit, err = getEnvAsUint64("GAS_DEFAULT_LIMIT")
		if err != nil {
			return err
		}

		GasAdjustment, err = getEnvAsFloat64("GAS_ADJUSTMENT")
		if err != nil {
			return err
		}

		slippage, err := getEnvAsUint64Default("SWAP_SLIPPAGE_BPS", 100)
		if err != nil {
			return err
		}
		if slippage >= 10000 {
			return fmt.Errorf("SWAP_SLIPPAGE_BPS must be below 10000, got: %d", slippage)
		}
		SwapSlippageBps = uint32(slippage)

		// Load endpoint configuration
		if err := loadEndpointConfig(); err != nil {
			return err
		}
	}

	InstancesFile, err = getEnv("INSTANCES_FILE")
	if err != nil {
		return err
	}
	InstancesFile, err = expandHome(InstancesFile)
	if err != nil {
		return err
	}

	StoreBackend = getEnvDefault("STORE_BACKEND", StoreBackendBadger)
	if StoreBackend != StoreBackendPostgres && StoreBackend != StoreBackendBadger {
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got: %s", StoreBackendPostgres, StoreBackendBadger, StoreBackend)
	}
	BadgerPath, err = expandHome(getEnvDefault("BADGER_PATH", ""))
	if err != nil {
		return err
	}

	RedisAddr = getEnvDefault("REDIS_ADDR", "")
	LockTTL, err = getEnvAsDuration("LOCK_TTL", 5*time.Minute)
	if err != nil {
		return err
	}

	WebPort = getEnvDefault("WEB_PORT", "8080")
	APIKeys, err = ParseAPIKeys(getEnvDefault("API_KEYS", ""))
	if err != nil {
		return err
	}

	EpochSchedule = getEnvDefault("EPOCH_SCHEDULE", "@every 10m")
	ProjectionSchedule = getEnvDefault("PROJECTION_SCHEDULE", "@every 1m")
	EpochReturnFunds, err = strconv.ParseBool(getEnvDefault("EPOCH_RETURN_FUNDS", "false"))
	if err != nil {
		return errors.New("environment variable EPOCH_RETURN_FUNDS must be a boolean")
	}

	LogLevel = getEnvDefault("LOG_LEVEL", "info")
	LogFormat = getEnvDefault("LOG_FORMAT", "console")

	log.Debug().
		Str("Mode", Mode).
		Uint64("ChainID", ChainID).
		Str("StoreBackend", StoreBackend).
		Int("APIKeys", len(APIKeys)).
		Msg("Configuration loaded successfully.")

	return nil
}

// ParseAPIKeys parses "token:0xaddress" pairs separated by commas.
func ParseAPIKeys(raw string) (map[string]common.Address, error) {
	keys := make(map[string]common.Address)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		token, addr, ok := strings.Cut(entry, ":")
		if !ok || token == "" {
			return nil, errors.New("API_KEYS entries must look like token:0xaddress")
		}
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("API_KEYS entry for token %s... has an invalid address: %s", mask(token), addr)
		}
		keys[token] = common.HexToAddress(addr)
	}
	return keys, nil
}

func mask(token string) string {
	if len(token) <= 4 {
		return token
	}
	return token[:4]
}

// Expand the tilde (~) to the user's home directory.
func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, path[2:]), nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvDefault retrieves a string environment variable, falling back when unset or empty.
func getEnvDefault(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

func getEnvAsUint64Default(key string, fallback uint64) (uint64, error) {
	if getEnvDefault(key, "") == "" {
		return fallback, nil
	}
	return getEnvAsUint64(key)
}

// getEnvAsFloat64 retrieves an environment variable as a float64. Returns error if not set or invalid.
func getEnvAsFloat64(key string) (float64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid float64, got: " + valueStr)
	}
	return value, nil
}

func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	valueStr := getEnvDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid duration, got: " + valueStr)
	}
	return value, nil
}
