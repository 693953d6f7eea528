package config

import (
	"github.com/rs/zerolog/log"
)

// Endpoint configuration loaded from environment variables.
var (
	// RPCURL is the JSON-RPC endpoint used for reads and, by default, for sending transactions.
	RPCURL string
	// PrivateTxRPC optionally receives signed transactions instead of RPCURL so swaps stay out of the public mempool.
	PrivateTxRPC string
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	var err error

	RPCURL, err = getEnv("RPC_URL")
	if err != nil {
		return err
	}

	PrivateTxRPC = getEnvDefault("PRIVATE_TX_RPC", "")

	log.Debug().
		Str("RPCURL", RPCURL).
		Bool("PrivateTx", PrivateTxRPC != "").
		Msg("Endpoint configuration loaded successfully.")

	return nil
}
