package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// SendTx signs a call to `to` with data, broadcasts it and waits until it is mined.
// A mined transaction with a failed status yields ErrTxReverted.
func (s *SigningClient) SendTx(ctx context.Context, to common.Address, data []byte) (*ethtypes.Receipt, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: call data too short", ErrTxSignFailed)
	}

	signed, err := s.signAndBroadcast(ctx, to, data)
	if err != nil {
		return nil, err
	}

	receipt, err := s.waitMined(ctx, signed.Hash())
	if err != nil {
		return nil, err
	}
	if err := validateReceipt(receipt); err != nil {
		walletLogger.Error().
			Str("txHash", signed.Hash().Hex()).
			Uint64("gasUsed", receipt.GasUsed).
			Msg("SendTx: Transaction reverted")
		return receipt, err
	}

	walletLogger.Info().
		Str("txHash", signed.Hash().Hex()).
		Uint64("block", receipt.BlockNumber.Uint64()).
		Uint64("gasUsed", receipt.GasUsed).
		Msg("SendTx: Transaction mined")
	return receipt, nil
}

func (s *SigningClient) signAndBroadcast(ctx context.Context, to common.Address, data []byte) (*ethtypes.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nonce, err := s.backend.PendingNonceAt(ctx, s.from)
	if err != nil {
		return nil, errors.Join(ErrTxBroadcastFailed, fmt.Errorf("failed to read nonce: %w", err))
	}
	gasPrice, err := s.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, errors.Join(ErrTxBroadcastFailed, fmt.Errorf("failed to read gas price: %w", err))
	}
	gasLimit := s.estimateGas(ctx, to, data)

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &to,
		Value:    big.NewInt(0),
		Data:     data,
	})
	signed, err := ethtypes.SignTx(tx, s.signer, s.key)
	if err != nil {
		return nil, errors.Join(ErrTxSignFailed, err)
	}

	walletLogger.Info().
		Str("to", to.Hex()).
		Uint64("nonce", nonce).
		Uint64("gas", gasLimit).
		Str("gasPrice", gasPrice.String()).
		Str("txHash", signed.Hash().Hex()).
		Msg("SendTx: Broadcasting transaction...")

	if err := s.sender.SendTransaction(ctx, signed); err != nil {
		return nil, errors.Join(ErrTxBroadcastFailed, err)
	}
	return signed, nil
}

// estimateGas returns the adjusted estimate, falling back to the default limit when the
// node cannot estimate the call.
func (s *SigningClient) estimateGas(ctx context.Context, to common.Address, data []byte) uint64 {
	estimated, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{From: s.from, To: &to, Data: data})
	if err != nil || estimated == 0 {
		walletLogger.Warn().
			Err(errors.Join(ErrGasEstimateFailure, err)).
			Uint64("defaultGasLimit", s.defaultGasLimit).
			Msg("Gas estimation failed, using default gas limit")
		return s.defaultGasLimit
	}
	return uint64(float64(estimated) * s.gasAdjustment)
}

func (s *SigningClient) waitMined(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, s.receiptTimeout)
	defer cancel()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		receipt, err := s.backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			walletLogger.Debug().Err(err).Str("txHash", hash.Hex()).Msg("Receipt lookup failed, retrying")
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %w", ErrReceiptTimeout, hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// validateReceipt validates the transaction receipt
func validateReceipt(receipt *ethtypes.Receipt) error {
	if receipt == nil {
		return errors.New("transaction receipt is nil")
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: %s", ErrTxReverted, receipt.TxHash.Hex())
	}
	return nil
}
