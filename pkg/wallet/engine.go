package wallet

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/meridian-labs/solagent/internal/core/domain"
	"github.com/meridian-labs/solagent/pkg/logging"
)

// ChainRPC is the slice of the solana RPC surface the wallet needs.
// *rpc.Client satisfies it; tests substitute fakes.
type ChainRPC interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SimulateTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts *rpc.SimulateTransactionOpts) (*rpc.SimulateTransactionResponse, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetTransaction(ctx context.Context, sig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error)
	GetTokenSupply(ctx context.Context, mint solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenSupplyResult, error)
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
}

// SendConfig tunes the send/confirm engine.
type SendConfig struct {
	MaxRetries         int
	RetryDelay         time.Duration
	Commitment         rpc.CommitmentType
	SimulateBeforeSend bool
	ConfirmTimeout     time.Duration
	PollInterval       time.Duration
	FetchComputeUnits  bool
}

// DefaultSendConfig returns the production defaults.
func DefaultSendConfig() SendConfig {
	return SendConfig{
		MaxRetries:         3,
		RetryDelay:         500 * time.Millisecond,
		Commitment:         rpc.CommitmentConfirmed,
		SimulateBeforeSend: true,
		ConfirmTimeout:     60 * time.Second,
		PollInterval:       2 * time.Second,
		FetchComputeUnits:  true,
	}
}

func (c SendConfig) withDefaults() SendConfig {
	d := DefaultSendConfig()
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.Commitment == "" {
		c.Commitment = d.Commitment
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = d.ConfirmTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	return c
}

// SignFunc signs a transaction in place. It is the only way the engine
// obtains a signed artifact; the raw secret never reaches this package.
type SignFunc func(tx *solana.Transaction) error

// SendAndConfirm drives one transaction through blockhash refresh, optional
// simulation, submission, and confirmation polling. Terminal outcomes come
// back as a non-confirmed TxResult; the only returned error is a signer
// failure, which is never retried.
func SendAndConfirm(ctx context.Context, tx *solana.Transaction, sign SignFunc, client ChainRPC, cfg SendConfig, log *logging.Logger) (*domain.TxResult, error) {
	cfg = cfg.withDefaults()

	delay := cfg.RetryDelay
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return &domain.TxResult{Status: domain.TxTimeout, Error: ctx.Err().Error()}, nil
			case <-time.After(delay):
			}
			delay *= 2
		}

		blockhash, err := client.GetLatestBlockhash(ctx, cfg.Commitment)
		if err != nil {
			lastErr = err
			log.Warn("blockhash fetch failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		tx.Message.RecentBlockhash = blockhash.Value.Blockhash

		if err := sign(tx); err != nil {
			return nil, domain.Errorf(domain.CodeSigningFailed, "transaction signing failed: %v", err)
		}

		if cfg.SimulateBeforeSend {
			sim, err := client.SimulateTransactionWithOpts(ctx, tx, &rpc.SimulateTransactionOpts{
				Commitment: cfg.Commitment,
			})
			if err != nil {
				lastErr = err
				log.Warn("simulation rpc failed", zap.Int("attempt", attempt), zap.Error(err))
				continue
			}
			if sim.Value != nil && sim.Value.Err != nil {
				return &domain.TxResult{
					Status: domain.TxSimulated,
					Error:  fmt.Sprintf("simulation rejected: %v", sim.Value.Err),
				}, nil
			}
		}

		// Preflight already happened above; no client-side preflight, no
		// server-side resubmission.
		zeroRetries := uint(0)
		sig, err := client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
			SkipPreflight:       true,
			MaxRetries:          &zeroRetries,
			PreflightCommitment: cfg.Commitment,
		})
		if err != nil {
			if isBlockhashExpired(err) {
				lastErr = err
				log.Warn("blockhash expired before submission", zap.Int("attempt", attempt))
				continue
			}
			if isTerminalSendError(err) {
				return &domain.TxResult{Status: domain.TxFailed, Error: err.Error()}, nil
			}
			lastErr = err
			log.Warn("submission failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		return confirmSignature(ctx, sig, client, cfg, log), nil
	}

	return &domain.TxResult{
		Status: domain.TxTimeout,
		Error:  fmt.Sprintf("Exhausted %d attempts: %v", cfg.MaxRetries, lastErr),
	}, nil
}

// confirmSignature polls signature status until the configured commitment is
// reached, the chain reports an error, or the confirmation window closes.
func confirmSignature(ctx context.Context, sig solana.Signature, client ChainRPC, cfg SendConfig, log *logging.Logger) *domain.TxResult {
	deadline := time.Now().Add(cfg.ConfirmTimeout)
	for {
		statuses, err := client.GetSignatureStatuses(ctx, true, sig)
		if err != nil {
			log.Warn("status poll failed", zap.String("signature", sig.String()), zap.Error(err))
		} else if len(statuses.Value) > 0 && statuses.Value[0] != nil {
			st := statuses.Value[0]
			if st.Err != nil {
				return &domain.TxResult{
					Signature: sig.String(),
					Status:    domain.TxFailed,
					Slot:      st.Slot,
					Error:     fmt.Sprintf("transaction failed on chain: %v", st.Err),
				}
			}
			if commitmentReached(st.ConfirmationStatus, cfg.Commitment) {
				result := &domain.TxResult{
					Signature: sig.String(),
					Status:    domain.TxConfirmed,
					Slot:      st.Slot,
				}
				if cfg.FetchComputeUnits {
					result.ComputeUnits = fetchComputeUnits(ctx, sig, client, cfg)
				}
				return result
			}
		}

		if time.Now().After(deadline) {
			// The transaction may still land; callers must not record spend.
			return &domain.TxResult{
				Signature: sig.String(),
				Status:    domain.TxTimeout,
				Error:     fmt.Sprintf("confirmation not reached within %s", cfg.ConfirmTimeout),
			}
		}
		select {
		case <-ctx.Done():
			return &domain.TxResult{Signature: sig.String(), Status: domain.TxTimeout, Error: ctx.Err().Error()}
		case <-time.After(cfg.PollInterval):
		}
	}
}

func fetchComputeUnits(ctx context.Context, sig solana.Signature, client ChainRPC, cfg SendConfig) uint64 {
	maxVersion := uint64(0)
	txResult, err := client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Commitment:                     cfg.Commitment,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil || txResult == nil || txResult.Meta == nil || txResult.Meta.ComputeUnitsConsumed == nil {
		return 0
	}
	return *txResult.Meta.ComputeUnitsConsumed
}

// commitmentReached reports whether a reported confirmation status satisfies
// the configured commitment level.
func commitmentReached(got rpc.ConfirmationStatusType, want rpc.CommitmentType) bool {
	rank := func(s string) int {
		switch s {
		case string(rpc.ConfirmationStatusProcessed):
			return 1
		case string(rpc.ConfirmationStatusConfirmed):
			return 2
		case string(rpc.ConfirmationStatusFinalized):
			return 3
		}
		return 0
	}
	wantRank := rank(string(want))
	if wantRank == 0 {
		wantRank = 2
	}
	return rank(string(got)) >= wantRank
}

func isBlockhashExpired(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "BlockhashNotFound") ||
		strings.Contains(msg, "blockhash not found") ||
		strings.Contains(msg, "Blockhash not found")
}

// isTerminalSendError recognizes submission rejections that no retry can fix.
func isTerminalSendError(err error) bool {
	msg := err.Error()
	for _, marker := range []string{
		"custom program error",
		"InstructionError",
		"insufficient funds",
		"insufficient lamports",
		"AccountNotFound",
		"InvalidAccountData",
		"already processed",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
