// Package swap holds the swap adapters and the registry that races them.
// Adapters quote over HTTP and execute through the wallet capability; they
// never see the signing secret.
package swap

import (
	"context"

	"github.com/meridian-labs/solagent/internal/core/domain"
	"github.com/meridian-labs/solagent/pkg/wallet"
)

// Adapter is one swap provider.
//
// Swap hands its built transaction to wallet.SignAndSendTransaction with the
// live quote's input amount; that call is the guard-crossing point for every
// swap in the system.
type Adapter interface {
	Name() string
	Quote(ctx context.Context, inputMint, outputMint string, amountIn uint64, slippageBps int) (*domain.Quote, error)
	Swap(ctx context.Context, w *wallet.Client, quote *domain.Quote, slippageBps int) (*domain.SwapResult, error)
}
