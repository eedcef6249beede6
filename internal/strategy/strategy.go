// Package strategy holds the closed set of trading strategies the runtime
// can run. Strategies decide an Action from a balance snapshot and execute
// it through the wallet capability and the swap registry; they can never
// reach the signing secret.
package strategy

import (
	"context"
	"fmt"
	"strconv"

	"github.com/meridian-labs/solagent/internal/adapters/price"
	"github.com/meridian-labs/solagent/internal/adapters/swap"
	"github.com/meridian-labs/solagent/internal/core/domain"
	"github.com/meridian-labs/solagent/pkg/logging"
	"github.com/meridian-labs/solagent/pkg/wallet"
)

// WrappedSolMint is the native-SOL mint used as the default swap input.
const WrappedSolMint = "So11111111111111111111111111111111111111112"

// QuoteSource is the slice of the swap registry the strategies use.
// *swap.Registry satisfies it; the loop tests pass nil because their
// strategies never call it.
type QuoteSource interface {
	Get(name string) (swap.Adapter, error)
	GetBestQuote(ctx context.Context, inputMint, outputMint string, amountIn uint64) (*domain.Quote, error)
}

// Strategy is the decision/execution contract the agent loop drives.
// Decide must not perform I/O beyond read-only price lookups; Execute owns
// the side effects.
type Strategy interface {
	Name() string
	// TrackedMints lists the token balances the loop gathers each tick.
	TrackedMints() []string
	Decide(ctx context.Context, state *domain.AgentState) (*domain.Action, error)
	Execute(ctx context.Context, action *domain.Action, w *wallet.Client, quotes QuoteSource) (*domain.TxResult, error)
}

// Known strategy names. The set is closed; the config loader rejects
// anything else.
const (
	NameDCA         = "dca"
	NameRebalancer  = "rebalancer"
	NameMonitor     = "monitor"
	NameMarketMaker = "market_maker"
)

// New builds a strategy by name from its free-form parameter map.
func New(name string, params map[string]interface{}, prices price.Feed, log *logging.Logger) (Strategy, error) {
	switch name {
	case NameDCA:
		return newDCA(params, log)
	case NameRebalancer:
		return newRebalancer(params, log)
	case NameMonitor:
		return newMonitor(params, prices, log)
	case NameMarketMaker:
		return newMarketMaker(params, prices, log)
	default:
		return nil, domain.Errorf(domain.CodeInvalidConfig,
			"unknown strategy %q: must be one of dca, rebalancer, monitor, market_maker", name)
	}
}

// executeSwapAction routes a swap action through the registry: best quote
// unless the action pins a provider, then the provider's Swap.
func executeSwapAction(ctx context.Context, p *domain.SwapParams, w *wallet.Client, quotes QuoteSource) (*domain.TxResult, error) {
	var quote *domain.Quote
	var err error
	if p.Provider != "" {
		adapter, getErr := quotes.Get(p.Provider)
		if getErr != nil {
			return nil, getErr
		}
		quote, err = adapter.Quote(ctx, p.InputMint, p.OutputMint, p.AmountIn, p.SlippageBps)
	} else {
		quote, err = quotes.GetBestQuote(ctx, p.InputMint, p.OutputMint, p.AmountIn)
	}
	if err != nil {
		return nil, err
	}

	adapter, err := quotes.Get(quote.Provider)
	if err != nil {
		return nil, err
	}
	result, err := adapter.Swap(ctx, w, quote, p.SlippageBps)
	if err != nil {
		return nil, err
	}
	return &result.TxResult, nil
}

// Parameter readers for the free-form JSON maps. JSON numbers arrive as
// float64; amounts may also arrive as strings to keep lamport precision.

func paramString(params map[string]interface{}, key, fallback string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func paramUint64(params map[string]interface{}, key string, fallback uint64) (uint64, error) {
	raw, ok := params[key]
	if !ok {
		return fallback, nil
	}
	switch v := raw.(type) {
	case float64:
		if v < 0 {
			return 0, fmt.Errorf("parameter %q must not be negative", key)
		}
		return uint64(v), nil
	case string:
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parameter %q is not a valid integer: %v", key, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("parameter %q has unsupported type %T", key, raw)
	}
}

func paramInt(params map[string]interface{}, key string, fallback int) (int, error) {
	n, err := paramUint64(params, key, uint64(fallback))
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func paramFloat(params map[string]interface{}, key string, fallback float64) (float64, error) {
	raw, ok := params[key]
	if !ok {
		return fallback, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("parameter %q is not a valid number: %v", key, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("parameter %q has unsupported type %T", key, raw)
	}
}
