package strategy

import (
	"context"
	"fmt"

	"github.com/meridian-labs/solagent/internal/core/domain"
	"github.com/meridian-labs/solagent/pkg/logging"
	"github.com/meridian-labs/solagent/pkg/wallet"
)

// rebalancer keeps the SOL balance inside a [minSol, maxSol] band. Excess SOL
// is swapped into the target mint; when SOL runs low, token holdings are sold
// back. Band edges rather than a single target keep the strategy from
// oscillating on every tick.
type rebalancer struct {
	mint        string
	minLamports uint64
	maxLamports uint64
	chunk       uint64 // max lamports swapped per above-band rebalance; below-band sells are sized by holdings
	slippageBps int
	log         *logging.Logger
}

func newRebalancer(params map[string]interface{}, log *logging.Logger) (Strategy, error) {
	mint := paramString(params, "mint", "")
	if mint == "" {
		return nil, domain.NewError(domain.CodeInvalidConfig, "rebalancer requires a mint parameter")
	}
	minSol, err := paramFloat(params, "minSol", 0)
	if err != nil {
		return nil, domain.Errorf(domain.CodeInvalidConfig, "rebalancer: %v", err)
	}
	maxSol, err := paramFloat(params, "maxSol", 0)
	if err != nil {
		return nil, domain.Errorf(domain.CodeInvalidConfig, "rebalancer: %v", err)
	}
	minLamports := domain.SolToLamports(minSol)
	maxLamports := domain.SolToLamports(maxSol)
	if minLamports == 0 || maxLamports <= minLamports {
		return nil, domain.NewError(domain.CodeInvalidConfig, "rebalancer requires 0 < minSol < maxSol")
	}
	chunk, err := paramUint64(params, "chunkLamports", (maxLamports-minLamports)/2)
	if err != nil || chunk == 0 {
		return nil, domain.NewError(domain.CodeInvalidConfig, "rebalancer: chunkLamports must be a positive integer")
	}
	slippageBps, err := paramInt(params, "slippageBps", 50)
	if err != nil {
		return nil, domain.Errorf(domain.CodeInvalidConfig, "rebalancer: %v", err)
	}

	return &rebalancer{
		mint:        mint,
		minLamports: minLamports,
		maxLamports: maxLamports,
		chunk:       chunk,
		slippageBps: slippageBps,
		log:         log,
	}, nil
}

func (s *rebalancer) Name() string { return NameRebalancer }

func (s *rebalancer) TrackedMints() []string {
	return []string{s.mint}
}

func (s *rebalancer) Decide(ctx context.Context, state *domain.AgentState) (*domain.Action, error) {
	switch {
	case state.SolBalance > s.maxLamports:
		excess := state.SolBalance - s.maxLamports
		if excess > s.chunk {
			excess = s.chunk
		}
		return &domain.Action{
			Kind: domain.ActionSwap,
			Swap: &domain.SwapParams{
				InputMint:   WrappedSolMint,
				OutputMint:  s.mint,
				AmountIn:    excess,
				SlippageBps: s.slippageBps,
			},
			Rationale: fmt.Sprintf("SOL balance %s above band max %s, deploying %s",
				domain.FormatSol(state.SolBalance), domain.FormatSol(s.maxLamports), domain.FormatSol(excess)),
		}, nil

	case state.SolBalance < s.minLamports:
		held := state.TokenBalances[s.mint]
		if held == 0 {
			return domain.Noop("SOL below band min but no token holdings to sell"), nil
		}
		// Sell a half of holdings per tick; the swap quote prices it.
		sell := held / 2
		if sell == 0 {
			sell = held
		}
		return &domain.Action{
			Kind: domain.ActionSwap,
			Swap: &domain.SwapParams{
				InputMint:   s.mint,
				OutputMint:  WrappedSolMint,
				AmountIn:    sell,
				SlippageBps: s.slippageBps,
			},
			Rationale: fmt.Sprintf("SOL balance %s below band min %s, selling %d token units",
				domain.FormatSol(state.SolBalance), domain.FormatSol(s.minLamports), sell),
		}, nil

	default:
		return domain.Noop(fmt.Sprintf("SOL balance %s inside band [%s, %s]",
			domain.FormatSol(state.SolBalance), domain.FormatSol(s.minLamports), domain.FormatSol(s.maxLamports))), nil
	}
}

func (s *rebalancer) Execute(ctx context.Context, action *domain.Action, w *wallet.Client, quotes QuoteSource) (*domain.TxResult, error) {
	if action.Kind != domain.ActionSwap || action.Swap == nil {
		return nil, domain.Errorf(domain.CodeInvalidConfig, "rebalancer cannot execute action kind %q", action.Kind)
	}
	return executeSwapAction(ctx, action.Swap, w, quotes)
}
