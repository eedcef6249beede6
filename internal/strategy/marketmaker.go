package strategy

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/meridian-labs/solagent/internal/adapters/price"
	"github.com/meridian-labs/solagent/internal/core/domain"
	"github.com/meridian-labs/solagent/pkg/logging"
	"github.com/meridian-labs/solagent/pkg/wallet"
)

// marketMaker alternates small buys and sells around the feed's mid price.
// It only places the next leg when the price has moved at least spreadBps
// away from the last fill, approximating a two-sided quote with taker swaps.
type marketMaker struct {
	mint          string
	quoteLamports uint64
	spreadBps     int
	slippageBps   int
	prices        price.Feed
	log           *logging.Logger

	// Single-loop state: the loop that owns this strategy is the only writer.
	lastSide      string // "buy" or "sell"
	lastFillPrice float64
}

func newMarketMaker(params map[string]interface{}, prices price.Feed, log *logging.Logger) (Strategy, error) {
	mint := paramString(params, "mint", "")
	if mint == "" {
		return nil, domain.NewError(domain.CodeInvalidConfig, "market_maker requires a mint parameter")
	}
	quoteLamports, err := paramUint64(params, "quoteLamports", 0)
	if err != nil || quoteLamports == 0 {
		return nil, domain.NewError(domain.CodeInvalidConfig, "market_maker requires a positive quoteLamports")
	}
	spreadBps, err := paramInt(params, "spreadBps", 30)
	if err != nil || spreadBps <= 0 {
		return nil, domain.NewError(domain.CodeInvalidConfig, "market_maker: spreadBps must be a positive integer")
	}
	slippageBps, err := paramInt(params, "slippageBps", 50)
	if err != nil {
		return nil, domain.Errorf(domain.CodeInvalidConfig, "market_maker: %v", err)
	}

	return &marketMaker{
		mint:          mint,
		quoteLamports: quoteLamports,
		spreadBps:     spreadBps,
		slippageBps:   slippageBps,
		prices:        prices,
		log:           log,
		lastSide:      "sell", // first leg is a buy
	}, nil
}

func (s *marketMaker) Name() string { return NameMarketMaker }

func (s *marketMaker) TrackedMints() []string { return []string{s.mint} }

func (s *marketMaker) Decide(ctx context.Context, state *domain.AgentState) (*domain.Action, error) {
	mid, err := s.prices.GetCurrentPrice(ctx, s.mint)
	if err != nil {
		return domain.Noop(fmt.Sprintf("no price available for %s, standing down", shortMint(s.mint))), nil
	}

	if s.lastFillPrice > 0 {
		moveBps := (mid - s.lastFillPrice) / s.lastFillPrice * 10_000
		if moveBps < 0 {
			moveBps = -moveBps
		}
		if moveBps < float64(s.spreadBps) {
			return domain.Noop(fmt.Sprintf("price %.4f within %d bps of last fill %.4f",
				mid, s.spreadBps, s.lastFillPrice)), nil
		}
	}

	if s.lastSide == "sell" {
		if state.SolBalance < s.quoteLamports+feeReserveLamports {
			return domain.Noop("buy leg due but SOL balance too low"), nil
		}
		return &domain.Action{
			Kind: domain.ActionSwap,
			Swap: &domain.SwapParams{
				InputMint:   WrappedSolMint,
				OutputMint:  s.mint,
				AmountIn:    s.quoteLamports,
				SlippageBps: s.slippageBps,
			},
			Rationale: fmt.Sprintf("buy leg at mid %.4f", mid),
		}, nil
	}

	held := state.TokenBalances[s.mint]
	if held == 0 {
		return domain.Noop("sell leg due but no inventory"), nil
	}
	return &domain.Action{
		Kind: domain.ActionSwap,
		Swap: &domain.SwapParams{
			InputMint:   s.mint,
			OutputMint:  WrappedSolMint,
			AmountIn:    held,
			SlippageBps: s.slippageBps,
		},
		Rationale: fmt.Sprintf("sell leg at mid %.4f", mid),
	}, nil
}

func (s *marketMaker) Execute(ctx context.Context, action *domain.Action, w *wallet.Client, quotes QuoteSource) (*domain.TxResult, error) {
	if action.Kind != domain.ActionSwap || action.Swap == nil {
		return nil, domain.Errorf(domain.CodeInvalidConfig, "market_maker cannot execute action kind %q", action.Kind)
	}
	result, err := executeSwapAction(ctx, action.Swap, w, quotes)
	if err != nil {
		return nil, err
	}
	if result.Confirmed() {
		if action.Swap.InputMint == WrappedSolMint {
			s.lastSide = "buy"
		} else {
			s.lastSide = "sell"
		}
		if mid, priceErr := s.prices.GetCurrentPrice(ctx, s.mint); priceErr == nil {
			s.lastFillPrice = mid
		} else {
			s.log.Debug("post-fill price lookup failed", zap.Error(priceErr))
		}
	}
	return result, nil
}
