package strategy

import (
	"context"
	"fmt"

	"github.com/meridian-labs/solagent/internal/core/domain"
	"github.com/meridian-labs/solagent/pkg/logging"
	"github.com/meridian-labs/solagent/pkg/wallet"
)

// feeReserveLamports is kept untouched so the wallet can always pay fees.
const feeReserveLamports = 10_000_000

// dca swaps a fixed input amount into a target mint every N ticks.
type dca struct {
	inputMint   string
	outputMint  string
	amountIn    uint64
	everyTicks  uint64
	slippageBps int
	log         *logging.Logger
}

func newDCA(params map[string]interface{}, log *logging.Logger) (Strategy, error) {
	outputMint := paramString(params, "outputMint", "")
	if outputMint == "" {
		return nil, domain.NewError(domain.CodeInvalidConfig, "dca requires an outputMint parameter")
	}
	amountIn, err := paramUint64(params, "amountLamports", 0)
	if err != nil {
		return nil, domain.Errorf(domain.CodeInvalidConfig, "dca: %v", err)
	}
	if amountIn == 0 {
		sol, err := paramFloat(params, "amountSol", 0)
		if err != nil {
			return nil, domain.Errorf(domain.CodeInvalidConfig, "dca: %v", err)
		}
		amountIn = domain.SolToLamports(sol)
	}
	if amountIn == 0 {
		return nil, domain.NewError(domain.CodeInvalidConfig, "dca requires amountLamports or amountSol")
	}
	everyTicks, err := paramUint64(params, "everyTicks", 1)
	if err != nil || everyTicks == 0 {
		return nil, domain.NewError(domain.CodeInvalidConfig, "dca: everyTicks must be a positive integer")
	}
	slippageBps, err := paramInt(params, "slippageBps", 50)
	if err != nil {
		return nil, domain.Errorf(domain.CodeInvalidConfig, "dca: %v", err)
	}

	return &dca{
		inputMint:   paramString(params, "inputMint", WrappedSolMint),
		outputMint:  outputMint,
		amountIn:    amountIn,
		everyTicks:  everyTicks,
		slippageBps: slippageBps,
		log:         log,
	}, nil
}

func (s *dca) Name() string { return NameDCA }

func (s *dca) TrackedMints() []string {
	return []string{s.outputMint}
}

func (s *dca) Decide(ctx context.Context, state *domain.AgentState) (*domain.Action, error) {
	if state.TickCount%s.everyTicks != 0 {
		return domain.Noop(fmt.Sprintf("waiting: next buy on tick %d",
			(state.TickCount/s.everyTicks+1)*s.everyTicks)), nil
	}
	if state.SolBalance < s.amountIn+feeReserveLamports {
		return domain.Noop(fmt.Sprintf("insufficient balance: have %s SOL, need %s SOL plus fee reserve",
			domain.FormatSol(state.SolBalance), domain.FormatSol(s.amountIn))), nil
	}
	return &domain.Action{
		Kind: domain.ActionSwap,
		Swap: &domain.SwapParams{
			InputMint:   s.inputMint,
			OutputMint:  s.outputMint,
			AmountIn:    s.amountIn,
			SlippageBps: s.slippageBps,
		},
		Rationale: fmt.Sprintf("scheduled buy of %s SOL on tick %d", domain.FormatSol(s.amountIn), state.TickCount),
	}, nil
}

func (s *dca) Execute(ctx context.Context, action *domain.Action, w *wallet.Client, quotes QuoteSource) (*domain.TxResult, error) {
	if action.Kind != domain.ActionSwap || action.Swap == nil {
		return nil, domain.Errorf(domain.CodeInvalidConfig, "dca cannot execute action kind %q", action.Kind)
	}
	return executeSwapAction(ctx, action.Swap, w, quotes)
}
