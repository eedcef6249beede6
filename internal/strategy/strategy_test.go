package strategy

import (
	"context"
	"testing"

	"github.com/meridian-labs/solagent/internal/core/domain"
	"github.com/meridian-labs/solagent/pkg/logging"
)

type fixedPriceFeed struct {
	price float64
	err   error
}

func (f *fixedPriceFeed) GetCurrentPrice(context.Context, string) (float64, error) {
	return f.price, f.err
}

func TestFactoryRejectsUnknownStrategy(t *testing.T) {
	_, err := New("yolo", nil, nil, logging.NewNop())
	if domain.ErrorCode(err) != domain.CodeInvalidConfig {
		t.Errorf("error code = %v, want %v", domain.ErrorCode(err), domain.CodeInvalidConfig)
	}
}

func TestDCADecide(t *testing.T) {
	s, err := New(NameDCA, map[string]interface{}{
		"outputMint":     "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		"amountLamports": float64(100_000_000),
		"everyTicks":     float64(2),
	}, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("New(dca) error = %v", err)
	}

	// Tick 1 is off-schedule with everyTicks=2.
	action, err := s.Decide(context.Background(), &domain.AgentState{
		SolBalance: domain.LamportsPerSol,
		TickCount:  1,
	})
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if action.Kind != domain.ActionNoop {
		t.Errorf("tick 1 Kind = %v, want noop", action.Kind)
	}

	action, err = s.Decide(context.Background(), &domain.AgentState{
		SolBalance: domain.LamportsPerSol,
		TickCount:  2,
	})
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if action.Kind != domain.ActionSwap {
		t.Fatalf("tick 2 Kind = %v, want swap", action.Kind)
	}
	if action.Swap.AmountIn != 100_000_000 {
		t.Errorf("AmountIn = %d, want 100000000", action.Swap.AmountIn)
	}
	if action.Swap.InputMint != WrappedSolMint {
		t.Errorf("InputMint = %v, want wrapped SOL default", action.Swap.InputMint)
	}
}

func TestDCADecideInsufficientBalance(t *testing.T) {
	s, _ := New(NameDCA, map[string]interface{}{
		"outputMint":     "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		"amountLamports": float64(100_000_000),
	}, nil, logging.NewNop())

	action, err := s.Decide(context.Background(), &domain.AgentState{
		SolBalance: 50_000_000,
		TickCount:  1,
	})
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if action.Kind != domain.ActionNoop {
		t.Errorf("Kind = %v, want noop when underfunded", action.Kind)
	}
}

func TestDCAConfigValidation(t *testing.T) {
	if _, err := New(NameDCA, map[string]interface{}{}, nil, logging.NewNop()); err == nil {
		t.Error("New(dca) without outputMint should fail")
	}
	if _, err := New(NameDCA, map[string]interface{}{"outputMint": "x"}, nil, logging.NewNop()); err == nil {
		t.Error("New(dca) without an amount should fail")
	}
	// amountSol converts at 1e9.
	s, err := New(NameDCA, map[string]interface{}{
		"outputMint": "x", "amountSol": 0.25,
	}, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("New(dca) error = %v", err)
	}
	if got := s.(*dca).amountIn; got != 250_000_000 {
		t.Errorf("amountIn = %d, want 250000000", got)
	}
}

func TestRebalancerDecide(t *testing.T) {
	s, err := New(NameRebalancer, map[string]interface{}{
		"mint":   "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		"minSol": 1.0,
		"maxSol": 2.0,
	}, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("New(rebalancer) error = %v", err)
	}

	// Above band: deploy excess into the mint.
	action, _ := s.Decide(context.Background(), &domain.AgentState{SolBalance: 3 * domain.LamportsPerSol})
	if action.Kind != domain.ActionSwap || action.Swap.InputMint != WrappedSolMint {
		t.Errorf("above band: got %+v, want SOL->mint swap", action)
	}

	// Inside band: hold.
	action, _ = s.Decide(context.Background(), &domain.AgentState{SolBalance: 3 * domain.LamportsPerSol / 2})
	if action.Kind != domain.ActionNoop {
		t.Errorf("inside band: Kind = %v, want noop", action.Kind)
	}

	// Below band with inventory: sell back to SOL.
	action, _ = s.Decide(context.Background(), &domain.AgentState{
		SolBalance:    domain.LamportsPerSol / 2,
		TokenBalances: map[string]uint64{"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": 10_000},
	})
	if action.Kind != domain.ActionSwap || action.Swap.OutputMint != WrappedSolMint {
		t.Errorf("below band: got %+v, want mint->SOL swap", action)
	}

	// Below band with no inventory: nothing to do.
	action, _ = s.Decide(context.Background(), &domain.AgentState{SolBalance: domain.LamportsPerSol / 2})
	if action.Kind != domain.ActionNoop {
		t.Errorf("below band, no inventory: Kind = %v, want noop", action.Kind)
	}
}

func TestMonitorAlwaysNoop(t *testing.T) {
	s, err := New(NameMonitor, map[string]interface{}{
		"mints": []interface{}{"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"},
	}, &fixedPriceFeed{price: 1.0001}, logging.NewNop())
	if err != nil {
		t.Fatalf("New(monitor) error = %v", err)
	}

	action, err := s.Decide(context.Background(), &domain.AgentState{
		SolBalance:    domain.LamportsPerSol,
		TokenBalances: map[string]uint64{"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": 5},
	})
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if action.Kind != domain.ActionNoop {
		t.Errorf("Kind = %v, want noop", action.Kind)
	}
	if action.Rationale == "" {
		t.Error("monitor rationale should describe holdings")
	}
}

func TestMarketMakerFirstLegBuyThenStandsDownWithoutPrice(t *testing.T) {
	feed := &fixedPriceFeed{price: 2.0}
	s, err := New(NameMarketMaker, map[string]interface{}{
		"mint":          "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		"quoteLamports": float64(50_000_000),
		"spreadBps":     float64(30),
	}, feed, logging.NewNop())
	if err != nil {
		t.Fatalf("New(market_maker) error = %v", err)
	}

	// First leg is a buy.
	action, err := s.Decide(context.Background(), &domain.AgentState{SolBalance: domain.LamportsPerSol})
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if action.Kind != domain.ActionSwap || action.Swap.InputMint != WrappedSolMint {
		t.Fatalf("first leg = %+v, want buy", action)
	}

	// No price: stand down.
	feed.err = domain.NewError(domain.CodePriceFetchFailed, "down")
	action, _ = s.Decide(context.Background(), &domain.AgentState{SolBalance: domain.LamportsPerSol})
	if action.Kind != domain.ActionNoop {
		t.Errorf("without price: Kind = %v, want noop", action.Kind)
	}
}
