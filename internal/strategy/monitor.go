package strategy

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/meridian-labs/solagent/internal/adapters/price"
	"github.com/meridian-labs/solagent/internal/core/domain"
	"github.com/meridian-labs/solagent/pkg/logging"
	"github.com/meridian-labs/solagent/pkg/wallet"
)

// monitor never trades. It reports balances, and USD prices when the feed
// can supply them, as the noop rationale.
type monitor struct {
	mints  []string
	prices price.Feed
	log    *logging.Logger
}

func newMonitor(params map[string]interface{}, prices price.Feed, log *logging.Logger) (Strategy, error) {
	var mints []string
	if raw, ok := params["mints"].([]interface{}); ok {
		for _, v := range raw {
			mint, ok := v.(string)
			if !ok || mint == "" {
				return nil, domain.NewError(domain.CodeInvalidConfig, "monitor: mints must be a list of mint addresses")
			}
			mints = append(mints, mint)
		}
	}
	return &monitor{mints: mints, prices: prices, log: log}, nil
}

func (s *monitor) Name() string { return NameMonitor }

func (s *monitor) TrackedMints() []string { return s.mints }

func (s *monitor) Decide(ctx context.Context, state *domain.AgentState) (*domain.Action, error) {
	parts := []string{fmt.Sprintf("SOL %s", domain.FormatSol(state.SolBalance))}
	for _, mint := range s.mints {
		part := fmt.Sprintf("%s %d", shortMint(mint), state.TokenBalances[mint])
		if s.prices != nil {
			if usd, err := s.prices.GetCurrentPrice(ctx, mint); err == nil {
				part += fmt.Sprintf(" (@ $%.4f)", usd)
			} else {
				s.log.Debug("price lookup failed", zap.String("mint", mint), zap.Error(err))
			}
		}
		parts = append(parts, part)
	}
	return domain.Noop("holdings: " + strings.Join(parts, ", ")), nil
}

func (s *monitor) Execute(ctx context.Context, action *domain.Action, w *wallet.Client, quotes QuoteSource) (*domain.TxResult, error) {
	return nil, domain.NewError(domain.CodeInvalidConfig, "monitor strategy never executes actions")
}

func shortMint(mint string) string {
	if len(mint) <= 8 {
		return mint
	}
	return mint[:4] + ".." + mint[len(mint)-4:]
}
