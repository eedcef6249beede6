package swap

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meridian-labs/solagent/internal/core/domain"
	"github.com/meridian-labs/solagent/pkg/cache"
	"github.com/meridian-labs/solagent/pkg/logging"
)

// quoteTTL bounds how long a raced quote may be served from the cache.
const quoteTTL = 2 * time.Second

// defaultQuoteSlippageBps is used for discovery quotes; swaps re-quote with
// the caller's slippage before execution.
const defaultQuoteSlippageBps = 50

// Registry holds the configured adapters in registration order. Stateless
// after construction; safe for concurrent use by every agent loop.
type Registry struct {
	adapters []Adapter
	byName   map[string]Adapter
	quotes   cache.QuoteCache
	log      *logging.Logger
}

// NewRegistry builds a registry over the given adapters. Registration order
// is the tie-break order for equal quotes.
func NewRegistry(log *logging.Logger, quotes cache.QuoteCache, adapters ...Adapter) *Registry {
	if quotes == nil {
		quotes = cache.NoOpCache{}
	}
	byName := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		byName[a.Name()] = a
	}
	return &Registry{adapters: adapters, byName: byName, quotes: quotes, log: log}
}

// Get returns the named adapter.
func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.byName[name]
	if !ok {
		return nil, domain.Errorf(domain.CodeAdapterUnavailable, "no swap adapter named %q", name)
	}
	return a, nil
}

// Names returns the registered adapter names in order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.adapters))
	for i, a := range r.adapters {
		out[i] = a.Name()
	}
	return out
}

// GetBestQuote races every adapter with all-settled semantics and returns the
// settled quote with the highest output amount. Ties break toward the adapter
// registered first. When every adapter fails, the failures aggregate into a
// single quoteFailed error.
func (r *Registry) GetBestQuote(ctx context.Context, inputMint, outputMint string, amountIn uint64) (*domain.Quote, error) {
	if len(r.adapters) == 0 {
		return nil, domain.NewError(domain.CodeQuoteFailed, "no swap adapters registered")
	}

	if cached, ok := r.quotes.Get(ctx, inputMint, outputMint, amountIn); ok {
		return cached, nil
	}

	quotes := make([]*domain.Quote, len(r.adapters))
	errs := make([]error, len(r.adapters))
	var wg sync.WaitGroup
	for i, a := range r.adapters {
		wg.Add(1)
		go func(i int, a Adapter) {
			defer wg.Done()
			quotes[i], errs[i] = a.Quote(ctx, inputMint, outputMint, amountIn, defaultQuoteSlippageBps)
		}(i, a)
	}
	wg.Wait()

	var best *domain.Quote
	for i, q := range quotes {
		if errs[i] != nil || q == nil {
			continue
		}
		if best == nil || q.OutAmount > best.OutAmount {
			best = q
		}
	}
	if best == nil {
		msgs := make([]string, 0, len(errs))
		for i, err := range errs {
			if err != nil {
				msgs = append(msgs, fmt.Sprintf("%s: %v", r.adapters[i].Name(), err))
			}
		}
		return nil, domain.Errorf(domain.CodeQuoteFailed, "all quote providers failed: %s", strings.Join(msgs, "; "))
	}

	r.log.Debug("best quote selected",
		zap.String("provider", best.Provider),
		zap.Uint64("out_amount", best.OutAmount))
	r.quotes.Set(ctx, best, quoteTTL)
	return best, nil
}
