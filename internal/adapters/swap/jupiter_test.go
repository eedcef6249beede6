package swap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/meridian-labs/solagent/internal/core/domain"
	"github.com/meridian-labs/solagent/pkg/logging"
)

func TestJupiterQuoteParsing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quote" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("amount"); got != "1000000000" {
			t.Errorf("amount = %v, want 1000000000", got)
		}
		w.Write([]byte(`{
			"inputMint": "So11111111111111111111111111111111111111112",
			"outputMint": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
			"inAmount": "1000000000",
			"outAmount": "9800000",
			"otherAmountThreshold": "9751000",
			"priceImpactPct": "0.12",
			"routePlan": [{"swapInfo": {"label": "Whirlpool"}}]
		}`))
	}))
	defer server.Close()

	adapter := NewJupiterAdapterWithURL(server.URL, logging.NewNop())
	quote, err := adapter.Quote(context.Background(),
		"So11111111111111111111111111111111111111112",
		"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		1_000_000_000, 50)
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}

	if quote.Provider != "jupiter" {
		t.Errorf("Provider = %v, want jupiter", quote.Provider)
	}
	if quote.InAmount != 1_000_000_000 {
		t.Errorf("InAmount = %d, want 1000000000", quote.InAmount)
	}
	if quote.OutAmount != 9_800_000 {
		t.Errorf("OutAmount = %d, want 9800000", quote.OutAmount)
	}
	if quote.OtherAmountThreshold != 9_751_000 {
		t.Errorf("OtherAmountThreshold = %d, want 9751000", quote.OtherAmountThreshold)
	}
	if quote.PriceImpactPct != 0.12 {
		t.Errorf("PriceImpactPct = %v, want 0.12", quote.PriceImpactPct)
	}
	if len(quote.Raw) == 0 {
		t.Error("Raw payload should be preserved for the swap call")
	}
}

func TestJupiterQuoteHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	adapter := NewJupiterAdapterWithURL(server.URL, logging.NewNop())
	_, err := adapter.Quote(context.Background(), "in", "out", 1, 50)
	if domain.ErrorCode(err) != domain.CodeQuoteFailed {
		t.Errorf("error code = %v, want %v", domain.ErrorCode(err), domain.CodeQuoteFailed)
	}
}

func TestOrcaUnconfiguredIsUnavailable(t *testing.T) {
	adapter := NewOrcaAdapter("", logging.NewNop())
	_, err := adapter.Quote(context.Background(), "in", "out", 1, 50)
	if domain.ErrorCode(err) != domain.CodeAdapterUnavailable {
		t.Errorf("error code = %v, want %v", domain.ErrorCode(err), domain.CodeAdapterUnavailable)
	}
}
