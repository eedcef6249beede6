package swap

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/meridian-labs/solagent/internal/core/domain"
	"github.com/meridian-labs/solagent/pkg/logging"
	"github.com/meridian-labs/solagent/pkg/wallet"
)

// OrcaAdapter swaps against a Whirlpool routing service. The service URL is
// deployment-specific; an adapter constructed without one stays registered
// but reports adapterUnavailable, and the registry's fallback keeps the
// system running on the remaining providers.
type OrcaAdapter struct {
	baseURL string
	client  *http.Client
	log     *logging.Logger
}

// NewOrcaAdapter builds an adapter against the given routing service URL.
// An empty URL yields an unavailable adapter rather than a construction error.
func NewOrcaAdapter(baseURL string, log *logging.Logger) *OrcaAdapter {
	return &OrcaAdapter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		log:     log,
	}
}

func (a *OrcaAdapter) Name() string { return "orca" }

func (a *OrcaAdapter) available() error {
	if a.baseURL == "" {
		return domain.NewError(domain.CodeAdapterUnavailable, "orca adapter is not configured (no routing service url)")
	}
	return nil
}

type orcaQuoteResponse struct {
	InputMint      string `json:"inputMint"`
	OutputMint     string `json:"outputMint"`
	InAmount       string `json:"inAmount"`
	OutAmount      string `json:"outAmount"`
	MinOutAmount   string `json:"minOutAmount"`
	PriceImpactPct string `json:"priceImpactPct"`
	Pool           string `json:"pool"`
}

func (a *OrcaAdapter) Quote(ctx context.Context, inputMint, outputMint string, amountIn uint64, slippageBps int) (*domain.Quote, error) {
	if err := a.available(); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/quote?inputMint=%s&outputMint=%s&amount=%d&slippageBps=%d",
		a.baseURL, inputMint, outputMint, amountIn, slippageBps)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, domain.Errorf(domain.CodeQuoteFailed, "failed to build quote request: %v", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, domain.Errorf(domain.CodeQuoteFailed, "orca quote request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.Errorf(domain.CodeQuoteFailed, "failed to read quote response: %v", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.Errorf(domain.CodePoolNotFound, "no whirlpool for %s -> %s", inputMint, outputMint)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.Errorf(domain.CodeQuoteFailed, "orca quote returned status %d", resp.StatusCode)
	}

	var parsed orcaQuoteResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, domain.Errorf(domain.CodeQuoteFailed, "malformed orca quote: %v", err)
	}

	quote := &domain.Quote{
		InputMint:  parsed.InputMint,
		OutputMint: parsed.OutputMint,
		Provider:   a.Name(),
		Raw:        json.RawMessage(body),
	}
	if quote.InAmount, err = strconv.ParseUint(parsed.InAmount, 10, 64); err != nil {
		return nil, domain.Errorf(domain.CodeQuoteFailed, "malformed inAmount %q", parsed.InAmount)
	}
	if quote.OutAmount, err = strconv.ParseUint(parsed.OutAmount, 10, 64); err != nil {
		return nil, domain.Errorf(domain.CodeQuoteFailed, "malformed outAmount %q", parsed.OutAmount)
	}
	if quote.OtherAmountThreshold, err = strconv.ParseUint(parsed.MinOutAmount, 10, 64); err != nil {
		return nil, domain.Errorf(domain.CodeQuoteFailed, "malformed minOutAmount %q", parsed.MinOutAmount)
	}
	if parsed.PriceImpactPct != "" {
		quote.PriceImpactPct, _ = strconv.ParseFloat(parsed.PriceImpactPct, 64)
	}
	return quote, nil
}

func (a *OrcaAdapter) Swap(ctx context.Context, w *wallet.Client, quote *domain.Quote, slippageBps int) (*domain.SwapResult, error) {
	if err := a.available(); err != nil {
		return nil, err
	}

	live, err := a.Quote(ctx, quote.InputMint, quote.OutputMint, quote.InAmount, slippageBps)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]interface{}{
		"quote":         json.RawMessage(live.Raw),
		"userPublicKey": w.PublicKey().String(),
	})
	if err != nil {
		return nil, domain.Errorf(domain.CodeSwapFailed, "failed to build swap request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/swap", bytes.NewReader(payload))
	if err != nil {
		return nil, domain.Errorf(domain.CodeSwapFailed, "failed to build swap request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, domain.Errorf(domain.CodeSwapFailed, "orca swap request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, domain.Errorf(domain.CodeSwapFailed, "orca swap returned status %d: %s", resp.StatusCode, body)
	}

	var parsed struct {
		Transaction string `json:"transaction"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, domain.Errorf(domain.CodeSwapFailed, "malformed swap response: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(parsed.Transaction)
	if err != nil {
		return nil, domain.Errorf(domain.CodeSwapFailed, "swap transaction is not valid base64: %v", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, domain.Errorf(domain.CodeSwapFailed, "failed to decode swap transaction: %v", err)
	}

	return executeSwap(ctx, w, tx, live, a.log)
}
