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
	"go.uber.org/zap"

	"github.com/meridian-labs/solagent/internal/core/domain"
	"github.com/meridian-labs/solagent/pkg/logging"
	"github.com/meridian-labs/solagent/pkg/wallet"
)

const defaultJupiterBaseURL = "https://quote-api.jup.ag/v6"

// JupiterAdapter quotes and swaps through the Jupiter aggregator HTTP API.
type JupiterAdapter struct {
	baseURL string
	client  *http.Client
	log     *logging.Logger
}

// NewJupiterAdapter builds an adapter against the public Jupiter API.
func NewJupiterAdapter(log *logging.Logger) *JupiterAdapter {
	return NewJupiterAdapterWithURL(defaultJupiterBaseURL, log)
}

// NewJupiterAdapterWithURL builds an adapter against a custom base URL. For tests.
func NewJupiterAdapterWithURL(baseURL string, log *logging.Logger) *JupiterAdapter {
	return &JupiterAdapter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		log:     log,
	}
}

func (a *JupiterAdapter) Name() string { return "jupiter" }

// jupiterQuoteResponse mirrors the fields we type; the full payload is kept
// opaque in Quote.Raw and handed back verbatim on swap.
type jupiterQuoteResponse struct {
	InputMint            string `json:"inputMint"`
	OutputMint           string `json:"outputMint"`
	InAmount             string `json:"inAmount"`
	OutAmount            string `json:"outAmount"`
	OtherAmountThreshold string `json:"otherAmountThreshold"`
	PriceImpactPct       string `json:"priceImpactPct"`
}

func (a *JupiterAdapter) Quote(ctx context.Context, inputMint, outputMint string, amountIn uint64, slippageBps int) (*domain.Quote, error) {
	url := fmt.Sprintf("%s/quote?inputMint=%s&outputMint=%s&amount=%d&slippageBps=%d",
		a.baseURL, inputMint, outputMint, amountIn, slippageBps)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, domain.Errorf(domain.CodeQuoteFailed, "failed to build quote request: %v", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, domain.Errorf(domain.CodeQuoteFailed, "jupiter quote request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.Errorf(domain.CodeQuoteFailed, "failed to read quote response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.Errorf(domain.CodeQuoteFailed, "jupiter quote returned status %d", resp.StatusCode)
	}

	var parsed jupiterQuoteResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, domain.Errorf(domain.CodeQuoteFailed, "malformed jupiter quote: %v", err)
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
	if quote.OtherAmountThreshold, err = strconv.ParseUint(parsed.OtherAmountThreshold, 10, 64); err != nil {
		return nil, domain.Errorf(domain.CodeQuoteFailed, "malformed otherAmountThreshold %q", parsed.OtherAmountThreshold)
	}
	if parsed.PriceImpactPct != "" {
		quote.PriceImpactPct, _ = strconv.ParseFloat(parsed.PriceImpactPct, 64)
	}
	return quote, nil
}

func (a *JupiterAdapter) Swap(ctx context.Context, w *wallet.Client, quote *domain.Quote, slippageBps int) (*domain.SwapResult, error) {
	// Re-quote with the caller's slippage so otherAmountThreshold is live.
	live, err := a.Quote(ctx, quote.InputMint, quote.OutputMint, quote.InAmount, slippageBps)
	if err != nil {
		return nil, err
	}

	tx, err := a.buildSwapTransaction(ctx, w, live)
	if err != nil {
		return nil, err
	}

	return executeSwap(ctx, w, tx, live, a.log)
}

// buildSwapTransaction asks the aggregator for a serialized transaction for
// the live quote and deserializes it.
func (a *JupiterAdapter) buildSwapTransaction(ctx context.Context, w *wallet.Client, live *domain.Quote) (*solana.Transaction, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"quoteResponse":    json.RawMessage(live.Raw),
		"userPublicKey":    w.PublicKey().String(),
		"wrapAndUnwrapSol": true,
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
		return nil, domain.Errorf(domain.CodeSwapFailed, "jupiter swap request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, domain.Errorf(domain.CodeSwapFailed, "jupiter swap returned status %d: %s", resp.StatusCode, body)
	}

	var parsed struct {
		SwapTransaction string `json:"swapTransaction"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, domain.Errorf(domain.CodeSwapFailed, "malformed swap response: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(parsed.SwapTransaction)
	if err != nil {
		return nil, domain.Errorf(domain.CodeSwapFailed, "swap transaction is not valid base64: %v", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, domain.Errorf(domain.CodeSwapFailed, "failed to decode swap transaction: %v", err)
	}
	return tx, nil
}

// executeSwap is the provider-independent execution tail: read the pre-swap
// output balance, cross the guard through SignAndSendTransaction, then read
// the post-swap balance and assemble the result.
func executeSwap(ctx context.Context, w *wallet.Client, tx *solana.Transaction, live *domain.Quote, log *logging.Logger) (*domain.SwapResult, error) {
	outMint, err := solana.PublicKeyFromBase58(live.OutputMint)
	if err != nil {
		return nil, domain.Errorf(domain.CodeInvalidMint, "invalid output mint %q: %v", live.OutputMint, err)
	}

	preBalance, err := w.GetTokenBalance(ctx, outMint)
	if err != nil {
		return nil, err
	}

	txResult, err := w.SignAndSendTransaction(ctx, tx, live.InAmount, "")
	if err != nil {
		return nil, err
	}

	result := &domain.SwapResult{
		TxResult: *txResult,
		ActualIn: live.InAmount,
		Quote:    live,
	}
	if !txResult.Confirmed() {
		return result, nil
	}

	postBalance, err := w.GetTokenBalance(ctx, outMint)
	if err != nil {
		log.Warn("post-swap balance read failed", zap.Error(err))
		return result, nil
	}
	if postBalance > preBalance {
		result.ActualOut = postBalance - preBalance
	}

	// The chain's own slippage check already accepted this fill, so a
	// shortfall against the quoted threshold is reported, not failed.
	if result.ActualOut < live.OtherAmountThreshold {
		log.Warn("swap filled below quoted threshold",
			zap.String("provider", live.Provider),
			zap.Uint64("actual_out", result.ActualOut),
			zap.Uint64("other_amount_threshold", live.OtherAmountThreshold))
	}
	return result, nil
}
