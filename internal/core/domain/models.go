package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// LamportsPerSol is the number of lamports in one SOL.
const LamportsPerSol = 1_000_000_000

// SolToLamports converts a SOL amount to lamports, rounding to the nearest
// lamport. Negative inputs clamp to zero.
func SolToLamports(sol float64) uint64 {
	if sol <= 0 {
		return 0
	}
	return uint64(sol*LamportsPerSol + 0.5)
}

// LamportsToSol converts lamports to SOL for display purposes only. Internal
// accounting always stays in lamports.
func LamportsToSol(lamports uint64) float64 {
	return float64(lamports) / LamportsPerSol
}

// FormatSol renders lamports as a fixed six-decimal SOL string.
func FormatSol(lamports uint64) string {
	return fmt.Sprintf("%.6f", LamportsToSol(lamports))
}

// TxStatus is the terminal classification of a transaction attempt.
type TxStatus string

const (
	// TxConfirmed is the sole success state.
	TxConfirmed TxStatus = "confirmed"
	// TxFailed means the chain reported an error for the transaction.
	TxFailed TxStatus = "failed"
	// TxTimeout means retries or confirmation polling were exhausted; the
	// transaction may still land.
	TxTimeout TxStatus = "timeout"
	// TxSimulated means pre-send simulation rejected the transaction.
	TxSimulated TxStatus = "simulated"
)

// TxResult is the outcome of a send/confirm cycle.
type TxResult struct {
	Signature    string   `json:"signature,omitempty"`
	Status       TxStatus `json:"status"`
	Slot         uint64   `json:"slot,omitempty"`
	Error        string   `json:"error,omitempty"`
	ComputeUnits uint64   `json:"compute_units_consumed,omitempty"`
}

// Confirmed reports whether the result is the success state.
func (r *TxResult) Confirmed() bool {
	return r != nil && r.Status == TxConfirmed
}

// SpendingLimits is the immutable guard configuration.
// AllowedDestinations nil means any destination; an empty non-nil list is
// rejected at guard construction.
type SpendingLimits struct {
	MaxPerTxLamports    uint64   `json:"max_per_tx_lamports"`
	MaxSessionLamports  uint64   `json:"max_session_lamports"`
	AllowedDestinations []string `json:"allowed_destinations,omitempty"`
}

// Quote is a priced route from one mint to another. Raw keeps the provider's
// response verbatim so the swap call can hand it back untouched.
type Quote struct {
	InputMint            string          `json:"input_mint"`
	OutputMint           string          `json:"output_mint"`
	InAmount             uint64          `json:"in_amount"`
	OutAmount            uint64          `json:"out_amount"`
	OtherAmountThreshold uint64          `json:"other_amount_threshold"`
	PriceImpactPct       float64         `json:"price_impact_pct"`
	Provider             string          `json:"provider"`
	Raw                  json.RawMessage `json:"-"`
}

// SwapResult extends TxResult with the executed amounts and the quote that
// produced them.
type SwapResult struct {
	TxResult
	ActualIn  uint64 `json:"actual_in"`
	ActualOut uint64 `json:"actual_out"`
	Quote     *Quote `json:"quote,omitempty"`
}

// ActionKind discriminates the Action variant.
type ActionKind string

const (
	ActionSwap             ActionKind = "swap"
	ActionTransfer         ActionKind = "transfer"
	ActionProvideLiquidity ActionKind = "provide_liquidity"
	ActionNoop             ActionKind = "noop"
)

// SwapParams parameterizes a swap action.
type SwapParams struct {
	InputMint   string `json:"input_mint"`
	OutputMint  string `json:"output_mint"`
	AmountIn    uint64 `json:"amount_in"`
	SlippageBps int    `json:"slippage_bps"`
	Provider    string `json:"provider,omitempty"` // empty = best quote
}

// TransferParams parameterizes a transfer action. Mint empty means native SOL.
type TransferParams struct {
	Mint   string `json:"mint,omitempty"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// LiquidityParams parameterizes a provide-liquidity action.
type LiquidityParams struct {
	Pool    string `json:"pool"`
	MintA   string `json:"mint_a"`
	MintB   string `json:"mint_b"`
	AmountA uint64 `json:"amount_a"`
	AmountB uint64 `json:"amount_b"`
}

// Action is the tagged decision a strategy hands back to the loop. Exactly the
// variant named by Kind is populated; the loop pattern-matches on Kind.
type Action struct {
	Kind      ActionKind       `json:"kind"`
	Swap      *SwapParams      `json:"swap,omitempty"`
	Transfer  *TransferParams  `json:"transfer,omitempty"`
	Liquidity *LiquidityParams `json:"liquidity,omitempty"`
	Rationale string           `json:"rationale,omitempty"`
}

// Noop builds a no-action decision with a rationale.
func Noop(rationale string) *Action {
	return &Action{Kind: ActionNoop, Rationale: rationale}
}

// Params returns the populated variant as a generic map for audit details.
// Amounts are stringified so downstream JSON never loses integer precision.
func (a *Action) Params() map[string]interface{} {
	out := map[string]interface{}{"kind": string(a.Kind)}
	switch a.Kind {
	case ActionSwap:
		if a.Swap != nil {
			out["input_mint"] = a.Swap.InputMint
			out["output_mint"] = a.Swap.OutputMint
			out["amount_in"] = fmt.Sprintf("%d", a.Swap.AmountIn)
			out["slippage_bps"] = a.Swap.SlippageBps
		}
	case ActionTransfer:
		if a.Transfer != nil {
			out["mint"] = a.Transfer.Mint
			out["to"] = a.Transfer.To
			out["amount"] = fmt.Sprintf("%d", a.Transfer.Amount)
		}
	case ActionProvideLiquidity:
		if a.Liquidity != nil {
			out["pool"] = a.Liquidity.Pool
			out["amount_a"] = fmt.Sprintf("%d", a.Liquidity.AmountA)
			out["amount_b"] = fmt.Sprintf("%d", a.Liquidity.AmountB)
		}
	}
	if a.Rationale != "" {
		out["rationale"] = a.Rationale
	}
	return out
}

// AgentState is the per-tick snapshot handed to a strategy, discarded after
// the tick.
type AgentState struct {
	SolBalance    uint64            `json:"sol_balance"`
	TokenBalances map[string]uint64 `json:"token_balances"`
	TickCount     uint64            `json:"tick_count"`
	LastActionAt  time.Time         `json:"last_action_at"`
}

// LoopStatus is the observable lifecycle state of an agent loop.
type LoopStatus string

const (
	LoopIdle    LoopStatus = "idle"
	LoopRunning LoopStatus = "running"
	LoopStopped LoopStatus = "stopped"
	LoopError   LoopStatus = "error"
)

// AgentLoopState is the externally observable loop snapshot. Mutated only by
// the loop's own goroutine; read through the loop's accessor.
type AgentLoopState struct {
	AgentID      string     `json:"agent_id"`
	Status       LoopStatus `json:"status"`
	TickCount    uint64     `json:"tick_count"`
	StartedAt    time.Time  `json:"started_at,omitempty"`
	LastTickAt   time.Time  `json:"last_tick_at,omitempty"`
	LastActionAt time.Time  `json:"last_action_at,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
}

// AgentConfig is one validated entry of the agents configuration file.
type AgentConfig struct {
	ID             string                 `json:"id"`
	KeystorePath   string                 `json:"keystorePath"`
	Strategy       string                 `json:"strategy"`
	StrategyParams map[string]interface{} `json:"strategyParams"`
	IntervalMs     int                    `json:"intervalMs"`
	Limits         SpendingLimits         `json:"limits"`
}
