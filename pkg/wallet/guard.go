package wallet

import (
	"strings"

	"github.com/meridian-labs/solagent/internal/core/domain"
)

// SpendingLimitGuard is the synchronous pre-signing gate. Check never
// suspends and never mutates; Record is the only mutation of session spend.
// Each guard is owned by exactly one wallet client, which is owned by exactly
// one agent loop, so no locking is needed.
type SpendingLimitGuard struct {
	limits       domain.SpendingLimits
	allowed      map[string]struct{} // nil when any destination is allowed
	sessionSpend uint64
}

// GuardStatus is a non-sensitive snapshot of the guard.
type GuardStatus struct {
	MaxPerTxLamports   uint64   `json:"max_per_tx_lamports"`
	MaxSessionLamports uint64   `json:"max_session_lamports"`
	SessionSpend       uint64   `json:"session_spend_lamports"`
	SessionRemaining   uint64   `json:"session_remaining_lamports"`
	Allowlist          []string `json:"allowlist,omitempty"`
}

// NewSpendingLimitGuard validates the limits and returns a fresh guard with
// zero session spend.
func NewSpendingLimitGuard(limits domain.SpendingLimits) (*SpendingLimitGuard, error) {
	if limits.MaxPerTxLamports == 0 {
		return nil, domain.NewError(domain.CodeInvalidConfig, "maxPerTxLamports must be positive")
	}
	if limits.MaxSessionLamports == 0 {
		return nil, domain.NewError(domain.CodeInvalidConfig, "maxSessionLamports must be positive")
	}
	if limits.MaxPerTxLamports > limits.MaxSessionLamports {
		return nil, domain.Errorf(domain.CodeInvalidConfig,
			"maxPerTxLamports (%d) must not exceed maxSessionLamports (%d)",
			limits.MaxPerTxLamports, limits.MaxSessionLamports)
	}

	var allowed map[string]struct{}
	if limits.AllowedDestinations != nil {
		if len(limits.AllowedDestinations) == 0 {
			return nil, domain.NewError(domain.CodeInvalidConfig, "destination allowlist must not be empty; omit it to allow any destination")
		}
		allowed = make(map[string]struct{}, len(limits.AllowedDestinations))
		for _, dest := range limits.AllowedDestinations {
			dest = strings.TrimSpace(dest)
			if dest == "" {
				return nil, domain.NewError(domain.CodeInvalidConfig, "destination allowlist contains an empty entry")
			}
			allowed[dest] = struct{}{}
		}
	}

	return &SpendingLimitGuard{limits: limits, allowed: allowed}, nil
}

// Check verifies an intended spend against the per-transaction limit, the
// remaining session budget, and the destination allowlist. Side-effect free:
// two sequential calls with the same argument agree.
func (g *SpendingLimitGuard) Check(estimatedLamports uint64, destination string) error {
	// Session budget is evaluated before the per-transaction bound so a
	// nearly exhausted session reports the tighter constraint.
	if g.sessionSpend+estimatedLamports > g.limits.MaxSessionLamports {
		return domain.Errorf(domain.CodeLimitBreach,
			"estimated spend %s SOL would push session spend past session cap %s SOL (spent %s SOL)",
			domain.FormatSol(estimatedLamports), domain.FormatSol(g.limits.MaxSessionLamports),
			domain.FormatSol(g.sessionSpend))
	}
	if estimatedLamports > g.limits.MaxPerTxLamports {
		return domain.Errorf(domain.CodeLimitBreach,
			"estimated spend %s SOL exceeds per-tx limit %s SOL",
			domain.FormatSol(estimatedLamports), domain.FormatSol(g.limits.MaxPerTxLamports))
	}
	if g.allowed != nil {
		if destination == "" {
			return domain.NewError(domain.CodeLimitBreach, "destination required: allowlist is configured")
		}
		if _, ok := g.allowed[destination]; !ok {
			return domain.Errorf(domain.CodeLimitBreach, "destination %s is not in the allowlist", destination)
		}
	}
	return nil
}

// Record adds a confirmed spend to the session total. Callers must invoke it
// only after a confirmed TxResult.
func (g *SpendingLimitGuard) Record(actualLamports uint64) {
	g.sessionSpend += actualLamports
}

// SessionSpend returns the lamports recorded so far this session.
func (g *SpendingLimitGuard) SessionSpend() uint64 {
	return g.sessionSpend
}

// Status returns a non-sensitive snapshot.
func (g *SpendingLimitGuard) Status() GuardStatus {
	remaining := uint64(0)
	if g.sessionSpend < g.limits.MaxSessionLamports {
		remaining = g.limits.MaxSessionLamports - g.sessionSpend
	}
	return GuardStatus{
		MaxPerTxLamports:   g.limits.MaxPerTxLamports,
		MaxSessionLamports: g.limits.MaxSessionLamports,
		SessionSpend:       g.sessionSpend,
		SessionRemaining:   remaining,
		Allowlist:          g.limits.AllowedDestinations,
	}
}

// ResetSession zeroes the session spend. Test hook only; production loops
// never reset a session.
func (g *SpendingLimitGuard) ResetSession() {
	g.sessionSpend = 0
}
