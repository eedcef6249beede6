package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/meridian-labs/solagent/internal/core/domain"
	"github.com/meridian-labs/solagent/internal/strategy"
)

// rawAgentConfig mirrors one agents-file entry before validation. Limits are
// kept raw because they accept either SOL floats or lamport integers.
type rawAgentConfig struct {
	ID             string                 `json:"id"`
	KeystorePath   string                 `json:"keystorePath"`
	Strategy       string                 `json:"strategy"`
	StrategyParams map[string]interface{} `json:"strategyParams"`
	IntervalMs     int                    `json:"intervalMs"`
	Limits         json.RawMessage        `json:"limits"`
}

type rawLimits struct {
	MaxPerTxSol        *float64    `json:"maxPerTxSol"`
	MaxSessionSol      *float64    `json:"maxSessionSol"`
	MaxPerTxLamports   interface{} `json:"maxPerTxLamports"`
	MaxSessionLamports interface{} `json:"maxSessionLamports"`
	AllowedDests       []string    `json:"allowedDestinations"`
}

var knownStrategies = map[string]struct{}{
	strategy.NameDCA:         {},
	strategy.NameRebalancer:  {},
	strategy.NameMonitor:     {},
	strategy.NameMarketMaker: {},
}

// LoadAgentConfigs reads and validates the agents configuration file: a JSON
// array of agent entries. Any invalid entry aborts loading with a message
// naming the entry and the field.
func LoadAgentConfigs(path string) ([]domain.AgentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agents config: %w", err)
	}

	var raw []rawAgentConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, domain.Errorf(domain.CodeInvalidConfig, "agents config is not a JSON array: %v", err)
	}
	if len(raw) == 0 {
		return nil, domain.NewError(domain.CodeInvalidConfig, "agents config is empty")
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]domain.AgentConfig, 0, len(raw))
	for i, entry := range raw {
		cfg, err := validateAgentConfig(i, entry)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[cfg.ID]; dup {
			return nil, domain.Errorf(domain.CodeInvalidConfig, "agents config: duplicate agent id %q", cfg.ID)
		}
		seen[cfg.ID] = struct{}{}
		out = append(out, cfg)
	}
	return out, nil
}

func validateAgentConfig(index int, entry rawAgentConfig) (domain.AgentConfig, error) {
	where := fmt.Sprintf("agents config entry %d", index)
	if entry.ID == "" {
		return domain.AgentConfig{}, domain.Errorf(domain.CodeInvalidConfig, "%s: id is required", where)
	}
	where = fmt.Sprintf("agent %q", entry.ID)

	if _, ok := knownStrategies[entry.Strategy]; !ok {
		return domain.AgentConfig{}, domain.Errorf(domain.CodeInvalidConfig,
			"%s: strategy %q is not one of dca, rebalancer, monitor, market_maker", where, entry.Strategy)
	}
	if entry.IntervalMs <= 0 {
		return domain.AgentConfig{}, domain.Errorf(domain.CodeInvalidConfig,
			"%s: intervalMs must be positive, got %d", where, entry.IntervalMs)
	}
	if len(entry.Limits) == 0 {
		return domain.AgentConfig{}, domain.Errorf(domain.CodeInvalidConfig, "%s: limits are required", where)
	}

	limits, err := parseLimits(entry.Limits)
	if err != nil {
		return domain.AgentConfig{}, domain.Errorf(domain.CodeInvalidConfig, "%s: %v", where, err)
	}

	return domain.AgentConfig{
		ID:             entry.ID,
		KeystorePath:   entry.KeystorePath,
		Strategy:       entry.Strategy,
		StrategyParams: entry.StrategyParams,
		IntervalMs:     entry.IntervalMs,
		Limits:         limits,
	}, nil
}

// parseLimits accepts {maxPerTxSol, maxSessionSol} floats or
// {maxPerTxLamports, maxSessionLamports} integers (numeric or string). SOL
// values convert at 1e9 with rounding. Lamport fields win when both forms
// are present.
func parseLimits(raw json.RawMessage) (domain.SpendingLimits, error) {
	var parsed rawLimits
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return domain.SpendingLimits{}, fmt.Errorf("malformed limits: %v", err)
	}

	limits := domain.SpendingLimits{AllowedDestinations: parsed.AllowedDests}

	perTx, perTxSet, err := lamportValue(parsed.MaxPerTxLamports, parsed.MaxPerTxSol)
	if err != nil {
		return domain.SpendingLimits{}, fmt.Errorf("maxPerTx: %v", err)
	}
	session, sessionSet, err := lamportValue(parsed.MaxSessionLamports, parsed.MaxSessionSol)
	if err != nil {
		return domain.SpendingLimits{}, fmt.Errorf("maxSession: %v", err)
	}
	if !perTxSet || !sessionSet {
		return domain.SpendingLimits{}, fmt.Errorf("limits must set both a per-tx and a session bound, in SOL or lamports")
	}
	limits.MaxPerTxLamports = perTx
	limits.MaxSessionLamports = session

	if limits.MaxPerTxLamports == 0 {
		return domain.SpendingLimits{}, fmt.Errorf("per-tx limit must be positive")
	}
	if limits.MaxPerTxLamports > limits.MaxSessionLamports {
		return domain.SpendingLimits{}, fmt.Errorf("per-tx limit %d exceeds session limit %d",
			limits.MaxPerTxLamports, limits.MaxSessionLamports)
	}
	return limits, nil
}

// lamportValue coerces a lamport field that may arrive as a JSON number or a
// string, falling back to a SOL float converted at 1e9.
func lamportValue(lamports interface{}, sol *float64) (uint64, bool, error) {
	switch v := lamports.(type) {
	case nil:
	case string:
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("lamport value %q is not a non-negative integer", v)
		}
		return n, true, nil
	case float64:
		if v < 0 || v != float64(uint64(v)) {
			return 0, false, fmt.Errorf("lamport value %v is not a non-negative integer", v)
		}
		return uint64(v), true, nil
	default:
		return 0, false, fmt.Errorf("lamport value has unsupported type %T", lamports)
	}
	if sol != nil {
		if *sol <= 0 {
			return 0, false, fmt.Errorf("SOL value must be positive, got %v", *sol)
		}
		return domain.SolToLamports(*sol), true, nil
	}
	return 0, false, nil
}
