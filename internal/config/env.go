// Package config parses and validates the process environment. Validation
// failures surface before any I/O happens; the process must exit non-zero on
// them.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/meridian-labs/solagent/internal/core/domain"
)

// DefaultRPCURL is the devnet endpoint used when SOLANA_RPC_URL is unset.
const DefaultRPCURL = "https://api.devnet.solana.com"

// Env is the validated environment schema.
type Env struct {
	RPCURL           string
	Network          string // devnet | testnet
	NodeEnv          string // development | test | production
	LogLevel         string
	WalletPassword   string
	AuditDBPath      string
	AgentsConfigPath string
	AgentIntervalMs  int
	MaxPerTxSol      float64
	MaxSessionSol    float64
	OrcaRouteURL     string
	RedisEnabled     bool
	RedisAddress     string
}

// Production reports whether the process is marked production.
func (e *Env) Production() bool {
	return e.NodeEnv == "production"
}

// Load reads .env (when present), parses the schema, and validates it.
func Load() (*Env, error) {
	_ = godotenv.Load()
	return parse(os.Getenv)
}

// parse builds the schema from a getenv function. Split out for tests.
func parse(getenv func(string) string) (*Env, error) {
	env := &Env{
		RPCURL:           valueOr(getenv("SOLANA_RPC_URL"), DefaultRPCURL),
		Network:          valueOr(getenv("SOLANA_NETWORK"), "devnet"),
		NodeEnv:          valueOr(getenv("NODE_ENV"), "development"),
		LogLevel:         valueOr(getenv("LOG_LEVEL"), "info"),
		WalletPassword:   getenv("WALLET_PASSWORD"),
		AuditDBPath:      valueOr(getenv("AUDIT_DB_PATH"), "solagent-audit.db"),
		AgentsConfigPath: valueOr(getenv("AGENTS_CONFIG_PATH"), "agents.json"),
		OrcaRouteURL:     getenv("ORCA_ROUTE_URL"),
		RedisAddress:     getenv("REDIS_ADDRESS"),
	}

	switch env.Network {
	case "devnet", "testnet":
	default:
		return nil, domain.Errorf(domain.CodeInvalidConfig,
			"SOLANA_NETWORK must be devnet or testnet, got %q", env.Network)
	}
	switch env.NodeEnv {
	case "development", "test", "production":
	default:
		return nil, domain.Errorf(domain.CodeInvalidConfig,
			"NODE_ENV must be development, test, or production, got %q", env.NodeEnv)
	}

	if err := rejectMainnetURL(env.RPCURL); err != nil {
		return nil, err
	}

	if env.Production() && getenv("WALLET_SECRET_KEY") != "" {
		return nil, domain.NewError(domain.CodeInvalidConfig,
			"WALLET_SECRET_KEY must not be set when NODE_ENV=production; use a keystore")
	}
	if env.WalletPassword != "" && len([]rune(env.WalletPassword)) < 8 {
		return nil, domain.NewError(domain.CodeInvalidConfig,
			"WALLET_PASSWORD must be at least 8 characters")
	}

	var err error
	if env.AgentIntervalMs, err = intValue(getenv("AGENT_INTERVAL_MS"), 60_000); err != nil {
		return nil, domain.Errorf(domain.CodeInvalidConfig, "AGENT_INTERVAL_MS: %v", err)
	}
	if env.AgentIntervalMs <= 0 {
		return nil, domain.NewError(domain.CodeInvalidConfig, "AGENT_INTERVAL_MS must be positive")
	}
	if env.MaxPerTxSol, err = floatValue(getenv("MAX_PER_TX_SOL"), 0.1); err != nil {
		return nil, domain.Errorf(domain.CodeInvalidConfig, "MAX_PER_TX_SOL: %v", err)
	}
	if env.MaxSessionSol, err = floatValue(getenv("MAX_SESSION_SOL"), 0.5); err != nil {
		return nil, domain.Errorf(domain.CodeInvalidConfig, "MAX_SESSION_SOL: %v", err)
	}
	if env.MaxPerTxSol <= 0 || env.MaxSessionSol < env.MaxPerTxSol {
		return nil, domain.NewError(domain.CodeInvalidConfig,
			"spending limits require 0 < MAX_PER_TX_SOL <= MAX_SESSION_SOL")
	}

	if strings.EqualFold(getenv("REDIS_ENABLED"), "true") {
		if env.RedisAddress == "" {
			return nil, domain.NewError(domain.CodeInvalidConfig,
				"REDIS_ENABLED=true requires REDIS_ADDRESS")
		}
		env.RedisEnabled = true
	}

	return env, nil
}

// Limits converts the environment spending limits to lamports.
func (e *Env) Limits() domain.SpendingLimits {
	return domain.SpendingLimits{
		MaxPerTxLamports:   domain.SolToLamports(e.MaxPerTxSol),
		MaxSessionLamports: domain.SolToLamports(e.MaxSessionSol),
	}
}

func rejectMainnetURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return domain.Errorf(domain.CodeInvalidConfig, "SOLANA_RPC_URL is not a valid url: %v", err)
	}
	if strings.Contains(strings.ToLower(parsed.Hostname()), "mainnet-beta") {
		return domain.Errorf(domain.CodeMainnetBlocked,
			"SOLANA_RPC_URL points at mainnet (%s); this runtime only operates on devnet/testnet", parsed.Hostname())
	}
	return nil
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func intValue(v string, fallback int) (int, error) {
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%q is not an integer", v)
	}
	return n, nil
}

func floatValue(v string, fallback float64) (float64, error) {
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", v)
	}
	return f, nil
}
