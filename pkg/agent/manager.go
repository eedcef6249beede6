package agent

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridian-labs/solagent/internal/adapters/price"
	"github.com/meridian-labs/solagent/internal/adapters/swap"
	"github.com/meridian-labs/solagent/internal/core/domain"
	"github.com/meridian-labs/solagent/internal/strategy"
	"github.com/meridian-labs/solagent/pkg/audit"
	"github.com/meridian-labs/solagent/pkg/cache"
	"github.com/meridian-labs/solagent/pkg/keystore"
	"github.com/meridian-labs/solagent/pkg/logging"
	"github.com/meridian-labs/solagent/pkg/wallet"
)

// ManagerConfig binds a fleet of agents to shared infrastructure.
type ManagerConfig struct {
	Agents      []domain.AgentConfig
	RPCURL      string
	AuditDBPath string
	Production  bool

	// Identity resolution, in priority order: per-agent env secret, global
	// env secret (single-agent fleets only), keystore + passphrase.
	WalletPassword string
	SecretFromEnv  func(envVar string) string

	// Optional quote cache; NoOp when nil.
	QuoteCache cache.QuoteCache

	// Adapter wiring; defaults apply when empty.
	OrcaRouteURL             string
	PriorityFeeMicroLamports uint64
}

// Manager supervises N agent loops. Shared state is limited to the RPC
// client, the swap registry, the logger, and the audit db; every loop owns
// its wallet and guard outright.
type Manager struct {
	cfg   ManagerConfig
	log   *logging.Logger
	db    *audit.DB
	loops []*Loop

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// NewManager validates the fleet configuration.
func NewManager(cfg ManagerConfig, log *logging.Logger) (*Manager, error) {
	if len(cfg.Agents) == 0 {
		return nil, domain.NewError(domain.CodeInvalidConfig, "at least one agent config is required")
	}
	if cfg.RPCURL == "" {
		return nil, domain.NewError(domain.CodeInvalidConfig, "rpc url is required")
	}
	if err := wallet.RejectMainnet(cfg.RPCURL); err != nil {
		return nil, err
	}
	if cfg.AuditDBPath == "" {
		return nil, domain.NewError(domain.CodeInvalidConfig, "audit db path is required")
	}
	if cfg.SecretFromEnv == nil {
		cfg.SecretFromEnv = os.Getenv
	}
	return &Manager{cfg: cfg, log: log}, nil
}

// Start opens shared infrastructure, builds every agent's isolated stack,
// and spawns the loops as independent goroutines.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("manager is already running")
	}

	db, err := audit.Open(m.cfg.AuditDBPath)
	if err != nil {
		return err
	}
	m.db = db

	rpcClient := rpc.New(m.cfg.RPCURL)
	quoteCache := m.cfg.QuoteCache
	if quoteCache == nil {
		quoteCache = cache.NoOpCache{}
	}
	registry := swap.NewRegistry(m.log, quoteCache,
		swap.NewJupiterAdapter(m.log),
		swap.NewOrcaAdapter(m.cfg.OrcaRouteURL, m.log),
	)
	prices := price.NewDexScreenerFeed()

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.loops = m.loops[:0]
	for _, agentCfg := range m.cfg.Agents {
		loop, err := m.buildLoop(agentCfg, rpcClient, registry, prices)
		if err != nil {
			cancel()
			db.Close()
			return fmt.Errorf("agent %q: %w", agentCfg.ID, err)
		}
		m.loops = append(m.loops, loop)
	}

	m.log.Info("starting agent fleet",
		zap.Int("agents", len(m.loops)),
		zap.String("rpc_url", m.cfg.RPCURL))

	for _, loop := range m.loops {
		m.wg.Add(1)
		go func(l *Loop) {
			defer m.wg.Done()
			l.Start(loopCtx)
		}(loop)
	}

	m.running = true
	return nil
}

func (m *Manager) buildLoop(agentCfg domain.AgentConfig, rpcClient wallet.ChainRPC, registry *swap.Registry, prices price.Feed) (*Loop, error) {
	identity, err := m.resolveIdentity(agentCfg)
	if err != nil {
		return nil, err
	}

	agentLog := m.log.Named(agentCfg.ID)
	walletClient, err := wallet.NewClientWithRPC(identity, wallet.Config{
		RPCURL:                   m.cfg.RPCURL,
		Send:                     wallet.DefaultSendConfig(),
		PriorityFeeMicroLamports: m.cfg.PriorityFeeMicroLamports,
		Limits:                   agentCfg.Limits,
	}, rpcClient, agentLog)
	if err != nil {
		return nil, err
	}

	strat, err := strategy.New(agentCfg.Strategy, agentCfg.StrategyParams, prices, agentLog)
	if err != nil {
		return nil, err
	}

	return NewLoop(LoopConfig{
		AgentID:  agentCfg.ID,
		Interval: time.Duration(agentCfg.IntervalMs) * time.Millisecond,
		RunID:    uuid.NewString(),
	}, walletClient, strat, registry, m.db, m.log), nil
}

// resolveIdentity loads an agent's signing identity: per-agent env var first,
// the global env var when the fleet has a single agent, then the keystore
// with the passphrase from the environment.
func (m *Manager) resolveIdentity(agentCfg domain.AgentConfig) (*keystore.Identity, error) {
	perAgentVar := "WALLET_SECRET_KEY_" + strings.ToUpper(strings.ReplaceAll(agentCfg.ID, "-", "_"))
	if value := m.cfg.SecretFromEnv(perAgentVar); value != "" {
		return keystore.LoadFromEnv(value, m.cfg.Production)
	}
	if len(m.cfg.Agents) == 1 {
		if value := m.cfg.SecretFromEnv("WALLET_SECRET_KEY"); value != "" {
			return keystore.LoadFromEnv(value, m.cfg.Production)
		}
	}
	if agentCfg.KeystorePath == "" {
		return nil, domain.NewError(domain.CodeInvalidConfig,
			"no keystorePath configured and no secret key in environment")
	}
	if m.cfg.WalletPassword == "" {
		return nil, domain.NewError(domain.CodeInvalidConfig,
			"WALLET_PASSWORD is required to open the keystore")
	}
	return keystore.Open(agentCfg.KeystorePath, m.cfg.WalletPassword)
}

// Stop flips stop on every loop, waits for their in-flight ticks to finish,
// zeroes every wallet, and closes the audit db.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil
	}

	m.log.Info("stopping agent fleet")
	for _, loop := range m.loops {
		loop.Stop()
	}
	m.wg.Wait()
	if m.cancel != nil {
		m.cancel()
	}
	for _, loop := range m.loops {
		loop.Wallet().Close()
	}

	m.running = false
	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close audit db: %w", err)
	}
	m.log.Info("agent fleet stopped")
	return nil
}

// Run starts the fleet and blocks until SIGINT/SIGTERM, then stops it.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.Start(ctx); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
		m.log.Info("interrupt received")
	case <-ctx.Done():
	}
	return m.Stop()
}

// GetAgentStates returns every loop's observable snapshot.
func (m *Manager) GetAgentStates() []domain.AgentLoopState {
	out := make([]domain.AgentLoopState, 0, len(m.loops))
	for _, loop := range m.loops {
		out = append(out, loop.State())
	}
	return out
}

// GetAgentState returns one loop's snapshot by agent id.
func (m *Manager) GetAgentState(agentID string) (domain.AgentLoopState, bool) {
	for _, loop := range m.loops {
		if st := loop.State(); st.AgentID == agentID {
			return st, true
		}
	}
	return domain.AgentLoopState{}, false
}

// GetAuditDb exposes the shared audit store for observability tooling.
func (m *Manager) GetAuditDb() *audit.DB {
	return m.db
}
