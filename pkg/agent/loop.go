// Package agent drives strategies on a tick loop and supervises fleets of
// loops. A tick can fail in any way, including a panic inside a strategy,
// without taking the loop down; stop signals, local or remote, are observed
// between ticks only.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-labs/solagent/internal/core/domain"
	"github.com/meridian-labs/solagent/internal/strategy"
	"github.com/meridian-labs/solagent/pkg/audit"
	"github.com/meridian-labs/solagent/pkg/logging"
	"github.com/meridian-labs/solagent/pkg/wallet"
)

// remoteStopBuffer guards against stale stop rows halting a freshly
// restarted loop: a signal only counts when its timestamp is later than
// startedAt minus this buffer.
const remoteStopBuffer = 2 * time.Second

// LoopConfig binds one loop instance.
type LoopConfig struct {
	AgentID  string
	Interval time.Duration
	RunID    string
}

// Loop is one agent's tick engine. Owned state (wallet, guard, strategy) is
// only touched from the loop's own goroutine; the observable snapshot is the
// exception and sits behind mu.
type Loop struct {
	cfg    LoopConfig
	wallet *wallet.Client
	strat  strategy.Strategy
	quotes strategy.QuoteSource
	db     *audit.DB
	log    *logging.Logger

	mu          sync.RWMutex
	state       domain.AgentLoopState
	stopEmitted bool
	stopped     chan struct{}
	stop        sync.Once
}

// NewLoop binds a loop to its collaborators.
func NewLoop(cfg LoopConfig, w *wallet.Client, strat strategy.Strategy, quotes strategy.QuoteSource, db *audit.DB, log *logging.Logger) *Loop {
	return &Loop{
		cfg:    cfg,
		wallet: w,
		strat:  strat,
		quotes: quotes,
		db:     db,
		log:    log.Named(cfg.AgentID).With(zap.String("run_id", cfg.RunID)),
		state: domain.AgentLoopState{
			AgentID: cfg.AgentID,
			Status:  domain.LoopIdle,
		},
		stopped: make(chan struct{}),
	}
}

// Start runs the loop until stopped. It never returns an error: every tick
// failure is caught, classified, audited, and survived. Run it on its own
// goroutine.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	if l.state.Status == domain.LoopRunning {
		l.mu.Unlock()
		return
	}
	startedAt := time.Now()
	l.state.Status = domain.LoopRunning
	l.state.StartedAt = startedAt
	l.mu.Unlock()

	l.log.Info("agent loop starting",
		zap.String("strategy", l.strat.Name()),
		zap.Duration("interval", l.cfg.Interval))
	l.emit(ctx, audit.EventAgentStart, "", "", map[string]interface{}{
		"strategy": l.strat.Name(),
		"run_id":   l.cfg.RunID,
	})

	for !l.isStopping(ctx) {
		l.safeTick(ctx)
		if l.isStopping(ctx) {
			break
		}
		select {
		case <-ctx.Done():
		case <-l.stopped:
		case <-time.After(l.cfg.Interval):
		}
	}

	l.mu.Lock()
	l.state.Status = domain.LoopStopped
	alreadyEmitted := l.stopEmitted
	l.stopEmitted = true
	l.mu.Unlock()
	if !alreadyEmitted {
		l.emit(ctx, audit.EventAgentStop, "", "", map[string]interface{}{
			"run_id": l.cfg.RunID,
			"ticks":  fmt.Sprintf("%d", l.State().TickCount),
		})
	}
	l.log.Info("agent loop stopped")
}

// Stop flips the stop flag without interrupting the in-flight tick. The loop
// exits once the current tick completes.
func (l *Loop) Stop() {
	l.stop.Do(func() { close(l.stopped) })
}

// Done is closed once Stop has been requested.
func (l *Loop) Done() <-chan struct{} {
	return l.stopped
}

// State returns the observable snapshot.
func (l *Loop) State() domain.AgentLoopState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Wallet exposes the loop's wallet capability for observability accessors.
func (l *Loop) Wallet() *wallet.Client {
	return l.wallet
}

func (l *Loop) isStopping(ctx context.Context) bool {
	select {
	case <-l.stopped:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// safeTick runs one tick with full crash isolation: errors are classified
// into audit events, panics are recovered, and neither escapes to Start.
func (l *Loop) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			l.recordTickFailure(ctx, fmt.Errorf("tick panicked: %v", r))
		}
	}()
	if err := l.tick(ctx); err != nil {
		l.recordTickFailure(ctx, err)
	}
}

func (l *Loop) recordTickFailure(ctx context.Context, err error) {
	l.mu.Lock()
	l.state.LastError = err.Error()
	l.mu.Unlock()

	event := audit.EventAgentError
	if domain.ErrorCode(err) == domain.CodeLimitBreach {
		event = audit.EventLimitBreach
	}
	l.log.Error("tick failed", zap.String("event", event), zap.Error(err))

	details := map[string]interface{}{"error": err.Error()}
	if event == audit.EventLimitBreach {
		details["guard"] = guardDetails(l.wallet.GetSpendingLimitStatus())
	}
	l.emit(ctx, event, "", "", details)
}

func (l *Loop) tick(ctx context.Context) error {
	l.mu.Lock()
	l.state.TickCount++
	l.state.LastTickAt = time.Now()
	tickCount := l.state.TickCount
	startedAt := l.state.StartedAt
	lastActionAt := l.state.LastActionAt
	l.mu.Unlock()

	// Remote stop: the audit db doubles as a cross-process mailbox.
	if stopped, err := l.checkRemoteStop(ctx, startedAt); err != nil {
		l.log.Warn("remote stop check failed", zap.Error(err))
	} else if stopped {
		return nil
	}
	if l.isStopping(ctx) {
		return nil
	}

	state, err := l.gatherState(ctx, tickCount, lastActionAt)
	if err != nil {
		return err
	}

	action, err := l.strat.Decide(ctx, state)
	if err != nil {
		return err
	}
	if action == nil || action.Kind == domain.ActionNoop {
		rationale := ""
		if action != nil {
			rationale = action.Rationale
		}
		l.log.Debug("tick noop", zap.String("rationale", rationale))
		l.emit(ctx, audit.EventAgentNoop, "", "", map[string]interface{}{
			"rationale":   rationale,
			"sol_balance": fmt.Sprintf("%d", state.SolBalance),
		})
		return nil
	}

	l.log.Info("executing action",
		zap.String("kind", string(action.Kind)),
		zap.String("rationale", action.Rationale))

	result, err := l.strat.Execute(ctx, action, l.wallet, l.quotes)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.state.LastActionAt = time.Now()
	l.mu.Unlock()

	event := audit.EventAgentAction
	signature, status := "", ""
	details := action.Params()
	if result != nil {
		signature = result.Signature
		status = string(result.Status)
		switch result.Status {
		case domain.TxConfirmed:
			event = audit.EventTxConfirmed
		case domain.TxFailed, domain.TxSimulated:
			event = audit.EventTxFailed
		case domain.TxTimeout:
			event = audit.EventTxTimeout
		}
		if result.Error != "" {
			details["error"] = result.Error
		}
		if result.Slot > 0 {
			details["slot"] = fmt.Sprintf("%d", result.Slot)
		}
	}
	l.emit(ctx, event, signature, status, details)
	return nil
}

// checkRemoteStop stops the loop when a fresh system_stop_request row exists
// for this agent.
func (l *Loop) checkRemoteStop(ctx context.Context, startedAt time.Time) (bool, error) {
	row, err := l.db.LatestStopRequest(ctx, l.cfg.AgentID)
	if err != nil || row == nil {
		return false, err
	}
	if !row.TS.After(startedAt.Add(-remoteStopBuffer)) {
		return false, nil
	}

	l.log.Info("remote stop signal received", zap.Time("signal_ts", row.TS))
	l.Stop()
	l.mu.Lock()
	l.stopEmitted = true
	l.mu.Unlock()
	l.emit(ctx, audit.EventAgentStop, "", "", map[string]interface{}{
		"reason": "Remote stop signal received",
		"run_id": l.cfg.RunID,
	})
	return true, nil
}

// gatherState reads the SOL balance and every tracked token balance. Token
// reads run concurrently; a failed read degrades to zero rather than failing
// the tick.
func (l *Loop) gatherState(ctx context.Context, tickCount uint64, lastActionAt time.Time) (*domain.AgentState, error) {
	solBalance, err := l.wallet.GetSolBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read SOL balance: %w", err)
	}

	mints := l.strat.TrackedMints()
	balances := make(map[string]uint64, len(mints))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, mint := range mints {
		mint := mint
		g.Go(func() error {
			pk, err := solana.PublicKeyFromBase58(mint)
			if err != nil {
				l.log.Warn("tracked mint is not a valid address", zap.String("mint", mint))
				return nil
			}
			amount, err := l.wallet.GetTokenBalance(gctx, pk)
			if err != nil {
				l.log.Warn("token balance read failed, treating as zero",
					zap.String("mint", mint), zap.Error(err))
				amount = 0
			}
			mu.Lock()
			balances[mint] = amount
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &domain.AgentState{
		SolBalance:    solBalance,
		TokenBalances: balances,
		TickCount:     tickCount,
		LastActionAt:  lastActionAt,
	}, nil
}

// emit writes an audit event; audit failures are logged, never propagated.
// The insert runs on a background context so stop events are recorded even
// when the loop's own context is already canceled.
func (l *Loop) emit(_ context.Context, event, signature, status string, details map[string]interface{}) {
	err := l.db.Insert(context.Background(), audit.Event{
		AgentID:   l.cfg.AgentID,
		Event:     event,
		WalletPK:  l.wallet.PublicKey().String(),
		Signature: signature,
		Status:    status,
		Details:   details,
	})
	if err != nil {
		l.log.Error("audit insert failed", zap.String("event", event), zap.Error(err))
	}
}

func guardDetails(st wallet.GuardStatus) map[string]interface{} {
	return map[string]interface{}{
		"max_per_tx_lamports":  fmt.Sprintf("%d", st.MaxPerTxLamports),
		"max_session_lamports": fmt.Sprintf("%d", st.MaxSessionLamports),
		"session_spend":        fmt.Sprintf("%d", st.SessionSpend),
		"session_remaining":    fmt.Sprintf("%d", st.SessionRemaining),
	}
}
