// Package audit is the append-only event log shared by every agent loop. It
// doubles as the cross-process mailbox for remote stop signals. No update or
// delete operation exists by contract.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/meridian-labs/solagent/internal/core/domain"
)

// Event kinds.
const (
	EventTxAttempt         = "tx_attempt"
	EventTxConfirmed       = "tx_confirmed"
	EventTxFailed          = "tx_failed"
	EventTxTimeout         = "tx_timeout"
	EventAgentAction       = "agent_action"
	EventAgentNoop         = "agent_noop"
	EventAgentStart        = "agent_start"
	EventAgentStop         = "agent_stop"
	EventAgentError        = "agent_error"
	EventLimitBreach       = "limit_breach"
	EventSystemStopRequest = "system_stop_request"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    ts           TEXT NOT NULL,
    agent_id     TEXT NOT NULL,
    event        TEXT NOT NULL,
    wallet_pk    TEXT NOT NULL,
    signature    TEXT,
    status       TEXT,
    details_json TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_agent_ts  ON events (agent_id, ts);
CREATE INDEX IF NOT EXISTS idx_events_event_ts  ON events (event, ts);
CREATE INDEX IF NOT EXISTS idx_events_wallet_ts ON events (wallet_pk, ts);
`

// tsLayout is RFC3339 with a fixed nine-digit fraction, so the text order of
// stored timestamps matches their time order.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Event is one append-only row before insertion.
type Event struct {
	AgentID   string
	Event     string
	WalletPK  string
	Signature string
	Status    string
	Details   map[string]interface{}
}

// Record is one stored row.
type Record struct {
	ID        int64     `json:"id"`
	TS        time.Time `json:"ts"`
	AgentID   string    `json:"agent_id"`
	Event     string    `json:"event"`
	WalletPK  string    `json:"wallet_pk"`
	Signature string    `json:"signature,omitempty"`
	Status    string    `json:"status,omitempty"`
	Details   string    `json:"details_json"`
}

// Filter narrows a Query. Zero values match everything.
type Filter struct {
	AgentID  string
	WalletPK string
	Event    string
	Before   time.Time
	Limit    int
}

// Summary is one (agent, event, count) aggregation row.
type Summary struct {
	AgentID string `json:"agent_id"`
	Event   string `json:"event"`
	Count   int64  `json:"count"`
}

// DB is the sqlite-backed audit store. One logical writer path; writes are
// serialized behind mu, readers go through the WAL journal concurrently.
type DB struct {
	db     *sql.DB
	mu     sync.Mutex
	closed bool
}

// Open opens (creating if necessary) the audit database at path with WAL
// journaling and normal synchronous mode.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, domain.Errorf(domain.CodeSchemaMismatch, "failed to apply audit schema: %v", err)
	}
	return &DB{db: db}, nil
}

// Insert appends one event. Details are sanitized before serialization and
// the serialized blob is re-checked for key material; a hit aborts the write.
func (a *DB) Insert(ctx context.Context, ev Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return domain.NewError(domain.CodeClosedStore, "audit db is closed")
	}

	detailsJSON, err := marshalDetails(ev.Details)
	if err != nil {
		return err
	}

	_, err = a.db.ExecContext(ctx,
		`INSERT INTO events (ts, agent_id, event, wallet_pk, signature, status, details_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(tsLayout),
		ev.AgentID, ev.Event, ev.WalletPK,
		nullable(ev.Signature), nullable(ev.Status), detailsJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

func marshalDetails(details map[string]interface{}) (string, error) {
	clean := Sanitize(sanitizeParams(details))
	if clean == nil {
		clean = map[string]interface{}{}
	}
	raw, err := json.Marshal(clean)
	if err != nil {
		return "", fmt.Errorf("failed to serialize details: %w", err)
	}
	if err := AssertNoKeyMaterial(string(raw)); err != nil {
		return "", err
	}
	return string(raw), nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Query returns matching rows in descending timestamp order. Limit defaults
// to 50.
func (a *DB) Query(ctx context.Context, f Filter) ([]Record, error) {
	if err := a.ensureOpen(); err != nil {
		return nil, err
	}

	where := []string{"1=1"}
	args := []interface{}{}
	if f.AgentID != "" {
		where = append(where, "agent_id = ?")
		args = append(args, f.AgentID)
	}
	if f.WalletPK != "" {
		where = append(where, "wallet_pk = ?")
		args = append(args, f.WalletPK)
	}
	if f.Event != "" {
		where = append(where, "event = ?")
		args = append(args, f.Event)
	}
	if !f.Before.IsZero() {
		where = append(where, "ts < ?")
		args = append(args, f.Before.UTC().Format(tsLayout))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)

	query := fmt.Sprintf(
		`SELECT id, ts, agent_id, event, wallet_pk, COALESCE(signature, ''), COALESCE(status, ''), details_json
		 FROM events WHERE %s ORDER BY ts DESC, id DESC LIMIT ?`,
		strings.Join(where, " AND "))

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit query failed: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var ts string
		if err := rows.Scan(&r.ID, &ts, &r.AgentID, &r.Event, &r.WalletPK, &r.Signature, &r.Status, &r.Details); err != nil {
			return nil, fmt.Errorf("audit scan failed: %w", err)
		}
		r.TS, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("audit row %d has malformed timestamp %q: %w", r.ID, ts, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestStopRequest returns the newest system_stop_request row for agentID,
// or nil when none exists.
func (a *DB) LatestStopRequest(ctx context.Context, agentID string) (*Record, error) {
	rows, err := a.Query(ctx, Filter{AgentID: agentID, Event: EventSystemStopRequest, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// Summarise aggregates row counts per (agent, event).
func (a *DB) Summarise(ctx context.Context) ([]Summary, error) {
	if err := a.ensureOpen(); err != nil {
		return nil, err
	}
	rows, err := a.db.QueryContext(ctx,
		`SELECT agent_id, event, COUNT(*) FROM events GROUP BY agent_id, event ORDER BY agent_id, event`)
	if err != nil {
		return nil, fmt.Errorf("audit summarise failed: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.AgentID, &s.Event, &s.Count); err != nil {
			return nil, fmt.Errorf("audit scan failed: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Count returns the number of rows matching the optional agent and wallet
// filters.
func (a *DB) Count(ctx context.Context, agentID, walletPK string) (int64, error) {
	if err := a.ensureOpen(); err != nil {
		return 0, err
	}
	where := []string{"1=1"}
	args := []interface{}{}
	if agentID != "" {
		where = append(where, "agent_id = ?")
		args = append(args, agentID)
	}
	if walletPK != "" {
		where = append(where, "wallet_pk = ?")
		args = append(args, walletPK)
	}
	var n int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM events WHERE %s", strings.Join(where, " AND "))
	if err := a.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("audit count failed: %w", err)
	}
	return n, nil
}

// Close checkpoints the WAL journal and closes the store. Subsequent writes
// fail with a closed-store error.
func (a *DB) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	if _, err := a.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		a.db.Close()
		return fmt.Errorf("wal checkpoint failed: %w", err)
	}
	return a.db.Close()
}

func (a *DB) ensureOpen() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return domain.NewError(domain.CodeClosedStore, "audit db is closed")
	}
	return nil
}
