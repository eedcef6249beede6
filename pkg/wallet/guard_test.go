package wallet

import (
	"strings"
	"testing"

	"github.com/meridian-labs/solagent/internal/core/domain"
)

func newTestGuard(t *testing.T, limits domain.SpendingLimits) *SpendingLimitGuard {
	t.Helper()
	g, err := NewSpendingLimitGuard(limits)
	if err != nil {
		t.Fatalf("NewSpendingLimitGuard() error = %v", err)
	}
	return g
}

func TestGuardConstructionValidation(t *testing.T) {
	tests := []struct {
		name    string
		limits  domain.SpendingLimits
		wantErr bool
	}{
		{"valid", domain.SpendingLimits{MaxPerTxLamports: 1, MaxSessionLamports: 1}, false},
		{"zero per-tx", domain.SpendingLimits{MaxPerTxLamports: 0, MaxSessionLamports: 1}, true},
		{"zero session", domain.SpendingLimits{MaxPerTxLamports: 1, MaxSessionLamports: 0}, true},
		{"per-tx above session", domain.SpendingLimits{MaxPerTxLamports: 2, MaxSessionLamports: 1}, true},
		{"empty allowlist", domain.SpendingLimits{MaxPerTxLamports: 1, MaxSessionLamports: 1, AllowedDestinations: []string{}}, true},
		{"allowlist ok", domain.SpendingLimits{MaxPerTxLamports: 1, MaxSessionLamports: 1, AllowedDestinations: []string{"dest"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSpendingLimitGuard(tt.limits)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewSpendingLimitGuard() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && domain.ErrorCode(err) != domain.CodeInvalidConfig {
				t.Errorf("error code = %v, want %v", domain.ErrorCode(err), domain.CodeInvalidConfig)
			}
		})
	}
}

func TestGuardPerTxLimit(t *testing.T) {
	g := newTestGuard(t, domain.SpendingLimits{
		MaxPerTxLamports:   100_000_000,
		MaxSessionLamports: 500_000_000,
	})

	if err := g.Check(100_000_000, ""); err != nil {
		t.Errorf("Check(at limit) error = %v, want nil", err)
	}

	err := g.Check(100_000_001, "")
	if domain.ErrorCode(err) != domain.CodeLimitBreach {
		t.Fatalf("error code = %v, want %v", domain.ErrorCode(err), domain.CodeLimitBreach)
	}
	if !strings.Contains(err.Error(), "per-tx limit") {
		t.Errorf("error %q should mention the per-tx limit", err.Error())
	}
	if !strings.Contains(err.Error(), "0.100000") {
		t.Errorf("error %q should contain the limit in SOL", err.Error())
	}
}

func TestGuardSessionCap(t *testing.T) {
	g := newTestGuard(t, domain.SpendingLimits{
		MaxPerTxLamports:   100_000_000,
		MaxSessionLamports: 500_000_000,
	})

	for i := 0; i < 4; i++ {
		if err := g.Check(100_000_000, ""); err != nil {
			t.Fatalf("cycle %d: Check() error = %v", i, err)
		}
		g.Record(100_000_000)
	}

	err := g.Check(100_000_001, "")
	if domain.ErrorCode(err) != domain.CodeLimitBreach {
		t.Fatalf("error code = %v, want %v", domain.ErrorCode(err), domain.CodeLimitBreach)
	}
	if !strings.Contains(err.Error(), "session cap") {
		t.Errorf("error %q: exhausted session reports the session cap", err.Error())
	}

	if got := g.SessionSpend(); got != 400_000_000 {
		t.Errorf("SessionSpend() = %d, want 400000000", got)
	}

	// Fifth cycle exhausts the session budget entirely.
	if err := g.Check(100_000_000, ""); err != nil {
		t.Fatalf("fifth Check() error = %v", err)
	}
	g.Record(100_000_000)
	err = g.Check(1, "")
	if domain.ErrorCode(err) != domain.CodeLimitBreach {
		t.Fatalf("error code = %v, want %v", domain.ErrorCode(err), domain.CodeLimitBreach)
	}
	if !strings.Contains(err.Error(), "session cap") {
		t.Errorf("error %q should mention the session cap", err.Error())
	}
}

func TestGuardSessionCapMessage(t *testing.T) {
	g := newTestGuard(t, domain.SpendingLimits{
		MaxPerTxLamports:   100_000_000,
		MaxSessionLamports: 150_000_000,
	})
	g.Record(100_000_000)

	err := g.Check(100_000_000, "")
	if err == nil || !strings.Contains(err.Error(), "session cap") {
		t.Errorf("error = %v, want session cap breach", err)
	}
}

func TestGuardCheckIsSideEffectFree(t *testing.T) {
	g := newTestGuard(t, domain.SpendingLimits{
		MaxPerTxLamports:   100,
		MaxSessionLamports: 100,
	})

	first := g.Check(60, "")
	second := g.Check(60, "")
	if (first == nil) != (second == nil) {
		t.Errorf("sequential checks disagree: %v vs %v", first, second)
	}
	if g.SessionSpend() != 0 {
		t.Errorf("Check() mutated session spend: %d", g.SessionSpend())
	}

	g.Record(60)
	if err := g.Check(60, ""); err == nil {
		t.Error("Check() after Record() should see the updated budget")
	}
}

func TestGuardAllowlist(t *testing.T) {
	g := newTestGuard(t, domain.SpendingLimits{
		MaxPerTxLamports:    100,
		MaxSessionLamports:  100,
		AllowedDestinations: []string{"dest-ok"},
	})

	if err := g.Check(10, "dest-ok"); err != nil {
		t.Errorf("Check(allowed dest) error = %v", err)
	}
	if err := g.Check(10, "dest-bad"); domain.ErrorCode(err) != domain.CodeLimitBreach {
		t.Errorf("Check(bad dest) code = %v, want %v", domain.ErrorCode(err), domain.CodeLimitBreach)
	}
	if err := g.Check(10, ""); domain.ErrorCode(err) != domain.CodeLimitBreach {
		t.Errorf("Check(missing dest) code = %v, want %v", domain.ErrorCode(err), domain.CodeLimitBreach)
	}
}

func TestGuardReset(t *testing.T) {
	g := newTestGuard(t, domain.SpendingLimits{MaxPerTxLamports: 10, MaxSessionLamports: 10})
	g.Record(10)
	g.ResetSession()
	if g.SessionSpend() != 0 {
		t.Errorf("SessionSpend() after reset = %d, want 0", g.SessionSpend())
	}
}

func TestGuardStatus(t *testing.T) {
	g := newTestGuard(t, domain.SpendingLimits{MaxPerTxLamports: 10, MaxSessionLamports: 100})
	g.Record(30)
	st := g.Status()
	if st.SessionSpend != 30 || st.SessionRemaining != 70 {
		t.Errorf("Status() = %+v, want spend 30 remaining 70", st)
	}
}
