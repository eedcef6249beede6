package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestCensorReplacesKeyAdjacentFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewWithCore(core)

	log.Info("wallet loaded",
		zap.String("wallet_pk", "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"),
		zap.String("secret_key", "5Kb8kLf9zgWQnogidDA76MzPL6TsZZY36hWXMssSzNydYXYB9KF"),
		zap.String("SeedPhrase", "not actually censored, different name"),
		zap.String("seed", "aaaa"),
	)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()

	if got := fields["wallet_pk"]; got != "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin" {
		t.Errorf("wallet_pk = %v, want passthrough", got)
	}
	if got := fields["secret_key"]; got != Redacted {
		t.Errorf("secret_key = %v, want %q", got, Redacted)
	}
	if got := fields["seed"]; got != Redacted {
		t.Errorf("seed = %v, want %q", got, Redacted)
	}
	if got := fields["SeedPhrase"]; got == Redacted {
		t.Errorf("SeedPhrase should not be censored (not an exact name match)")
	}
}

func TestCensorOnChildLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewWithCore(core).With(zap.String("keypair", "deadbeef"))

	log.Info("tick")

	fields := logs.All()[0].ContextMap()
	if got := fields["keypair"]; got != Redacted {
		t.Errorf("keypair = %v, want %q", got, Redacted)
	}
}

func TestIsKeyAdjacent(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"secretKey", true},
		{"secret_key", true},
		{"SECRET_KEY", true},
		{"privateKey", true},
		{"private_key", true},
		{"keypair", true},
		{"key_pair", true},
		{"seed", true},
		{"mnemonic", true},
		{"key_material", true},
		{"publicKey", false},
		{"signature", false},
		{"wallet_pk", false},
	}
	for _, tt := range tests {
		if got := IsKeyAdjacent(tt.name); got != tt.want {
			t.Errorf("IsKeyAdjacent(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestCensorDoesNotMutateInput(t *testing.T) {
	fields := []zap.Field{zap.String("seed", "abc")}
	_ = Censor(fields)
	if fields[0].String != "abc" {
		t.Errorf("input slice mutated: %v", fields[0].String)
	}
}
