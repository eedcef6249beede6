// Package logging wraps zap with a field censor so that key-adjacent field
// names can never reach a sink. The censor is defence in depth; the primary
// guarantee is that the wallet capability cannot produce secret bytes at all.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Redacted replaces the value of any censored field.
const Redacted = "[REDACTED]"

// keyAdjacentNames is the normalized (lowercase, underscores stripped) set of
// field names that must never be logged or persisted with their values.
// Shared contract with the audit sanitizer.
var keyAdjacentNames = map[string]struct{}{
	"secretkey":   {},
	"privatekey":  {},
	"keypair":     {},
	"seed":        {},
	"mnemonic":    {},
	"keymaterial": {},
}

// IsKeyAdjacent reports whether a field name matches the censored set,
// ignoring case and underscores.
func IsKeyAdjacent(name string) bool {
	normalized := strings.ReplaceAll(strings.ToLower(name), "_", "")
	_, ok := keyAdjacentNames[normalized]
	return ok
}

// KeyAdjacentSubstrings returns the censored name set for substring scans.
func KeyAdjacentSubstrings() []string {
	out := make([]string, 0, len(keyAdjacentNames))
	for name := range keyAdjacentNames {
		out = append(out, name)
	}
	return out
}

// Logger is a leveled structured logger. All field lists pass through the
// censor before emission.
type Logger struct {
	z *zap.Logger
}

// New builds a logger at the given level ("debug", "info", "warn", "error").
// Unknown levels fall back to info.
func New(level string) (*Logger, error) {
	var lvl zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = zapcore.DebugLevel
	case "", "info":
		lvl = zapcore.InfoLevel
	case "warn", "warning":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	default:
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return &Logger{z: z}, nil
}

// NewNop returns a logger that discards everything. For tests.
func NewNop() *Logger {
	return &Logger{z: zap.NewNop()}
}

// NewWithCore builds a logger over a caller-supplied core. For tests that
// observe emitted entries.
func NewWithCore(core zapcore.Core) *Logger {
	return &Logger{z: zap.New(core)}
}

// Named returns a child logger with the given name segment appended.
func (l *Logger) Named(name string) *Logger {
	return &Logger{z: l.z.Named(name)}
}

// With returns a child logger carrying the censored fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{z: l.z.With(Censor(fields)...)}
}

func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.z.Debug(msg, Censor(fields)...)
}

func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.z.Info(msg, Censor(fields)...)
}

func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.z.Warn(msg, Censor(fields)...)
}

func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.z.Error(msg, Censor(fields)...)
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.z.Sync()
}

// Censor replaces the value of every key-adjacent field with Redacted. The
// input slice is not mutated.
func Censor(fields []zap.Field) []zap.Field {
	censored := false
	for _, f := range fields {
		if IsKeyAdjacent(f.Key) {
			censored = true
			break
		}
	}
	if !censored {
		return fields
	}
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		if IsKeyAdjacent(f.Key) {
			out[i] = zap.String(f.Key, Redacted)
		} else {
			out[i] = f
		}
	}
	return out
}
