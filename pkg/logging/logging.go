// Package logging provides the component loggers used across arc-ledger.
package logging

import (
	"context"
	"encoding/hex"
	"log/slog"

	"github.com/gezibash/arc-ledger/pkg/identity"
)

// Logger is a slog.Logger with helpers for the attributes the ledger,
// directory and mailbox log most often. Loggers are immutable; every With*
// call returns a new one.
type Logger struct {
	base *slog.Logger
}

// New wraps base. A nil base means slog.Default() at the time of the call.
func New(base *slog.Logger) *Logger {
	if base == nil {
		base = slog.Default()
	}
	return &Logger{base: base}
}

// With returns a Logger that adds attrs to every record.
func (l *Logger) With(attrs ...slog.Attr) *Logger {
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	return &Logger{base: l.base.With(args...)}
}

// WithComponent tags records with the emitting component.
func (l *Logger) WithComponent(name string) *Logger {
	return l.With(slog.String("component", name))
}

// WithGroup tags records with the group they concern. It does not open a
// slog attribute group.
func (l *Logger) WithGroup(name string) *Logger {
	return l.With(slog.String("group", name))
}

// WithUser tags records with a directory username.
func (l *Logger) WithUser(username string) *Logger {
	return l.With(slog.String("user", username))
}

// WithPubkey tags records with a shortened public key under key.
func (l *Logger) WithPubkey(key string, pk identity.PublicKey) *Logger {
	return l.With(slog.String(key, FormatPubkey(pk)))
}

// WithError tags records with err's message.
func (l *Logger) WithError(err error) *Logger {
	return l.With(slog.String("error", err.Error()))
}

func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.base.DebugContext(ctx, msg, args...)
}

func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.base.InfoContext(ctx, msg, args...)
}

func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.base.WarnContext(ctx, msg, args...)
}

func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.base.ErrorContext(ctx, msg, args...)
}

// Slog returns the underlying logger with every attribute applied.
func (l *Logger) Slog() *slog.Logger {
	return l.base
}

// FormatPubkey returns the first eight bytes of a key in hex.
func FormatPubkey(pk identity.PublicKey) string {
	if len(pk.Bytes) <= 8 {
		return hex.EncodeToString(pk.Bytes)
	}
	return hex.EncodeToString(pk.Bytes[:8]) + "..."
}
