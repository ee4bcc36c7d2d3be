package logger

import (
	"context"
	"io"
	"os"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/angelmondragon/storefront-backend/pkg/env"
)

// Output formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Options configures the structured logger.
type Options struct {
	ServiceName string
	Level       zerolog.Level
	// WarnStack adds a stack trace to warn entries as well as errors.
	WarnStack bool
	Output    io.Writer
	// Format is json or console; empty reads STOREFRONT_LOG_FORMAT.
	Format string
}

// Logger writes structured entries. Fields attached to a context with
// WithField or WithFields ride along on every entry logged with it.
type Logger struct {
	root      zerolog.Logger
	warnStack bool
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{root: zerolog.Nop()}
}

func New(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	format := opts.Format
	if format == "" {
		format = env.Get("STOREFRONT_LOG_FORMAT", FormatJSON)
	}
	if strings.EqualFold(format, FormatConsole) {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}
	level := opts.Level
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	root := zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", opts.ServiceName).
		Logger()
	return &Logger{root: root, warnStack: opts.WarnStack}
}

// ParseLevel maps a config string to a level, defaulting to info.
func ParseLevel(value string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// from returns the context-scoped logger when ctx carries one from this
// package, else the root.
func (l *Logger) from(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if scoped, ok := ctx.Value(scopedKey{}).(*zerolog.Logger); ok {
			return scoped
		}
	}
	return &l.root
}

type scopedKey struct{}

func (l *Logger) scope(ctx context.Context, build func(zerolog.Context) zerolog.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	next := build(l.from(ctx).With()).Logger()
	return context.WithValue(ctx, scopedKey{}, &next)
}

// WithField attaches key to every later entry logged with the returned ctx.
// Values under credential-like keys are replaced with a placeholder.
func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	return l.scope(ctx, func(c zerolog.Context) zerolog.Context {
		return c.Interface(key, redact(key, value))
	})
}

// WithFields is WithField for several keys, applied in key order.
func (l *Logger) WithFields(ctx context.Context, fields map[string]any) context.Context {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return l.scope(ctx, func(c zerolog.Context) zerolog.Context {
		for _, k := range keys {
			c = c.Interface(k, redact(k, fields[k]))
		}
		return c
	})
}

const redacted = "[redacted]"

var sensitiveKeyParts = []string{"secret", "password", "token", "authorization", "securehash"}

func redact(key string, value any) any {
	normalized := strings.ToLower(strings.ReplaceAll(key, "_", ""))
	for _, part := range sensitiveKeyParts {
		if strings.Contains(normalized, part) {
			return redacted
		}
	}
	return value
}

func (l *Logger) WithRequestID(ctx context.Context, requestID string) context.Context {
	return l.WithField(ctx, "request_id", requestID)
}

func (l *Logger) WithUserID(ctx context.Context, userID string) context.Context {
	return l.WithField(ctx, "user_id", userID)
}

func (l *Logger) WithGuestSession(ctx context.Context, sessionID string) context.Context {
	return l.WithField(ctx, "guest_session", sessionID)
}

func (l *Logger) WithTxnRef(ctx context.Context, txnRef string) context.Context {
	return l.WithField(ctx, "txn_ref", txnRef)
}

// Event tags the entry with a dotted event name such as "cart.sync.failed".
func (l *Logger) Event(ctx context.Context, name string) context.Context {
	return l.WithField(ctx, "event", name)
}

func (l *Logger) Debug(ctx context.Context, msg string) {
	l.from(ctx).Debug().Msg(msg)
}

func (l *Logger) Info(ctx context.Context, msg string) {
	l.from(ctx).Info().Msg(msg)
}

func (l *Logger) Warn(ctx context.Context, msg string) {
	entry := l.from(ctx).Warn()
	if l.warnStack {
		entry = entry.Str("stack", stack())
	}
	entry.Msg(msg)
}

// Error always carries a stack; a nil err logs the message alone.
func (l *Logger) Error(ctx context.Context, msg string, err error) {
	entry := l.from(ctx).Error()
	if err != nil {
		entry = entry.Err(err)
	}
	entry.Str("stack", stack()).Msg(msg)
}

func stack() string {
	return strings.TrimSpace(string(debug.Stack()))
}
