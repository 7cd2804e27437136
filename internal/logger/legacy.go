package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
)

// LegacyLogger writes "[LEVEL] msg k=v" lines with fmt, for terminals where
// the slog console handler misbehaves. Warnings and errors go to errOut.
type LegacyLogger struct {
	level  *atomic.Int64 // shared with children
	out    io.Writer
	errOut io.Writer
	fields []any
}

// NewLegacyLogger logs info and above to stdout and stderr
func NewLegacyLogger() *LegacyLogger {
	l := &LegacyLogger{level: new(atomic.Int64), out: os.Stdout, errOut: os.Stderr}
	l.level.Store(int64(LevelInfo))
	return l
}

// SetLevel changes the threshold of this logger and every child
func (l *LegacyLogger) SetLevel(level Level) {
	l.level.Store(int64(level))
}

func (l *LegacyLogger) emit(level Level, msg string, args []any) {
	if int64(level) < l.level.Load() {
		return
	}

	var b strings.Builder
	b.WriteString("[" + strings.ToUpper(level.String()) + "] " + msg)
	for i, kv := 0, append(l.fields[:len(l.fields):len(l.fields)], args...); i < len(kv); i += 2 {
		if i+1 == len(kv) {
			fmt.Fprintf(&b, " %v", kv[i])
			break
		}
		fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
	}
	b.WriteByte('\n')

	w := l.out
	if level >= LevelWarn {
		w = l.errOut
	}
	io.WriteString(w, b.String())
}

func (l *LegacyLogger) Debug(msg string, args ...any) { l.emit(LevelDebug, msg, args) }
func (l *LegacyLogger) Info(msg string, args ...any)  { l.emit(LevelInfo, msg, args) }
func (l *LegacyLogger) Warn(msg string, args ...any)  { l.emit(LevelWarn, msg, args) }
func (l *LegacyLogger) Error(msg string, args ...any) { l.emit(LevelError, msg, args) }

// With returns a child sharing the writers and the level
func (l *LegacyLogger) With(args ...any) Logger {
	child := *l
	child.fields = append(l.fields[:len(l.fields):len(l.fields)], args...)
	return &child
}

func (l *LegacyLogger) Sync() error     { return nil }
func (l *LegacyLogger) Shutdown() error { return nil }
