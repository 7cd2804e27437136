package logger

import (
	"errors"
	"os"
	"sync"
	"sync/atomic"
)

// LegacyEnvVar switches to the plain fmt logger when set to "true"
const LegacyEnvVar = "IPMTOOL_USE_LEGACY_LOGGER"

// ErrAlreadyInitialized is returned by a second Init without Shutdown
var ErrAlreadyInitialized = errors.New("logger already initialized; call Shutdown() before re-initializing")

var (
	// current 為 nil 代表尚未初始化
	current atomic.Pointer[holder]
	// initMu serializes Init and Shutdown; Get never blocks
	initMu sync.Mutex
)

type holder struct{ Logger }

// Init installs the process-wide logger built from config
func Init(config Config) error {
	initMu.Lock()
	defer initMu.Unlock()

	if current.Load() != nil {
		return ErrAlreadyInitialized
	}

	var l Logger
	if os.Getenv(LegacyEnvVar) == "true" {
		legacy := NewLegacyLogger()
		legacy.SetLevel(config.Level)
		l = legacy
	} else {
		slogger, err := NewSlogLogger(config)
		if err != nil {
			return err
		}
		l = slogger
	}

	current.Store(&holder{l})
	return nil
}

// Get returns the installed logger, or a NullLogger before Init
func Get() Logger {
	if h := current.Load(); h != nil {
		return h.Logger
	}
	return nullLogger
}

// With returns a child of the installed logger
func With(args ...any) Logger {
	return Get().With(args...)
}

// Sync flushes the installed logger
func Sync() error {
	return Get().Sync()
}

// Shutdown closes the installed logger. Calling it again is a no-op.
func Shutdown() error {
	initMu.Lock()
	h := current.Swap(nil)
	initMu.Unlock()

	if h == nil {
		return nil
	}
	return h.Shutdown()
}

// SetLevel changes the level of the legacy logger; slog loggers keep their level
func SetLevel(level Level) {
	if legacy, ok := Get().(*LegacyLogger); ok {
		legacy.SetLevel(level)
	}
}

var nullLogger Logger = &NullLogger{}

// NullLogger discards everything
type NullLogger struct{}

func (n *NullLogger) Debug(msg string, args ...any) {}
func (n *NullLogger) Info(msg string, args ...any)  {}
func (n *NullLogger) Warn(msg string, args ...any)  {}
func (n *NullLogger) Error(msg string, args ...any) {}
func (n *NullLogger) With(args ...any) Logger       { return n }
func (n *NullLogger) Sync() error                   { return nil }
func (n *NullLogger) Shutdown() error               { return nil }
