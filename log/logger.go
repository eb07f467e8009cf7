// Package log wraps go.uber.org/zap behind the structured, key/value
// call shape the surrounding node code uses throughout (the same shape
// the teacher's own call sites expect, e.g. "Initialised chain
// configuration", "config", chainConfig): Info, Warn, Error, Debug,
// and Trace each take a message followed by alternating key/value
// pairs.
package log

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logger surface every package in this module
// logs through. A Logger is safe for concurrent use.
type Logger struct {
	sugar *zap.SugaredLogger
	name  string
}

var (
	rootOnce sync.Once
	root     *Logger
)

// Root returns the process-wide root logger, built lazily on first use
// from a production zap configuration. Tests that want quiet output
// should call SetRoot with a discard logger in TestMain or init.
func Root() *Logger {
	rootOnce.Do(func() {
		root = New(newProductionCore())
	})
	return root
}

// SetRoot replaces the process-wide root logger. Intended for tests
// and for cmd/nanod wiring a configured logger at startup.
func SetRoot(l *Logger) {
	rootOnce.Do(func() {}) // ensure future Root() calls don't clobber an explicit SetRoot
	root = l
}

// New builds a Logger around a zap core, unnamed.
func New(core zapcore.Core) *Logger {
	return &Logger{sugar: zap.New(core).Sugar()}
}

// Discard returns a Logger that drops everything, for tests that don't
// want log noise but still want the call sites exercised.
func Discard() *Logger {
	return New(zapcore.NewNopCore())
}

func newProductionCore() zapcore.Core {
	enc := zapcore.NewConsoleEncoder(zap.NewProductionEncoderConfig())
	return zapcore.NewCore(enc, zapcore.Lock(os.Stderr), zapcore.InfoLevel)
}

// Named returns a child logger scoped to the given component name, the
// way a node wires up one logger per subsystem (work pool, bootstrap,
// cementer, ...).
func (l *Logger) Named(name string) *Logger {
	full := name
	if l.name != "" {
		full = l.name + "." + name
	}
	return &Logger{sugar: l.sugar.Named(name), name: full}
}

func (l *Logger) Info(msg string, kv ...interface{})  { l.sugar.Infow(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.sugar.Warnw(msg, kv...) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.sugar.Errorw(msg, kv...) }
func (l *Logger) Debug(msg string, kv ...interface{}) { l.sugar.Debugw(msg, kv...) }

// Trace maps onto zap's Debug level: zap has no dedicated trace level,
// and a fifth level isn't worth a custom core for call sites that are
// already rare (one or two per package, for the chattiest inner loops).
func (l *Logger) Trace(msg string, kv ...interface{}) { l.sugar.Debugw(msg, kv...) }

// Sync flushes any buffered log entries. Call during shutdown.
func (l *Logger) Sync() error { return l.sugar.Sync() }
