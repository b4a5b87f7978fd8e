// Package mdsolog is a thin structured-logging facade threaded through every
// package's constructors, mirroring the calling conventions of viam-server's
// logging.Logger (both printf-style Debugf/Infof and keyed structured
// Errorw/Warnw) without that package's remote log-collection machinery,
// which this library has no use for.
package mdsolog

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// Logger is the logging interface accepted by every constructor in this
// module. Implementations wrap a *zap.SugaredLogger.
type Logger interface {
	Debug(args ...interface{})
	Debugf(template string, args ...interface{})
	Debugw(msg string, keysAndValues ...interface{})
	Info(args ...interface{})
	Infof(template string, args ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
	Named(name string) Logger
}

type sugared struct {
	*zap.SugaredLogger
}

func (s *sugared) Named(name string) Logger {
	return &sugared{s.SugaredLogger.Named(name)}
}

// New returns a production logger (info level, console-encoded, stderr).
func New(name string) Logger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	l, err := cfg.Build()
	if err != nil {
		// Only config-construction errors reach here, never a runtime
		// condition; falling back to a no-op logger keeps callers from
		// having to handle a logger constructor failure.
		return &sugared{zap.NewNop().Sugar()}
	}
	return &sugared{l.Sugar().Named(name)}
}

// NewTestLogger returns a logger that writes through tb.Log, in the style of
// logging.NewTestLogger in the teacher's logging package.
func NewTestLogger(tb testing.TB) Logger {
	return &sugared{zaptest.NewLogger(tb).Sugar()}
}

// NewNop returns a logger that discards everything, for defaults in code
// paths where no logger was supplied.
func NewNop() Logger {
	return &sugared{zap.NewNop().Sugar()}
}
