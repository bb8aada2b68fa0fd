package holyhook

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var logger atomic.Pointer[zap.Logger]

func init() {
	logger.Store(zap.NewNop())
}

// Logger used by the engine, a no-op logger until SetLogger.
func Logger() *zap.Logger {
	return logger.Load()
}

// SetLogger replaces the engine logger, nil restores the no-op logger.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger.Store(l.Named("hook"))
}
