package registry

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var logger atomic.Pointer[zap.Logger]

func init() {
	logger.Store(zap.NewNop())
}

// Logger used by the registry and handed to modules through Env.Logger.
func Logger() *zap.Logger {
	return logger.Load()
}

// SetLogger replaces the registry logger, nil restores the no-op logger.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger.Store(l.Named("registry"))
}
