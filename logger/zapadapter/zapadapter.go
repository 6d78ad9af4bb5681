// Package zapadapter wraps a *zap.SugaredLogger behind this module's
// logger.Logger interface, the same thin-adapter shape used elsewhere in
// this ecosystem to let callers plug in their logging library of choice
// without the runtime importing it directly.
package zapadapter

import (
	"go.uber.org/zap"

	"github.com/V-Play-Games/RAWF/logger"
)

type zapLogger struct {
	sugar *zap.SugaredLogger
}

var _ logger.Logger = &zapLogger{}

// New wraps l behind logger.Logger. A nil l falls back to zap.NewNop(),
// mirroring the nil-safe construction of this module's other adapters.
func New(l *zap.Logger) logger.Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return &zapLogger{sugar: l.Sugar()}
}

func (z *zapLogger) Debugf(format string, args ...any) { z.sugar.Debugf(format, args...) }
func (z *zapLogger) Infof(format string, args ...any)  { z.sugar.Infof(format, args...) }
func (z *zapLogger) Warnf(format string, args ...any)  { z.sugar.Warnf(format, args...) }
func (z *zapLogger) Errorf(format string, args ...any) { z.sugar.Errorf(format, args...) }
