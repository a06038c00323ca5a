package badgerfx

import (
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// zapLogger routes badger diagnostics to zap. Badger info lines are logged
// at debug level.
type zapLogger struct {
	logger *zap.Logger
}

func newLogger(l *zap.Logger) *zapLogger {
	return &zapLogger{
		logger: l.WithOptions(zap.AddCallerSkip(2)),
	}
}

func (l *zapLogger) log(level zapcore.Level, format string, a []any) {
	if !l.logger.Core().Enabled(level) {
		return
	}
	l.logger.Log(level, strings.TrimRight(fmt.Sprintf(format, a...), "\n"))
}

// Debugf implements badger.Logger.
func (l *zapLogger) Debugf(format string, a ...any) { l.log(zapcore.DebugLevel, format, a) }

// Infof implements badger.Logger.
func (l *zapLogger) Infof(format string, a ...any) { l.log(zapcore.DebugLevel, format, a) }

// Warningf implements badger.Logger.
func (l *zapLogger) Warningf(format string, a ...any) { l.log(zapcore.WarnLevel, format, a) }

// Errorf implements badger.Logger.
func (l *zapLogger) Errorf(format string, a ...any) { l.log(zapcore.ErrorLevel, format, a) }

var _ badger.Logger = (*zapLogger)(nil)
