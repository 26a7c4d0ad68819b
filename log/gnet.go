package log

import (
	"github.com/panjf2000/gnet/v2/pkg/logging"
)

// GnetLogger routes the reactor's internal logging into a Logger.
type GnetLogger struct {
	l Logger
}

var _ logging.Logger = (*GnetLogger)(nil)

// NewGnetLogger wraps l; nil wraps the default logger.
func NewGnetLogger(l Logger) *GnetLogger {
	if l == nil {
		l = _defaultLogger
	}
	return &GnetLogger{l: l}
}

func (x *GnetLogger) Debugf(format string, args ...any) {
	x.l.Debug().Str("mod", "gnet").Msgf(format, args...)
}

func (x *GnetLogger) Infof(format string, args ...any) {
	x.l.Info().Str("mod", "gnet").Msgf(format, args...)
}

func (x *GnetLogger) Warnf(format string, args ...any) {
	x.l.Warn().Str("mod", "gnet").Msgf(format, args...)
}

func (x *GnetLogger) Errorf(format string, args ...any) {
	x.l.Error().Str("mod", "gnet").Msgf(format, args...)
}

func (x *GnetLogger) Fatalf(format string, args ...any) {
	x.l.Fatal().Str("mod", "gnet").Msgf(format, args...)
}
