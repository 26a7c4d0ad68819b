package log

// ServiceLogger stamps every event with the owning service ("srv", "srv_id").
// Services listed in LogCfg.ServiceWhiteList log at every level regardless
// of the configured minimum, which allows verbose tracing of a single
// service in production.
type ServiceLogger struct {
	*GameLogger
	srvID       uint64
	srvName     string
	inWhiteList bool
}

// NewServiceLogger creates a logger for one service sharing the appenders of
// base. A nil base uses the default logger.
func NewServiceLogger(base *GameLogger, srvID uint64, srvName string) *ServiceLogger {
	if base == nil {
		base = _defaultLogger
	}
	return &ServiceLogger{
		GameLogger:  base,
		srvID:       srvID,
		srvName:     srvName,
		inWhiteList: base.GetCurrentConfig().IsInWhiteList(srvID),
	}
}

func (x *ServiceLogger) log(level Level) *LogEvent {
	e := x.GameLogger.logSkip(level, x.inWhiteList, 4)
	if e == nil {
		return nil
	}
	return e.Str("srv", x.srvName).Uint64("srv_id", x.srvID)
}

// IgnoreCheckLevel reports whether the service is whitelisted.
func (x *ServiceLogger) IgnoreCheckLevel() bool {
	return x.inWhiteList
}

// Debug starts a debug event.
func (x *ServiceLogger) Debug() *LogEvent {
	return x.log(DebugLevel)
}

// Info starts an info event.
func (x *ServiceLogger) Info() *LogEvent {
	return x.log(InfoLevel)
}

// Warn starts a warn event.
func (x *ServiceLogger) Warn() *LogEvent {
	return x.log(WarnLevel)
}

// Error starts an error event.
func (x *ServiceLogger) Error() *LogEvent {
	return x.log(ErrorLevel)
}

// Fatal starts a fatal event.
func (x *ServiceLogger) Fatal() *LogEvent {
	return x.log(FatalLevel)
}
