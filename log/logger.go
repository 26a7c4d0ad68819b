package log

import (
	"github.com/lcx/commlib/config"
)

// Logger is implemented by every logger of the runtime.
type Logger interface {
	Debug() *LogEvent
	Info() *LogEvent
	Warn() *LogEvent
	Error() *LogEvent
	Fatal() *LogEvent
	IgnoreCheckLevel() bool
	GetAppender() []LogAppender
	AddAppender(appender LogAppender)
	OnEventEnd(e *LogEvent)
}

var _defaultLogger *GameLogger

func init() {
	_defaultLogger = NewLogger(nil)
}

// AddAppender adds an appender to the default logger.
func AddAppender(appender LogAppender) {
	_defaultLogger.AddAppender(appender)
}

// Refresh flushes the appenders of the default logger.
func Refresh() {
	_defaultLogger.Refresh()
}

// SetDefaultLogger replaces the logger behind the package-level functions.
func SetDefaultLogger(logger *GameLogger) {
	_defaultLogger = logger
}

// DefaultLogger returns the logger behind the package-level functions.
func DefaultLogger() *GameLogger {
	return _defaultLogger
}

// SetLevel changes the level of the default logger.
func SetLevel(level Level) {
	_defaultLogger.SetLevel(level)
}

// InitializeWithConfigManager loads the "logger" configuration from
// configManager and installs a hot-reloadable default logger built from it.
//
// Parameters:
//   - configManager: configuration manager, nil keeps the current logger
//
// Returns:
//   - error if the configuration cannot be loaded
func InitializeWithConfigManager(configManager config.ConfigManager) error {
	if configManager == nil {
		return nil
	}

	logCfg := &LogCfg{}
	if err := configManager.LoadConfig(_loggerConfigName, logCfg); err != nil {
		return err
	}

	SetDefaultLogger(NewLoggerWithConfigManager(logCfg, configManager))
	return nil
}

// Initialize is InitializeWithConfigManager on the config singleton.
func Initialize() error {
	return InitializeWithConfigManager(config.GetInstance())
}

// Debug starts a debug event on the default logger.
func Debug() *LogEvent {
	return _defaultLogger.Debug()
}

// Info starts an info event on the default logger.
func Info() *LogEvent {
	return _defaultLogger.Info()
}

// Warn starts a warn event on the default logger.
func Warn() *LogEvent {
	return _defaultLogger.Warn()
}

// Error starts an error event on the default logger.
func Error() *LogEvent {
	return _defaultLogger.Error()
}

// Fatal starts a fatal event on the default logger. Terminating it panics.
func Fatal() *LogEvent {
	return _defaultLogger.Fatal()
}
