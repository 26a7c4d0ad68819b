package log

import (
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lcx/commlib/config"
)

// GameLogger is the thread-safe leveled logger used by every service of the
// runtime. Events are pooled, formatted as one JSON object per line and
// written to all registered appenders.
//
// Example usage:
//
//	logger := NewLogger(&LogCfg{LogLevel: InfoLevel, ConsoleAppender: true})
//	logger.Info().Str("srv", "net").Uint64("hd", 7).Msg("conn established")
type GameLogger struct {
	appenders         []LogAppender
	minLevel          atomic.Uint32
	callerSkip        int
	eventPool         *sync.Pool
	levelChange       atomic.Pointer[levelChange]
	callerCache       sync.Map // pc -> *callerInfo
	enabledCallerInfo atomic.Bool
	configManager     config.ConfigManager
	configMutex       sync.RWMutex
	currentConfig     *LogCfg
}

// NewLogger creates a GameLogger. A nil cfg selects the defaults
// (debug level, console only).
func NewLogger(cfg *LogCfg) *GameLogger {
	if cfg == nil {
		cfg = getDefaultCfg()
	}

	logger := &GameLogger{
		callerSkip:    cfg.CallerSkip,
		currentConfig: cfg,
	}
	logger.minLevel.Store(uint32(cfg.LogLevel))
	logger.levelChange.Store(newLevelChange(cfg.LevelChange))
	logger.enabledCallerInfo.Store(cfg.EnabledCallerInfo)

	logger.eventPool = &sync.Pool{
		New: func() any {
			return newEvent(logger)
		},
	}

	if cfg.FileAppender {
		logger.AddAppender(NewFileAppender(cfg, logger))
	}

	if cfg.ConsoleAppender {
		logger.AddAppender(NewConsoleAppender())
	}

	return logger
}

// NewLoggerWithConfigManager creates a GameLogger registered as a change
// listener of configManager, so that edits of the "logger" config file are
// applied without restart.
//
// Parameters:
//   - cfg: initial configuration
//   - configManager: manager delivering later versions of the "logger" config
//
// Returns:
//   - the logger, already subscribed for hot-reload
func NewLoggerWithConfigManager(cfg *LogCfg, configManager config.ConfigManager) *GameLogger {
	logger := NewLogger(cfg)
	logger.configManager = configManager

	if configManager != nil {
		configManager.AddChangeListener(logger)
		logger.reconfigureAppendersWithConfigManager(configManager)
	}

	return logger
}

func (x *GameLogger) reconfigureAppendersWithConfigManager(configManager config.ConfigManager) {
	cfg, err := configManager.GetConfig(_loggerConfigName)
	if err != nil {
		return
	}
	logCfg, ok := cfg.(*LogCfg)
	if !ok {
		return
	}

	x.appenders = nil
	if logCfg.FileAppender {
		x.AddAppender(NewFileAppenderWithConfigManager(configManager, x))
	}
	if logCfg.ConsoleAppender {
		x.AddAppender(NewConsoleAppender())
	}
}

// OnConfigChanged implements config.ConfigChangeListener.
func (x *GameLogger) OnConfigChanged(configName string, newConfig, oldConfig config.Config) error {
	if configName != _loggerConfigName {
		return nil
	}

	newLogCfg, ok := newConfig.(*LogCfg)
	if !ok {
		return nil
	}

	x.updateConfig(newLogCfg)

	for _, appender := range x.appenders {
		if listener, ok := appender.(config.ConfigChangeListener); ok {
			if err := listener.OnConfigChanged(configName, newConfig, oldConfig); err != nil {
				x.Error().Err(err).Msg("notify appender config change failed")
			}
		}
	}

	return nil
}

func (x *GameLogger) updateConfig(newCfg *LogCfg) {
	x.configMutex.Lock()
	x.minLevel.Store(uint32(newCfg.LogLevel))
	x.callerSkip = newCfg.CallerSkip
	x.enabledCallerInfo.Store(newCfg.EnabledCallerInfo)
	x.levelChange.Store(newLevelChange(newCfg.LevelChange))
	x.currentConfig = newCfg
	x.configMutex.Unlock()

	x.Refresh()
}

// SetLevel changes the minimum level.
func (x *GameLogger) SetLevel(level Level) {
	x.minLevel.Store(uint32(level))
}

// GetCurrentConfig returns the configuration in effect.
func (x *GameLogger) GetCurrentConfig() *LogCfg {
	x.configMutex.RLock()
	defer x.configMutex.RUnlock()
	return x.currentConfig
}

func (x *GameLogger) checkLevel(level Level) bool {
	return Level(x.minLevel.Load()) <= level
}

// AddAppender registers another output. Not safe to call concurrently with logging.
func (x *GameLogger) AddAppender(appender LogAppender) {
	x.appenders = append(x.appenders, appender)
}

// GetAppender returns the registered appenders.
func (x *GameLogger) GetAppender() []LogAppender {
	return x.appenders
}

// Refresh flushes all appenders.
func (x *GameLogger) Refresh() {
	for _, appender := range x.appenders {
		appender.Refresh()
	}
}

// IgnoreCheckLevel is always false for GameLogger.
func (x *GameLogger) IgnoreCheckLevel() bool {
	return false
}

func (x *GameLogger) newEvent(level Level) *LogEvent {
	e := x.eventPool.Get().(*LogEvent)
	e.Reset()
	e.level = level
	return e
}

// OnEventEnd writes the finished event to every appender and recycles it.
// A fatal event panics after being written.
func (x *GameLogger) OnEventEnd(e *LogEvent) {
	for _, appender := range x.appenders {
		_, _ = appender.Write(e.buf.Bytes())
	}

	if e.level == FatalLevel {
		x.Refresh()
		panic(e.buf.String())
	}

	x.eventPool.Put(e)
}

// Debug starts a debug event, nil when filtered.
func (x *GameLogger) Debug() *LogEvent {
	return x.log(DebugLevel)
}

// Info starts an info event, nil when filtered.
func (x *GameLogger) Info() *LogEvent {
	return x.log(InfoLevel)
}

// Warn starts a warn event, nil when filtered.
func (x *GameLogger) Warn() *LogEvent {
	return x.log(WarnLevel)
}

// Error starts an error event, nil when filtered.
func (x *GameLogger) Error() *LogEvent {
	return x.log(ErrorLevel)
}

// Fatal starts a fatal event. Terminating it panics.
func (x *GameLogger) Fatal() *LogEvent {
	return x.log(FatalLevel)
}

// getCallerInfo resolves the caller of the public logging method and caches
// the result per program counter.
func (x *GameLogger) getCallerInfo(skip int) *callerInfo {
	pc, file, line, ok := runtime.Caller(skip + x.callerSkip)
	if !ok {
		return _UnknownCallerInfo
	}

	if cached, found := x.callerCache.Load(pc); found {
		return cached.(*callerInfo)
	}

	funcName := runtime.FuncForPC(pc).Name()
	function := funcName
	if dotIdx := strings.LastIndexByte(funcName, '.'); dotIdx != -1 {
		function = funcName[dotIdx+1:]
	}

	// keep "dir/file.go"
	if lastSlash := strings.LastIndexByte(file, '/'); lastSlash > 0 {
		if secondLastSlash := strings.LastIndexByte(file[:lastSlash], '/'); secondLastSlash >= 0 {
			file = file[secondLastSlash+1:]
		}
	}

	c := newCallerInfo(file, function, line)
	x.callerCache.Store(pc, c)
	return c
}

func (x *GameLogger) log(level Level) *LogEvent {
	return x.logSkip(level, false, 4)
}

// logSkip builds the common prefix of an event. skip is the stack depth of
// the user call site as seen from getCallerInfo.
func (x *GameLogger) logSkip(level Level, ignoreLevel bool, skip int) *LogEvent {
	var info *callerInfo
	if !ignoreLevel && !x.checkLevel(level) {
		lc := x.levelChange.Load()
		if lc.Empty() {
			return nil
		}
		info = x.getCallerInfo(skip)
		level = lc.GetLevel(info.file, info.line, level)
		if !x.checkLevel(level) {
			return nil
		}
	}

	e := x.newEvent(level)

	t := time.Now()
	e.Time("time", &t)
	e.Str("level", level.String())

	if x.enabledCallerInfo.Load() {
		if info == nil {
			info = x.getCallerInfo(skip)
		}
		e.Str("caller", info.String())
	}

	return e
}
