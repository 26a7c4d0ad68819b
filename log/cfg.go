package log

import (
	"errors"
)

const _loggerConfigName = "logger"

// LogCfg is the logging configuration, loaded under the name "logger".
// Level, appender and rotation settings can be hot-reloaded.
type LogCfg struct {
	// LogPath is the target log file. Parent directories are created on demand.
	LogPath string `mapstructure:"path"`

	// LogLevel is the minimum level written. Valid values: trace, debug, info, warn, error, fatal.
	LogLevel Level `mapstructure:"level"`

	// FileSplitMB rotates the file once it grows past this size. 0 disables.
	FileSplitMB int `mapstructure:"splitmb"`

	// FileSplitHour rotates the file once a day at this hour (1-23). 0 disables.
	FileSplitHour int `mapstructure:"splithour"`

	// IsAsync queues lines and writes them from a background goroutine.
	IsAsync bool `mapstructure:"isasync"`

	// AsyncCacheSize bounds the async queue. Default 1024.
	AsyncCacheSize int `mapstructure:"asynccachesize"`

	// AsyncWriteMillSec is the async flush period. Default 200ms.
	AsyncWriteMillSec int `mapstructure:"asyncwritemillsec"`

	// CallerSkip is the number of extra stack frames skipped when resolving the caller.
	CallerSkip int `mapstructure:"callerSkip"`

	FileAppender    bool `mapstructure:"fileAppender"`
	ConsoleAppender bool `mapstructure:"consoleAppender"`

	// LevelChange overrides the level of single call sites (file:line).
	LevelChange []LevelChangeEntry `mapstructure:"levelChange"`

	// ServiceWhiteList lists service ids whose ServiceLogger ignores the level filter.
	ServiceWhiteList []uint64 `mapstructure:"serviceWhiteList"`

	serviceWhiteListSet map[uint64]struct{} `mapstructure:"-"`

	EnabledCallerInfo bool `mapstructure:"enabledCallerInfo"`
}

// GetName implements config.Config.
func (cfg *LogCfg) GetName() string {
	return _loggerConfigName
}

// Validate implements config.Config.
func (cfg *LogCfg) Validate() error {
	if cfg.LogLevel > FatalLevel {
		return errors.New("invalid log level")
	}
	if cfg.FileAppender && cfg.LogPath == "" {
		return errors.New("file appender enabled without path")
	}
	if cfg.FileSplitHour < 0 || cfg.FileSplitHour > 23 {
		return errors.New("splithour must be in [0, 23]")
	}
	return nil
}

// IsInWhiteList reports whether srvID is whitelisted.
func (cfg *LogCfg) IsInWhiteList(srvID uint64) bool {
	if len(cfg.serviceWhiteListSet) == 0 && len(cfg.ServiceWhiteList) != 0 {
		cfg.serviceWhiteListSet = make(map[uint64]struct{}, len(cfg.ServiceWhiteList))
		for _, id := range cfg.ServiceWhiteList {
			cfg.serviceWhiteListSet[id] = struct{}{}
		}
	}

	_, exists := cfg.serviceWhiteListSet[srvID]
	return exists
}

var _defaultCfg = &LogCfg{
	LogPath:         "./log/commlib.log",
	LogLevel:        DebugLevel,
	FileSplitMB:     50,
	CallerSkip:      1,
	ConsoleAppender: true,
}

func getDefaultCfg() *LogCfg {
	return _defaultCfg
}
