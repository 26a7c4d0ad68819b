package log

import "strconv"

// LevelChangeEntry overrides the level of one log call site.
type LevelChangeEntry struct {
	File  string `mapstructure:"file"`
	Line  int    `mapstructure:"line"`
	Level Level  `mapstructure:"level"`
}

// levelChange maps "file:line" to an override level.
type levelChange struct {
	entries map[string]Level
}

func newLevelChange(entries []LevelChangeEntry) *levelChange {
	lc := &levelChange{entries: make(map[string]Level, len(entries))}
	for _, e := range entries {
		lc.entries[e.File+":"+strconv.Itoa(e.Line)] = e.Level
	}
	return lc
}

// Empty reports whether no override is configured.
func (lc *levelChange) Empty() bool {
	return lc == nil || len(lc.entries) == 0
}

// GetLevel returns the override for file:line, or def.
func (lc *levelChange) GetLevel(file string, line int, def Level) Level {
	if lc.Empty() {
		return def
	}
	if lv, ok := lc.entries[file+":"+strconv.Itoa(line)]; ok {
		return lv
	}
	return def
}
