package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lcx/commlib/config"
)

// LogAppender is an output destination of formatted log lines.
type LogAppender interface {
	Write(p []byte) (int, error)
	// Refresh flushes anything queued and reopens outputs whose settings changed.
	Refresh()
}

// ConsoleAppender writes log lines to stdout.
type ConsoleAppender struct {
	mu sync.Mutex
}

// NewConsoleAppender creates a stdout appender.
func NewConsoleAppender() *ConsoleAppender {
	return &ConsoleAppender{}
}

// Write writes p to stdout.
func (x *ConsoleAppender) Write(p []byte) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return os.Stdout.Write(p)
}

// Refresh is a no-op for the console.
func (x *ConsoleAppender) Refresh() {}

// FileAppender writes log lines to a file and rotates it by size
// (FileSplitMB) and by hour of day (FileSplitHour). In async mode lines are
// queued on a bounded channel and written by a background goroutine every
// AsyncWriteMillSec; a full queue falls back to a synchronous write.
type FileAppender struct {
	mu        sync.Mutex
	cfg       LogCfg
	file      *os.File
	size      int64
	openDay   int
	logger    Logger
	queue     chan []byte
	flushReq  chan chan struct{}
	stopAsync chan struct{}
	asyncWG   sync.WaitGroup
}

// NewFileAppender creates a file appender from cfg. The file is opened
// lazily on the first write.
func NewFileAppender(cfg *LogCfg, logger Logger) *FileAppender {
	x := &FileAppender{logger: logger}
	x.apply(cfg)
	return x
}

// NewFileAppenderWithConfigManager creates a file appender whose settings
// follow the "logger" configuration held by configManager.
func NewFileAppenderWithConfigManager(configManager config.ConfigManager, logger Logger) *FileAppender {
	cfg := getDefaultCfg()
	if configManager != nil {
		if c, err := configManager.GetConfig(_loggerConfigName); err == nil {
			if lc, ok := c.(*LogCfg); ok {
				cfg = lc
			}
		}
	}
	return NewFileAppender(cfg, logger)
}

// OnConfigChanged implements config.ConfigChangeListener.
func (x *FileAppender) OnConfigChanged(configName string, newConfig, _ config.Config) error {
	if configName != _loggerConfigName {
		return nil
	}
	cfg, ok := newConfig.(*LogCfg)
	if !ok {
		return nil
	}
	x.apply(cfg)
	return nil
}

func (x *FileAppender) apply(cfg *LogCfg) {
	x.stopAsyncWriter()

	x.mu.Lock()
	pathChanged := x.cfg.LogPath != cfg.LogPath
	x.cfg = *cfg
	if x.cfg.AsyncCacheSize <= 0 {
		x.cfg.AsyncCacheSize = 1024
	}
	if x.cfg.AsyncWriteMillSec <= 0 {
		x.cfg.AsyncWriteMillSec = 200
	}
	if pathChanged && x.file != nil {
		_ = x.file.Close()
		x.file = nil
	}
	async := x.cfg.IsAsync
	x.mu.Unlock()

	if async {
		x.startAsyncWriter()
	}
}

func (x *FileAppender) startAsyncWriter() {
	x.queue = make(chan []byte, x.cfg.AsyncCacheSize)
	x.flushReq = make(chan chan struct{})
	x.stopAsync = make(chan struct{})
	x.asyncWG.Add(1)
	go x.asyncLoop(x.queue, x.flushReq, x.stopAsync)
}

func (x *FileAppender) stopAsyncWriter() {
	if x.stopAsync == nil {
		return
	}
	close(x.stopAsync)
	x.asyncWG.Wait()
	x.queue, x.flushReq, x.stopAsync = nil, nil, nil
}

func (x *FileAppender) asyncLoop(queue chan []byte, flushReq chan chan struct{}, stop chan struct{}) {
	defer x.asyncWG.Done()
	t := time.NewTicker(time.Duration(x.cfg.AsyncWriteMillSec) * time.Millisecond)
	defer t.Stop()

	drain := func() {
		for {
			select {
			case p := <-queue:
				x.writeSync(p)
			default:
				return
			}
		}
	}

	for {
		select {
		case p := <-queue:
			x.writeSync(p)
		case done := <-flushReq:
			drain()
			close(done)
		case <-t.C:
			drain()
		case <-stop:
			drain()
			return
		}
	}
}

// Write queues or writes p.
func (x *FileAppender) Write(p []byte) (int, error) {
	if x.queue != nil {
		line := make([]byte, len(p))
		copy(line, p)
		select {
		case x.queue <- line:
			return len(p), nil
		default:
		}
	}
	return x.writeSync(p)
}

func (x *FileAppender) writeSync(p []byte) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if err := x.rotateIfNeeded(int64(len(p))); err != nil {
		return 0, err
	}
	n, err := x.file.Write(p)
	x.size += int64(n)
	return n, err
}

func (x *FileAppender) rotateIfNeeded(incoming int64) error {
	now := time.Now()
	if x.file != nil {
		splitBySize := x.cfg.FileSplitMB > 0 && x.size+incoming > int64(x.cfg.FileSplitMB)*1024*1024
		splitByHour := x.cfg.FileSplitHour > 0 && now.YearDay() != x.openDay && now.Hour() >= x.cfg.FileSplitHour
		if !splitBySize && !splitByHour {
			return nil
		}
		_ = x.file.Close()
		x.file = nil
		rotated := fmt.Sprintf("%s.%s", x.cfg.LogPath, now.Format("20060102-150405.000000"))
		if err := os.Rename(x.cfg.LogPath, rotated); err != nil {
			return fmt.Errorf("rotate log file failed: %w", err)
		}
	}
	return x.open(now)
}

func (x *FileAppender) open(now time.Time) error {
	if dir := filepath.Dir(x.cfg.LogPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create log dir failed: %w", err)
		}
	}
	f, err := os.OpenFile(x.cfg.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file failed: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat log file failed: %w", err)
	}
	x.file = f
	x.size = st.Size()
	x.openDay = now.YearDay()
	return nil
}

// Refresh flushes the async queue, waiting only for lines already queued.
func (x *FileAppender) Refresh() {
	if x.flushReq == nil {
		return
	}
	done := make(chan struct{})
	select {
	case x.flushReq <- done:
		<-done
	case <-x.stopAsync:
	}
}

// Close stops the async writer and closes the file.
func (x *FileAppender) Close() error {
	x.stopAsyncWriter()
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.file == nil {
		return nil
	}
	err := x.file.Close()
	x.file = nil
	return err
}
