package service

import (
	"runtime/debug"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/lcx/commlib/config"
	"github.com/lcx/commlib/log"
	"github.com/lcx/commlib/metrics"
)

type task struct {
	f    func()
	quit bool
}

// ServiceHandle carries the runtime state shared by every service: the
// in-box, the worker goroutine, the clock and the startup sequencer.
//
// Only RunInService, IsInServiceThread, State, Quit and Join may be called
// from other goroutines. Clock and Startup belong to the worker.
type ServiceHandle struct {
	id       ServiceID
	name     string
	dims     metrics.Dimension
	state    atomic.Int32
	goid     atomic.Uint64
	box      *inbox
	clock    *Clock
	startup  *Startup
	nodeConf atomic.Pointer[config.NodeConf]
	logger   *log.ServiceLogger
	done     chan struct{}
}

// NewServiceHandle creates an idle handle.
func NewServiceHandle(id ServiceID, name string) *ServiceHandle {
	h := &ServiceHandle{
		id:     id,
		name:   name,
		dims:   metrics.Dimension{"srv": name},
		box:    newInbox(),
		logger: log.NewServiceLogger(nil, uint64(id), name),
		done:   make(chan struct{}),
	}
	h.clock = newClock(h)
	h.startup = NewStartup(name)
	return h
}

// ID returns the service id.
func (h *ServiceHandle) ID() ServiceID {
	return h.id
}

// Name returns the service name.
func (h *ServiceHandle) Name() string {
	return h.name
}

// GetHandle returns h, so that embedding types satisfy Service.
func (h *ServiceHandle) GetHandle() *ServiceHandle {
	return h
}

// State returns the lifecycle state.
func (h *ServiceHandle) State() State {
	return State(h.state.Load())
}

// Logger returns the logger stamped with this service.
func (h *ServiceHandle) Logger() *log.ServiceLogger {
	return h.logger
}

// Clock returns the service clock.
func (h *ServiceHandle) Clock() *Clock {
	return h.clock
}

// Startup returns the startup sequencer of the service.
func (h *ServiceHandle) Startup() *Startup {
	return h.startup
}

// NodeConf returns the node configuration snapshot, nil when unset.
func (h *ServiceHandle) NodeConf() *config.NodeConf {
	return h.nodeConf.Load()
}

// SetNodeConf replaces the node configuration snapshot.
func (h *ServiceHandle) SetNodeConf(c *config.NodeConf) {
	h.nodeConf.Store(c)
}

// RunInService posts f to the in-box. It always enqueues, also when called
// from the service goroutine; items from one producer run in posting order.
func (h *ServiceHandle) RunInService(f func()) {
	if f == nil {
		return
	}
	if h.State() == StateClosed {
		h.logger.Warn().Msg("run in closed service, task dropped")
		metrics.IncrCounterWithDimGroup("service", "task_dropped_total", 1, h.dims)
		return
	}
	n := h.box.push(task{f: f})
	metrics.UpdateGaugeWithDimGroup("service", "inbox_length", metrics.Value(n), h.dims)
}

// IsInServiceThread reports whether the caller runs on the worker goroutine.
func (h *ServiceHandle) IsInServiceThread() bool {
	id := h.goid.Load()
	return id != 0 && id == curGoroutineID()
}

// Quit asks the worker to stop once the items posted before Quit have run.
func (h *ServiceHandle) Quit() {
	switch h.State() {
	case StateIdle:
		h.state.Store(int32(StateClosed))
		close(h.done)
	case StateFinishing, StateClosed:
	default:
		h.box.push(task{quit: true})
	}
}

// Join waits for the worker to exit.
func (h *ServiceHandle) Join() {
	<-h.done
}

func (h *ServiceHandle) start(update func(), tick time.Duration) {
	if tick <= 0 {
		tick = DefaultTick
	}
	h.state.Store(int32(StateStart))

	started := make(chan struct{})
	go h.loop(update, tick, started)
	<-started
}

func (h *ServiceHandle) loop(update func(), tick time.Duration, started chan struct{}) {
	h.goid.Store(curGoroutineID())
	h.state.Store(int32(StateRun))
	h.logger.Info().Uint64("goid", h.goid.Load()).Dur("tick", tick).Msg("service loop start")
	close(started)

	defer func() {
		h.state.Store(int32(StateClosed))
		h.logger.Info().Msg("service loop exit")
		close(h.done)
	}()

	t := time.NewTicker(tick)
	defer t.Stop()

	var batch []task
	for {
		select {
		case <-h.box.Signal():
			batch = h.box.drain(batch[:0])
			for i, it := range batch {
				if it.quit {
					h.state.Store(int32(StateFinishing))
					h.dealLeftTask(batch[i+1:])
					return
				}
				h.exec(it.f)
			}
		case <-t.C:
			startTime := time.Now()
			h.exec(func() {
				h.clock.Update()
				update()
			})
			metrics.RecordStopwatchWithDimGroup("service", "update_time", startTime, h.dims)
		}
	}
}

// dealLeftTask runs what is still queued after the quit sentinel.
func (h *ServiceHandle) dealLeftTask(rest []task) {
	rest = h.box.drain(rest)
	if len(rest) == 0 {
		return
	}
	h.logger.Info().Int("tasknum", len(rest)).Msg("left to do")
	for _, it := range rest {
		if !it.quit {
			h.exec(it.f)
		}
	}
}

func (h *ServiceHandle) exec(f func()) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error().Any("panic", r).Str("stack", string(debug.Stack())).Msg("service task panic")
			metrics.IncrCounterWithDimGroup("service", "panic_total", 1, h.dims)
		}
	}()
	f()
}

// String implements fmt.Stringer.
func (h *ServiceHandle) String() string {
	return h.name + "#" + strconv.FormatUint(uint64(h.id), 10)
}
