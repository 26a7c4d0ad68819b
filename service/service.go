// Package service implements the single-goroutine service runtime: every
// service owns a worker goroutine and an unbounded in-box of closures, and
// all cross-service calls are closures posted to the target in-box.
package service

import (
	"errors"
	"time"
)

// ServiceID identifies a service inside the process.
type ServiceID uint64

// State is the lifecycle state of a service.
type State int32

const (
	StateIdle State = iota
	StateInit
	StateStart
	StateRun
	StateFinishing
	StateClosed
)

var _stateNames = [...]string{"idle", "init", "start", "run", "finishing", "closed"}

func (s State) String() string {
	if s >= 0 && int(s) < len(_stateNames) {
		return _stateNames[s]
	}
	return "unknown"
}

// DefaultTick is the update period of a service started with tick <= 0.
const DefaultTick = 10 * time.Millisecond

// ErrDuplicateService is returned when a service id is attached twice.
var ErrDuplicateService = errors.New("duplicate service")

// Service is implemented by every service of the process. Concrete services
// embed *ServiceHandle, which provides everything except Conf and Update.
type Service interface {
	Name() string
	GetHandle() *ServiceHandle
	// Conf is called once, before the worker starts.
	Conf()
	// Update is called on every tick of the worker.
	Update()
	RunInService(f func())
	IsInServiceThread() bool
	Join()
}

// Basic is a service with no configuration step and no per-tick work.
type Basic struct {
	*ServiceHandle
}

// NewBasic creates a Basic service.
func NewBasic(id ServiceID, name string) *Basic {
	return &Basic{ServiceHandle: NewServiceHandle(id, name)}
}

func (s *Basic) Conf() {}

func (s *Basic) Update() {}

// Launch configures srv and starts its worker. tick <= 0 selects
// DefaultTick. Launch returns once the worker goroutine is running, so
// IsInServiceThread is meaningful right away.
func Launch(srv Service, tick time.Duration) {
	h := srv.GetHandle()
	if !h.state.CompareAndSwap(int32(StateIdle), int32(StateInit)) {
		h.logger.Error().Str("state", h.State().String()).Msg("service already launched")
		return
	}
	srv.Conf()
	h.start(srv.Update, tick)
}
