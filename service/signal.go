package service

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/lcx/commlib/event"
)

// SignalServiceID is the id of the process signal service.
const SignalServiceID ServiceID = 1

// SignalEvent is raised for every received OS signal.
type SignalEvent struct {
	Sig os.Signal
}

// SignalService turns SIGINT, SIGUSR1 and SIGUSR2 into events. Listeners
// are single-shot: a trigger consumes every registered listener of that
// signal, and each listener runs on its own service.
type SignalService struct {
	*ServiceHandle
	dispatchers map[os.Signal]*event.Dispatcher[SignalEvent]
	ch          chan os.Signal
	stop        chan struct{}
	stopOnce    sync.Once
}

// NewSignalService creates the signal service. Launch starts it.
func NewSignalService() *SignalService {
	s := &SignalService{
		ServiceHandle: NewServiceHandle(SignalServiceID, "signal"),
		dispatchers: map[os.Signal]*event.Dispatcher[SignalEvent]{
			syscall.SIGINT:  event.NewDispatcher[SignalEvent]("sigint"),
			syscall.SIGUSR1: event.NewDispatcher[SignalEvent]("sigusr1"),
			syscall.SIGUSR2: event.NewDispatcher[SignalEvent]("sigusr2"),
		},
		ch:   make(chan os.Signal, 8),
		stop: make(chan struct{}),
	}
	return s
}

// Conf subscribes to the OS signals.
func (s *SignalService) Conf() {
	signal.Notify(s.ch, syscall.SIGINT, syscall.SIGUSR1, syscall.SIGUSR2)
	go s.watch()
}

func (s *SignalService) Update() {}

func (s *SignalService) watch() {
	for {
		select {
		case sig := <-s.ch:
			s.RunInService(func() { s.Raise(sig) })
		case <-s.stop:
			signal.Stop(s.ch)
			return
		}
	}
}

// Raise dispatches sig as if it had been received. Must run on the signal
// service.
func (s *SignalService) Raise(sig os.Signal) {
	d, ok := s.dispatchers[sig]
	if !ok {
		return
	}
	s.logger.Info().Str("sig", sig.String()).Int("listeners", d.Len()).Msg("signal received")
	d.Trigger(&SignalEvent{Sig: sig})
	d.Clear()
}

func (s *SignalService) listen(sig os.Signal, srv Service, f func()) {
	s.RunInService(func() {
		s.dispatchers[sig].AddCallback(func(*SignalEvent) {
			srv.RunInService(f)
		})
	})
}

// ListenSigInt runs f on srv at the next SIGINT.
func (s *SignalService) ListenSigInt(srv Service, f func()) {
	s.listen(syscall.SIGINT, srv, f)
}

// ListenSigUsr1 runs f on srv at the next SIGUSR1.
func (s *SignalService) ListenSigUsr1(srv Service, f func()) {
	s.listen(syscall.SIGUSR1, srv, f)
}

// ListenSigUsr2 runs f on srv at the next SIGUSR2.
func (s *SignalService) ListenSigUsr2(srv Service, f func()) {
	s.listen(syscall.SIGUSR2, srv, f)
}

// Quit stops watching OS signals and quits the service.
func (s *SignalService) Quit() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.ServiceHandle.Quit()
}
