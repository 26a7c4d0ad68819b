package service

import (
	"github.com/lcx/commlib/log"
)

// StepFunc is a startup step. Returning false suspends the sequence until
// Resume is called; the step itself arranges its wake-up.
type StepFunc func() bool

type startupTask struct {
	desc string
	step StepFunc
}

// Startup is an ordered list of resumable bring-up steps. It is owned by a
// service and must only be used on that service's goroutine.
type Startup struct {
	name       string
	tasks      []startupTask
	index      int
	suspending bool
}

// NewStartup creates an empty sequence; name only appears in logs.
func NewStartup(name string) *Startup {
	return &Startup{name: name}
}

// AddStep appends a step.
func (s *Startup) AddStep(desc string, step StepFunc) {
	s.tasks = append(s.tasks, startupTask{desc: desc, step: step})
}

// Exec runs steps from the current position until one suspends or all are
// done.
func (s *Startup) Exec() {
	count := len(s.tasks)
	if count == 0 {
		log.Info().Str("startup", s.name).Msg("no task")
		return
	}

	for s.index < count {
		task := s.tasks[s.index]
		log.Debug().Str("startup", s.name).Str("task", task.desc).Int("index", s.index).Int("tail", count-1).Msg("exec task")
		if !task.step() {
			break
		}
		s.index++
		if s.index < count {
			log.Debug().Str("startup", s.name).Str("task", s.tasks[s.index].desc).Int("index", s.index).Msg("next task")
		}
	}

	if s.index < count {
		s.suspending = true
		log.Debug().Str("startup", s.name).Str("task", s.tasks[s.index].desc).Int("index", s.index).Msg("suspending")
		return
	}
	s.suspending = false
	log.Debug().Str("startup", s.name).Msg("======== over ========")
}

// Resume moves past the suspended step and continues.
func (s *Startup) Resume() {
	if s.suspending {
		s.suspending = false
		s.index++
	}
	s.Exec()
}

// Clear drops every step and rewinds.
func (s *Startup) Clear() {
	s.tasks = nil
	s.index = 0
	s.suspending = false
}

// IsSuspending reports whether a step suspended the sequence.
func (s *Startup) IsSuspending() bool {
	return s.suspending
}

// Done reports whether every step has completed.
func (s *Startup) Done() bool {
	return len(s.tasks) > 0 && s.index >= len(s.tasks)
}
