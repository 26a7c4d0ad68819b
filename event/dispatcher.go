// Package event is a synchronous observer used to fan process events out to
// listeners registered by other services.
package event

import (
	"time"

	"github.com/lcx/commlib/log"
	"github.com/lcx/commlib/utils"
)

// SlowCallbackThreshold is the callback duration above which Trigger logs an error.
const SlowCallbackThreshold = 10 * time.Millisecond

// Callback receives a triggered event.
type Callback[E any] func(e *E)

// Dispatcher keeps the callbacks of one event type. It is not safe for
// concurrent use; the owning service serialises access.
type Dispatcher[E any] struct {
	name      string
	callbacks []Callback[E]
}

// NewDispatcher creates an empty dispatcher. name only appears in logs.
func NewDispatcher[E any](name string) *Dispatcher[E] {
	return &Dispatcher[E]{name: name}
}

// AddCallback registers f.
func (d *Dispatcher[E]) AddCallback(f Callback[E]) {
	d.callbacks = append(d.callbacks, f)
}

// Trigger runs every callback with e in registration order on the calling
// goroutine.
func (d *Dispatcher[E]) Trigger(e *E) {
	for i, f := range d.callbacks {
		sw := utils.NewStopWatch()
		f(e)
		if cost := sw.Elapsed(); cost > SlowCallbackThreshold {
			log.Error().Str("event", d.name).Int("idx", i).Dur("cost", cost).Msg("event callback too slow")
		}
	}
}

// Len returns the number of registered callbacks.
func (d *Dispatcher[E]) Len() int {
	return len(d.callbacks)
}

// Clear drops every callback.
func (d *Dispatcher[E]) Clear() {
	d.callbacks = nil
}
