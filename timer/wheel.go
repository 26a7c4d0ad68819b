// Package timer provides the hierarchical hash wheel behind every service clock.
package timer

import (
	"time"

	"github.com/google/uuid"
)

// DefaultTick is the resolution of a service clock.
const DefaultTick = time.Millisecond

const (
	_levels   = 4
	_slotBits = 8
	_slots    = 1 << _slotBits
	_slotMask = _slots - 1
	_maxTicks = uint64(1) << (_levels * _slotBits)
)

type entry struct {
	id        uuid.UUID
	expire    uint64
	period    uint64
	action    func()
	cancelled bool
}

// Wheel schedules one-shot and periodic actions with a fixed tick
// resolution. Level n of the wheel holds entries expiring within 256^(n+1)
// ticks; anything farther out waits in an overflow list. A Wheel is not safe
// for concurrent use: it lives on the goroutine of its owning service, and
// actions run on the goroutine calling Update.
type Wheel struct {
	tick     time.Duration
	now      uint64
	pending  time.Duration
	wheel    [_levels][_slots][]*entry
	overflow []*entry
	entries  map[uuid.UUID]*entry
}

// NewWheel creates a wheel; tick <= 0 selects DefaultTick.
func NewWheel(tick time.Duration) *Wheel {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Wheel{
		tick:    tick,
		entries: make(map[uuid.UUID]*entry),
	}
}

func (w *Wheel) ticksOf(d time.Duration) uint64 {
	if d <= 0 {
		return 1
	}
	n := uint64((d + w.tick - 1) / w.tick)
	if n == 0 {
		n = 1
	}
	return n
}

// ScheduleOnce runs f once after delay. An existing entry with the same id
// is replaced.
func (w *Wheel) ScheduleOnce(id uuid.UUID, delay time.Duration, f func()) {
	w.schedule(id, delay, 0, f)
}

// SchedulePeriodic runs f after delay and then every period.
func (w *Wheel) SchedulePeriodic(id uuid.UUID, delay, period time.Duration, f func()) {
	w.schedule(id, delay, w.ticksOf(period), f)
}

func (w *Wheel) schedule(id uuid.UUID, delay time.Duration, period uint64, f func()) {
	w.Cancel(id)
	e := &entry{
		id:     id,
		expire: w.now + w.ticksOf(delay),
		period: period,
		action: f,
	}
	w.entries[id] = e
	w.place(e)
}

func (w *Wheel) place(e *entry) {
	delta := e.expire - w.now
	if delta >= _maxTicks {
		w.overflow = append(w.overflow, e)
		return
	}
	level := 0
	for delta >= uint64(1)<<((level+1)*_slotBits) {
		level++
	}
	slot := (e.expire >> (level * _slotBits)) & _slotMask
	w.wheel[level][slot] = append(w.wheel[level][slot], e)
}

// Cancel removes id. It reports whether the entry was pending.
func (w *Wheel) Cancel(id uuid.UUID) bool {
	e, ok := w.entries[id]
	if !ok {
		return false
	}
	e.cancelled = true
	delete(w.entries, id)
	return true
}

// Len returns the number of pending entries.
func (w *Wheel) Len() int {
	return len(w.entries)
}

// Update advances the wheel by elapsed and runs every expired action.
// Sub-tick remainders carry over to the next call.
func (w *Wheel) Update(elapsed time.Duration) {
	if elapsed <= 0 {
		return
	}
	w.pending += elapsed
	for w.pending >= w.tick {
		w.pending -= w.tick
		w.step()
	}
}

func (w *Wheel) step() {
	w.now++
	w.cascade(1)

	slot := w.now & _slotMask
	due := w.wheel[0][slot]
	w.wheel[0][slot] = nil
	for _, e := range due {
		if e.cancelled {
			continue
		}
		if e.period == 0 {
			delete(w.entries, e.id)
			e.action()
			continue
		}
		e.action()
		// the action may have cancelled or replaced itself
		if cur, ok := w.entries[e.id]; ok && cur == e {
			e.expire = w.now + e.period
			w.place(e)
		}
	}
}

// cascade moves the entries of the current slot of level down once the
// lower levels wrapped around.
func (w *Wheel) cascade(level int) {
	if w.now&((uint64(1)<<(level*_slotBits))-1) != 0 {
		return
	}
	if level == _levels {
		list := w.overflow
		w.overflow = nil
		for _, e := range list {
			if !e.cancelled {
				w.place(e)
			}
		}
		return
	}

	slot := (w.now >> (level * _slotBits)) & _slotMask
	list := w.wheel[level][slot]
	w.wheel[level][slot] = nil
	for _, e := range list {
		if !e.cancelled {
			w.place(e)
		}
	}
	if slot == 0 {
		w.cascade(level + 1)
	}
}
