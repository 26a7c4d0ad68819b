package service

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lcx/commlib/timer"
)

// Clock is the per-service time source. It keeps a monotone millisecond
// stamp and drives the service's timer wheel from the worker tick.
type Clock struct {
	h        *ServiceHandle
	wheel    *timer.Wheel
	nowStamp atomic.Int64
	last     time.Time
}

func newClock(h *ServiceHandle) *Clock {
	now := time.Now().Round(0)
	c := &Clock{
		h:     h,
		wheel: timer.NewWheel(timer.DefaultTick),
		last:  now,
	}
	c.nowStamp.Store(now.UnixMilli())
	return c
}

// NowStamp returns the clock in milliseconds. It never goes backward.
func (c *Clock) NowStamp() int64 {
	return c.nowStamp.Load()
}

// Update advances the stamp and the wheel by the wall-clock time elapsed
// since the previous call. A backward jump is logged and skipped.
func (c *Clock) Update() {
	// Round(0) drops the monotonic reading so wall-clock jumps are visible
	now := time.Now().Round(0)
	delta := now.Sub(c.last)
	c.last = now
	if delta < 0 {
		c.h.logger.Error().Dur("delta", delta).Msg("clock jumped backward, ignored")
		return
	}
	c.nowStamp.Add(delta.Milliseconds())
	c.wheel.Update(delta)
}

// Pending returns the number of scheduled timers.
func (c *Clock) Pending() int {
	return c.wheel.Len()
}

// SetTimer runs f on srv immediately and then every interval.
func SetTimer(srv Service, interval time.Duration, f func()) uuid.UUID {
	id := uuid.New()
	h := srv.GetHandle()
	h.RunInService(func() {
		h.clock.wheel.SchedulePeriodic(id, interval, interval, f)
		f()
	})
	return id
}

// SetTimerDelay runs f on srv after delay and then every interval.
func SetTimerDelay(srv Service, delay, interval time.Duration, f func()) uuid.UUID {
	id := uuid.New()
	h := srv.GetHandle()
	h.RunInService(func() {
		h.clock.wheel.SchedulePeriodic(id, delay, interval, f)
	})
	return id
}

// SetTimeout runs f once on srv after delay.
func SetTimeout(srv Service, delay time.Duration, f func()) uuid.UUID {
	id := uuid.New()
	h := srv.GetHandle()
	h.RunInService(func() {
		h.clock.wheel.ScheduleOnce(id, delay, f)
	})
	return id
}

// CancelTimer removes the timer id of srv.
func CancelTimer(srv Service, id uuid.UUID) {
	h := srv.GetHandle()
	h.RunInService(func() {
		h.clock.wheel.Cancel(id)
	})
}
