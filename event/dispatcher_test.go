package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type sigEvent struct {
	sig  int
	seen []int
}

func TestDispatcherOrder(t *testing.T) {
	d := NewDispatcher[sigEvent]("test")
	for i := 0; i < 5; i++ {
		d.AddCallback(func(e *sigEvent) {
			e.seen = append(e.seen, i)
		})
	}
	assert.Equal(t, 5, d.Len())

	e := &sigEvent{sig: 2}
	d.Trigger(e)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, e.seen)
}

func TestDispatcherMutatesEvent(t *testing.T) {
	d := NewDispatcher[sigEvent]("test")
	d.AddCallback(func(e *sigEvent) { e.sig++ })
	d.AddCallback(func(e *sigEvent) { e.sig *= 10 })

	e := &sigEvent{sig: 1}
	d.Trigger(e)
	assert.Equal(t, 20, e.sig)
}

func TestDispatcherSlowCallbackStillRuns(t *testing.T) {
	d := NewDispatcher[sigEvent]("slow")
	ran := false
	d.AddCallback(func(*sigEvent) { time.Sleep(SlowCallbackThreshold + 5*time.Millisecond) })
	d.AddCallback(func(*sigEvent) { ran = true })

	d.Trigger(&sigEvent{})
	assert.True(t, ran)
}

func TestDispatcherClear(t *testing.T) {
	d := NewDispatcher[sigEvent]("test")
	d.AddCallback(func(*sigEvent) { t.Fatal("cleared callback ran") })
	d.Clear()
	assert.Equal(t, 0, d.Len())
	d.Trigger(&sigEvent{})
}
