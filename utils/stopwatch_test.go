package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStopWatch(t *testing.T) {
	sw := NewStopWatch()
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, sw.Elapsed(), 5*time.Millisecond)
	assert.GreaterOrEqual(t, sw.ElapsedMs(), int64(5))

	before := sw.Start()
	sw.Reset()
	assert.True(t, sw.Start().After(before))
	assert.Less(t, sw.Elapsed(), time.Second)
}
