package utils

import "time"

// StopWatch measures elapsed wall time.
type StopWatch struct {
	start time.Time
}

// NewStopWatch starts a stopwatch.
func NewStopWatch() StopWatch {
	return StopWatch{start: time.Now()}
}

// Start returns the start time.
func (sw StopWatch) Start() time.Time {
	return sw.start
}

// Elapsed returns the time since start.
func (sw StopWatch) Elapsed() time.Duration {
	return time.Since(sw.start)
}

// ElapsedMs returns the time since start in milliseconds.
func (sw StopWatch) ElapsedMs() int64 {
	return sw.Elapsed().Milliseconds()
}

// Reset restarts the stopwatch.
func (sw *StopWatch) Reset() {
	sw.start = time.Now()
}
