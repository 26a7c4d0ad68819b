package service

import (
	"bytes"
	"runtime"
	"strconv"
)

var _goroutinePrefix = []byte("goroutine ")

// curGoroutineID parses the id out of the "goroutine N [running]:" header
// of the current stack.
func curGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := bytes.TrimPrefix(buf[:n], _goroutinePrefix)
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
