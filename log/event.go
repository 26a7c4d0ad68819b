package log

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

const _maxBytesPreview = 32

// LogEvent accumulates the fields of one log line. Events come from a
// logger's pool and go back to it once Msg/Msgf/End has been called, so an
// event must not be used after it has been terminated.
//
// Every method accepts a nil receiver: a filtered level yields a nil event
// and the whole chain becomes a no-op.
type LogEvent struct {
	buf    *bytes.Buffer
	level  Level
	logger Logger
}

func newEvent(logger Logger) *LogEvent {
	return &LogEvent{
		buf:    bytes.NewBuffer(make([]byte, 0, 512)),
		logger: logger,
	}
}

// Reset clears the buffer so the event can be reused.
func (e *LogEvent) Reset() {
	e.buf.Reset()
	e.buf.WriteByte('{')
}

func (e *LogEvent) key(k string) {
	if e.buf.Len() > 1 {
		e.buf.WriteByte(',')
	}
	e.buf.Write(strconv.AppendQuote(e.buf.AvailableBuffer(), k))
	e.buf.WriteByte(':')
}

// Str adds a string field.
func (e *LogEvent) Str(k, v string) *LogEvent {
	if e == nil {
		return nil
	}
	e.key(k)
	e.buf.Write(strconv.AppendQuote(e.buf.AvailableBuffer(), v))
	return e
}

// Strs adds a string slice field.
func (e *LogEvent) Strs(k string, vs []string) *LogEvent {
	if e == nil {
		return nil
	}
	e.key(k)
	e.buf.WriteByte('[')
	for i, v := range vs {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		e.buf.Write(strconv.AppendQuote(e.buf.AvailableBuffer(), v))
	}
	e.buf.WriteByte(']')
	return e
}

// Int adds an int field.
func (e *LogEvent) Int(k string, v int) *LogEvent {
	return e.Int64(k, int64(v))
}

// Int32 adds an int32 field.
func (e *LogEvent) Int32(k string, v int32) *LogEvent {
	return e.Int64(k, int64(v))
}

// Int64 adds an int64 field.
func (e *LogEvent) Int64(k string, v int64) *LogEvent {
	if e == nil {
		return nil
	}
	e.key(k)
	e.buf.Write(strconv.AppendInt(e.buf.AvailableBuffer(), v, 10))
	return e
}

// Uint16 adds a uint16 field.
func (e *LogEvent) Uint16(k string, v uint16) *LogEvent {
	return e.Uint64(k, uint64(v))
}

// Uint32 adds a uint32 field.
func (e *LogEvent) Uint32(k string, v uint32) *LogEvent {
	return e.Uint64(k, uint64(v))
}

// Uint64 adds a uint64 field.
func (e *LogEvent) Uint64(k string, v uint64) *LogEvent {
	if e == nil {
		return nil
	}
	e.key(k)
	e.buf.Write(strconv.AppendUint(e.buf.AvailableBuffer(), v, 10))
	return e
}

// Bool adds a bool field.
func (e *LogEvent) Bool(k string, v bool) *LogEvent {
	if e == nil {
		return nil
	}
	e.key(k)
	e.buf.Write(strconv.AppendBool(e.buf.AvailableBuffer(), v))
	return e
}

// Float64 adds a float64 field.
func (e *LogEvent) Float64(k string, v float64) *LogEvent {
	if e == nil {
		return nil
	}
	e.key(k)
	e.buf.Write(strconv.AppendFloat(e.buf.AvailableBuffer(), v, 'f', -1, 64))
	return e
}

// Dur adds a duration field rendered as text ("1.5s").
func (e *LogEvent) Dur(k string, d time.Duration) *LogEvent {
	if e == nil {
		return nil
	}
	return e.Str(k, d.String())
}

// Time adds a timestamp field with millisecond precision.
func (e *LogEvent) Time(k string, t *time.Time) *LogEvent {
	if e == nil || t == nil {
		return e
	}
	e.key(k)
	e.buf.WriteByte('"')
	e.buf.Write(t.AppendFormat(e.buf.AvailableBuffer(), "2006-01-02 15:04:05.000"))
	e.buf.WriteByte('"')
	return e
}

// Err adds the "error" field; a nil error is skipped.
func (e *LogEvent) Err(err error) *LogEvent {
	if e == nil || err == nil {
		return e
	}
	return e.Str("error", err.Error())
}

// Any adds a field formatted with %v.
func (e *LogEvent) Any(k string, v any) *LogEvent {
	if e == nil {
		return nil
	}
	return e.Str(k, fmt.Sprintf("%v", v))
}

// Bytes adds a hex preview of b (at most 32 bytes) and its length.
func (e *LogEvent) Bytes(k string, b []byte) *LogEvent {
	if e == nil {
		return nil
	}
	preview := b
	if len(preview) > _maxBytesPreview {
		preview = preview[:_maxBytesPreview]
	}
	return e.Str(k, hex.EncodeToString(preview)).Int(k+"_len", len(b))
}

// Msg writes the message field and hands the event to its logger.
func (e *LogEvent) Msg(msg string) {
	if e == nil {
		return
	}
	if msg != "" {
		e.Str("message", msg)
	}
	e.finish()
}

// Msgf is Msg with fmt.Sprintf formatting.
func (e *LogEvent) Msgf(format string, args ...any) {
	if e == nil {
		return
	}
	e.Msg(fmt.Sprintf(format, args...))
}

// End terminates the event without a message.
func (e *LogEvent) End() {
	if e == nil {
		return
	}
	e.finish()
}

func (e *LogEvent) finish() {
	e.buf.WriteString("}\n")
	e.logger.OnEventEnd(e)
}
