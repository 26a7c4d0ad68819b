package redis

import (
	"strconv"
	"strings"
)

// Command is a redis command and its arguments, e.g. {"HGET", "k", "f"}.
type Command []string

// Name returns the upper-cased command name.
func (c Command) Name() string {
	if len(c) == 0 {
		return ""
	}
	return strings.ToUpper(c[0])
}

// AppendCommand appends c encoded as a RESP array of bulk strings.
func AppendCommand(dst []byte, c Command) []byte {
	dst = append(dst, '*')
	dst = strconv.AppendInt(dst, int64(len(c)), 10)
	dst = append(dst, '\r', '\n')
	for _, arg := range c {
		dst = append(dst, '$')
		dst = strconv.AppendInt(dst, int64(len(arg)), 10)
		dst = append(dst, '\r', '\n')
		dst = append(dst, arg...)
		dst = append(dst, '\r', '\n')
	}
	return dst
}

// EncodeCommand returns c encoded as a RESP array of bulk strings.
func EncodeCommand(c Command) []byte {
	return AppendCommand(nil, c)
}
