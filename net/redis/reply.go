// Package redis is a RESP2 client running on the Net service: replies are
// parsed from the connection byte stream and matched to commands in FIFO
// order.
package redis

import (
	"errors"
	"strconv"
	"strings"
)

// Kind is the type of a Reply.
type Kind int

const (
	KindNull Kind = iota
	KindSimpleString
	KindError
	KindInteger
	KindBulkString
	KindArray
)

var _kindNames = [...]string{"null", "simple_string", "error", "integer", "bulk_string", "array"}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(_kindNames) {
		return _kindNames[k]
	}
	return "unknown"
}

// Reply is one RESP reply. The zero value is Null.
type Reply struct {
	kind    Kind
	str     string
	integer int64
	elems   []Reply
}

// Null returns the nil reply.
func Null() Reply {
	return Reply{}
}

// NewSimpleString returns a "+" reply.
func NewSimpleString(s string) Reply {
	return Reply{kind: KindSimpleString, str: s}
}

// NewError returns a "-" reply.
func NewError(s string) Reply {
	return Reply{kind: KindError, str: s}
}

// NewInteger returns a ":" reply.
func NewInteger(v int64) Reply {
	return Reply{kind: KindInteger, integer: v}
}

// NewBulkString returns a "$" reply.
func NewBulkString(s string) Reply {
	return Reply{kind: KindBulkString, str: s}
}

// NewArray returns a "*" reply.
func NewArray(elems ...Reply) Reply {
	if elems == nil {
		elems = []Reply{}
	}
	return Reply{kind: KindArray, elems: elems}
}

func (r Reply) Kind() Kind {
	return r.kind
}

func (r Reply) IsNull() bool {
	return r.kind == KindNull
}

func (r Reply) IsError() bool {
	return r.kind == KindError
}

// Str returns the text of a simple string, error or bulk string.
func (r Reply) Str() string {
	return r.str
}

// Integer returns the value of an integer reply.
func (r Reply) Integer() int64 {
	return r.integer
}

// Elems returns the elements of an array reply.
func (r Reply) Elems() []Reply {
	return r.elems
}

// Err returns the error text of an error reply as an error, nil otherwise.
func (r Reply) Err() error {
	if r.kind != KindError {
		return nil
	}
	return errors.New(r.str)
}

// StringMap reads an array of field/value pairs, as HGETALL returns it.
func (r Reply) StringMap() map[string]string {
	m := make(map[string]string, len(r.elems)/2)
	for i := 0; i+1 < len(r.elems); i += 2 {
		m[r.elems[i].str] = r.elems[i+1].str
	}
	return m
}

// String renders the reply for logs, e.g. Integer(1) or Array[BulkString("a")].
func (r Reply) String() string {
	var sb strings.Builder
	r.write(&sb)
	return sb.String()
}

func (r Reply) write(sb *strings.Builder) {
	switch r.kind {
	case KindNull:
		sb.WriteString("Null")
	case KindSimpleString:
		sb.WriteString("SimpleString(" + strconv.Quote(r.str) + ")")
	case KindError:
		sb.WriteString("Error(" + strconv.Quote(r.str) + ")")
	case KindInteger:
		sb.WriteString("Integer(" + strconv.FormatInt(r.integer, 10) + ")")
	case KindBulkString:
		sb.WriteString("BulkString(" + strconv.Quote(r.str) + ")")
	case KindArray:
		sb.WriteString("Array[")
		for i, e := range r.elems {
			if i > 0 {
				sb.WriteString(", ")
			}
			e.write(sb)
		}
		sb.WriteString("]")
	}
}
