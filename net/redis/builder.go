package redis

import (
	"bytes"
	"errors"
	"strconv"

	"github.com/lcx/commlib/net/packet"
)

// BuildResult is the outcome of one build step.
type BuildResult int

const (
	// BuildSuccess: a reply was built and its bytes consumed.
	BuildSuccess BuildResult = iota
	// BuildSuspend: more input is needed; the builder keeps its state.
	BuildSuspend
	// BuildInvalidInteger: a length or integer token is not base-10.
	BuildInvalidInteger
	// BuildInvalidReply: unknown type byte, missing CRLF or a length out of
	// range.
	BuildInvalidReply
)

const (
	// MaxBulkLen is the largest bulk string accepted, the redis proto-max-bulk-len.
	MaxBulkLen = 512 << 20
	// MaxArrayLen is the largest element count accepted for one array.
	MaxArrayLen = 1 << 20

	_arrayPrealloc = 1024
)

var (
	ErrInvalidInteger = errors.New("redis: invalid integer")
	ErrInvalidReply   = errors.New("redis: invalid reply")
)

var _crlf = []byte("\r\n")

// subBuilder builds one reply from buf. It only consumes complete tokens,
// so a suspended builder resumes where it stopped once more input arrives.
type subBuilder interface {
	tryBuild(buf *packet.Buffer) (Reply, BuildResult)
}

// readLine consumes one CRLF terminated line.
func readLine(buf *packet.Buffer) (string, bool) {
	data := buf.Peek()
	pos := bytes.Index(data, _crlf)
	if pos < 0 {
		return "", false
	}
	line := string(data[:pos])
	buf.Advance(pos + 2)
	return line, true
}

// readInteger consumes one integer line.
func readInteger(buf *packet.Buffer) (int64, BuildResult) {
	data := buf.Peek()
	pos := bytes.Index(data, _crlf)
	if pos < 0 {
		return 0, BuildSuspend
	}
	v, err := strconv.ParseInt(string(data[:pos]), 10, 64)
	if err != nil {
		return 0, BuildInvalidInteger
	}
	buf.Advance(pos + 2)
	return v, BuildSuccess
}

type simpleStringBuilder struct{}

func (simpleStringBuilder) tryBuild(buf *packet.Buffer) (Reply, BuildResult) {
	line, ok := readLine(buf)
	if !ok {
		return Reply{}, BuildSuspend
	}
	return NewSimpleString(line), BuildSuccess
}

type errorBuilder struct{}

func (errorBuilder) tryBuild(buf *packet.Buffer) (Reply, BuildResult) {
	line, ok := readLine(buf)
	if !ok {
		return Reply{}, BuildSuspend
	}
	return NewError(line), BuildSuccess
}

type integerBuilder struct{}

func (integerBuilder) tryBuild(buf *packet.Buffer) (Reply, BuildResult) {
	v, res := readInteger(buf)
	if res != BuildSuccess {
		return Reply{}, res
	}
	return NewInteger(v), BuildSuccess
}

// bulkStringBuilder reads "$<n>\r\n" then exactly n bytes and CRLF. The
// body may contain CRLF itself.
type bulkStringBuilder struct {
	size    int64
	hasSize bool
}

func (b *bulkStringBuilder) tryBuild(buf *packet.Buffer) (Reply, BuildResult) {
	if !b.hasSize {
		n, res := readInteger(buf)
		if res != BuildSuccess {
			return Reply{}, res
		}
		if n < 0 {
			// "$-1\r\n"
			return Null(), BuildSuccess
		}
		if n > MaxBulkLen {
			return Reply{}, BuildInvalidReply
		}
		b.size, b.hasSize = n, true
	}

	need := int(b.size) + 2
	if buf.ReadableBytes() < need {
		return Reply{}, BuildSuspend
	}
	data := buf.Peek()
	if !bytes.Equal(data[b.size:need], _crlf) {
		return Reply{}, BuildInvalidReply
	}
	r := NewBulkString(string(data[:b.size]))
	buf.Advance(need)
	b.size, b.hasSize = 0, false
	return r, BuildSuccess
}

// arrayBuilder reads "*<n>\r\n" then n nested replies.
type arrayBuilder struct {
	count    int64
	hasCount bool
	elems    []Reply
	child    *rootBuilder
}

func (b *arrayBuilder) tryBuild(buf *packet.Buffer) (Reply, BuildResult) {
	if !b.hasCount {
		n, res := readInteger(buf)
		if res != BuildSuccess {
			return Reply{}, res
		}
		if n < 0 {
			// "*-1\r\n"
			return Null(), BuildSuccess
		}
		if n > MaxArrayLen {
			return Reply{}, BuildInvalidReply
		}
		b.count, b.hasCount = n, true
		b.elems = make([]Reply, 0, min(n, _arrayPrealloc))
	}

	for int64(len(b.elems)) < b.count {
		if b.child == nil {
			b.child = &rootBuilder{}
		}
		r, res := b.child.tryBuild(buf)
		if res != BuildSuccess {
			return Reply{}, res
		}
		b.elems = append(b.elems, r)
	}

	r := NewArray(b.elems...)
	b.count, b.hasCount, b.elems = 0, false, nil
	return r, BuildSuccess
}

// rootBuilder reads the type byte and hands over to the matching builder.
type rootBuilder struct {
	sub subBuilder
}

func (b *rootBuilder) tryBuild(buf *packet.Buffer) (Reply, BuildResult) {
	if b.sub == nil {
		if buf.ReadableBytes() == 0 {
			return Reply{}, BuildSuspend
		}
		switch buf.Peek()[0] {
		case '+':
			b.sub = simpleStringBuilder{}
		case '-':
			b.sub = errorBuilder{}
		case ':':
			b.sub = integerBuilder{}
		case '$':
			b.sub = &bulkStringBuilder{}
		case '*':
			b.sub = &arrayBuilder{}
		default:
			return Reply{}, BuildInvalidReply
		}
		buf.Advance(1)
	}

	r, res := b.sub.tryBuild(buf)
	if res == BuildSuccess {
		b.sub = nil
	}
	return r, res
}

// TryBuild builds the next reply from buf. On BuildSuspend the builder must
// be called again with the same buffer once more bytes were appended.
func (b *rootBuilder) TryBuild(buf *packet.Buffer) (Reply, BuildResult) {
	return b.tryBuild(buf)
}

func (b *rootBuilder) reset() {
	b.sub = nil
}
