package redis

import (
	"fmt"

	"github.com/lcx/commlib/net/packet"
)

const _parserInitialSize = 4096

// ReplyParser turns a RESP byte stream into replies. Partial input is kept
// between calls, so the replies do not depend on how the stream is chunked.
type ReplyParser struct {
	buf  *packet.Buffer
	root rootBuilder
}

// NewReplyParser creates an empty parser.
func NewReplyParser() *ReplyParser {
	return &ReplyParser{buf: packet.NewBuffer(_parserInitialSize, 0)}
}

// Feed appends data and emits every complete reply in order. An error
// means the stream is corrupt and the connection must be dropped.
func (p *ReplyParser) Feed(data []byte, emit func(Reply)) error {
	p.buf.Append(data)
	for {
		r, res := p.root.TryBuild(p.buf)
		switch res {
		case BuildSuccess:
			emit(r)
		case BuildSuspend:
			return nil
		case BuildInvalidInteger:
			return fmt.Errorf("%w near %q", ErrInvalidInteger, preview(p.buf.Peek()))
		default:
			return fmt.Errorf("%w near %q", ErrInvalidReply, preview(p.buf.Peek()))
		}
	}
}

// Buffered returns the bytes of an incomplete reply.
func (p *ReplyParser) Buffered() int {
	return p.buf.ReadableBytes()
}

// Reset drops buffered input and any partial reply.
func (p *ReplyParser) Reset() {
	p.buf.Reset()
	p.root.reset()
}

func preview(b []byte) []byte {
	if len(b) > 32 {
		return b[:32]
	}
	return b
}
