package packet

import (
	"fmt"
)

// LeadingFieldSize returns the LEN width of frames received on a
// connection of type pt.
func LeadingFieldSize(pt PacketType) int {
	switch pt {
	case PacketTypeClient, PacketTypeClientWs:
		return ClientLeadingFieldSize
	case PacketTypeRedis:
		return 0
	default:
		return MaxLeadingFieldSize
	}
}

// OutboundLeadingFieldSize returns the LEN width of frames sent on a
// connection of type pt. Robots talk to Client-typed peers.
func OutboundLeadingFieldSize(pt PacketType) int {
	switch pt {
	case PacketTypeRobot, PacketTypeRobotWs:
		return ClientLeadingFieldSize
	case PacketTypeRedis:
		return 0
	default:
		return MaxLeadingFieldSize
	}
}

// EncryptsOutbound reports whether frames sent on pt are encrypted once a
// key is installed.
func EncryptsOutbound(pt PacketType) bool {
	return pt == PacketTypeRobot || pt == PacketTypeRobotWs
}

// DecryptsInbound reports whether frames received on pt are encrypted once
// a key is installed.
func DecryptsInbound(pt PacketType) bool {
	return pt == PacketTypeClient || pt == PacketTypeClientWs
}

func maxLen(field int) uint64 {
	if field == ClientLeadingFieldSize {
		return 0xffff
	}
	return 0xffffffff
}

// Encode turns the body of pkt into a complete frame in place:
// [LEN][CMD][BODY], BODY being tag plus ciphertext when pt encrypts and st
// holds a key. Redis packets are left untouched.
func Encode(pkt *Packet, pt PacketType, st *EncryptState) error {
	field := OutboundLeadingFieldSize(pt)
	if field == 0 {
		return nil
	}

	encrypt := EncryptsOutbound(pt) && st.Installed()
	frameLen := CmdLen + pkt.ReadableBytes()
	if encrypt {
		frameLen += TagLen
	}
	if uint64(frameLen) > maxLen(field) {
		return fmt.Errorf("%w: len %d overflows %d-byte field", ErrInvalidFrame, frameLen, field)
	}

	if encrypt {
		Encrypt(pkt, st)
	}
	pkt.PrependU16(pkt.cmd)
	if field == ClientLeadingFieldSize {
		pkt.PrependU16(uint16(frameLen))
	} else {
		pkt.PrependU32(uint32(frameLen))
	}
	return nil
}

// PacketBuilder cuts the byte stream of one connection into packets. It
// keeps partial frames between calls, so the packets produced do not depend
// on how the input was chunked.
type PacketBuilder struct {
	pt          PacketType
	field       int
	maxFrameLen int
	pool        *Pool
	buf         *Buffer
}

// NewPacketBuilder creates a builder for inbound frames of pt. maxFrameLen
// <= 0 selects DefaultMaxFrameLen; a nil pool selects the default pool.
func NewPacketBuilder(pt PacketType, pool *Pool, maxFrameLen int) *PacketBuilder {
	if maxFrameLen <= 0 {
		maxFrameLen = DefaultMaxFrameLen
	}
	if pool == nil {
		pool = DefaultPool()
	}
	return &PacketBuilder{
		pt:          pt,
		field:       LeadingFieldSize(pt),
		maxFrameLen: maxFrameLen,
		pool:        pool,
		buf:         NewBuffer(BufferInitialSize, 0),
	}
}

// Buffered returns the number of bytes waiting for the rest of their frame.
func (b *PacketBuilder) Buffered() int {
	return b.buf.ReadableBytes()
}

// Build appends input and emits every complete packet in order. The packet
// is owned by emit. ErrInvalidFrame means the stream cannot be resynchronised
// and the connection must be closed.
func (b *PacketBuilder) Build(input []byte, emit func(*Packet)) error {
	if b.field == 0 {
		// unframed (redis): every chunk is a packet
		if len(input) == 0 {
			return nil
		}
		pkt := b.pool.Take(len(input))
		pkt.Append(input)
		emit(pkt)
		return nil
	}

	b.buf.Append(input)

	for {
		if b.buf.ReadableBytes() < b.field {
			return nil
		}

		var frameLen int
		if b.field == ClientLeadingFieldSize {
			frameLen = int(b.buf.PeekU16())
		} else {
			frameLen = int(b.buf.PeekU32())
		}
		if frameLen < CmdLen || frameLen > b.maxFrameLen {
			return fmt.Errorf("%w: len %d (max %d)", ErrInvalidFrame, frameLen, b.maxFrameLen)
		}
		if b.buf.ReadableBytes() < b.field+frameLen {
			return nil
		}

		b.buf.Advance(b.field)
		cmd := b.buf.ReadU16()
		bodyLen := frameLen - CmdLen

		pkt := b.pool.Take(bodyLen)
		pkt.SetCmd(cmd)
		pkt.Append(b.buf.Peek()[:bodyLen])
		b.buf.Advance(bodyLen)

		emit(pkt)
	}
}

// Reset drops any partial frame.
func (b *PacketBuilder) Reset() {
	b.buf.Reset()
}
