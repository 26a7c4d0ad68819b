package packet

import (
	"encoding/binary"
	"fmt"
)

// Buffer is a byte container with a reserved prepend region in front of
// the readable bytes, so headers can be written after the body.
//
//	+-------------------+------------------+------------------+
//	| prependable bytes |  readable bytes  |  writable bytes  |
//	+-------------------+------------------+------------------+
//	0      <=      readerIndex   <=   writerIndex    <=     len
type Buffer struct {
	buf         []byte
	readerIndex int
	writerIndex int
	prepend     int
}

// NewBuffer creates a buffer with prepend reserved bytes and room for
// initial payload bytes.
func NewBuffer(initial, prepend int) *Buffer {
	return &Buffer{
		buf:         make([]byte, prepend+initial),
		readerIndex: prepend,
		writerIndex: prepend,
		prepend:     prepend,
	}
}

// ReadableBytes returns the payload length.
func (b *Buffer) ReadableBytes() int {
	return b.writerIndex - b.readerIndex
}

// WritableBytes returns the room left after the payload.
func (b *Buffer) WritableBytes() int {
	return len(b.buf) - b.writerIndex
}

// PrependableBytes returns the room in front of the payload.
func (b *Buffer) PrependableBytes() int {
	return b.readerIndex
}

// Cap returns the size of the backing array.
func (b *Buffer) Cap() int {
	return len(b.buf)
}

// Peek returns the readable bytes without consuming them. The slice is only
// valid until the next write.
func (b *Buffer) Peek() []byte {
	return b.buf[b.readerIndex:b.writerIndex]
}

// EnsureWritable makes room for n more bytes. The prepend region is kept.
func (b *Buffer) EnsureWritable(n int) {
	if b.WritableBytes() >= n {
		return
	}
	readable := b.ReadableBytes()
	if b.WritableBytes()+b.PrependableBytes() >= n+b.prepend {
		// slide the payload back to the prepend boundary
		copy(b.buf[b.prepend:], b.buf[b.readerIndex:b.writerIndex])
		b.readerIndex = b.prepend
		b.writerIndex = b.prepend + readable
		return
	}

	size := 2 * len(b.buf)
	if need := b.prepend + readable + n; size < need {
		size = need
	}
	nb := make([]byte, size)
	copy(nb[b.prepend:], b.buf[b.readerIndex:b.writerIndex])
	b.buf = nb
	b.readerIndex = b.prepend
	b.writerIndex = b.prepend + readable
}

// Append copies p after the payload.
func (b *Buffer) Append(p []byte) {
	b.EnsureWritable(len(p))
	b.writerIndex += copy(b.buf[b.writerIndex:], p)
}

// AppendU16 appends v big-endian.
func (b *Buffer) AppendU16(v uint16) {
	b.EnsureWritable(2)
	binary.BigEndian.PutUint16(b.buf[b.writerIndex:], v)
	b.writerIndex += 2
}

// AppendU32 appends v big-endian.
func (b *Buffer) AppendU32(v uint32) {
	b.EnsureWritable(4)
	binary.BigEndian.PutUint32(b.buf[b.writerIndex:], v)
	b.writerIndex += 4
}

// Prepend copies p in front of the payload. It panics when the prepend
// region is too small.
func (b *Buffer) Prepend(p []byte) {
	if len(p) > b.PrependableBytes() {
		panic(fmt.Sprintf("packet buffer: prepend %d bytes, only %d prependable", len(p), b.PrependableBytes()))
	}
	b.readerIndex -= len(p)
	copy(b.buf[b.readerIndex:], p)
}

// PrependU16 writes v big-endian in front of the payload.
func (b *Buffer) PrependU16(v uint16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	b.Prepend(tmp[:])
}

// PrependU32 writes v big-endian in front of the payload.
func (b *Buffer) PrependU32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	b.Prepend(tmp[:])
}

// Advance consumes n readable bytes.
func (b *Buffer) Advance(n int) {
	if n < b.ReadableBytes() {
		b.readerIndex += n
		return
	}
	b.AdvanceAll()
}

// AdvanceAll consumes everything and rewinds to the prepend boundary.
func (b *Buffer) AdvanceAll() {
	b.readerIndex = b.prepend
	b.writerIndex = b.prepend
}

// PeekU16 reads a big-endian uint16 without consuming it.
func (b *Buffer) PeekU16() uint16 {
	return binary.BigEndian.Uint16(b.buf[b.readerIndex:])
}

// PeekU32 reads a big-endian uint32 without consuming it.
func (b *Buffer) PeekU32() uint32 {
	return binary.BigEndian.Uint32(b.buf[b.readerIndex:])
}

// ReadU16 reads and consumes a big-endian uint16.
func (b *Buffer) ReadU16() uint16 {
	v := b.PeekU16()
	b.Advance(2)
	return v
}

// ReadU32 reads and consumes a big-endian uint32.
func (b *Buffer) ReadU32() uint32 {
	v := b.PeekU32()
	b.Advance(4)
	return v
}

// Reset clears the payload.
func (b *Buffer) Reset() {
	b.AdvanceAll()
}
