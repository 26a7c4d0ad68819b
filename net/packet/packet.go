// Package packet holds the pooled packet buffers and the length-prefixed
// framing codec shared by every connection.
package packet

import (
	"errors"
	"fmt"
)

// ErrInvalidFrame is returned for frames whose length field is out of range,
// whose command id is truncated, or whose encrypted body fails verification.
var ErrInvalidFrame = errors.New("invalid frame")

const (
	// CmdLen is the width of the command id.
	CmdLen = 2
	// TagLen is the width of the check tag in front of encrypted bodies.
	TagLen = 4

	// MaxLeadingFieldSize is the widest length field.
	MaxLeadingFieldSize = 4
	// ClientLeadingFieldSize is the length field width of frames coming from a client.
	ClientLeadingFieldSize = 2

	// ReservedPrepend is the header room reserved in front of every packet.
	ReservedPrepend = MaxLeadingFieldSize + CmdLen + TagLen

	// DefaultMaxFrameLen bounds LEN of an inbound frame.
	DefaultMaxFrameLen = 8 * 1024 * 1024
)

// CmdEncryptToken carries the wrapped connection key.
const CmdEncryptToken uint16 = 1102

// PacketType decides length field width and encryption direction of a
// connection.
type PacketType uint8

const (
	PacketTypeServer   PacketType = iota // server to server, plain
	PacketTypeClient                     // accepted client: inbound decrypted, outbound plain
	PacketTypeRobot                      // simulated client: outbound encrypted, inbound plain
	PacketTypeClientWs                   // Client over the ws gateway
	PacketTypeRobotWs                    // Robot over the ws gateway
	PacketTypeRedis                      // RESP, no framing
)

var _packetTypeNames = [...]string{"server", "client", "robot", "client_ws", "robot_ws", "redis"}

func (pt PacketType) String() string {
	if int(pt) < len(_packetTypeNames) {
		return _packetTypeNames[pt]
	}
	return fmt.Sprintf("packet_type(%d)", uint8(pt))
}

// SizeClass tells which free list a packet belongs to.
type SizeClass uint8

const (
	SizeSmall SizeClass = iota
	SizeLarge
)

func (c SizeClass) String() string {
	if c == SizeLarge {
		return "large"
	}
	return "small"
}

// Packet is a pooled Buffer carrying a command id.
type Packet struct {
	Buffer
	cmd       uint16
	sizeClass SizeClass
	pool      *Pool
}

func newPacket(class SizeClass, size int, pool *Pool) *Packet {
	return &Packet{
		Buffer: Buffer{
			buf:         make([]byte, ReservedPrepend+size),
			readerIndex: ReservedPrepend,
			writerIndex: ReservedPrepend,
			prepend:     ReservedPrepend,
		},
		sizeClass: class,
		pool:      pool,
	}
}

// Cmd returns the command id.
func (p *Packet) Cmd() uint16 {
	return p.cmd
}

// SetCmd sets the command id.
func (p *Packet) SetCmd(cmd uint16) {
	p.cmd = cmd
}

// SizeClass returns the free list of the packet.
func (p *Packet) SizeClass() SizeClass {
	return p.sizeClass
}

// Body returns the readable bytes.
func (p *Packet) Body() []byte {
	return p.Peek()
}

// Release returns the packet to the pool it came from. The packet must not
// be used afterwards.
func (p *Packet) Release() {
	if p.pool != nil {
		p.pool.Put(p)
	}
}

func (p *Packet) reset() {
	p.AdvanceAll()
	p.cmd = 0
}
