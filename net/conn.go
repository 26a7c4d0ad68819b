package net

import (
	"sync/atomic"

	"github.com/lcx/commlib/net/packet"
	"github.com/lcx/commlib/service"
)

// ConnHandler is the callback triple of a connection. All three run on the
// owner service: OnEstablish once, OnRead for every packet in byte order,
// OnLost once after the connection left the table.
//
// OnRead owns pkt and must Release it.
type ConnHandler struct {
	OnEstablish func(conn *Connection)
	OnRead      func(conn *Connection, pkt *packet.Packet)
	OnLost      func(conn *Connection)
}

// Connection is one established TCP connection. It is created by the Net
// service on accept or connect and never changes owner.
type Connection struct {
	id      ConnID
	remote  string
	pt      packet.PacketType
	owner   service.Service
	netSrv  *NetService
	builder *packet.PacketBuilder
	closed  atomic.Bool

	onEstablish func(conn *Connection)
	onRead      func(conn *Connection, pkt *packet.Packet)
	// swapped by Disconnect
	onLost atomic.Pointer[func(conn *Connection)]

	// set once the stream failed to frame; Net service only
	aborting bool
}

func newConnection(s *NetService, cid ConnID, remote string, pt packet.PacketType, owner service.Service) *Connection {
	return &Connection{
		id:      cid,
		remote:  remote,
		pt:      pt,
		owner:   owner,
		netSrv:  s,
		builder: packet.NewPacketBuilder(pt, s.pool, s.cfg.MaxFrameLen),
	}
}

func (c *Connection) bind(h ConnHandler) {
	c.onEstablish = h.OnEstablish
	c.onRead = h.OnRead
	lost := h.OnLost
	c.onLost.Store(&lost)
}

// ID returns the connection id.
func (c *Connection) ID() ConnID {
	return c.id
}

// RemoteAddr returns the peer address, "ip:port".
func (c *Connection) RemoteAddr() string {
	return c.remote
}

// PacketType returns the framing of the connection.
func (c *Connection) PacketType() packet.PacketType {
	return c.pt
}

// Owner returns the service every callback runs on.
func (c *Connection) Owner() service.Service {
	return c.owner
}

// IsClosed reports whether OnLost has been scheduled.
func (c *Connection) IsClosed() bool {
	return c.closed.Load()
}

// Send queues a complete frame, already encoded for the wire. Ownership
// of pkt passes to the Net service.
func (c *Connection) Send(pkt *packet.Packet) {
	s, cid := c.netSrv, c.id
	s.RunInService(func() { s.send(cid, pkt) })
}

// SendBytes copies b into a pooled packet and sends it unchanged.
func (c *Connection) SendBytes(b []byte) {
	pkt := c.netSrv.pool.Take(len(b))
	pkt.Append(b)
	c.Send(pkt)
}

// Disconnect closes the connection; cb replaces OnLost and runs on the
// owner. cb also runs when the connection is already gone.
func (c *Connection) Disconnect(cb func(conn *Connection)) {
	c.netSrv.Disconnect(c, c.owner, cb)
}

// Close closes the connection; OnLost runs as usual.
func (c *Connection) Close() {
	s, cid := c.netSrv, c.id
	s.RunInService(func() { s.close(cid) })
}

func (c *Connection) String() string {
	return c.id.String() + "@" + c.remote
}
