package net

import (
	"fmt"
	stdnet "net"

	"github.com/lcx/commlib/net/packet"
	"github.com/lcx/commlib/service"
)

// ReadyFunc reports the outcome of a Connect: the new connection id and peer
// address, or (0, "", err).
type ReadyFunc func(cid ConnID, remote string, err error)

// Connector is a pending outbound connection. It fires exactly once and is
// dropped from the Net service when it does.
type Connector struct {
	cid     ConnID
	name    string
	raddr   string
	pt      packet.PacketType
	owner   service.Service
	readyFn ReadyFunc
	handler ConnHandler
	fired   bool
}

func (c *Connector) fire(cid ConnID, remote string, err error) {
	if c.fired {
		return
	}
	c.fired = true
	if c.readyFn == nil {
		return
	}
	f := c.readyFn
	c.owner.RunInService(func() { f(cid, remote, err) })
}

// Connect opens a connection of type pt to raddr, "host:port". A literal ip
// is dialled directly, a name goes through the DNS service first and the
// first IPv4 address is used. readyFn and the callbacks of handler run on
// srv; on success readyFn runs before OnEstablish.
//
// The returned id is the id of the connection once established.
func (s *NetService) Connect(srv service.Service, name, raddr string, pt packet.PacketType, readyFn ReadyFunc, handler ConnHandler) ConnID {
	cid := s.reactor.NewConnID()
	c := &Connector{
		cid:     cid,
		name:    name,
		raddr:   raddr,
		pt:      pt,
		owner:   srv,
		readyFn: readyFn,
		handler: handler,
	}
	s.RunInService(func() { s.startConnector(c) })
	return cid
}

func (s *NetService) startConnector(c *Connector) {
	s.connectors[c.cid] = c

	host, port, err := stdnet.SplitHostPort(c.raddr)
	if err != nil {
		s.onConnectErr(c.cid, fmt.Errorf("%w: %v", ErrHandshake, err))
		return
	}
	if stdnet.ParseIP(host) != nil {
		s.reactor.Connect(c.cid, c.raddr)
		return
	}
	if s.dns == nil {
		s.onConnectErr(c.cid, fmt.Errorf("resolve %s: no dns service", host))
		return
	}

	s.Logger().Debug().Str("name", c.name).Str("host", host).Msg("resolving")
	cid := c.cid
	s.dns.Resolve(s, host, func(ip stdnet.IP, err error) {
		if err != nil {
			s.onConnectErr(cid, err)
			return
		}
		if _, pending := s.connectors[cid]; !pending {
			return
		}
		s.reactor.Connect(cid, stdnet.JoinHostPort(ip.String(), port))
	})
}

// PendingConnectors returns the number of connectors not fired yet. Net
// service only.
func (s *NetService) PendingConnectors() int {
	return len(s.connectors)
}
