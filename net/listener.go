package net

import (
	"github.com/lcx/commlib/net/packet"
	"github.com/lcx/commlib/service"
)

// ListenFunc reports the bound local address, or the bind error.
type ListenFunc func(addr string, err error)

// AcceptFunc returns the handler of an accepted connection. It runs on the
// Net service before the connection is published and must not block.
type AcceptFunc func(conn *Connection) ConnHandler

// Listener is a bound address whose accepted connections belong to owner.
type Listener struct {
	id       ListenerID
	addr     string
	bound    string
	pt       packet.PacketType
	owner    service.Service
	listenFn ListenFunc
	acceptFn AcceptFunc
}

// ID returns the listener id.
func (l *Listener) ID() ListenerID {
	return l.id
}

// Listen binds addr ("ip:port", port 0 picks one) for connections of type
// pt. listenFn and every callback returned by acceptFn run on srv.
func (s *NetService) Listen(srv service.Service, addr string, pt packet.PacketType, listenFn ListenFunc, acceptFn AcceptFunc) ListenerID {
	lid := s.reactor.NewListenerID()
	l := &Listener{
		id:       lid,
		addr:     addr,
		pt:       pt,
		owner:    srv,
		listenFn: listenFn,
		acceptFn: acceptFn,
	}
	s.RunInService(func() {
		s.listeners[lid] = l
		s.reactor.Listen(lid, addr)
	})
	return lid
}
