package net

import (
	"errors"

	"github.com/lcx/commlib/log"
	"github.com/lcx/commlib/metrics"
	"github.com/lcx/commlib/net/packet"
	"github.com/lcx/commlib/service"
)

// The methods of this file implement reactorEvents and run on the Net
// service goroutine.

func (s *NetService) insert(conn *Connection) {
	if old, exists := s.conns[conn.id]; exists {
		s.Logger().Error().Uint64("hd", uint64(conn.id)).Str("old", old.remote).Msg("conn id reused")
	}
	s.conns[conn.id] = conn
}

func (s *NetService) postEstablish(conn *Connection) {
	if conn.onEstablish == nil {
		return
	}
	f := conn.onEstablish
	conn.owner.RunInService(func() { f(conn) })
}

func (s *NetService) onListened(lid ListenerID, addr string) {
	l, ok := s.listeners[lid]
	if !ok {
		return
	}
	l.bound = addr
	s.Logger().Info().Uint64("lid", uint64(lid)).Str("addr", addr).Str("type", l.pt.String()).Msg("listening")
	if l.listenFn != nil {
		f := l.listenFn
		l.owner.RunInService(func() { f(addr, nil) })
	}
}

func (s *NetService) onListenErr(lid ListenerID, err error) {
	l, ok := s.listeners[lid]
	if !ok {
		return
	}
	delete(s.listeners, lid)
	s.Logger().Error().Uint64("lid", uint64(lid)).Str("addr", l.addr).Err(err).Msg("listen failed")
	if l.listenFn != nil {
		f := l.listenFn
		l.owner.RunInService(func() { f("", err) })
	}
}

func (s *NetService) onAccepted(lid ListenerID, cid ConnID, remote string) {
	l, ok := s.listeners[lid]
	if !ok {
		s.Logger().Warn().Uint64("lid", uint64(lid)).Uint64("hd", uint64(cid)).Msg("accept on unknown listener")
		_ = s.reactor.Close(cid)
		return
	}
	incr("accepted_total", metrics.Dimension{"type": l.pt.String()})

	conn := newConnection(s, cid, remote, l.pt, l.owner)
	if l.acceptFn != nil {
		conn.bind(l.acceptFn(conn))
	} else {
		conn.bind(ConnHandler{})
	}
	s.insert(conn)
	s.Logger().Debug().Uint64("hd", uint64(cid)).Str("remote", remote).Msg("conn accepted")
	s.postEstablish(conn)
}

func (s *NetService) onConnectOk(cid ConnID, remote string) {
	c, ok := s.connectors[cid]
	if !ok {
		s.Logger().Warn().Uint64("hd", uint64(cid)).Msg("connect ok without connector")
		_ = s.reactor.Close(cid)
		return
	}
	delete(s.connectors, cid)
	incr("connected_total", metrics.Dimension{"type": c.pt.String()})

	conn := newConnection(s, cid, remote, c.pt, c.owner)
	conn.bind(c.handler)
	s.insert(conn)
	s.Logger().Info().Uint64("hd", uint64(cid)).Str("name", c.name).Str("remote", remote).Msg("conn connected")
	c.fire(cid, remote, nil)
	s.postEstablish(conn)
}

func (s *NetService) onConnectErr(cid ConnID, err error) {
	c, ok := s.connectors[cid]
	if !ok {
		return
	}
	delete(s.connectors, cid)
	incr("connect_failed_total", nil)
	s.Logger().Warn().Str("name", c.name).Str("raddr", c.raddr).Err(err).Msg("connect failed")
	c.fire(0, "", err)
}

func (s *NetService) onInput(cid ConnID, pkt *packet.Packet) {
	defer pkt.Release()

	conn, ok := s.conns[cid]
	if !ok || conn.aborting {
		return
	}
	err := conn.builder.Build(pkt.Body(), func(p *packet.Packet) {
		metrics.IncrCounterWithGroup(_metricsGroup, "frames_in_total", 1)
		if conn.onRead == nil {
			p.Release()
			return
		}
		f := conn.onRead
		conn.owner.RunInService(func() { f(conn, p) })
	})
	if err != nil {
		conn.aborting = true
		incr("invalid_frame_total", metrics.Dimension{"type": conn.pt.String()})
		s.Logger().Error().Uint64("hd", uint64(cid)).Str("remote", conn.remote).Err(err).Msg("frame error, abort conn")
		conn.builder.Reset()
		_ = s.reactor.Close(cid)
	}
}

func (s *NetService) onClosed(cid ConnID, err error) {
	conn, ok := s.conns[cid]
	if !ok {
		s.Logger().Error().Uint64("hd", uint64(cid)).Err(ErrAlreadyClosed).Msg("conn not found")
		return
	}
	delete(s.conns, cid)
	conn.closed.Store(true)
	conn.builder.Reset()
	incr("closed_total", metrics.Dimension{"type": conn.pt.String()})

	ev := s.Logger().Info().Uint64("hd", uint64(cid)).Str("remote", conn.remote)
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("conn closed")

	if fp := conn.onLost.Load(); fp != nil && *fp != nil {
		f := *fp
		conn.owner.RunInService(func() { f(conn) })
	}
}

func (s *NetService) send(cid ConnID, pkt *packet.Packet) {
	if _, ok := s.conns[cid]; !ok {
		pkt.Release()
		s.Logger().Error().Uint64("hd", uint64(cid)).Err(ErrConnNotFound).Msg("send failed")
		return
	}
	if err := s.reactor.Send(cid, pkt); err != nil {
		s.Logger().Error().Uint64("hd", uint64(cid)).Err(err).Msg("send failed")
		return
	}
	metrics.IncrCounterWithGroup(_metricsGroup, "frames_out_total", 1)
}

func (s *NetService) close(cid ConnID) {
	if _, ok := s.conns[cid]; !ok {
		s.Logger().Error().Uint64("hd", uint64(cid)).Err(ErrConnNotFound).Msg("close failed")
		return
	}
	if err := s.reactor.Close(cid); err != nil && !errors.Is(err, ErrConnNotFound) {
		s.Logger().Warn().Uint64("hd", uint64(cid)).Err(err).Msg("close failed")
	}
}

// Disconnect replaces the OnLost of conn with cb and closes it. When conn
// is already gone cb is posted to requester instead.
func (s *NetService) Disconnect(conn *Connection, requester service.Service, cb func(conn *Connection)) {
	s.RunInService(func() {
		if _, ok := s.conns[conn.id]; !ok {
			log.Debug().Uint64("hd", uint64(conn.id)).Msg("disconnect on gone conn")
			if cb != nil && requester != nil {
				requester.RunInService(func() { cb(conn) })
			}
			return
		}
		conn.onLost.Swap(&cb)
		s.close(conn.id)
	})
}
