package net

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/proto"

	"github.com/lcx/commlib/codec"
	"github.com/lcx/commlib/log"
	"github.com/lcx/commlib/metrics"
	"github.com/lcx/commlib/net/packet"
)

// PacketHandler handles one inbound packet. body is only valid during the
// call.
type PacketHandler func(proxy *NetProxy, conn *Connection, cmd uint16, body []byte)

// EncryptTokenHandler runs once the key pushed by the peer is installed.
type EncryptTokenHandler func(proxy *NetProxy, conn *Connection)

type proxyConn struct {
	send    packet.EncryptState
	recv    packet.EncryptState
	limiter *RecvLimiter
}

// NetProxy turns connection packets into handler calls for one endpoint
// type: it keeps the per-connection encryption state, runs the encrypt-token
// handshake and dispatches by command.
//
// A proxy belongs to one service: every method must be called on it, which
// is where the callbacks of its connections run.
type NetProxy struct {
	pt                  packet.PacketType
	psk                 []byte
	handlers            map[uint16]PacketHandler
	defaultHandler      PacketHandler
	encryptTokenHandler EncryptTokenHandler
	filters             ProxyFilterChain
	conns               map[ConnID]*proxyConn
	recvLimit           int
	recvBurst           int
	dims                metrics.Dimension
}

// NewNetProxy creates a proxy for connections of type pt. psk wraps the
// encryption keys exchanged with EncryptToken.
func NewNetProxy(pt packet.PacketType, psk []byte) *NetProxy {
	return &NetProxy{
		pt:       pt,
		psk:      psk,
		handlers: make(map[uint16]PacketHandler),
		conns:    make(map[ConnID]*proxyConn),
		dims:     metrics.Dimension{"type": pt.String()},
	}
}

// PacketType returns the endpoint type of the proxy.
func (p *NetProxy) PacketType() packet.PacketType {
	return p.pt
}

// SetPacketHandler routes cmd to h.
func (p *NetProxy) SetPacketHandler(cmd uint16, h PacketHandler) {
	p.handlers[cmd] = h
}

// SetDefaultHandler handles commands without a handler.
func (p *NetProxy) SetDefaultHandler(h PacketHandler) {
	p.defaultHandler = h
}

// SetEncryptTokenHandler sets the callback run after a pushed key has been
// installed.
func (p *NetProxy) SetEncryptTokenHandler(h EncryptTokenHandler) {
	p.encryptTokenHandler = h
}

// Use appends filters run before every handler.
func (p *NetProxy) Use(filters ...ProxyFilter) {
	p.filters = append(p.filters, filters...)
}

// SetRecvLimit limits the packets handled per connection and second;
// excess packets are dropped. It applies to connections registered
// afterwards. limit 0 disables it.
func (p *NetProxy) SetRecvLimit(limit, burst int) {
	p.recvLimit, p.recvBurst = limit, burst
}

// Len returns the number of tracked connections.
func (p *NetProxy) Len() int {
	return len(p.conns)
}

func (p *NetProxy) state(conn *Connection) *proxyConn {
	st, ok := p.conns[conn.id]
	if !ok {
		st = &proxyConn{}
		if p.recvLimit > 0 {
			st.limiter = NewRecvLimiter(p.recvLimit, p.recvBurst)
		}
		p.conns[conn.id] = st
	}
	return st
}

// OnIncomingConn registers conn, to be called from OnEstablish. With
// pushEncryptToken a fresh key is sent to the peer wrapped under the
// pre-shared secret and installed for both directions.
func (p *NetProxy) OnIncomingConn(conn *Connection, pushEncryptToken bool) {
	p.state(conn)
	if !pushEncryptToken {
		return
	}
	if err := p.PushEncryptToken(conn); err != nil {
		log.Error().Uint64("hd", uint64(conn.id)).Err(err).Msg("push encrypt token failed")
		conn.Close()
	}
}

// PushEncryptToken generates a key, sends it wrapped as EncryptToken and
// installs it.
func (p *NetProxy) PushEncryptToken(conn *Connection) error {
	material, err := packet.GenerateKeyMaterial()
	if err != nil {
		return err
	}
	token, err := packet.WrapKey(p.psk, material)
	if err != nil {
		return err
	}
	// the token itself travels under the previous key, if any
	if err = p.SendRaw(conn, packet.CmdEncryptToken, token); err != nil {
		return err
	}
	return p.SetEncryptKey(conn, material)
}

// SetEncryptKey installs material as the key of both directions of conn.
func (p *NetProxy) SetEncryptKey(conn *Connection, material []byte) error {
	st := p.state(conn)
	if err := st.send.Install(material); err != nil {
		return err
	}
	return st.recv.Install(material)
}

// OnNetPacket handles a packet delivered by OnRead and releases it.
func (p *NetProxy) OnNetPacket(conn *Connection, pkt *packet.Packet) {
	defer pkt.Release()
	st := p.state(conn)

	if packet.DecryptsInbound(p.pt) && st.recv.Installed() {
		if err := packet.Decrypt(pkt, &st.recv); err != nil {
			metrics.IncrCounterWithDimGroup(_metricsGroup, "decrypt_failed_total", 1, p.dims)
			log.Error().Uint64("hd", uint64(conn.id)).Uint16("cmd", pkt.Cmd()).Err(err).Msg("decrypt failed, abort conn")
			conn.Close()
			return
		}
	}

	if pkt.Cmd() == packet.CmdEncryptToken && !packet.DecryptsInbound(p.pt) {
		p.onEncryptToken(conn, pkt.Body())
		return
	}

	chain := p.filters
	if st.limiter != nil {
		chain = append(ProxyFilterChain{st.limiter.recvLimitFilter}, p.filters...)
	}
	d := &Delivery{Proxy: p, Conn: conn, Cmd: pkt.Cmd(), Body: pkt.Body()}
	if err := chain.Handle(d, p.dispatch); err != nil {
		if errors.Is(err, errRecvLimited) {
			metrics.IncrCounterWithDimGroup(_metricsGroup, "recv_limited_total", 1, p.dims)
			log.Warn().Uint64("hd", uint64(conn.id)).Uint16("cmd", d.Cmd).Msg("packet dropped by recv limit")
			return
		}
		log.Error().Uint64("hd", uint64(conn.id)).Uint16("cmd", d.Cmd).Err(err).Msg("handle packet failed")
	}
}

func (p *NetProxy) onEncryptToken(conn *Connection, token []byte) {
	material, err := packet.UnwrapKey(p.psk, token)
	if err == nil {
		err = p.SetEncryptKey(conn, material)
	}
	if err != nil {
		log.Error().Uint64("hd", uint64(conn.id)).Err(err).Msg("bad encrypt token, abort conn")
		conn.Close()
		return
	}
	log.Debug().Uint64("hd", uint64(conn.id)).Msg("encrypt key installed")
	if p.encryptTokenHandler != nil {
		p.encryptTokenHandler(p, conn)
	}
}

func (p *NetProxy) dispatch(d *Delivery) error {
	h, ok := p.handlers[d.Cmd]
	if !ok {
		h = p.defaultHandler
	}
	if h == nil {
		log.Warn().Uint64("hd", uint64(d.Conn.id)).Uint16("cmd", d.Cmd).Msg("no packet handler")
		return nil
	}
	h(p, d.Conn, d.Cmd, d.Body)
	return nil
}

// SendRaw frames body under cmd for the connection type of the proxy,
// encrypting it when the connection has a key, and sends it.
func (p *NetProxy) SendRaw(conn *Connection, cmd uint16, body []byte) error {
	var send *packet.EncryptState
	if st, ok := p.conns[conn.id]; ok {
		send = &st.send
	}
	pkt := conn.netSrv.pool.Take(len(body))
	pkt.SetCmd(cmd)
	pkt.Append(body)
	if err := packet.Encode(pkt, p.pt, send); err != nil {
		pkt.Release()
		return fmt.Errorf("encode cmd %d: %w", cmd, err)
	}
	conn.Send(pkt)
	return nil
}

// SendProto marshals msg and sends it as SendRaw does.
func (p *NetProxy) SendProto(conn *Connection, cmd uint16, msg proto.Message) error {
	body, err := codec.Encode(msg, nil)
	if err != nil {
		return fmt.Errorf("marshal cmd %d: %w", cmd, err)
	}
	return p.SendRaw(conn, cmd, body)
}

// OnHdLost drops the state of conn, to be called from OnLost.
func (p *NetProxy) OnHdLost(conn *Connection) {
	delete(p.conns, conn.id)
}
