package net

import (
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/lcx/commlib/metrics"
	"github.com/lcx/commlib/net/packet"
	"github.com/lcx/commlib/service"
)

// ClientStatus is the link state of a TcpClient.
type ClientStatus int32

const (
	ClientIdle ClientStatus = iota
	ClientConnecting
	ClientConnected
	ClientDisconnecting
	ClientDisconnected
)

var _clientStatusNames = [...]string{"idle", "connecting", "connected", "disconnecting", "disconnected"}

func (s ClientStatus) String() string {
	if s >= 0 && int(s) < len(_clientStatusNames) {
		return _clientStatusNames[s]
	}
	return "unknown"
}

// TcpClient is a named outbound connection that can reconnect itself.
// Callbacks of handler run on srv, as do the status changes; Status may be
// read from anywhere.
type TcpClient struct {
	id            uuid.UUID
	name          string
	raddr         string
	pt            packet.PacketType
	srv           service.Service
	netSrv        *NetService
	handler       ConnHandler
	status        atomic.Int32
	autoReconnect atomic.Bool
	stopped       atomic.Bool
	conn          atomic.Pointer[Connection]
	timer         atomic.Pointer[uuid.UUID]
	readyFn       ReadyFunc
}

// NewTcpClient creates an idle client of srv connecting to raddr.
func NewTcpClient(netSrv *NetService, srv service.Service, name, raddr string, pt packet.PacketType, handler ConnHandler) *TcpClient {
	return &TcpClient{
		id:      uuid.New(),
		name:    name,
		raddr:   raddr,
		pt:      pt,
		srv:     srv,
		netSrv:  netSrv,
		handler: handler,
	}
}

// ID returns the client id.
func (c *TcpClient) ID() uuid.UUID {
	return c.id
}

// Name returns the client name.
func (c *TcpClient) Name() string {
	return c.name
}

// RemoteAddr returns the configured target.
func (c *TcpClient) RemoteAddr() string {
	return c.raddr
}

// Status returns the link state.
func (c *TcpClient) Status() ClientStatus {
	return ClientStatus(c.status.Load())
}

// Conn returns the current connection, nil when not connected.
func (c *TcpClient) Conn() *Connection {
	return c.conn.Load()
}

// SetAutoReconnect makes the client reconnect after a loss it did not ask for.
func (c *TcpClient) SetAutoReconnect(on bool) {
	c.autoReconnect.Store(on)
}

// Connect starts connecting; readyFn runs on srv with the outcome of this
// and of every later reconnect.
func (c *TcpClient) Connect(readyFn ReadyFunc) {
	c.readyFn = readyFn
	c.stopped.Store(false)
	c.connect()
}

func (c *TcpClient) connect() {
	c.status.Store(int32(ClientConnecting))
	handler := ConnHandler{
		OnEstablish: c.onEstablish,
		OnRead:      c.handler.OnRead,
		OnLost:      c.onLost,
	}
	c.netSrv.Connect(c.srv, c.name, c.raddr, c.pt, c.onReady, handler)
}

func (c *TcpClient) onReady(cid ConnID, remote string, err error) {
	if c.stopped.Load() {
		// disconnected while dialing; onEstablish closes the late link
		if err == nil {
			return
		}
		c.status.Store(int32(ClientDisconnected))
		return
	}
	if err != nil {
		c.status.Store(int32(ClientDisconnected))
		c.srv.GetHandle().Logger().Warn().Str("client", c.name).Str("raddr", c.raddr).Err(err).Msg("client connect failed")
	} else {
		c.status.Store(int32(ClientConnected))
	}
	if c.readyFn != nil {
		c.readyFn(cid, remote, err)
	}
	if err != nil && c.autoReconnect.Load() {
		c.reconnect()
	}
}

func (c *TcpClient) onEstablish(conn *Connection) {
	if c.stopped.Load() {
		conn.Close()
		return
	}
	c.conn.Store(conn)
	if c.handler.OnEstablish != nil {
		c.handler.OnEstablish(conn)
	}
}

func (c *TcpClient) onLost(conn *Connection) {
	if !c.conn.CompareAndSwap(conn, nil) && c.stopped.Load() {
		// the late link closed by onEstablish
		return
	}
	c.status.Store(int32(ClientDisconnected))
	if c.handler.OnLost != nil {
		c.handler.OnLost(conn)
	}
	if c.autoReconnect.Load() {
		c.reconnect()
	}
}

// Reconnect connects again after the configured delay, also after an
// explicit Disconnect. Attempts of all clients are paced by the funnel
// limiter of the Net service.
func (c *TcpClient) Reconnect() {
	c.stopped.Store(false)
	c.reconnect()
}

func (c *TcpClient) reconnect() {
	if c.Status() == ClientConnecting {
		return
	}
	c.status.Store(int32(ClientConnecting))
	metrics.IncrCounterWithDimGroup(_metricsGroup, "reconnect_total", 1, metrics.Dimension{"client": c.name})
	id := service.SetTimeout(c.srv, c.netSrv.cfg.ReconnectDelay(), func() {
		c.timer.Store(nil)
		if !c.reconnectWanted() {
			return
		}
		go func() {
			c.netSrv.funnel.Take()
			c.srv.RunInService(func() {
				if c.reconnectWanted() {
					c.connect()
				}
			})
		}()
	})
	c.timer.Store(&id)
}

func (c *TcpClient) reconnectWanted() bool {
	return !c.stopped.Load() && c.Status() == ClientConnecting
}

// Disconnect closes the link without reconnecting; cb runs on srv once the
// connection is gone.
func (c *TcpClient) Disconnect(cb func()) {
	c.autoReconnect.Store(false)
	c.stopped.Store(true)
	if id := c.timer.Swap(nil); id != nil {
		service.CancelTimer(c.srv, *id)
	}
	conn := c.conn.Load()
	if conn == nil {
		c.status.Store(int32(ClientDisconnected))
		if cb != nil {
			c.srv.RunInService(cb)
		}
		return
	}
	c.status.Store(int32(ClientDisconnecting))
	c.netSrv.Disconnect(conn, c.srv, func(lost *Connection) {
		c.conn.CompareAndSwap(lost, nil)
		c.status.Store(int32(ClientDisconnected))
		if c.handler.OnLost != nil {
			c.handler.OnLost(lost)
		}
		if cb != nil {
			cb()
		}
	})
}
