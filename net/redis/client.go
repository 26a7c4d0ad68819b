package redis

import (
	"errors"
	"strconv"

	"github.com/eapache/queue"
	"github.com/google/uuid"

	"github.com/lcx/commlib/metrics"
	"github.com/lcx/commlib/net"
	"github.com/lcx/commlib/net/packet"
	"github.com/lcx/commlib/service"
)

var (
	// ErrCalledFromNetService is returned by the blocking calls when they
	// would block the goroutine that has to deliver the reply.
	ErrCalledFromNetService = errors.New("redis: blocking call on net service")
	// ErrNotConnected is returned when the link is down or goes down before
	// the reply arrived.
	ErrNotConnected = errors.New("redis: not connected")
)

const _metricsGroup = "redis"

// ReplyFunc receives the reply of one command on the service of the client.
type ReplyFunc func(r Reply)

// pending is a command waiting for its reply. Replies of internal and
// blocking commands are delivered on the Net service, all others are posted
// to the client service.
type pending struct {
	name   string
	onNet  bool
	result func(r Reply, err error)
}

// Client is a redis connection owned by the Net service. Commands queued
// with Send are written on Commit; replies match commands in FIFO order.
//
// Send, Commit and Connect may be called from any goroutine; commands
// posted from one goroutine keep their order.
type Client struct {
	name    string
	raddr   string
	pass    string
	dbindex int

	srv    service.Service
	netSrv *net.NetService
	tcp    *net.TcpClient
	dims   metrics.Dimension

	readyFn func(err error)

	// Net service only
	conn    *net.Connection
	parser  *ReplyParser
	waiting *queue.Queue
	outbuf  []byte
}

// NewClient creates an idle client. Replies and readiness are delivered on srv.
func NewClient(srv service.Service, name, raddr, pass string, dbindex int, netSrv *net.NetService) *Client {
	c := &Client{
		name:    name,
		raddr:   raddr,
		pass:    pass,
		dbindex: dbindex,
		srv:     srv,
		netSrv:  netSrv,
		dims:    metrics.Dimension{"client": name},
		parser:  NewReplyParser(),
		waiting: queue.New(),
	}
	c.tcp = net.NewTcpClient(netSrv, netSrv, name, raddr, packet.PacketTypeRedis, net.ConnHandler{
		OnEstablish: c.onEstablish,
		OnRead:      c.onRead,
		OnLost:      c.onLost,
	})
	return c
}

// ID returns the client id.
func (c *Client) ID() uuid.UUID {
	return c.tcp.ID()
}

func (c *Client) Name() string {
	return c.name
}

func (c *Client) RemoteAddr() string {
	return c.raddr
}

// Status returns the link state.
func (c *Client) Status() net.ClientStatus {
	return c.tcp.Status()
}

// SetAutoReconnect makes the client reconnect after a lost link.
func (c *Client) SetAutoReconnect(on bool) {
	c.tcp.SetAutoReconnect(on)
}

// Connect starts connecting. readyFn runs on the client service after every
// connect attempt: with nil once AUTH and SELECT are queued, with the
// failure otherwise.
func (c *Client) Connect(readyFn func(err error)) {
	c.readyFn = readyFn
	c.tcp.Connect(c.onReady)
}

// Disconnect closes the link without reconnecting; cb runs on the client
// service once the link is gone.
func (c *Client) Disconnect(cb func()) {
	c.tcp.Disconnect(func() {
		if cb != nil {
			c.srv.RunInService(cb)
		}
	})
}

// Send queues cmd; cb receives the reply on the client service, or Null when
// the link is down or lost before the reply. cb may be nil.
func (c *Client) Send(cmd Command, cb ReplyFunc) {
	c.netSrv.RunInService(func() {
		c.enqueue(cmd, &pending{
			name: cmd.Name(),
			result: func(r Reply, _ error) {
				if cb != nil {
					c.srv.RunInService(func() { cb(r) })
				}
			},
		})
	})
}

// Commit writes every queued command.
func (c *Client) Commit() {
	c.netSrv.RunInService(c.flush)
}

// SendAndCommitBlocking sends cmd and waits for its reply. It must not be
// called on the Net service goroutine.
func (c *Client) SendAndCommitBlocking(cmd Command) (Reply, error) {
	if c.netSrv.IsInServiceThread() {
		c.netSrv.Logger().Error().Str("cmd", cmd.Name()).Err(ErrCalledFromNetService).Msg("redis blocking call rejected")
		return Null(), ErrCalledFromNetService
	}

	type result struct {
		r   Reply
		err error
	}
	ch := make(chan result, 1)
	c.netSrv.RunInService(func() {
		c.enqueue(cmd, &pending{
			name:  cmd.Name(),
			onNet: true,
			result: func(r Reply, err error) {
				ch <- result{r, err}
			},
		})
		c.flush()
	})
	res := <-ch
	return res.r, res.err
}

func (c *Client) enqueue(cmd Command, p *pending) {
	if c.conn == nil {
		metrics.IncrCounterWithDimGroup(_metricsGroup, "not_connected_total", 1, c.dims)
		p.result(Null(), ErrNotConnected)
		return
	}
	metrics.IncrCounterWithDimGroup(_metricsGroup, "commands_total", 1, c.dims)
	c.outbuf = AppendCommand(c.outbuf, cmd)
	c.waiting.Add(p)
}

func (c *Client) flush() {
	if c.conn == nil || len(c.outbuf) == 0 {
		return
	}
	c.conn.SendBytes(c.outbuf)
	c.outbuf = c.outbuf[:0]
}

func (c *Client) onReady(_ net.ConnID, _ string, err error) {
	if err != nil && c.readyFn != nil {
		f := c.readyFn
		c.srv.RunInService(func() { f(err) })
	}
}

func (c *Client) onEstablish(conn *net.Connection) {
	c.conn = conn
	c.parser.Reset()
	c.netSrv.Logger().Info().Str("client", c.name).Str("raddr", conn.RemoteAddr()).Uint64("cid", uint64(conn.ID())).Msg("redis connected")

	if c.pass != "" {
		c.enqueue(Command{"AUTH", c.pass}, &pending{name: "AUTH", onNet: true, result: c.onAuth})
	}
	if c.dbindex > 0 {
		c.enqueue(Command{"SELECT", strconv.Itoa(c.dbindex)}, &pending{name: "SELECT", onNet: true, result: c.onSelect})
	}
	c.flush()

	if c.readyFn != nil {
		f := c.readyFn
		c.srv.RunInService(func() { f(nil) })
	}
}

func (c *Client) onAuth(r Reply, err error) {
	if err != nil {
		return
	}
	if r.IsError() {
		c.netSrv.Logger().Error().Str("client", c.name).Str("reply", r.Str()).Msg("redis auth failed")
		if c.conn != nil {
			c.conn.Close()
		}
		return
	}
	c.netSrv.Logger().Info().Str("client", c.name).Msg("redis auth ok")
}

func (c *Client) onSelect(r Reply, err error) {
	if err != nil {
		return
	}
	if r.IsError() {
		c.netSrv.Logger().Error().Str("client", c.name).Int("db", c.dbindex).Str("reply", r.Str()).Msg("redis select failed")
		return
	}
	c.netSrv.Logger().Info().Str("client", c.name).Int("db", c.dbindex).Msg("redis select ok")
}

func (c *Client) onRead(conn *net.Connection, pkt *packet.Packet) {
	defer pkt.Release()
	if conn != c.conn {
		return
	}
	if err := c.parser.Feed(pkt.Body(), c.onReply); err != nil {
		metrics.IncrCounterWithDimGroup(_metricsGroup, "invalid_reply_total", 1, c.dims)
		c.netSrv.Logger().Error().Str("client", c.name).Err(err).Msg("redis stream corrupt, closing")
		c.parser.Reset()
		conn.Close()
	}
}

func (c *Client) onReply(r Reply) {
	metrics.IncrCounterWithDimGroup(_metricsGroup, "replies_total", 1, c.dims)
	if c.waiting.Length() == 0 {
		c.netSrv.Logger().Warn().Str("client", c.name).Str("reply", r.String()).Msg("redis reply without command")
		return
	}
	p := c.waiting.Remove().(*pending)
	if r.IsError() && !p.onNet {
		c.netSrv.Logger().Debug().Str("client", c.name).Str("cmd", p.name).Str("reply", r.Str()).Msg("redis error reply")
	}
	p.result(r, nil)
}

// onLost fails every command still waiting for a reply.
func (c *Client) onLost(conn *net.Connection) {
	if conn != c.conn {
		return
	}
	c.conn = nil
	c.outbuf = c.outbuf[:0]
	c.parser.Reset()

	n := c.waiting.Length()
	for c.waiting.Length() > 0 {
		p := c.waiting.Remove().(*pending)
		p.result(Null(), ErrNotConnected)
	}
	c.netSrv.Logger().Warn().Str("client", c.name).Int("pending", n).Msg("redis link lost")
}
