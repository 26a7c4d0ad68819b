package net

import (
	"context"
	"fmt"
	stdnet "net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/gnet/v2"
	"golang.org/x/sys/unix"

	"github.com/lcx/commlib/log"
	"github.com/lcx/commlib/metrics"
	"github.com/lcx/commlib/net/packet"
)

// reactorEvents receives the reactor events. Every method is called on the
// goroutine of the poster the reactor was created with, never on an event loop.
type reactorEvents interface {
	onListened(lid ListenerID, addr string)
	onListenErr(lid ListenerID, err error)
	onAccepted(lid ListenerID, cid ConnID, remote string)
	onConnectOk(cid ConnID, remote string)
	onConnectErr(cid ConnID, err error)
	onInput(cid ConnID, pkt *packet.Packet)
	onClosed(cid ConnID, err error)
}

type poster interface {
	RunInService(f func())
}

// Reactor drives the sockets on gnet event loops: one engine per listener
// and one gnet.Client for every outbound connection. Loops only copy bytes
// into pooled packets and post events; nothing else runs on them.
type Reactor struct {
	cfg    *NetCfg
	pool   *packet.Pool
	post   poster
	events reactorEvents

	nextConnID     atomic.Uint64
	nextListenerID atomic.Uint64

	mu      sync.RWMutex
	conns   map[ConnID]gnet.Conn
	engines map[ListenerID]*listenEngine
	client  *gnet.Client
	stopped bool
}

func newReactor(cfg *NetCfg, pool *packet.Pool, post poster, events reactorEvents) *Reactor {
	return &Reactor{
		cfg:     cfg,
		pool:    pool,
		post:    post,
		events:  events,
		conns:   make(map[ConnID]gnet.Conn),
		engines: make(map[ListenerID]*listenEngine),
	}
}

// NewConnID mints a connection id.
func (r *Reactor) NewConnID() ConnID {
	return ConnID(r.nextConnID.Add(1))
}

// NewListenerID mints a listener id.
func (r *Reactor) NewListenerID() ListenerID {
	return ListenerID(r.nextListenerID.Add(1))
}

func (r *Reactor) options() []gnet.Option {
	noDelay := gnet.TCPDelay
	if r.cfg.TCPNoDelay {
		noDelay = gnet.TCPNoDelay
	}
	return []gnet.Option{
		gnet.WithMulticore(r.cfg.Multicore),
		gnet.WithTCPNoDelay(noDelay),
		gnet.WithLogger(log.NewGnetLogger(nil)),
	}
}

// start prepares the outbound client.
func (r *Reactor) start() error {
	h := &connHandler{r: r}
	cli, err := gnet.NewClient(h, r.options()...)
	if err != nil {
		return fmt.Errorf("new gnet client failed: %w", err)
	}
	if err = cli.Start(); err != nil {
		return fmt.Errorf("start gnet client failed: %w", err)
	}
	r.mu.Lock()
	r.client = cli
	r.mu.Unlock()
	return nil
}

// Listen binds addr on a new engine. The outcome is reported as onListened
// or onListenErr.
func (r *Reactor) Listen(lid ListenerID, addr string) {
	eng := &listenEngine{connHandler: connHandler{r: r}, lid: lid}
	r.mu.Lock()
	r.engines[lid] = eng
	r.mu.Unlock()

	go func() {
		err := gnet.Run(eng, "tcp://"+addr, r.options()...)
		if err != nil && !eng.booted.Load() {
			r.mu.Lock()
			delete(r.engines, lid)
			r.mu.Unlock()
			r.post.RunInService(func() { r.events.onListenErr(lid, err) })
		}
	}()
}

// Connect dials addr, a literal ip:port. The id travels in the gnet
// connection context so that onConnectOk is posted before any input.
func (r *Reactor) Connect(cid ConnID, addr string) {
	r.mu.RLock()
	cli := r.client
	r.mu.RUnlock()
	if cli == nil {
		r.post.RunInService(func() { r.events.onConnectErr(cid, ErrHandshake) })
		return
	}

	go func() {
		if _, err := cli.DialContext("tcp", addr, cid); err != nil {
			log.Warn().Uint64("hd", uint64(cid)).Str("addr", addr).Err(err).Msg("connect failed")
			r.post.RunInService(func() { r.events.onConnectErr(cid, fmt.Errorf("%w: %v", ErrHandshake, err)) })
		}
	}()
}

func (r *Reactor) lookup(cid ConnID) gnet.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[cid]
}

// Send queues the frame held by pkt; pkt is released once written. Writes
// on one connection keep their order.
func (r *Reactor) Send(cid ConnID, pkt *packet.Packet) error {
	c := r.lookup(cid)
	if c == nil {
		pkt.Release()
		return ErrConnNotFound
	}
	n := pkt.ReadableBytes()
	err := c.AsyncWrite(pkt.Peek(), func(c gnet.Conn, err error) error {
		pkt.Release()
		if err != nil {
			log.Warn().Uint64("hd", uint64(cid)).Err(err).Msg("async write failed")
			_ = c.Close()
			return nil
		}
		metrics.IncrCounterWithGroup(_metricsGroup, "bytes_out_total", metrics.Value(n))
		return nil
	})
	if err != nil {
		_ = c.Close()
		return err
	}
	return nil
}

// Close requests the close of cid; onClosed follows.
func (r *Reactor) Close(cid ConnID) error {
	c := r.lookup(cid)
	if c == nil {
		return ErrConnNotFound
	}
	return c.Close()
}

// Stop shuts every engine and the client down.
func (r *Reactor) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	engines := make([]*listenEngine, 0, len(r.engines))
	for _, e := range r.engines {
		engines = append(engines, e)
	}
	cli := r.client
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for _, e := range engines {
		if !e.booted.Load() {
			continue
		}
		if err := e.eng.Stop(ctx); err != nil {
			log.Warn().Uint64("lid", uint64(e.lid)).Err(err).Msg("stop engine failed")
		}
	}
	if cli != nil {
		if err := cli.Stop(); err != nil {
			log.Warn().Err(err).Msg("stop client failed")
		}
	}
}

// connHandler is the per-connection part shared by listeners and the client.
type connHandler struct {
	gnet.BuiltinEventEngine
	r *Reactor
}

func (h *connHandler) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	cid, ok := c.Context().(ConnID)
	if !ok {
		log.Error().Str("remote", addrString(c.RemoteAddr())).Msg("outbound conn without id")
		return nil, gnet.Close
	}
	r := h.r
	r.mu.Lock()
	r.conns[cid] = c
	r.mu.Unlock()

	remote := addrString(c.RemoteAddr())
	r.post.RunInService(func() { r.events.onConnectOk(cid, remote) })
	return nil, gnet.None
}

func (h *connHandler) OnTraffic(c gnet.Conn) gnet.Action {
	cid, ok := c.Context().(ConnID)
	if !ok {
		return gnet.Close
	}
	data, err := c.Next(-1)
	if err != nil {
		log.Error().Uint64("hd", uint64(cid)).Err(err).Msg("read inbound failed")
		return gnet.Close
	}
	if len(data) == 0 {
		return gnet.None
	}
	metrics.IncrCounterWithGroup(_metricsGroup, "bytes_in_total", metrics.Value(len(data)))

	r := h.r
	pkt := r.pool.Take(len(data))
	pkt.Append(data)
	r.post.RunInService(func() { r.events.onInput(cid, pkt) })
	return gnet.None
}

func (h *connHandler) OnClose(c gnet.Conn, err error) gnet.Action {
	cid, ok := c.Context().(ConnID)
	if !ok {
		return gnet.None
	}
	r := h.r
	r.mu.Lock()
	delete(r.conns, cid)
	r.mu.Unlock()
	r.post.RunInService(func() { r.events.onClosed(cid, err) })
	return gnet.None
}

// listenEngine is the event handler of one listening engine.
type listenEngine struct {
	connHandler
	lid    ListenerID
	eng    gnet.Engine
	booted atomic.Bool
}

func (e *listenEngine) OnBoot(eng gnet.Engine) gnet.Action {
	e.eng = eng
	e.booted.Store(true)

	addr, err := boundAddr(eng)
	if err != nil {
		log.Warn().Uint64("lid", uint64(e.lid)).Err(err).Msg("resolve bound addr failed")
	}
	r, lid := e.r, e.lid
	r.post.RunInService(func() { r.events.onListened(lid, addr) })
	return gnet.None
}

func (e *listenEngine) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	r := e.r
	cid := r.NewConnID()
	c.SetContext(cid)

	r.mu.Lock()
	r.conns[cid] = c
	r.mu.Unlock()

	remote := addrString(c.RemoteAddr())
	lid := e.lid
	r.post.RunInService(func() { r.events.onAccepted(lid, cid, remote) })
	return nil, gnet.None
}

// boundAddr reads the local address of the listening socket, which differs
// from the requested one when port 0 was asked for.
func boundAddr(eng gnet.Engine) (string, error) {
	fd, err := eng.Dup()
	if err != nil {
		return "", err
	}
	defer unix.Close(fd)

	sa, err := unix.Getsockname(fd)
	if err != nil {
		return "", err
	}
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return stdnet.JoinHostPort(stdnet.IP(a.Addr[:]).String(), strconv.Itoa(a.Port)), nil
	case *unix.SockaddrInet6:
		return stdnet.JoinHostPort(stdnet.IP(a.Addr[:]).String(), strconv.Itoa(a.Port)), nil
	default:
		return "", fmt.Errorf("unexpected sockaddr %T", sa)
	}
}

func addrString(a stdnet.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
