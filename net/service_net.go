package net

import (
	"github.com/lcx/commlib/config"
	"github.com/lcx/commlib/metrics"
	"github.com/lcx/commlib/net/packet"
	"github.com/lcx/commlib/service"
)

// NetServiceID is the id of the process Net service.
const NetServiceID service.ServiceID = 2

// NetService owns the connection, listener and connector tables. Reactor
// events arrive in its in-box; the tables are only touched on its goroutine.
type NetService struct {
	*service.ServiceHandle
	cfg        *NetCfg
	pool       *packet.Pool
	reactor    *Reactor
	dns        *DnsService
	conns      map[ConnID]*Connection
	listeners  map[ListenerID]*Listener
	connectors map[ConnID]*Connector
	funnel     *FunnelLimiter
}

// NewNetService creates the Net service. dns resolves connector addresses
// that are not literal ip:port; nil disables name resolution.
func NewNetService(cfg *NetCfg, dns *DnsService) *NetService {
	if cfg == nil {
		cfg = DefaultNetCfg()
	}
	s := &NetService{
		ServiceHandle: service.NewServiceHandle(NetServiceID, "net"),
		cfg:           cfg,
		pool:          packet.NewPool(cfg.SmallPoolCap, cfg.LargePoolCap),
		dns:           dns,
		conns:         make(map[ConnID]*Connection),
		listeners:     make(map[ListenerID]*Listener),
		connectors:    make(map[ConnID]*Connector),
		funnel:        NewFunnelLimiter(cfg.ReconnectPerSecond),
	}
	s.reactor = newReactor(cfg, s.pool, s, s)
	return s
}

// Conf starts the outbound side of the reactor. A reactor that cannot
// start leaves the process without network, which is fatal.
func (s *NetService) Conf() {
	if err := s.reactor.start(); err != nil {
		s.Logger().Fatal().Err(err).Msg("reactor start failed")
	}
}

func (s *NetService) Update() {
	metrics.UpdateGaugeWithGroup(_metricsGroup, "conn_count", metrics.Value(len(s.conns)))
}

// Quit stops the reactor, then the service worker.
func (s *NetService) Quit() {
	s.reactor.Stop()
	s.ServiceHandle.Quit()
}

// Cfg returns the network configuration.
func (s *NetService) Cfg() *NetCfg {
	return s.cfg
}

// Pool returns the packet pool of every connection of this service.
func (s *NetService) Pool() *packet.Pool {
	return s.pool
}

// Funnel paces reconnect attempts of all clients of this service.
func (s *NetService) Funnel() *FunnelLimiter {
	return s.funnel
}

// Reactor returns the reactor.
func (s *NetService) Reactor() *Reactor {
	return s.reactor
}

// ConnCount returns the number of live connections. Net service only.
func (s *NetService) ConnCount() int {
	return len(s.conns)
}

// GetConn returns the live connection cid. Net service only.
func (s *NetService) GetConn(cid ConnID) (*Connection, bool) {
	c, ok := s.conns[cid]
	return c, ok
}

// OnConfigChanged implements config.ConfigChangeListener. Only the pacing
// of reconnects follows a reload; proxies read the recv limit when
// they are created.
func (s *NetService) OnConfigChanged(configName string, newConfig, _ config.Config) error {
	if configName != _netConfigName {
		return nil
	}
	cfg, ok := newConfig.(*NetCfg)
	if !ok {
		return nil
	}
	s.funnel.Reload(cfg.ReconnectPerSecond)
	return nil
}
