// Package app holds the process context: the signal, dns, http client and
// net services every node runs, plus the registry of the node's own services.
package app

import (
	"errors"
	"sync"

	"github.com/lcx/commlib/config"
	"github.com/lcx/commlib/log"
	"github.com/lcx/commlib/net"
	"github.com/lcx/commlib/service"
)

// ErrNotInitialized is returned by Attach before Init.
var ErrNotInitialized = errors.New("app not initialized")

// App is one process context.
type App struct {
	nodeConf *config.NodeConf
	registry *service.Registry
	signal   *service.SignalService
	dns      *net.DnsService
	http     *net.HttpClientService
	net      *net.NetService

	shutdownOnce sync.Once
}

// New creates the built-in services and starts them. Services are attached
// in dependency order, so Shutdown stops net before dns.
func New(nodeConf *config.NodeConf, netCfg *net.NetCfg) (*App, error) {
	if netCfg == nil {
		netCfg = net.DefaultNetCfg()
	}
	if err := netCfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		nodeConf: nodeConf,
		registry: service.NewRegistry(),
		signal:   service.NewSignalService(),
		dns:      net.NewDnsService(netCfg.DnsWorkers),
		http:     net.NewHttpClientService(netCfg.HttpWorkers, netCfg.HttpTimeout(), netCfg.HttpConnectTimeout()),
	}
	a.net = net.NewNetService(netCfg, a.dns)

	for _, srv := range []service.Service{a.signal, a.dns, a.http, a.net} {
		if err := a.Attach(srv); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Attach registers srv, hands it the node configuration and launches it.
func (a *App) Attach(srv service.Service) error {
	if err := a.registry.Attach(srv); err != nil {
		return err
	}
	if a.nodeConf != nil {
		srv.GetHandle().SetNodeConf(a.nodeConf)
	}
	service.Launch(srv, 0)
	log.Info().Str("srv", srv.Name()).Uint64("srv_id", uint64(srv.GetHandle().ID())).Msg("service attached")
	return nil
}

func (a *App) NodeConf() *config.NodeConf {
	return a.nodeConf
}

func (a *App) Signal() *service.SignalService {
	return a.signal
}

func (a *App) Net() *net.NetService {
	return a.net
}

func (a *App) Dns() *net.DnsService {
	return a.dns
}

func (a *App) HttpClient() *net.HttpClientService {
	return a.http
}

// Service returns an attached service by id.
func (a *App) Service(id service.ServiceID) (service.Service, bool) {
	return a.registry.Get(id)
}

// WaitSigInt blocks until SIGINT was received.
func (a *App) WaitSigInt() {
	done := make(chan struct{})
	a.signal.ListenSigInt(a.signal, func() { close(done) })
	<-done
}

// Shutdown quits every service, last attached first, and waits for them.
func (a *App) Shutdown() {
	a.shutdownOnce.Do(func() {
		log.Info().Int("services", a.registry.Len()).Msg("app shutdown")
		a.registry.StopAll()
		a.registry.JoinAll()
	})
}

var (
	_mu  sync.Mutex
	_app *App
)

// Init creates the process context once; later calls return the first one.
func Init(nodeConf *config.NodeConf) (*App, error) {
	_mu.Lock()
	defer _mu.Unlock()
	if _app != nil {
		return _app, nil
	}

	cm := config.GetInstance()
	netCfg, err := net.LoadNetCfg(cm)
	if err != nil {
		return nil, err
	}
	a, err := New(nodeConf, netCfg)
	if err != nil {
		return nil, err
	}
	cm.AddChangeListener(a.net)
	_app = a
	return a, nil
}

// Attach attaches srv to the process context.
func Attach(srv service.Service) error {
	a := current()
	if a == nil {
		return ErrNotInitialized
	}
	return a.Attach(srv)
}

// Net returns the process Net service, nil before Init.
func Net() *net.NetService {
	if a := current(); a != nil {
		return a.net
	}
	return nil
}

// Signal returns the process signal service, nil before Init.
func Signal() *service.SignalService {
	if a := current(); a != nil {
		return a.signal
	}
	return nil
}

// Dns returns the process DNS service, nil before Init.
func Dns() *net.DnsService {
	if a := current(); a != nil {
		return a.dns
	}
	return nil
}

// HttpClient returns the process HTTP client service, nil before Init.
func HttpClient() *net.HttpClientService {
	if a := current(); a != nil {
		return a.http
	}
	return nil
}

// Shutdown stops the process context; a later Init starts a new one.
func Shutdown() {
	_mu.Lock()
	a := _app
	_app = nil
	_mu.Unlock()
	if a != nil {
		config.GetInstance().RemoveChangeListener(a.net)
		a.Shutdown()
	}
}

func current() *App {
	_mu.Lock()
	defer _mu.Unlock()
	return _app
}
