package net

import (
	"context"
	"fmt"
	stdnet "net"

	"golang.org/x/sync/errgroup"

	"github.com/lcx/commlib/metrics"
	"github.com/lcx/commlib/service"
	"github.com/lcx/commlib/utils"
)

// DnsServiceID is the id of the process DNS resolver service.
const DnsServiceID service.ServiceID = 3

// DnsService resolves names on a bounded pool of goroutines so that no
// service blocks in the OS resolver.
type DnsService struct {
	*service.ServiceHandle
	resolver *stdnet.Resolver
	group    errgroup.Group
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewDnsService creates the resolver service with at most workers lookups
// in flight.
func NewDnsService(workers int) *DnsService {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &DnsService{
		ServiceHandle: service.NewServiceHandle(DnsServiceID, "dns"),
		resolver:      stdnet.DefaultResolver,
		ctx:           ctx,
		cancel:        cancel,
	}
	s.group.SetLimit(workers)
	return s
}

func (s *DnsService) Conf() {}

func (s *DnsService) Update() {}

// Resolve looks host up and posts cb to srv with its first IPv4 address.
// A lookup without IPv4 answer fails with ErrNoIPv4Addr.
func (s *DnsService) Resolve(srv service.Service, host string, cb func(ip stdnet.IP, err error)) {
	s.RunInService(func() {
		// blocks the dns service while the pool is full
		s.group.Go(func() error {
			ip, err := s.lookup(host)
			srv.RunInService(func() { cb(ip, err) })
			return nil
		})
	})
}

func (s *DnsService) lookup(host string) (stdnet.IP, error) {
	metrics.IncrCounterWithGroup("dns", "lookup_total", 1)
	sw := utils.NewStopWatch()
	addrs, err := s.resolver.LookupIPAddr(s.ctx, host)
	metrics.RecordStopwatchWithGroup("dns", "lookup_time", sw.Start())
	if err != nil {
		metrics.IncrCounterWithGroup("dns", "failed_total", 1)
		s.Logger().Warn().Str("host", host).Err(err).Msg("lookup failed")
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}
	ip, err := firstIPv4(addrs)
	if err != nil {
		metrics.IncrCounterWithGroup("dns", "failed_total", 1)
		s.Logger().Warn().Str("host", host).Int("answers", len(addrs)).Msg("no ipv4 answer")
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}
	return ip, nil
}

func firstIPv4(addrs []stdnet.IPAddr) (stdnet.IP, error) {
	for _, a := range addrs {
		if v4 := a.IP.To4(); v4 != nil {
			return v4, nil
		}
	}
	return nil, ErrNoIPv4Addr
}

// Quit cancels running lookups and stops the service.
func (s *DnsService) Quit() {
	s.cancel()
	s.ServiceHandle.Quit()
}

// Join waits for the service and for every lookup still running.
func (s *DnsService) Join() {
	s.ServiceHandle.Join()
	_ = s.group.Wait()
}
