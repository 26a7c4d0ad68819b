package redis

import (
	"sync"

	"github.com/google/uuid"

	"github.com/lcx/commlib/net"
	"github.com/lcx/commlib/service"
)

var (
	_clientsMu sync.RWMutex
	_clients   = make(map[uuid.UUID]*Client)
)

// ConnectToRedis creates a reconnecting client of srv, registers it and
// starts connecting. dbindex > 0 issues SELECT on every connect, a non-empty
// pass issues AUTH first.
func ConnectToRedis(srv service.Service, raddr, pass string, dbindex int, netSrv *net.NetService) *Client {
	c := NewClient(srv, "redis@"+raddr, raddr, pass, dbindex, netSrv)
	c.SetAutoReconnect(true)

	_clientsMu.Lock()
	_clients[c.ID()] = c
	_clientsMu.Unlock()

	c.Connect(func(err error) {
		if err != nil {
			srv.GetHandle().Logger().Warn().Str("raddr", raddr).Err(err).Msg("redis connect failed")
			return
		}
		srv.GetHandle().Logger().Info().Str("raddr", raddr).Str("client", c.ID().String()).Msg("redis ready")
	})
	return c
}

// GetClient returns a registered client.
func GetClient(id uuid.UUID) (*Client, bool) {
	_clientsMu.RLock()
	defer _clientsMu.RUnlock()
	c, ok := _clients[id]
	return c, ok
}

// RemoveClient disconnects and unregisters a client.
func RemoveClient(id uuid.UUID, cb func()) {
	_clientsMu.Lock()
	c, ok := _clients[id]
	delete(_clients, id)
	_clientsMu.Unlock()

	if !ok {
		return
	}
	c.Disconnect(cb)
}

// ClientCount returns the number of registered clients.
func ClientCount() int {
	_clientsMu.RLock()
	defer _clientsMu.RUnlock()
	return len(_clients)
}
