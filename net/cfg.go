package net

import (
	"errors"
	"fmt"
	"time"

	"github.com/lcx/commlib/config"
	"github.com/lcx/commlib/net/packet"
	"github.com/spf13/viper"
)

const _netConfigName = "net"

// NetCfg configures the reactor, the Net service and NetProxy. It is loaded
// under the name "net"; the limiter settings are applied on reload.
type NetCfg struct {
	// MaxFrameLen bounds LEN of an inbound frame. Larger frames abort the connection.
	MaxFrameLen int `mapstructure:"maxFrameLen"`

	SmallPoolCap int `mapstructure:"smallPoolCap"`
	LargePoolCap int `mapstructure:"largePoolCap"`

	// DnsWorkers bounds the concurrent lookups of the DNS resolver service.
	DnsWorkers int `mapstructure:"dnsWorkers"`

	// HttpWorkers bounds the requests in flight of the HTTP client service.
	HttpWorkers          int `mapstructure:"httpWorkers"`
	HttpTimeoutMs        int `mapstructure:"httpTimeoutMs"`
	HttpConnectTimeoutMs int `mapstructure:"httpConnectTimeoutMs"`

	// ReconnectDelayMs is the pause before a TcpClient reconnects.
	ReconnectDelayMs int `mapstructure:"reconnectDelayMs"`
	// ReconnectPerSecond caps reconnect attempts of the whole process.
	ReconnectPerSecond int `mapstructure:"reconnectPerSecond"`

	// RecvLimitPerSecond and RecvBurst configure the per-connection inbound
	// token bucket of NetProxy. 0 disables it.
	RecvLimitPerSecond int `mapstructure:"recvLimitPerSecond"`
	RecvBurst          int `mapstructure:"recvBurst"`

	TCPNoDelay bool `mapstructure:"tcpNoDelay"`
	Multicore  bool `mapstructure:"multicore"`
}

// DefaultNetCfg returns the configuration used when no "net" file exists.
func DefaultNetCfg() *NetCfg {
	return &NetCfg{
		MaxFrameLen:          packet.DefaultMaxFrameLen,
		SmallPoolCap:         packet.DefaultSmallPoolCap,
		LargePoolCap:         packet.DefaultLargePoolCap,
		DnsWorkers:           4,
		HttpWorkers:          8,
		HttpTimeoutMs:        30000,
		HttpConnectTimeoutMs: 10000,
		ReconnectDelayMs:     5000,
		ReconnectPerSecond:   10,
		TCPNoDelay:           true,
	}
}

// GetName implements config.Config.
func (c *NetCfg) GetName() string {
	return _netConfigName
}

// Validate implements config.Config.
func (c *NetCfg) Validate() error {
	if c.MaxFrameLen <= packet.CmdLen {
		return fmt.Errorf("maxFrameLen %d too small", c.MaxFrameLen)
	}
	if c.SmallPoolCap < 0 || c.LargePoolCap < 0 {
		return errors.New("pool caps must not be negative")
	}
	if c.DnsWorkers <= 0 {
		return errors.New("dnsWorkers must be positive")
	}
	if c.HttpWorkers <= 0 {
		return errors.New("httpWorkers must be positive")
	}
	if c.HttpTimeoutMs <= 0 || c.HttpConnectTimeoutMs <= 0 {
		return errors.New("http timeouts must be positive")
	}
	if c.ReconnectDelayMs < 0 {
		return errors.New("reconnectDelayMs must not be negative")
	}
	if c.ReconnectPerSecond <= 0 {
		return errors.New("reconnectPerSecond must be positive")
	}
	if c.RecvLimitPerSecond < 0 || c.RecvBurst < 0 {
		return errors.New("recv limit must not be negative")
	}
	return nil
}

// ReconnectDelay returns ReconnectDelayMs as a duration.
func (c *NetCfg) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMs) * time.Millisecond
}

// HttpTimeout returns HttpTimeoutMs as a duration.
func (c *NetCfg) HttpTimeout() time.Duration {
	return time.Duration(c.HttpTimeoutMs) * time.Millisecond
}

// HttpConnectTimeout returns HttpConnectTimeoutMs as a duration.
func (c *NetCfg) HttpConnectTimeout() time.Duration {
	return time.Duration(c.HttpConnectTimeoutMs) * time.Millisecond
}

// LoadNetCfg loads "net" through configManager, falling back to the defaults
// when the section is missing. A present but invalid section is an error.
func LoadNetCfg(configManager config.ConfigManager) (*NetCfg, error) {
	cfg := DefaultNetCfg()
	if configManager == nil {
		return cfg, nil
	}
	if err := configManager.LoadConfig(_netConfigName, cfg); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return DefaultNetCfg(), nil
		}
		return nil, fmt.Errorf("failed to load net config: %w", err)
	}
	return cfg, nil
}
