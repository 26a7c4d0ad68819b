// Package net is the network layer of the runtime: a gnet reactor, the Net
// service owning every connection, listener and connector, the DNS resolver
// service, and NetProxy, which turns packets into handler calls.
//
// Everything user-visible is delivered as closures posted to the owning
// service, so handlers never run on a reactor goroutine.
package net

import (
	"errors"
	"strconv"

	"github.com/lcx/commlib/metrics"
)

// ConnID identifies a connection for the lifetime of the process. 0 is never
// minted.
type ConnID uint64

func (id ConnID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ListenerID identifies a listener.
type ListenerID uint64

var (
	// ErrHandshake is reported to a connector whose TCP connect failed.
	ErrHandshake = errors.New("HandshakeError")
	// ErrNoIPv4Addr is reported when a name resolves to no IPv4 address.
	ErrNoIPv4Addr = errors.New("NoIpV4Addr")
	// ErrConnNotFound is logged on send or close of an unknown connection.
	ErrConnNotFound = errors.New("conn not found")
	// ErrAlreadyClosed is logged on a second close of a connection.
	ErrAlreadyClosed = errors.New("conn already closed")
)

const _metricsGroup = "net"

func incr(name string, dims metrics.Dimension) {
	metrics.IncrCounterWithDimGroup(_metricsGroup, name, 1, dims)
}
