package net

import (
	"errors"
)

var errRecvLimited = errors.New("recv limited")

// Delivery is one decoded inbound packet travelling through the filter
// chain of a NetProxy. Body is only valid until the chain returns.
type Delivery struct {
	Proxy *NetProxy
	Conn  *Connection
	Cmd   uint16
	Body  []byte
}

// ProxyFilterHandleFunc handles a delivery.
type ProxyFilterHandleFunc func(d *Delivery) error

// ProxyFilter wraps the rest of the chain: it may inspect d, call f to
// continue, or return without calling f to drop the packet.
type ProxyFilter func(d *Delivery, f ProxyFilterHandleFunc) error

// ProxyFilterChain runs filters in order, the handler last.
type ProxyFilterChain []ProxyFilter

// Handle runs the chain on d, ending with f.
func (fc ProxyFilterChain) Handle(d *Delivery, f ProxyFilterHandleFunc) error {
	if len(fc) == 0 {
		return f(d)
	}
	return fc[0](d, func(d *Delivery) error {
		return fc[1:].Handle(d, f)
	})
}

// NewCmdBlockFilter drops every packet whose command is in cmds.
func NewCmdBlockFilter(cmds ...uint16) ProxyFilter {
	blocked := make(map[uint16]struct{}, len(cmds))
	for _, c := range cmds {
		blocked[c] = struct{}{}
	}
	return func(d *Delivery, f ProxyFilterHandleFunc) error {
		if _, ok := blocked[d.Cmd]; ok {
			return nil
		}
		return f(d)
	}
}
