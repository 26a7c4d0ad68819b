package net

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/lcx/commlib/net/packet"
)

// newDetachedConn returns a connection of a Net service that is never
// launched: sends and closes are queued and never executed.
func newDetachedConn(t *testing.T, cid ConnID, pt packet.PacketType) *Connection {
	t.Helper()
	s := NewNetService(DefaultNetCfg(), nil)
	return newConnection(s, cid, "127.0.0.1:1", pt, nil)
}

func inbound(cmd uint16, body []byte) *packet.Packet {
	pkt := packet.Take(len(body))
	pkt.SetCmd(cmd)
	pkt.Append(body)
	return pkt
}

func TestProxyDispatch(t *testing.T) {
	p := NewNetProxy(packet.PacketTypeServer, nil)
	conn := newDetachedConn(t, 1, packet.PacketTypeServer)

	var got []string
	p.SetPacketHandler(5, func(proxy *NetProxy, c *Connection, cmd uint16, body []byte) {
		assert.Same(t, p, proxy)
		assert.Same(t, conn, c)
		got = append(got, "5:"+string(body))
	})

	p.OnIncomingConn(conn, false)
	p.OnNetPacket(conn, inbound(5, []byte("a")))
	p.OnNetPacket(conn, inbound(6, []byte("no handler")))

	p.SetDefaultHandler(func(_ *NetProxy, _ *Connection, cmd uint16, body []byte) {
		got = append(got, "default:"+string(body))
	})
	p.OnNetPacket(conn, inbound(6, []byte("b")))

	p.Use(NewCmdBlockFilter(5))
	p.OnNetPacket(conn, inbound(5, []byte("blocked")))

	assert.Equal(t, []string{"5:a", "default:b"}, got)
	assert.Equal(t, 1, p.Len())
	p.OnHdLost(conn)
	assert.Equal(t, 0, p.Len())
}

func TestProxyRecvLimit(t *testing.T) {
	p := NewNetProxy(packet.PacketTypeServer, nil)
	p.SetRecvLimit(1, 2)
	conn := newDetachedConn(t, 1, packet.PacketTypeServer)
	p.OnIncomingConn(conn, false)

	handled := 0
	p.SetDefaultHandler(func(*NetProxy, *Connection, uint16, []byte) { handled++ })
	for i := 0; i < 5; i++ {
		p.OnNetPacket(conn, inbound(1, nil))
	}
	assert.Equal(t, 2, handled)
}

// TestProxyEncryptedPath wires a Robot proxy to a Client proxy through
// the codec and checks the key handshake and the decrypt failure.
func TestProxyEncryptedPath(t *testing.T) {
	psk := []byte("pre-shared")
	server := NewNetProxy(packet.PacketTypeClient, psk)
	robot := NewNetProxy(packet.PacketTypeRobot, psk)
	srvConn := newDetachedConn(t, 1, packet.PacketTypeClient)
	robotConn := newDetachedConn(t, 2, packet.PacketTypeRobot)

	material, err := packet.GenerateKeyMaterial()
	require.NoError(t, err)
	token, err := packet.WrapKey(psk, material)
	require.NoError(t, err)
	server.OnIncomingConn(srvConn, false)
	require.NoError(t, server.SetEncryptKey(srvConn, material))

	installed := false
	robot.SetEncryptTokenHandler(func(*NetProxy, *Connection) { installed = true })
	robot.OnIncomingConn(robotConn, false)
	robot.OnNetPacket(robotConn, inbound(packet.CmdEncryptToken, token))
	require.True(t, installed)

	// robot -> server, through the wire format
	var got []string
	server.SetDefaultHandler(func(_ *NetProxy, _ *Connection, cmd uint16, body []byte) {
		got = append(got, string(body))
	})
	builder := packet.NewPacketBuilder(packet.PacketTypeClient, nil, 0)
	for _, body := range []string{"hi", "there"} {
		pkt := inbound(1, []byte(body))
		require.NoError(t, packet.Encode(pkt, packet.PacketTypeRobot, &robot.conns[robotConn.id].send))
		require.NoError(t, builder.Build(pkt.Peek(), func(p *packet.Packet) { server.OnNetPacket(srvConn, p) }))
		pkt.Release()
	}
	assert.Equal(t, []string{"hi", "there"}, got)

	// a frame under another key fails the check and is not dispatched
	var other packet.EncryptState
	otherMaterial, err := packet.GenerateKeyMaterial()
	require.NoError(t, err)
	require.NoError(t, other.Install(otherMaterial))
	pkt := inbound(1, []byte("forged"))
	require.NoError(t, packet.Encode(pkt, packet.PacketTypeRobot, &other))
	require.NoError(t, builder.Build(pkt.Peek(), func(p *packet.Packet) { server.OnNetPacket(srvConn, p) }))
	pkt.Release()
	assert.Len(t, got, 2)
}

func TestProxyBadTokenLength(t *testing.T) {
	robot := NewNetProxy(packet.PacketTypeRobot, []byte("psk"))
	conn := newDetachedConn(t, 1, packet.PacketTypeRobot)
	robot.SetEncryptTokenHandler(func(*NetProxy, *Connection) { t.Fatal("installed") })
	robot.OnNetPacket(conn, inbound(packet.CmdEncryptToken, []byte("short")))
	assert.False(t, robot.conns[conn.id].recv.Installed())
}

func TestProxySendProtoEncodes(t *testing.T) {
	p := NewNetProxy(packet.PacketTypeServer, nil)
	conn := newDetachedConn(t, 1, packet.PacketTypeServer)
	assert.NoError(t, p.SendProto(conn, 3, wrapperspb.String("x")))

	big := make([]byte, 0x10000)
	robot := NewNetProxy(packet.PacketTypeRobot, nil)
	assert.ErrorIs(t, robot.SendRaw(conn, 3, big), packet.ErrInvalidFrame)
}
