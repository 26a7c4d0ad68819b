package packet

import (
	"bytes"
	"encoding/hex"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	cmd  uint16
	body []byte
}

func encodeFrame(t *testing.T, pt PacketType, st *EncryptState, cmd uint16, body []byte) []byte {
	t.Helper()
	pkt := Take(len(body))
	defer pkt.Release()
	pkt.SetCmd(cmd)
	pkt.Append(body)
	require.NoError(t, Encode(pkt, pt, st))
	return append([]byte(nil), pkt.Peek()...)
}

func decodeAll(t *testing.T, b *PacketBuilder, st *EncryptState, chunks ...[]byte) []frame {
	t.Helper()
	var out []frame
	for _, c := range chunks {
		err := b.Build(c, func(pkt *Packet) {
			defer pkt.Release()
			if st.Installed() {
				require.NoError(t, Decrypt(pkt, st))
			}
			out = append(out, frame{cmd: pkt.Cmd(), body: append([]byte{}, pkt.Body()...)})
		})
		require.NoError(t, err)
	}
	return out
}

func randBody(r *rand.Rand, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(r.UintN(256))
	}
	return b
}

func TestFrameLayout(t *testing.T) {
	wire := encodeFrame(t, PacketTypeServer, nil, 17, []byte("hello"))
	assert.Equal(t, "00000007"+"0011"+hex.EncodeToString([]byte("hello")), hex.EncodeToString(wire))

	wire = encodeFrame(t, PacketTypeRobot, nil, 17, []byte("hello"))
	assert.Equal(t, "0007"+"0011"+hex.EncodeToString([]byte("hello")), hex.EncodeToString(wire))

	wire = encodeFrame(t, PacketTypeClient, nil, 1, nil)
	assert.Equal(t, "00000002"+"0001", hex.EncodeToString(wire))
}

func TestLeadingFieldSizes(t *testing.T) {
	assert.Equal(t, 2, LeadingFieldSize(PacketTypeClient))
	assert.Equal(t, 2, LeadingFieldSize(PacketTypeClientWs))
	assert.Equal(t, 4, LeadingFieldSize(PacketTypeServer))
	assert.Equal(t, 4, LeadingFieldSize(PacketTypeRobot))
	assert.Equal(t, 2, OutboundLeadingFieldSize(PacketTypeRobot))
	assert.Equal(t, 4, OutboundLeadingFieldSize(PacketTypeClient))
	assert.Equal(t, 0, OutboundLeadingFieldSize(PacketTypeRedis))
}

// ClientWs and RobotWs frame their byte stream exactly like Client and Robot.
func TestWsTypesShareTcpFraming(t *testing.T) {
	assert.Equal(t, LeadingFieldSize(PacketTypeRobot), LeadingFieldSize(PacketTypeRobotWs))
	assert.Equal(t, OutboundLeadingFieldSize(PacketTypeClient), OutboundLeadingFieldSize(PacketTypeClientWs))
	assert.Equal(t, OutboundLeadingFieldSize(PacketTypeRobot), OutboundLeadingFieldSize(PacketTypeRobotWs))
	assert.Equal(t, EncryptsOutbound(PacketTypeRobot), EncryptsOutbound(PacketTypeRobotWs))
	assert.Equal(t, DecryptsInbound(PacketTypeClient), DecryptsInbound(PacketTypeClientWs))

	assert.Equal(t, encodeFrame(t, PacketTypeRobot, nil, 17, []byte("hello")),
		encodeFrame(t, PacketTypeRobotWs, nil, 17, []byte("hello")))

	got := decodeAll(t, NewPacketBuilder(PacketTypeClientWs, nil, 0), nil,
		encodeFrame(t, PacketTypeRobotWs, nil, 5, []byte("ws")))
	require.Len(t, got, 1)
	assert.Equal(t, frame{cmd: 5, body: []byte("ws")}, got[0])
}

func TestRoundTripServer(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	sizes := []int{0, 1, 5, SmallPacketMaxSize, SmallPacketMaxSize + 1, 70000, 1 << 20, 16 << 20}
	b := NewPacketBuilder(PacketTypeServer, nil, 17<<20)
	for _, n := range sizes {
		body := randBody(r, n)
		cmd := uint16(r.UintN(65536))
		got := decodeAll(t, b, nil, encodeFrame(t, PacketTypeServer, nil, cmd, body))
		require.Len(t, got, 1, "size %d", n)
		assert.Equal(t, cmd, got[0].cmd)
		assert.True(t, bytes.Equal(body, got[0].body), "size %d", n)
	}
}

func TestRoundTripRobotToClientEncrypted(t *testing.T) {
	m, err := GenerateKeyMaterial()
	require.NoError(t, err)
	var send, recv EncryptState
	require.NoError(t, send.Install(m))
	require.NoError(t, recv.Install(m))

	r := rand.New(rand.NewPCG(3, 4))
	b := NewPacketBuilder(PacketTypeClient, nil, 0)
	for i := 0; i < 200; i++ {
		body := randBody(r, int(r.UintN(0xffff-CmdLen-TagLen)))
		wire := encodeFrame(t, PacketTypeRobot, &send, uint16(i), body)
		if len(body) >= 16 {
			assert.False(t, bytes.Contains(wire, body), "body sent in clear")
		}
		got := decodeAll(t, b, &recv, wire)
		require.Len(t, got, 1)
		assert.Equal(t, uint16(i), got[0].cmd)
		assert.True(t, bytes.Equal(body, got[0].body))
	}
}

func TestRoundTripClientToRobotPlain(t *testing.T) {
	var installed EncryptState
	m, _ := GenerateKeyMaterial()
	require.NoError(t, installed.Install(m))

	// Client outbound stays plain even with a key
	wire := encodeFrame(t, PacketTypeClient, &installed, 1102, []byte("token"))
	got := decodeAll(t, NewPacketBuilder(PacketTypeRobot, nil, 0), nil, wire)
	require.Len(t, got, 1)
	assert.Equal(t, frame{cmd: 1102, body: []byte("token")}, got[0])
}

func TestRobotFrameTooLarge(t *testing.T) {
	pkt := Take(0x10000)
	defer pkt.Release()
	pkt.Append(make([]byte, 0x10000))
	err := Encode(pkt, PacketTypeRobot, nil)
	assert.ErrorIs(t, err, ErrInvalidFrame)
	assert.Equal(t, 0x10000, pkt.ReadableBytes(), "packet untouched on error")
}

func TestBuilderChunkingIndependence(t *testing.T) {
	r := rand.New(rand.NewPCG(5, 6))
	var stream []byte
	var want []frame
	for i := 0; i < 8; i++ {
		body := randBody(r, int(r.UintN(40)))
		want = append(want, frame{cmd: uint16(i + 1), body: body})
		stream = append(stream, encodeFrame(t, PacketTypeServer, nil, uint16(i+1), body)...)
	}

	whole := decodeAll(t, NewPacketBuilder(PacketTypeServer, nil, 0), nil, stream)
	require.Len(t, whole, len(want))
	for i := range want {
		assert.Equal(t, want[i].cmd, whole[i].cmd)
		assert.True(t, bytes.Equal(want[i].body, whole[i].body))
	}

	// one byte at a time
	var bytewise [][]byte
	for i := range stream {
		bytewise = append(bytewise, stream[i:i+1])
	}
	assert.Equal(t, whole, decodeAll(t, NewPacketBuilder(PacketTypeServer, nil, 0), nil, bytewise...))

	// every two-chunk split
	for cut := 0; cut <= len(stream); cut++ {
		got := decodeAll(t, NewPacketBuilder(PacketTypeServer, nil, 0), nil, stream[:cut], stream[cut:])
		require.Equal(t, whole, got, "cut at %d", cut)
	}
}

func TestBuilderInvalidFrame(t *testing.T) {
	b := NewPacketBuilder(PacketTypeServer, nil, 1024)
	err := b.Build([]byte{0, 0, 0x10, 0, 0, 1}, func(*Packet) { t.Fatal("emitted") })
	assert.True(t, errors.Is(err, ErrInvalidFrame))

	b = NewPacketBuilder(PacketTypeClient, nil, 0)
	err = b.Build([]byte{0, 1, 0}, func(*Packet) { t.Fatal("emitted") })
	assert.ErrorIs(t, err, ErrInvalidFrame)
}

func TestBuilderSuspend(t *testing.T) {
	b := NewPacketBuilder(PacketTypeServer, nil, 0)
	wire := encodeFrame(t, PacketTypeServer, nil, 3, []byte("abc"))
	n := 0
	require.NoError(t, b.Build(wire[:5], func(*Packet) { n++ }))
	assert.Equal(t, 0, n)
	assert.Equal(t, 5, b.Buffered())
	require.NoError(t, b.Build(wire[5:], func(p *Packet) { n++; p.Release() }))
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, b.Buffered())
}

func TestBuilderRedisPassThrough(t *testing.T) {
	b := NewPacketBuilder(PacketTypeRedis, nil, 0)
	var got []byte
	for _, chunk := range [][]byte{[]byte("+OK\r"), nil, []byte("\n:1\r\n")} {
		require.NoError(t, b.Build(chunk, func(p *Packet) {
			defer p.Release()
			assert.Equal(t, uint16(0), p.Cmd())
			got = append(got, p.Body()...)
		}))
	}
	assert.Equal(t, "+OK\r\n:1\r\n", string(got))
	assert.Equal(t, 0, b.Buffered())
}
