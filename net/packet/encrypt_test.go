package packet

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _testPSK = []byte{0xde, 0xad, 0xbe, 0xef, 0xde, 0xad, 0xbe, 0xef}

func TestWrapUnwrapKey(t *testing.T) {
	m, err := GenerateKeyMaterial()
	require.NoError(t, err)
	require.Len(t, m, KeyMaterialLen)
	assert.Equal(t, m[:EncryptExpandLen], m[EncryptKeyLen:])

	token, err := WrapKey(_testPSK, m)
	require.NoError(t, err)
	assert.False(t, bytes.Equal(m, token))

	back, err := UnwrapKey(_testPSK, token)
	require.NoError(t, err)
	assert.Equal(t, m, back)

	_, err = UnwrapKey(_testPSK, token[:10])
	assert.Error(t, err)
	_, err = WrapKey(nil, m)
	assert.Error(t, err)
}

func TestWrapKeyIsDeterministic(t *testing.T) {
	m := bytes.Repeat([]byte{0x42}, KeyMaterialLen)
	a, err := WrapKey(_testPSK, m)
	require.NoError(t, err)
	b, err := WrapKey(_testPSK, m)
	require.NoError(t, err)
	assert.Equal(t, a, b, "zero IV")
}

func encryptBody(t *testing.T, st *EncryptState, cmd uint16, body []byte) *Packet {
	t.Helper()
	pkt := Take(len(body))
	pkt.SetCmd(cmd)
	pkt.Append(body)
	Encrypt(pkt, st)
	return pkt
}

func TestEncryptRotates(t *testing.T) {
	m, _ := GenerateKeyMaterial()
	var st EncryptState
	require.NoError(t, st.Install(m))

	a := encryptBody(t, &st, 1, []byte("same body"))
	b := encryptBody(t, &st, 1, []byte("same body"))
	defer a.Release()
	defer b.Release()
	assert.NotEqual(t, a.Body(), b.Body())
	assert.Equal(t, 2, st.k)
	assert.Equal(t, uint64(2), st.nonce)
}

func TestDecryptWithCorruptedToken(t *testing.T) {
	m, _ := GenerateKeyMaterial()
	token, err := WrapKey(_testPSK, m)
	require.NoError(t, err)

	token[3] ^= 0x01
	bad, err := UnwrapKey(_testPSK, token)
	require.NoError(t, err)

	var send, recv EncryptState
	require.NoError(t, send.Install(bad))
	require.NoError(t, recv.Install(m))

	pkt := encryptBody(t, &send, 1, []byte("hi"))
	defer pkt.Release()
	assert.ErrorIs(t, Decrypt(pkt, &recv), ErrInvalidFrame)
	assert.Equal(t, uint64(0), recv.nonce, "state untouched on failure")
}

func TestDecryptShortBody(t *testing.T) {
	var st EncryptState
	m, _ := GenerateKeyMaterial()
	require.NoError(t, st.Install(m))

	pkt := Take(2)
	defer pkt.Release()
	pkt.Append([]byte{1, 2})
	assert.ErrorIs(t, Decrypt(pkt, &st), ErrInvalidFrame)
}

func TestInstallRejectsBadLength(t *testing.T) {
	var st EncryptState
	assert.Error(t, st.Install(make([]byte, 5)))
	assert.False(t, st.Installed())
	var nilState *EncryptState
	assert.False(t, nilState.Installed())
}
