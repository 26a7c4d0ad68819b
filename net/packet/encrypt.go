package packet

import (
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/blowfish"
)

const (
	// EncryptKeyLen is the number of random key bytes of a connection.
	EncryptKeyLen = 16
	// EncryptExpandLen is the in-band expansion appended to the key.
	EncryptExpandLen = CmdLen + TagLen
	// KeyMaterialLen is the length of the key material and of the token.
	KeyMaterialLen = EncryptKeyLen + EncryptExpandLen
)

// EncryptState is the keystream state of one direction of a connection.
// The zero value is not installed and leaves frames untouched.
type EncryptState struct {
	material  [KeyMaterialLen]byte
	k         int
	nonce     uint64
	installed bool
}

// GenerateKeyMaterial returns fresh key material: EncryptKeyLen random bytes
// followed by their first EncryptExpandLen bytes.
func GenerateKeyMaterial() ([]byte, error) {
	m := make([]byte, KeyMaterialLen)
	if _, err := rand.Read(m[:EncryptKeyLen]); err != nil {
		return nil, fmt.Errorf("generate key failed: %w", err)
	}
	copy(m[EncryptKeyLen:], m[:EncryptExpandLen])
	return m, nil
}

// Install sets the key material and rewinds key index and nonce.
func (s *EncryptState) Install(material []byte) error {
	if len(material) != KeyMaterialLen {
		return fmt.Errorf("key material is %d bytes, want %d", len(material), KeyMaterialLen)
	}
	copy(s.material[:], material)
	s.k = 0
	s.nonce = 0
	s.installed = true
	return nil
}

// Installed reports whether a key is set.
func (s *EncryptState) Installed() bool {
	return s != nil && s.installed
}

// xor applies the keystream of the current frame to p.
func (s *EncryptState) xor(p []byte) {
	for i := range p {
		p[i] ^= s.material[(s.k+i)%KeyMaterialLen] ^ byte(s.nonce>>(8*(i%8)))
	}
}

func (s *EncryptState) tag(cmd uint16, plain []byte) [TagLen]byte {
	var hdr [10]byte
	binary.BigEndian.PutUint64(hdr[:8], s.nonce)
	binary.BigEndian.PutUint16(hdr[8:], cmd)

	d := xxhash.New()
	_, _ = d.Write(s.material[:])
	_, _ = d.Write(hdr[:])
	_, _ = d.Write(plain)

	var sum [8]byte
	binary.BigEndian.PutUint64(sum[:], d.Sum64())
	var t [TagLen]byte
	copy(t[:], sum[:TagLen])
	return t
}

func (s *EncryptState) rotate() {
	s.k = (s.k + 1) % EncryptKeyLen
	s.nonce++
}

// Encrypt prefixes the body of pkt with its check tag and applies the
// keystream to tag and body. The state rotates.
func Encrypt(pkt *Packet, s *EncryptState) {
	t := s.tag(pkt.cmd, pkt.Peek())
	pkt.Prepend(t[:])
	s.xor(pkt.Peek())
	s.rotate()
}

// Decrypt reverses Encrypt. A short body or a tag mismatch yields
// ErrInvalidFrame and leaves the state unchanged.
func Decrypt(pkt *Packet, s *EncryptState) error {
	if pkt.ReadableBytes() < TagLen {
		return fmt.Errorf("%w: encrypted body of %d bytes", ErrInvalidFrame, pkt.ReadableBytes())
	}
	b := pkt.Peek()
	s.xor(b)
	want := s.tag(pkt.cmd, b[TagLen:])
	if !bytes.Equal(want[:], b[:TagLen]) {
		return fmt.Errorf("%w: check tag mismatch cmd=%d", ErrInvalidFrame, pkt.cmd)
	}
	pkt.Advance(TagLen)
	s.rotate()
	return nil
}

func blowfishCFB(psk []byte) (cipher.Block, []byte, error) {
	block, err := blowfish.NewCipher(psk)
	if err != nil {
		return nil, nil, fmt.Errorf("blowfish key: %w", err)
	}
	return block, make([]byte, blowfish.BlockSize), nil
}

// WrapKey encrypts key material under psk with Blowfish-CFB64 and a zero IV.
func WrapKey(psk, material []byte) ([]byte, error) {
	block, iv, err := blowfishCFB(psk)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(material))
	cipher.NewCFBEncrypter(block, iv).XORKeyStream(out, material)
	return out, nil
}

// UnwrapKey reverses WrapKey.
func UnwrapKey(psk, token []byte) ([]byte, error) {
	if len(token) != KeyMaterialLen {
		return nil, fmt.Errorf("encrypt token is %d bytes, want %d", len(token), KeyMaterialLen)
	}
	block, iv, err := blowfishCFB(psk)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(token))
	cipher.NewCFBDecrypter(block, iv).XORKeyStream(out, token)
	return out, nil
}
