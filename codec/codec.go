// Package codec serialises the protobuf bodies sent through NetProxy.SendProto.
package codec

import (
	"errors"

	"google.golang.org/protobuf/proto"
)

var (
	errCodecNotInit = errors.New("codec not init")

	_codec Codec = &ProtoCodec{}
)

// Codec 消息体编解码器.
type Codec interface {
	Encode(m proto.Message, b []byte) ([]byte, error)
	Decode(m proto.Message, b []byte) error
}

// Encode appends the encoding of m to b.
func Encode(m proto.Message, b []byte) ([]byte, error) {
	if _codec == nil {
		return nil, errCodecNotInit
	}
	return _codec.Encode(m, b)
}

// Decode 解包.
func Decode(m proto.Message, b []byte) error {
	if _codec == nil {
		return errCodecNotInit
	}
	return _codec.Decode(m, b)
}

// SetCodec 设置解码器.
func SetCodec(c Codec) {
	_codec = c
}

// ProtoCodec is the binary protobuf codec.
type ProtoCodec struct{}

// Encode ...
func (c *ProtoCodec) Encode(m proto.Message, b []byte) ([]byte, error) {
	return proto.MarshalOptions{}.MarshalAppend(b, m)
}

// Decode ...
func (c *ProtoCodec) Decode(m proto.Message, b []byte) error {
	return proto.Unmarshal(b, m)
}
