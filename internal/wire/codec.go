package wire

import (
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-msgpack/v2/codec"
)

// SubprotocolMsgpack selects MsgpackCodec during the websocket handshake.
// Connections without it speak JSON.
const SubprotocolMsgpack = "duel.msgpack"

// Subprotocols are offered by the upgrader in preference order.
var Subprotocols = []string{SubprotocolMsgpack}

// Codec turns messages into websocket frames and back.
type Codec interface {
	Name() string
	FrameType() int // websocket.TextMessage or websocket.BinaryMessage
	Encode(m *Message) ([]byte, error)
	Decode(data []byte, m *Message) error
}

// JSONCodec sends text frames.
type JSONCodec struct{}

func (JSONCodec) Name() string   { return "json" }
func (JSONCodec) FrameType() int { return websocket.TextMessage }

func (JSONCodec) Encode(m *Message) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Type, err)
	}
	return b, nil
}

func (JSONCodec) Decode(data []byte, m *Message) error {
	if err := json.Unmarshal(data, m); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

// MsgpackCodec sends binary frames. Field names follow the json tags.
type MsgpackCodec struct {
	h *codec.MsgpackHandle
}

// NewMsgpackCodec creates a codec that writes the str8 and bin msgpack types.
func NewMsgpackCodec() *MsgpackCodec {
	h := &codec.MsgpackHandle{}
	h.WriteExt = true
	return &MsgpackCodec{h: h}
}

func (c *MsgpackCodec) Name() string   { return "msgpack" }
func (c *MsgpackCodec) FrameType() int { return websocket.BinaryMessage }

func (c *MsgpackCodec) Encode(m *Message) ([]byte, error) {
	var b []byte
	if err := codec.NewEncoderBytes(&b, c.h).Encode(m); err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Type, err)
	}
	return b, nil
}

func (c *MsgpackCodec) Decode(data []byte, m *Message) error {
	if err := codec.NewDecoderBytes(data, c.h).Decode(m); err != nil {
		return fmt.Errorf("decode msgpack: %w", err)
	}
	return nil
}

// Negotiate picks the codec for an accepted subprotocol.
func Negotiate(subprotocol string) Codec {
	if subprotocol == SubprotocolMsgpack {
		return NewMsgpackCodec()
	}
	return JSONCodec{}
}
