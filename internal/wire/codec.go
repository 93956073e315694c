package wire

import (
	"encoding/json"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// Subprotocol names advertised during the WebSocket handshake.
const (
	SubprotocolJSON    = "warpcall.json"
	SubprotocolMsgPack = "warpcall.msgpack"
)

// Codec encodes envelopes into WebSocket frames.
type Codec interface {
	Subprotocol() string
	FrameType() int
	Marshal(msg *Message) ([]byte, error)
	Unmarshal(data []byte, msg *Message) error
}

var (
	JSON    Codec = jsonCodec{}
	MsgPack Codec = msgpackCodec{}
)

// Subprotocols lists every codec the relay accepts, preferred first.
var Subprotocols = []string{SubprotocolJSON, SubprotocolMsgPack}

// ForSubprotocol returns the codec negotiated for name. Clients that did
// not negotiate a subprotocol speak JSON.
func ForSubprotocol(name string) Codec {
	if name == SubprotocolMsgPack {
		return MsgPack
	}
	return JSON
}

// ByName resolves a short codec name ("json" or "msgpack").
func ByName(name string) (Codec, bool) {
	switch name {
	case "", "json":
		return JSON, true
	case "msgpack":
		return MsgPack, true
	}
	return nil, false
}

type jsonCodec struct{}

func (jsonCodec) Subprotocol() string { return SubprotocolJSON }
func (jsonCodec) FrameType() int      { return websocket.TextMessage }

func (jsonCodec) Marshal(msg *Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte, msg *Message) error {
	return json.Unmarshal(data, msg)
}

type msgpackCodec struct{}

func (msgpackCodec) Subprotocol() string { return SubprotocolMsgPack }
func (msgpackCodec) FrameType() int      { return websocket.BinaryMessage }

func (msgpackCodec) Marshal(msg *Message) ([]byte, error) {
	return msgpack.Marshal(msg)
}

func (msgpackCodec) Unmarshal(data []byte, msg *Message) error {
	return msgpack.Unmarshal(data, msg)
}
