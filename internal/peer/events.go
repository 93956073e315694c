package peer

import "github.com/pion/webrtc/v4"

// Origin identifies the session incarnation an event came from.
type Origin struct {
	RemoteID string
	Epoch    uint64
}

func (o Origin) EventOrigin() Origin { return o }

// Event is emitted by a Session on its worker or data channel goroutine.
type Event interface {
	EventOrigin() Origin
}

type StateChanged struct {
	Origin
	State State
	Role  Role
}

// ConnectionStateChanged mirrors the transport's own connection state.
type ConnectionStateChanged struct {
	Origin
	State webrtc.PeerConnectionState
}

type RemoteStreamUpdated struct {
	Origin
	Stream RemoteStream
}

type DataChannelOpened struct {
	Origin
	Label string
}

type DataChannelClosed struct {
	Origin
	Label string
}

// DataMessage is one inbound data channel message, in arrival order.
type DataMessage struct {
	Origin
	Data     []byte
	IsString bool
}

type NegotiationFailed struct {
	Origin
	Err *NegotiationError
}
