package orchestrator

import (
	"github.com/BioHazard786/Warpcall/internal/peer"
	"github.com/pion/webrtc/v4"
)

// Event is what the Orchestrator reports to the application.
type Event interface {
	isEvent()
}

// Connected reports a relay link. LocalID changes on every reconnect.
type Connected struct {
	LocalID     string
	Reconnected bool
}

type Disconnected struct {
	Err error
}

type RelayError struct {
	Message string
}

// SessionStarted is sent when a new session replaces the current one.
type SessionStarted struct {
	RemoteID string
	Role     peer.Role
}

type PeerLeft struct {
	ID string
}

type StateChanged struct {
	RemoteID string
	State    peer.State
	Role     peer.Role
}

// TransportChanged mirrors the current connection's transport state, so a
// lost peer shows up even while the session still reads CONNECTED.
type TransportChanged struct {
	RemoteID string
	State    webrtc.PeerConnectionState
}

// StreamUpdated carries the aggregated remote stream. An empty stream
// means it was cleared.
type StreamUpdated struct {
	RemoteID string
	Stream   peer.RemoteStream
}

type ChannelOpened struct {
	RemoteID string
	Label    string
}

type ChannelClosed struct {
	RemoteID string
	Label    string
}

// DataReceived is one data channel message from the current remote.
type DataReceived struct {
	RemoteID string
	Data     []byte
	IsString bool
}

type NegotiationFailed struct {
	Err *peer.NegotiationError
}

func (Connected) isEvent()         {}
func (Disconnected) isEvent()      {}
func (RelayError) isEvent()        {}
func (SessionStarted) isEvent()    {}
func (PeerLeft) isEvent()          {}
func (StateChanged) isEvent()      {}
func (TransportChanged) isEvent()  {}
func (StreamUpdated) isEvent()     {}
func (ChannelOpened) isEvent()     {}
func (ChannelClosed) isEvent()     {}
func (DataReceived) isEvent()      {}
func (NegotiationFailed) isEvent() {}
