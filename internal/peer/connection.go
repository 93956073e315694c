package peer

import "github.com/pion/webrtc/v4"

// Connection is the WebRTC primitive a Session drives. CreateOffer and
// CreateAnswer also apply the result as the local description.
type Connection interface {
	AddTrack(track webrtc.TrackLocal) error
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	CreateDataChannel(label string, init *webrtc.DataChannelInit) (DataChannel, error)

	// OnTrack fires with each inbound track and the tracks that share its
	// stream.
	OnTrack(fn func(track RemoteTrack, grouped []RemoteTrack))
	OnICECandidate(fn func(candidate webrtc.ICECandidateInit))
	OnDataChannel(fn func(dc DataChannel))
	OnConnectionStateChange(fn func(state webrtc.PeerConnectionState))

	Close() error
}

// DataChannel is satisfied by *webrtc.DataChannel.
type DataChannel interface {
	Label() string
	ReadyState() webrtc.DataChannelState
	BufferedAmount() uint64
	Send(data []byte) error
	SendText(text string) error
	OnOpen(fn func())
	OnClose(fn func())
	OnMessage(fn func(msg webrtc.DataChannelMessage))
	Close() error
}

// RemoteTrack is satisfied by *webrtc.TrackRemote.
type RemoteTrack interface {
	ID() string
	StreamID() string
	Kind() webrtc.RTPCodecType
}

// Signaler delivers negotiation messages to one remote participant.
type Signaler interface {
	SendOffer(to string, desc webrtc.SessionDescription) error
	SendAnswer(to string, desc webrtc.SessionDescription) error
	SendICECandidate(to string, candidate webrtc.ICECandidateInit) error
}
