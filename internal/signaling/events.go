package signaling

import (
	"encoding/json"

	"github.com/BioHazard786/Warpcall/internal/wire"
	"github.com/pion/webrtc/v4"
)

// Event is anything the relay tells this participant. The concrete types
// below are the complete set.
type Event interface {
	isEvent()
}

// Connected is emitted after every successful (re)connection.
type Connected struct {
	LocalID     string
	Reconnected bool
}

// Disconnected is emitted when the relay link drops. Reconnection may follow.
type Disconnected struct {
	Err error
}

// ExistingUsers lists the members already present when we joined RoomID.
type ExistingUsers struct {
	RoomID string
	IDs    []string
}

// UserJoined announces a participant that joined after us.
type UserJoined struct {
	ID string
}

// UserLeft announces a departed participant.
type UserLeft struct {
	ID string
}

// Offer carries a remote SDP offer.
type Offer struct {
	From        string
	Description webrtc.SessionDescription
}

// Answer carries a remote SDP answer.
type Answer struct {
	From        string
	Description webrtc.SessionDescription
}

// ICECandidate carries one trickled remote candidate.
type ICECandidate struct {
	From      string
	Candidate webrtc.ICECandidateInit
}

// RelayError is an error reported by the relay.
type RelayError struct {
	Message string
}

func (Connected) isEvent()     {}
func (Disconnected) isEvent()  {}
func (ExistingUsers) isEvent() {}
func (UserJoined) isEvent()    {}
func (UserLeft) isEvent()      {}
func (Offer) isEvent()         {}
func (Answer) isEvent()        {}
func (ICECandidate) isEvent()  {}
func (RelayError) isEvent()    {}

// decode turns a relay frame into an Event. The caller drops frames that
// fail to decode.
func decode(msg *wire.Message) (Event, error) {
	switch msg.Type {
	case wire.TypeExistingUsers:
		return ExistingUsers{RoomID: msg.RoomID, IDs: msg.Users}, nil

	case wire.TypeUserJoined:
		return UserJoined{ID: msg.UserID}, nil

	case wire.TypeUserLeft:
		return UserLeft{ID: msg.UserID}, nil

	case wire.TypeOffer, wire.TypeAnswer:
		var desc webrtc.SessionDescription
		if err := json.Unmarshal(msg.Payload, &desc); err != nil {
			return nil, NewError("decode "+msg.Type, err)
		}
		if msg.Type == wire.TypeOffer {
			return Offer{From: msg.From, Description: desc}, nil
		}
		return Answer{From: msg.From, Description: desc}, nil

	case wire.TypeICECandidate:
		var candidate webrtc.ICECandidateInit
		if err := json.Unmarshal(msg.Payload, &candidate); err != nil {
			return nil, NewError("decode ice-candidate", err)
		}
		return ICECandidate{From: msg.From, Candidate: candidate}, nil

	case wire.TypeError:
		var p wire.ErrorPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return RelayError{Message: "unknown error from relay"}, nil
		}
		return RelayError{Message: p.Error}, nil
	}

	return nil, WrapError("decode", ErrUnknownMessage, msg.Type)
}
