package wire

import "encoding/json"

// Message is the envelope for every frame exchanged between a participant
// and the relay, in both directions.
type Message struct {
	Type    string          `json:"type" msgpack:"type"`
	RoomID  string          `json:"room_id,omitempty" msgpack:"room_id,omitempty"`
	From    string          `json:"from,omitempty" msgpack:"from,omitempty"`
	To      string          `json:"to,omitempty" msgpack:"to,omitempty"`
	UserID  string          `json:"user_id,omitempty" msgpack:"user_id,omitempty"`
	Users   []string        `json:"users,omitempty" msgpack:"users,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty" msgpack:"payload,omitempty"`
}

// Message type constants.
const (
	TypeJoinRoom  = "join-room"
	TypeLeaveRoom = "leave-room"

	TypeWelcome       = "welcome"
	TypeExistingUsers = "existing-users"
	TypeUserJoined    = "user-joined"
	TypeUserLeft      = "user-left"
	TypeError         = "error"

	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"
)

// IsRelayed reports whether messages of type t are forwarded verbatim to
// another participant instead of being handled by the relay.
func IsRelayed(t string) bool {
	switch t {
	case TypeOffer, TypeAnswer, TypeICECandidate:
		return true
	}
	return false
}

// ErrorPayload is the payload of an error message.
type ErrorPayload struct {
	Error string `json:"error"`
}

// NewError builds an error message carrying text.
func NewError(text string) *Message {
	payload, _ := json.Marshal(ErrorPayload{Error: text})
	return &Message{Type: TypeError, Payload: payload}
}
