package domain

type SignalType string

const (
	SignalOffer     SignalType = "offer"
	SignalAnswer    SignalType = "answer"
	SignalCandidate SignalType = "candidate"
	SignalHangup    SignalType = "hangup"
)

// Candidate mirrors the browser RTCIceCandidateInit shape so payloads stay
// interoperable with web peers.
type Candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// SignalPayload is what peers exchange through a room. From is stamped by the
// transport and is not part of negotiation.
type SignalPayload struct {
	Type      SignalType `json:"type"`
	SDP       string     `json:"sdp,omitempty"`
	Candidate *Candidate `json:"candidate,omitempty"`
	Mode      CallMode   `json:"mode,omitempty"`
	From      UserID     `json:"from,omitempty"`
}

// SignalingMessage is one server-assigned entry of a room log. IDs strictly
// increase within a room.
type SignalingMessage struct {
	ID      int64         `json:"id"`
	Room    RoomName      `json:"-"`
	Payload SignalPayload `json:"payload"`
}
