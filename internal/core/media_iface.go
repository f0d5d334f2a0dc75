package core

import (
	"github.com/dkeye/parley/internal/domain"
)

type PeerEventKind int

const (
	// PeerCandidate carries a locally gathered ICE candidate.
	PeerCandidate PeerEventKind = iota
	// PeerRemoteTrack carries a track the remote side started sending.
	PeerRemoteTrack
	// PeerFailed means the transport gave up; the call cannot recover.
	PeerFailed
)

// PeerEvent is one item of a peer connection's event stream. Only the field
// matching Kind is set.
type PeerEvent struct {
	Kind      PeerEventKind
	Candidate domain.Candidate
	Track     RemoteTrack
	State     string
}

// RemoteTrack is a receiving media track owned by the call controller.
type RemoteTrack interface {
	ID() string
	Kind() TrackKind
	// Stop releases the receiver side of the track.
	Stop()
}

// PeerConnection is the single negotiated link of a call.
type PeerConnection interface {
	// AddLocalStream attaches every track of s for sending.
	AddLocalStream(s LocalStream) error
	// CreateOffer creates and applies a local offer; returns its SDP.
	CreateOffer() (string, error)
	// ApplyOffer applies a remote offer and returns the local answer SDP.
	ApplyOffer(sdp string) (string, error)
	// ApplyAnswer applies the remote answer.
	ApplyAnswer(sdp string) error
	AddICECandidate(domain.Candidate) error
	// Events streams candidates, remote tracks and failures until Done.
	Events() <-chan PeerEvent
	Done() <-chan struct{}
	// Close should stop all underlying media resources.
	Close() error
}

// PeerFactory creates one fresh PeerConnection per call.
type PeerFactory interface {
	NewPeerConnection() (PeerConnection, error)
}
