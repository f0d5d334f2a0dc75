package core

import (
	"context"
	"errors"

	"github.com/dkeye/parley/internal/domain"
)

var (
	ErrPermissionDenied = errors.New("media permission denied")
	ErrMediaUnavailable = errors.New("media device unavailable")
)

type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// LocalTrack is one hardware-backed capture track. Enabled is a track-level
// mute flag; flipping it never renegotiates the call.
type LocalTrack interface {
	ID() string
	Kind() TrackKind
	Enabled() bool
	SetEnabled(bool)
	// Stop releases exclusive hardware access. Idempotent.
	Stop()
	Stopped() bool
}

type LocalStream interface {
	ID() string
	Tracks() []LocalTrack
}

// MediaCapture acquires and releases camera and microphone streams.
type MediaCapture interface {
	// Acquire opens the microphone and, for video mode, the camera. Failures
	// wrap ErrPermissionDenied or ErrMediaUnavailable.
	Acquire(ctx context.Context, mode domain.CallMode) (LocalStream, error)
	// ToggleAudio flips the audio tracks and returns the new enabled state.
	ToggleAudio(s LocalStream) bool
	// ToggleVideo flips the video tracks and returns the new enabled state.
	ToggleVideo(s LocalStream) bool
	Release(s LocalStream)
}
