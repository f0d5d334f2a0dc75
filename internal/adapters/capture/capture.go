// Package capture owns camera and microphone access for calls.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/parley/internal/core"
	"github.com/dkeye/parley/internal/domain"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DeviceTrack is a raw hardware track produced by a Source.
type DeviceTrack interface {
	ID() string
	Kind() core.TrackKind
	Close() error
}

// Source opens hardware. The microphone is always requested; the camera only
// when video is true.
type Source interface {
	Open(ctx context.Context, video bool) ([]DeviceTrack, error)
}

// Track is the core.LocalTrack handed to the call layer.
type Track struct {
	dev     DeviceTrack
	enabled atomic.Bool
	stopped atomic.Bool

	mu    sync.Mutex
	hooks []func(bool)
}

func NewTrack(dev DeviceTrack) *Track {
	t := &Track{dev: dev}
	t.enabled.Store(true)
	return t
}

func (t *Track) ID() string           { return t.dev.ID() }
func (t *Track) Kind() core.TrackKind { return t.dev.Kind() }
func (t *Track) Enabled() bool        { return t.enabled.Load() }
func (t *Track) Stopped() bool        { return t.stopped.Load() }

// SetEnabled flips the mute flag and notifies hooks on change only.
func (t *Track) SetEnabled(v bool) {
	if !t.enabled.CompareAndSwap(!v, v) {
		return
	}
	t.mu.Lock()
	hooks := append([]func(bool){}, t.hooks...)
	t.mu.Unlock()
	for _, fn := range hooks {
		fn(v)
	}
}

// OnEnabledChange registers fn to run after every enabled flip. The rtc
// adapter uses it to pause sending without renegotiation.
func (t *Track) OnEnabledChange(fn func(bool)) {
	t.mu.Lock()
	t.hooks = append(t.hooks, fn)
	t.mu.Unlock()
}

// TrackLocal exposes the sendable pion track when the device provides one.
func (t *Track) TrackLocal() webrtc.TrackLocal {
	if tl, ok := t.dev.(interface{ TrackLocal() webrtc.TrackLocal }); ok {
		return tl.TrackLocal()
	}
	return nil
}

func (t *Track) Stop() {
	if !t.stopped.CompareAndSwap(false, true) {
		return
	}
	if err := t.dev.Close(); err != nil {
		log.Warn().Err(err).Str("module", "capture").Str("track", t.dev.ID()).Msg("close track failed")
	}
}

type stream struct {
	id     string
	tracks []core.LocalTrack
}

func (s *stream) ID() string                { return s.id }
func (s *stream) Tracks() []core.LocalTrack { return s.tracks }

// Manager implements core.MediaCapture on top of a Source.
type Manager struct {
	src Source
	log zerolog.Logger
}

var _ core.MediaCapture = (*Manager)(nil)

func NewManager(src Source) *Manager {
	return &Manager{src: src, log: log.With().Str("module", "capture").Logger()}
}

func (m *Manager) Acquire(ctx context.Context, mode domain.CallMode) (core.LocalStream, error) {
	mode = mode.OrAudio()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	devs, err := m.src.Open(ctx, mode.WantsVideo())
	if err != nil {
		if !errors.Is(err, core.ErrPermissionDenied) && !errors.Is(err, core.ErrMediaUnavailable) &&
			!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", core.ErrMediaUnavailable, err)
		}
		m.log.Error().Err(err).Str("mode", string(mode)).Msg("acquire failed")
		return nil, err
	}

	s := &stream{id: uuid.NewString()}
	var hasAudio, hasVideo bool
	for _, d := range devs {
		switch d.Kind() {
		case core.TrackAudio:
			hasAudio = true
		case core.TrackVideo:
			hasVideo = true
		}
		s.tracks = append(s.tracks, NewTrack(d))
	}
	if !hasAudio || (mode.WantsVideo() && !hasVideo) {
		m.Release(s)
		err := fmt.Errorf("%w: %s capture returned incomplete tracks", core.ErrMediaUnavailable, mode)
		m.log.Error().Err(err).Msg("acquire failed")
		return nil, err
	}

	m.log.Info().Str("stream", s.id).Str("mode", string(mode)).Int("tracks", len(s.tracks)).Msg("media acquired")
	return s, nil
}

func (m *Manager) ToggleAudio(s core.LocalStream) bool { return toggle(s, core.TrackAudio) }
func (m *Manager) ToggleVideo(s core.LocalStream) bool { return toggle(s, core.TrackVideo) }

// toggle inverts the enabled flag of every track of kind, using the first
// track's state as the reference. Returns false when there is no such track.
func toggle(s core.LocalStream, kind core.TrackKind) bool {
	if s == nil {
		return false
	}
	var (
		found bool
		next  bool
	)
	for _, t := range s.Tracks() {
		if t.Kind() != kind {
			continue
		}
		if !found {
			found = true
			next = !t.Enabled()
		}
		t.SetEnabled(next)
	}
	return found && next
}

// Release stops every track of s. Safe to call more than once.
func (m *Manager) Release(s core.LocalStream) {
	if s == nil {
		return
	}
	for _, t := range s.Tracks() {
		t.Stop()
	}
	m.log.Debug().Str("stream", s.ID()).Msg("media released")
}
