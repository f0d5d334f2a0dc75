package rtc

import (
	"testing"
	"time"

	"github.com/dkeye/parley/internal/core"
	"github.com/dkeye/parley/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTrack struct {
	tl      webrtc.TrackLocal
	enabled bool
	hooks   []func(bool)
}

func (t *fakeTrack) ID() string { return "t" }
func (t *fakeTrack) Kind() core.TrackKind {
	if t.tl != nil && t.tl.Kind() == webrtc.RTPCodecTypeVideo {
		return core.TrackVideo
	}
	return core.TrackAudio
}
func (t *fakeTrack) Enabled() bool { return t.enabled }
func (t *fakeTrack) SetEnabled(v bool) {
	t.enabled = v
	for _, fn := range t.hooks {
		fn(v)
	}
}
func (t *fakeTrack) Stop()                         {}
func (t *fakeTrack) Stopped() bool                 { return false }
func (t *fakeTrack) TrackLocal() webrtc.TrackLocal { return t.tl }
func (t *fakeTrack) OnEnabledChange(fn func(bool)) { t.hooks = append(t.hooks, fn) }

type fakeStream struct{ tracks []core.LocalTrack }

func (s fakeStream) ID() string                { return "s" }
func (s fakeStream) Tracks() []core.LocalTrack { return s.tracks }

func newPair(t *testing.T) (*Connection, *Connection) {
	t.Helper()
	f, err := NewFactory(nil)
	require.NoError(t, err)
	a, err := f.NewPeerConnection()
	require.NoError(t, err)
	b, err := f.NewPeerConnection()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return a.(*Connection), b.(*Connection)
}

func TestOfferAnswer(t *testing.T) {
	a, b := newPair(t)

	video, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "parley")
	require.NoError(t, err)
	require.NoError(t, a.AddLocalStream(fakeStream{tracks: []core.LocalTrack{&fakeTrack{tl: video, enabled: true}}}))

	offer, err := a.CreateOffer()
	require.NoError(t, err)
	assert.Contains(t, offer, "m=video")
	assert.Contains(t, offer, "m=audio", "recvonly audio is always offered")

	answer, err := b.ApplyOffer(offer)
	require.NoError(t, err)
	assert.Contains(t, answer, "m=video")

	require.NoError(t, a.ApplyAnswer(answer))
	assert.Equal(t, webrtc.SignalingStateStable, a.pc.SignalingState())
	assert.Equal(t, webrtc.SignalingStateStable, b.pc.SignalingState())
}

func TestMuteReplacesTrack(t *testing.T) {
	a, _ := newPair(t)

	audio, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "parley")
	require.NoError(t, err)
	tr := &fakeTrack{tl: audio, enabled: true}
	require.NoError(t, a.AddLocalStream(fakeStream{tracks: []core.LocalTrack{tr}}))

	senders := a.pc.GetSenders()
	require.Len(t, senders, 1)

	tr.SetEnabled(false)
	assert.Nil(t, senders[0].Track())
	tr.SetEnabled(true)
	assert.Equal(t, audio, senders[0].Track())
}

func TestAddLocalStream_SkipsTracksWithoutMedia(t *testing.T) {
	a, _ := newPair(t)
	require.NoError(t, a.AddLocalStream(fakeStream{tracks: []core.LocalTrack{&fakeTrack{enabled: true}}}))
	assert.Empty(t, a.pc.GetSenders())
}

func TestAddICECandidate(t *testing.T) {
	a, b := newPair(t)

	offer, err := a.CreateOffer()
	require.NoError(t, err)
	_, err = b.ApplyOffer(offer)
	require.NoError(t, err)

	mid := "0"
	var idx uint16
	err = b.AddICECandidate(domain.Candidate{
		Candidate:     "candidate:1 1 udp 2130706431 192.0.2.1 50000 typ host",
		SDPMid:        &mid,
		SDPMLineIndex: &idx,
	})
	assert.NoError(t, err)

	assert.Error(t, b.AddICECandidate(domain.Candidate{}))
}

func TestClose_Idempotent(t *testing.T) {
	a, _ := newPair(t)
	require.NoError(t, a.Close())
	assert.NoError(t, a.Close())

	select {
	case <-a.Done():
	case <-time.After(time.Second):
		t.Fatal("done not closed")
	}
	// emit after close must not block
	a.emit(core.PeerEvent{Kind: core.PeerFailed})
}

func TestCandidateConversion(t *testing.T) {
	mid, ufrag := "audio", "abcd"
	idx := uint16(1)
	c := domain.Candidate{Candidate: "candidate:x", SDPMid: &mid, SDPMLineIndex: &idx, UsernameFragment: &ufrag}
	assert.Equal(t, c, fromInit(toInit(c)))
}
