package call

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/parley/internal/core"
	"github.com/dkeye/parley/internal/domain"
)

type fakeTrack struct {
	mu      sync.Mutex
	id      string
	kind    core.TrackKind
	enabled bool
	stopped bool
}

func (t *fakeTrack) ID() string           { return t.id }
func (t *fakeTrack) Kind() core.TrackKind { return t.kind }

func (t *fakeTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *fakeTrack) SetEnabled(v bool) {
	t.mu.Lock()
	t.enabled = v
	t.mu.Unlock()
}

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *fakeTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type fakeStream struct {
	id     string
	mode   domain.CallMode
	tracks []core.LocalTrack
}

func (s *fakeStream) ID() string                { return s.id }
func (s *fakeStream) Tracks() []core.LocalTrack { return s.tracks }

func (s *fakeStream) allStopped() bool {
	for _, t := range s.tracks {
		if !t.Stopped() {
			return false
		}
	}
	return true
}

type fakeCapture struct {
	mu       sync.Mutex
	err      error
	block    chan struct{}
	streams  []*fakeStream
	released int
}

func (c *fakeCapture) Acquire(ctx context.Context, mode domain.CallMode) (core.LocalStream, error) {
	c.mu.Lock()
	block, err := c.block, c.err
	c.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	s := &fakeStream{id: fmt.Sprintf("s%d", len(c.streams)+1), mode: mode}
	s.tracks = append(s.tracks, &fakeTrack{id: s.id + "-mic", kind: core.TrackAudio, enabled: true})
	if mode == domain.ModeVideo {
		s.tracks = append(s.tracks, &fakeTrack{id: s.id + "-cam", kind: core.TrackVideo, enabled: true})
	}
	c.streams = append(c.streams, s)
	return s, nil
}

func toggleKind(s core.LocalStream, kind core.TrackKind) bool {
	var next, found bool
	for _, t := range s.Tracks() {
		if t.Kind() != kind {
			continue
		}
		if !found {
			found, next = true, !t.Enabled()
		}
		t.SetEnabled(next)
	}
	return found && next
}

func (c *fakeCapture) ToggleAudio(s core.LocalStream) bool { return toggleKind(s, core.TrackAudio) }
func (c *fakeCapture) ToggleVideo(s core.LocalStream) bool { return toggleKind(s, core.TrackVideo) }

func (c *fakeCapture) Release(s core.LocalStream) {
	for _, t := range s.Tracks() {
		t.Stop()
	}
	c.mu.Lock()
	c.released++
	c.mu.Unlock()
}

func (c *fakeCapture) acquired() []*fakeStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakeStream(nil), c.streams...)
}

func (c *fakeCapture) releasedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

type fakeRemote struct {
	id      string
	mu      sync.Mutex
	stopped bool
}

func (r *fakeRemote) ID() string           { return r.id }
func (r *fakeRemote) Kind() core.TrackKind { return core.TrackVideo }
func (r *fakeRemote) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
}
func (r *fakeRemote) isStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

type fakePeer struct {
	events chan core.PeerEvent
	done   chan struct{}
	once   sync.Once

	mu          sync.Mutex
	streams     int
	offers      int
	remoteOffer string
	answers     []string
	candidates  []domain.Candidate
	offerErr    error
	answerErr   error
	applyErr    error
	hold        chan struct{}
	gatherOnSDP bool
}

func newFakePeer() *fakePeer {
	return &fakePeer{events: make(chan core.PeerEvent, 16), done: make(chan struct{})}
}

func (p *fakePeer) AddLocalStream(core.LocalStream) error {
	p.mu.Lock()
	p.streams++
	p.mu.Unlock()
	return nil
}

func (p *fakePeer) wait() {
	p.mu.Lock()
	hold := p.hold
	p.mu.Unlock()
	if hold != nil {
		<-hold
	}
}

func (p *fakePeer) gathered() {
	p.mu.Lock()
	gather := p.gatherOnSDP
	p.mu.Unlock()
	if gather {
		p.emit(core.PeerEvent{Kind: core.PeerCandidate, Candidate: domain.Candidate{Candidate: "candidate:local"}})
	}
}

func (p *fakePeer) CreateOffer() (string, error) {
	p.wait()
	p.mu.Lock()
	p.offers++
	err := p.offerErr
	p.mu.Unlock()
	if err != nil {
		return "", err
	}
	p.gathered()
	return "offer-sdp", nil
}

func (p *fakePeer) ApplyOffer(sdp string) (string, error) {
	p.wait()
	p.mu.Lock()
	p.remoteOffer = sdp
	err := p.answerErr
	p.mu.Unlock()
	if err != nil {
		return "", err
	}
	p.gathered()
	return "answer-sdp", nil
}

func (p *fakePeer) ApplyAnswer(sdp string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.applyErr != nil {
		return p.applyErr
	}
	p.answers = append(p.answers, sdp)
	return nil
}

func (p *fakePeer) AddICECandidate(c domain.Candidate) error {
	p.mu.Lock()
	p.candidates = append(p.candidates, c)
	p.mu.Unlock()
	return nil
}

func (p *fakePeer) Events() <-chan core.PeerEvent { return p.events }
func (p *fakePeer) Done() <-chan struct{}        { return p.done }

func (p *fakePeer) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

func (p *fakePeer) closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *fakePeer) emit(ev core.PeerEvent) {
	select {
	case p.events <- ev:
	case <-p.done:
	}
}

func (p *fakePeer) snapshot() (offers int, answers []string, candidates []domain.Candidate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offers, append([]string(nil), p.answers...), append([]domain.Candidate(nil), p.candidates...)
}

type fakeFactory struct {
	mu    sync.Mutex
	err   error
	setup func(*fakePeer)
	peers []*fakePeer
}

func (f *fakeFactory) NewPeerConnection() (core.PeerConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p := newFakePeer()
	if f.setup != nil {
		f.setup(p)
	}
	f.peers = append(f.peers, p)
	return p, nil
}

func (f *fakeFactory) created() []*fakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakePeer(nil), f.peers...)
}

type fakeTransport struct {
	mu     sync.Mutex
	room   domain.RoomName
	joined bool
	sent   []domain.SignalPayload
	ch     chan domain.SignalingMessage
	nextID int64
}

func newFakeTransport(room domain.RoomName) *fakeTransport {
	return &fakeTransport{room: room, joined: room != "", ch: make(chan domain.SignalingMessage, 16)}
}

func (t *fakeTransport) Room() (domain.RoomName, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.room, t.joined
}

func (t *fakeTransport) Send(_ context.Context, p domain.SignalPayload) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.joined {
		t.sent = append(t.sent, p)
	}
}

func (t *fakeTransport) Subscribe() (<-chan domain.SignalingMessage, func()) {
	return t.ch, func() {}
}

func (t *fakeTransport) deliver(p domain.SignalPayload) {
	t.mu.Lock()
	t.nextID++
	m := domain.SignalingMessage{ID: t.nextID, Room: t.room, Payload: p}
	t.mu.Unlock()
	t.ch <- m
}

func (t *fakeTransport) sentPayloads() []domain.SignalPayload {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]domain.SignalPayload(nil), t.sent...)
}

func (t *fakeTransport) sentTypes() []domain.SignalType {
	var out []domain.SignalType
	for _, p := range t.sentPayloads() {
		out = append(out, p.Type)
	}
	return out
}
