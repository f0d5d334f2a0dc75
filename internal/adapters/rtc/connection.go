package rtc

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/parley/internal/core"
	"github.com/dkeye/parley/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const eventBuffer = 64

// Factory builds peer connections sharing one configured pion API.
type Factory struct {
	api *webrtc.API
	cfg webrtc.Configuration
}

var _ core.PeerFactory = (*Factory)(nil)

func DefaultWebRTCConfig(iceServers []string) webrtc.Configuration {
	cfg := webrtc.Configuration{}
	if len(iceServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}
	return cfg
}

func NewFactory(iceServers []string) (*Factory, error) {
	me := &webrtc.MediaEngine{}
	if err := me.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(me, ir); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{}
	se.SetICETimeouts(10*time.Second, 30*time.Second, 2*time.Second)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(me),
		webrtc.WithInterceptorRegistry(ir),
		webrtc.WithSettingEngine(se),
	)
	return &Factory{api: api, cfg: DefaultWebRTCConfig(iceServers)}, nil
}

func (f *Factory) NewPeerConnection() (core.PeerConnection, error) {
	pc, err := f.api.NewPeerConnection(f.cfg)
	if err != nil {
		return nil, err
	}
	return newConnection(pc), nil
}

// Connection adapts a pion PeerConnection to core.PeerConnection. Callbacks
// are turned into PeerEvents; nothing calls back into the owner.
type Connection struct {
	pc     *webrtc.PeerConnection
	events chan core.PeerEvent
	done   chan struct{}
	once   sync.Once
	log    zerolog.Logger

	mu     sync.Mutex
	sends  map[webrtc.RTPCodecType]bool
	remote []*remoteTrack
}

func newConnection(pc *webrtc.PeerConnection) *Connection {
	c := &Connection{
		pc:     pc,
		events: make(chan core.PeerEvent, eventBuffer),
		done:   make(chan struct{}),
		sends:  make(map[webrtc.RTPCodecType]bool),
		log:    log.With().Str("module", "webrtc").Logger(),
	}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		c.emit(core.PeerEvent{Kind: core.PeerCandidate, Candidate: fromInit(cand.ToJSON())})
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		c.log.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		rt := &remoteTrack{track: track, receiver: receiver}
		c.mu.Lock()
		c.remote = append(c.remote, rt)
		c.mu.Unlock()
		go rt.drain()
		c.emit(core.PeerEvent{Kind: core.PeerRemoteTrack, Track: rt})
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.log.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed {
			c.emit(core.PeerEvent{Kind: core.PeerFailed, State: s.String()})
		}
	})
	return c
}

func (c *Connection) emit(ev core.PeerEvent) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Connection) Events() <-chan core.PeerEvent { return c.events }
func (c *Connection) Done() <-chan struct{}        { return c.done }

type sendable interface {
	TrackLocal() webrtc.TrackLocal
}

type enableNotifier interface {
	OnEnabledChange(func(bool))
}

// AddLocalStream adds a sender per track. Disabling a track swaps the sender
// to nil so muting needs no renegotiation.
func (c *Connection) AddLocalStream(s core.LocalStream) error {
	for _, t := range s.Tracks() {
		src, ok := t.(sendable)
		if !ok || src.TrackLocal() == nil {
			c.log.Debug().Str("track", t.ID()).Msg("track has no media, skipped")
			continue
		}
		tl := src.TrackLocal()
		sender, err := c.pc.AddTrack(tl)
		if err != nil {
			return fmt.Errorf("add %s track: %w", t.Kind(), err)
		}
		c.mu.Lock()
		c.sends[tl.Kind()] = true
		c.mu.Unlock()

		go readRTCP(sender)

		if !t.Enabled() {
			_ = sender.ReplaceTrack(nil)
		}
		if n, ok := t.(enableNotifier); ok {
			n.OnEnabledChange(func(enabled bool) {
				next := tl
				if !enabled {
					next = nil
				}
				if err := sender.ReplaceTrack(next); err != nil {
					c.log.Warn().Err(err).Str("track", tl.ID()).Bool("enabled", enabled).Msg("replace track failed")
				}
			})
		}
	}
	return nil
}

func (c *Connection) CreateOffer() (string, error) {
	c.mu.Lock()
	sendsAudio := c.sends[webrtc.RTPCodecTypeAudio]
	c.mu.Unlock()
	if !sendsAudio {
		if _, err := c.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio,
			webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}); err != nil {
			return "", err
		}
	}

	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return "", err
	}
	return offer.SDP, nil
}

func (c *Connection) ApplyOffer(sdp string) (string, error) {
	if err := c.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		return "", err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	return answer.SDP, nil
}

func (c *Connection) ApplyAnswer(sdp string) error {
	return c.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
}

func (c *Connection) AddICECandidate(cand domain.Candidate) error {
	if cand.Candidate == "" {
		return errors.New("empty candidate")
	}
	return c.pc.AddICECandidate(toInit(cand))
}

// Close stops the remote tracks and the pion connection. Idempotent.
func (c *Connection) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		c.mu.Lock()
		remote := c.remote
		c.remote = nil
		c.mu.Unlock()
		for _, rt := range remote {
			rt.Stop()
		}
		err = c.pc.Close()
		if err != nil {
			c.log.Error().Err(err).Msg("close error")
		} else {
			c.log.Info().Msg("closed")
		}
	})
	return err
}

func readRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

type remoteTrack struct {
	track    *webrtc.TrackRemote
	receiver *webrtc.RTPReceiver
	once     sync.Once
	stats    rtpStats
}

func (r *remoteTrack) ID() string { return r.track.ID() }

func (r *remoteTrack) Kind() core.TrackKind {
	if r.track.Kind() == webrtc.RTPCodecTypeVideo {
		return core.TrackVideo
	}
	return core.TrackAudio
}

func (r *remoteTrack) Stop() {
	r.once.Do(func() {
		if err := r.receiver.Stop(); err != nil {
			log.Debug().Err(err).Str("module", "webrtc").Str("track_id", r.track.ID()).Msg("receiver stop")
		}
		st := r.stats.snapshot()
		log.Info().
			Str("module", "webrtc").
			Str("track_id", r.track.ID()).
			Uint64("packets", st.Packets).
			Uint64("bytes", st.Bytes).
			Uint64("lost", st.Lost).
			Msg("remote track stopped")
	})
}

// drain consumes RTP so interceptors keep running; there is no local
// renderer in a headless client.
func (r *remoteTrack) drain() {
	for {
		pkt, _, err := r.track.ReadRTP()
		if err != nil {
			return
		}
		r.stats.observe(pkt)
	}
}

func fromInit(ci webrtc.ICECandidateInit) domain.Candidate {
	return domain.Candidate{
		Candidate:        ci.Candidate,
		SDPMid:           ci.SDPMid,
		SDPMLineIndex:    ci.SDPMLineIndex,
		UsernameFragment: ci.UsernameFragment,
	}
}

func toInit(c domain.Candidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}
