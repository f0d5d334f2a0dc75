package call

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/parley/internal/core"
	"github.com/dkeye/parley/internal/domain"
)

func (c *Controller) start(mode domain.CallMode, reply chan error) {
	room, joined := c.signal.Room()
	if c.sess.status != domain.CallIdle || !joined {
		c.log.Debug().
			Str("status", string(c.sess.status)).
			Bool("joined", joined).
			Msg("start ignored")
		reply <- nil
		return
	}
	c.log.Info().Str("room", room.String()).Str("mode", string(mode.OrAudio())).Msg("starting call")
	c.begin(mode.OrAudio(), room, "", reply)
}

// begin moves to Connecting and negotiates in the background. An empty
// remoteOffer means this side offers.
func (c *Controller) begin(mode domain.CallMode, room domain.RoomName, remoteOffer string, waiter chan error) {
	c.gen++
	ctx, cancel := context.WithCancel(c.ctx)
	c.sess = session{
		status: domain.CallConnecting,
		mode:   mode,
		room:   room,
		abort:  cancel,
		waiter: waiter,
	}
	c.lastErr = nil
	c.publish()
	go c.negotiate(ctx, c.gen, mode, remoteOffer)
}

// negotiate runs off the loop. Its result is always posted back, carrying
// whatever it acquired so the loop can adopt or release it.
func (c *Controller) negotiate(ctx context.Context, gen uint64, mode domain.CallMode, remoteOffer string) {
	res := negotiated{gen: gen, offer: remoteOffer == ""}
	defer func() { c.post(res) }()

	local, err := c.capture.Acquire(ctx, mode)
	if err != nil {
		res.err = acquisitionError(err)
		return
	}
	res.local = local
	if ctx.Err() != nil {
		res.err = ErrAborted
		return
	}

	pc, err := c.peers.NewPeerConnection()
	if err != nil {
		res.err = negotiationError("create peer connection", err)
		return
	}
	res.pc = pc
	go c.pump(gen, pc)

	if err := pc.AddLocalStream(local); err != nil {
		res.err = negotiationError("add local stream", err)
		return
	}
	if ctx.Err() != nil {
		res.err = ErrAborted
		return
	}

	if res.offer {
		res.sdp, err = pc.CreateOffer()
		if err != nil {
			res.err = negotiationError("create offer", err)
		}
		return
	}
	res.sdp, err = pc.ApplyOffer(remoteOffer)
	if err != nil {
		res.err = negotiationError("answer offer", err)
	}
}

// pump forwards peer connection events into the loop, tagged with the
// generation they belong to.
func (c *Controller) pump(gen uint64, pc core.PeerConnection) {
	for {
		select {
		case ev := <-pc.Events():
			c.post(peerEvent{gen: gen, ev: ev})
		case <-pc.Done():
			return
		case <-c.stopped:
			return
		}
	}
}

func (c *Controller) onNegotiated(n negotiated) {
	if n.gen != c.gen || c.sess.status != domain.CallConnecting {
		c.log.Debug().Uint64("gen", n.gen).Msg("stale negotiation released")
		releaseNegotiation(c.capture, n)
		return
	}
	c.sess.local, c.sess.pc = n.local, n.pc
	if n.err != nil {
		c.fail(n.err)
		return
	}

	p := domain.SignalPayload{Type: domain.SignalAnswer, SDP: n.sdp}
	if n.offer {
		p.Type = domain.SignalOffer
		p.Mode = c.sess.mode
	}
	c.sendSignal(p)

	for _, cand := range c.sess.outbound {
		c.sendCandidate(cand)
	}
	c.sess.outbound = nil
	for _, cand := range c.sess.inbound {
		c.applyCandidate(cand)
	}
	c.sess.inbound = nil

	// Active as soon as the description is sent; the caller does not wait
	// for the answer.
	c.sess.status = domain.CallActive
	c.log.Info().
		Str("room", c.sess.room.String()).
		Str("mode", string(c.sess.mode)).
		Str("sent", string(p.Type)).
		Msg("call active")
	// publish before replying so StartCall never returns ahead of the snapshot
	c.publish()
	if c.sess.waiter != nil {
		c.sess.waiter <- nil
		c.sess.waiter = nil
	}
}

func (c *Controller) onSignal(m domain.SignalingMessage) {
	p := m.Payload
	if m.Room == "" {
		m.Room, _ = c.signal.Room()
	}
	if p.Type != domain.SignalOffer && c.sess.status != domain.CallIdle && m.Room != c.sess.room {
		c.log.Debug().Str("room", m.Room.String()).Msg("signal for another room dropped")
		return
	}

	switch p.Type {
	case domain.SignalOffer:
		if c.sess.status != domain.CallIdle {
			c.log.Debug().Int64("id", m.ID).Msg("busy, offer ignored")
			return
		}
		if p.SDP == "" {
			c.log.Warn().Int64("id", m.ID).Msg("offer without sdp")
			return
		}
		c.log.Info().Str("room", m.Room.String()).Str("from", string(p.From)).Msg("incoming call")
		c.begin(p.Mode.OrAudio(), m.Room, p.SDP, nil)

	case domain.SignalAnswer:
		if c.sess.status == domain.CallIdle || c.sess.pc == nil {
			c.log.Debug().Int64("id", m.ID).Msg("answer without peer connection dropped")
			return
		}
		if c.sess.answered {
			c.log.Debug().Int64("id", m.ID).Msg("duplicate answer ignored")
			return
		}
		if err := c.sess.pc.ApplyAnswer(p.SDP); err != nil {
			c.fail(negotiationError("apply answer", err))
			return
		}
		c.sess.answered = true
		c.log.Info().Str("room", c.sess.room.String()).Msg("answer applied")

	case domain.SignalCandidate:
		if p.Candidate == nil || c.sess.status == domain.CallIdle {
			return
		}
		if c.sess.pc == nil {
			c.sess.inbound = append(c.sess.inbound, *p.Candidate)
			return
		}
		c.applyCandidate(*p.Candidate)

	case domain.SignalHangup:
		if c.sess.status == domain.CallIdle {
			return
		}
		c.log.Info().Str("room", c.sess.room.String()).Msg("remote hangup")
		c.teardown(ErrAborted, nil)

	default:
		c.log.Warn().Str("type", string(p.Type)).Msg("unknown signal")
	}
}

func (c *Controller) onPeerEvent(e peerEvent) {
	if e.gen != c.gen || c.sess.status == domain.CallIdle {
		if e.ev.Kind == core.PeerRemoteTrack && e.ev.Track != nil {
			e.ev.Track.Stop()
		}
		return
	}
	switch e.ev.Kind {
	case core.PeerCandidate:
		if c.sess.pc == nil {
			c.sess.outbound = append(c.sess.outbound, e.ev.Candidate)
			return
		}
		c.sendCandidate(e.ev.Candidate)
	case core.PeerRemoteTrack:
		c.sess.remote = append(c.sess.remote, e.ev.Track)
		c.log.Info().Str("kind", string(e.ev.Track.Kind())).Str("track_id", e.ev.Track.ID()).Msg("remote track")
		c.publish()
	case core.PeerFailed:
		c.fail(negotiationError("peer connection", fmt.Errorf("state %s", e.ev.State)))
	}
}

func (c *Controller) fail(err error) {
	ev := c.log.Error().Str("room", c.sess.room.String()).Str("status", string(c.sess.status))
	var ce *CallError
	if errors.As(err, &ce) {
		ev = ev.Str("kind", ce.Kind.String()).Err(ce.Err)
	} else {
		ev = ev.Err(err)
	}
	ev.Msg("call failed")
	c.teardown(err, err)
}

// teardown aborts any negotiation, closes the peer connection, stops every
// local and remote track and returns to Idle. surfaced becomes the error
// shown in snapshots.
func (c *Controller) teardown(result, surfaced error) {
	s := c.sess
	if s.abort != nil {
		s.abort()
	}
	if s.pc != nil {
		if err := s.pc.Close(); err != nil {
			c.log.Warn().Err(err).Msg("peer connection close")
		}
	}
	for _, rt := range s.remote {
		rt.Stop()
	}
	if s.local != nil {
		c.capture.Release(s.local)
	}

	c.gen++
	c.sess = session{status: domain.CallIdle, mode: domain.ModeNone}
	c.lastErr = surfaced
	c.publish()
	if s.waiter != nil {
		s.waiter <- result
	}
}

// sendSignal is also used while shutting down, so it ignores loop
// cancellation.
func (c *Controller) sendSignal(p domain.SignalPayload) {
	c.signal.Send(context.WithoutCancel(c.ctx), p)
}

func (c *Controller) sendCandidate(cand domain.Candidate) {
	c.sendSignal(domain.SignalPayload{Type: domain.SignalCandidate, Candidate: &cand})
}

func (c *Controller) applyCandidate(cand domain.Candidate) {
	if err := c.sess.pc.AddICECandidate(cand); err != nil {
		c.log.Warn().Err(err).Msg("add ice candidate")
	}
}
