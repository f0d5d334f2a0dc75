// Package call implements the call session state machine. All transitions
// run on one goroutine (Run); hardware and network callbacks reach it as
// events, so every step sees a consistent session.
package call

import (
	"context"
	"sync"

	"github.com/dkeye/parley/internal/core"
	"github.com/dkeye/parley/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const inboxSize = 64

type session struct {
	status domain.CallStatus
	mode   domain.CallMode
	room   domain.RoomName
	local  core.LocalStream
	pc     core.PeerConnection
	remote []core.RemoteTrack

	answered bool
	// candidates seen before the peer connection is attached
	outbound []domain.Candidate
	inbound  []domain.Candidate

	abort  context.CancelFunc
	waiter chan error
}

type (
	startCmd struct {
		mode  domain.CallMode
		reply chan error
	}
	hangupCmd struct {
		done chan struct{}
	}
	toggleCmd struct {
		kind  core.TrackKind
		reply chan bool
	}
	negotiated struct {
		gen   uint64
		offer bool
		local core.LocalStream
		pc    core.PeerConnection
		sdp   string
		err   error
	}
	peerEvent struct {
		gen uint64
		ev  core.PeerEvent
	}
)

// Controller owns at most one call and its hardware.
type Controller struct {
	capture core.MediaCapture
	peers   core.PeerFactory
	signal  core.SignalTransport
	log     zerolog.Logger

	inbox   chan any
	stopped chan struct{}
	running chan struct{}
	runOnce sync.Once
	closeMu sync.RWMutex
	closed  bool

	// loop-owned
	ctx     context.Context
	sess    session
	gen     uint64
	lastErr error

	snapMu  sync.RWMutex
	snap    Snapshot
	subs    map[int]chan Snapshot
	nextSub int
}

func NewController(capture core.MediaCapture, peers core.PeerFactory, signal core.SignalTransport) *Controller {
	c := &Controller{
		capture: capture,
		peers:   peers,
		signal:  signal,
		log:     log.With().Str("module", "call").Logger(),
		inbox:   make(chan any, inboxSize),
		stopped: make(chan struct{}),
		running: make(chan struct{}),
		subs:    make(map[int]chan Snapshot),
		sess:    session{status: domain.CallIdle, mode: domain.ModeNone},
	}
	c.snap = c.current()
	return c
}

// Run processes events until ctx is cancelled. An active call is hung up on
// the way out.
func (c *Controller) Run(ctx context.Context) error {
	started := false
	c.runOnce.Do(func() { started = true })
	if !started {
		return nil
	}
	c.ctx = ctx
	msgs, unsubscribe := c.signal.Subscribe()
	defer unsubscribe()
	close(c.running)

	c.log.Info().Msg("call controller started")
	for {
		select {
		case <-ctx.Done():
			if c.sess.status != domain.CallIdle {
				c.sendSignal(domain.SignalPayload{Type: domain.SignalHangup})
				c.teardown(ErrAborted, nil)
			}
			c.shutdown()
			c.log.Info().Msg("call controller stopped")
			return nil
		case m := <-msgs:
			c.onSignal(m)
		case e := <-c.inbox:
			c.handle(e)
		}
	}
}

// shutdown stops accepting events and releases whatever is still queued.
func (c *Controller) shutdown() {
	close(c.stopped)
	c.closeMu.Lock()
	c.closed = true
	c.closeMu.Unlock()
	c.drain()
}

func (c *Controller) handle(e any) {
	switch e := e.(type) {
	case startCmd:
		c.start(e.mode, e.reply)
	case hangupCmd:
		if c.sess.status != domain.CallIdle {
			c.log.Info().Str("room", c.sess.room.String()).Msg("local hangup")
			c.sendSignal(domain.SignalPayload{Type: domain.SignalHangup})
			c.teardown(ErrAborted, nil)
		}
		close(e.done)
	case toggleCmd:
		e.reply <- c.toggle(e.kind)
	case negotiated:
		c.onNegotiated(e)
	case peerEvent:
		c.onPeerEvent(e)
	}
}

// drain releases resources carried by events nobody will handle.
func (c *Controller) drain() {
	for {
		select {
		case e := <-c.inbox:
			discard(c.capture, e)
		default:
			return
		}
	}
}

func discard(capture core.MediaCapture, e any) {
	switch e := e.(type) {
	case negotiated:
		releaseNegotiation(capture, e)
	case peerEvent:
		if e.ev.Kind == core.PeerRemoteTrack && e.ev.Track != nil {
			e.ev.Track.Stop()
		}
	case startCmd:
		e.reply <- ErrStopped
	case hangupCmd:
		close(e.done)
	case toggleCmd:
		e.reply <- false
	}
}

func releaseNegotiation(capture core.MediaCapture, n negotiated) {
	if n.pc != nil {
		_ = n.pc.Close()
	}
	if n.local != nil {
		capture.Release(n.local)
	}
}

// post hands e to the loop, or cleans it up if the loop is gone.
func (c *Controller) post(e any) {
	c.closeMu.RLock()
	defer c.closeMu.RUnlock()
	if c.closed {
		discard(c.capture, e)
		return
	}
	select {
	case c.inbox <- e:
	case <-c.stopped:
		discard(c.capture, e)
	}
}

// await is post for API calls: it waits for Run to start and honours ctx.
func (c *Controller) await(ctx context.Context, e any) error {
	select {
	case <-c.running:
	case <-ctx.Done():
		return ctx.Err()
	}
	c.closeMu.RLock()
	defer c.closeMu.RUnlock()
	if c.closed {
		return ErrStopped
	}
	select {
	case c.inbox <- e:
		return nil
	case <-c.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StartCall places an outgoing call in mode and waits until the offer is
// sent or the attempt fails. It is a no-op returning nil unless the
// controller is idle and a room is joined.
func (c *Controller) StartCall(ctx context.Context, mode domain.CallMode) error {
	reply := make(chan error, 1)
	if err := c.await(ctx, startCmd{mode: mode, reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Hangup ends the current call, if any, and tells the peer.
func (c *Controller) Hangup(ctx context.Context) error {
	done := make(chan struct{})
	if err := c.await(ctx, hangupCmd{done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ToggleAudio flips the microphone mute flag and returns whether audio is
// now enabled. False without a call.
func (c *Controller) ToggleAudio(ctx context.Context) (bool, error) {
	return c.toggleKind(ctx, core.TrackAudio)
}

func (c *Controller) ToggleVideo(ctx context.Context) (bool, error) {
	return c.toggleKind(ctx, core.TrackVideo)
}

func (c *Controller) toggleKind(ctx context.Context, kind core.TrackKind) (bool, error) {
	reply := make(chan bool, 1)
	if err := c.await(ctx, toggleCmd{kind: kind, reply: reply}); err != nil {
		return false, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (c *Controller) toggle(kind core.TrackKind) bool {
	if c.sess.local == nil {
		return false
	}
	var enabled bool
	if kind == core.TrackVideo {
		enabled = c.capture.ToggleVideo(c.sess.local)
	} else {
		enabled = c.capture.ToggleAudio(c.sess.local)
	}
	c.log.Debug().Str("kind", string(kind)).Bool("enabled", enabled).Msg("track toggled")
	c.publish()
	return enabled
}
