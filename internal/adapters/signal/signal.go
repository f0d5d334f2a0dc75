// Package signal is the HTTP-polling signaling transport. One room is joined
// at a time; its log is polled on a fixed interval and new messages are fanned
// out to subscribers in id order.
package signal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/parley/internal/core"
	"github.com/dkeye/parley/internal/domain"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrNotJoined = errors.New("room not joined")

const (
	DefaultPollInterval = 1200 * time.Millisecond
	outboxSize          = 64
	subscriberBuffer    = 64
)

type Options struct {
	BaseURL      string
	Self         domain.UserID
	PollInterval time.Duration
	Timeout      time.Duration
}

type outgoing struct {
	room    domain.RoomName
	payload domain.SignalPayload
}

type subscriber struct {
	ch   chan domain.SignalingMessage
	done chan struct{}
	once sync.Once
}

type Transport struct {
	http     *resty.Client
	self     domain.UserID
	interval time.Duration
	log      zerolog.Logger

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	outbox chan outgoing

	mu       sync.Mutex
	room     domain.RoomName
	joined   bool
	gen      uint64
	since    int64
	stopPoll context.CancelFunc
	subs     map[int]*subscriber
	nextSub  int

	// deliverMu is held for a whole poll batch so Leave can wait for an
	// in-flight delivery to finish.
	deliverMu sync.Mutex
	// joinMu serializes Join and Leave so only one poll loop ever runs.
	joinMu    sync.Mutex
}

var _ core.SignalTransport = (*Transport)(nil)

func New(opts Options) *Transport {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetHeader("Content-Type", "application/json")

	base, cancel := context.WithCancel(context.Background())
	t := &Transport{
		http:     client,
		self:     opts.Self,
		interval: opts.PollInterval,
		log:      log.With().Str("module", "signal").Str("user", string(opts.Self)).Logger(),
		base:     base,
		cancel:   cancel,
		outbox:   make(chan outgoing, outboxSize),
		subs:     make(map[int]*subscriber),
	}
	t.wg.Add(1)
	go t.sendPump()
	return t
}

// Join validates raw and starts polling that room from watermark 0. Joining
// while in another room leaves it first. Invalid names fail without any
// network call.
func (t *Transport) Join(raw string) error {
	name, err := domain.NewRoomName(raw)
	if err != nil {
		return err
	}

	t.joinMu.Lock()
	defer t.joinMu.Unlock()

	t.mu.Lock()
	if t.joined && t.room == name {
		t.mu.Unlock()
		return nil
	}
	wasJoined := t.joined
	t.mu.Unlock()
	if wasJoined {
		t.leave()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.base.Err() != nil {
		return context.Canceled
	}
	if t.stopPoll != nil {
		t.stopPoll()
	}
	ctx, cancel := context.WithCancel(t.base)
	t.room = name
	t.joined = true
	t.since = 0
	t.gen++
	t.stopPoll = cancel

	t.wg.Add(1)
	go t.pollLoop(ctx, t.gen, name)
	t.log.Info().Str("room", name.String()).Msg("joined room")
	return nil
}

// Leave stops polling and resets the watermark to 0, so rejoining the same
// room redelivers its retained history. When Leave returns no further
// messages from the old room reach subscribers.
func (t *Transport) Leave() {
	t.joinMu.Lock()
	defer t.joinMu.Unlock()
	t.leave()
}

func (t *Transport) leave() {
	t.mu.Lock()
	if !t.joined {
		t.mu.Unlock()
		return
	}
	room := t.room
	t.stopPoll()
	t.stopPoll = nil
	t.joined = false
	t.room = ""
	t.since = 0
	t.gen++
	t.mu.Unlock()

	t.deliverMu.Lock()
	t.deliverMu.Unlock()
	t.log.Info().Str("room", room.String()).Msg("left room")
}

func (t *Transport) Room() (domain.RoomName, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.room, t.joined
}

func (t *Transport) Joined() bool {
	_, ok := t.Room()
	return ok
}

// Watermark is the highest id seen in the joined room.
func (t *Transport) Watermark() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.since
}

// Send queues p for the joined room and returns immediately. The payload is
// stamped with the local user id. When the outbox is full, because the
// backend is slow or down, the payload is dropped.
func (t *Transport) Send(ctx context.Context, p domain.SignalPayload) {
	if ctx.Err() != nil {
		return
	}
	t.mu.Lock()
	room, joined := t.room, t.joined
	t.mu.Unlock()
	if !joined {
		t.log.Debug().Str("type", string(p.Type)).Msg("send dropped, not joined")
		return
	}
	p.From = t.self

	select {
	case <-t.base.Done():
		return
	default:
	}
	select {
	case t.outbox <- outgoing{room: room, payload: p}:
	default:
		t.log.Warn().Str("room", room.String()).Str("type", string(p.Type)).Msg("outbox full, send dropped")
	}
}

// Poll fetches messages of the joined room with id > since in ascending
// order. It does not move the watermark.
func (t *Transport) Poll(ctx context.Context, room domain.RoomName, since int64) ([]domain.SignalingMessage, error) {
	current, joined := t.Room()
	if !joined || current != room {
		return nil, ErrNotJoined
	}
	return t.fetch(ctx, room, since)
}

// Subscribe returns a channel of messages from other users in the joined
// room. The channel is never closed; stop reading after calling cancel.
func (t *Transport) Subscribe() (<-chan domain.SignalingMessage, func()) {
	sub := &subscriber{
		ch:   make(chan domain.SignalingMessage, subscriberBuffer),
		done: make(chan struct{}),
	}
	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = sub
	t.mu.Unlock()

	return sub.ch, func() {
		sub.once.Do(func() {
			close(sub.done)
			t.mu.Lock()
			delete(t.subs, id)
			t.mu.Unlock()
		})
	}
}

// Close leaves the room and stops the send pump. Queued sends are dropped.
func (t *Transport) Close() {
	t.Leave()
	t.cancel()
	t.wg.Wait()
}
