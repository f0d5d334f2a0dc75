package signal

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/dkeye/parley/internal/domain"
)

type sendRequest struct {
	Room    domain.RoomName      `json:"room"`
	Payload domain.SignalPayload `json:"payload"`
}

type pollResponse struct {
	Messages []domain.SignalingMessage `json:"messages"`
}

// sendPump posts queued payloads one at a time so they reach the room in
// the order they were sent. A failed post is logged and not retried.
func (t *Transport) sendPump() {
	defer t.wg.Done()
	for {
		select {
		case <-t.base.Done():
			return
		case out := <-t.outbox:
			if err := t.post(t.base, out); err != nil {
				if t.base.Err() != nil {
					return
				}
				t.log.Warn().Err(err).
					Str("room", out.room.String()).
					Str("type", string(out.payload.Type)).
					Msg("send failed")
			}
		}
	}
}

func (t *Transport) post(ctx context.Context, out outgoing) error {
	resp, err := t.http.R().
		SetContext(ctx).
		SetBody(sendRequest{Room: out.room, Payload: out.payload}).
		Post("/signaling/send")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("send: unexpected status %d", resp.StatusCode())
	}
	return nil
}

func (t *Transport) fetch(ctx context.Context, room domain.RoomName, since int64) ([]domain.SignalingMessage, error) {
	var out pollResponse
	resp, err := t.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"room":  room.String(),
			"since": strconv.FormatInt(since, 10),
		}).
		SetResult(&out).
		Get("/signaling/poll")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("poll: unexpected status %d", resp.StatusCode())
	}

	msgs := out.Messages[:0]
	for _, m := range out.Messages {
		if m.ID > since {
			m.Room = room
			msgs = append(msgs, m)
		}
	}
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })
	return msgs, nil
}

// pollLoop polls immediately and then on every tick until ctx is cancelled.
// Errors are logged; the next tick is the retry.
func (t *Transport) pollLoop(ctx context.Context, gen uint64, room domain.RoomName) {
	defer t.wg.Done()
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		t.pollOnce(ctx, gen, room)
		select {
		case <-ctx.Done():
			t.log.Debug().Str("room", room.String()).Msg("poll loop stopped")
			return
		case <-ticker.C:
		}
	}
}

func (t *Transport) pollOnce(ctx context.Context, gen uint64, room domain.RoomName) {
	t.mu.Lock()
	since := t.since
	t.mu.Unlock()

	msgs, err := t.fetch(ctx, room, since)
	if err != nil {
		if ctx.Err() == nil {
			t.log.Warn().Err(err).Str("room", room.String()).Int64("since", since).Msg("poll failed")
		}
		return
	}
	t.deliver(ctx, gen, msgs)
}

// deliver advances the watermark message by message and fans out everything
// not sent by this user. A batch that belongs to an older join is dropped.
func (t *Transport) deliver(ctx context.Context, gen uint64, msgs []domain.SignalingMessage) {
	t.deliverMu.Lock()
	defer t.deliverMu.Unlock()

	for _, m := range msgs {
		t.mu.Lock()
		if t.gen != gen || ctx.Err() != nil {
			t.mu.Unlock()
			return
		}
		if m.ID <= t.since {
			t.mu.Unlock()
			continue
		}
		t.since = m.ID
		subs := make([]*subscriber, 0, len(t.subs))
		for _, s := range t.subs {
			subs = append(subs, s)
		}
		t.mu.Unlock()

		if m.Payload.From == t.self {
			continue
		}
		for _, s := range subs {
			select {
			case s.ch <- m:
			case <-s.done:
			case <-ctx.Done():
				return
			}
		}
	}
}
