package call

import (
	"github.com/dkeye/parley/internal/core"
	"github.com/dkeye/parley/internal/domain"
)

// Snapshot is a read-only view of the call published after every transition.
type Snapshot struct {
	Status         domain.CallStatus `json:"status"`
	Mode           domain.CallMode   `json:"mode"`
	Room           domain.RoomName   `json:"room,omitempty"`
	HasLocalStream bool              `json:"hasLocalStream"`
	RemoteTracks   int               `json:"remoteTracks"`
	AudioEnabled   bool              `json:"audioEnabled"`
	VideoEnabled   bool              `json:"videoEnabled"`
	Error          string            `json:"error,omitempty"`
}

func (c *Controller) current() Snapshot {
	s := Snapshot{
		Status:         c.sess.status,
		Mode:           c.sess.mode,
		Room:           c.sess.room,
		HasLocalStream: c.sess.local != nil,
		RemoteTracks:   len(c.sess.remote),
	}
	if s.Status == "" {
		s.Status = domain.CallIdle
	}
	if s.Mode == "" {
		s.Mode = domain.ModeNone
	}
	if c.sess.local != nil {
		for _, t := range c.sess.local.Tracks() {
			switch t.Kind() {
			case core.TrackAudio:
				s.AudioEnabled = s.AudioEnabled || t.Enabled()
			case core.TrackVideo:
				s.VideoEnabled = s.VideoEnabled || t.Enabled()
			}
		}
	}
	if c.lastErr != nil {
		s.Error = c.lastErr.Error()
	}
	return s
}

// publish runs on the loop goroutine.
func (c *Controller) publish() {
	snap := c.current()

	c.snapMu.Lock()
	c.snap = snap
	subs := make([]chan Snapshot, 0, len(c.subs))
	for _, ch := range c.subs {
		subs = append(subs, ch)
	}
	c.snapMu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- snap:
		default:
			// keep the newest state for slow readers
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// Snapshot returns the latest published state.
func (c *Controller) Snapshot() Snapshot {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snap
}

// Subscribe streams snapshots. Slow readers only miss intermediate states.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 16)
	c.snapMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.snapMu.Unlock()

	return ch, func() {
		c.snapMu.Lock()
		delete(c.subs, id)
		c.snapMu.Unlock()
	}
}
