// Package attach manages the in-memory message set and the lifecycle of
// message attachments: expiry, storage reclamation and display handles.
package attach

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/parley/internal/core"
	"github.com/dkeye/parley/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const DefaultSweepInterval = 2 * time.Second

var (
	ErrMessageNotFound    = errors.New("message not found")
	ErrAttachmentNotFound = errors.New("attachment not found")
	ErrHandleNotFound     = errors.New("display handle not found")
	ErrNoMedia            = errors.New("attachment has no media to display")
)

// SweepResult describes what one sweep removed.
type SweepResult struct {
	At      time.Time `json:"at"`
	Expired []string  `json:"expired,omitempty"`
	Pruned  []string  `json:"pruned,omitempty"`
	Deleted []string  `json:"deleted,omitempty"`
	Failed  []string  `json:"failed,omitempty"`
}

func (r SweepResult) Empty() bool {
	return len(r.Expired) == 0 && len(r.Pruned) == 0 && len(r.Deleted) == 0 && len(r.Failed) == 0
}

type Manager struct {
	store    core.BlobStore
	interval time.Duration
	now      func() time.Time
	log      zerolog.Logger

	mu      sync.Mutex
	order   []string
	msgs    map[string]*domain.Message
	handles *handles
	// storage keys whose delete failed; retried on the next sweep
	pending map[string]struct{}

	subMu   sync.Mutex
	subs    map[int]chan SweepResult
	nextSub int
}

func NewManager(store core.BlobStore, interval time.Duration) *Manager {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Manager{
		store:    store,
		interval: interval,
		now:      time.Now,
		log:      log.With().Str("module", "attach").Logger(),
		msgs:     make(map[string]*domain.Message),
		handles:  newHandles(),
		pending:  make(map[string]struct{}),
		subs:     make(map[int]chan SweepResult),
	}
}

// Seed replaces the message set. Handles of attachments that disappear are
// revoked; their blobs are left alone since they may belong to the backend.
func (m *Manager) Seed(msgs []domain.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.order = m.order[:0]
	next := make(map[string]*domain.Message, len(msgs))
	for i := range msgs {
		msg := msgs[i].Clone()
		if _, dup := next[msg.ID]; !dup {
			m.order = append(m.order, msg.ID)
		}
		next[msg.ID] = &msg
	}
	for id, old := range m.msgs {
		kept := next[id]
		for _, a := range old.Attachments {
			if kept == nil || indexOf(kept.Attachments, a.ID) < 0 {
				m.handles.revokeAttachment(a.ID)
			}
		}
	}
	m.msgs = next
	m.log.Info().Int("messages", len(m.order)).Msg("message set seeded")
}

// Add inserts msg, or replaces the message with the same id in place.
// Attachments the replacement no longer carries are released like removed
// ones: their handles are revoked and their blobs deleted.
func (m *Manager) Add(msg domain.Message) {
	c := msg.Clone()
	m.mu.Lock()
	old, ok := m.msgs[c.ID]
	if !ok {
		m.order = append(m.order, c.ID)
	}
	m.msgs[c.ID] = &c
	var keys []string
	if ok {
		kept := make(map[string]struct{}, len(c.Attachments))
		for _, a := range c.Attachments {
			if a.StorageKey != "" {
				kept[a.StorageKey] = struct{}{}
			}
		}
		var dropped []domain.Attachment
		for _, a := range old.Attachments {
			if indexOf(c.Attachments, a.ID) < 0 {
				dropped = append(dropped, a)
			}
		}
		for _, k := range m.release(dropped) {
			if _, still := kept[k]; !still {
				keys = append(keys, k)
			}
		}
	}
	m.mu.Unlock()

	m.deleteKeys(context.Background(), keys)
}

// AddAttachment validates a and appends it to the message.
func (m *Manager) AddAttachment(messageID string, a domain.Attachment) error {
	if err := a.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.msgs[messageID]
	if !ok {
		return ErrMessageNotFound
	}
	msg.Attachments = append(msg.Attachments, a)
	return nil
}

// Messages returns copies of the messages in order. Attachments that have
// expired but are not swept yet are already hidden.
func (m *Manager) Messages() []domain.Message {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Message, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, visible(m.msgs[id], now))
	}
	return out
}

func (m *Manager) Message(id string) (domain.Message, bool) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.msgs[id]
	if !ok {
		return domain.Message{}, false
	}
	return visible(msg, now), true
}

func visible(msg *domain.Message, now time.Time) domain.Message {
	out := msg.Clone()
	out.Attachments = out.Attachments[:0]
	for _, a := range msg.Attachments {
		if !a.Expired(now) {
			out.Attachments = append(out.Attachments, a)
		}
	}
	if len(out.Attachments) == 0 {
		out.Attachments = nil
	}
	return out
}

// Remove drops a message, reclaims the storage of its attachments and
// revokes their handles.
func (m *Manager) Remove(ctx context.Context, messageID string) error {
	m.mu.Lock()
	msg, ok := m.msgs[messageID]
	if !ok {
		m.mu.Unlock()
		return ErrMessageNotFound
	}
	delete(m.msgs, messageID)
	m.order = removeID(m.order, messageID)
	keys := m.release(msg.Attachments)
	m.mu.Unlock()

	m.deleteKeys(ctx, keys)
	return nil
}

// RemoveAttachment drops one attachment and prunes the message if nothing
// is left of it.
func (m *Manager) RemoveAttachment(ctx context.Context, messageID, attachmentID string) error {
	m.mu.Lock()
	msg, ok := m.msgs[messageID]
	if !ok {
		m.mu.Unlock()
		return ErrMessageNotFound
	}
	i := indexOf(msg.Attachments, attachmentID)
	if i < 0 {
		m.mu.Unlock()
		return ErrAttachmentNotFound
	}
	removed := msg.Attachments[i]
	msg.Attachments = append(msg.Attachments[:i:i], msg.Attachments[i+1:]...)
	keys := m.release([]domain.Attachment{removed})
	if msg.Empty() {
		delete(m.msgs, messageID)
		m.order = removeID(m.order, messageID)
	}
	m.mu.Unlock()

	m.deleteKeys(ctx, keys)
	return nil
}

// release revokes handles of atts and returns their storage keys. Callers
// hold m.mu.
func (m *Manager) release(atts []domain.Attachment) []string {
	var keys []string
	for _, a := range atts {
		m.handles.revokeAttachment(a.ID)
		if a.StorageKey != "" {
			keys = append(keys, a.StorageKey)
		}
	}
	return keys
}

// deleteKeys runs outside m.mu. Failures are parked for the next sweep.
func (m *Manager) deleteKeys(ctx context.Context, keys []string) (deleted, failed []string) {
	for _, k := range keys {
		if err := m.store.Delete(ctx, k); err != nil {
			m.log.Warn().Err(err).Str("key", k).Msg("delete blob failed, will retry")
			m.mu.Lock()
			m.pending[k] = struct{}{}
			m.mu.Unlock()
			failed = append(failed, k)
			continue
		}
		deleted = append(deleted, k)
	}
	return deleted, failed
}

func indexOf(atts []domain.Attachment, id string) int {
	for i, a := range atts {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
