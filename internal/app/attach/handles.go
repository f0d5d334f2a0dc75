package attach

import (
	"context"
	"fmt"

	"github.com/dkeye/parley/internal/domain"
	"github.com/google/uuid"
)

// DisplayHandle is a renderable reference to an attachment. Data is set for
// attachments loaded from the local store. A handle stays valid until its
// attachment leaves the active set or it is released.
type DisplayHandle struct {
	ID           string `json:"id"`
	AttachmentID string `json:"attachmentId"`
	MessageID    string `json:"messageId"`
	URL          string `json:"url"`
	MIME         string `json:"mime,omitempty"`
	Data         []byte `json:"-"`
}

type handles struct {
	byID  map[string]*DisplayHandle
	byAtt map[string]map[string]struct{}
}

func newHandles() *handles {
	return &handles{
		byID:  make(map[string]*DisplayHandle),
		byAtt: make(map[string]map[string]struct{}),
	}
}

func (h *handles) add(d *DisplayHandle) {
	h.byID[d.ID] = d
	set, ok := h.byAtt[d.AttachmentID]
	if !ok {
		set = make(map[string]struct{})
		h.byAtt[d.AttachmentID] = set
	}
	set[d.ID] = struct{}{}
}

func (h *handles) remove(id string) bool {
	d, ok := h.byID[id]
	if !ok {
		return false
	}
	delete(h.byID, id)
	if set := h.byAtt[d.AttachmentID]; set != nil {
		delete(set, id)
		if len(set) == 0 {
			delete(h.byAtt, d.AttachmentID)
		}
	}
	return true
}

func (h *handles) revokeAttachment(attachmentID string) {
	for id := range h.byAtt[attachmentID] {
		delete(h.byID, id)
	}
	delete(h.byAtt, attachmentID)
}

// locate finds an active attachment. Callers hold m.mu.
func (m *Manager) locate(attachmentID string) (string, domain.Attachment, bool) {
	now := m.now()
	for _, id := range m.order {
		msg := m.msgs[id]
		if i := indexOf(msg.Attachments, attachmentID); i >= 0 {
			a := msg.Attachments[i]
			if a.Expired(now) {
				return "", domain.Attachment{}, false
			}
			return id, a, true
		}
	}
	return "", domain.Attachment{}, false
}

// Open resolves an attachment into a display handle, loading its blob from
// the store when it has a storage key. The load runs without holding the
// manager lock; if the attachment expired or was removed meanwhile the
// handle is not created.
func (m *Manager) Open(ctx context.Context, attachmentID string) (DisplayHandle, error) {
	m.mu.Lock()
	msgID, att, ok := m.locate(attachmentID)
	m.mu.Unlock()
	if !ok {
		return DisplayHandle{}, ErrAttachmentNotFound
	}
	if att.StorageKey == "" && att.URL == "" {
		return DisplayHandle{}, ErrNoMedia
	}

	d := &DisplayHandle{
		ID:           uuid.NewString(),
		AttachmentID: att.ID,
		MessageID:    msgID,
		URL:          att.URL,
		MIME:         mimeOf(att.Type),
	}
	if att.StorageKey != "" {
		blob, err := m.store.Get(ctx, att.StorageKey)
		if err != nil {
			return DisplayHandle{}, fmt.Errorf("load attachment %s: %w", att.ID, err)
		}
		d.Data = blob
		d.URL = "/api/handles/" + d.ID
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, _, still := m.locate(attachmentID); !still {
		return DisplayHandle{}, ErrAttachmentNotFound
	}
	m.handles.add(d)
	return *d, nil
}

// Handle returns a live handle.
func (m *Manager) Handle(id string) (DisplayHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.handles.byID[id]
	if !ok {
		return DisplayHandle{}, ErrHandleNotFound
	}
	return *d, nil
}

// Release drops a handle before its attachment goes away.
func (m *Manager) Release(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.handles.remove(id) {
		return ErrHandleNotFound
	}
	return nil
}

// Handles reports how many handles are live.
func (m *Manager) Handles() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles.byID)
}

func mimeOf(t domain.AttachmentType) string {
	switch t {
	case domain.AttachmentImage:
		return "image/jpeg"
	case domain.AttachmentVideo, domain.AttachmentVideoCircle, domain.AttachmentVanishingVideo:
		return "video/webm"
	case domain.AttachmentVoice:
		return "audio/ogg"
	case domain.AttachmentDocument:
		return "application/octet-stream"
	}
	return ""
}
