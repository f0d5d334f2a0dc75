package attach

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/parley/internal/domain"
	"github.com/google/uuid"
)

var ErrEmptyMessage = errors.New("message needs a body or an attachment")

// Poster delivers a composed message to the backend and returns what the
// backend stored.
type Poster interface {
	PostMessage(ctx context.Context, m domain.Message) (domain.Message, error)
}

// AttachRequest describes media to hang off a message. Data is stored
// locally under a fresh key; URL references remote media instead.
type AttachRequest struct {
	Type      domain.AttachmentType `json:"type"`
	Data      []byte                `json:"data,omitempty"`
	URL       string                `json:"url,omitempty"`
	Name      string                `json:"name,omitempty"`
	Duration  float64               `json:"duration,omitempty"`
	Latitude  *float64              `json:"latitude,omitempty"`
	Longitude *float64              `json:"longitude,omitempty"`
	Label     string                `json:"label,omitempty"`
	// TTL > 0 makes the attachment ephemeral. Vanishing videos get the
	// composer's default when unset.
	TTL time.Duration `json:"ttl,omitempty"`
}

type Draft struct {
	Channel     string          `json:"channel"`
	To          string          `json:"to"`
	Subject     string          `json:"subject,omitempty"`
	Body        string          `json:"body,omitempty"`
	Attachments []AttachRequest `json:"attachments,omitempty"`
}

type Composer struct {
	mgr          *Manager
	poster       Poster
	user         string
	vanishingTTL time.Duration
}

func NewComposer(mgr *Manager, poster Poster, user string, vanishingTTL time.Duration) *Composer {
	return &Composer{mgr: mgr, poster: poster, user: user, vanishingTTL: vanishingTTL}
}

// Attach stores req and adds the resulting attachment to an existing message.
func (c *Composer) Attach(ctx context.Context, messageID string, req AttachRequest) (domain.Attachment, error) {
	if _, ok := c.mgr.Message(messageID); !ok {
		return domain.Attachment{}, ErrMessageNotFound
	}
	a, err := c.build(ctx, req)
	if err != nil {
		return domain.Attachment{}, err
	}
	if err := c.mgr.AddAttachment(messageID, a); err != nil {
		c.discard(ctx, a)
		return domain.Attachment{}, err
	}
	c.mgr.log.Info().Str("message", messageID).Str("attachment", a.ID).Str("type", string(a.Type)).Msg("attachment added")
	return a, nil
}

// Compose builds a message from d, posts it and adds it to the local set.
// A message the backend rejected is still kept locally with status failed.
func (c *Composer) Compose(ctx context.Context, d Draft) (domain.Message, error) {
	msg := domain.Message{
		ID:        uuid.NewString(),
		Channel:   d.Channel,
		From:      c.user,
		To:        d.To,
		Subject:   d.Subject,
		Body:      d.Body,
		CreatedAt: c.mgr.now().UTC(),
		Status:    domain.MessageSent,
	}
	if msg.Empty() && len(d.Attachments) == 0 {
		return domain.Message{}, ErrEmptyMessage
	}
	for _, req := range d.Attachments {
		a, err := c.build(ctx, req)
		if err != nil {
			for _, done := range msg.Attachments {
				c.discard(ctx, done)
			}
			return domain.Message{}, err
		}
		msg.Attachments = append(msg.Attachments, a)
	}

	stored, err := c.poster.PostMessage(ctx, msg)
	if err != nil {
		msg.Status = domain.MessageFailed
		c.mgr.Add(msg)
		c.mgr.log.Warn().Err(err).Str("message", msg.ID).Msg("post message failed")
		return msg, fmt.Errorf("post message: %w", err)
	}
	if stored.ID != "" {
		msg.ID = stored.ID
	}
	if !stored.CreatedAt.IsZero() {
		msg.CreatedAt = stored.CreatedAt
	}
	c.mgr.Add(msg)
	return msg, nil
}

func (c *Composer) build(ctx context.Context, req AttachRequest) (domain.Attachment, error) {
	a := domain.Attachment{
		ID:        uuid.NewString(),
		Type:      req.Type,
		URL:       req.URL,
		Name:      req.Name,
		Size:      int64(len(req.Data)),
		Duration:  req.Duration,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Label:     req.Label,
	}
	ttl := req.TTL
	if ttl <= 0 && req.Type == domain.AttachmentVanishingVideo {
		ttl = c.vanishingTTL
	}
	if ttl > 0 {
		exp := c.mgr.now().Add(ttl)
		a.ExpiresAt = &exp
	}
	if len(req.Data) > 0 && req.Type != domain.AttachmentLocation {
		a.StorageKey = uuid.NewString()
	}
	if err := a.Validate(); err != nil {
		return domain.Attachment{}, err
	}
	if a.StorageKey != "" {
		if err := c.mgr.store.Put(ctx, a.StorageKey, req.Data); err != nil {
			return domain.Attachment{}, fmt.Errorf("store attachment: %w", err)
		}
	}
	return a, nil
}

func (c *Composer) discard(ctx context.Context, a domain.Attachment) {
	if a.StorageKey == "" {
		return
	}
	if err := c.mgr.store.Delete(ctx, a.StorageKey); err != nil {
		c.mgr.log.Warn().Err(err).Str("key", a.StorageKey).Msg("discard blob failed")
	}
}
