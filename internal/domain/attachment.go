package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

type AttachmentType string

const (
	AttachmentImage          AttachmentType = "image"
	AttachmentVideo          AttachmentType = "video"
	AttachmentVideoCircle    AttachmentType = "video-circle"
	AttachmentVanishingVideo AttachmentType = "vanishing-video"
	AttachmentVoice          AttachmentType = "voice"
	AttachmentDocument       AttachmentType = "document"
	AttachmentLocation       AttachmentType = "location"
)

var (
	ErrAttachmentSource   = errors.New("attachment needs a url or a storage key")
	ErrAttachmentName     = errors.New("document attachment needs a name")
	ErrAttachmentLocation = errors.New("location attachment needs latitude and longitude")
)

var validate = validator.New()

// Attachment is a piece of media hung off a message. StorageKey refers to a
// blob in the local media store and is loaded on demand.
type Attachment struct {
	ID         string         `json:"id" validate:"required"`
	Type       AttachmentType `json:"type" validate:"required,oneof=image video video-circle vanishing-video voice document location"`
	URL        string         `json:"url,omitempty"`
	StorageKey string         `json:"storageKey,omitempty"`
	ExpiresAt  *time.Time     `json:"expiresAt,omitempty"`
	Name       string         `json:"name,omitempty"`
	Size       int64          `json:"size,omitempty" validate:"gte=0"`
	Duration   float64        `json:"duration,omitempty" validate:"gte=0"`
	Latitude   *float64       `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude  *float64       `json:"longitude,omitempty" validate:"omitempty,longitude"`
	Label      string         `json:"label,omitempty"`
}

// Expired reports whether a must no longer be shown at now. Attachments
// without ExpiresAt never expire.
func (a Attachment) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && !a.ExpiresAt.After(now)
}

// Validate checks the generic fields and then the shape each type carries on
// the wire.
func (a Attachment) Validate() error {
	if err := validate.Struct(a); err != nil {
		return fmt.Errorf("attachment %q: %w", a.ID, err)
	}
	switch a.Type {
	case AttachmentLocation:
		if a.Latitude == nil || a.Longitude == nil {
			return ErrAttachmentLocation
		}
	case AttachmentDocument:
		if a.Name == "" {
			return ErrAttachmentName
		}
		fallthrough
	default:
		if a.URL == "" && a.StorageKey == "" {
			return ErrAttachmentSource
		}
	}
	return nil
}
