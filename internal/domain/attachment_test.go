package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestAttachmentExpired(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	assert.False(t, Attachment{}.Expired(now), "no expiry never expires")
	assert.False(t, Attachment{ExpiresAt: ptr(now.Add(time.Second))}.Expired(now))
	assert.True(t, Attachment{ExpiresAt: ptr(now)}.Expired(now), "expiresAt == now counts as expired")
	assert.True(t, Attachment{ExpiresAt: ptr(now.Add(-time.Minute))}.Expired(now))
}

func TestAttachmentValidate(t *testing.T) {
	cases := []struct {
		name string
		a    Attachment
		want error
	}{
		{"image by key", Attachment{ID: "a", Type: AttachmentImage, StorageKey: "k"}, nil},
		{"voice by url", Attachment{ID: "a", Type: AttachmentVoice, URL: "https://x/v.ogg"}, nil},
		{"video without source", Attachment{ID: "a", Type: AttachmentVideo}, ErrAttachmentSource},
		{"document without name", Attachment{ID: "a", Type: AttachmentDocument, StorageKey: "k"}, ErrAttachmentName},
		{"document ok", Attachment{ID: "a", Type: AttachmentDocument, Name: "cv.pdf", Size: 10, StorageKey: "k"}, nil},
		{"location ok", Attachment{ID: "a", Type: AttachmentLocation, Latitude: ptr(52.37), Longitude: ptr(4.89)}, nil},
		{"location missing lon", Attachment{ID: "a", Type: AttachmentLocation, Latitude: ptr(52.37)}, ErrAttachmentLocation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.a.Validate()
			if tc.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestAttachmentValidate_StructRules(t *testing.T) {
	require.Error(t, Attachment{Type: AttachmentImage, StorageKey: "k"}.Validate(), "id required")
	require.Error(t, Attachment{ID: "a", Type: "gif", StorageKey: "k"}.Validate(), "unknown type")
	require.Error(t, Attachment{ID: "a", Type: AttachmentLocation, Latitude: ptr(123.0), Longitude: ptr(1.0)}.Validate())
}

func TestMessageEmptyAndClone(t *testing.T) {
	m := &Message{ID: "m1", Body: "  "}
	assert.True(t, m.Empty())

	m.Attachments = []Attachment{{ID: "a"}}
	assert.False(t, m.Empty())

	c := m.Clone()
	c.Attachments[0].ID = "b"
	assert.Equal(t, "a", m.Attachments[0].ID)
}
