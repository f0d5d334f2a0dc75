package attach

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/parley/internal/core"
	"github.com/dkeye/parley/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenLoadsBlob(t *testing.T) {
	m, st, _ := newTestManager()
	ctx := context.Background()
	require.NoError(t, st.Put(ctx, "k", []byte("jpeg")))
	m.Seed([]domain.Message{{ID: "m", Attachments: []domain.Attachment{{ID: "a", Type: domain.AttachmentImage, StorageKey: "k"}}}})

	h, err := m.Open(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), h.Data)
	assert.Equal(t, "m", h.MessageID)
	assert.Equal(t, "/api/handles/"+h.ID, h.URL)
	assert.Equal(t, "image/jpeg", h.MIME)

	got, err := m.Handle(h.ID)
	require.NoError(t, err)
	assert.Equal(t, h.ID, got.ID)
}

func TestOpenByURL(t *testing.T) {
	m, _, _ := newTestManager()
	m.Seed([]domain.Message{{ID: "m", Attachments: []domain.Attachment{{ID: "a", Type: domain.AttachmentVoice, URL: "https://x/v.ogg"}}}})

	h, err := m.Open(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "https://x/v.ogg", h.URL)
	assert.Nil(t, h.Data)
}

func TestOpenErrors(t *testing.T) {
	m, _, clk := newTestManager()
	ctx := context.Background()
	m.Seed([]domain.Message{{ID: "m", Attachments: []domain.Attachment{
		{ID: "missing", Type: domain.AttachmentImage, StorageKey: "nope"},
		{ID: "loc", Type: domain.AttachmentLocation, Latitude: ptr(1.0), Longitude: ptr(2.0)},
		vanishing("old", "k", clk.Now()),
	}}})

	_, err := m.Open(ctx, "unknown")
	assert.ErrorIs(t, err, ErrAttachmentNotFound)
	_, err = m.Open(ctx, "old")
	assert.ErrorIs(t, err, ErrAttachmentNotFound, "expired attachments are not opened")
	_, err = m.Open(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = m.Open(ctx, "loc")
	assert.ErrorIs(t, err, ErrNoMedia)
	assert.Zero(t, m.Handles())
}

func TestHandleRevokedOnExpiry(t *testing.T) {
	m, st, clk := newTestManager()
	ctx := context.Background()
	require.NoError(t, st.Put(ctx, "k", []byte("v")))
	m.Seed([]domain.Message{{ID: "m", Body: "x", Attachments: []domain.Attachment{vanishing("a", "k", clk.Now().Add(time.Second))}}})

	h, err := m.Open(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, m.Handles())

	clk.Advance(time.Second)
	m.Sweep(ctx)
	_, err = m.Handle(h.ID)
	assert.ErrorIs(t, err, ErrHandleNotFound)
	assert.Zero(t, m.Handles())
}

func TestHandleRevokedOnRemoveAndReseed(t *testing.T) {
	m, st, _ := newTestManager()
	ctx := context.Background()
	require.NoError(t, st.Put(ctx, "k1", []byte("1")))
	require.NoError(t, st.Put(ctx, "k2", []byte("2")))
	m.Seed([]domain.Message{
		{ID: "m1", Body: "x", Attachments: []domain.Attachment{{ID: "a1", Type: domain.AttachmentImage, StorageKey: "k1"}}},
		{ID: "m2", Body: "y", Attachments: []domain.Attachment{{ID: "a2", Type: domain.AttachmentImage, StorageKey: "k2"}}},
	})

	h1, err := m.Open(ctx, "a1")
	require.NoError(t, err)
	h2, err := m.Open(ctx, "a2")
	require.NoError(t, err)

	require.NoError(t, m.RemoveAttachment(ctx, "m1", "a1"))
	_, err = m.Handle(h1.ID)
	assert.ErrorIs(t, err, ErrHandleNotFound)

	m.Seed([]domain.Message{{ID: "m3", Body: "z"}})
	_, err = m.Handle(h2.ID)
	assert.ErrorIs(t, err, ErrHandleNotFound)
	assert.True(t, st.has("k2"), "reseeding does not delete blobs")
}

func TestOpenDropsHandleWhenAttachmentGoesAwayDuringLoad(t *testing.T) {
	m, st, _ := newTestManager()
	ctx := context.Background()
	require.NoError(t, st.Put(ctx, "k", []byte("v")))
	m.Seed([]domain.Message{{ID: "m", Body: "x", Attachments: []domain.Attachment{{ID: "a", Type: domain.AttachmentImage, StorageKey: "k"}}}})

	st.getHook = func(string) {
		// the manager lock is not held during the load
		m.Seed(nil)
	}
	_, err := m.Open(ctx, "a")
	assert.ErrorIs(t, err, ErrAttachmentNotFound)
	assert.Zero(t, m.Handles())
}

func TestRelease(t *testing.T) {
	m, _, _ := newTestManager()
	m.Seed([]domain.Message{{ID: "m", Attachments: []domain.Attachment{{ID: "a", Type: domain.AttachmentVoice, URL: "u"}}}})
	h, err := m.Open(context.Background(), "a")
	require.NoError(t, err)

	require.NoError(t, m.Release(h.ID))
	assert.ErrorIs(t, m.Release(h.ID), ErrHandleNotFound)
}

func TestAddReplacementReleasesDroppedAttachments(t *testing.T) {
	m, st, _ := newTestManager()
	ctx := context.Background()
	require.NoError(t, st.Put(ctx, "k1", []byte("1")))
	require.NoError(t, st.Put(ctx, "k2", []byte("2")))
	m.Add(domain.Message{ID: "m", Body: "x", Attachments: []domain.Attachment{
		{ID: "a1", Type: domain.AttachmentImage, StorageKey: "k1"},
		{ID: "a2", Type: domain.AttachmentImage, StorageKey: "k2"},
	}})
	h1, err := m.Open(ctx, "a1")
	require.NoError(t, err)
	h2, err := m.Open(ctx, "a2")
	require.NoError(t, err)

	m.Add(domain.Message{ID: "m", Body: "edited", Attachments: []domain.Attachment{
		{ID: "a2", Type: domain.AttachmentImage, StorageKey: "k2"},
	}})

	_, err = m.Handle(h1.ID)
	assert.ErrorIs(t, err, ErrHandleNotFound)
	assert.Equal(t, 1, st.deleteCount("k1"))
	assert.False(t, st.has("k1"))

	_, err = m.Handle(h2.ID)
	assert.NoError(t, err, "kept attachment keeps its handle")
	assert.Zero(t, st.deleteCount("k2"))
	assert.Len(t, m.Messages(), 1)
}
