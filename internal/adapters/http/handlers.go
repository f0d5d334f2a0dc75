package http

import (
	"errors"
	"net/http"

	"github.com/dkeye/parley/internal/app/attach"
	"github.com/dkeye/parley/internal/app/call"
	"github.com/dkeye/parley/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type joinRequest struct {
	Room string `json:"room"`
}

type startRequest struct {
	Mode domain.CallMode `json:"mode"`
}

type chatRequest struct {
	Message      string `json:"message" binding:"required"`
	SystemPrompt string `json:"systemPrompt"`
}

func (a *API) joinRoom(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if err := a.svc.Rooms.Join(req.Room); err != nil {
		fail(c, err)
		return
	}
	room, _ := a.svc.Rooms.Room()
	log.Info().Str("module", "adapters.http").Str("room", room.String()).Msg("joined room")
	c.JSON(http.StatusOK, gin.H{"room": room})
}

// leaveRoom ends any call before leaving so the peer is told while the
// transport can still send.
func (a *API) leaveRoom(c *gin.Context) {
	if err := a.svc.Calls.Hangup(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	a.svc.Rooms.Leave()
	c.Status(http.StatusNoContent)
}

func (a *API) getRoom(c *gin.Context) {
	room, joined := a.svc.Rooms.Room()
	c.JSON(http.StatusOK, gin.H{"room": room, "joined": joined})
}

func (a *API) getCall(c *gin.Context) {
	c.JSON(http.StatusOK, a.svc.Calls.Snapshot())
}

func (a *API) startCall(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.Mode.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be audio or video"})
		return
	}
	if err := a.svc.Calls.StartCall(c.Request.Context(), req.Mode); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a.svc.Calls.Snapshot())
}

func (a *API) hangup(c *gin.Context) {
	if err := a.svc.Calls.Hangup(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a.svc.Calls.Snapshot())
}

func (a *API) toggleAudio(c *gin.Context) {
	enabled, err := a.svc.Calls.ToggleAudio(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": enabled})
}

func (a *API) toggleVideo(c *gin.Context) {
	enabled, err := a.svc.Calls.ToggleVideo(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": enabled})
}

func (a *API) listMessages(c *gin.Context) {
	c.JSON(http.StatusOK, a.svc.Messages.Messages())
}

func (a *API) composeMessage(c *gin.Context) {
	var d attach.Draft
	if err := c.ShouldBindJSON(&d); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	msg, err := a.svc.Composer.Compose(c.Request.Context(), d)
	if err != nil {
		if msg.ID != "" {
			c.JSON(http.StatusBadGateway, gin.H{"error": "message not delivered", "message": msg})
			return
		}
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (a *API) removeMessage(c *gin.Context) {
	if err := a.svc.Messages.Remove(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) addAttachment(c *gin.Context) {
	var req attach.AttachRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	att, err := a.svc.Composer.Attach(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, att)
}

func (a *API) removeAttachment(c *gin.Context) {
	if err := a.svc.Messages.RemoveAttachment(c.Request.Context(), c.Param("id"), c.Param("att")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) openAttachment(c *gin.Context) {
	h, err := a.svc.Messages.Open(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h)
}

func (a *API) handleData(c *gin.Context) {
	h, err := a.svc.Messages.Handle(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if h.Data == nil {
		c.Redirect(http.StatusFound, h.URL)
		return
	}
	mime := h.MIME
	if mime == "" {
		mime = "application/octet-stream"
	}
	c.Data(http.StatusOK, mime, h.Data)
}

func (a *API) releaseHandle(c *gin.Context) {
	if err := a.svc.Messages.Release(c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}
	reply, err := a.svc.Chat.Chat(c.Request.Context(), req.Message, req.SystemPrompt)
	if err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("chat failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "chat unavailable"})
		return
	}
	c.JSON(http.StatusOK, reply)
}

// fail maps component errors onto status codes. Call failures keep their
// generic message.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrRoomNameEmpty), errors.Is(err, domain.ErrRoomNameTooLong),
		errors.Is(err, attach.ErrEmptyMessage), errors.Is(err, attach.ErrNoMedia),
		errors.Is(err, domain.ErrAttachmentSource), errors.Is(err, domain.ErrAttachmentName),
		errors.Is(err, domain.ErrAttachmentLocation):
		status = http.StatusBadRequest
	case errors.Is(err, attach.ErrMessageNotFound), errors.Is(err, attach.ErrAttachmentNotFound),
		errors.Is(err, attach.ErrHandleNotFound):
		status = http.StatusNotFound
	case errors.Is(err, call.ErrCallFailed):
		status = http.StatusBadGateway
	case errors.Is(err, call.ErrStopped), errors.Is(err, call.ErrAborted):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
