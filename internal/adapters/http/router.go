// Package http is the local control surface the UI talks to: room
// membership, call control, messages and a websocket event feed.
package http

import (
	"context"

	"github.com/dkeye/parley/internal/adapters/backend"
	"github.com/dkeye/parley/internal/app/attach"
	"github.com/dkeye/parley/internal/app/call"
	"github.com/dkeye/parley/internal/config"
	"github.com/dkeye/parley/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type Rooms interface {
	Join(raw string) error
	Leave()
	Room() (domain.RoomName, bool)
}

type Calls interface {
	StartCall(ctx context.Context, mode domain.CallMode) error
	Hangup(ctx context.Context) error
	ToggleAudio(ctx context.Context) (bool, error)
	ToggleVideo(ctx context.Context) (bool, error)
	Snapshot() call.Snapshot
	Subscribe() (<-chan call.Snapshot, func())
}

type Messages interface {
	Messages() []domain.Message
	Message(id string) (domain.Message, bool)
	Remove(ctx context.Context, messageID string) error
	RemoveAttachment(ctx context.Context, messageID, attachmentID string) error
	Open(ctx context.Context, attachmentID string) (attach.DisplayHandle, error)
	Handle(id string) (attach.DisplayHandle, error)
	Release(id string) error
	Subscribe() (<-chan attach.SweepResult, func())
}

type Composer interface {
	Compose(ctx context.Context, d attach.Draft) (domain.Message, error)
	Attach(ctx context.Context, messageID string, req attach.AttachRequest) (domain.Attachment, error)
}

type Chatter interface {
	Chat(ctx context.Context, message, systemPrompt string) (backend.ChatReply, error)
}

// Services is everything the API drives. Chat is optional.
type Services struct {
	Rooms    Rooms
	Calls    Calls
	Messages Messages
	Composer Composer
	Chat     Chatter
}

type API struct {
	svc Services
	ctx context.Context
}

func SetupRouter(ctx context.Context, cfg *config.Config, svc Services) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	a := &API{svc: svc, ctx: ctx}
	api := r.Group("/api")

	api.POST("/room/join", a.joinRoom)
	api.POST("/room/leave", a.leaveRoom)
	api.GET("/room", a.getRoom)

	api.GET("/call", a.getCall)
	api.POST("/call/start", a.startCall)
	api.POST("/call/hangup", a.hangup)
	api.POST("/call/toggle-audio", a.toggleAudio)
	api.POST("/call/toggle-video", a.toggleVideo)

	api.GET("/messages", a.listMessages)
	api.POST("/messages", a.composeMessage)
	api.DELETE("/messages/:id", a.removeMessage)
	api.POST("/messages/:id/attachments", a.addAttachment)
	api.DELETE("/messages/:id/attachments/:att", a.removeAttachment)

	api.GET("/attachments/:id", a.openAttachment)
	api.GET("/handles/:id", a.handleData)
	api.DELETE("/handles/:id", a.releaseHandle)

	if svc.Chat != nil {
		api.POST("/chat", a.chat)
	}

	api.GET("/events", a.events)

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
