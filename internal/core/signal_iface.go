package core

import (
	"context"

	"github.com/dkeye/parley/internal/domain"
)

// SignalTransport carries signaling payloads for the joined room.
type SignalTransport interface {
	// Room returns the joined room, if any.
	Room() (domain.RoomName, bool)
	// Send posts a payload to the joined room without waiting. It is a no-op
	// when no room is joined.
	Send(ctx context.Context, p domain.SignalPayload)
	// Subscribe delivers room messages in id order until cancel is called.
	Subscribe() (<-chan domain.SignalingMessage, func())
}
