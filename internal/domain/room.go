package domain

import (
	"errors"
	"strings"
)

const MaxRoomNameLen = 36

var (
	ErrRoomNameEmpty   = errors.New("room name empty")
	ErrRoomNameTooLong = errors.New("room name too long")
)

// RoomName is a signaling namespace both call participants join.
type RoomName string

// NewRoomName validates a user-supplied room name. Surrounding whitespace is
// ignored.
func NewRoomName(raw string) (RoomName, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", ErrRoomNameEmpty
	}
	if len(name) > MaxRoomNameLen {
		return "", ErrRoomNameTooLong
	}
	return RoomName(name), nil
}

func (r RoomName) String() string { return string(r) }
