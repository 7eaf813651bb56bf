package room

import "errors"

var (
	ErrNotFound       = errors.New("room not found")
	ErrRoomFull       = errors.New("room is full")
	ErrWrongState     = errors.New("action not allowed in current room state")
	ErrNotHost        = errors.New("only the host can do that")
	ErrNotAllReady    = errors.New("not all players are ready")
	ErrPlayerNotFound = errors.New("player not in room")
	ErrStopped        = errors.New("room actor stopped")
)
