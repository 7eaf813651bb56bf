package protocol

import (
	"errors"

	"github.com/wricardo/quizrooms/game/registry"
	"github.com/wricardo/quizrooms/game/room"
)

// Error codes reported in ErrorPayload.Code
const (
	CodeNotFound           = "NotFound"
	CodeRoomFull           = "RoomFull"
	CodeWrongState         = "WrongState"
	CodeNotHost            = "NotHost"
	CodeNotAllReady        = "NotAllReady"
	CodeMalformedMessage   = "MalformedMessage"
	CodeScoringUnavailable = "ScoringCollaboratorUnavailable"
	CodeCapacityExceeded   = "CapacityExceeded"
	CodeRateLimited        = "RateLimited"
	CodeInternal           = "Internal"
)

var (
	ErrUnknownType        = errors.New("unknown message type")
	ErrNotInRoom          = errors.New("not in a room")
	ErrScoringUnavailable = errors.New("scoring collaborator unavailable")
	ErrRateLimited        = errors.New("too many messages")
)

// CodeFor maps an error to its wire code
func CodeFor(err error) string {
	switch {
	case errors.Is(err, room.ErrNotFound),
		errors.Is(err, room.ErrStopped),
		errors.Is(err, room.ErrPlayerNotFound),
		errors.Is(err, ErrNotInRoom):
		return CodeNotFound
	case errors.Is(err, room.ErrRoomFull):
		return CodeRoomFull
	case errors.Is(err, room.ErrWrongState):
		return CodeWrongState
	case errors.Is(err, room.ErrNotHost):
		return CodeNotHost
	case errors.Is(err, room.ErrNotAllReady):
		return CodeNotAllReady
	case errors.Is(err, ErrMalformed), errors.Is(err, ErrUnknownType):
		return CodeMalformedMessage
	case errors.Is(err, ErrScoringUnavailable):
		return CodeScoringUnavailable
	case errors.Is(err, registry.ErrCapacityExceeded):
		return CodeCapacityExceeded
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	default:
		return CodeInternal
	}
}
