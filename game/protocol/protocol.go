// Package protocol defines the JSON envelope exchanged over the room
// connection, the message types in both directions, their payloads, and the
// error codes reported to clients.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wricardo/quizrooms/game/room"
)

// Inbound message types
const (
	TypeCreateRoom   = "create_room"
	TypeJoinRoom     = "join_room"
	TypeLeaveRoom    = "leave_room"
	TypePlayerReady  = "player_ready"
	TypeGameStart    = "game_start"
	TypeAnswerSubmit = "answer_submit"
	TypeNextQuestion = "next_question"
	TypeGameEnd      = "game_end"
)

// Outbound message types. game_start, answer_submit and game_end are reused
// for the broadcast that follows the matching inbound action.
const (
	TypeRoomUpdate = "room_update"
	TypeQuestion   = "question"
	TypeRoomClosed = "room_closed"
	TypeError      = "error"
)

// ErrMalformed wraps every decoding failure
var ErrMalformed = errors.New("malformed message")

// Envelope is the unit exchanged in both directions
type Envelope struct {
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	PlayerID string          `json:"playerId,omitempty"`
}

// CreateRoomPayload is the payload of create_room
type CreateRoomPayload struct {
	PlayerName string `json:"playerName"`
	GameType   string `json:"gameType,omitempty"`
}

// JoinRoomPayload is the payload of join_room
type JoinRoomPayload struct {
	RoomCode   string `json:"roomCode"`
	PlayerName string `json:"playerName"`
}

// ReadyPayload is the payload of player_ready. A missing flag means ready.
type ReadyPayload struct {
	IsReady *bool `json:"isReady,omitempty"`
}

// AnswerPayload is the payload of answer_submit. Points carries a delta
// computed by the caller and is only honored when no scorer is configured.
type AnswerPayload struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
	ElapsedMs  int64  `json:"elapsedMs"`
	Points     *int   `json:"points,omitempty"`
}

// RoomUpdatePayload carries a full room snapshot
type RoomUpdatePayload struct {
	Room room.Snapshot `json:"room"`
}

// GameStartPayload is broadcast when the host starts the game
type GameStartPayload struct {
	StartedAt      time.Time       `json:"startedAt"`
	QuestionIndex  int             `json:"questionIndex"`
	TotalQuestions int             `json:"totalQuestions"`
	Question       json.RawMessage `json:"question,omitempty"`
}

// QuestionPayload is broadcast when the host advances to the next question
type QuestionPayload struct {
	Index    int             `json:"index"`
	Total    int             `json:"total"`
	Question json.RawMessage `json:"question,omitempty"`
}

// AnswerResultPayload is broadcast after an answer has been scored
type AnswerResultPayload struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	QuestionID string `json:"questionId"`
	Points     int    `json:"points"`
	Total      int    `json:"total"`
}

// GameEndPayload carries the final rankings
type GameEndPayload struct {
	FinishedAt time.Time       `json:"finishedAt"`
	Rankings   []room.Standing `json:"rankings"`
}

// RoomClosedPayload tells members the room was dissolved by the server
type RoomClosedPayload struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// ErrorPayload is sent only to the connection that caused the error
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Decode parses a raw frame into an Envelope
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return env, nil
}

// DecodePayload unmarshals the envelope payload into v. An absent payload
// leaves v untouched.
func DecodePayload(env Envelope, v any) error {
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformed, env.Type, err)
	}
	return nil
}

// Encode builds a frame for typ with the given payload
func Encode(typ, playerID string, payload any) ([]byte, error) {
	env := Envelope{Type: typ, PlayerID: playerID}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", typ, err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

// EncodeError builds an error frame for err
func EncodeError(err error) []byte {
	data, marshalErr := Encode(TypeError, "", ErrorPayload{
		Message: err.Error(),
		Code:    CodeFor(err),
	})
	if marshalErr != nil {
		// ErrorPayload only holds strings
		return []byte(`{"type":"error","payload":{"message":"internal error"}}`)
	}
	return data
}
