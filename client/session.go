package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"github.com/wricardo/quizrooms/game/protocol"
	"github.com/wricardo/quizrooms/game/registry"
)

const (
	writeWait = 10 * time.Second

	DefaultBackoffMin    = 250 * time.Millisecond
	DefaultBackoffMax    = 10 * time.Second
	DefaultBackoffFactor = 2
	DefaultMaxAttempts   = 8
)

var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrClosed           = errors.New("session closed")
	ErrReconnectFailed  = errors.New("reconnect failed")
)

// Options configures a Session. Zero values select defaults.
type Options struct {
	// PlayerID is sent with every command. A random uuid is used when empty.
	PlayerID string

	// AutoReconnect redials and rejoins the last room after the connection
	// drops. Off by default.
	AutoReconnect bool

	BackoffMin    time.Duration
	BackoffMax    time.Duration
	BackoffFactor float64
	MaxAttempts   int

	Dialer *websocket.Dialer
	Header http.Header
	Logger *zap.Logger
}

// Session is one player's connection to a quiz room server
type Session struct {
	opts     Options
	playerID string
	logger   *zap.Logger
	events   *events

	writeMu sync.Mutex

	mu         sync.Mutex
	conn       *websocket.Conn
	addr       string
	roomCode   string
	playerName string
	closed     bool
}

// New creates a Session. It does not connect.
func New(opts Options) *Session {
	if opts.PlayerID == "" {
		opts.PlayerID = uuid.NewString()
	}
	if opts.BackoffMin <= 0 {
		opts.BackoffMin = DefaultBackoffMin
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = DefaultBackoffMax
	}
	if opts.BackoffFactor <= 1 {
		opts.BackoffFactor = DefaultBackoffFactor
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Session{
		opts:     opts,
		playerID: opts.PlayerID,
		logger:   opts.Logger.With(zap.String("player", opts.PlayerID)),
		events:   newEvents(),
	}
}

// PlayerID returns the id this session acts as
func (s *Session) PlayerID() string {
	return s.playerID
}

// RoomCode returns the room the server last reported this player in, or ""
func (s *Session) RoomCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomCode
}

// On registers h for eventType. Handlers of one type run in registration
// order.
func (s *Session) On(eventType string, h Handler) HandlerID {
	return s.events.on(eventType, h)
}

// Off removes a handler registered with On
func (s *Session) Off(eventType string, id HandlerID) bool {
	return s.events.off(eventType, id)
}

// Connect dials the server's websocket endpoint, e.g. ws://host:8080/ws
func (s *Session) Connect(ctx context.Context, addr string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.conn != nil {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.addr = addr
	s.mu.Unlock()

	conn, err := s.dial(ctx, addr)
	if err != nil {
		return err
	}
	if err := s.install(conn); err != nil {
		return err
	}

	s.logger.Debug("connected", zap.String("addr", addr))
	s.events.dispatch(Event{Type: EventConnected, PlayerID: s.playerID})
	return nil
}

// Reconnect redials the last address with backoff and, when the player was
// in a room, joins it again. The server answers the join with a full
// room_update snapshot.
func (s *Session) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	addr := s.addr
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if addr == "" {
		return ErrNotConnected
	}

	b := &backoff.Backoff{
		Min:    s.opts.BackoffMin,
		Max:    s.opts.BackoffMax,
		Factor: s.opts.BackoffFactor,
		Jitter: true,
	}

	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		conn, err := s.dial(ctx, addr)
		if err == nil {
			if err := s.install(conn); err != nil {
				return err
			}
			s.logger.Info("reconnected", zap.Int("attempt", attempt))
			s.events.dispatch(Event{Type: EventReconnected, PlayerID: s.playerID})
			return s.rejoin()
		}
		lastErr = err

		wait := b.Duration()
		s.logger.Debug("reconnect attempt failed",
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", wait),
			zap.Error(err))

		if attempt == s.opts.MaxAttempts {
			break
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrReconnectFailed, s.opts.MaxAttempts, lastErr)
}

// Close ends the session and its connection. A closed Session cannot be
// reused.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil
	}

	s.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	return conn.Close()
}

// Room commands

// CreateRoom asks the server for a new room hosted by this player
func (s *Session) CreateRoom(name, gameType string) error {
	s.setName(name)
	return s.send(protocol.TypeCreateRoom, protocol.CreateRoomPayload{PlayerName: name, GameType: gameType})
}

// JoinRoom joins the room with the given code
func (s *Session) JoinRoom(code, name string) error {
	s.setName(name)
	return s.send(protocol.TypeJoinRoom, protocol.JoinRoomPayload{
		RoomCode:   registry.NormalizeCode(code),
		PlayerName: name,
	})
}

// LeaveRoom leaves the current room
func (s *Session) LeaveRoom() error {
	if err := s.send(protocol.TypeLeaveRoom, nil); err != nil {
		return err
	}
	s.mu.Lock()
	s.roomCode = ""
	s.mu.Unlock()
	return nil
}

// SetReady flags the player ready or not ready
func (s *Session) SetReady(ready bool) error {
	return s.send(protocol.TypePlayerReady, protocol.ReadyPayload{IsReady: &ready})
}

// SubmitAnswer answers the current question
func (s *Session) SubmitAnswer(questionID, answer string, elapsedMs int64) error {
	return s.send(protocol.TypeAnswerSubmit, protocol.AnswerPayload{
		QuestionID: questionID,
		Answer:     answer,
		ElapsedMs:  elapsedMs,
	})
}

// SubmitScoredAnswer answers with points computed by the caller. The server
// only honors them when it has no scorer configured.
func (s *Session) SubmitScoredAnswer(questionID, answer string, elapsedMs int64, points int) error {
	return s.send(protocol.TypeAnswerSubmit, protocol.AnswerPayload{
		QuestionID: questionID,
		Answer:     answer,
		ElapsedMs:  elapsedMs,
		Points:     &points,
	})
}

// StartGame starts the game. Host only.
func (s *Session) StartGame() error {
	return s.send(protocol.TypeGameStart, nil)
}

// NextQuestion advances to the next question. Host only.
func (s *Session) NextQuestion() error {
	return s.send(protocol.TypeNextQuestion, nil)
}

// EndGame finishes the game early. Host only.
func (s *Session) EndGame() error {
	return s.send(protocol.TypeGameEnd, nil)
}

func (s *Session) setName(name string) {
	s.mu.Lock()
	s.playerName = name
	s.mu.Unlock()
}

func (s *Session) rejoin() error {
	s.mu.Lock()
	code, name := s.roomCode, s.playerName
	s.mu.Unlock()

	if code == "" {
		return nil
	}
	return s.JoinRoom(code, name)
}

func (s *Session) dial(ctx context.Context, addr string) (*websocket.Conn, error) {
	conn, resp, err := s.opts.Dialer.DialContext(ctx, addr, s.opts.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial %s: %s: %w", addr, resp.Status, err)
		}
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	return conn, nil
}

// install makes conn the current connection and starts reading from it
func (s *Session) install(conn *websocket.Conn) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	prev := s.conn
	s.conn = conn
	s.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	go s.readLoop(conn)
	return nil
}

func (s *Session) send(typ string, payload any) error {
	data, err := protocol.Encode(typ, s.playerID, payload)
	if err != nil {
		return err
	}

	s.mu.Lock()
	conn := s.conn
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if conn == nil {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send %s: %w", typ, err)
	}
	return nil
}

func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			s.lost(conn, err)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		env, err := protocol.Decode(data)
		if err != nil {
			s.logger.Warn("dropping undecodable frame", zap.Error(err))
			continue
		}
		s.track(env)
		s.events.dispatch(Event{Type: env.Type, PlayerID: env.PlayerID, Payload: env.Payload})
	}
}

// track follows the room this player belongs to from server events
func (s *Session) track(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeRoomUpdate:
		var p protocol.RoomUpdatePayload
		if protocol.DecodePayload(env, &p) != nil {
			return
		}
		for _, player := range p.Room.Players {
			if player.ID == s.playerID {
				s.mu.Lock()
				s.roomCode = p.Room.Code
				s.mu.Unlock()
				return
			}
		}
	case protocol.TypeRoomClosed:
		var p protocol.RoomClosedPayload
		if protocol.DecodePayload(env, &p) != nil {
			return
		}
		s.mu.Lock()
		if registry.NormalizeCode(p.Code) == s.roomCode {
			s.roomCode = ""
		}
		s.mu.Unlock()
	}
}

// lost handles the end of conn. Ends of replaced connections are ignored.
func (s *Session) lost(conn *websocket.Conn, err error) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	closed := s.closed
	s.mu.Unlock()
	conn.Close()

	ev := Event{Type: EventDisconnected, PlayerID: s.playerID}
	if !closed {
		ev.Err = err
		s.logger.Info("connection lost", zap.Error(err))
	}
	s.events.dispatch(ev)

	if closed || !s.opts.AutoReconnect {
		return
	}
	go func() {
		if err := s.Reconnect(context.Background()); err != nil {
			s.logger.Warn("giving up on reconnect", zap.Error(err))
			s.events.dispatch(Event{Type: EventDisconnected, PlayerID: s.playerID, Err: err})
		}
	}()
}
