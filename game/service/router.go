package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wricardo/quizrooms/game/directory"
	"github.com/wricardo/quizrooms/game/protocol"
	"github.com/wricardo/quizrooms/game/registry"
	"github.com/wricardo/quizrooms/game/results"
	"github.com/wricardo/quizrooms/game/room"
)

// DefaultScoreTimeout bounds a single Scorer call
const DefaultScoreTimeout = 2 * time.Second

var errPanicked = errors.New("room operation failed")

// Content supplies the questions of each game type. Implementations must
// answer from memory; they are called on the room goroutine.
type Content interface {
	// QuestionCount returns the number of questions, 0 when unknown
	QuestionCount(gameType string) int

	// Question returns the public payload of question index
	Question(gameType string, index int) (json.RawMessage, error)
}

// Scorer grades one answer and returns the score delta
type Scorer interface {
	Score(ctx context.Context, questionID, answer string, elapsedMs int64) (int, error)
}

// Observer counts routed traffic
type Observer interface {
	Message(typ string)
	Error(code string)
	Broadcast(typ string)
}

type nopObserver struct{}

func (nopObserver) Message(string)   {}
func (nopObserver) Error(string)     {}
func (nopObserver) Broadcast(string) {}

// Options configures a Router. Registry and Directory are required.
type Options struct {
	Registry        *registry.Registry
	Directory       *directory.Directory
	Content         Content
	Scorer          Scorer
	Results         results.Recorder
	DefaultGameType string
	ScoreTimeout    time.Duration
	Logger          *zap.Logger
	Metrics         Observer
	Now             func() time.Time
}

// Router dispatches inbound messages to rooms
type Router struct {
	rooms        *registry.Registry
	dir          *directory.Directory
	content      Content
	scorer       Scorer
	results      results.Recorder
	gameType     string
	scoreTimeout time.Duration
	logger       *zap.Logger
	metrics      Observer
	now          func() time.Time
}

// NewRouter creates a Router from opts
func NewRouter(opts Options) *Router {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopObserver{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ScoreTimeout <= 0 {
		opts.ScoreTimeout = DefaultScoreTimeout
	}

	return &Router{
		rooms:        opts.Registry,
		dir:          opts.Directory,
		content:      opts.Content,
		scorer:       opts.Scorer,
		results:      opts.Results,
		gameType:     opts.DefaultGameType,
		scoreTimeout: opts.ScoreTimeout,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		now:          opts.Now,
	}
}

// HandleMessage decodes one inbound frame from conn and applies it. Errors
// are answered to conn only.
func (r *Router) HandleMessage(ctx context.Context, conn directory.Conn, data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		r.replyError(conn, err)
		return
	}
	r.metrics.Message(env.Type)

	switch env.Type {
	case protocol.TypeCreateRoom:
		err = r.createRoom(ctx, conn, env)
	case protocol.TypeJoinRoom:
		err = r.joinRoom(ctx, conn, env)
	case protocol.TypeLeaveRoom:
		err = r.leaveRoom(ctx, conn, env)
	case protocol.TypePlayerReady:
		err = r.playerReady(ctx, conn, env)
	case protocol.TypeGameStart:
		err = r.gameStart(ctx, conn, env)
	case protocol.TypeAnswerSubmit:
		err = r.answerSubmit(ctx, conn, env)
	case protocol.TypeNextQuestion:
		err = r.nextQuestion(ctx, conn, env)
	case protocol.TypeGameEnd:
		err = r.gameEnd(ctx, conn, env)
	default:
		err = fmt.Errorf("%w: %q", protocol.ErrUnknownType, env.Type)
	}

	if err != nil {
		r.replyError(conn, err)
	}
}

// HandleDisconnect removes the player bound to conn from its room. A
// connection whose player has since been bound elsewhere changes nothing.
func (r *Router) HandleDisconnect(ctx context.Context, conn directory.Conn) {
	b, ok := r.dir.Release(conn)
	if !ok {
		return
	}

	r.logger.Debug("player disconnected",
		zap.String("player", b.PlayerID),
		zap.String("room", b.RoomCode),
		zap.String("conn", conn.ID()))

	if err := r.removeFromRoom(ctx, b.PlayerID, b.RoomCode); err != nil {
		r.logger.Debug("disconnect cleanup skipped",
			zap.String("player", b.PlayerID),
			zap.String("room", b.RoomCode),
			zap.Error(err))
	}
}

func (r *Router) createRoom(ctx context.Context, conn directory.Conn, env protocol.Envelope) error {
	var p protocol.CreateRoomPayload
	if err := protocol.DecodePayload(env, &p); err != nil {
		return err
	}
	name := strings.TrimSpace(p.PlayerName)
	if name == "" {
		return fmt.Errorf("%w: playerName is required", protocol.ErrMalformed)
	}
	gameType := strings.TrimSpace(p.GameType)
	if gameType == "" {
		gameType = r.gameType
	}

	id := r.joinIdentity(conn, env)
	displaced := r.displacedBy(conn, id, "")

	actor, err := r.rooms.CreateRoom(gameType, room.Player{ID: id, Name: name})
	if err != nil {
		return err
	}

	err = r.do(ctx, actor, func(rm *room.Room) error {
		r.dir.Bind(id, conn, rm.Code)
		r.broadcastSnapshot(rm, id)
		return nil
	})
	if err != nil {
		r.dir.UnbindIf(id, actor.Code())
		r.rooms.DeleteActor(actor)
		return err
	}

	r.logger.Info("room created",
		zap.String("room", actor.Code()),
		zap.String("game_type", gameType),
		zap.String("host", id))

	r.leaveDisplaced(ctx, displaced)
	return nil
}

func (r *Router) joinRoom(ctx context.Context, conn directory.Conn, env protocol.Envelope) error {
	var p protocol.JoinRoomPayload
	if err := protocol.DecodePayload(env, &p); err != nil {
		return err
	}
	code := registry.NormalizeCode(p.RoomCode)
	if code == "" {
		return fmt.Errorf("%w: roomCode is required", protocol.ErrMalformed)
	}
	name := strings.TrimSpace(p.PlayerName)

	actor, err := r.rooms.GetRoom(code)
	if err != nil {
		return err
	}

	id := r.joinIdentity(conn, env)
	displaced := r.displacedBy(conn, id, code)

	err = r.do(ctx, actor, func(rm *room.Room) error {
		if !rm.HasPlayer(id) {
			if name == "" {
				return fmt.Errorf("%w: playerName is required", protocol.ErrMalformed)
			}
			if rm.IsFull() {
				return room.ErrRoomFull
			}
			if rm.Status != room.StatusWaiting && !rm.IsReturning(id) {
				return room.ErrWrongState
			}
		}
		if err := rm.AddPlayer(room.Player{ID: id, Name: name}, r.now()); err != nil {
			return err
		}
		r.dir.Bind(id, conn, rm.Code)
		r.broadcastSnapshot(rm, id)
		return nil
	})
	if err != nil {
		return err
	}

	r.logger.Debug("player joined", zap.String("room", code), zap.String("player", id))
	r.leaveDisplaced(ctx, displaced)
	return nil
}

func (r *Router) leaveRoom(ctx context.Context, conn directory.Conn, env protocol.Envelope) error {
	id, b, err := r.member(conn, env)
	if err != nil {
		return err
	}
	if !r.dir.UnbindIf(id, b.RoomCode) {
		return protocol.ErrNotInRoom
	}

	r.logger.Debug("player left", zap.String("room", b.RoomCode), zap.String("player", id))
	return r.removeFromRoom(ctx, id, b.RoomCode)
}

func (r *Router) playerReady(ctx context.Context, conn directory.Conn, env protocol.Envelope) error {
	var p protocol.ReadyPayload
	if err := protocol.DecodePayload(env, &p); err != nil {
		return err
	}
	ready := p.IsReady == nil || *p.IsReady

	return r.inRoom(ctx, conn, env, func(rm *room.Room, id string) error {
		if err := rm.SetReady(id, ready, r.now()); err != nil {
			return err
		}
		r.broadcastSnapshot(rm, id)
		return nil
	})
}

func (r *Router) gameStart(ctx context.Context, conn directory.Conn, env protocol.Envelope) error {
	return r.inRoom(ctx, conn, env, func(rm *room.Room, id string) error {
		switch {
		case !rm.IsHost(id):
			return room.ErrNotHost
		case rm.Status != room.StatusWaiting:
			return room.ErrWrongState
		case !rm.AllReady():
			return room.ErrNotAllReady
		}

		now := r.now()
		if err := rm.Start(now, r.questionCount(rm.GameType)); err != nil {
			return err
		}
		r.broadcast(rm, protocol.TypeGameStart, id, protocol.GameStartPayload{
			StartedAt:      rm.StartedAt,
			QuestionIndex:  rm.CurrentQuestionIndex,
			TotalQuestions: rm.TotalQuestions,
			Question:       r.question(rm, 0),
		})
		r.logger.Info("game started",
			zap.String("room", rm.Code),
			zap.Int("players", rm.Len()),
			zap.Int("questions", rm.TotalQuestions))
		return nil
	})
}

func (r *Router) answerSubmit(ctx context.Context, conn directory.Conn, env protocol.Envelope) error {
	var p protocol.AnswerPayload
	if err := protocol.DecodePayload(env, &p); err != nil {
		return err
	}
	if strings.TrimSpace(p.QuestionID) == "" {
		return fmt.Errorf("%w: questionId is required", protocol.ErrMalformed)
	}

	id, b, err := r.member(conn, env)
	if err != nil {
		return err
	}
	actor, err := r.rooms.GetRoom(b.RoomCode)
	if err != nil {
		return err
	}

	// reject before consulting the scorer
	err = r.do(ctx, actor, func(rm *room.Room) error {
		if !rm.Touch(id, r.now()) {
			return room.ErrPlayerNotFound
		}
		if rm.Status != room.StatusPlaying {
			return room.ErrWrongState
		}
		return nil
	})
	if err != nil {
		return err
	}

	delta, err := r.score(ctx, b.RoomCode, id, p)
	if err != nil {
		return err
	}

	return r.do(ctx, actor, func(rm *room.Room) error {
		player, err := rm.ApplyScore(id, delta, r.now())
		if err != nil {
			return err
		}
		r.broadcast(rm, protocol.TypeAnswerSubmit, id, protocol.AnswerResultPayload{
			PlayerID:   id,
			PlayerName: player.Name,
			QuestionID: p.QuestionID,
			Points:     delta,
			Total:      player.Score,
		})
		return nil
	})
}

func (r *Router) nextQuestion(ctx context.Context, conn directory.Conn, env protocol.Envelope) error {
	var result *results.Result

	err := r.inRoom(ctx, conn, env, func(rm *room.Room, id string) error {
		switch {
		case !rm.IsHost(id):
			return room.ErrNotHost
		case rm.Status != room.StatusPlaying:
			return room.ErrWrongState
		}

		index, more, err := rm.AdvanceQuestion()
		if err != nil {
			return err
		}
		if more {
			r.broadcast(rm, protocol.TypeQuestion, id, protocol.QuestionPayload{
				Index:    index,
				Total:    rm.TotalQuestions,
				Question: r.question(rm, index),
			})
			return nil
		}

		res, err := r.finish(rm, id)
		if err != nil {
			return err
		}
		result = &res
		return nil
	})
	if err != nil {
		return err
	}

	if result != nil {
		r.record(ctx, *result)
	}
	return nil
}

func (r *Router) gameEnd(ctx context.Context, conn directory.Conn, env protocol.Envelope) error {
	var result results.Result

	err := r.inRoom(ctx, conn, env, func(rm *room.Room, id string) error {
		switch {
		case !rm.IsHost(id):
			return room.ErrNotHost
		case rm.Status != room.StatusPlaying:
			return room.ErrWrongState
		}

		res, err := r.finish(rm, id)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return err
	}

	r.record(ctx, result)
	return nil
}

// finish must run on the room goroutine
func (r *Router) finish(rm *room.Room, by string) (results.Result, error) {
	rankings, err := rm.Finish(r.now())
	if err != nil {
		return results.Result{}, err
	}

	r.broadcast(rm, protocol.TypeGameEnd, by, protocol.GameEndPayload{
		FinishedAt: rm.FinishedAt,
		Rankings:   rankings,
	})
	r.logger.Info("game finished", zap.String("room", rm.Code), zap.Int("players", rm.Len()))

	return results.Result{
		RoomCode:   rm.Code,
		GameType:   rm.GameType,
		StartedAt:  rm.StartedAt,
		FinishedAt: rm.FinishedAt,
		Rankings:   rankings,
	}, nil
}

func (r *Router) record(ctx context.Context, res results.Result) {
	if r.results == nil {
		return
	}
	if err := r.results.Record(ctx, res); err != nil {
		r.logger.Warn("failed to record result", zap.String("room", res.RoomCode), zap.Error(err))
	}
}

func (r *Router) score(ctx context.Context, code, id string, p protocol.AnswerPayload) (int, error) {
	if r.scorer == nil {
		if p.Points == nil {
			return 0, protocol.ErrScoringUnavailable
		}
		return *p.Points, nil
	}

	sctx, cancel := context.WithTimeout(ctx, r.scoreTimeout)
	defer cancel()

	delta, err := r.scorer.Score(sctx, p.QuestionID, p.Answer, p.ElapsedMs)
	if err != nil {
		r.logger.Warn("scoring failed, awarding no points",
			zap.String("room", code),
			zap.String("player", id),
			zap.String("question", p.QuestionID),
			zap.Error(err))
		return 0, nil
	}
	return delta, nil
}

func (r *Router) questionCount(gameType string) int {
	if r.content == nil {
		return 0
	}
	return r.content.QuestionCount(gameType)
}

func (r *Router) question(rm *room.Room, index int) json.RawMessage {
	if r.content == nil {
		return nil
	}
	q, err := r.content.Question(rm.GameType, index)
	if err != nil {
		r.logger.Warn("question unavailable",
			zap.String("room", rm.Code),
			zap.String("game_type", rm.GameType),
			zap.Int("index", index),
			zap.Error(err))
		return nil
	}
	return q
}

// joinIdentity is the player id a create or join acts for
func (r *Router) joinIdentity(conn directory.Conn, env protocol.Envelope) string {
	if env.PlayerID != "" {
		return env.PlayerID
	}
	if id, ok := r.dir.LookupByConnection(conn); ok {
		return id
	}
	return conn.ID()
}

// member resolves the player acting through conn and its binding. The binding
// must belong to conn.
func (r *Router) member(conn directory.Conn, env protocol.Envelope) (string, directory.Binding, error) {
	id := env.PlayerID
	if id == "" {
		var ok bool
		if id, ok = r.dir.LookupByConnection(conn); !ok {
			return "", directory.Binding{}, protocol.ErrNotInRoom
		}
	}

	b, ok := r.dir.Lookup(id)
	if !ok || b.Conn.ID() != conn.ID() {
		return "", directory.Binding{}, protocol.ErrNotInRoom
	}
	return id, b, nil
}

// inRoom runs fn on the room of the player acting through conn, after
// recording the player's activity
func (r *Router) inRoom(ctx context.Context, conn directory.Conn, env protocol.Envelope, fn func(rm *room.Room, id string) error) error {
	id, b, err := r.member(conn, env)
	if err != nil {
		return err
	}
	actor, err := r.rooms.GetRoom(b.RoomCode)
	if err != nil {
		return err
	}

	return r.do(ctx, actor, func(rm *room.Room) error {
		if !rm.Touch(id, r.now()) {
			return room.ErrPlayerNotFound
		}
		return fn(rm, id)
	})
}

// do runs fn on the actor goroutine and returns its error
func (r *Router) do(ctx context.Context, actor *room.Actor, fn func(rm *room.Room) error) error {
	opErr := errPanicked
	if err := actor.Do(ctx, func(rm *room.Room) {
		opErr = fn(rm)
	}); err != nil {
		return err
	}
	return opErr
}

// displacedBy returns the bindings a successful create or join of id through
// conn into code will end
func (r *Router) displacedBy(conn directory.Conn, id, code string) []directory.Binding {
	var out []directory.Binding
	if b, ok := r.dir.Lookup(id); ok && b.RoomCode != code {
		out = append(out, b)
	}
	if other, ok := r.dir.LookupByConnection(conn); ok && other != id {
		if b, ok := r.dir.Lookup(other); ok {
			out = append(out, b)
		}
	}
	return out
}

func (r *Router) leaveDisplaced(ctx context.Context, displaced []directory.Binding) {
	for _, b := range displaced {
		if err := r.removeFromRoom(ctx, b.PlayerID, b.RoomCode); err != nil {
			r.logger.Debug("previous room cleanup skipped",
				zap.String("player", b.PlayerID),
				zap.String("room", b.RoomCode),
				zap.Error(err))
		}
	}
}

// removeFromRoom applies a departure: host succession, the update to the
// remaining members, or deletion of the emptied room
func (r *Router) removeFromRoom(ctx context.Context, id, code string) error {
	actor, err := r.rooms.GetRoom(code)
	if err != nil {
		return err
	}

	var removal room.Removal
	err = r.do(ctx, actor, func(rm *room.Room) error {
		var err error
		if removal, err = rm.RemovePlayer(id); err != nil {
			return err
		}
		if !removal.Empty {
			r.broadcastSnapshot(rm, id)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if removal.NewHostID != "" {
		r.logger.Debug("host promoted", zap.String("room", code), zap.String("host", removal.NewHostID))
	}
	if removal.Empty {
		r.rooms.DeleteActor(actor)
		r.logger.Info("room dissolved", zap.String("room", code), zap.String("reason", "empty"))
	}
	return nil
}

// ListRooms returns a snapshot of every live room
func (r *Router) ListRooms(ctx context.Context) ([]room.Snapshot, error) {
	actors := r.rooms.List()
	out := make([]room.Snapshot, 0, len(actors))

	for _, actor := range actors {
		var snap room.Snapshot
		err := actor.Do(ctx, func(rm *room.Room) {
			snap = rm.Snapshot()
		})
		if errors.Is(err, room.ErrStopped) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

// GetRoom returns a snapshot of the room with the given code
func (r *Router) GetRoom(ctx context.Context, code string) (room.Snapshot, error) {
	actor, err := r.rooms.GetRoom(code)
	if err != nil {
		return room.Snapshot{}, err
	}

	var snap room.Snapshot
	if err := actor.Do(ctx, func(rm *room.Room) {
		snap = rm.Snapshot()
	}); err != nil {
		if errors.Is(err, room.ErrStopped) {
			return room.Snapshot{}, room.ErrNotFound
		}
		return room.Snapshot{}, err
	}
	return snap, nil
}
