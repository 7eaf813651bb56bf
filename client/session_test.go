package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wricardo/quizrooms/game/catalog"
	"github.com/wricardo/quizrooms/game/directory"
	"github.com/wricardo/quizrooms/game/protocol"
	"github.com/wricardo/quizrooms/game/registry"
	"github.com/wricardo/quizrooms/game/room"
	"github.com/wricardo/quizrooms/game/service"
	wstransport "github.com/wricardo/quizrooms/transport/websocket"
)

const waitTimeout = 3 * time.Second

// startServer runs a full room server over the shipped catalog and returns
// its websocket address
func startServer(t *testing.T) string {
	t.Helper()

	// goroutines here outlive individual assertions
	logger := zap.NewNop()

	questions, err := catalog.NewManager("../configs/catalog")
	require.NoError(t, err)

	rooms := registry.New(registry.Options{Logger: logger})
	router := service.NewRouter(service.Options{
		Registry:        rooms,
		Directory:       directory.New(),
		Content:         questions,
		Scorer:          catalog.NewScorer(questions),
		DefaultGameType: "trivia",
		Logger:          logger,
	})

	hub := wstransport.NewHub(router, wstransport.Options{Logger: logger})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(func() {
		srv.Close()
		hub.Close()
		cancel()
		rooms.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// recorder keeps every event a session dispatches
type recorder struct {
	mu     sync.Mutex
	events []Event
	pos    map[string]int
}

func record(s *Session) *recorder {
	r := &recorder{pos: make(map[string]int)}
	s.On(EventAny, func(ev Event) {
		r.mu.Lock()
		r.events = append(r.events, ev)
		r.mu.Unlock()
	})
	return r
}

// await returns the next unseen event of typ matching match
func (r *recorder) await(t *testing.T, typ string, match func(Event) bool) Event {
	t.Helper()

	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		for i := r.pos[typ]; i < len(r.events); i++ {
			ev := r.events[i]
			if ev.Type != typ {
				continue
			}
			if match == nil || match(ev) {
				r.pos[typ] = i + 1
				r.mu.Unlock()
				return ev
			}
		}
		r.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", typ)
	return Event{}
}

func (r *recorder) count(typ string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func snapshotOf(t *testing.T, ev Event) room.Snapshot {
	t.Helper()
	var p protocol.RoomUpdatePayload
	require.NoError(t, ev.Decode(&p))
	return p.Room
}

func withPlayers(t *testing.T, n int) func(Event) bool {
	return func(ev Event) bool {
		return len(snapshotOf(t, ev).Players) == n
	}
}

func allReady(t *testing.T) func(Event) bool {
	return func(ev Event) bool {
		snap := snapshotOf(t, ev)
		for _, p := range snap.Players {
			if !p.IsReady {
				return false
			}
		}
		return len(snap.Players) > 0
	}
}

func errorCode(t *testing.T, ev Event) string {
	t.Helper()
	var p protocol.ErrorPayload
	require.NoError(t, ev.Decode(&p))
	return p.Code
}

func connect(t *testing.T, addr string, opts Options) (*Session, *recorder) {
	t.Helper()
	s := New(opts)
	rec := record(s)
	require.NoError(t, s.Connect(context.Background(), addr))
	t.Cleanup(func() { s.Close() })
	rec.await(t, EventConnected, nil)
	return s, rec
}

// lobby creates a room hosted by ana and joined by beto
func lobby(t *testing.T, addr string, guestOpts Options) (host *Session, hostRec *recorder, guest *Session, guestRec *recorder, code string) {
	t.Helper()

	host, hostRec = connect(t, addr, Options{PlayerID: "ana"})
	require.NoError(t, host.CreateRoom("Ana", "trivia"))
	code = snapshotOf(t, hostRec.await(t, protocol.TypeRoomUpdate, nil)).Code
	require.Len(t, code, registry.DefaultCodeLength)

	guestOpts.PlayerID = "beto"
	guest, guestRec = connect(t, addr, guestOpts)
	require.NoError(t, guest.JoinRoom(strings.ToLower(code), "Beto"))
	guestRec.await(t, protocol.TypeRoomUpdate, withPlayers(t, 2))
	hostRec.await(t, protocol.TypeRoomUpdate, withPlayers(t, 2))
	return host, hostRec, guest, guestRec, code
}

// startGame readies both players and starts the first question. It returns
// the first question id.
func startGame(t *testing.T, host *Session, hostRec *recorder, guest *Session, guestRec *recorder) string {
	t.Helper()

	require.NoError(t, host.SetReady(true))
	require.NoError(t, guest.SetReady(true))
	hostRec.await(t, protocol.TypeRoomUpdate, allReady(t))

	require.NoError(t, host.StartGame())
	guestRec.await(t, protocol.TypeGameStart, nil)
	ev := hostRec.await(t, protocol.TypeGameStart, nil)

	var start protocol.GameStartPayload
	require.NoError(t, ev.Decode(&start))
	var q catalog.PublicQuestion
	require.NoError(t, json.Unmarshal(start.Question, &q))
	return q.ID
}

func TestSession_GameRound(t *testing.T) {
	addr := startServer(t)
	host, hostRec, guest, guestRec, code := lobby(t, addr, Options{})

	assert.Equal(t, code, host.RoomCode())
	assert.Equal(t, code, guest.RoomCode())

	// authority and readiness are checked before starting
	require.NoError(t, guest.StartGame())
	assert.Equal(t, protocol.CodeNotHost, errorCode(t, guestRec.await(t, protocol.TypeError, nil)))
	require.NoError(t, host.StartGame())
	assert.Equal(t, protocol.CodeNotAllReady, errorCode(t, hostRec.await(t, protocol.TypeError, nil)))

	qid := startGame(t, host, hostRec, guest, guestRec)
	assert.Equal(t, "trivia-capital-fr", qid)

	require.NoError(t, guest.SubmitAnswer(qid, " paris ", 0))
	var result protocol.AnswerResultPayload
	require.NoError(t, hostRec.await(t, protocol.TypeAnswerSubmit, nil).Decode(&result))
	assert.Equal(t, "beto", result.PlayerID)
	assert.Equal(t, 150, result.Points)
	assert.Equal(t, 150, result.Total)

	require.NoError(t, host.SubmitAnswer(qid, "Lyon", 1000))
	require.NoError(t, guestRec.await(t, protocol.TypeAnswerSubmit, func(ev Event) bool {
		return ev.PlayerID == "ana"
	}).Decode(&result))
	assert.Equal(t, 0, result.Points)

	require.NoError(t, host.NextQuestion())
	var next protocol.QuestionPayload
	require.NoError(t, guestRec.await(t, protocol.TypeQuestion, nil).Decode(&next))
	assert.Equal(t, 1, next.Index)
	assert.Equal(t, 5, next.Total)

	require.NoError(t, host.EndGame())
	for _, rec := range []*recorder{hostRec, guestRec} {
		var end protocol.GameEndPayload
		require.NoError(t, rec.await(t, protocol.TypeGameEnd, nil).Decode(&end))
		require.Len(t, end.Rankings, 2)
		assert.Equal(t, "beto", end.Rankings[0].PlayerID)
		assert.Equal(t, 150, end.Rankings[0].Score)
	}
}

func TestSession_LeaveRoom(t *testing.T) {
	addr := startServer(t)
	host, hostRec, guest, _, _ := lobby(t, addr, Options{})

	require.NoError(t, guest.LeaveRoom())
	assert.Empty(t, guest.RoomCode())

	snap := snapshotOf(t, hostRec.await(t, protocol.TypeRoomUpdate, withPlayers(t, 1)))
	assert.Equal(t, "ana", snap.Players[0].ID)
	assert.True(t, snap.Players[0].IsHost)

	// leaving twice is answered with an error, not a crash
	require.NoError(t, host.LeaveRoom())
	require.NoError(t, host.LeaveRoom())
	assert.Equal(t, protocol.CodeNotFound, errorCode(t, hostRec.await(t, protocol.TypeError, nil)))
}

func TestSession_AutoReconnectRejoins(t *testing.T) {
	addr := startServer(t)
	host, hostRec, guest, guestRec, code := lobby(t, addr, Options{
		AutoReconnect: true,
		BackoffMin:    10 * time.Millisecond,
		BackoffMax:    50 * time.Millisecond,
	})

	qid := startGame(t, host, hostRec, guest, guestRec)
	require.NoError(t, guest.SubmitAnswer(qid, "Paris", 0))
	guestRec.await(t, protocol.TypeAnswerSubmit, nil)

	dropConnection(guest)

	dropped := guestRec.await(t, EventDisconnected, nil)
	assert.Error(t, dropped.Err)
	guestRec.await(t, EventReconnected, nil)

	// the rejoin is answered with a snapshot of the game in progress
	snap := snapshotOf(t, guestRec.await(t, protocol.TypeRoomUpdate, func(ev Event) bool {
		return snapshotOf(t, ev).Status == room.StatusPlaying
	}))
	assert.Equal(t, code, snap.Code)
	require.Len(t, snap.Players, 2)
	for _, p := range snap.Players {
		if p.ID == "beto" {
			assert.Equal(t, 150, p.Score)
		}
	}
	assert.Equal(t, code, guest.RoomCode())

	// the new connection carries commands again
	require.NoError(t, host.NextQuestion())
	guestRec.await(t, protocol.TypeQuestion, nil)
}

func TestSession_NoReconnectByDefault(t *testing.T) {
	addr := startServer(t)
	_, hostRec, guest, guestRec, code := lobby(t, addr, Options{})

	dropConnection(guest)
	guestRec.await(t, EventDisconnected, nil)
	hostRec.await(t, protocol.TypeRoomUpdate, withPlayers(t, 1))

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, guestRec.count(EventReconnected))
	assert.ErrorIs(t, guest.SetReady(true), ErrNotConnected)

	require.NoError(t, guest.Reconnect(context.Background()))
	guestRec.await(t, EventReconnected, nil)
	snap := snapshotOf(t, guestRec.await(t, protocol.TypeRoomUpdate, withPlayers(t, 2)))
	assert.Equal(t, code, snap.Code)
}

func TestSession_ReconnectGivesUp(t *testing.T) {
	s := New(Options{MaxAttempts: 2, BackoffMin: time.Millisecond, BackoffMax: 2 * time.Millisecond})
	s.addr = "ws://127.0.0.1:1/ws"

	err := s.Reconnect(context.Background())
	assert.ErrorIs(t, err, ErrReconnectFailed)
}

func TestSession_NotConnected(t *testing.T) {
	s := New(Options{})
	assert.NotEmpty(t, s.PlayerID())

	assert.ErrorIs(t, s.CreateRoom("Ana", ""), ErrNotConnected)
	assert.ErrorIs(t, s.Reconnect(context.Background()), ErrNotConnected)

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.JoinRoom("ABC123", "Ana"), ErrClosed)
	assert.ErrorIs(t, s.Connect(context.Background(), "ws://127.0.0.1:1/ws"), ErrClosed)
}

func TestSession_TracksRoomCode(t *testing.T) {
	s := New(Options{PlayerID: "ana"})

	update := func(code string, ids ...string) protocol.Envelope {
		snap := room.Snapshot{Code: code}
		for _, id := range ids {
			snap.Players = append(snap.Players, room.Player{ID: id})
		}
		data, err := protocol.Encode(protocol.TypeRoomUpdate, "", protocol.RoomUpdatePayload{Room: snap})
		require.NoError(t, err)
		env, err := protocol.Decode(data)
		require.NoError(t, err)
		return env
	}

	s.track(update("ABC123", "beto"))
	assert.Empty(t, s.RoomCode(), "snapshots without this player are ignored")

	s.track(update("ABC123", "beto", "ana"))
	assert.Equal(t, "ABC123", s.RoomCode())

	data, err := protocol.Encode(protocol.TypeRoomClosed, "", protocol.RoomClosedPayload{Code: "abc123", Reason: "idle"})
	require.NoError(t, err)
	env, err := protocol.Decode(data)
	require.NoError(t, err)
	s.track(env)
	assert.Empty(t, s.RoomCode())
}

func TestEvents_OrderAndOff(t *testing.T) {
	s := New(Options{})
	var calls []string
	handler := func(name string) Handler {
		return func(Event) { calls = append(calls, name) }
	}

	first := s.On("question", handler("first"))
	second := s.On("question", handler("second"))
	s.On("question", handler("third"))
	s.On(EventAny, handler("any"))
	s.On("game_end", handler("other"))

	s.events.dispatch(Event{Type: "question"})
	assert.Equal(t, []string{"first", "second", "third", "any"}, calls)

	calls = nil
	assert.True(t, s.Off("question", second))
	assert.False(t, s.Off("question", second))
	assert.False(t, s.Off("game_end", first), "ids are bound to their event type")

	s.events.dispatch(Event{Type: "question"})
	assert.Equal(t, []string{"first", "third", "any"}, calls)
}

func TestEvents_OffDuringDispatch(t *testing.T) {
	s := New(Options{})
	var calls []string

	var self HandlerID
	self = s.On("room_update", func(Event) {
		calls = append(calls, "once")
		s.Off("room_update", self)
	})
	s.On("room_update", func(Event) { calls = append(calls, "always") })

	s.events.dispatch(Event{Type: "room_update"})
	s.events.dispatch(Event{Type: "room_update"})
	assert.Equal(t, []string{"once", "always", "always"}, calls)
}

// dropConnection kills the transport under the session without a close
// handshake
func dropConnection(s *Session) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	conn.UnderlyingConn().Close()
}
