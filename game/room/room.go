package room

import (
	"sort"
	"time"
)

// Status is the lifecycle state of a Room
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

// DefaultMaxPlayers is the roster capacity used when none is configured
const DefaultMaxPlayers = 6

// Player is one member of a Room roster
type Player struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	IsReady      bool      `json:"isReady"`
	IsHost       bool      `json:"isHost"`
	Score        int       `json:"score"`
	LastActivity time.Time `json:"lastActivity"`
}

// Room is the state of one game instance. Players is kept in join order.
type Room struct {
	Code                 string
	GameType             string
	Status               Status
	MaxPlayers           int
	Players              []*Player
	CurrentQuestionIndex int
	TotalQuestions       int
	CreatedAt            time.Time
	StartedAt            time.Time
	FinishedAt           time.Time

	// scores of players removed while playing, restored if they rejoin
	departed  map[string]int
	dissolved bool
}

// Snapshot is the full serializable state of a Room sent in room_update
type Snapshot struct {
	Code                 string     `json:"code"`
	GameType             string     `json:"gameType"`
	Status               Status     `json:"status"`
	MaxPlayers           int        `json:"maxPlayers"`
	CurrentQuestionIndex int        `json:"currentQuestionIndex"`
	TotalQuestions       int        `json:"totalQuestions"`
	CreatedAt            time.Time  `json:"createdAt"`
	StartedAt            *time.Time `json:"startedAt,omitempty"`
	FinishedAt           *time.Time `json:"finishedAt,omitempty"`
	Players              []Player   `json:"players"`
}

// Standing is one line of the final rankings
type Standing struct {
	Rank     int    `json:"rank"`
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
}

// Removal describes the outcome of RemovePlayer
type Removal struct {
	Player    Player
	WasHost   bool
	NewHostID string
	Empty     bool
}

// New creates a waiting room with host as its sole member
func New(code, gameType string, host Player, maxPlayers int, now time.Time) *Room {
	if maxPlayers <= 0 {
		maxPlayers = DefaultMaxPlayers
	}

	host.IsHost = true
	host.IsReady = false
	host.Score = 0
	host.LastActivity = now

	return &Room{
		Code:       code,
		GameType:   gameType,
		Status:     StatusWaiting,
		MaxPlayers: maxPlayers,
		Players:    []*Player{&host},
		CreatedAt:  now,
		departed:   make(map[string]int),
	}
}

// AddPlayer appends p to the roster. A player already on the roster is
// refreshed in place instead of being added twice.
func (r *Room) AddPlayer(p Player, now time.Time) error {
	if r.dissolved {
		return ErrNotFound
	}

	if existing := r.find(p.ID); existing != nil {
		if p.Name != "" {
			existing.Name = p.Name
		}
		existing.LastActivity = now
		return nil
	}

	if len(r.Players) >= r.MaxPlayers {
		return ErrRoomFull
	}

	p.IsHost = false
	p.IsReady = false
	p.Score = 0
	if score, ok := r.departed[p.ID]; ok {
		p.Score = score
		delete(r.departed, p.ID)
	}
	p.LastActivity = now

	r.Players = append(r.Players, &p)
	return nil
}

// RemovePlayer removes a player and promotes players[0] if the host left.
// Removing the last player dissolves the room.
func (r *Room) RemovePlayer(id string) (Removal, error) {
	idx := r.indexOf(id)
	if idx < 0 {
		return Removal{}, ErrPlayerNotFound
	}

	p := r.Players[idx]
	r.Players = append(r.Players[:idx], r.Players[idx+1:]...)

	res := Removal{Player: *p, WasHost: p.IsHost}
	if r.Status == StatusPlaying {
		r.departed[p.ID] = p.Score
	}

	if len(r.Players) == 0 {
		r.dissolved = true
		res.Empty = true
		return res, nil
	}

	if p.IsHost {
		r.Players[0].IsHost = true
		res.NewHostID = r.Players[0].ID
	}

	return res, nil
}

// SetReady sets the readiness flag of a player
func (r *Room) SetReady(id string, ready bool, now time.Time) error {
	p := r.find(id)
	if p == nil {
		return ErrPlayerNotFound
	}
	if r.Status != StatusWaiting {
		return ErrWrongState
	}

	p.IsReady = ready
	p.LastActivity = now
	return nil
}

// Start moves the room from waiting to playing and rewinds the question cursor
func (r *Room) Start(now time.Time, totalQuestions int) error {
	if r.Status != StatusWaiting || len(r.Players) == 0 {
		return ErrWrongState
	}

	r.Status = StatusPlaying
	r.CurrentQuestionIndex = 0
	if totalQuestions < 0 {
		totalQuestions = 0
	}
	r.TotalQuestions = totalQuestions
	r.StartedAt = now
	return nil
}

// AdvanceQuestion moves the cursor forward. more is false once the cursor has
// passed the last known question.
func (r *Room) AdvanceQuestion() (index int, more bool, err error) {
	if r.Status != StatusPlaying {
		return r.CurrentQuestionIndex, false, ErrWrongState
	}

	r.CurrentQuestionIndex++
	more = r.TotalQuestions == 0 || r.CurrentQuestionIndex < r.TotalQuestions
	return r.CurrentQuestionIndex, more, nil
}

// ApplyScore adds delta to a player's score and returns the updated player
func (r *Room) ApplyScore(id string, delta int, now time.Time) (Player, error) {
	p := r.find(id)
	if p == nil {
		return Player{}, ErrPlayerNotFound
	}
	if r.Status != StatusPlaying {
		return *p, ErrWrongState
	}

	p.Score += delta
	p.LastActivity = now
	return *p, nil
}

// Finish ends the game and returns the final rankings
func (r *Room) Finish(now time.Time) ([]Standing, error) {
	if r.Status != StatusPlaying {
		return nil, ErrWrongState
	}

	r.Status = StatusFinished
	r.FinishedAt = now
	return r.Rankings(), nil
}

// Rankings sorts players by score descending, ties broken by join order
func (r *Room) Rankings() []Standing {
	ordered := make([]*Player, len(r.Players))
	copy(ordered, r.Players)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Score > ordered[j].Score
	})

	standings := make([]Standing, len(ordered))
	for i, p := range ordered {
		standings[i] = Standing{
			Rank:     i + 1,
			PlayerID: p.ID,
			Name:     p.Name,
			Score:    p.Score,
		}
	}
	return standings
}

// Touch records activity for a player. It reports whether the player exists.
func (r *Room) Touch(id string, now time.Time) bool {
	p := r.find(id)
	if p == nil {
		return false
	}
	p.LastActivity = now
	return true
}

// Dissolve empties the roster and marks the room dead. It returns the ids of
// the players that were still present, in roster order.
func (r *Room) Dissolve() []string {
	ids := r.PlayerIDs()
	r.Players = nil
	r.dissolved = true
	return ids
}

// Dissolved reports whether the room has lost its last player
func (r *Room) Dissolved() bool {
	return r.dissolved
}

// Host returns the current host, or nil for a dissolved room
func (r *Room) Host() *Player {
	for _, p := range r.Players {
		if p.IsHost {
			return p
		}
	}
	return nil
}

// IsHost reports whether id is the current host
func (r *Room) IsHost(id string) bool {
	p := r.find(id)
	return p != nil && p.IsHost
}

// HasPlayer reports whether id is on the roster
func (r *Room) HasPlayer(id string) bool {
	return r.find(id) != nil
}

// IsReturning reports whether id left this room mid-game
func (r *Room) IsReturning(id string) bool {
	_, ok := r.departed[id]
	return ok
}

// Player returns a copy of the roster entry for id
func (r *Room) Player(id string) (Player, bool) {
	p := r.find(id)
	if p == nil {
		return Player{}, false
	}
	return *p, true
}

// AllReady reports whether the roster is non-empty and every player is ready
func (r *Room) AllReady() bool {
	if len(r.Players) == 0 {
		return false
	}
	for _, p := range r.Players {
		if !p.IsReady {
			return false
		}
	}
	return true
}

// IsFull reports whether the roster has reached MaxPlayers
func (r *Room) IsFull() bool {
	return len(r.Players) >= r.MaxPlayers
}

// Len returns the number of players on the roster
func (r *Room) Len() int {
	return len(r.Players)
}

// PlayerIDs returns player ids in roster order
func (r *Room) PlayerIDs() []string {
	ids := make([]string, len(r.Players))
	for i, p := range r.Players {
		ids[i] = p.ID
	}
	return ids
}

// IdleSince reports whether every player has been inactive since cutoff
func (r *Room) IdleSince(cutoff time.Time) bool {
	if len(r.Players) == 0 {
		return false
	}
	for _, p := range r.Players {
		if p.LastActivity.After(cutoff) {
			return false
		}
	}
	return true
}

// Snapshot returns a deep copy of the room state
func (r *Room) Snapshot() Snapshot {
	snap := Snapshot{
		Code:                 r.Code,
		GameType:             r.GameType,
		Status:               r.Status,
		MaxPlayers:           r.MaxPlayers,
		CurrentQuestionIndex: r.CurrentQuestionIndex,
		TotalQuestions:       r.TotalQuestions,
		CreatedAt:            r.CreatedAt,
		Players:              make([]Player, len(r.Players)),
	}
	if !r.StartedAt.IsZero() {
		started := r.StartedAt
		snap.StartedAt = &started
	}
	if !r.FinishedAt.IsZero() {
		finished := r.FinishedAt
		snap.FinishedAt = &finished
	}
	for i, p := range r.Players {
		snap.Players[i] = *p
	}
	return snap
}

func (r *Room) find(id string) *Player {
	if idx := r.indexOf(id); idx >= 0 {
		return r.Players[idx]
	}
	return nil
}

func (r *Room) indexOf(id string) int {
	for i, p := range r.Players {
		if p.ID == id {
			return i
		}
	}
	return -1
}
