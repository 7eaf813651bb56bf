package registry

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wricardo/quizrooms/game/room"
)

const (
	// DefaultCodeLength is the number of characters in a room code
	DefaultCodeLength = 6

	// CodeAlphabet holds the characters a room code is drawn from
	CodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	maxCollisions = 64
)

var (
	ErrCapacityExceeded   = errors.New("room capacity exceeded")
	ErrCodeSpaceExhausted = errors.New("could not generate a unique room code")
)

// CodeGenerator returns a candidate room code of length n
type CodeGenerator func(n int) (string, error)

// Options configures a Registry. Zero values select defaults.
type Options struct {
	CodeLength  int
	MaxRooms    int // 0 means unlimited
	MaxPlayers  int
	MailboxSize int
	Logger      *zap.Logger
	Now         func() time.Time
	Codes       CodeGenerator

	// OnCountChange is called with the number of live rooms after every
	// create and delete
	OnCountChange func(n int)
}

// Registry is the collection of live rooms
type Registry struct {
	rooms  map[string]*room.Actor
	opts   Options
	logger *zap.Logger
	mu     sync.RWMutex
}

// New creates an empty registry
func New(opts Options) *Registry {
	if opts.CodeLength <= 0 {
		opts.CodeLength = DefaultCodeLength
	}
	if opts.MaxPlayers <= 0 {
		opts.MaxPlayers = room.DefaultMaxPlayers
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Codes == nil {
		opts.Codes = RandomCode
	}

	return &Registry{
		rooms:  make(map[string]*room.Actor),
		opts:   opts,
		logger: opts.Logger,
	}
}

// CreateRoom creates a waiting room hosted by host and returns its actor
func (r *Registry) CreateRoom(gameType string, host room.Player) (*room.Actor, error) {
	r.mu.Lock()

	if r.opts.MaxRooms > 0 && len(r.rooms) >= r.opts.MaxRooms {
		r.mu.Unlock()
		return nil, ErrCapacityExceeded
	}

	code, err := r.uniqueCode()
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}

	rm := room.New(code, gameType, host, r.opts.MaxPlayers, r.opts.Now())
	actor := room.NewActor(rm, r.opts.MailboxSize, r.logger)
	r.rooms[code] = actor
	count := len(r.rooms)
	r.mu.Unlock()

	r.logger.Debug("room created",
		zap.String("room", code),
		zap.String("game_type", gameType),
		zap.String("host", host.ID))
	r.notify(count)

	return actor, nil
}

// GetRoom returns the actor for code
func (r *Registry) GetRoom(code string) (*room.Actor, error) {
	r.mu.RLock()
	actor, exists := r.rooms[NormalizeCode(code)]
	r.mu.RUnlock()

	if !exists {
		return nil, room.ErrNotFound
	}
	return actor, nil
}

// DeleteRoom removes code and stops its actor
func (r *Registry) DeleteRoom(code string) error {
	code = NormalizeCode(code)

	r.mu.Lock()
	actor, exists := r.rooms[code]
	if !exists {
		r.mu.Unlock()
		return room.ErrNotFound
	}
	delete(r.rooms, code)
	count := len(r.rooms)
	r.mu.Unlock()

	actor.Stop()
	r.logger.Debug("room deleted", zap.String("room", code))
	r.notify(count)

	return nil
}

// DeleteActor removes code only while it still maps to actor
func (r *Registry) DeleteActor(actor *room.Actor) bool {
	r.mu.Lock()
	current, exists := r.rooms[actor.Code()]
	if !exists || current != actor {
		r.mu.Unlock()
		return false
	}
	delete(r.rooms, actor.Code())
	count := len(r.rooms)
	r.mu.Unlock()

	actor.Stop()
	r.logger.Debug("room deleted", zap.String("room", actor.Code()))
	r.notify(count)

	return true
}

// List returns every live actor ordered by code
func (r *Registry) List() []*room.Actor {
	r.mu.RLock()
	result := make([]*room.Actor, 0, len(r.rooms))
	for _, actor := range r.rooms {
		result = append(result, actor)
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].Code() < result[j].Code()
	})
	return result
}

// Count returns the number of live rooms
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Close stops every actor and empties the registry
func (r *Registry) Close() {
	r.mu.Lock()
	actors := r.rooms
	r.rooms = make(map[string]*room.Actor)
	r.mu.Unlock()

	for _, actor := range actors {
		actor.Stop()
	}
	if len(actors) > 0 {
		r.notify(0)
	}
}

// uniqueCode must be called with mu held
func (r *Registry) uniqueCode() (string, error) {
	for i := 0; i < maxCollisions; i++ {
		code, err := r.opts.Codes(r.opts.CodeLength)
		if err != nil {
			return "", fmt.Errorf("failed to generate room code: %w", err)
		}
		code = NormalizeCode(code)
		if _, taken := r.rooms[code]; !taken {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}

func (r *Registry) notify(count int) {
	if r.opts.OnCountChange != nil {
		r.opts.OnCountChange(count)
	}
}

// NormalizeCode trims and upper-cases a room code
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// RandomCode draws n characters from CodeAlphabet using crypto/rand
func RandomCode(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	// 252 is the largest multiple of 36 below 256; rejecting above it keeps
	// the distribution uniform
	out := make([]byte, 0, n)
	for len(out) < n {
		for _, b := range buf {
			if b >= 252 {
				continue
			}
			out = append(out, CodeAlphabet[int(b)%len(CodeAlphabet)])
			if len(out) == n {
				break
			}
		}
		if len(out) < n {
			if _, err := rand.Read(buf); err != nil {
				return "", err
			}
		}
	}
	return string(out), nil
}
