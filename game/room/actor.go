package room

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// DefaultMailboxSize is the number of pending operations an Actor buffers
const DefaultMailboxSize = 64

// Actor owns a Room and runs every operation on it from a single goroutine.
// Different rooms' actors run in parallel.
type Actor struct {
	code    string
	room    *Room
	mailbox chan func(*Room)
	quit    chan struct{}
	exited  chan struct{}
	once    sync.Once
	logger  *zap.Logger
}

// NewActor starts the goroutine that owns r
func NewActor(r *Room, mailboxSize int, logger *zap.Logger) *Actor {
	if mailboxSize <= 0 {
		mailboxSize = DefaultMailboxSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &Actor{
		code:    r.Code,
		room:    r,
		mailbox: make(chan func(*Room), mailboxSize),
		quit:    make(chan struct{}),
		exited:  make(chan struct{}),
		logger:  logger.With(zap.String("room", r.Code)),
	}
	go a.run()
	return a
}

// Code returns the code of the owned room
func (a *Actor) Code() string {
	return a.code
}

// Do runs fn on the actor goroutine and waits for it to return
func (a *Actor) Do(ctx context.Context, fn func(*Room)) error {
	done := make(chan struct{})
	op := func(r *Room) {
		defer close(done)
		a.invoke(fn, r)
	}

	select {
	case <-a.quit:
		return ErrStopped
	default:
	}

	select {
	case a.mailbox <- op:
	case <-a.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-a.exited:
		// the loop may have run op right before exiting
		select {
		case <-done:
			return nil
		default:
			return ErrStopped
		}
	}
}

// Stop terminates the actor after the operation in progress. It is safe to
// call more than once and from inside an operation.
func (a *Actor) Stop() {
	a.once.Do(func() {
		close(a.quit)
	})
}

// Done is closed once the actor goroutine has exited
func (a *Actor) Done() <-chan struct{} {
	return a.exited
}

func (a *Actor) run() {
	defer close(a.exited)

	for {
		select {
		case <-a.quit:
			return
		default:
		}

		select {
		case op := <-a.mailbox:
			op(a.room)
		case <-a.quit:
			return
		}
	}
}

func (a *Actor) invoke(fn func(*Room), r *Room) {
	defer func() {
		if rec := recover(); rec != nil {
			a.logger.Error("room operation panicked", zap.String("panic", fmt.Sprint(rec)))
		}
	}()
	fn(r)
}
