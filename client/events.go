package client

import (
	"encoding/json"
	"sync"

	"github.com/wricardo/quizrooms/game/protocol"
)

// Local events raised by the Session itself rather than the server
const (
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
	EventReconnected  = "reconnected"

	// EventAny receives every event after the handlers of its own type
	EventAny = "*"
)

// Event is one inbound envelope or local lifecycle event
type Event struct {
	Type     string
	PlayerID string
	Payload  json.RawMessage

	// Err is set on disconnected when the connection failed
	Err error
}

// Decode unmarshals the event payload into v
func (e Event) Decode(v any) error {
	return protocol.DecodePayload(protocol.Envelope{Type: e.Type, Payload: e.Payload}, v)
}

// Handler receives events. Handlers run on the Session's read goroutine and
// should return quickly.
type Handler func(Event)

// HandlerID identifies a registration for Off
type HandlerID uint64

type registration struct {
	id HandlerID
	fn Handler
}

// events maps an event type to its handlers in registration order
type events struct {
	mu       sync.RWMutex
	next     HandlerID
	handlers map[string][]registration
}

func newEvents() *events {
	return &events{handlers: make(map[string][]registration)}
}

func (e *events) on(eventType string, fn Handler) HandlerID {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.next++
	e.handlers[eventType] = append(e.handlers[eventType], registration{id: e.next, fn: fn})
	return e.next
}

func (e *events) off(eventType string, id HandlerID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	regs := e.handlers[eventType]
	for i, r := range regs {
		if r.id != id {
			continue
		}
		// copy so a dispatch in progress keeps its own slice
		rest := make([]registration, 0, len(regs)-1)
		rest = append(rest, regs[:i]...)
		rest = append(rest, regs[i+1:]...)
		if len(rest) == 0 {
			delete(e.handlers, eventType)
		} else {
			e.handlers[eventType] = rest
		}
		return true
	}
	return false
}

func (e *events) dispatch(ev Event) {
	e.mu.RLock()
	typed := e.handlers[ev.Type]
	all := e.handlers[EventAny]
	e.mu.RUnlock()

	for _, r := range typed {
		r.fn(ev)
	}
	if ev.Type == EventAny {
		return
	}
	for _, r := range all {
		r.fn(ev)
	}
}
