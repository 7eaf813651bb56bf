// Package directory maps player ids to the live connection delivering their
// messages and the room they are in.
package directory

import "sync"

// Conn is a live client connection
type Conn interface {
	// ID returns an identifier unique to the connection
	ID() string
	// Send queues data for delivery and reports whether it was accepted
	Send(data []byte) bool
}

// Binding is the association of a player with a connection and a room
type Binding struct {
	PlayerID string
	Conn     Conn
	RoomCode string
}

// Directory is the set of player bindings. At most one binding exists per
// player and per connection.
type Directory struct {
	byPlayer map[string]Binding
	byConn   map[string]string
	mu       sync.RWMutex
}

// New creates an empty Directory
func New() *Directory {
	return &Directory{
		byPlayer: make(map[string]Binding),
		byConn:   make(map[string]string),
	}
}

// Bind associates playerID with conn and roomCode, replacing any binding
// either of them had before
func (d *Directory) Bind(playerID string, conn Conn, roomCode string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if prev, ok := d.byPlayer[playerID]; ok {
		delete(d.byConn, prev.Conn.ID())
	}
	if other, ok := d.byConn[conn.ID()]; ok && other != playerID {
		delete(d.byPlayer, other)
	}

	d.byPlayer[playerID] = Binding{PlayerID: playerID, Conn: conn, RoomCode: roomCode}
	d.byConn[conn.ID()] = playerID
}

// Unbind removes the binding of playerID and returns the room it pointed at
func (d *Directory) Unbind(playerID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.byPlayer[playerID]
	if !ok {
		return "", false
	}
	delete(d.byPlayer, playerID)
	if d.byConn[b.Conn.ID()] == playerID {
		delete(d.byConn, b.Conn.ID())
	}
	return b.RoomCode, true
}

// UnbindIf removes the binding of playerID only while it still points at
// roomCode
func (d *Directory) UnbindIf(playerID, roomCode string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.byPlayer[playerID]
	if !ok || b.RoomCode != roomCode {
		return false
	}
	delete(d.byPlayer, playerID)
	if d.byConn[b.Conn.ID()] == playerID {
		delete(d.byConn, b.Conn.ID())
	}
	return true
}

// Resolve returns the connection bound to playerID
func (d *Directory) Resolve(playerID string) (Conn, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	b, ok := d.byPlayer[playerID]
	if !ok {
		return nil, false
	}
	return b.Conn, true
}

// Lookup returns the full binding of playerID
func (d *Directory) Lookup(playerID string) (Binding, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	b, ok := d.byPlayer[playerID]
	return b, ok
}

// RoomOf returns the room playerID is bound to
func (d *Directory) RoomOf(playerID string) (string, bool) {
	b, ok := d.Lookup(playerID)
	return b.RoomCode, ok
}

// LookupByConnection returns the player bound to conn
func (d *Directory) LookupByConnection(conn Conn) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byConn[conn.ID()]
	return id, ok
}

// Release removes the binding owned by conn, if any. A player that has since
// been rebound to another connection is left untouched.
func (d *Directory) Release(conn Conn) (Binding, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id, ok := d.byConn[conn.ID()]
	if !ok {
		return Binding{}, false
	}
	delete(d.byConn, conn.ID())

	b, ok := d.byPlayer[id]
	if !ok || b.Conn.ID() != conn.ID() {
		return Binding{}, false
	}
	delete(d.byPlayer, id)
	return b, true
}

// Count returns the number of bound players
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byPlayer)
}
