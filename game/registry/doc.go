// Package registry owns the collection of live quiz rooms.
//
// The registry package implements:
//   - Short, human-typeable room code generation
//   - Collision checking against every live code
//   - Room creation with the creator installed as host
//   - Case-insensitive lookup by code
//   - Deletion that stops the room's actor
//   - An optional global cap on the number of live rooms
//
// Core Types:
//
// Registry maps room codes to room actors. Each actor owns one room.Room and
// runs every operation on it from a single goroutine, so the registry itself
// only guards the map.
//
// Room Codes:
//
// Codes are CodeLength characters drawn from [A-Z0-9] using crypto/rand. A
// generated code that is already live is discarded and a new one drawn. After
// too many consecutive collisions CreateRoom fails with ErrCodeSpaceExhausted.
//
// Usage:
//
//	reg := registry.New(registry.Options{Logger: logger})
//	defer reg.Close()
//
//	actor, err := reg.CreateRoom("trivia", room.Player{ID: "ana", Name: "Ana"})
//	if err != nil {
//		return err
//	}
//
//	actor, err = reg.GetRoom("abc123") // codes are case-insensitive
package registry
