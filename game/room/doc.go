// Package room provides the state machine and player roster for one quiz room.
//
// The room package implements:
//   - Room and Player state with JSON snapshots for the wire
//   - The waiting -> playing -> finished lifecycle
//   - Host succession when the host leaves
//   - Final rankings (score descending, ties broken by join order)
//   - A per-room Actor that serializes every mutation on one goroutine
//
// Core Types:
//
// Room is plain data plus transition methods. It performs no locking and holds
// no connection references, so it is only safe to touch from the goroutine of
// the Actor that owns it. Player is one roster entry.
//
// Roster Invariants:
//
// A non-empty Room has exactly one host. The roster never exceeds MaxPlayers.
// Removing the last player dissolves the Room; a dissolved Room must be removed
// from the registry and is never reused.
//
// Authority checks (host-only actions, status gating) are made by the caller
// before invoking a transition. Room only guards its roster invariants.
//
// Usage:
//
//	r := room.New("ABC123", "trivia", room.Player{ID: "p1", Name: "Ana"}, 6, time.Now())
//	actor := room.NewActor(r, 64, logger)
//	defer actor.Stop()
//
//	err := actor.Do(ctx, func(r *room.Room) {
//		joinErr = r.AddPlayer(room.Player{ID: "p2", Name: "Beto"}, time.Now())
//	})
package room
