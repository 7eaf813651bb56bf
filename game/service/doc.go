// Package service routes quiz room messages between client connections and
// the rooms they play in.
//
// The service package implements:
//   - Decoding of inbound envelopes and dispatch by message type
//   - Authority (host-only) and legality (room status) checks
//   - Room creation, joining, leaving and disconnect handling
//   - Readiness gating, game start, answer scoring and game end
//   - Broadcast fan-out to every bound member of a room
//   - Dissolution of idle rooms
//   - Read-only room snapshots for diagnostics
//
// Core Types:
//
// Router is the single entry point for transports. A transport calls
// HandleMessage for every frame a connection reads, in the order it read
// them, and HandleDisconnect once when the connection goes away.
//
// Collaborators:
//
// Content supplies question counts and public question payloads per game
// type. Scorer grades answers; it is called outside the room goroutine with a
// timeout and a failing scorer yields a zero-point delta. Without a Scorer
// the points carried in the answer payload are applied as sent. A
// results.Recorder, when configured, receives the standings of every
// finished game.
//
// Ordering:
//
// Every transition and the broadcast it causes run on the room's own
// goroutine, so all members observe a room's events in the order the room
// applied them. Sends never block: a connection whose buffer is full drops
// the frame and is closed by its transport.
//
// Usage:
//
//	router := service.NewRouter(service.Options{
//		Registry:  registry.New(registry.Options{}),
//		Directory: directory.New(),
//		Content:   catalogManager,
//		Scorer:    catalog.NewScorer(catalogManager),
//		Logger:    logger,
//	})
//
//	// for every inbound frame
//	router.HandleMessage(ctx, conn, data)
//
//	// when the connection closes
//	router.HandleDisconnect(ctx, conn)
package service
