// Package websocket provides the WebSocket transport for quiz rooms.
//
// The websocket package implements:
//   - Connection upgrade with an optional origin allow-list
//   - One read and one write goroutine per connection
//   - Ping/pong keepalive and read deadlines
//   - Per-connection inbound rate limiting
//   - Non-blocking outbound buffering with slow-consumer eviction
//
// Architecture:
//
// The package uses a hub-and-spoke model where a central Hub tracks every
// open Client. Each Client implements directory.Conn so the room router can
// address it directly. Frames read from a connection are handed to the Handler
// one at a time, in the order they arrived; a connection's disconnect is
// reported exactly once after its read loop ends.
//
// Message Protocol:
//
// Every frame is one JSON envelope {type, payload, playerId}, in both
// directions. Frames over the rate limit are answered with an error envelope
// carrying the RateLimited code and are not routed.
//
// Usage:
//
//	hub := websocket.NewHub(router, websocket.Options{
//		RatePerSecond: 20,
//		Burst:         40,
//		Logger:        logger,
//	})
//	go hub.Run(ctx)
//
//	mux.HandleFunc("/ws", hub.ServeWS)
//
// Backpressure:
//
// Client.Send never blocks. When a client's buffer is full the frame is
// dropped and the connection closed; the client is expected to reconnect and
// rejoin, at which point it receives a full room snapshot.
package websocket
