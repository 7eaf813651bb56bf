// Package api provides the HTTP surface of the quiz room server.
//
// The api package implements:
//   - Read-only diagnostics over live rooms
//   - Game type listing backed by the question catalog
//   - Finished game history when a results recorder is configured
//   - WebSocket upgrade and Prometheus scrape endpoints
//
// Endpoints:
//
//   - GET /api/health - Liveness check
//   - GET /api/rooms - List live rooms (sort=created|players, order=asc|desc, limit=N)
//   - GET /api/rooms/{code} - Snapshot of one room
//   - GET /api/game-types - Question sets available as game types
//   - GET /api/results - Finished games, most recent first (limit=N)
//   - GET /ws - Room protocol over WebSocket
//   - GET /metrics - Prometheus metrics
//
// Room state changes only through the WebSocket protocol; the REST API never
// mutates a room.
//
// All endpoints return JSON. Errors are reported as:
//
//	{"error": "room not found"}
//
// Usage:
//
//	srv := api.NewServer(api.Options{
//		Rooms:     router,
//		Catalog:   questions,
//		WebSocket: http.HandlerFunc(hub.ServeWS),
//		Metrics:   promhttp.Handler(),
//	})
//	http.ListenAndServe(":8080", srv)
package api
