// Package mcp provides a Model Context Protocol server for inspecting a
// running quiz room server.
//
// The server is a thin client over the REST API: every tool issues one GET
// request and renders the JSON response as text. It never changes room
// state.
//
// MCP Tools:
//   - health: Check the server is reachable
//   - list_rooms: List live rooms (sort, order, limit)
//   - get_room: Roster, scores and progress of one room
//   - list_game_types: Question sets usable as game types
//   - list_results: Finished games with rankings
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//	if err := server.ServeStdio(client.GetMCPServer()); err != nil {
//		log.Fatal(err)
//	}
package mcp
