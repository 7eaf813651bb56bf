// Package client is the player-side library for the quiz room protocol.
//
// A Session owns one websocket connection, sends room commands as the
// configured player id and dispatches every inbound envelope to the
// handlers registered for its type:
//
//	s := client.New(client.Options{PlayerID: "ana"})
//	s.On("room_update", func(ev client.Event) {
//		var p protocol.RoomUpdatePayload
//		if err := ev.Decode(&p); err == nil {
//			render(p.Room)
//		}
//	})
//	if err := s.Connect(ctx, "ws://localhost:8080/ws"); err != nil {
//		return err
//	}
//	s.CreateRoom("Ana", "trivia")
//
// Besides the server message types, handlers can subscribe to the local
// events connected, disconnected and reconnected, or to "*" for everything.
//
// A dropped connection is not redialed unless Options.AutoReconnect is set;
// callers can also call Reconnect themselves. Either way the session joins
// its last room again and the server answers with a full snapshot.
package client
