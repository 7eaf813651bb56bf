package service

import (
	"go.uber.org/zap"

	"github.com/wricardo/quizrooms/game/directory"
	"github.com/wricardo/quizrooms/game/protocol"
	"github.com/wricardo/quizrooms/game/room"
)

// broadcast encodes one event and sends it to every member of rm. It runs on
// the room goroutine.
func (r *Router) broadcast(rm *room.Room, typ, by string, payload any) int {
	frame, err := protocol.Encode(typ, by, payload)
	if err != nil {
		r.logger.Error("failed to encode broadcast",
			zap.String("room", rm.Code),
			zap.String("type", typ),
			zap.Error(err))
		return 0
	}

	r.metrics.Broadcast(typ)
	return r.fanout(rm.Code, rm.PlayerIDs(), frame)
}

func (r *Router) broadcastSnapshot(rm *room.Room, by string) int {
	return r.broadcast(rm, protocol.TypeRoomUpdate, by, protocol.RoomUpdatePayload{Room: rm.Snapshot()})
}

// fanout sends frame in roster order to each player still bound to code.
// Players without a live binding are skipped.
func (r *Router) fanout(code string, ids []string, frame []byte) int {
	sent := 0
	for _, id := range ids {
		b, ok := r.dir.Lookup(id)
		if !ok || b.RoomCode != code {
			continue
		}
		if !b.Conn.Send(frame) {
			r.logger.Debug("broadcast dropped",
				zap.String("room", code),
				zap.String("player", id),
				zap.String("conn", b.Conn.ID()))
			continue
		}
		sent++
	}
	return sent
}

func (r *Router) replyError(conn directory.Conn, err error) {
	code := protocol.CodeFor(err)
	r.metrics.Error(code)

	if code == protocol.CodeInternal {
		r.logger.Error("request failed", zap.String("conn", conn.ID()), zap.Error(err))
	} else {
		r.logger.Debug("request rejected",
			zap.String("conn", conn.ID()),
			zap.String("code", code),
			zap.Error(err))
	}

	conn.Send(protocol.EncodeError(err))
}

// Reject answers err to conn. Transports use it for failures detected before
// a frame reaches the router, such as rate limiting.
func (r *Router) Reject(conn directory.Conn, err error) {
	r.replyError(conn, err)
}
