package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/wricardo/quizrooms/game/protocol"
	"github.com/wricardo/quizrooms/game/room"
)

// ReasonIdle is reported in room_closed when the idle sweep dissolves a room
const ReasonIdle = "idle"

// SweepIdle dissolves every room whose members have all been inactive for at
// least maxIdle. Members are unbound and told the room closed. It returns the
// number of rooms dissolved.
func (r *Router) SweepIdle(ctx context.Context, maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)
	dissolved := 0

	for _, actor := range r.rooms.List() {
		closed := false
		err := actor.Do(ctx, func(rm *room.Room) {
			if !rm.IdleSince(cutoff) {
				return
			}

			frame, err := protocol.Encode(protocol.TypeRoomClosed, "", protocol.RoomClosedPayload{
				Code:   rm.Code,
				Reason: ReasonIdle,
			})
			if err != nil {
				r.logger.Error("failed to encode room_closed", zap.String("room", rm.Code), zap.Error(err))
				return
			}

			r.fanout(rm.Code, rm.PlayerIDs(), frame)
			r.metrics.Broadcast(protocol.TypeRoomClosed)
			for _, id := range rm.Dissolve() {
				r.dir.UnbindIf(id, rm.Code)
			}
			closed = true
		})
		if errors.Is(err, room.ErrStopped) {
			continue
		}
		if err != nil {
			r.logger.Warn("idle sweep interrupted", zap.Error(err))
			return dissolved
		}

		if closed {
			r.rooms.DeleteActor(actor)
			dissolved++
			r.logger.Info("room dissolved", zap.String("room", actor.Code()), zap.String("reason", ReasonIdle))
		}
	}

	return dissolved
}

// RunSweeper calls SweepIdle every interval until ctx is done
func (r *Router) RunSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.SweepIdle(ctx, maxIdle); n > 0 {
				r.logger.Info("idle rooms dissolved", zap.Int("count", n))
			}
		}
	}
}
