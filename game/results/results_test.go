package results

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wricardo/quizrooms/game/room"
)

func TestFileRecorder(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fr, err := NewFileRecorder(dir)
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first := Result{
		RoomCode:   "ABC123",
		GameType:   "trivia",
		StartedAt:  base,
		FinishedAt: base.Add(5 * time.Minute),
		Rankings: []room.Standing{
			{Rank: 1, PlayerID: "ana", Name: "Ana", Score: 300},
			{Rank: 2, PlayerID: "beto", Name: "Beto", Score: 100},
		},
	}
	second := first
	second.RoomCode = "XYZ789"
	second.FinishedAt = base.Add(10 * time.Minute)

	require.NoError(t, fr.Record(ctx, first))
	require.NoError(t, fr.Record(ctx, second))

	list, err := fr.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "XYZ789", list[0].RoomCode)
	assert.Equal(t, "ABC123", list[1].RoomCode)
	assert.Equal(t, first.Rankings, list[1].Rankings)
	assert.True(t, first.FinishedAt.Equal(list[1].FinishedAt))

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, files, 2, "no temporary files left behind")
}

func TestFileRecorder_Invalid(t *testing.T) {
	fr, err := NewFileRecorder(t.TempDir())
	require.NoError(t, err)

	err = fr.Record(context.Background(), Result{FinishedAt: time.Now()})
	assert.ErrorIs(t, err, ErrInvalidResult)

	err = fr.Record(context.Background(), Result{RoomCode: "ABC123"})
	assert.ErrorIs(t, err, ErrInvalidResult)
}

func TestFileRecorder_EmptyDir(t *testing.T) {
	fr, err := NewFileRecorder(t.TempDir())
	require.NoError(t, err)

	list, err := fr.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}
