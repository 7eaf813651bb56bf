package registry

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/wricardo/quizrooms/game/room"
)

var codePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

func host(id string) room.Player {
	return room.Player{ID: id, Name: id}
}

func TestRegistry_CreateRoom(t *testing.T) {
	reg := New(Options{Logger: zaptest.NewLogger(t)})
	defer reg.Close()

	actor, err := reg.CreateRoom("trivia", host("ana"))
	require.NoError(t, err)
	assert.Regexp(t, codePattern, actor.Code())

	var snap room.Snapshot
	require.NoError(t, actor.Do(context.Background(), func(r *room.Room) {
		snap = r.Snapshot()
	}))
	assert.Equal(t, room.StatusWaiting, snap.Status)
	assert.Equal(t, "trivia", snap.GameType)
	require.Len(t, snap.Players, 1)
	assert.True(t, snap.Players[0].IsHost)
	assert.Equal(t, 1, reg.Count())
}

func TestRegistry_GetRoom(t *testing.T) {
	reg := New(Options{})
	defer reg.Close()

	actor, err := reg.CreateRoom("trivia", host("ana"))
	require.NoError(t, err)

	t.Run("exact code", func(t *testing.T) {
		got, err := reg.GetRoom(actor.Code())
		require.NoError(t, err)
		assert.Same(t, actor, got)
	})

	t.Run("lower case with spaces", func(t *testing.T) {
		got, err := reg.GetRoom("  " + strings.ToLower(actor.Code()) + " ")
		require.NoError(t, err)
		assert.Same(t, actor, got)
	})

	t.Run("unknown code", func(t *testing.T) {
		_, err := reg.GetRoom("ZZZZZZ")
		assert.ErrorIs(t, err, room.ErrNotFound)
	})
}

func TestRegistry_DeleteRoom(t *testing.T) {
	var counts []int
	reg := New(Options{OnCountChange: func(n int) { counts = append(counts, n) }})
	defer reg.Close()

	actor, err := reg.CreateRoom("trivia", host("ana"))
	require.NoError(t, err)

	require.NoError(t, reg.DeleteRoom(actor.Code()))
	<-actor.Done()

	_, err = reg.GetRoom(actor.Code())
	assert.ErrorIs(t, err, room.ErrNotFound)
	assert.ErrorIs(t, reg.DeleteRoom(actor.Code()), room.ErrNotFound)
	assert.Equal(t, []int{1, 0}, counts)

	err = actor.Do(context.Background(), func(r *room.Room) {})
	assert.ErrorIs(t, err, room.ErrStopped)
}

func TestRegistry_DeleteActor(t *testing.T) {
	codes := []string{"AAAAAA", "AAAAAA"}
	next := 0
	reg := New(Options{Codes: func(int) (string, error) {
		c := codes[next]
		next++
		return c, nil
	}})
	defer reg.Close()

	first, err := reg.CreateRoom("trivia", host("ana"))
	require.NoError(t, err)
	require.NoError(t, reg.DeleteRoom(first.Code()))

	second, err := reg.CreateRoom("trivia", host("beto"))
	require.NoError(t, err)
	require.Equal(t, first.Code(), second.Code())

	// a stale actor must not evict the room that reused its code
	assert.False(t, reg.DeleteActor(first))
	assert.Equal(t, 1, reg.Count())
	assert.True(t, reg.DeleteActor(second))
	assert.Equal(t, 0, reg.Count())
}

func TestRegistry_CodeCollisions(t *testing.T) {
	t.Run("regenerates on collision", func(t *testing.T) {
		seq := []string{"AAAAAA", "AAAAAA", "AAAAAA", "BBBBBB"}
		next := 0
		reg := New(Options{Codes: func(int) (string, error) {
			c := seq[next]
			next++
			return c, nil
		}})
		defer reg.Close()

		a, err := reg.CreateRoom("trivia", host("ana"))
		require.NoError(t, err)
		b, err := reg.CreateRoom("trivia", host("beto"))
		require.NoError(t, err)

		assert.Equal(t, "AAAAAA", a.Code())
		assert.Equal(t, "BBBBBB", b.Code())
		assert.Equal(t, 4, next)
	})

	t.Run("gives up when every draw collides", func(t *testing.T) {
		reg := New(Options{Codes: func(int) (string, error) { return "AAAAAA", nil }})
		defer reg.Close()

		_, err := reg.CreateRoom("trivia", host("ana"))
		require.NoError(t, err)
		_, err = reg.CreateRoom("trivia", host("beto"))
		assert.ErrorIs(t, err, ErrCodeSpaceExhausted)
		assert.Equal(t, 1, reg.Count())
	})

	t.Run("generator failure", func(t *testing.T) {
		reg := New(Options{Codes: func(int) (string, error) { return "", fmt.Errorf("entropy") }})
		defer reg.Close()

		_, err := reg.CreateRoom("trivia", host("ana"))
		assert.Error(t, err)
		assert.Equal(t, 0, reg.Count())
	})
}

func TestRegistry_MaxRooms(t *testing.T) {
	reg := New(Options{MaxRooms: 2})
	defer reg.Close()

	_, err := reg.CreateRoom("trivia", host("a"))
	require.NoError(t, err)
	_, err = reg.CreateRoom("trivia", host("b"))
	require.NoError(t, err)
	_, err = reg.CreateRoom("trivia", host("c"))
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestRegistry_ConcurrentCreateUniqueCodes(t *testing.T) {
	// a tiny code space forces collisions between concurrent creators
	reg := New(Options{CodeLength: 2})
	defer reg.Close()

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		codes = map[string]bool{}
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor, err := reg.CreateRoom("trivia", host(fmt.Sprintf("p%d", i)))
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			assert.False(t, codes[actor.Code()], "duplicate code %s", actor.Code())
			codes[actor.Code()] = true
		}(i)
	}
	wg.Wait()

	assert.Len(t, codes, 100)
	assert.Equal(t, 100, reg.Count())
}

func TestRegistry_ListAndClose(t *testing.T) {
	reg := New(Options{})

	for i := 0; i < 3; i++ {
		_, err := reg.CreateRoom("trivia", host(fmt.Sprintf("p%d", i)))
		require.NoError(t, err)
	}

	list := reg.List()
	require.Len(t, list, 3)
	assert.Less(t, list[0].Code(), list[1].Code())
	assert.Less(t, list[1].Code(), list[2].Code())

	reg.Close()
	assert.Equal(t, 0, reg.Count())
	for _, actor := range list {
		<-actor.Done()
	}
}

func TestRandomCode(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := RandomCode(6)
		require.NoError(t, err)
		assert.Regexp(t, codePattern, code)
	}
}
