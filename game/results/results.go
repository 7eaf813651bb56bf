// Package results stores the final standings of finished games.
package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wricardo/quizrooms/game/room"
)

var ErrInvalidResult = errors.New("invalid result")

// Result is the outcome of one finished game
type Result struct {
	RoomCode   string          `json:"roomCode"`
	GameType   string          `json:"gameType"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt time.Time       `json:"finishedAt"`
	Rankings   []room.Standing `json:"rankings"`
}

// Recorder persists results
type Recorder interface {
	// Record stores a finished game
	Record(ctx context.Context, result Result) error

	// List returns stored results, most recent first
	List(ctx context.Context) ([]Result, error)
}

// FileRecorder writes one JSON document per game into a directory
type FileRecorder struct {
	dir string
	mu  sync.Mutex
}

// NewFileRecorder creates dir if needed and returns a recorder writing into it
func NewFileRecorder(dir string) (*FileRecorder, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}
	return &FileRecorder{dir: dir}, nil
}

// Record writes result to <finishedAt>-<code>.json
func (fr *FileRecorder) Record(ctx context.Context, result Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if result.RoomCode == "" {
		return fmt.Errorf("%w: room code is empty", ErrInvalidResult)
	}
	if result.FinishedAt.IsZero() {
		return fmt.Errorf("%w: finish time is unset", ErrInvalidResult)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	fr.mu.Lock()
	defer fr.mu.Unlock()

	// write then rename so List never sees a partial file
	path := fr.filePath(result)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write result file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write result file: %w", err)
	}
	return nil
}

// List reads every stored result, most recent first
func (fr *FileRecorder) List(ctx context.Context) ([]Result, error) {
	entries, err := os.ReadDir(fr.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read results directory: %w", err)
	}

	out := make([]Result, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(fr.dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read result file: %w", err)
		}
		var r Result
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", entry.Name(), err)
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FinishedAt.After(out[j].FinishedAt)
	})
	return out, nil
}

func (fr *FileRecorder) filePath(r Result) string {
	name := fmt.Sprintf("%s-%s.json", r.FinishedAt.UTC().Format("20060102T150405.000000000Z"), r.RoomCode)
	return filepath.Join(fr.dir, name)
}
