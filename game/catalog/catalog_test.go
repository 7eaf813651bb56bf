package catalog

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const triviaYAML = `
name: Trivia
questions:
  - id: q1
    text: Capital of France?
    choices: [Paris, Lyon]
    answer: Paris
    time_limit_ms: 10000
  - id: q2
    text: 2+2?
    answer: "4"
    points: 50
`

const mathJSON = `{
  "id": "math",
  "name": "Math",
  "questions": [
    {"id": "m1", "text": "3*3?", "answer": "9"}
  ]
}`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "trivia.yaml", triviaYAML)
	writeFile(t, dir, "math.json", mathJSON)
	writeFile(t, dir, "README.md", "not a set")

	m, err := NewManager(dir)
	require.NoError(t, err)
	return m
}

func TestNewManager(t *testing.T) {
	t.Run("loads json and yaml", func(t *testing.T) {
		m := newTestManager(t)

		assert.Equal(t, 2, m.QuestionCount("trivia"))
		assert.Equal(t, 1, m.QuestionCount("math"))
		assert.Equal(t, 0, m.QuestionCount("unknown"))

		sets := m.ListSets()
		require.Len(t, sets, 2)
		assert.Equal(t, "math", sets[0].ID)
		assert.Equal(t, "math.json", sets[0].Filename)
		assert.Equal(t, "trivia", sets[1].ID)
		assert.Equal(t, 2, sets[1].QuestionCount)
	})

	t.Run("missing directory", func(t *testing.T) {
		_, err := NewManager(filepath.Join(t.TempDir(), "nope"))
		assert.Error(t, err)
	})

	t.Run("invalid file", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "broken.yaml", "questions: []\n")
		_, err := NewManager(dir)
		assert.ErrorIs(t, err, ErrInvalidSet)
	})

	t.Run("question ids unique across sets", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "a.yaml", "questions:\n  - {id: q1, text: x, answer: y}\n")
		writeFile(t, dir, "b.yaml", "questions:\n  - {id: q1, text: x, answer: y}\n")
		_, err := NewManager(dir)
		assert.ErrorIs(t, err, ErrInvalidSet)
	})
}

func TestManager_Question(t *testing.T) {
	m := newTestManager(t)

	raw, err := m.Question("trivia", 0)
	require.NoError(t, err)

	var q map[string]any
	require.NoError(t, json.Unmarshal(raw, &q))
	assert.Equal(t, "q1", q["id"])
	assert.EqualValues(t, DefaultPoints, q["points"])
	assert.NotContains(t, q, "answer")

	_, err = m.Question("trivia", 5)
	assert.ErrorIs(t, err, ErrQuestionNotFound)
	_, err = m.Question("unknown", 0)
	assert.ErrorIs(t, err, ErrSetNotFound)
}

func TestManager_Reload(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "math.json", mathJSON)
	m, err := NewManager(dir)
	require.NoError(t, err)

	writeFile(t, dir, "trivia.yml", triviaYAML)
	require.NoError(t, m.Reload())
	assert.Equal(t, 2, m.QuestionCount("trivia"))

	writeFile(t, dir, "bad.json", "{")
	assert.Error(t, m.Reload())
	assert.Equal(t, 2, m.QuestionCount("trivia"), "failed reload keeps previous sets")
}

func TestValidateSet(t *testing.T) {
	set := &QuestionSet{
		ID: "bad",
		Questions: []Question{
			{ID: "a", Text: "x", Answer: "y"},
			{ID: "a", Text: "", Answer: ""},
			{ID: "c", Text: "x", Answer: "z", Choices: []string{"p", "q"}, Points: -1},
		},
	}

	err := ValidateSet(set)
	require.ErrorIs(t, err, ErrInvalidSet)
	msg := err.Error()
	assert.Contains(t, msg, "duplicate id")
	assert.Contains(t, msg, "text is empty")
	assert.Contains(t, msg, "answer is empty")
	assert.Contains(t, msg, "not one of the choices")
	assert.Contains(t, msg, "points must not be negative")
}

func TestScorer(t *testing.T) {
	s := NewScorer(newTestManager(t))
	ctx := context.Background()

	tests := []struct {
		name     string
		question string
		answer   string
		elapsed  int64
		want     int
	}{
		{"instant correct answer earns full bonus", "q1", "Paris", 0, 150},
		{"half time earns half bonus", "q1", "paris ", 5000, 125},
		{"at the limit earns no bonus", "q1", "PARIS", 10000, 100},
		{"late answer earns nothing", "q1", "Paris", 10001, 0},
		{"wrong answer", "q1", "Lyon", 0, 0},
		{"no time limit", "q2", "4", 99999, 50},
		{"default points", "m1", "9", 0, DefaultPoints},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Score(ctx, tt.question, tt.answer, tt.elapsed)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("unknown question", func(t *testing.T) {
		_, err := s.Score(ctx, "nope", "x", 0)
		assert.ErrorIs(t, err, ErrQuestionNotFound)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := s.Score(cctx, "q1", "Paris", 0)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestShippedCatalog(t *testing.T) {
	m, err := NewManager(filepath.Join("..", "..", "configs", "catalog"))
	require.NoError(t, err)
	assert.Equal(t, 5, m.QuestionCount("trivia"))
	assert.Equal(t, 4, m.QuestionCount("capitals"))
}
