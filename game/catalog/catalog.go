package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultPoints is awarded for a correct answer to a question without points
const DefaultPoints = 100

var (
	ErrSetNotFound      = errors.New("question set not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrInvalidSet       = errors.New("invalid question set")
)

// Question is one quiz question as stored on disk
type Question struct {
	ID          string   `json:"id" yaml:"id"`
	Text        string   `json:"text" yaml:"text"`
	Choices     []string `json:"choices,omitempty" yaml:"choices,omitempty"`
	Answer      string   `json:"answer" yaml:"answer"`
	Points      int      `json:"points,omitempty" yaml:"points,omitempty"`
	TimeLimitMs int64    `json:"timeLimitMs,omitempty" yaml:"time_limit_ms,omitempty"`
}

// PublicQuestion is the part of a Question sent to players
type PublicQuestion struct {
	ID          string   `json:"id"`
	Text        string   `json:"text"`
	Choices     []string `json:"choices,omitempty"`
	Points      int      `json:"points"`
	TimeLimitMs int64    `json:"timeLimitMs,omitempty"`
}

// Public strips the answer from q
func (q Question) Public() PublicQuestion {
	points := q.Points
	if points == 0 {
		points = DefaultPoints
	}
	return PublicQuestion{
		ID:          q.ID,
		Text:        q.Text,
		Choices:     q.Choices,
		Points:      points,
		TimeLimitMs: q.TimeLimitMs,
	}
}

// QuestionSet is the ordered question list of one game type
type QuestionSet struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Questions   []Question `json:"questions" yaml:"questions"`
}

// SetInfo summarizes a QuestionSet for listings
type SetInfo struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	QuestionCount int    `json:"questionCount"`
	Filename      string `json:"filename"`
}

// IsSetFile reports whether name has a supported extension
func IsSetFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// ParseFile reads and validates a question set file
func ParseFile(path string) (*QuestionSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read question set: %w", err)
	}

	var set QuestionSet
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &set)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &set)
	default:
		return nil, fmt.Errorf("%w: unsupported file type %q", ErrInvalidSet, filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}

	if set.ID == "" {
		base := filepath.Base(path)
		set.ID = strings.TrimSuffix(base, filepath.Ext(base))
	}

	if err := ValidateSet(&set); err != nil {
		return nil, err
	}
	return &set, nil
}

// ValidateSet reports every problem found in set
func ValidateSet(set *QuestionSet) error {
	var problems []error

	if strings.TrimSpace(set.ID) == "" {
		problems = append(problems, errors.New("set id is empty"))
	}
	if len(set.Questions) == 0 {
		problems = append(problems, errors.New("set has no questions"))
	}

	seen := make(map[string]bool)
	for i, q := range set.Questions {
		switch {
		case strings.TrimSpace(q.ID) == "":
			problems = append(problems, fmt.Errorf("question %d: id is empty", i))
		case seen[q.ID]:
			problems = append(problems, fmt.Errorf("question %d: duplicate id %q", i, q.ID))
		}
		seen[q.ID] = true

		if strings.TrimSpace(q.Text) == "" {
			problems = append(problems, fmt.Errorf("question %d: text is empty", i))
		}
		if strings.TrimSpace(q.Answer) == "" {
			problems = append(problems, fmt.Errorf("question %d: answer is empty", i))
		}
		if q.Points < 0 {
			problems = append(problems, fmt.Errorf("question %d: points must not be negative", i))
		}
		if q.TimeLimitMs < 0 {
			problems = append(problems, fmt.Errorf("question %d: time limit must not be negative", i))
		}
		if len(q.Choices) > 0 && !hasChoice(q.Choices, q.Answer) {
			problems = append(problems, fmt.Errorf("question %d: answer %q is not one of the choices", i, q.Answer))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w %q: %w", ErrInvalidSet, set.ID, errors.Join(problems...))
	}
	return nil
}

func hasChoice(choices []string, answer string) bool {
	for _, c := range choices {
		if normalize(c) == normalize(answer) {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

type entry struct {
	set      *QuestionSet
	filename string
}

// Manager holds the question sets of a directory
type Manager struct {
	dir       string
	sets      map[string]entry
	questions map[string]Question
	mu        sync.RWMutex
}

// NewManager loads every question set in dir
func NewManager(dir string) (*Manager, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, fmt.Errorf("catalog directory does not exist: %s", dir)
	}

	m := &Manager{dir: dir}
	if err := m.Reload(); err != nil {
		return nil, err
	}
	return m, nil
}

// Reload reads the directory again. On error the previous sets stay loaded.
func (m *Manager) Reload() error {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return fmt.Errorf("failed to read catalog directory: %w", err)
	}

	sets := make(map[string]entry)
	questions := make(map[string]Question)
	owner := make(map[string]string)

	for _, e := range entries {
		if e.IsDir() || !IsSetFile(e.Name()) {
			continue
		}

		set, err := ParseFile(filepath.Join(m.dir, e.Name()))
		if err != nil {
			return err
		}
		if prev, exists := sets[set.ID]; exists {
			return fmt.Errorf("%w: set id %q defined by %s and %s", ErrInvalidSet, set.ID, prev.filename, e.Name())
		}
		for _, q := range set.Questions {
			if other, exists := owner[q.ID]; exists {
				return fmt.Errorf("%w: question id %q used by sets %q and %q", ErrInvalidSet, q.ID, other, set.ID)
			}
			owner[q.ID] = set.ID
			questions[q.ID] = q
		}
		sets[set.ID] = entry{set: set, filename: e.Name()}
	}

	m.mu.Lock()
	m.sets = sets
	m.questions = questions
	m.mu.Unlock()

	return nil
}

// QuestionCount returns the number of questions of gameType, 0 when unknown
func (m *Manager) QuestionCount(gameType string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.sets[gameType]
	if !ok {
		return 0
	}
	return len(e.set.Questions)
}

// Question returns the public payload of question index of gameType
func (m *Manager) Question(gameType string, index int) (json.RawMessage, error) {
	m.mu.RLock()
	e, ok := m.sets[gameType]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrSetNotFound
	}
	if index < 0 || index >= len(e.set.Questions) {
		return nil, fmt.Errorf("%w: %s[%d]", ErrQuestionNotFound, gameType, index)
	}

	data, err := json.Marshal(e.set.Questions[index].Public())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal question: %w", err)
	}
	return data, nil
}

// Lookup returns the question with the given id from any set
func (m *Manager) Lookup(questionID string) (Question, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q, ok := m.questions[questionID]
	return q, ok
}

// Set returns the question set with the given id
func (m *Manager) Set(id string) (*QuestionSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.sets[id]
	if !ok {
		return nil, ErrSetNotFound
	}
	return e.set, nil
}

// ListSets returns a summary of every loaded set ordered by id
func (m *Manager) ListSets() []SetInfo {
	m.mu.RLock()
	infos := make([]SetInfo, 0, len(m.sets))
	for _, e := range m.sets {
		infos = append(infos, SetInfo{
			ID:            e.set.ID,
			Name:          e.set.Name,
			Description:   e.set.Description,
			QuestionCount: len(e.set.Questions),
			Filename:      e.filename,
		})
	}
	m.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}
