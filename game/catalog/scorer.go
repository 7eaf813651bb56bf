package catalog

import "context"

// QuestionLookup finds a question by id
type QuestionLookup interface {
	Lookup(questionID string) (Question, bool)
}

// Scorer grades answers against the questions of a catalog
type Scorer struct {
	questions QuestionLookup
}

// NewScorer creates a Scorer backed by questions
func NewScorer(questions QuestionLookup) *Scorer {
	return &Scorer{questions: questions}
}

// Score returns the points earned by answer to questionID
func (s *Scorer) Score(ctx context.Context, questionID, answer string, elapsedMs int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	q, ok := s.questions.Lookup(questionID)
	if !ok {
		return 0, ErrQuestionNotFound
	}
	if normalize(answer) != normalize(q.Answer) {
		return 0, nil
	}

	points := q.Points
	if points == 0 {
		points = DefaultPoints
	}
	if q.TimeLimitMs <= 0 {
		return points, nil
	}
	if elapsedMs < 0 {
		elapsedMs = 0
	}
	if elapsedMs > q.TimeLimitMs {
		return 0, nil
	}

	remaining := q.TimeLimitMs - elapsedMs
	bonus := int(int64(points/2) * remaining / q.TimeLimitMs)
	return points + bonus, nil
}
